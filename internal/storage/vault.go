package storage

import (
	"context"
	"encoding/base64"
	"fmt"

	vault "github.com/hashicorp/vault/api"
)

// VaultStore is a BlobStore backed by a Vault KV v2 mount. Blobs are
// base64-encoded into the secret payload under a single "blob" field.
type VaultStore struct {
	client *vault.Client
	mount  string
}

// VaultConfig configures a VaultStore
type VaultConfig struct {
	Address string
	Token   string
	Mount   string
}

// NewVaultStore creates a VaultStore from config
func NewVaultStore(cfg *VaultConfig) (*VaultStore, error) {
	vaultConfig := vault.DefaultConfig()
	vaultConfig.Address = cfg.Address

	client, err := vault.NewClient(vaultConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create vault client: %w", err)
	}
	client.SetToken(cfg.Token)

	mount := cfg.Mount
	if mount == "" {
		mount = "secret"
	}

	return &VaultStore{client: client, mount: mount}, nil
}

func (s *VaultStore) path(key string) string {
	return fmt.Sprintf("%s/data/wallet-core/%s", s.mount, key)
}

// Load returns the blob stored under key, or (nil, nil) when absent
func (s *VaultStore) Load(ctx context.Context, key string) ([]byte, error) {
	secret, err := s.client.Logical().ReadWithContext(ctx, s.path(key))
	if err != nil {
		return nil, fmt.Errorf("failed to read blob %q from vault: %w", key, err)
	}
	if secret == nil || secret.Data == nil {
		return nil, nil
	}

	// KV v2 nests the payload under "data".
	inner, ok := secret.Data["data"].(map[string]interface{})
	if !ok {
		return nil, nil
	}
	encoded, ok := inner["blob"].(string)
	if !ok {
		return nil, nil
	}

	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("failed to decode blob %q from vault: %w", key, err)
	}

	return data, nil
}

// Save stores the blob under key
func (s *VaultStore) Save(ctx context.Context, key string, data []byte) error {
	payload := map[string]interface{}{
		"data": map[string]interface{}{
			"blob": base64.StdEncoding.EncodeToString(data),
		},
	}

	if _, err := s.client.Logical().WriteWithContext(ctx, s.path(key), payload); err != nil {
		return fmt.Errorf("failed to write blob %q to vault: %w", key, err)
	}

	return nil
}

// Delete removes the blob under key
func (s *VaultStore) Delete(ctx context.Context, key string) error {
	if _, err := s.client.Logical().DeleteWithContext(ctx, s.path(key)); err != nil {
		return fmt.Errorf("failed to delete blob %q from vault: %w", key, err)
	}

	return nil
}
