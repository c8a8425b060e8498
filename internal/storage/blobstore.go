// Package storage provides the persisted blob layer for the wallet core.
// Each logical entity (secure store, account list, active-address pointer,
// trusted origins) lives under its own independent key, so account metadata
// can be read without ever touching encrypted secrets.
package storage

import "context"

// Well-known blob keys.
const (
	KeySecureStore    = "secure_store"
	KeyWalletAccounts = "wallet_accounts"
	KeyActiveAddress  = "active_address"
	KeyTrustedOrigins = "trusted_origins"
)

// BlobStore persists opaque blobs under string keys. Implementations must
// make Save atomic per key: a concurrent Load sees either the previous or
// the new value, never a partial write.
type BlobStore interface {
	// Load returns the blob stored under key, or (nil, nil) when absent.
	Load(ctx context.Context, key string) ([]byte, error)

	// Save stores the blob under key, replacing any previous value.
	Save(ctx context.Context, key string, data []byte) error

	// Delete removes the blob under key. Deleting an absent key is not
	// an error.
	Delete(ctx context.Context, key string) error
}
