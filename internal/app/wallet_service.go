package app

import (
	"context"
	"time"

	"github.com/haven-wallet/haven-wallet/internal/crypto"
	"github.com/haven-wallet/haven-wallet/internal/keystore"
	"github.com/haven-wallet/haven-wallet/internal/logger"
	"github.com/haven-wallet/haven-wallet/internal/metrics"
	"github.com/haven-wallet/haven-wallet/internal/registry"
	apperrors "github.com/haven-wallet/haven-wallet/pkg/errors"
	"github.com/haven-wallet/haven-wallet/pkg/types"
)

// WalletService handles wallet lifecycle operations: create, import,
// rename, set-primary, delete, reveal, and password change. Every
// operation touching a secret takes a freshly supplied password; nothing
// here caches a derived key or plaintext.
type WalletService struct {
	registry  *registry.Registry
	keystore  *keystore.KeyStore
	kdfParams crypto.KDFParams
}

// NewWalletService creates a new wallet service
func NewWalletService(reg *registry.Registry, ks *keystore.KeyStore, kdfParams crypto.KDFParams) *WalletService {
	return &WalletService{registry: reg, keystore: ks, kdfParams: kdfParams}
}

// CreateWallet generates a fresh key, encrypts it under password, and
// registers the account
func (s *WalletService) CreateWallet(ctx context.Context, displayName, password string) (*types.WalletAccount, error) {
	key, err := crypto.GenerateKey()
	if err != nil {
		return nil, err
	}
	return s.addWallet(ctx, displayName, crypto.KeyToHex(key), "", password, crypto.AddressFromKey(key).Hex())
}

// ImportWallet imports a raw hex private key, with an optional recovery
// phrase stored alongside it
func (s *WalletService) ImportWallet(ctx context.Context, displayName, privateKeyHex, recoveryPhrase, password string) (*types.WalletAccount, error) {
	key, err := crypto.KeyFromHex(privateKeyHex)
	if err != nil {
		return nil, apperrors.ErrBadRequest.WithDetail(err.Error())
	}
	return s.addWallet(ctx, displayName, crypto.KeyToHex(key), recoveryPhrase, password, crypto.AddressFromKey(key).Hex())
}

func (s *WalletService) addWallet(ctx context.Context, displayName, secret, recoveryPhrase, password, address string) (*types.WalletAccount, error) {
	encryptedSecret, err := crypto.Encrypt(secret, password, s.kdfParams)
	if err != nil {
		return nil, err
	}

	var encryptedPhrase *crypto.EncryptedSecret
	if recoveryPhrase != "" {
		encryptedPhrase, err = crypto.Encrypt(recoveryPhrase, password, s.kdfParams)
		if err != nil {
			return nil, err
		}
	}

	account := types.WalletAccount{
		Address:     address,
		DisplayName: displayName,
		CreatedAt:   time.Now().UTC(),
	}
	if err := s.registry.Create(ctx, account); err != nil {
		return nil, err
	}

	if err := s.keystore.Put(ctx, address, encryptedSecret, encryptedPhrase); err != nil {
		// Roll the account back rather than leave a slot with no secret.
		if delErr := s.registry.Delete(ctx, address); delErr != nil {
			logger.Error(ctx, "failed to roll back account after keystore error", "address", address, "error", delErr)
		}
		return nil, err
	}

	created, err := s.registry.Get(ctx, address)
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "wallet added", "address", address)
	return created, nil
}

// List returns all wallet accounts
func (s *WalletService) List(ctx context.Context) ([]types.WalletAccount, error) {
	return s.registry.List(ctx)
}

// Rename updates an account's display name
func (s *WalletService) Rename(ctx context.Context, address, newName string) error {
	return s.registry.Rename(ctx, address, newName)
}

// SetPrimary marks one account as primary
func (s *WalletService) SetPrimary(ctx context.Context, address string) error {
	return s.registry.SetPrimary(ctx, address)
}

// Delete removes an account, cascading to its encrypted secret and
// recovery phrase
func (s *WalletService) Delete(ctx context.Context, address string) error {
	return s.registry.Delete(ctx, address)
}

// ActiveAddress returns the address the UI currently acts as, empty when
// none is selected
func (s *WalletService) ActiveAddress(ctx context.Context) (string, error) {
	return s.registry.ActiveAddress(ctx)
}

// SetActiveAddress selects the address the UI acts as
func (s *WalletService) SetActiveAddress(ctx context.Context, address string) error {
	return s.registry.SetActiveAddress(ctx, address)
}

// HasSecret reports whether this device holds a secret for the address
func (s *WalletService) HasSecret(ctx context.Context, address string) (bool, error) {
	return s.keystore.HasSecret(ctx, address)
}

// RevealSecret decrypts and returns the private key for an address. The
// caller owns the returned value for the duration of one operation only.
func (s *WalletService) RevealSecret(ctx context.Context, address, password string) (string, error) {
	blob, err := s.keystore.Get(ctx, address)
	if err != nil {
		return "", err
	}
	if blob == nil {
		return "", apperrors.NotFound("no secret for " + address)
	}
	return decryptTimed(blob, password)
}

// RevealRecoveryPhrase decrypts and returns the recovery phrase for an
// address
func (s *WalletService) RevealRecoveryPhrase(ctx context.Context, address, password string) (string, error) {
	blob, err := s.keystore.GetRecoveryPhrase(ctx, address)
	if err != nil {
		return "", err
	}
	if blob == nil {
		return "", apperrors.NotFound("no recovery phrase for " + address)
	}
	return decryptTimed(blob, password)
}

// ChangePassword re-encrypts every stored secret and recovery phrase under
// a new password in one merged write. Old blobs are discarded.
func (s *WalletService) ChangePassword(ctx context.Context, oldPassword, newPassword string) error {
	addresses, err := s.keystore.Addresses(ctx)
	if err != nil {
		return err
	}
	if len(addresses) == 0 {
		return apperrors.NotFound("no stored secrets")
	}

	entries := make([]keystore.Entry, 0, len(addresses))
	for _, address := range addresses {
		blob, err := s.keystore.Get(ctx, address)
		if err != nil {
			return err
		}

		secret, err := decryptTimed(blob, oldPassword)
		if err != nil {
			return err
		}

		reEncrypted, err := crypto.Encrypt(secret, newPassword, s.kdfParams)
		if err != nil {
			return err
		}
		entry := keystore.Entry{Address: address, Secret: reEncrypted}

		phraseBlob, err := s.keystore.GetRecoveryPhrase(ctx, address)
		if err != nil {
			return err
		}
		if phraseBlob != nil {
			phrase, err := decryptTimed(phraseBlob, oldPassword)
			if err != nil {
				return err
			}
			entry.RecoveryPhrase, err = crypto.Encrypt(phrase, newPassword, s.kdfParams)
			if err != nil {
				return err
			}
		}

		entries = append(entries, entry)
	}

	if err := s.keystore.PutBatch(ctx, entries); err != nil {
		return err
	}

	logger.Info(ctx, "password changed", "wallets", len(entries))
	return nil
}

// ScoreStrength scores a candidate password for UI feedback
func (s *WalletService) ScoreStrength(password string) crypto.StrengthResult {
	return crypto.ScorePasswordStrength(password)
}

func decryptTimed(blob *crypto.EncryptedSecret, password string) (string, error) {
	start := time.Now()
	plain, err := crypto.Decrypt(blob, password)
	metrics.DecryptDuration.Observe(time.Since(start).Seconds())
	return plain, err
}
