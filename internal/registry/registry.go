// Package registry maintains the set of wallet accounts, independent of
// whether their secret material is present on this device.
package registry

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/haven-wallet/haven-wallet/internal/logger"
	"github.com/haven-wallet/haven-wallet/internal/storage"
	apperrors "github.com/haven-wallet/haven-wallet/pkg/errors"
	"github.com/haven-wallet/haven-wallet/pkg/types"
)

// SecretRemover is the keystore hook a Delete cascades into.
type SecretRemover interface {
	Remove(ctx context.Context, address string) error
}

// Registry persists the account list and the active-address pointer under
// separate blob keys, so account metadata reads never touch secrets.
//
// Invariant, enforced here and not in storage: after any mutation on a
// non-empty account list, exactly one account is primary.
type Registry struct {
	store   storage.BlobStore
	remover SecretRemover

	mu sync.Mutex
}

// New creates a Registry. remover may be nil when delete cascades are
// wired elsewhere.
func New(store storage.BlobStore, remover SecretRemover) *Registry {
	return &Registry{store: store, remover: remover}
}

func (r *Registry) load(ctx context.Context) ([]types.WalletAccount, error) {
	data, err := r.store.Load(ctx, storage.KeyWalletAccounts)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, nil
	}

	var accounts []types.WalletAccount
	if err := json.Unmarshal(data, &accounts); err != nil {
		logger.Warn(ctx, "account list is unparsable, treating as empty", "error", err)
		return nil, nil
	}
	return accounts, nil
}

func (r *Registry) save(ctx context.Context, accounts []types.WalletAccount) error {
	data, err := json.Marshal(accounts)
	if err != nil {
		return err
	}
	return r.store.Save(ctx, storage.KeyWalletAccounts, data)
}

func sameAddress(a, b string) bool {
	return strings.EqualFold(a, b)
}

// List returns all wallet accounts
func (r *Registry) List(ctx context.Context) ([]types.WalletAccount, error) {
	return r.load(ctx)
}

// Get returns the account with the given address
func (r *Registry) Get(ctx context.Context, address string) (*types.WalletAccount, error) {
	accounts, err := r.load(ctx)
	if err != nil {
		return nil, err
	}
	for i := range accounts {
		if sameAddress(accounts[i].Address, address) {
			return &accounts[i], nil
		}
	}
	return nil, apperrors.NotFound("account " + address)
}

// Create adds a wallet account. The first account becomes primary; a new
// account marked primary demotes the current one in the same write.
func (r *Registry) Create(ctx context.Context, account types.WalletAccount) error {
	if !common.IsHexAddress(account.Address) {
		return apperrors.ErrBadRequest.WithDetail("invalid address: " + account.Address)
	}
	account.Address = common.HexToAddress(account.Address).Hex()
	if account.CreatedAt.IsZero() {
		account.CreatedAt = time.Now().UTC()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	accounts, err := r.load(ctx)
	if err != nil {
		return err
	}

	for _, existing := range accounts {
		if sameAddress(existing.Address, account.Address) {
			return apperrors.ErrBadRequest.WithDetail("account already exists: " + account.Address)
		}
	}

	if len(accounts) == 0 {
		account.IsPrimary = true
	} else if account.IsPrimary {
		for i := range accounts {
			accounts[i].IsPrimary = false
		}
	}

	accounts = append(accounts, account)
	return r.save(ctx, accounts)
}

// Rename updates an account's display name
func (r *Registry) Rename(ctx context.Context, address, newName string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	accounts, err := r.load(ctx)
	if err != nil {
		return err
	}

	for i := range accounts {
		if sameAddress(accounts[i].Address, address) {
			accounts[i].DisplayName = newName
			return r.save(ctx, accounts)
		}
	}

	return apperrors.NotFound("account " + address)
}

// SetPrimary marks one account primary and clears the flag on all others.
// The whole update is a single write, so no reader observes zero or
// multiple primaries.
func (r *Registry) SetPrimary(ctx context.Context, address string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	accounts, err := r.load(ctx)
	if err != nil {
		return err
	}

	found := false
	for i := range accounts {
		match := sameAddress(accounts[i].Address, address)
		accounts[i].IsPrimary = match
		found = found || match
	}
	if !found {
		return apperrors.NotFound("account " + address)
	}

	return r.save(ctx, accounts)
}

// Delete removes an account and cascades to the keystore, purging its
// encrypted secret and recovery phrase under both casings. When the deleted
// account was primary, the first remaining account becomes primary in the
// same write.
func (r *Registry) Delete(ctx context.Context, address string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	accounts, err := r.load(ctx)
	if err != nil {
		return err
	}

	idx := -1
	for i := range accounts {
		if sameAddress(accounts[i].Address, address) {
			idx = i
			break
		}
	}
	if idx == -1 {
		return apperrors.NotFound("account " + address)
	}

	wasPrimary := accounts[idx].IsPrimary
	accounts = append(accounts[:idx], accounts[idx+1:]...)
	if wasPrimary && len(accounts) > 0 {
		accounts[0].IsPrimary = true
	}

	// Purge the secret before dropping the account entry. If the purge
	// fails the account stays listed and Delete can be retried; the
	// reverse order would orphan an encrypted secret with no account
	// pointing at it.
	if r.remover != nil {
		if err := r.remover.Remove(ctx, address); err != nil {
			return err
		}
	}

	if err := r.save(ctx, accounts); err != nil {
		return err
	}

	if active, err := r.activeAddress(ctx); err == nil && sameAddress(active, address) {
		if err := r.store.Delete(ctx, storage.KeyActiveAddress); err != nil {
			return err
		}
	}

	return nil
}

// ActiveAddress returns the currently active wallet address, or "" when
// none is set
func (r *Registry) ActiveAddress(ctx context.Context) (string, error) {
	return r.activeAddress(ctx)
}

func (r *Registry) activeAddress(ctx context.Context) (string, error) {
	data, err := r.store.Load(ctx, storage.KeyActiveAddress)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// SetActiveAddress updates the active wallet pointer
func (r *Registry) SetActiveAddress(ctx context.Context, address string) error {
	if _, err := r.Get(ctx, address); err != nil {
		return err
	}
	checksum := common.HexToAddress(address).Hex()
	return r.store.Save(ctx, storage.KeyActiveAddress, []byte(checksum))
}
