// Package keystore owns the durable mapping from wallet address to
// password-encrypted secret material. It is the only component that reads
// or writes the persisted secure-store blob.
package keystore

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/haven-wallet/haven-wallet/internal/crypto"
	"github.com/haven-wallet/haven-wallet/internal/logger"
	"github.com/haven-wallet/haven-wallet/internal/storage"
	apperrors "github.com/haven-wallet/haven-wallet/pkg/errors"
)

// FormatVersion is the current secure-store blob version. A persisted blob
// with a newer version fails closed rather than being half-understood.
const FormatVersion = 1

// SecureStore is the persisted shape of the keystore blob.
//
// Every address appears under both its checksum and lowercase key forms,
// pointing at the same blob, so lookups are case-insensitive without
// normalization by every caller. Reads still consult both forms, which
// keeps stores written with only one casing resolvable.
type SecureStore struct {
	FormatVersion            int                                `json:"format_version"`
	SecretsByAddress         map[string]*crypto.EncryptedSecret `json:"secrets_by_address"`
	RecoveryPhrasesByAddress map[string]*crypto.EncryptedSecret `json:"recovery_phrases_by_address,omitempty"`
	LastAccessAt             time.Time                          `json:"last_access_at"`
}

func newSecureStore() *SecureStore {
	return &SecureStore{
		FormatVersion:            FormatVersion,
		SecretsByAddress:         make(map[string]*crypto.EncryptedSecret),
		RecoveryPhrasesByAddress: make(map[string]*crypto.EncryptedSecret),
	}
}

// Entry is one address worth of secret material for a batch write.
type Entry struct {
	Address        string
	Secret         *crypto.EncryptedSecret
	RecoveryPhrase *crypto.EncryptedSecret
}

// KeyStore persists encrypted secrets through a BlobStore. Writes are
// read-merge-write cycles serialized by a per-process writer lock so a
// concurrent merge can never drop an entry.
type KeyStore struct {
	store storage.BlobStore

	// mu serializes the write path; reads do their own load and need no
	// coordination with an idle writer.
	mu sync.Mutex
}

// New creates a KeyStore over the given blob store
func New(store storage.BlobStore) *KeyStore {
	return &KeyStore{store: store}
}

// load parses the persisted secure store. A corrupt or unparsable blob
// degrades to an empty store instead of propagating a parse error: the
// wallet falls back to "needs setup" and the persisted bytes stay on disk
// until the next write.
func (k *KeyStore) load(ctx context.Context) (*SecureStore, error) {
	data, err := k.store.Load(ctx, storage.KeySecureStore)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return newSecureStore(), nil
	}

	var ss SecureStore
	if err := json.Unmarshal(data, &ss); err != nil {
		logger.Warn(ctx, "secure store is unparsable, treating as empty", "error", err)
		return newSecureStore(), nil
	}

	if ss.FormatVersion > FormatVersion {
		// A half-understood store must not be merged and written back.
		return nil, apperrors.ErrMergeConflict.WithDetail("secure store written by a newer version")
	}

	if ss.SecretsByAddress == nil {
		ss.SecretsByAddress = make(map[string]*crypto.EncryptedSecret)
	}
	if ss.RecoveryPhrasesByAddress == nil {
		ss.RecoveryPhrasesByAddress = make(map[string]*crypto.EncryptedSecret)
	}

	return &ss, nil
}

func (k *KeyStore) save(ctx context.Context, ss *SecureStore) error {
	ss.FormatVersion = FormatVersion
	ss.LastAccessAt = time.Now().UTC()

	data, err := json.Marshal(ss)
	if err != nil {
		return err
	}

	return k.store.Save(ctx, storage.KeySecureStore, data)
}

// keyForms returns the checksum and lowercase key forms for an address.
func keyForms(address string) (checksum, lower string, err error) {
	if !common.IsHexAddress(address) {
		return "", "", apperrors.ErrBadRequest.WithDetail("invalid address: " + address)
	}
	checksum = common.HexToAddress(address).Hex()
	return checksum, strings.ToLower(checksum), nil
}

// Put merges one address worth of secret material into the secure store.
func (k *KeyStore) Put(ctx context.Context, address string, secret, recoveryPhrase *crypto.EncryptedSecret) error {
	return k.PutBatch(ctx, []Entry{{Address: address, Secret: secret, RecoveryPhrase: recoveryPhrase}})
}

// PutBatch merges a set of entries into the secure store in one
// read-merge-write cycle. Existing entries survive; new entries win on key
// collision. Both casing forms of each address are written.
func (k *KeyStore) PutBatch(ctx context.Context, entries []Entry) error {
	for _, e := range entries {
		if e.Secret == nil {
			return apperrors.ErrBadRequest.WithDetail("entry without a secret for " + e.Address)
		}
	}

	k.mu.Lock()
	defer k.mu.Unlock()

	ss, err := k.load(ctx)
	if err != nil {
		return err
	}

	for _, e := range entries {
		checksum, lower, err := keyForms(e.Address)
		if err != nil {
			return err
		}

		ss.SecretsByAddress[checksum] = e.Secret
		ss.SecretsByAddress[lower] = e.Secret

		if e.RecoveryPhrase != nil {
			ss.RecoveryPhrasesByAddress[checksum] = e.RecoveryPhrase
			ss.RecoveryPhrasesByAddress[lower] = e.RecoveryPhrase
		}
	}

	return k.save(ctx, ss)
}

// Get looks up the encrypted secret for an address, case-insensitively.
// Returns (nil, nil) when the address has no secret on this device.
func (k *KeyStore) Get(ctx context.Context, address string) (*crypto.EncryptedSecret, error) {
	ss, err := k.load(ctx)
	if err != nil {
		return nil, err
	}
	return lookup(ss.SecretsByAddress, address)
}

// GetRecoveryPhrase looks up the encrypted recovery phrase for an address.
// Returns (nil, nil) when none is stored.
func (k *KeyStore) GetRecoveryPhrase(ctx context.Context, address string) (*crypto.EncryptedSecret, error) {
	ss, err := k.load(ctx)
	if err != nil {
		return nil, err
	}
	return lookup(ss.RecoveryPhrasesByAddress, address)
}

func lookup(m map[string]*crypto.EncryptedSecret, address string) (*crypto.EncryptedSecret, error) {
	checksum, lower, err := keyForms(address)
	if err != nil {
		return nil, err
	}
	if blob, ok := m[checksum]; ok {
		return blob, nil
	}
	if blob, ok := m[lower]; ok {
		return blob, nil
	}
	return nil, nil
}

// HasSecret checks for a stored secret without decrypting anything
func (k *KeyStore) HasSecret(ctx context.Context, address string) (bool, error) {
	blob, err := k.Get(ctx, address)
	if err != nil {
		return false, err
	}
	return blob != nil, nil
}

// Remove deletes both casing entries for the address from both maps.
// Removing an absent address is a no-op.
func (k *KeyStore) Remove(ctx context.Context, address string) error {
	checksum, lower, err := keyForms(address)
	if err != nil {
		return err
	}

	k.mu.Lock()
	defer k.mu.Unlock()

	ss, err := k.load(ctx)
	if err != nil {
		return err
	}

	delete(ss.SecretsByAddress, checksum)
	delete(ss.SecretsByAddress, lower)
	delete(ss.RecoveryPhrasesByAddress, checksum)
	delete(ss.RecoveryPhrasesByAddress, lower)

	return k.save(ctx, ss)
}

// Addresses returns the distinct addresses with a stored secret, in their
// checksum form.
func (k *KeyStore) Addresses(ctx context.Context) ([]string, error) {
	ss, err := k.load(ctx)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var out []string
	for key := range ss.SecretsByAddress {
		checksum := common.HexToAddress(key).Hex()
		if !seen[checksum] {
			seen[checksum] = true
			out = append(out, checksum)
		}
	}
	return out, nil
}

// VerifyPassword checks a password against the store by probing decryption
// of any one stored secret; one success is enough. The decrypted value is
// discarded immediately. Returns a not-found error when the store holds no
// secrets to probe against.
func (k *KeyStore) VerifyPassword(ctx context.Context, password string) error {
	ss, err := k.load(ctx)
	if err != nil {
		return err
	}

	for _, blob := range ss.SecretsByAddress {
		if _, err := crypto.Decrypt(blob, password); err != nil {
			return err
		}
		return nil
	}

	return apperrors.NotFound("no stored secrets to verify against")
}
