package crypto

import (
	"crypto/ecdsa"

	apperrors "github.com/haven-wallet/haven-wallet/pkg/errors"
)

// ReleasedKey is the capability returned by a successful per-operation
// decrypt. It is scoped to a single signing operation: callers must
// Destroy it when the operation finishes. Holding a ReleasedKey is the
// authorization to sign; a merely unlocked session is not.
type ReleasedKey struct {
	key *ecdsa.PrivateKey
}

// NewReleasedKey wraps a freshly decrypted hex private key
func NewReleasedKey(secretHex string) (*ReleasedKey, error) {
	key, err := KeyFromHex(secretHex)
	if err != nil {
		// The decrypted bytes were not a private key at all. Treat it
		// like corruption rather than exposing parse details.
		return nil, apperrors.ErrAuthentication
	}
	return &ReleasedKey{key: key}, nil
}

// ECDSA exposes the underlying key for the one operation this release
// authorizes
func (r *ReleasedKey) ECDSA() *ecdsa.PrivateKey {
	return r.key
}

// Destroy zeroes the scalar and drops the key. The ReleasedKey is
// unusable afterwards.
func (r *ReleasedKey) Destroy() {
	if r.key != nil {
		r.key.D.SetInt64(0)
		r.key = nil
	}
}
