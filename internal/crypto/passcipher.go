// Package crypto implements password-derived authenticated encryption for
// wallet secrets. Keys are derived with scrypt and secrets are sealed with
// AES-256-GCM; the resulting blob is self-describing so it can be decrypted
// later regardless of the parameters in effect at encryption time.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"

	apperrors "github.com/haven-wallet/haven-wallet/pkg/errors"
	"golang.org/x/crypto/scrypt"
)

// AlgorithmID identifies the only cipher suite this package produces.
const AlgorithmID = "scrypt/aes-256-gcm"

const (
	saltLen  = 32
	nonceLen = 12
)

// KDFParams are the scrypt parameters recorded in each blob.
type KDFParams struct {
	N      int `json:"n"`
	R      int `json:"r"`
	P      int `json:"p"`
	KeyLen int `json:"key_len"`
}

// StandardParams is the production scrypt profile.
//
// N=2^17 (~128MB RAM) keeps brute force expensive while staying within the
// per-process memory limits of constrained hosts.
var StandardParams = KDFParams{N: 1 << 17, R: 8, P: 1, KeyLen: 32}

// InteractiveParams is a lighter profile for tests and low-memory deployments.
var InteractiveParams = KDFParams{N: 1 << 14, R: 8, P: 1, KeyLen: 32}

// ParamsForProfile maps a configured profile name to scrypt parameters.
// Unknown names fall back to the standard profile.
func ParamsForProfile(profile string) KDFParams {
	if profile == "interactive" {
		return InteractiveParams
	}
	return StandardParams
}

// EncryptedSecret is an authenticated, self-describing ciphertext blob.
// It is never decryptable without the password it was produced under.
type EncryptedSecret struct {
	CipherText  string    `json:"cipher_text"`
	Nonce       string    `json:"nonce"`
	Salt        string    `json:"salt"`
	KDFParams   KDFParams `json:"kdf_params"`
	AlgorithmID string    `json:"algorithm_id"`
}

// Encrypt seals secret under a key derived from password with a fresh random
// salt and nonce. A nonce is never reused: every call draws both salt and
// nonce from crypto/rand, so each (secret, password) pair yields a new key
// and a new nonce.
func Encrypt(secret, password string, params KDFParams) (*EncryptedSecret, error) {
	salt := make([]byte, saltLen)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}

	nonce := make([]byte, nonceLen)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	aead, err := newAEAD([]byte(password), salt, params)
	if err != nil {
		return nil, err
	}

	cipherText := aead.Seal(nil, nonce, []byte(secret), nil)

	return &EncryptedSecret{
		CipherText:  base64.StdEncoding.EncodeToString(cipherText),
		Nonce:       base64.StdEncoding.EncodeToString(nonce),
		Salt:        base64.StdEncoding.EncodeToString(salt),
		KDFParams:   params,
		AlgorithmID: AlgorithmID,
	}, nil
}

// Decrypt re-derives the key from password and the blob's stored salt and
// KDF parameters, then authenticates and opens the ciphertext.
//
// A wrong password and a corrupted blob are indistinguishable: both surface
// as the same authentication error. GCM verifies the whole tag before
// releasing any plaintext, so failure timing does not depend on which byte
// mismatched.
func Decrypt(blob *EncryptedSecret, password string) (string, error) {
	if blob == nil {
		return "", apperrors.ErrBadRequest.WithDetail("nil encrypted secret")
	}
	if blob.AlgorithmID != AlgorithmID {
		return "", apperrors.ErrBadRequest.WithDetail(fmt.Sprintf("unsupported algorithm: %s", blob.AlgorithmID))
	}

	cipherText, err := base64.StdEncoding.DecodeString(blob.CipherText)
	if err != nil {
		return "", apperrors.ErrAuthentication
	}
	nonce, err := base64.StdEncoding.DecodeString(blob.Nonce)
	if err != nil || len(nonce) != nonceLen {
		return "", apperrors.ErrAuthentication
	}
	salt, err := base64.StdEncoding.DecodeString(blob.Salt)
	if err != nil {
		return "", apperrors.ErrAuthentication
	}

	aead, err := newAEAD([]byte(password), salt, blob.KDFParams)
	if err != nil {
		return "", err
	}

	plaintext, err := aead.Open(nil, nonce, cipherText, nil)
	if err != nil {
		return "", apperrors.ErrAuthentication
	}

	return string(plaintext), nil
}

func newAEAD(password, salt []byte, params KDFParams) (cipher.AEAD, error) {
	if params.N == 0 || params.R == 0 || params.P == 0 || params.KeyLen == 0 {
		return nil, apperrors.ErrBadRequest.WithDetail("missing KDF parameters")
	}

	key, err := scrypt.Key(password, salt, params.N, params.R, params.P, params.KeyLen)
	if err != nil {
		return nil, fmt.Errorf("failed to derive key: %w", err)
	}
	defer clear(key)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	return aead, nil
}
