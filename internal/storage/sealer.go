package storage

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/aws/aws-sdk-go-v2/service/kms/types"
)

// Sealer wraps persisted blobs at rest. The wallet secrets inside the
// secure store are already password-encrypted; sealing is an extra envelope
// around the persisted bytes, not a substitute for that.
type Sealer interface {
	Seal(ctx context.Context, plaintext []byte) ([]byte, error)
	Open(ctx context.Context, sealed []byte) ([]byte, error)
}

// NoopSealer passes blobs through unchanged.
type NoopSealer struct{}

// Seal returns the plaintext unchanged
func (NoopSealer) Seal(_ context.Context, plaintext []byte) ([]byte, error) {
	return plaintext, nil
}

// Open returns the sealed bytes unchanged
func (NoopSealer) Open(_ context.Context, sealed []byte) ([]byte, error) {
	return sealed, nil
}

// KMSAPI is the subset of the AWS KMS client the sealer uses.
type KMSAPI interface {
	GenerateDataKey(ctx context.Context, params *kms.GenerateDataKeyInput, optFns ...func(*kms.Options)) (*kms.GenerateDataKeyOutput, error)
	Decrypt(ctx context.Context, params *kms.DecryptInput, optFns ...func(*kms.Options)) (*kms.DecryptOutput, error)
}

// KMSSealer envelope-encrypts blobs: a fresh data key per Seal from AWS KMS,
// AES-256-GCM locally, the KMS-wrapped data key stored alongside the
// ciphertext. This avoids the KMS direct-encrypt size limit.
type KMSSealer struct {
	client KMSAPI
	keyID  string
}

// sealedEnvelope is the persisted form of a sealed blob.
type sealedEnvelope struct {
	EncryptedKey []byte `json:"encrypted_key"`
	Nonce        []byte `json:"nonce"`
	CipherText   []byte `json:"cipher_text"`
}

// NewKMSSealer creates a KMSSealer using the default AWS credential chain
func NewKMSSealer(keyID, region string) (*KMSSealer, error) {
	cfg, err := awsconfig.LoadDefaultConfig(context.Background(), awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return &KMSSealer{client: kms.NewFromConfig(cfg), keyID: keyID}, nil
}

// NewKMSSealerWithClient creates a KMSSealer with an explicit client
func NewKMSSealerWithClient(client KMSAPI, keyID string) *KMSSealer {
	return &KMSSealer{client: client, keyID: keyID}
}

// Seal envelope-encrypts plaintext under a fresh KMS data key
func (s *KMSSealer) Seal(ctx context.Context, plaintext []byte) ([]byte, error) {
	keyOut, err := s.client.GenerateDataKey(ctx, &kms.GenerateDataKeyInput{
		KeyId:   aws.String(s.keyID),
		KeySpec: types.DataKeySpecAes256,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to generate data key: %w", err)
	}
	defer clear(keyOut.Plaintext)

	aead, err := newGCM(keyOut.Plaintext)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	envelope := sealedEnvelope{
		EncryptedKey: keyOut.CiphertextBlob,
		Nonce:        nonce,
		CipherText:   aead.Seal(nil, nonce, plaintext, nil),
	}

	sealed, err := json.Marshal(envelope)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal sealed envelope: %w", err)
	}

	return sealed, nil
}

// Open decrypts a sealed envelope produced by Seal
func (s *KMSSealer) Open(ctx context.Context, sealed []byte) ([]byte, error) {
	var envelope sealedEnvelope
	if err := json.Unmarshal(sealed, &envelope); err != nil {
		return nil, fmt.Errorf("failed to unmarshal sealed envelope: %w", err)
	}

	keyOut, err := s.client.Decrypt(ctx, &kms.DecryptInput{
		CiphertextBlob: envelope.EncryptedKey,
		KeyId:          aws.String(s.keyID),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt data key: %w", err)
	}
	defer clear(keyOut.Plaintext)

	aead, err := newGCM(keyOut.Plaintext)
	if err != nil {
		return nil, err
	}

	plaintext, err := aead.Open(nil, envelope.Nonce, envelope.CipherText, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open sealed blob: %w", err)
	}

	return plaintext, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
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

// SealedStore applies a Sealer around an inner BlobStore.
type SealedStore struct {
	inner  BlobStore
	sealer Sealer
}

// NewSealedStore wraps inner with sealer
func NewSealedStore(inner BlobStore, sealer Sealer) *SealedStore {
	return &SealedStore{inner: inner, sealer: sealer}
}

// Load reads and opens the blob under key
func (s *SealedStore) Load(ctx context.Context, key string) ([]byte, error) {
	sealed, err := s.inner.Load(ctx, key)
	if err != nil || sealed == nil {
		return nil, err
	}
	return s.sealer.Open(ctx, sealed)
}

// Save seals and writes the blob under key
func (s *SealedStore) Save(ctx context.Context, key string, data []byte) error {
	sealed, err := s.sealer.Seal(ctx, data)
	if err != nil {
		return err
	}
	return s.inner.Save(ctx, key, sealed)
}

// Delete removes the blob under key
func (s *SealedStore) Delete(ctx context.Context, key string) error {
	return s.inner.Delete(ctx, key)
}
