package crypto

import (
	"crypto/ecdsa"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// GenerateKey generates a new secp256k1 private key for a wallet account
func GenerateKey() (*ecdsa.PrivateKey, error) {
	privateKey, err := ethcrypto.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("failed to generate private key: %w", err)
	}
	return privateKey, nil
}

// AddressFromKey derives the checksum-cased address for a private key
func AddressFromKey(privateKey *ecdsa.PrivateKey) common.Address {
	publicKey := privateKey.Public()
	publicKeyECDSA, ok := publicKey.(*ecdsa.PublicKey)
	if !ok {
		panic("failed to cast public key to ECDSA")
	}
	return ethcrypto.PubkeyToAddress(*publicKeyECDSA)
}

// KeyToHex encodes a private key as a 0x-prefixed hex string
func KeyToHex(privateKey *ecdsa.PrivateKey) string {
	return "0x" + common.Bytes2Hex(ethcrypto.FromECDSA(privateKey))
}

// KeyFromHex parses a private key from a hex string, with or without the
// 0x prefix
func KeyFromHex(raw string) (*ecdsa.PrivateKey, error) {
	raw = strings.TrimPrefix(strings.TrimSpace(raw), "0x")
	privateKey, err := ethcrypto.HexToECDSA(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}
	return privateKey, nil
}
