package chain

import (
	"crypto/ecdsa"
	"fmt"

	"github.com/ethereum/go-ethereum/common/hexutil"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// SignPrepared signs a prepared transaction with the given key. Dynamic-fee
// transactions use the London signer; legacy chains fall back to EIP-155.
func SignPrepared(prepared *PreparedTransaction, key *ecdsa.PrivateKey) (*ethtypes.Transaction, error) {
	var tx *ethtypes.Transaction
	var signer ethtypes.Signer

	if prepared.Legacy {
		tx = ethtypes.NewTx(&ethtypes.LegacyTx{
			Nonce:    prepared.Nonce,
			GasPrice: prepared.GasPrice,
			Gas:      prepared.Gas,
			To:       prepared.To,
			Value:    prepared.Value,
			Data:     prepared.Data,
		})
		signer = ethtypes.NewEIP155Signer(prepared.ChainID)
	} else {
		tx = ethtypes.NewTx(&ethtypes.DynamicFeeTx{
			ChainID:   prepared.ChainID,
			Nonce:     prepared.Nonce,
			GasTipCap: prepared.GasTipCap,
			GasFeeCap: prepared.GasFeeCap,
			Gas:       prepared.Gas,
			To:        prepared.To,
			Value:     prepared.Value,
			Data:      prepared.Data,
		})
		signer = ethtypes.NewLondonSigner(prepared.ChainID)
	}

	signedTx, err := ethtypes.SignTx(tx, signer, key)
	if err != nil {
		return nil, fmt.Errorf("failed to sign transaction: %w", err)
	}
	return signedTx, nil
}

// SignPersonalMessage signs a message with the EIP-191 personal-message
// prefix and returns the 65-byte signature as 0x-hex, with the recovery id
// shifted to 27/28 as wallets expect.
func SignPersonalMessage(message string, key *ecdsa.PrivateKey) (string, error) {
	hash := personalMessageHash(message)

	sig, err := ethcrypto.Sign(hash, key)
	if err != nil {
		return "", fmt.Errorf("failed to sign message: %w", err)
	}
	sig[64] += 27

	return hexutil.Encode(sig), nil
}

// VerifyPersonalMessage recovers the signer address of an EIP-191 signature
func VerifyPersonalMessage(message, signature string) (string, error) {
	sig, err := hexutil.Decode(signature)
	if err != nil || len(sig) != 65 {
		return "", fmt.Errorf("malformed signature")
	}

	// Undo the 27/28 shift for recovery.
	recovery := make([]byte, 65)
	copy(recovery, sig)
	if recovery[64] >= 27 {
		recovery[64] -= 27
	}

	pub, err := ethcrypto.SigToPub(personalMessageHash(message), recovery)
	if err != nil {
		return "", fmt.Errorf("failed to recover signer: %w", err)
	}

	return ethcrypto.PubkeyToAddress(*pub).Hex(), nil
}

func personalMessageHash(message string) []byte {
	prefixed := fmt.Sprintf("\x19Ethereum Signed Message:\n%d%s", len(message), message)
	return ethcrypto.Keccak256([]byte(prefixed))
}
