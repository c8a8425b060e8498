package chain

import (
	"context"
	"math/big"
	"testing"

	ethtypes "github.com/ethereum/go-ethereum/core/types"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/haven-wallet/haven-wallet/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignPrepared(t *testing.T) {
	ctx := context.Background()
	key, err := ethcrypto.GenerateKey()
	require.NoError(t, err)
	from := ethcrypto.PubkeyToAddress(key.PublicKey).Hex()

	t.Run("dynamic fee transaction", func(t *testing.T) {
		client := newStubClient()
		prepared, err := Prepare(ctx, client, types.TransactionPayload{
			From:  from,
			To:    toAddr,
			Value: "1000",
		})
		require.NoError(t, err)

		signed, err := SignPrepared(prepared, key)
		require.NoError(t, err)

		assert.Equal(t, uint8(ethtypes.DynamicFeeTxType), signed.Type())
		assert.Equal(t, prepared.ChainID, signed.ChainId())

		// The signature must recover to the sender.
		sender, err := ethtypes.Sender(ethtypes.NewLondonSigner(prepared.ChainID), signed)
		require.NoError(t, err)
		assert.Equal(t, from, sender.Hex())
	})

	t.Run("legacy transaction", func(t *testing.T) {
		client := newStubClient()
		client.fees = &FeeSuggestion{GasPrice: big.NewInt(1_000_000_000), Legacy: true}

		prepared, err := Prepare(ctx, client, types.TransactionPayload{
			From:  from,
			To:    toAddr,
			Value: "1",
		})
		require.NoError(t, err)

		signed, err := SignPrepared(prepared, key)
		require.NoError(t, err)

		assert.Equal(t, uint8(ethtypes.LegacyTxType), signed.Type())

		sender, err := ethtypes.Sender(ethtypes.NewEIP155Signer(prepared.ChainID), signed)
		require.NoError(t, err)
		assert.Equal(t, from, sender.Hex())
	})
}

func TestSignPersonalMessage(t *testing.T) {
	key, err := ethcrypto.GenerateKey()
	require.NoError(t, err)
	address := ethcrypto.PubkeyToAddress(key.PublicKey).Hex()

	t.Run("signature recovers to the signer", func(t *testing.T) {
		sig, err := SignPersonalMessage("hello haven", key)
		require.NoError(t, err)
		assert.Len(t, sig, 2+65*2) // 0x + 65 bytes hex

		recovered, err := VerifyPersonalMessage("hello haven", sig)
		require.NoError(t, err)
		assert.Equal(t, address, recovered)
	})

	t.Run("different message does not verify", func(t *testing.T) {
		sig, err := SignPersonalMessage("hello haven", key)
		require.NoError(t, err)

		recovered, err := VerifyPersonalMessage("tampered", sig)
		require.NoError(t, err)
		assert.NotEqual(t, address, recovered)
	})

	t.Run("malformed signature", func(t *testing.T) {
		_, err := VerifyPersonalMessage("x", "0x1234")
		require.Error(t, err)
	})
}
