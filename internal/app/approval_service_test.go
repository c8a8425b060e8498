package app

import (
	"context"
	"encoding/json"
	"math/big"
	"testing"
	"time"

	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haven-wallet/haven-wallet/internal/approval"
	"github.com/haven-wallet/haven-wallet/internal/chain"
	"github.com/haven-wallet/haven-wallet/internal/crypto"
	"github.com/haven-wallet/haven-wallet/internal/keystore"
	"github.com/haven-wallet/haven-wallet/internal/registry"
	"github.com/haven-wallet/haven-wallet/internal/storage"
	apperrors "github.com/haven-wallet/haven-wallet/pkg/errors"
	"github.com/haven-wallet/haven-wallet/pkg/types"
)

const testOrigin = "https://dapp.example"

type silentSurface struct{}

func (silentSurface) Present(context.Context, *types.ApprovalRequest) {}

type stubChain struct {
	chainID      *big.Int
	broadcastErr error
	broadcasts   []*ethtypes.Transaction
}

func (c *stubChain) ChainID() *big.Int { return c.chainID }

func (c *stubChain) PendingNonce(context.Context, string) (uint64, error) { return 7, nil }

func (c *stubChain) SuggestFees(context.Context) (*chain.FeeSuggestion, error) {
	return &chain.FeeSuggestion{
		GasTipCap: big.NewInt(2_000_000_000),
		GasFeeCap: big.NewInt(30_000_000_000),
	}, nil
}

func (c *stubChain) EstimateGas(context.Context, string, string, *big.Int, []byte) (uint64, error) {
	return 21000, nil
}

func (c *stubChain) Balance(context.Context, string) (*big.Int, error) {
	return new(big.Int).Mul(big.NewInt(100), big.NewInt(1_000_000_000_000_000_000)), nil
}

func (c *stubChain) Broadcast(_ context.Context, signedTx *ethtypes.Transaction) (string, error) {
	if c.broadcastErr != nil {
		return "", c.broadcastErr
	}
	c.broadcasts = append(c.broadcasts, signedTx)
	return signedTx.Hash().Hex(), nil
}

type approvalFixture struct {
	svc     *ApprovalService
	wallets *WalletService
	broker  *approval.Broker
	trust   *approval.TrustStore
	chain   *stubChain
	address string
}

func newApprovalFixture(t *testing.T) *approvalFixture {
	t.Helper()

	store := storage.NewMemoryStore()
	ks := keystore.New(store)
	reg := registry.New(store, ks)
	trust := approval.NewTrustStore(store)
	broker := approval.New(silentSurface{}, trust)
	stub := &stubChain{chainID: big.NewInt(11155111)}

	wallets := NewWalletService(reg, ks, crypto.InteractiveParams)
	account, err := wallets.CreateWallet(context.Background(), "Main", testPassword)
	require.NoError(t, err)

	return &approvalFixture{
		svc:     NewApprovalService(broker, trust, ks, reg, stub),
		wallets: wallets,
		broker:  broker,
		trust:   trust,
		chain:   stub,
		address: account.Address,
	}
}

func awaitOutcome(t *testing.T, ch <-chan approval.Outcome) approval.Outcome {
	t.Helper()
	select {
	case out := <-ch:
		return out
	case <-time.After(time.Second):
		t.Fatal("no outcome delivered")
		return approval.Outcome{}
	}
}

func TestApproveConnect(t *testing.T) {
	ctx := context.Background()
	fx := newApprovalFixture(t)

	req, ch, err := fx.broker.Submit(ctx, types.ApprovalConnect, testOrigin, json.RawMessage(`{}`))
	require.NoError(t, err)

	require.NoError(t, fx.svc.ApproveConnect(ctx, req.ID))

	out := awaitOutcome(t, ch)
	require.NoError(t, out.Err)

	var result ConnectResult
	require.NoError(t, json.Unmarshal(out.Result, &result))
	assert.Equal(t, testOrigin, result.Origin)
	assert.Equal(t, []string{fx.address}, result.Addresses)

	trusted, err := fx.trust.IsTrusted(ctx, testOrigin)
	require.NoError(t, err)
	assert.True(t, trusted, "approving connect records the origin as trusted")
}

func TestApproveSignMessage(t *testing.T) {
	ctx := context.Background()
	const message = "hello haven"

	t.Run("signs with the released key and resolves the request", func(t *testing.T) {
		fx := newApprovalFixture(t)

		payload, err := json.Marshal(types.SignMessagePayload{Address: fx.address, Message: message})
		require.NoError(t, err)
		req, ch, err := fx.broker.Submit(ctx, types.ApprovalSignMessage, testOrigin, payload)
		require.NoError(t, err)

		require.NoError(t, fx.svc.ApproveSignMessage(ctx, req.ID, testPassword))

		out := awaitOutcome(t, ch)
		require.NoError(t, out.Err)

		var result SignResult
		require.NoError(t, json.Unmarshal(out.Result, &result))
		assert.Equal(t, fx.address, result.Address)

		recovered, err := chain.VerifyPersonalMessage(message, result.Signature)
		require.NoError(t, err)
		assert.Equal(t, fx.address, recovered)
	})

	t.Run("wrong password fails and leaves the request pending", func(t *testing.T) {
		fx := newApprovalFixture(t)

		payload, err := json.Marshal(types.SignMessagePayload{Address: fx.address, Message: message})
		require.NoError(t, err)
		req, _, err := fx.broker.Submit(ctx, types.ApprovalSignMessage, testOrigin, payload)
		require.NoError(t, err)

		err = fx.svc.ApproveSignMessage(ctx, req.ID, "wrong-password")
		require.Error(t, err)
		assert.True(t, apperrors.IsAuthentication(err))

		_, err = fx.broker.Get(req.ID)
		assert.NoError(t, err, "failed decrypt must not consume the request")
	})

	t.Run("kind mismatch is rejected before any decrypt", func(t *testing.T) {
		fx := newApprovalFixture(t)

		req, _, err := fx.broker.Submit(ctx, types.ApprovalConnect, testOrigin, json.RawMessage(`{}`))
		require.NoError(t, err)

		err = fx.svc.ApproveSignMessage(ctx, req.ID, testPassword)
		require.Error(t, err)
	})
}

func TestApproveTransaction(t *testing.T) {
	ctx := context.Background()
	const recipient = "0xfB6916095ca1df60bB79Ce92cE3Ea74c37c5d359"

	submitTx := func(t *testing.T, fx *approvalFixture) (*types.ApprovalRequest, <-chan approval.Outcome) {
		t.Helper()
		payload, err := json.Marshal(types.TransactionPayload{
			From:  fx.address,
			To:    recipient,
			Value: "1000000000000000",
		})
		require.NoError(t, err)
		req, ch, err := fx.broker.Submit(ctx, types.ApprovalSignTransaction, testOrigin, payload)
		require.NoError(t, err)
		return req, ch
	}

	t.Run("prepare exposes fees and totals for display", func(t *testing.T) {
		fx := newApprovalFixture(t)
		req, _ := submitTx(t, fx)

		prepared, err := fx.svc.PrepareTransaction(ctx, req.ID)
		require.NoError(t, err)
		assert.Equal(t, uint64(7), prepared.Nonce)
		assert.False(t, prepared.Legacy)
		assert.Equal(t, "1000000000000000", prepared.Value.String())
	})

	t.Run("signs, broadcasts, and delivers the hash", func(t *testing.T) {
		fx := newApprovalFixture(t)
		req, ch := submitTx(t, fx)

		require.NoError(t, fx.svc.ApproveTransaction(ctx, req.ID, testPassword))

		out := awaitOutcome(t, ch)
		require.NoError(t, out.Err)

		var result TransactionResult
		require.NoError(t, json.Unmarshal(out.Result, &result))
		require.Len(t, fx.chain.broadcasts, 1)
		assert.Equal(t, fx.chain.broadcasts[0].Hash().Hex(), result.TxHash)
	})

	t.Run("missing chain client fails cleanly", func(t *testing.T) {
		fx := newApprovalFixture(t)
		// Wire the service the way main does when no RPC URL is set.
		fx.svc = NewApprovalService(fx.broker, fx.trust, fx.svc.keystore, fx.svc.registry, nil)
		req, _ := submitTx(t, fx)

		_, err := fx.svc.PrepareTransaction(ctx, req.ID)
		require.Error(t, err)
		we, ok := apperrors.IsWalletError(err)
		require.True(t, ok)
		assert.Equal(t, apperrors.CodeChainClient, we.Code)

		err = fx.svc.ApproveTransaction(ctx, req.ID, testPassword)
		require.Error(t, err)

		_, err = fx.broker.Get(req.ID)
		assert.NoError(t, err, "the request stays pending for an explicit reject")
	})

	t.Run("broadcast failure leaves the request pending", func(t *testing.T) {
		fx := newApprovalFixture(t)
		fx.chain.broadcastErr = apperrors.ChainClient("eth_sendRawTransaction", assert.AnError)
		req, _ := submitTx(t, fx)

		err := fx.svc.ApproveTransaction(ctx, req.ID, testPassword)
		require.Error(t, err)

		_, err = fx.broker.Get(req.ID)
		assert.NoError(t, err, "failed broadcast must not consume the request")
	})
}

func TestRejectAndDisconnect(t *testing.T) {
	ctx := context.Background()
	fx := newApprovalFixture(t)

	req, ch, err := fx.broker.Submit(ctx, types.ApprovalConnect, testOrigin, json.RawMessage(`{}`))
	require.NoError(t, err)
	require.NoError(t, fx.svc.Reject(ctx, req.ID, "user declined"))

	out := awaitOutcome(t, ch)
	require.Error(t, out.Err)

	require.NoError(t, fx.trust.Trust(ctx, testOrigin))
	require.NoError(t, fx.svc.Disconnect(ctx, testOrigin))
	trusted, err := fx.trust.IsTrusted(ctx, testOrigin)
	require.NoError(t, err)
	assert.False(t, trusted)
}

func TestSurfaceClosed(t *testing.T) {
	ctx := context.Background()
	fx := newApprovalFixture(t)

	_, ch, err := fx.broker.Submit(ctx, types.ApprovalConnect, testOrigin, nil)
	require.NoError(t, err)

	fx.svc.SurfaceClosed(ctx)

	out := awaitOutcome(t, ch)
	require.Error(t, out.Err)
	assert.Empty(t, fx.svc.Pending())
}
