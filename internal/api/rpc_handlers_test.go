package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haven-wallet/haven-wallet/internal/app"
	"github.com/haven-wallet/haven-wallet/pkg/types"
)

// doAsync issues a request that blocks on an approval decision and
// returns a channel delivering the recorder once the handler finishes.
func (ts *testServer) doAsync(t *testing.T, method, path string, body any) <-chan *httptest.ResponseRecorder {
	t.Helper()

	raw, err := json.Marshal(body)
	require.NoError(t, err)

	done := make(chan *httptest.ResponseRecorder, 1)
	go func() {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(method, path, bytes.NewReader(raw))
		ts.handler.ServeHTTP(rec, req)
		done <- rec
	}()
	return done
}

// awaitPending polls until the broker holds a pending request
func (ts *testServer) awaitPending(t *testing.T) *types.ApprovalRequest {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if pending := ts.broker.Pending(); len(pending) > 0 {
			return pending[0]
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("no pending approval appeared")
	return nil
}

func awaitResponse(t *testing.T, done <-chan *httptest.ResponseRecorder) *httptest.ResponseRecorder {
	t.Helper()
	select {
	case rec := <-done:
		return rec
	case <-time.After(2 * time.Second):
		t.Fatal("blocked rpc request never completed")
		return nil
	}
}

func TestRPCConnectFlow(t *testing.T) {
	ts := newTestServer(t)
	address := ts.createWallet(t, "Main")
	unlock(t, ts)

	t.Run("approved connect delivers addresses and records trust", func(t *testing.T) {
		done := ts.doAsync(t, http.MethodPost, "/rpc/connect", RPCConnectRequest{Origin: testOrigin})
		pending := ts.awaitPending(t)
		assert.Equal(t, types.ApprovalConnect, pending.Kind)

		rec := ts.do(t, http.MethodPost, "/v1/approvals/"+pending.ID+"/approve", ApproveRequest{})
		require.Equal(t, http.StatusNoContent, rec.Code)

		resp := awaitResponse(t, done)
		require.Equal(t, http.StatusOK, resp.Code)
		result := decodeBody[app.ConnectResult](t, resp)
		assert.Equal(t, []string{address}, result.Addresses)

		trusted, err := ts.trust.IsTrusted(context.Background(), testOrigin)
		require.NoError(t, err)
		assert.True(t, trusted)
	})

	t.Run("connected origin reconnects without an approval round", func(t *testing.T) {
		rec := ts.do(t, http.MethodPost, "/rpc/connect", RPCConnectRequest{Origin: testOrigin})
		require.Equal(t, http.StatusOK, rec.Code)
		result := decodeBody[app.ConnectResult](t, rec)
		assert.Equal(t, []string{address}, result.Addresses)
	})

	t.Run("rejected connect surfaces the rejection", func(t *testing.T) {
		const other = "https://other.example"
		done := ts.doAsync(t, http.MethodPost, "/rpc/connect", RPCConnectRequest{Origin: other})
		pending := ts.awaitPending(t)

		rec := ts.do(t, http.MethodPost, "/v1/approvals/"+pending.ID+"/reject", RejectRequest{Reason: "user declined"})
		require.Equal(t, http.StatusNoContent, rec.Code)

		resp := awaitResponse(t, done)
		assert.Equal(t, http.StatusForbidden, resp.Code)
	})
}

func TestRPCSignMessageFlow(t *testing.T) {
	ts := newTestServer(t)
	address := ts.createWallet(t, "Main")
	unlock(t, ts)
	require.NoError(t, ts.trust.Trust(context.Background(), testOrigin))

	t.Run("untrusted origin is refused", func(t *testing.T) {
		rec := ts.do(t, http.MethodPost, "/rpc/sign-message", RPCSignMessageRequest{
			Origin:  "https://stranger.example",
			Address: address,
			Message: "hello",
		})
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("approved request returns the signature", func(t *testing.T) {
		done := ts.doAsync(t, http.MethodPost, "/rpc/sign-message", RPCSignMessageRequest{
			Origin:  testOrigin,
			Address: address,
			Message: "hello haven",
		})
		pending := ts.awaitPending(t)
		assert.Equal(t, types.ApprovalSignMessage, pending.Kind)

		rec := ts.do(t, http.MethodPost, "/v1/approvals/"+pending.ID+"/approve", ApproveRequest{Password: testPassword})
		require.Equal(t, http.StatusNoContent, rec.Code)

		resp := awaitResponse(t, done)
		require.Equal(t, http.StatusOK, resp.Code)
		result := decodeBody[app.SignResult](t, resp)
		assert.Equal(t, address, result.Address)
		assert.NotEmpty(t, result.Signature)
	})

	t.Run("wrong password leaves the request pending", func(t *testing.T) {
		done := ts.doAsync(t, http.MethodPost, "/rpc/sign-message", RPCSignMessageRequest{
			Origin:  testOrigin,
			Address: address,
			Message: "retry me",
		})
		pending := ts.awaitPending(t)

		rec := ts.do(t, http.MethodPost, "/v1/approvals/"+pending.ID+"/approve", ApproveRequest{Password: "nope"})
		require.Equal(t, http.StatusUnauthorized, rec.Code)

		// Still pending; a retry with the right password succeeds.
		rec = ts.do(t, http.MethodPost, "/v1/approvals/"+pending.ID+"/approve", ApproveRequest{Password: testPassword})
		require.Equal(t, http.StatusNoContent, rec.Code)

		resp := awaitResponse(t, done)
		assert.Equal(t, http.StatusOK, resp.Code)
	})
}

func TestRPCSendTransactionFlow(t *testing.T) {
	ts := newTestServer(t)
	address := ts.createWallet(t, "Main")
	unlock(t, ts)
	require.NoError(t, ts.trust.Trust(context.Background(), testOrigin))

	done := ts.doAsync(t, http.MethodPost, "/rpc/send-transaction", RPCSendTransactionRequest{
		Origin: testOrigin,
		From:   address,
		To:     "0xfB6916095ca1df60bB79Ce92cE3Ea74c37c5d359",
		Value:  "1000000000000000",
	})
	pending := ts.awaitPending(t)
	require.Equal(t, types.ApprovalSignTransaction, pending.Kind)

	// The trusted surface inspects the prepared cost first
	rec := ts.do(t, http.MethodGet, "/v1/approvals/"+pending.ID+"/transaction", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	summary := decodeBody[struct {
		ValueWei string `json:"value_wei"`
		TotalWei string `json:"total_wei"`
	}](t, rec)
	assert.Equal(t, "1000000000000000", summary.ValueWei)
	assert.NotEqual(t, summary.ValueWei, summary.TotalWei)

	rec = ts.do(t, http.MethodPost, "/v1/approvals/"+pending.ID+"/approve", ApproveRequest{Password: testPassword})
	require.Equal(t, http.StatusNoContent, rec.Code)

	resp := awaitResponse(t, done)
	require.Equal(t, http.StatusOK, resp.Code)
	result := decodeBody[app.TransactionResult](t, resp)
	assert.NotEmpty(t, result.TxHash)
}
