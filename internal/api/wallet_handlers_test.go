package api

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haven-wallet/haven-wallet/pkg/types"
)

func unlock(t *testing.T, ts *testServer) {
	t.Helper()
	rec := ts.do(t, http.MethodPost, "/v1/session/unlock", UnlockRequest{Password: testPassword})
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestWalletOnboarding(t *testing.T) {
	ts := newTestServer(t)

	t.Run("first wallet can be created while locked", func(t *testing.T) {
		rec := ts.do(t, http.MethodPost, "/v1/wallets", CreateWalletRequest{
			DisplayName: "Main",
			Password:    testPassword,
		})
		require.Equal(t, http.StatusCreated, rec.Code)
		account := decodeBody[types.WalletAccount](t, rec)
		assert.NotEmpty(t, account.Address)
		assert.True(t, account.IsPrimary)
	})

	t.Run("second wallet requires an unlocked session", func(t *testing.T) {
		rec := ts.do(t, http.MethodPost, "/v1/wallets", CreateWalletRequest{
			DisplayName: "Second",
			Password:    testPassword,
		})
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})
}

func TestWalletCRUD(t *testing.T) {
	ts := newTestServer(t)
	address := ts.createWallet(t, "Main")
	unlock(t, ts)

	t.Run("list", func(t *testing.T) {
		rec := ts.do(t, http.MethodGet, "/v1/wallets", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		accounts := decodeBody[[]types.WalletAccount](t, rec)
		require.Len(t, accounts, 1)
		assert.Equal(t, address, accounts[0].Address)
	})

	t.Run("rename", func(t *testing.T) {
		rec := ts.do(t, http.MethodPatch, "/v1/wallets/"+address, RenameWalletRequest{DisplayName: "Renamed"})
		require.Equal(t, http.StatusNoContent, rec.Code)
	})

	t.Run("reveal with the wrong password is unauthorized", func(t *testing.T) {
		rec := ts.do(t, http.MethodPost, "/v1/wallets/"+address+"/reveal", RevealRequest{Password: "nope"})
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("reveal returns the private key", func(t *testing.T) {
		rec := ts.do(t, http.MethodPost, "/v1/wallets/"+address+"/reveal", RevealRequest{Password: testPassword})
		require.Equal(t, http.StatusOK, rec.Code)
		body := decodeBody[RevealResponse](t, rec)
		assert.NotEmpty(t, body.Value)
	})

	t.Run("active address round trip", func(t *testing.T) {
		rec := ts.do(t, http.MethodPut, "/v1/wallets/active", ActiveAddressRequest{Address: address})
		require.Equal(t, http.StatusNoContent, rec.Code)

		rec = ts.do(t, http.MethodGet, "/v1/wallets/active", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		body := decodeBody[ActiveAddressResponse](t, rec)
		assert.Equal(t, address, body.Address)
	})

	t.Run("invalid address in path is a bad request", func(t *testing.T) {
		rec := ts.do(t, http.MethodDelete, "/v1/wallets/0x1234", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("delete removes the wallet", func(t *testing.T) {
		rec := ts.do(t, http.MethodDelete, "/v1/wallets/"+address, nil)
		require.Equal(t, http.StatusNoContent, rec.Code)

		rec = ts.do(t, http.MethodGet, "/v1/wallets", nil)
		accounts := decodeBody[[]types.WalletAccount](t, rec)
		assert.Empty(t, accounts)
	})
}

func TestWalletEndpointsLockedGate(t *testing.T) {
	ts := newTestServer(t)
	address := ts.createWallet(t, "Main")

	paths := []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/v1/wallets"},
		{http.MethodPost, "/v1/wallets/" + address + "/reveal"},
		{http.MethodDelete, "/v1/wallets/" + address},
		{http.MethodGet, "/v1/approvals"},
		{http.MethodGet, "/v1/origins"},
	}
	for _, p := range paths {
		rec := ts.do(t, p.method, p.path, nil)
		assert.Equal(t, http.StatusForbidden, rec.Code, "%s %s must be gated while locked", p.method, p.path)
	}
}
