package api

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haven-wallet/haven-wallet/pkg/types"
)

func TestSessionLifecycle(t *testing.T) {
	ts := newTestServer(t)
	ts.createWallet(t, "Main")

	t.Run("starts locked", func(t *testing.T) {
		rec := ts.do(t, http.MethodGet, "/v1/session", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		state := decodeBody[types.SessionState](t, rec)
		assert.False(t, state.Unlocked)
	})

	t.Run("wrong password is rejected and counted", func(t *testing.T) {
		rec := ts.do(t, http.MethodPost, "/v1/session/unlock", UnlockRequest{Password: "nope"})
		require.Equal(t, http.StatusUnauthorized, rec.Code)

		rec = ts.do(t, http.MethodGet, "/v1/session", nil)
		state := decodeBody[types.SessionState](t, rec)
		assert.Equal(t, uint(1), state.FailedAttempts)
	})

	t.Run("correct password unlocks", func(t *testing.T) {
		rec := ts.do(t, http.MethodPost, "/v1/session/unlock", UnlockRequest{Password: testPassword})
		require.Equal(t, http.StatusOK, rec.Code)
		state := decodeBody[types.SessionState](t, rec)
		assert.True(t, state.Unlocked)
		assert.Zero(t, state.FailedAttempts)
	})

	t.Run("lock returns to locked", func(t *testing.T) {
		rec := ts.do(t, http.MethodPost, "/v1/session/lock", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		state := decodeBody[types.SessionState](t, rec)
		assert.False(t, state.Unlocked)
	})
}

func TestLockoutOverHTTP(t *testing.T) {
	ts := newTestServer(t)
	ts.createWallet(t, "Main")

	for i := 0; i < 5; i++ {
		rec := ts.do(t, http.MethodPost, "/v1/session/unlock", UnlockRequest{Password: "nope"})
		if i < 4 {
			require.Equal(t, http.StatusUnauthorized, rec.Code)
		} else {
			require.Equal(t, http.StatusForbidden, rec.Code)
			assert.NotEmpty(t, rec.Header().Get("Retry-After"))
		}
	}

	// Correct password is refused while locked out
	rec := ts.do(t, http.MethodPost, "/v1/session/unlock", UnlockRequest{Password: testPassword})
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestPasswordStrengthEndpoint(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/v1/password/strength", StrengthRequest{Password: "abc"})
	require.Equal(t, http.StatusOK, rec.Code)

	result := decodeBody[struct {
		Score int    `json:"score"`
		Label string `json:"label"`
	}](t, rec)
	assert.Equal(t, 1, result.Score)
}

func TestChangePasswordEndpoint(t *testing.T) {
	ts := newTestServer(t)
	ts.createWallet(t, "Main")

	t.Run("locked session is refused", func(t *testing.T) {
		rec := ts.do(t, http.MethodPut, "/v1/password", ChangePasswordRequest{
			CurrentPassword: testPassword,
			NewPassword:     "a new passphrase",
		})
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("unlocked session rotates the password", func(t *testing.T) {
		rec := ts.do(t, http.MethodPost, "/v1/session/unlock", UnlockRequest{Password: testPassword})
		require.Equal(t, http.StatusOK, rec.Code)

		rec = ts.do(t, http.MethodPut, "/v1/password", ChangePasswordRequest{
			CurrentPassword: testPassword,
			NewPassword:     "a new passphrase",
		})
		require.Equal(t, http.StatusNoContent, rec.Code)

		ts.session.Lock(context.Background())
		rec = ts.do(t, http.MethodPost, "/v1/session/unlock", UnlockRequest{Password: "a new passphrase"})
		assert.Equal(t, http.StatusOK, rec.Code)
	})
}
