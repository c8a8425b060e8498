package session

import (
	"context"
	"testing"
	"time"

	apperrors "github.com/haven-wallet/haven-wallet/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubVerifier accepts exactly one password.
type stubVerifier struct {
	password string
	empty    bool
}

func (v *stubVerifier) VerifyPassword(_ context.Context, password string) error {
	if v.empty {
		return apperrors.NotFound("no stored secrets to verify against")
	}
	if password != v.password {
		return apperrors.ErrAuthentication
	}
	return nil
}

func newTestManager(t *testing.T, maxAttempts uint, lockout time.Duration) (*Manager, *time.Time) {
	t.Helper()
	mgr := New(&stubVerifier{password: "correct"}, maxAttempts, lockout)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	mgr.SetClock(func() time.Time { return now })
	return mgr, &now
}

func TestUnlock(t *testing.T) {
	ctx := context.Background()

	t.Run("correct password unlocks", func(t *testing.T) {
		mgr, _ := newTestManager(t, 5, time.Minute)

		require.NoError(t, mgr.Unlock(ctx, "correct"))
		assert.True(t, mgr.Unlocked())

		state := mgr.State()
		assert.True(t, state.Unlocked)
		assert.Zero(t, state.FailedAttempts)
		assert.Nil(t, state.LockoutUntil)
	})

	t.Run("wrong password stays locked and counts the attempt", func(t *testing.T) {
		mgr, _ := newTestManager(t, 5, time.Minute)

		err := mgr.Unlock(ctx, "wrong")
		assert.True(t, apperrors.IsAuthentication(err))
		assert.False(t, mgr.Unlocked())
		assert.Equal(t, uint(1), mgr.State().FailedAttempts)
	})

	t.Run("success resets the failed-attempt counter", func(t *testing.T) {
		mgr, _ := newTestManager(t, 5, time.Minute)

		_ = mgr.Unlock(ctx, "wrong")
		_ = mgr.Unlock(ctx, "wrong")
		require.NoError(t, mgr.Unlock(ctx, "correct"))
		assert.Zero(t, mgr.State().FailedAttempts)
	})

	t.Run("empty keystore does not consume an attempt", func(t *testing.T) {
		mgr := New(&stubVerifier{empty: true}, 5, time.Minute)

		err := mgr.Unlock(ctx, "anything")
		assert.True(t, apperrors.IsNotFound(err))
		assert.Zero(t, mgr.State().FailedAttempts)
	})
}

func TestLockout(t *testing.T) {
	ctx := context.Background()

	t.Run("threshold crossing locks out", func(t *testing.T) {
		mgr, _ := newTestManager(t, 3, time.Minute)

		_ = mgr.Unlock(ctx, "wrong")
		_ = mgr.Unlock(ctx, "wrong")
		err := mgr.Unlock(ctx, "wrong")

		retryAfter, ok := apperrors.IsLockedOut(err)
		require.True(t, ok)
		assert.Equal(t, time.Minute, retryAfter)
		assert.NotNil(t, mgr.State().LockoutUntil)
	})

	t.Run("correct password is rejected while locked out", func(t *testing.T) {
		mgr, now := newTestManager(t, 2, time.Minute)

		_ = mgr.Unlock(ctx, "wrong")
		_ = mgr.Unlock(ctx, "wrong")

		*now = now.Add(30 * time.Second)
		err := mgr.Unlock(ctx, "correct")
		retryAfter, ok := apperrors.IsLockedOut(err)
		require.True(t, ok)
		assert.Equal(t, 30*time.Second, retryAfter)
		assert.False(t, mgr.Unlocked())
	})

	t.Run("rejected attempts during lockout are not counted", func(t *testing.T) {
		mgr, _ := newTestManager(t, 2, time.Minute)

		_ = mgr.Unlock(ctx, "wrong")
		_ = mgr.Unlock(ctx, "wrong")
		before := mgr.State().FailedAttempts
		_ = mgr.Unlock(ctx, "wrong")
		assert.Equal(t, before, mgr.State().FailedAttempts)
	})

	t.Run("lockout expires by time alone", func(t *testing.T) {
		mgr, now := newTestManager(t, 2, time.Minute)

		_ = mgr.Unlock(ctx, "wrong")
		_ = mgr.Unlock(ctx, "wrong")

		*now = now.Add(time.Minute + time.Second)
		require.NoError(t, mgr.Unlock(ctx, "correct"))
		assert.True(t, mgr.Unlocked())
	})

	t.Run("expired lockout restores the attempt budget", func(t *testing.T) {
		mgr, now := newTestManager(t, 2, time.Minute)

		_ = mgr.Unlock(ctx, "wrong")
		_ = mgr.Unlock(ctx, "wrong")
		*now = now.Add(2 * time.Minute)

		err := mgr.Unlock(ctx, "wrong")
		assert.True(t, apperrors.IsAuthentication(err))
		assert.Equal(t, uint(1), mgr.State().FailedAttempts)
	})
}

func TestLock(t *testing.T) {
	ctx := context.Background()
	mgr, _ := newTestManager(t, 5, time.Minute)

	require.NoError(t, mgr.Unlock(ctx, "correct"))
	mgr.Lock(ctx)
	assert.False(t, mgr.Unlocked())

	// Idempotent.
	mgr.Lock(ctx)
	assert.False(t, mgr.Unlocked())
}
