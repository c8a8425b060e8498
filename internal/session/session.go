// Package session implements the lock/unlock gate in front of the trusted
// surface. Unlocking only verifies that the supplied password decrypts some
// stored secret; it never retains the derived key. A successful unlock is
// not authorization to decrypt a specific secret for signing — that always
// takes a fresh password at the point of use.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/haven-wallet/haven-wallet/internal/logger"
	"github.com/haven-wallet/haven-wallet/internal/metrics"
	apperrors "github.com/haven-wallet/haven-wallet/pkg/errors"
	"github.com/haven-wallet/haven-wallet/pkg/types"
)

// PasswordVerifier probes whether a password decrypts any stored secret.
type PasswordVerifier interface {
	VerifyPassword(ctx context.Context, password string) error
}

// Manager is the session state machine: Locked, Unlocked, or LockedOut.
// State is memory-resident and rebuilt as Locked on process start.
type Manager struct {
	verifier        PasswordVerifier
	maxAttempts     uint
	lockoutDuration time.Duration
	now             func() time.Time

	mu             sync.Mutex
	unlocked       bool
	failedAttempts uint
	lockoutUntil   *time.Time
}

// New creates a locked Manager. maxAttempts failed unlocks in a row trigger
// a lockout lasting lockoutDuration.
func New(verifier PasswordVerifier, maxAttempts uint, lockoutDuration time.Duration) *Manager {
	return &Manager{
		verifier:        verifier,
		maxAttempts:     maxAttempts,
		lockoutDuration: lockoutDuration,
		now:             time.Now,
	}
}

// SetClock overrides the time source, for tests
func (m *Manager) SetClock(now func() time.Time) {
	m.now = now
}

// Unlock verifies the password and flips the session to Unlocked.
//
// While locked out, attempts are rejected with a retry-after error without
// consuming an attempt. A failure past the attempt threshold transitions to
// LockedOut. An empty keystore surfaces as not-found and does not consume
// an attempt either.
func (m *Manager) Unlock(ctx context.Context, password string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if remaining, lockedOut := m.remainingLockout(); lockedOut {
		metrics.UnlockAttempts.WithLabelValues("locked_out").Inc()
		return apperrors.LockedOut(remaining)
	}

	err := m.verifier.VerifyPassword(ctx, password)
	if err == nil {
		m.unlocked = true
		m.failedAttempts = 0
		m.lockoutUntil = nil
		metrics.UnlockAttempts.WithLabelValues("success").Inc()
		logger.Info(ctx, "session unlocked")
		return nil
	}

	if !apperrors.IsAuthentication(err) {
		return err
	}

	m.failedAttempts++
	metrics.UnlockAttempts.WithLabelValues("failure").Inc()
	logger.Warn(ctx, "unlock failed", "failed_attempts", m.failedAttempts)

	if m.failedAttempts >= m.maxAttempts {
		until := m.now().Add(m.lockoutDuration)
		m.lockoutUntil = &until
		metrics.Lockouts.Inc()
		logger.Warn(ctx, "session locked out", "until", until)
		return apperrors.LockedOut(m.lockoutDuration)
	}

	return err
}

// Lock flips the session back to Locked. Explicit user action; idempotent.
func (m *Manager) Lock(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.unlocked {
		logger.Info(ctx, "session locked")
	}
	m.unlocked = false
}

// Unlocked reports whether the trusted surface is reachable
func (m *Manager) Unlocked() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.unlocked
}

// State returns the readout consumers use to gate navigation
func (m *Manager) State() types.SessionState {
	m.mu.Lock()
	defer m.mu.Unlock()

	state := types.SessionState{
		Unlocked:       m.unlocked,
		FailedAttempts: m.failedAttempts,
	}
	if _, lockedOut := m.remainingLockout(); lockedOut {
		state.LockoutUntil = m.lockoutUntil
	}
	return state
}

// remainingLockout reports the active lockout, expiring it lazily: once
// lockoutUntil has passed the machine is back in Locked with a fresh
// attempt budget. Callers must hold mu.
func (m *Manager) remainingLockout() (time.Duration, bool) {
	if m.lockoutUntil == nil {
		return 0, false
	}

	remaining := m.lockoutUntil.Sub(m.now())
	if remaining > 0 {
		return remaining, true
	}

	m.lockoutUntil = nil
	m.failedAttempts = 0
	return 0, false
}
