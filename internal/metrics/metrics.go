// Package metrics defines the Prometheus collectors for the wallet core.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// UnlockAttempts counts session unlock attempts by outcome:
	// success, failure, locked_out.
	UnlockAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wallet_unlock_attempts_total",
		Help: "Session unlock attempts by outcome",
	}, []string{"outcome"})

	// Lockouts counts transitions into the locked-out state.
	Lockouts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "wallet_session_lockouts_total",
		Help: "Session lockouts triggered by repeated unlock failures",
	})

	// ApprovalsSubmitted counts approval requests by kind.
	ApprovalsSubmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wallet_approvals_submitted_total",
		Help: "Approval requests submitted by untrusted origins, by kind",
	}, []string{"kind"})

	// ApprovalsResolved counts resolved approval requests by kind and outcome:
	// approved, rejected.
	ApprovalsResolved = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wallet_approvals_resolved_total",
		Help: "Approval requests resolved, by kind and outcome",
	}, []string{"kind", "outcome"})

	// RateLimited counts requests refused by the per-IP limiter, by surface.
	RateLimited = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wallet_rate_limited_requests_total",
		Help: "Requests refused by the per-IP rate limiter, by surface",
	}, []string{"surface"})

	// DecryptDuration observes how long password-derived decryption takes.
	// Dominated by the KDF, so it tracks the configured scrypt profile.
	DecryptDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "wallet_secret_decrypt_duration_seconds",
		Help:    "Latency of password-derived secret decryption",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
	})
)
