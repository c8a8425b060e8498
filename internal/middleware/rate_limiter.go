package middleware

import (
	"encoding/json"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/haven-wallet/haven-wallet/internal/metrics"
	apperrors "github.com/haven-wallet/haven-wallet/pkg/errors"
)

// bucketTTL is how long an idle IP keeps its token bucket.
const bucketTTL = 3 * time.Minute

// RateLimiter throttles requests per client IP. Each guarded surface
// (rpc, unlock) gets its own limiter, so exhausting one budget does not
// touch the other.
type RateLimiter struct {
	surface string
	rps     rate.Limit
	burst   int
	enabled bool

	mu      sync.Mutex
	buckets map[string]*bucket
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter creates a limiter for one surface. A disabled limiter
// passes every request through.
func NewRateLimiter(surface string, rps, burst int, enabled bool) *RateLimiter {
	rl := &RateLimiter{
		surface: surface,
		rps:     rate.Limit(rps),
		burst:   burst,
		enabled: enabled,
		buckets: make(map[string]*bucket),
	}

	if enabled {
		go rl.sweep()
	}

	return rl
}

func (rl *RateLimiter) allow(ip string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	b, ok := rl.buckets[ip]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(rl.rps, rl.burst)}
		rl.buckets[ip] = b
	}
	b.lastSeen = time.Now()

	return b.limiter.Allow()
}

// sweep drops buckets for IPs idle longer than bucketTTL
func (rl *RateLimiter) sweep() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for range ticker.C {
		rl.mu.Lock()
		for ip, b := range rl.buckets {
			if time.Since(b.lastSeen) > bucketTTL {
				delete(rl.buckets, ip)
			}
		}
		rl.mu.Unlock()
	}
}

// clientIP resolves the caller address, preferring proxy headers. Only the
// first X-Forwarded-For hop counts; later entries are appended by proxies.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := net.ParseIP(strings.TrimSpace(first)); ip != nil {
			return ip.String()
		}
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		if ip := net.ParseIP(xri); ip != nil {
			return ip.String()
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// Limit enforces the per-IP budget and answers an exhausted one with the
// wallet error taxonomy's rate_limited code.
func (rl *RateLimiter) Limit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.enabled {
			next.ServeHTTP(w, r)
			return
		}

		if !rl.allow(clientIP(r)) {
			metrics.RateLimited.WithLabelValues(rl.surface).Inc()

			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
			body, _ := json.Marshal(apperrors.ErrRateLimited)
			_, _ = w.Write(body)
			return
		}

		next.ServeHTTP(w, r)
	})
}
