package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/haven-wallet/haven-wallet/internal/app"
	"github.com/haven-wallet/haven-wallet/internal/approval"
	"github.com/haven-wallet/haven-wallet/internal/config"
	"github.com/haven-wallet/haven-wallet/internal/logger"
	"github.com/haven-wallet/haven-wallet/internal/middleware"
	"github.com/haven-wallet/haven-wallet/internal/session"
	apperrors "github.com/haven-wallet/haven-wallet/pkg/errors"
)

// Server exposes two HTTP surfaces: the trusted surface under /v1 used
// by the wallet UI, and the untrusted surface under /rpc used by dapps.
// Untrusted requests never resolve themselves; they wait on an approval
// decided through the trusted surface.
type Server struct {
	config        *config.Config
	session       *session.Manager
	wallets       *app.WalletService
	approvals     *app.ApprovalService
	broker        *approval.Broker
	trust         *approval.TrustStore
	rpcLimiter    *middleware.RateLimiter
	unlockLimiter *middleware.RateLimiter
	httpServer    *http.Server
}

// NewServer creates a new API server
func NewServer(
	cfg *config.Config,
	sess *session.Manager,
	wallets *app.WalletService,
	approvals *app.ApprovalService,
	broker *approval.Broker,
	trust *approval.TrustStore,
) *Server {
	return &Server{
		config:        cfg,
		session:       sess,
		wallets:       wallets,
		approvals:     approvals,
		broker:        broker,
		trust:         trust,
		rpcLimiter:    middleware.NewRateLimiter("rpc", cfg.RateLimitRPS, cfg.RateLimitBurst, cfg.RateLimitEnabled),
		unlockLimiter: middleware.NewRateLimiter("unlock", cfg.RateLimitRPS, cfg.RateLimitBurst, cfg.RateLimitEnabled),
	}
}

// Handler builds the full route tree with middleware applied
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Operational endpoints (no session gate)
	mux.HandleFunc("/health", s.handleHealth)
	mux.Handle("/metrics", promhttp.Handler())

	// Trusted surface
	mux.HandleFunc("/v1/session", s.handleSession)
	// Unlock gets its own IP budget, separate from the untrusted surface.
	mux.Handle("/v1/session/unlock", s.unlockLimiter.Limit(http.HandlerFunc(s.handleUnlock)))
	mux.HandleFunc("/v1/session/lock", s.handleLock)
	mux.HandleFunc("/v1/password/strength", s.handlePasswordStrength)
	mux.HandleFunc("/v1/password", s.handleChangePassword)
	mux.HandleFunc("/v1/wallets", s.handleWallets)
	mux.HandleFunc("/v1/wallets/", s.handleWalletOperations)
	mux.HandleFunc("/v1/approvals", s.handleApprovals)
	mux.HandleFunc("/v1/approvals/", s.handleApprovalOperations)
	mux.HandleFunc("/v1/surface/closed", s.handleSurfaceClosed)
	mux.HandleFunc("/v1/origins", s.handleOrigins)
	mux.HandleFunc("/v1/origins/disconnect", s.handleDisconnectOrigin)

	// Untrusted surface: rate limited, body capped
	rpc := http.NewServeMux()
	rpc.HandleFunc("/rpc/connect", s.handleRPCConnect)
	rpc.HandleFunc("/rpc/sign-message", s.handleRPCSignMessage)
	rpc.HandleFunc("/rpc/send-transaction", s.handleRPCSendTransaction)
	mux.Handle("/rpc/", s.rpcLimiter.Limit(middleware.LimitBody(rpc)))

	return middleware.RequestID(middleware.Logging(mux))
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Port),
		Handler:      s.Handler(),
		ReadTimeout:  15 * time.Second,
		IdleTimeout:  60 * time.Second,
		// No WriteTimeout: /rpc responses block until the user decides.
	}

	logger.Info(context.Background(), "starting server", "port", s.config.Port)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// handleHealth handles health check requests
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}

// errSessionLocked gates trusted-surface operations while locked
var errSessionLocked = apperrors.New("session_locked", "Session is locked", http.StatusForbidden)

// requireUnlocked rejects the request when the session is locked.
// Returns false after writing the error response.
func (s *Server) requireUnlocked(w http.ResponseWriter) bool {
	if !s.session.Unlocked() {
		s.writeError(w, errSessionLocked)
		return false
	}
	return true
}

// decodeJSON parses a request body into dst
func decodeJSON(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return apperrors.ErrBadRequest.WithDetail("malformed JSON body")
	}
	return nil
}

// writeJSON writes a JSON response
func (s *Server) writeJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

// writeError writes an error response
func (s *Server) writeError(w http.ResponseWriter, err error) {
	we, ok := apperrors.IsWalletError(err)
	if !ok {
		we = apperrors.ErrInternal
	}
	if we.Code == apperrors.CodeLockedOut && we.RetryAfter > 0 {
		w.Header().Set("Retry-After", fmt.Sprintf("%d", int(we.RetryAfter.Seconds())+1))
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(we.StatusCode)
	json.NewEncoder(w).Encode(we)
}

// methodNotAllowed writes the standard response for an unsupported method
func (s *Server) methodNotAllowed(w http.ResponseWriter) {
	s.writeError(w, apperrors.New(
		apperrors.CodeBadRequest,
		"Method not allowed",
		http.StatusMethodNotAllowed,
	))
}
