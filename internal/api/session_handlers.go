package api

import (
	"net/http"

	"github.com/haven-wallet/haven-wallet/internal/validation"
	apperrors "github.com/haven-wallet/haven-wallet/pkg/errors"
)

// UnlockRequest carries the password for a session unlock attempt
type UnlockRequest struct {
	Password string `json:"password"`
}

// StrengthRequest carries a candidate password for advisory scoring
type StrengthRequest struct {
	Password string `json:"password"`
}

// ChangePasswordRequest carries the current and replacement passwords
type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

// handleSession reports the session state
func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.methodNotAllowed(w)
		return
	}
	s.writeJSON(w, http.StatusOK, s.session.State())
}

// handleUnlock attempts to unlock the session with the supplied password
func (s *Server) handleUnlock(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.methodNotAllowed(w)
		return
	}

	var req UnlockRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	if err := validation.ValidatePassword(req.Password); err != nil {
		s.writeError(w, apperrors.ErrBadRequest.WithDetail(err.Error()))
		return
	}

	if err := s.session.Unlock(r.Context(), req.Password); err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, s.session.State())
}

// handleLock locks the session
func (s *Server) handleLock(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.methodNotAllowed(w)
		return
	}

	s.session.Lock(r.Context())
	s.writeJSON(w, http.StatusOK, s.session.State())
}

// handlePasswordStrength scores a candidate password. Available while
// locked so onboarding can show feedback before any wallet exists.
func (s *Server) handlePasswordStrength(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.methodNotAllowed(w)
		return
	}

	var req StrengthRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, s.wallets.ScoreStrength(req.Password))
}

// handleChangePassword re-encrypts all stored secrets under a new password
func (s *Server) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		s.methodNotAllowed(w)
		return
	}
	if !s.requireUnlocked(w) {
		return
	}

	var req ChangePasswordRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	if err := validation.ValidatePassword(req.CurrentPassword); err != nil {
		s.writeError(w, apperrors.ErrBadRequest.WithDetail("current_password: "+err.Error()))
		return
	}
	if err := validation.ValidatePassword(req.NewPassword); err != nil {
		s.writeError(w, apperrors.ErrBadRequest.WithDetail("new_password: "+err.Error()))
		return
	}

	if err := s.wallets.ChangePassword(r.Context(), req.CurrentPassword, req.NewPassword); err != nil {
		s.writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
