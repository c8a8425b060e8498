package api

import (
	"net/http"
	"strings"

	"github.com/haven-wallet/haven-wallet/internal/validation"
	apperrors "github.com/haven-wallet/haven-wallet/pkg/errors"
	"github.com/haven-wallet/haven-wallet/pkg/types"
)

// ApproveRequest carries the approval decision. Signing kinds require the
// password; connect does not.
type ApproveRequest struct {
	Password string `json:"password,omitempty"`
}

// RejectRequest carries the rejection reason shown to the origin
type RejectRequest struct {
	Reason string `json:"reason,omitempty"`
}

// DisconnectRequest names the origin losing trust
type DisconnectRequest struct {
	Origin string `json:"origin"`
}

// handleApprovals lists requests awaiting a decision
func (s *Server) handleApprovals(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.methodNotAllowed(w)
		return
	}
	if !s.requireUnlocked(w) {
		return
	}
	s.writeJSON(w, http.StatusOK, s.approvals.Pending())
}

// handleApprovalOperations routes /v1/approvals/{id}/... actions
func (s *Server) handleApprovalOperations(w http.ResponseWriter, r *http.Request) {
	if !s.requireUnlocked(w) {
		return
	}

	pathParts := strings.Split(strings.TrimPrefix(r.URL.Path, "/v1/approvals/"), "/")
	if len(pathParts) < 1 || pathParts[0] == "" {
		s.writeError(w, apperrors.ErrNotFound)
		return
	}
	id := pathParts[0]

	if len(pathParts) == 1 {
		if r.Method != http.MethodGet {
			s.methodNotAllowed(w)
			return
		}
		req, err := s.broker.Get(id)
		if err != nil {
			s.writeError(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, req)
		return
	}

	switch pathParts[1] {
	case "approve":
		if r.Method != http.MethodPost {
			s.methodNotAllowed(w)
			return
		}
		s.handleApprove(w, r, id)
	case "reject":
		if r.Method != http.MethodPost {
			s.methodNotAllowed(w)
			return
		}
		s.handleReject(w, r, id)
	case "transaction":
		if r.Method != http.MethodGet {
			s.methodNotAllowed(w)
			return
		}
		prepared, err := s.approvals.PrepareTransaction(r.Context(), id)
		if err != nil {
			s.writeError(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, prepared.Summarize())
	default:
		s.writeError(w, apperrors.ErrNotFound)
	}
}

// handleApprove dispatches on the request kind. Connect approvals need no
// password; signing approvals decrypt with one.
func (s *Server) handleApprove(w http.ResponseWriter, r *http.Request, id string) {
	req, err := s.broker.Get(id)
	if err != nil {
		s.writeError(w, err)
		return
	}

	var body ApproveRequest
	if err := decodeJSON(r, &body); err != nil {
		s.writeError(w, err)
		return
	}

	switch req.Kind {
	case types.ApprovalConnect:
		err = s.approvals.ApproveConnect(r.Context(), id)
	case types.ApprovalSignMessage:
		if body.Password == "" {
			s.writeError(w, apperrors.ErrBadRequest.WithDetail("password required to sign"))
			return
		}
		err = s.approvals.ApproveSignMessage(r.Context(), id, body.Password)
	case types.ApprovalSignTransaction:
		if body.Password == "" {
			s.writeError(w, apperrors.ErrBadRequest.WithDetail("password required to sign"))
			return
		}
		err = s.approvals.ApproveTransaction(r.Context(), id, body.Password)
	default:
		err = apperrors.ErrBadRequest.WithDetail("unknown approval kind")
	}

	if err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleReject(w http.ResponseWriter, r *http.Request, id string) {
	var body RejectRequest
	if err := decodeJSON(r, &body); err != nil {
		s.writeError(w, err)
		return
	}
	reason := body.Reason
	if reason == "" {
		reason = "rejected"
	}

	if err := s.approvals.Reject(r.Context(), id, reason); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleSurfaceClosed cancels all pending approvals when the trusted
// surface goes away
func (s *Server) handleSurfaceClosed(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.methodNotAllowed(w)
		return
	}

	s.approvals.SurfaceClosed(r.Context())
	w.WriteHeader(http.StatusNoContent)
}

// handleOrigins lists trusted origins or revokes all of them
func (s *Server) handleOrigins(w http.ResponseWriter, r *http.Request) {
	if !s.requireUnlocked(w) {
		return
	}

	switch r.Method {
	case http.MethodGet:
		origins, err := s.trust.List(r.Context())
		if err != nil {
			s.writeError(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, origins)
	case http.MethodDelete:
		if err := s.approvals.DisconnectAll(r.Context()); err != nil {
			s.writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		s.methodNotAllowed(w)
	}
}

// handleDisconnectOrigin revokes trust for one origin
func (s *Server) handleDisconnectOrigin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.methodNotAllowed(w)
		return
	}
	if !s.requireUnlocked(w) {
		return
	}

	var req DisconnectRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	if err := validation.ValidateOrigin(req.Origin); err != nil {
		s.writeError(w, apperrors.ErrBadRequest.WithDetail(err.Error()))
		return
	}

	if err := s.approvals.Disconnect(r.Context(), req.Origin); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
