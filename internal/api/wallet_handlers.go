package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/haven-wallet/haven-wallet/internal/validation"
	apperrors "github.com/haven-wallet/haven-wallet/pkg/errors"
)

// CreateWalletRequest creates a fresh wallet under the given name
type CreateWalletRequest struct {
	DisplayName string `json:"display_name"`
	Password    string `json:"password"`
}

// ImportWalletRequest imports existing key material
type ImportWalletRequest struct {
	DisplayName    string `json:"display_name"`
	PrivateKey     string `json:"private_key"`
	RecoveryPhrase string `json:"recovery_phrase,omitempty"`
	Password       string `json:"password"`
}

// RenameWalletRequest updates a wallet's display name
type RenameWalletRequest struct {
	DisplayName string `json:"display_name"`
}

// RevealRequest carries the password authorizing a secret reveal
type RevealRequest struct {
	Password string `json:"password"`
}

// RevealResponse carries a decrypted secret back to the trusted surface
type RevealResponse struct {
	Value string `json:"value"`
}

// ActiveAddressRequest selects the acting address
type ActiveAddressRequest struct {
	Address string `json:"address"`
}

// ActiveAddressResponse reports the acting address
type ActiveAddressResponse struct {
	Address string `json:"address,omitempty"`
}

// handleWallets handles wallet list and creation
func (s *Server) handleWallets(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		if !s.requireUnlocked(w) {
			return
		}
		accounts, err := s.wallets.List(r.Context())
		if err != nil {
			s.writeError(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, accounts)
	case http.MethodPost:
		if !s.requireUnlockedOrEmpty(w, r) {
			return
		}
		s.handleCreateWallet(w, r)
	default:
		s.methodNotAllowed(w)
	}
}

// requireUnlockedOrEmpty allows the operation while locked only during
// onboarding, before any wallet exists. The first create or import is
// what establishes the password.
func (s *Server) requireUnlockedOrEmpty(w http.ResponseWriter, r *http.Request) bool {
	if s.session.Unlocked() {
		return true
	}
	accounts, err := s.wallets.List(r.Context())
	if err != nil {
		s.writeError(w, err)
		return false
	}
	if len(accounts) > 0 {
		s.writeError(w, errSessionLocked)
		return false
	}
	return true
}

func (s *Server) handleCreateWallet(w http.ResponseWriter, r *http.Request) {
	var req CreateWalletRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	if err := validation.ValidateDisplayName(req.DisplayName); err != nil {
		s.writeError(w, apperrors.ErrBadRequest.WithDetail(err.Error()))
		return
	}
	if err := validation.ValidatePassword(req.Password); err != nil {
		s.writeError(w, apperrors.ErrBadRequest.WithDetail(err.Error()))
		return
	}

	account, err := s.wallets.CreateWallet(r.Context(), req.DisplayName, req.Password)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, account)
}

func (s *Server) handleImportWallet(w http.ResponseWriter, r *http.Request) {
	var req ImportWalletRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	if err := validation.ValidateDisplayName(req.DisplayName); err != nil {
		s.writeError(w, apperrors.ErrBadRequest.WithDetail(err.Error()))
		return
	}
	if err := validation.ValidatePassword(req.Password); err != nil {
		s.writeError(w, apperrors.ErrBadRequest.WithDetail(err.Error()))
		return
	}

	account, err := s.wallets.ImportWallet(r.Context(), req.DisplayName, req.PrivateKey, req.RecoveryPhrase, req.Password)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, account)
}

func (s *Server) handleActiveAddress(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		address, err := s.wallets.ActiveAddress(r.Context())
		if err != nil {
			s.writeError(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, ActiveAddressResponse{Address: address})
	case http.MethodPut:
		var req ActiveAddressRequest
		if err := decodeJSON(r, &req); err != nil {
			s.writeError(w, err)
			return
		}
		if err := s.wallets.SetActiveAddress(r.Context(), req.Address); err != nil {
			s.writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		s.methodNotAllowed(w)
	}
}

// handleWalletOperations routes /v1/wallets/... to the right handler
func (s *Server) handleWalletOperations(w http.ResponseWriter, r *http.Request) {
	pathParts := strings.Split(strings.TrimPrefix(r.URL.Path, "/v1/wallets/"), "/")
	if len(pathParts) < 1 || pathParts[0] == "" {
		s.writeError(w, apperrors.ErrNotFound)
		return
	}

	switch pathParts[0] {
	case "import":
		if r.Method != http.MethodPost {
			s.methodNotAllowed(w)
			return
		}
		if !s.requireUnlockedOrEmpty(w, r) {
			return
		}
		s.handleImportWallet(w, r)
		return
	case "active":
		if !s.requireUnlocked(w) {
			return
		}
		s.handleActiveAddress(w, r)
		return
	}

	if !s.requireUnlocked(w) {
		return
	}

	address := pathParts[0]
	if err := validation.ValidateEthereumAddress(address); err != nil {
		s.writeError(w, apperrors.ErrBadRequest.WithDetail(err.Error()))
		return
	}

	if len(pathParts) == 1 {
		switch r.Method {
		case http.MethodPatch:
			s.handleRenameWallet(w, r, address)
		case http.MethodDelete:
			s.handleDeleteWallet(w, r, address)
		default:
			s.methodNotAllowed(w)
		}
		return
	}

	switch pathParts[1] {
	case "primary":
		if r.Method != http.MethodPost {
			s.methodNotAllowed(w)
			return
		}
		if err := s.wallets.SetPrimary(r.Context(), address); err != nil {
			s.writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	case "reveal":
		s.handleReveal(w, r, address, s.wallets.RevealSecret)
	case "recovery-phrase":
		s.handleReveal(w, r, address, s.wallets.RevealRecoveryPhrase)
	default:
		s.writeError(w, apperrors.ErrNotFound)
	}
}

func (s *Server) handleRenameWallet(w http.ResponseWriter, r *http.Request, address string) {
	var req RenameWalletRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	if err := validation.ValidateDisplayName(req.DisplayName); err != nil {
		s.writeError(w, apperrors.ErrBadRequest.WithDetail(err.Error()))
		return
	}

	if err := s.wallets.Rename(r.Context(), address, req.DisplayName); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDeleteWallet(w http.ResponseWriter, r *http.Request, address string) {
	if err := s.wallets.Delete(r.Context(), address); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleReveal decrypts either the private key or the recovery phrase,
// gated on a fresh password entry.
func (s *Server) handleReveal(
	w http.ResponseWriter,
	r *http.Request,
	address string,
	reveal func(ctx context.Context, address, password string) (string, error),
) {
	if r.Method != http.MethodPost {
		s.methodNotAllowed(w)
		return
	}

	var req RevealRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	if err := validation.ValidatePassword(req.Password); err != nil {
		s.writeError(w, apperrors.ErrBadRequest.WithDetail(err.Error()))
		return
	}

	value, err := reveal(r.Context(), address, req.Password)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, RevealResponse{Value: value})
}
