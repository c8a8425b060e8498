package api

import (
	"encoding/json"
	"net/http"

	"github.com/haven-wallet/haven-wallet/internal/app"
	"github.com/haven-wallet/haven-wallet/internal/approval"
	"github.com/haven-wallet/haven-wallet/internal/logger"
	"github.com/haven-wallet/haven-wallet/internal/validation"
	apperrors "github.com/haven-wallet/haven-wallet/pkg/errors"
	"github.com/haven-wallet/haven-wallet/pkg/types"
)

// errOriginNotTrusted gates signing requests from unconnected origins
var errOriginNotTrusted = apperrors.New("origin_not_trusted", "Origin is not connected", http.StatusForbidden)

// RPCConnectRequest asks for wallet access on behalf of an origin
type RPCConnectRequest struct {
	Origin string `json:"origin"`
}

// RPCSignMessageRequest asks for a personal message signature
type RPCSignMessageRequest struct {
	Origin  string `json:"origin"`
	Address string `json:"address"`
	Message string `json:"message"`
}

// RPCSendTransactionRequest asks for a transaction to be signed and sent
type RPCSendTransactionRequest struct {
	Origin string `json:"origin"`
	From   string `json:"from"`
	To     string `json:"to,omitempty"`
	Value  string `json:"value,omitempty"`
	Data   string `json:"data,omitempty"`
}

// handleRPCConnect handles a dapp connection request. An already trusted
// origin gets its addresses back without a new approval round.
func (s *Server) handleRPCConnect(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.methodNotAllowed(w)
		return
	}

	var req RPCConnectRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	if err := validation.ValidateOrigin(req.Origin); err != nil {
		s.writeError(w, apperrors.ErrBadRequest.WithDetail(err.Error()))
		return
	}

	trusted, err := s.trust.IsTrusted(r.Context(), req.Origin)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if trusted {
		accounts, err := s.wallets.List(r.Context())
		if err != nil {
			s.writeError(w, err)
			return
		}
		addresses := make([]string, 0, len(accounts))
		for _, a := range accounts {
			addresses = append(addresses, a.Address)
		}
		s.writeJSON(w, http.StatusOK, app.ConnectResult{Origin: req.Origin, Addresses: addresses})
		return
	}

	s.submitAndWait(w, r, types.ApprovalConnect, req.Origin, json.RawMessage(`{}`))
}

// handleRPCSignMessage handles a personal message signing request
func (s *Server) handleRPCSignMessage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.methodNotAllowed(w)
		return
	}

	var req RPCSignMessageRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	if err := validation.ValidateOrigin(req.Origin); err != nil {
		s.writeError(w, apperrors.ErrBadRequest.WithDetail(err.Error()))
		return
	}
	if err := validation.ValidateEthereumAddress(req.Address); err != nil {
		s.writeError(w, apperrors.ErrBadRequest.WithDetail(err.Error()))
		return
	}
	if err := validation.ValidateSignableMessage(req.Message); err != nil {
		s.writeError(w, apperrors.ErrBadRequest.WithDetail(err.Error()))
		return
	}
	if !s.requireTrusted(w, r, req.Origin) {
		return
	}

	payload, err := json.Marshal(types.SignMessagePayload{Address: req.Address, Message: req.Message})
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.submitAndWait(w, r, types.ApprovalSignMessage, req.Origin, payload)
}

// handleRPCSendTransaction handles a sign-and-send transaction request
func (s *Server) handleRPCSendTransaction(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.methodNotAllowed(w)
		return
	}

	var req RPCSendTransactionRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	if err := validation.ValidateOrigin(req.Origin); err != nil {
		s.writeError(w, apperrors.ErrBadRequest.WithDetail(err.Error()))
		return
	}
	if err := validation.ValidateEthereumAddress(req.From); err != nil {
		s.writeError(w, apperrors.ErrBadRequest.WithDetail(err.Error()))
		return
	}
	if !s.requireTrusted(w, r, req.Origin) {
		return
	}

	payload, err := json.Marshal(types.TransactionPayload{
		From:  req.From,
		To:    req.To,
		Value: req.Value,
		Data:  req.Data,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.submitAndWait(w, r, types.ApprovalSignTransaction, req.Origin, payload)
}

// requireTrusted rejects requests from origins the user never connected.
// Returns false after writing the error response.
func (s *Server) requireTrusted(w http.ResponseWriter, r *http.Request, origin string) bool {
	trusted, err := s.trust.IsTrusted(r.Context(), origin)
	if err != nil {
		s.writeError(w, err)
		return false
	}
	if !trusted {
		s.writeError(w, errOriginNotTrusted)
		return false
	}
	return true
}

// submitAndWait queues an approval request and blocks until the user
// decides through the trusted surface or the caller gives up. A dropped
// connection leaves the request pending; the trusted surface still shows
// it until resolved or the surface closes.
func (s *Server) submitAndWait(w http.ResponseWriter, r *http.Request, kind types.ApprovalKind, origin string, payload json.RawMessage) {
	req, ch, err := s.broker.Submit(r.Context(), kind, origin, payload)
	if err != nil {
		s.writeError(w, err)
		return
	}

	ctx := logger.WithApprovalID(r.Context(), req.ID)
	logger.Info(ctx, "approval requested", "kind", string(kind), "origin", origin)

	select {
	case outcome := <-ch:
		s.writeOutcome(w, outcome)
	case <-r.Context().Done():
		logger.Info(ctx, "caller abandoned approval request", "kind", string(kind))
	}
}

func (s *Server) writeOutcome(w http.ResponseWriter, outcome approval.Outcome) {
	if outcome.Err != nil {
		s.writeError(w, outcome.Err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(outcome.Result)
}
