package app

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/haven-wallet/haven-wallet/internal/approval"
	"github.com/haven-wallet/haven-wallet/internal/chain"
	"github.com/haven-wallet/haven-wallet/internal/crypto"
	"github.com/haven-wallet/haven-wallet/internal/keystore"
	"github.com/haven-wallet/haven-wallet/internal/logger"
	"github.com/haven-wallet/haven-wallet/internal/registry"
	apperrors "github.com/haven-wallet/haven-wallet/pkg/errors"
	"github.com/haven-wallet/haven-wallet/pkg/types"
)

// ApprovalService implements the trusted-surface side of the approval
// protocol. Signing approvals collect the password, release the key for
// exactly one operation, and resolve the broker request afterwards. A
// failed decrypt surfaces to the user and leaves the request pending.
type ApprovalService struct {
	broker   *approval.Broker
	trust    *approval.TrustStore
	keystore *keystore.KeyStore
	registry *registry.Registry
	chain    chain.Client
}

// NewApprovalService creates a new approval service
func NewApprovalService(
	broker *approval.Broker,
	trust *approval.TrustStore,
	ks *keystore.KeyStore,
	reg *registry.Registry,
	chainClient chain.Client,
) *ApprovalService {
	return &ApprovalService{
		broker:   broker,
		trust:    trust,
		keystore: ks,
		registry: reg,
		chain:    chainClient,
	}
}

// Pending lists requests awaiting a decision
func (s *ApprovalService) Pending() []*types.ApprovalRequest {
	return s.broker.Pending()
}

// ConnectResult is the payload delivered to an origin whose connect
// request was approved.
type ConnectResult struct {
	Origin    string   `json:"origin"`
	Addresses []string `json:"addresses"`
}

// SignResult is the payload delivered for an approved sign-message request.
type SignResult struct {
	Address   string `json:"address"`
	Signature string `json:"signature"`
}

// TransactionResult is the payload delivered for an approved
// sign-and-send-transaction request.
type TransactionResult struct {
	TxHash string `json:"tx_hash"`
}

// ApproveConnect approves a connect request, delivering the visible
// addresses and recording the origin as trusted.
func (s *ApprovalService) ApproveConnect(ctx context.Context, id string) error {
	req, err := s.requireKind(id, types.ApprovalConnect)
	if err != nil {
		return err
	}

	accounts, err := s.registry.List(ctx)
	if err != nil {
		return err
	}
	addresses := make([]string, 0, len(accounts))
	for _, a := range accounts {
		addresses = append(addresses, a.Address)
	}

	result, err := json.Marshal(ConnectResult{Origin: req.Origin, Addresses: addresses})
	if err != nil {
		return err
	}

	return s.broker.Approve(logger.WithApprovalID(ctx, id), id, result)
}

// ApproveSignMessage approves a sign-message request. The password is used
// for one decrypt; a wrong password returns an authentication error and
// the request stays pending for retry or explicit cancel.
func (s *ApprovalService) ApproveSignMessage(ctx context.Context, id, password string) error {
	ctx = logger.WithApprovalID(ctx, id)

	req, err := s.requireKind(id, types.ApprovalSignMessage)
	if err != nil {
		return err
	}

	var payload types.SignMessagePayload
	if err := json.Unmarshal(req.Payload, &payload); err != nil {
		return apperrors.ErrBadRequest.WithDetail("malformed sign-message payload")
	}

	key, address, err := s.releaseKey(ctx, payload.Address, password)
	if err != nil {
		return err
	}
	defer key.Destroy()

	signature, err := chain.SignPersonalMessage(payload.Message, key.ECDSA())
	if err != nil {
		return err
	}

	result, err := json.Marshal(SignResult{Address: address, Signature: signature})
	if err != nil {
		return err
	}

	return s.broker.Approve(ctx, id, result)
}

// PrepareTransaction normalizes and fee-estimates the transaction of a
// pending sign-transaction request, for the trusted surface to display.
func (s *ApprovalService) PrepareTransaction(ctx context.Context, id string) (*chain.PreparedTransaction, error) {
	// The service runs without a chain client when no RPC endpoint is
	// configured; transaction requests then fail here, not with a panic,
	// and stay pending for an explicit reject.
	if s.chain == nil {
		return nil, apperrors.ChainClient("prepare", errors.New("no chain RPC configured"))
	}

	req, err := s.requireKind(id, types.ApprovalSignTransaction)
	if err != nil {
		return nil, err
	}

	var payload types.TransactionPayload
	if err := json.Unmarshal(req.Payload, &payload); err != nil {
		return nil, apperrors.ErrBadRequest.WithDetail("malformed transaction payload")
	}

	return chain.Prepare(ctx, s.chain, payload)
}

// ApproveTransaction approves a sign-transaction request: prepare, decrypt
// with the supplied password, sign, broadcast, resolve. Authentication and
// chain-client failures return to the caller without resolving the
// request; the user retries or cancels explicitly.
func (s *ApprovalService) ApproveTransaction(ctx context.Context, id, password string) error {
	ctx = logger.WithApprovalID(ctx, id)

	prepared, err := s.PrepareTransaction(ctx, id)
	if err != nil {
		return err
	}

	key, _, err := s.releaseKey(ctx, prepared.From.Hex(), password)
	if err != nil {
		return err
	}
	defer key.Destroy()

	signedTx, err := chain.SignPrepared(prepared, key.ECDSA())
	if err != nil {
		return err
	}

	txHash, err := s.chain.Broadcast(ctx, signedTx)
	if err != nil {
		// Decrypted material is already discarded by the deferred
		// destroy; the request stays pending for retry or cancel.
		logger.Error(ctx, "broadcast failed", "error", err)
		return err
	}

	result, err := json.Marshal(TransactionResult{TxHash: txHash})
	if err != nil {
		return err
	}

	return s.broker.Approve(ctx, id, result)
}

// Reject resolves a pending request as rejected
func (s *ApprovalService) Reject(ctx context.Context, id, reason string) error {
	return s.broker.Reject(logger.WithApprovalID(ctx, id), id, reason)
}

// SurfaceClosed cancels every pending request after the trusted surface
// closed without resolving them
func (s *ApprovalService) SurfaceClosed(ctx context.Context) {
	s.broker.OnSurfaceClosed(ctx)
}

// Disconnect revokes trust for an origin
func (s *ApprovalService) Disconnect(ctx context.Context, origin string) error {
	return s.trust.Disconnect(ctx, origin)
}

// DisconnectAll revokes trust for every origin
func (s *ApprovalService) DisconnectAll(ctx context.Context) error {
	return s.trust.DisconnectAll(ctx)
}

func (s *ApprovalService) requireKind(id string, kind types.ApprovalKind) (*types.ApprovalRequest, error) {
	req, err := s.broker.Get(id)
	if err != nil {
		return nil, err
	}
	if req.Kind != kind {
		return nil, apperrors.ErrBadRequest.WithDetail("request " + id + " is not a " + string(kind) + " request")
	}
	return req, nil
}

// releaseKey decrypts the secret for address under the supplied password
// and returns a single-operation key capability.
func (s *ApprovalService) releaseKey(ctx context.Context, address, password string) (*crypto.ReleasedKey, string, error) {
	blob, err := s.keystore.Get(ctx, address)
	if err != nil {
		return nil, "", err
	}
	if blob == nil {
		return nil, "", apperrors.NotFound("no secret for " + address)
	}

	secretHex, err := decryptTimed(blob, password)
	if err != nil {
		logger.Warn(ctx, "key release failed", "address", address)
		return nil, "", err
	}

	key, err := crypto.NewReleasedKey(secretHex)
	if err != nil {
		return nil, "", err
	}

	return key, address, nil
}
