// Package approval bridges requests from untrusted origins into the trusted
// surface and returns exactly one outcome per request. The broker does the
// bookkeeping only; password collection and key release happen in the
// trusted surface before it calls Approve.
package approval

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/haven-wallet/haven-wallet/internal/logger"
	"github.com/haven-wallet/haven-wallet/internal/metrics"
	apperrors "github.com/haven-wallet/haven-wallet/pkg/errors"
	"github.com/haven-wallet/haven-wallet/pkg/types"
)

// Outcome is delivered to the awaiting requester exactly once.
type Outcome struct {
	Result json.RawMessage
	Err    error
}

// Surface is notified when a new request needs presenting; it opens the
// trusted surface if it is not already open.
type Surface interface {
	Present(ctx context.Context, req *types.ApprovalRequest)
}

type pendingRequest struct {
	req *types.ApprovalRequest
	ch  chan Outcome
}

// Broker owns the pending-request registry. Each request is keyed by its
// own id; multiple requests may be pending at once without cross-talk.
type Broker struct {
	surface Surface
	trust   *TrustStore

	mu      sync.Mutex
	pending map[string]*pendingRequest
}

// New creates a Broker. surface may be nil in tests; trust is recorded on
// connect approvals when a TrustStore is supplied.
func New(surface Surface, trust *TrustStore) *Broker {
	return &Broker{
		surface: surface,
		trust:   trust,
		pending: make(map[string]*pendingRequest),
	}
}

// Submit records a request as pending, signals the trusted surface, and
// returns the request plus the channel its one outcome arrives on. It does
// not block on the decision.
func (b *Broker) Submit(ctx context.Context, kind types.ApprovalKind, origin string, payload json.RawMessage) (*types.ApprovalRequest, <-chan Outcome, error) {
	if !kind.Valid() {
		return nil, nil, apperrors.ErrBadRequest.WithDetail("unknown approval kind: " + string(kind))
	}
	if origin == "" {
		return nil, nil, apperrors.ErrBadRequest.WithDetail("origin is required")
	}

	req := &types.ApprovalRequest{
		ID:        uuid.NewString(),
		Kind:      kind,
		Origin:    origin,
		Payload:   payload,
		CreatedAt: time.Now().UTC(),
		Status:    types.ApprovalPending,
	}

	p := &pendingRequest{
		req: req,
		// Buffered so resolution never blocks on a requester that has
		// gone away.
		ch: make(chan Outcome, 1),
	}

	b.mu.Lock()
	b.pending[req.ID] = p
	b.mu.Unlock()

	metrics.ApprovalsSubmitted.WithLabelValues(string(kind)).Inc()
	logger.Info(ctx, "approval request submitted", "approval_id", req.ID, "kind", kind, "origin", origin)

	if b.surface != nil {
		b.surface.Present(ctx, req)
	}

	return req, p.ch, nil
}

// Pending lists the pending requests, oldest first. The returned requests
// are snapshots; a concurrent resolution does not mutate them.
func (b *Broker) Pending() []*types.ApprovalRequest {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]*types.ApprovalRequest, 0, len(b.pending))
	for _, p := range b.pending {
		snapshot := *p.req
		out = append(out, &snapshot)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// Get returns a snapshot of a pending request by id
func (b *Broker) Get(id string) (*types.ApprovalRequest, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	p, ok := b.pending[id]
	if !ok {
		return nil, apperrors.ErrInvalidRequest.WithDetail(id)
	}
	snapshot := *p.req
	return &snapshot, nil
}

// take removes a request from the pending set and records its terminal
// status while still holding the lock, returning nil when the id is
// unknown or already terminal.
func (b *Broker) take(id string, status types.ApprovalStatus) *pendingRequest {
	b.mu.Lock()
	defer b.mu.Unlock()

	p, ok := b.pending[id]
	if !ok {
		return nil
	}
	delete(b.pending, id)
	p.req.Status = status
	return p
}

// Approve resolves a pending request with a result. Valid only from
// pending: a second resolution of the same id is a no-op for the original
// requester and reports invalid-request to the caller.
func (b *Broker) Approve(ctx context.Context, id string, result json.RawMessage) error {
	p := b.take(id, types.ApprovalApproved)
	if p == nil {
		logger.Warn(ctx, "approve of unknown or resolved request", "approval_id", id)
		return apperrors.ErrInvalidRequest.WithDetail(id)
	}

	p.ch <- Outcome{Result: result}

	if p.req.Kind == types.ApprovalConnect && b.trust != nil {
		if err := b.trust.Trust(ctx, p.req.Origin); err != nil {
			logger.Error(ctx, "failed to record trusted origin", "origin", p.req.Origin, "error", err)
		}
	}

	metrics.ApprovalsResolved.WithLabelValues(string(p.req.Kind), "approved").Inc()
	logger.Info(ctx, "approval request approved", "approval_id", id, "kind", p.req.Kind)
	return nil
}

// Reject resolves a pending request with an error. Same one-shot semantics
// as Approve.
func (b *Broker) Reject(ctx context.Context, id, reason string) error {
	p := b.take(id, types.ApprovalRejected)
	if p == nil {
		logger.Warn(ctx, "reject of unknown or resolved request", "approval_id", id)
		return apperrors.ErrInvalidRequest.WithDetail(id)
	}

	b.deliverRejection(ctx, p, reason)
	return nil
}

// OnSurfaceClosed rejects every request the trusted surface was presenting.
// Closing the surface is a cancellation, not a timeout: no request may
// dangle forever waiting on a window that no longer exists.
func (b *Broker) OnSurfaceClosed(ctx context.Context) {
	b.mu.Lock()
	taken := make([]*pendingRequest, 0, len(b.pending))
	for id, p := range b.pending {
		p.req.Status = types.ApprovalRejected
		taken = append(taken, p)
		delete(b.pending, id)
	}
	b.mu.Unlock()

	for _, p := range taken {
		b.deliverRejection(ctx, p, "closed")
	}
}

func (b *Broker) deliverRejection(ctx context.Context, p *pendingRequest, reason string) {
	p.ch <- Outcome{Err: apperrors.New("approval_rejected", "Request rejected by the wallet", http.StatusForbidden).WithDetail(reason)}

	metrics.ApprovalsResolved.WithLabelValues(string(p.req.Kind), "rejected").Inc()
	logger.Info(ctx, "approval request rejected", "approval_id", p.req.ID, "kind", p.req.Kind, "reason", reason)
}
