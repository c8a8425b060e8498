package approval

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/haven-wallet/haven-wallet/internal/logger"
	"github.com/haven-wallet/haven-wallet/internal/storage"
	"github.com/haven-wallet/haven-wallet/pkg/types"
)

// TrustStore persists the set of origins a connect approval has marked as
// trusted. Trust covers low-risk reads (address visibility) only and lasts
// until explicitly revoked.
type TrustStore struct {
	store storage.BlobStore

	mu sync.Mutex
}

// NewTrustStore creates a TrustStore over the given blob store
func NewTrustStore(store storage.BlobStore) *TrustStore {
	return &TrustStore{store: store}
}

func (t *TrustStore) load(ctx context.Context) ([]types.TrustedOrigin, error) {
	data, err := t.store.Load(ctx, storage.KeyTrustedOrigins)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, nil
	}

	var origins []types.TrustedOrigin
	if err := json.Unmarshal(data, &origins); err != nil {
		logger.Warn(ctx, "trusted-origin list is unparsable, treating as empty", "error", err)
		return nil, nil
	}
	return origins, nil
}

func (t *TrustStore) save(ctx context.Context, origins []types.TrustedOrigin) error {
	data, err := json.Marshal(origins)
	if err != nil {
		return err
	}
	return t.store.Save(ctx, storage.KeyTrustedOrigins, data)
}

// Trust records an origin as trusted. Re-trusting refreshes the timestamp.
func (t *TrustStore) Trust(ctx context.Context, origin string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	origins, err := t.load(ctx)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	for i := range origins {
		if origins[i].Origin == origin {
			origins[i].ConnectedAt = now
			return t.save(ctx, origins)
		}
	}

	origins = append(origins, types.TrustedOrigin{Origin: origin, ConnectedAt: now})
	return t.save(ctx, origins)
}

// IsTrusted checks whether an origin has an unrevoked trust record
func (t *TrustStore) IsTrusted(ctx context.Context, origin string) (bool, error) {
	origins, err := t.load(ctx)
	if err != nil {
		return false, err
	}
	for _, o := range origins {
		if o.Origin == origin {
			return true, nil
		}
	}
	return false, nil
}

// List returns all trusted origins
func (t *TrustStore) List(ctx context.Context) ([]types.TrustedOrigin, error) {
	return t.load(ctx)
}

// Disconnect revokes trust for one origin. Revoking an unknown origin is a
// no-op.
func (t *TrustStore) Disconnect(ctx context.Context, origin string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	origins, err := t.load(ctx)
	if err != nil {
		return err
	}

	kept := origins[:0]
	for _, o := range origins {
		if o.Origin != origin {
			kept = append(kept, o)
		}
	}

	return t.save(ctx, kept)
}

// DisconnectAll revokes trust for every origin
func (t *TrustStore) DisconnectAll(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.store.Delete(ctx, storage.KeyTrustedOrigins)
}
