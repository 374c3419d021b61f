package snapshot

import (
	"context"

	"github.com/LavishGent/kairos/internal/types"
)

// DisabledStore keeps nothing. Every Load misses.
type DisabledStore struct{}

// NewDisabledStore creates a store for deployments without fallbacks.
func NewDisabledStore() *DisabledStore {
	return &DisabledStore{}
}

func (DisabledStore) Name() string { return BackendNone }

func (DisabledStore) Save(ctx context.Context, key string, value []byte) error { return nil }

func (DisabledStore) Load(ctx context.Context, key string) (types.Snapshot, error) {
	return types.Snapshot{}, types.ErrSnapshotMiss
}

func (DisabledStore) Delete(ctx context.Context, key string) error { return nil }

func (DisabledStore) Close() error { return nil }

var _ types.SnapshotStore = (*DisabledStore)(nil)
