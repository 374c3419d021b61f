package snapshot

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/allegro/bigcache/v3"

	"github.com/LavishGent/kairos/internal/config"
	"github.com/LavishGent/kairos/internal/types"
)

// MemoryStore keeps snapshots in process using BigCache.
type MemoryStore struct {
	cache  *bigcache.BigCache
	logger *slog.Logger
	now    func() time.Time

	saves     atomic.Int64
	evictions atomic.Int64
	closed    atomic.Bool
}

// NewMemoryStore creates an in-process snapshot store.
func NewMemoryStore(cfg config.MemoryStore, logger *slog.Logger, now func() time.Time) (*MemoryStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if now == nil {
		now = time.Now
	}
	if cfg.Shards <= 0 {
		cfg.Shards = 64
	}
	if cfg.LifeWindow <= 0 {
		cfg.LifeWindow = 24 * time.Hour
	}

	s := &MemoryStore{
		logger: logger.With("component", "snapshot-memory"),
		now:    now,
	}

	bc, err := bigcache.New(context.Background(), bigcache.Config{
		Shards:             cfg.Shards,
		LifeWindow:         cfg.LifeWindow,
		CleanWindow:        cleanWindow(cfg.LifeWindow),
		MaxEntriesInWindow: 1024,
		MaxEntrySize:       cfg.MaxEntrySize,
		HardMaxCacheSize:   cfg.MaxSizeMB,
		Logger:             &bigcacheLogger{logger: s.logger},
		OnRemoveWithReason: func(key string, entry []byte, reason bigcache.RemoveReason) {
			if reason == bigcache.NoSpace || reason == bigcache.Expired {
				s.evictions.Add(1)
			}
		},
	})
	if err != nil {
		return nil, err
	}
	s.cache = bc
	return s, nil
}

func cleanWindow(life time.Duration) time.Duration {
	w := life / 10
	if w < time.Second {
		return time.Second
	}
	if w > 5*time.Minute {
		return 5 * time.Minute
	}
	return w
}

// Name returns the backend name.
func (s *MemoryStore) Name() string { return BackendMemory }

// Save records value as the latest good response for key.
func (s *MemoryStore) Save(ctx context.Context, key string, value []byte) error {
	if s.closed.Load() {
		return types.ErrClosed
	}
	if err := s.cache.Set(key, wrap(value, s.now())); err != nil {
		return types.NewCacheError("Save", "snapshot", key, BackendMemory, err)
	}
	s.saves.Add(1)
	return nil
}

// Load returns the latest snapshot for key or ErrSnapshotMiss.
func (s *MemoryStore) Load(ctx context.Context, key string) (types.Snapshot, error) {
	if s.closed.Load() {
		return types.Snapshot{}, types.ErrClosed
	}
	data, err := s.cache.Get(key)
	if err != nil {
		if errors.Is(err, bigcache.ErrEntryNotFound) {
			return types.Snapshot{}, types.ErrSnapshotMiss
		}
		return types.Snapshot{}, types.NewCacheError("Load", "snapshot", key, BackendMemory, err)
	}
	return unwrap(data)
}

// Delete removes the snapshot for key. Missing keys are not an error.
func (s *MemoryStore) Delete(ctx context.Context, key string) error {
	if s.closed.Load() {
		return types.ErrClosed
	}
	if err := s.cache.Delete(key); err != nil && !errors.Is(err, bigcache.ErrEntryNotFound) {
		return types.NewCacheError("Delete", "snapshot", key, BackendMemory, err)
	}
	return nil
}

// Len returns the number of stored snapshots.
func (s *MemoryStore) Len() int {
	return s.cache.Len()
}

// Evictions counts snapshots dropped for space or age.
func (s *MemoryStore) Evictions() int64 {
	return s.evictions.Load()
}

// Close releases the underlying cache.
func (s *MemoryStore) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	return s.cache.Close()
}

type bigcacheLogger struct {
	logger *slog.Logger
}

func (l *bigcacheLogger) Printf(format string, args ...any) {
	l.logger.Debug("bigcache: "+format, args...)
}

var _ types.SnapshotStore = (*MemoryStore)(nil)
