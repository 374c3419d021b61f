package snapshot

import (
	"context"
	"crypto/tls"
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/LavishGent/kairos/internal/config"
	"github.com/LavishGent/kairos/internal/types"
)

const (
	disconnectErrorThreshold = 5

	fieldSavedAt = "saved_at"
	fieldValue   = "value"
)

// RedisStore keeps snapshots in Redis hashes so they survive restarts and
// are shared between replicas.
type RedisStore struct {
	client *redis.Client
	config config.RedisConfig
	logger *slog.Logger
	now    func() time.Time

	mu            sync.RWMutex
	connected     atomic.Bool
	lastError     error
	lastErrorTime time.Time
	errorCount    atomic.Int64

	healthCheckStopCh chan struct{}
	healthCheckWg     sync.WaitGroup
	closed            atomic.Bool
}

// NewRedisStore connects to Redis. A failed initial ping is logged and the
// store starts disconnected; the health check reconnects it later.
func NewRedisStore(cfg config.RedisConfig, logger *slog.Logger, now func() time.Time) (*RedisStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if now == nil {
		now = time.Now
	}

	opts := &redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password.Value(),
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	if cfg.EnableTLS {
		opts.TLSConfig = &tls.Config{
			InsecureSkipVerify: cfg.TLSSkipVerify,
		}
		if cfg.TLSSkipVerify {
			logger.Warn("TLS certificate verification is disabled - this is insecure for production use")
		}
	}

	s := &RedisStore{
		client:            redis.NewClient(opts),
		config:            cfg,
		logger:            logger.With("component", "snapshot-redis"),
		now:               now,
		healthCheckStopCh: make(chan struct{}),
	}

	dialTimeout := cfg.DialTimeout
	if dialTimeout <= 0 {
		dialTimeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
	defer cancel()

	if err := s.client.Ping(ctx).Err(); err != nil {
		s.logger.Warn("Redis initial connection failed", "error", err)
		s.setError(err)
	} else {
		s.connected.Store(true)
		s.logger.Info("Redis connected", "address", cfg.Address)
	}

	if cfg.HealthCheckInterval > 0 {
		s.healthCheckWg.Add(1)
		go s.healthCheckWorker()
	}

	return s, nil
}

// Name returns the backend name.
func (s *RedisStore) Name() string { return BackendRedis }

// IsAvailable reports whether the last Redis round trip succeeded.
func (s *RedisStore) IsAvailable() bool {
	return s.connected.Load()
}

func (s *RedisStore) prefixKey(key string) string {
	return s.config.KeyPrefix + key
}

// Save writes value and its timestamp, refreshing the key's TTL.
func (s *RedisStore) Save(ctx context.Context, key string, value []byte) error {
	if !s.connected.Load() {
		return types.ErrStoreUnavailable
	}

	k := s.prefixKey(key)
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, k,
			fieldSavedAt, strconv.FormatInt(s.now().UnixNano(), 10),
			fieldValue, value,
		)
		if s.config.TTL > 0 {
			pipe.Expire(ctx, k, s.config.TTL)
		}
		return nil
	})
	if err != nil {
		s.handleError(err)
		return types.NewCacheError("Save", "snapshot", key, BackendRedis, err)
	}

	s.clearError()
	return nil
}

// Load reads the snapshot for key or returns ErrSnapshotMiss.
func (s *RedisStore) Load(ctx context.Context, key string) (types.Snapshot, error) {
	if !s.connected.Load() {
		return types.Snapshot{}, types.ErrStoreUnavailable
	}

	fields, err := s.client.HGetAll(ctx, s.prefixKey(key)).Result()
	if err != nil {
		s.handleError(err)
		return types.Snapshot{}, types.NewCacheError("Load", "snapshot", key, BackendRedis, err)
	}
	s.clearError()

	raw, ok := fields[fieldValue]
	if !ok {
		return types.Snapshot{}, types.ErrSnapshotMiss
	}
	nanos, err := strconv.ParseInt(fields[fieldSavedAt], 10, 64)
	if err != nil {
		return types.Snapshot{}, types.NewCacheError("Load", "snapshot", key, BackendRedis, err)
	}

	return types.Snapshot{
		Value:   []byte(raw),
		SavedAt: time.Unix(0, nanos),
	}, nil
}

// Delete removes the snapshot for key.
func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if !s.connected.Load() {
		return types.ErrStoreUnavailable
	}

	if err := s.client.Del(ctx, s.prefixKey(key)).Err(); err != nil {
		s.handleError(err)
		return types.NewCacheError("Delete", "snapshot", key, BackendRedis, err)
	}

	s.clearError()
	return nil
}

// Clear deletes every snapshot under the configured prefix.
func (s *RedisStore) Clear(ctx context.Context) error {
	if !s.connected.Load() {
		return types.ErrStoreUnavailable
	}

	var cursor uint64
	var deleted int64
	pattern := s.prefixKey("*")

	for {
		keys, next, err := s.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			s.handleError(err)
			return types.NewCacheError("Clear", "snapshot", pattern, BackendRedis, err)
		}
		if len(keys) > 0 {
			if err := s.client.Del(ctx, keys...).Err(); err != nil {
				s.handleError(err)
				return types.NewCacheError("Clear", "snapshot", pattern, BackendRedis, err)
			}
			deleted += int64(len(keys))
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}

	s.logger.Debug("Cleared snapshots", "pattern", pattern, "deleted", deleted)
	s.clearError()
	return nil
}

// Ping checks connectivity without changing the store's state.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// LastError returns the most recent Redis error and when it happened.
func (s *RedisStore) LastError() (error, time.Time) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastError, s.lastErrorTime
}

// Close stops the health check and closes the client.
func (s *RedisStore) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	s.connected.Store(false)

	close(s.healthCheckStopCh)
	s.healthCheckWg.Wait()

	return s.client.Close()
}

func (s *RedisStore) healthCheckWorker() {
	defer s.healthCheckWg.Done()

	ticker := time.NewTicker(s.config.HealthCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.healthCheckStopCh:
			return
		case <-ticker.C:
			s.performHealthCheck()
		}
	}
}

func (s *RedisStore) performHealthCheck() {
	wasConnected := s.connected.Load()

	timeout := s.config.DialTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := s.client.Ping(ctx).Err(); err != nil {
		if wasConnected {
			s.logger.Warn("Redis health check failed", "error", err)
			s.setError(err)
		}
		return
	}

	if !wasConnected {
		s.connected.Store(true)
		s.errorCount.Store(0)
		s.logger.Info("Redis connection restored via health check")
	}
}

func (s *RedisStore) handleError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lastError = err
	s.lastErrorTime = time.Now()
	count := s.errorCount.Add(1)

	if count >= disconnectErrorThreshold {
		if s.connected.CompareAndSwap(true, false) {
			s.logger.Warn("Redis marked as disconnected after errors",
				"error_count", count,
				"last_error", err,
			)
		}
	}
}

func (s *RedisStore) clearError() {
	if s.errorCount.Swap(0) > 0 {
		if s.connected.CompareAndSwap(false, true) {
			s.logger.Info("Redis connection restored")
		}
	}
}

func (s *RedisStore) setError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastError = err
	s.lastErrorTime = time.Now()
	s.connected.Store(false)
}

var _ types.SnapshotStore = (*RedisStore)(nil)
