package kairos

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/LavishGent/kairos/internal/cache"
	"github.com/LavishGent/kairos/internal/config"
	"github.com/LavishGent/kairos/internal/logging"
	"github.com/LavishGent/kairos/internal/metrics"
	"github.com/LavishGent/kairos/internal/metrics/datadog"
	promexport "github.com/LavishGent/kairos/internal/metrics/prometheus"
	"github.com/LavishGent/kairos/internal/pipeline"
	"github.com/LavishGent/kairos/internal/resilience"
	"github.com/LavishGent/kairos/internal/snapshot"
	"github.com/LavishGent/kairos/internal/types"
)

// System wires the tiered caches, the resilience manager and the metrics
// publishers behind one lifecycle.
//
//nolint:govet // System struct - logical grouping prioritized over alignment
type System struct {
	config *config.Config
	logger *slog.Logger
	now    func() time.Time

	caches     *cache.Manager
	resilience *resilience.Manager
	pipeline   *pipeline.Pipeline
	snapshots  types.SnapshotStore
	tracker    *metrics.Tracker
	publisher  types.Publisher
	background *metrics.BackgroundPublisher

	mu       sync.Mutex
	started  bool
	shutdown bool
}

// New creates a System with the default configuration.
func New(opts ...Option) (*System, error) {
	return NewFromConfig(config.DefaultConfig(), opts...)
}

// NewFromFile loads a JSON config file, applies KAIROS_* environment
// overrides and creates a System from it.
func NewFromFile(path string, opts ...Option) (*System, error) {
	cfg, err := config.LoadWithEnv(path)
	if err != nil {
		return nil, err
	}
	return NewFromConfig(cfg, opts...)
}

// NewFromConfig creates a System from cfg. Nothing runs in the background
// until Start is called.
func NewFromConfig(cfg *config.Config, opts ...Option) (*System, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	now := o.now
	if now == nil {
		now = time.Now
	}
	logger := logging.New(o.logger, "kairos")

	store := o.snapshots
	if store == nil {
		var err error
		store, err = snapshot.New(cfg.Snapshot, logger, now)
		if err != nil {
			return nil, fmt.Errorf("kairos: snapshot store: %w", err)
		}
	}

	publisher, err := newPublisher(cfg.Metrics, logger, o)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	managerOpts := &types.ManagerOptions{
		Logger:    o.logger,
		Observer:  o.observer,
		Snapshots: store,
		Now:       now,
	}

	caches, err := cache.NewManager(cfg, managerOpts)
	if err != nil {
		_ = publisher.Close()
		_ = store.Close()
		return nil, err
	}

	res := resilience.NewManager(cfg, managerOpts)
	breakerEvent := metrics.BreakerEvent(publisher)
	res.OnStateChange(func(dep string, from, to resilience.State) {
		breakerEvent(dep, from.String(), to.String())
	})

	tracker := metrics.NewTracker(now)

	s := &System{
		config:     cfg,
		logger:     logger,
		now:        now,
		caches:     caches,
		resilience: res,
		snapshots:  store,
		tracker:    tracker,
		publisher:  publisher,
		pipeline: pipeline.New(caches, res, &pipeline.Options{
			Logger:      o.logger,
			Recorder:    tracker,
			Publisher:   publisher,
			FallbackTTL: o.fallbackTTL,
		}),
	}

	if cfg.Metrics.Enabled {
		s.background = metrics.NewBackgroundPublisher(publisher, cfg.Metrics.PublishInterval, s.HealthMetrics, logger)
	}
	return s, nil
}

func newPublisher(cfg config.MetricsConfig, logger *slog.Logger, o *options) (types.Publisher, error) {
	if !cfg.Enabled {
		return metrics.NewMultiPublisher(o.publishers...), nil
	}

	publishers := []types.Publisher{metrics.NewLoggingPublisher(logger)}

	if cfg.DataDog.Enabled {
		dd, err := datadog.NewPublisher(&cfg.DataDog, logger)
		if err != nil {
			return nil, fmt.Errorf("kairos: datadog publisher: %w", err)
		}
		publishers = append(publishers, dd)
	}

	if cfg.Prometheus.Enabled {
		reg := o.registry
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		publishers = append(publishers, promexport.New(reg, cfg.Prometheus.Namespace, logger))
	}

	publishers = append(publishers, o.publishers...)
	return metrics.NewMultiPublisher(publishers...), nil
}

// Start launches the cache janitor, occupancy sampling and the periodic
// metrics publisher. ctx bounds the metrics publisher.
func (s *System) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.shutdown {
		return ErrClosed
	}
	if s.started {
		return nil
	}
	s.started = true

	s.caches.Start()
	if s.background != nil {
		s.background.Start(ctx)
	}
	s.logger.Info("Kairos started",
		"caches", s.caches.Names(),
		"snapshot_backend", s.snapshots.Name(),
		"metrics", s.config.Metrics.Enabled,
	)
	return nil
}

// Shutdown stops background work and releases the snapshot store and
// publishers. The deadline of ctx bounds the wait for background loops.
func (s *System) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if s.shutdown {
		s.mu.Unlock()
		return nil
	}
	s.shutdown = true
	started := s.started
	s.mu.Unlock()

	var errs []error

	if s.background != nil && started {
		s.background.Stop()
	}

	timeout := cache.DefaultShutdownTimeout
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
	}
	if err := s.caches.CloseWithTimeout(timeout); err != nil {
		errs = append(errs, err)
	}
	if err := s.snapshots.Close(); err != nil {
		errs = append(errs, fmt.Errorf("snapshot store: %w", err))
	}
	if err := s.publisher.Close(); err != nil {
		errs = append(errs, fmt.Errorf("publisher: %w", err))
	}

	s.logger.Info("Kairos stopped")
	return errors.Join(errs...)
}

// Get reads key from the named cache.
func (s *System) Get(cache, key string) ([]byte, error) {
	return s.caches.Get(cache, key)
}

// Set writes key to the named cache.
func (s *System) Set(cache, key string, value []byte, opts ...CacheOption) error {
	return s.caches.Set(cache, key, value, opts...)
}

// Invalidate removes key from the named cache.
func (s *System) Invalidate(cache, key string) (bool, error) {
	return s.caches.Invalidate(cache, key)
}

// InvalidatePattern removes keys matching a glob pattern from the named
// cache, or from every cache when cache is empty.
func (s *System) InvalidatePattern(cache, pattern string) (int, error) {
	return s.caches.InvalidatePattern(cache, pattern)
}

// Fetch serves req from the cache or through the protected upstream.
func (s *System) Fetch(ctx context.Context, req Request) (Result, error) {
	return s.pipeline.Fetch(ctx, req)
}

// FetchAll serves several requests concurrently.
func (s *System) FetchAll(ctx context.Context, reqs []Request) ([]Result, error) {
	return s.pipeline.FetchAll(ctx, reqs)
}

// CallProtected runs op against dep under the dependency's breaker, retry
// and bulkhead, without touching the caches.
func (s *System) CallProtected(ctx context.Context, dep string, op Operation, fallback Fallback) ([]byte, error) {
	return s.resilience.CallProtected(ctx, dep, op, fallback)
}

// LastKnownGood returns a fallback serving the last successful response of
// dep for key.
func (s *System) LastKnownGood(dep, key string) Fallback {
	return s.resilience.LastKnownGood(dep, key)
}

// SystemHealth reports the breaker state of every dependency.
func (s *System) SystemHealth() SystemHealth {
	return s.resilience.SystemHealth()
}

// ErrorStats groups tracked dependency errors of the last window.
func (s *System) ErrorStats(window time.Duration) ErrorStats {
	return s.resilience.ErrorStats(window)
}

// GetAllStats returns per-tier statistics for every cache.
func (s *System) GetAllStats() map[string]CacheStats {
	return s.caches.GetAllStats()
}

// AnalyzePerformance classifies every cache and lists recommendations.
func (s *System) AnalyzePerformance() PerformanceAnalysis {
	return s.caches.PerformanceMonitor().AnalyzePerformance()
}

// OptimizationSuggestions flattens the warnings of AnalyzePerformance.
func (s *System) OptimizationSuggestions() []string {
	return s.caches.PerformanceMonitor().OptimizationSuggestions()
}

// OptimizeMemory sweeps expired entries and trims L2 when over budget.
func (s *System) OptimizeMemory() OptimizeResult {
	return s.caches.OptimizeMemory()
}

// ClearAll empties every cache and resets their counters.
func (s *System) ClearAll() {
	s.caches.ClearAll()
}

// BulkheadStats reports the call slots of every dependency used so far.
func (s *System) BulkheadStats() map[string]BulkheadStats {
	return s.resilience.BulkheadStats()
}

// FetchStats summarizes pipeline fetches by source.
func (s *System) FetchStats() FetchStats {
	return s.tracker.Snapshot()
}

// HealthMetrics assembles the batch handed to metrics publishers.
func (s *System) HealthMetrics() *PublisherHealthMetrics {
	analysis := s.AnalyzePerformance()
	health := s.SystemHealth()
	fetches := s.FetchStats()
	return &PublisherHealthMetrics{
		Timestamp: s.now(),
		Caches:    s.GetAllStats(),
		Analysis:  &analysis,
		System:    &health,
		Fetches:   &fetches,
		Bulkheads: s.BulkheadStats(),
	}
}

// PublishNow hands a health batch to the publishers immediately.
func (s *System) PublishNow() {
	if s.background != nil {
		s.background.PublishNow()
		return
	}
	s.publisher.PublishHealthMetrics(s.HealthMetrics())
}

// Caches exposes the cache manager.
func (s *System) Caches() *cache.Manager {
	return s.caches
}

// Resilience exposes the resilience manager.
func (s *System) Resilience() *resilience.Manager {
	return s.resilience
}

// Config returns the configuration the System was built from.
func (s *System) Config() *config.Config {
	return s.config
}

// DefaultConfig returns the production defaults, ready to be modified.
func DefaultConfig() *config.Config {
	return config.DefaultConfig()
}

// TestConfig returns tiny caches and millisecond delays for unit tests.
func TestConfig() *config.Config {
	return config.ForTesting()
}
