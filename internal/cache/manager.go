// Package cache provides the named tiered caches behind the dashboard feeds.
package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/LavishGent/kairos/internal/codec"
	"github.com/LavishGent/kairos/internal/config"
	"github.com/LavishGent/kairos/internal/logging"
	"github.com/LavishGent/kairos/internal/monitor"
	"github.com/LavishGent/kairos/internal/types"
)

// DefaultShutdownTimeout is the default timeout for shutting down the cache manager.
const DefaultShutdownTimeout = 30 * time.Second

// OptimizeResult reports what OptimizeMemory removed.
type OptimizeResult struct {
	Expired     int
	Evicted     int
	BytesBefore int64
	BytesAfter  int64
}

// Manager is a registry of named tiered caches sharing one performance monitor.
//
//nolint:govet // Manager struct - logical grouping prioritized over alignment
type Manager struct {
	config       *config.Config
	logger       *slog.Logger
	monitor      *monitor.Monitor
	observer     types.CacheObserver
	keyValidator *types.KeyValidator
	now          func() time.Time

	mu     sync.RWMutex
	caches map[string]*TieredCache

	shutdownCtx    context.Context
	shutdownCancel context.CancelFunc
	bgWg           sync.WaitGroup
	bgMu           sync.Mutex
	closed         atomic.Bool
}

// NewManager creates one tiered cache per entry in cfg.Caches.
func NewManager(cfg *config.Config, opts *types.ManagerOptions) (*Manager, error) {
	if opts == nil {
		opts = &types.ManagerOptions{}
	}
	logger := logging.New(opts.Logger, "cache-manager")

	now := opts.Now
	if now == nil {
		now = time.Now
	}

	shutdownCtx, shutdownCancel := context.WithCancel(context.Background())

	m := &Manager{
		config:         cfg,
		logger:         logger,
		now:            now,
		caches:         make(map[string]*TieredCache, len(cfg.Caches)),
		shutdownCtx:    shutdownCtx,
		shutdownCancel: shutdownCancel,
	}

	m.monitor = monitor.New(cfg.Monitor, logger, now)
	m.monitor.Attach(m)
	m.observer = m.monitor
	if opts.Observer != nil {
		m.observer = multiObserver{m.monitor, opts.Observer}
	}

	if cfg.KeyValidation.Enabled {
		m.keyValidator = types.NewKeyValidator(cfg.KeyValidation.ToTypesConfig())
	}

	names := make([]string, 0, len(cfg.Caches))
	for name := range cfg.Caches {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if _, err := m.Register(name, cfg.Caches[name]); err != nil {
			shutdownCancel()
			return nil, err
		}
	}

	return m, nil
}

// Register adds a named cache. Registering an existing name fails.
func (m *Manager) Register(name string, cc config.CacheConfig) (*TieredCache, error) {
	if m.closed.Load() {
		return nil, types.ErrClosed
	}

	if err := types.ValidateName("cache", name); err != nil {
		return nil, err
	}

	c, err := codec.ByName(cc.Codec)
	if err != nil {
		return nil, fmt.Errorf("cache %s: %w", name, err)
	}

	tc, err := NewTieredCache(TieredOptions{
		Name:          name,
		L1Size:        cc.L1Size,
		L2Size:        cc.L2Size,
		DefaultTTL:    cc.TTL,
		OverflowRatio: m.config.Monitor.OverflowRatio,
		Codec:         c,
		Observer:      m.observer,
		Logger:        m.logger,
		Now:           m.now,
	})
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.caches[name]; exists {
		return nil, fmt.Errorf("cache %s: already registered", name)
	}
	m.caches[name] = tc

	m.logger.Debug("Registered cache",
		"cache", name,
		"l1_size", cc.L1Size,
		"l2_size", cc.L2Size,
		"ttl", cc.TTL,
		"codec", c.Name(),
	)
	return tc, nil
}

// Cache returns the named cache or ErrUnknownCache.
func (m *Manager) Cache(name string) (*TieredCache, error) {
	m.mu.RLock()
	tc, ok := m.caches[name]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", types.ErrUnknownCache, name)
	}
	return tc, nil
}

// Names lists registered caches in sorted order.
func (m *Manager) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(m.caches))
	for name := range m.caches {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Get retrieves a value from the named cache.
func (m *Manager) Get(name, key string) ([]byte, error) {
	tc, err := m.lookup(name, key)
	if err != nil {
		return nil, err
	}
	return tc.Get(key)
}

// Set stores a value in the named cache.
func (m *Manager) Set(name, key string, value []byte, opts ...types.Option) error {
	tc, err := m.lookup(name, key)
	if err != nil {
		return err
	}
	return tc.Set(key, value, opts...)
}

// Invalidate removes key from the named cache.
func (m *Manager) Invalidate(name, key string) (bool, error) {
	tc, err := m.lookup(name, key)
	if err != nil {
		return false, err
	}
	return tc.Invalidate(key), nil
}

// InvalidatePattern removes matching keys from the named cache, or from
// every cache when name is empty.
func (m *Manager) InvalidatePattern(name, pattern string) (int, error) {
	if m.closed.Load() {
		return 0, types.ErrClosed
	}

	if name != "" {
		tc, err := m.Cache(name)
		if err != nil {
			return 0, err
		}
		return tc.InvalidatePattern(pattern), nil
	}

	removed := 0
	for _, tc := range m.all() {
		removed += tc.InvalidatePattern(pattern)
	}
	m.logger.Debug("Invalidated by pattern", "pattern", pattern, "removed", removed)
	return removed, nil
}

// GetAllStats returns tier occupancy and performance counters per cache.
func (m *Manager) GetAllStats() map[string]types.CacheStats {
	out := make(map[string]types.CacheStats)
	for _, tc := range m.all() {
		s := tc.Stats()
		s.Performance = m.monitor.Snapshot(tc.Name())
		out[tc.Name()] = s
	}
	return out
}

// ClearAll empties every cache and resets performance counters.
func (m *Manager) ClearAll() {
	for _, tc := range m.all() {
		tc.Clear()
	}
	m.monitor.Reset()
	m.logger.Info("All caches cleared")
}

// OptimizeMemory sweeps expired entries from every cache. If the combined
// footprint still exceeds the monitor's memory budget, it evicts least
// recently used L2 entries, largest caches first, until under budget.
// Performance counters are reset afterwards.
func (m *Manager) OptimizeMemory() OptimizeResult {
	caches := m.all()
	var res OptimizeResult

	for _, tc := range caches {
		res.BytesBefore += tc.MemoryBytes()
		res.Expired += tc.SweepExpired()
	}

	total := int64(0)
	for _, tc := range caches {
		total += tc.MemoryBytes()
	}

	if budget := m.config.Monitor.MaxMemoryBytes; budget > 0 && total > budget {
		sort.Slice(caches, func(i, j int) bool {
			return caches[i].MemoryBytes() > caches[j].MemoryBytes()
		})
		for _, tc := range caches {
			if total <= budget {
				break
			}
			before := tc.MemoryBytes()
			target := before - (total - budget)
			if target < 0 {
				target = 0
			}
			res.Evicted += tc.TrimL2(target)
			total -= before - tc.MemoryBytes()
		}
	}
	res.BytesAfter = total

	m.monitor.Reset()
	m.logger.Info("Memory optimization completed",
		"expired", res.Expired,
		"evicted", res.Evicted,
		"bytes_before", res.BytesBefore,
		"bytes_after", res.BytesAfter,
	)
	return res
}

// SampleOccupancy feeds the current L1 occupancy of every cache to the monitor.
func (m *Manager) SampleOccupancy() {
	for _, tc := range m.all() {
		m.monitor.SampleOccupancy(tc.Name(), tc.Stats().L1)
	}
}

// PerformanceMonitor returns the monitor shared by all caches.
func (m *Manager) PerformanceMonitor() *monitor.Monitor {
	return m.monitor
}

// CheckInvariants verifies every cache.
func (m *Manager) CheckInvariants() error {
	var errs []error
	for _, tc := range m.all() {
		if err := tc.CheckInvariants(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Start launches the expiry sweeper and occupancy sampler. Intervals of
// zero disable the corresponding loop.
func (m *Manager) Start() {
	if d := m.config.SweepInterval; d > 0 {
		m.runEvery(d, func() {
			n := 0
			for _, tc := range m.all() {
				n += tc.SweepExpired()
			}
			if n > 0 {
				m.logger.Debug("Periodic sweep removed expired entries", "removed", n)
			}
		})
	}
	if d := m.config.Monitor.SampleInterval; d > 0 {
		m.runEvery(d, m.SampleOccupancy)
	}
}

// Close stops background loops using the default shutdown timeout.
func (m *Manager) Close() error {
	return m.CloseWithTimeout(DefaultShutdownTimeout)
}

// CloseWithTimeout stops background loops and clears every cache.
// If loops don't stop within the timeout, it returns ErrShutdownTimeout.
func (m *Manager) CloseWithTimeout(timeout time.Duration) error {
	m.bgMu.Lock()
	if m.closed.Swap(true) {
		m.bgMu.Unlock()
		return nil
	}
	m.shutdownCancel()
	m.bgMu.Unlock()

	m.logger.Info("Closing cache manager, waiting for background operations", "timeout", timeout)

	done := make(chan struct{})
	go func() {
		m.bgWg.Wait()
		close(done)
	}()

	var errs []error
	select {
	case <-done:
	case <-time.After(timeout):
		m.logger.Warn("Shutdown timeout exceeded, proceeding with close", "timeout", timeout)
		errs = append(errs, types.ErrShutdownTimeout)
	}

	for _, tc := range m.all() {
		tc.Clear()
	}

	return errors.Join(errs...)
}

// runEvery runs fn on a ticker in a goroutine tracked for graceful shutdown.
// The goroutine will not be started if the manager is already closed.
func (m *Manager) runEvery(interval time.Duration, fn func()) {
	m.bgMu.Lock()
	if m.closed.Load() {
		m.bgMu.Unlock()
		return
	}
	m.bgWg.Add(1)
	m.bgMu.Unlock()

	go func() {
		defer m.bgWg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-m.shutdownCtx.Done():
				return
			case <-ticker.C:
				fn()
			}
		}
	}()
}

func (m *Manager) lookup(name, key string) (*TieredCache, error) {
	if m.closed.Load() {
		return nil, types.ErrClosed
	}
	if m.keyValidator != nil {
		if err := m.keyValidator.Validate(key); err != nil {
			return nil, err
		}
	}
	return m.Cache(name)
}

func (m *Manager) all() []*TieredCache {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*TieredCache, 0, len(m.caches))
	for _, tc := range m.caches {
		out = append(out, tc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

// multiObserver fans tier events out to several observers.
type multiObserver []types.CacheObserver

func (o multiObserver) RecordL1Hit(c string) {
	for _, x := range o {
		x.RecordL1Hit(c)
	}
}

func (o multiObserver) RecordL1Miss(c string) {
	for _, x := range o {
		x.RecordL1Miss(c)
	}
}

func (o multiObserver) RecordL2Hit(c string) {
	for _, x := range o {
		x.RecordL2Hit(c)
	}
}

func (o multiObserver) RecordL2Miss(c string) {
	for _, x := range o {
		x.RecordL2Miss(c)
	}
}

func (o multiObserver) RecordPromotion(c string) {
	for _, x := range o {
		x.RecordPromotion(c)
	}
}

func (o multiObserver) RecordOverflow(c string) {
	for _, x := range o {
		x.RecordOverflow(c)
	}
}

func (o multiObserver) RecordEviction(c string) {
	for _, x := range o {
		x.RecordEviction(c)
	}
}

func (o multiObserver) RecordMemory(c string, bytes int64) {
	for _, x := range o {
		x.RecordMemory(c, bytes)
	}
}

var _ monitor.StatsSource = (*Manager)(nil)
