// Package monitor tracks tiered cache performance and classifies cache health.
package monitor

import (
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/LavishGent/kairos/internal/config"
	"github.com/LavishGent/kairos/internal/types"
)

// StatsSource provides tier occupancy for every registered cache.
type StatsSource interface {
	GetAllStats() map[string]types.CacheStats
}

type counters struct {
	l1Hits     atomic.Int64
	l1Misses   atomic.Int64
	l2Hits     atomic.Int64
	l2Misses   atomic.Int64
	promotions atomic.Int64
	overflows  atomic.Int64
	evictions  atomic.Int64
	memory     atomic.Int64
	since      atomic.Int64 // unix nanos

	samplesMu sync.Mutex
	samples   []float64
	sampleIdx int
	sampleN   int
}

// Monitor observes hit/miss and tier events across caches. It implements
// types.CacheObserver; all counter updates are lock-free.
type Monitor struct {
	cfg    config.MonitorConfig
	logger *slog.Logger
	now    func() time.Time

	mu     sync.RWMutex
	caches map[string]*counters
	source StatsSource
}

// New creates a monitor. now may be nil.
func New(cfg config.MonitorConfig, logger *slog.Logger, now func() time.Time) *Monitor {
	if logger == nil {
		logger = slog.Default()
	}
	if now == nil {
		now = time.Now
	}
	if cfg.SampleWindow <= 0 {
		cfg.SampleWindow = 30
	}
	if cfg.SustainedSamples <= 0 {
		cfg.SustainedSamples = 5
	}
	if cfg.HighOccupancyRatio <= 0 {
		cfg.HighOccupancyRatio = 0.9
	}
	return &Monitor{
		cfg:    cfg,
		logger: logger.With("component", "cache-monitor"),
		now:    now,
		caches: make(map[string]*counters),
	}
}

// Attach sets the source used by AnalyzePerformance.
func (m *Monitor) Attach(source StatsSource) {
	m.mu.Lock()
	m.source = source
	m.mu.Unlock()
}

func (m *Monitor) counters(name string) *counters {
	m.mu.RLock()
	c, ok := m.caches[name]
	m.mu.RUnlock()
	if ok {
		return c
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok = m.caches[name]; ok {
		return c
	}
	c = &counters{samples: make([]float64, m.cfg.SampleWindow)}
	c.since.Store(m.now().UnixNano())
	m.caches[name] = c
	return c
}

func (m *Monitor) RecordL1Hit(cache string)     { m.counters(cache).l1Hits.Add(1) }
func (m *Monitor) RecordL1Miss(cache string)    { m.counters(cache).l1Misses.Add(1) }
func (m *Monitor) RecordL2Hit(cache string)     { m.counters(cache).l2Hits.Add(1) }
func (m *Monitor) RecordL2Miss(cache string)    { m.counters(cache).l2Misses.Add(1) }
func (m *Monitor) RecordPromotion(cache string) { m.counters(cache).promotions.Add(1) }
func (m *Monitor) RecordOverflow(cache string)  { m.counters(cache).overflows.Add(1) }
func (m *Monitor) RecordEviction(cache string)  { m.counters(cache).evictions.Add(1) }

func (m *Monitor) RecordMemory(cache string, bytes int64) {
	m.counters(cache).memory.Store(bytes)
}

// SampleOccupancy records the current L1 pressure of a cache into its
// sampling window. Pressure is measured against the overflow threshold, since
// overflow keeps a busy L1 just below it.
func (m *Monitor) SampleOccupancy(cache string, l1 types.TierStats) {
	c := m.counters(cache)
	c.samplesMu.Lock()
	c.samples[c.sampleIdx] = l1.Pressure()
	c.sampleIdx = (c.sampleIdx + 1) % len(c.samples)
	if c.sampleN < len(c.samples) {
		c.sampleN++
	}
	c.samplesMu.Unlock()
}

// highOccupancySamples counts samples in the window at or above the
// high-occupancy ratio.
func (m *Monitor) highOccupancySamples(cache string) int {
	c := m.counters(cache)
	c.samplesMu.Lock()
	defer c.samplesMu.Unlock()

	n := 0
	for i := 0; i < c.sampleN; i++ {
		if c.samples[i] >= m.cfg.HighOccupancyRatio {
			n++
		}
	}
	return n
}

// Snapshot returns the counters of one cache since its last reset.
func (m *Monitor) Snapshot(cache string) types.PerformanceSnapshot {
	c := m.counters(cache)
	return types.PerformanceSnapshot{
		Cache:       cache,
		Since:       time.Unix(0, c.since.Load()),
		L1Hits:      c.l1Hits.Load(),
		L1Misses:    c.l1Misses.Load(),
		L2Hits:      c.l2Hits.Load(),
		L2Misses:    c.l2Misses.Load(),
		Promotions:  c.promotions.Load(),
		Overflows:   c.overflows.Load(),
		Evictions:   c.evictions.Load(),
		MemoryBytes: c.memory.Load(),
	}
}

// Snapshots returns counters for every cache seen so far, sorted by name.
func (m *Monitor) Snapshots() []types.PerformanceSnapshot {
	m.mu.RLock()
	names := make([]string, 0, len(m.caches))
	for name := range m.caches {
		names = append(names, name)
	}
	m.mu.RUnlock()
	sort.Strings(names)

	out := make([]types.PerformanceSnapshot, 0, len(names))
	for _, name := range names {
		out = append(out, m.Snapshot(name))
	}
	return out
}

// Reset zeroes the counters and sample windows of every cache.
// Memory gauges are kept since they describe current state, not history.
func (m *Monitor) Reset() {
	m.mu.RLock()
	defer m.mu.RUnlock()

	now := m.now().UnixNano()
	for _, c := range m.caches {
		c.l1Hits.Store(0)
		c.l1Misses.Store(0)
		c.l2Hits.Store(0)
		c.l2Misses.Store(0)
		c.promotions.Store(0)
		c.overflows.Store(0)
		c.evictions.Store(0)
		c.since.Store(now)

		c.samplesMu.Lock()
		c.sampleIdx = 0
		c.sampleN = 0
		c.samplesMu.Unlock()
	}
	m.logger.Debug("Performance counters reset")
}

var _ types.CacheObserver = (*Monitor)(nil)
