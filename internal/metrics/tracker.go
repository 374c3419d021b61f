// Package metrics tracks fetch outcomes and exports cache and dependency
// health to external sinks.
package metrics

import (
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/LavishGent/kairos/internal/types"
)

const (
	defaultLatencyBufferSize = 10000
)

// Recorder receives the outcome of every pipeline fetch.
type Recorder interface {
	RecordFetch(source string, latency time.Duration, err error)
	Snapshot() types.FetchStats
	Reset()
}

// Tracker counts fetches per source and keeps recent latencies in a ring
// buffer for percentile estimates.
type Tracker struct {
	now func() time.Time

	total  atomic.Int64
	errors atomic.Int64

	sourcesMu sync.RWMutex
	sources   map[string]*atomic.Int64

	latencyMu     sync.RWMutex
	latencyBuffer []time.Duration
	latencyIndex  int
	latencyCount  int
}

// NewTracker creates a tracker. now may be nil.
func NewTracker(now func() time.Time) *Tracker {
	if now == nil {
		now = time.Now
	}
	return &Tracker{
		now:           now,
		sources:       make(map[string]*atomic.Int64),
		latencyBuffer: make([]time.Duration, defaultLatencyBufferSize),
	}
}

// RecordFetch counts one fetch served by source.
func (t *Tracker) RecordFetch(source string, latency time.Duration, err error) {
	t.total.Add(1)
	if err != nil {
		t.errors.Add(1)
	}
	t.counter(source).Add(1)
	t.recordLatency(latency)
}

func (t *Tracker) counter(source string) *atomic.Int64 {
	t.sourcesMu.RLock()
	c, ok := t.sources[source]
	t.sourcesMu.RUnlock()
	if ok {
		return c
	}

	t.sourcesMu.Lock()
	defer t.sourcesMu.Unlock()
	if c, ok = t.sources[source]; ok {
		return c
	}
	c = new(atomic.Int64)
	t.sources[source] = c
	return c
}

// recordLatency is O(1) and allocation free.
func (t *Tracker) recordLatency(latency time.Duration) {
	t.latencyMu.Lock()
	t.latencyBuffer[t.latencyIndex] = latency
	t.latencyIndex = (t.latencyIndex + 1) % len(t.latencyBuffer)
	if t.latencyCount < len(t.latencyBuffer) {
		t.latencyCount++
	}
	t.latencyMu.Unlock()
}

// Snapshot returns the current fetch statistics.
func (t *Tracker) Snapshot() types.FetchStats {
	t.latencyMu.RLock()
	count := t.latencyCount
	latencyCopy := make([]time.Duration, count)
	if count > 0 {
		if count < len(t.latencyBuffer) {
			copy(latencyCopy, t.latencyBuffer[:count])
		} else {
			firstPart := len(t.latencyBuffer) - t.latencyIndex
			copy(latencyCopy[:firstPart], t.latencyBuffer[t.latencyIndex:])
			copy(latencyCopy[firstPart:], t.latencyBuffer[:t.latencyIndex])
		}
	}
	t.latencyMu.RUnlock()

	stats := types.FetchStats{
		Timestamp: t.now(),
		Total:     t.total.Load(),
		Errors:    t.errors.Load(),
		BySource:  make(map[string]int64),
	}

	t.sourcesMu.RLock()
	for name, c := range t.sources {
		stats.BySource[name] = c.Load()
	}
	t.sourcesMu.RUnlock()

	if len(latencyCopy) > 0 {
		slices.Sort(latencyCopy)
		stats.AvgLatencyMs = millis(avgDuration(latencyCopy))
		stats.P50LatencyMs = millis(percentile(latencyCopy, 50))
		stats.P95LatencyMs = millis(percentile(latencyCopy, 95))
		stats.P99LatencyMs = millis(percentile(latencyCopy, 99))
	}

	return stats
}

// Reset clears all counters and latencies.
func (t *Tracker) Reset() {
	t.total.Store(0)
	t.errors.Store(0)

	t.sourcesMu.Lock()
	t.sources = make(map[string]*atomic.Int64)
	t.sourcesMu.Unlock()

	t.latencyMu.Lock()
	t.latencyIndex = 0
	t.latencyCount = 0
	t.latencyMu.Unlock()
}

func millis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

func avgDuration(durations []time.Duration) time.Duration {
	if len(durations) == 0 {
		return 0
	}
	var total time.Duration
	for _, d := range durations {
		total += d
	}
	return total / time.Duration(len(durations))
}

// percentile expects sorted input.
func percentile(sorted []time.Duration, p int) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := (len(sorted) - 1) * p / 100
	return sorted[idx]
}

var _ Recorder = (*Tracker)(nil)
