package types

import (
	"context"
	"time"
)

// CacheObserver receives tier events from tiered caches.
type CacheObserver interface {
	RecordL1Hit(cache string)
	RecordL1Miss(cache string)
	RecordL2Hit(cache string)
	RecordL2Miss(cache string)
	RecordPromotion(cache string)
	RecordOverflow(cache string)
	RecordEviction(cache string)
	RecordMemory(cache string, bytes int64)
}

// Snapshot is a last-known-good value for a dependency.
type Snapshot struct {
	Value   []byte
	SavedAt time.Time
}

// Age returns how old the snapshot is relative to now.
func (s Snapshot) Age(now time.Time) time.Duration {
	return now.Sub(s.SavedAt)
}

// SnapshotStore persists last-known-good values keyed by dependency.
type SnapshotStore interface {
	Name() string
	Save(ctx context.Context, key string, value []byte) error
	Load(ctx context.Context, key string) (Snapshot, error)
	Delete(ctx context.Context, key string) error
	Close() error
}

// Publisher exports metrics to an external sink.
type Publisher interface {
	Gauge(name string, value float64, tags ...string)
	Incr(name string, tags ...string)
	Count(name string, value int64, tags ...string)
	Histogram(name string, value float64, tags ...string)
	Timing(name string, duration time.Duration, tags ...string)
	Event(title, text string, alertType string, tags ...string)
	PublishHealthMetrics(metrics *PublisherHealthMetrics)
	Close() error
}

// PublisherHealthMetrics is the periodic batch handed to publishers.
//
//nolint:govet // Metrics struct - logical grouping prioritized for readability
type PublisherHealthMetrics struct {
	Timestamp time.Time
	Caches    map[string]CacheStats
	Analysis  *PerformanceAnalysis
	System    *SystemHealth
	Fetches   *FetchStats
	Bulkheads map[string]BulkheadStats
}

type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}
