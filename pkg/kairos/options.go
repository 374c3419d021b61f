package kairos

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/LavishGent/kairos/internal/types"
)

type options struct {
	logger      Logger
	observer    types.CacheObserver
	snapshots   types.SnapshotStore
	publishers  []types.Publisher
	registry    prometheus.Registerer
	now         func() time.Time
	fallbackTTL time.Duration
}

// Option configures a System.
type Option func(*options)

// CacheOption configures a single cache write.
type CacheOption = types.Option

// WithTTL overrides the cache's default TTL for one write. NoExpiry keeps
// the entry until it is evicted.
func WithTTL(ttl time.Duration) CacheOption {
	return types.WithTTL(ttl)
}

func WithLogger(logger Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithObserver receives every tier event in addition to the built-in
// performance monitor.
func WithObserver(observer types.CacheObserver) Option {
	return func(o *options) {
		o.observer = observer
	}
}

// WithSnapshotStore replaces the store built from the snapshot config.
// The System closes it on Shutdown.
func WithSnapshotStore(store SnapshotStore) Option {
	return func(o *options) {
		o.snapshots = store
	}
}

// WithPublisher adds a metrics publisher. Added publishers receive metrics
// even when the metrics config is disabled.
func WithPublisher(publisher Publisher) Option {
	return func(o *options) {
		o.publishers = append(o.publishers, publisher)
	}
}

// WithPrometheusRegistry registers Prometheus metrics with reg instead of
// the default registry.
func WithPrometheusRegistry(reg prometheus.Registerer) Option {
	return func(o *options) {
		o.registry = reg
	}
}

// WithClock overrides time.Now. Used by tests.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

// WithFallbackTTL sets how long fallback values stay cached. Negative
// disables caching them.
func WithFallbackTTL(ttl time.Duration) Option {
	return func(o *options) {
		o.fallbackTTL = ttl
	}
}
