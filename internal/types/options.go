package types

import "time"

// CacheOptions holds per-call options for cache writes.
type CacheOptions struct {
	TTL time.Duration
}

// Option is a functional option for configuring cache operations.
type Option func(*CacheOptions)

// ApplyOptions applies functional options to create CacheOptions.
// A zero TTL means "use the cache's default TTL".
func ApplyOptions(opts ...Option) *CacheOptions {
	options := &CacheOptions{}
	for _, opt := range opts {
		opt(options)
	}
	return options
}

// WithTTL overrides the cache's default TTL for one write.
func WithTTL(ttl time.Duration) Option {
	return func(o *CacheOptions) {
		o.TTL = ttl
	}
}

// ManagerOptions holds dependencies injected into the managers.
type ManagerOptions struct {
	// Logger is the structured logger to use.
	Logger Logger

	// Observer receives tier events. Defaults to the manager's own monitor.
	Observer CacheObserver

	// Snapshots stores last-known-good values for fallbacks.
	Snapshots SnapshotStore

	// Now overrides the clock. Used by tests.
	Now func() time.Time
}
