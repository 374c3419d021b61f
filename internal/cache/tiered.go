package cache

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/LavishGent/kairos/internal/codec"
	"github.com/LavishGent/kairos/internal/config"
	"github.com/LavishGent/kairos/internal/types"
)

// NoExpiry passed as a TTL stores an entry that never expires.
const NoExpiry time.Duration = -1

const (
	defaultOverflowRatio = 0.8
	defaultSweepEvery    = 256
)

// TieredOptions configures a TieredCache.
//
//nolint:govet // Options struct - logical grouping prioritized over alignment
type TieredOptions struct {
	Name          string
	L1Size        int
	L2Size        int
	DefaultTTL    time.Duration
	OverflowRatio float64
	Codec         codec.Codec
	Observer      types.CacheObserver
	Logger        *slog.Logger
	Now           func() time.Time
	// SweepEvery runs a full expiry sweep every N Get/Set calls. Negative disables.
	SweepEvery int
}

// TieredCache is a two-tier cache. L1 holds plain values; L2 holds values
// compressed with the configured codec. A key lives in at most one tier.
//
// When L1 reaches the overflow threshold after a write, its least recently
// used entries move to L2. An L2 hit promotes the entry back to L1 unless
// that would push out a more recently used L1 entry.
type TieredCache struct {
	name       string
	defaultTTL time.Duration
	threshold  int
	sweepEvery int

	codec    codec.Codec
	observer types.CacheObserver
	logger   *slog.Logger
	now      func() time.Time

	mu  sync.Mutex
	l1  *tier
	l2  *tier
	ops int
}

// NewTieredCache creates an empty tiered cache.
func NewTieredCache(opts TieredOptions) (*TieredCache, error) {
	if opts.L1Size <= 0 || opts.L2Size <= 0 {
		return nil, fmt.Errorf("cache %s: tier sizes must be positive (l1=%d, l2=%d)", opts.Name, opts.L1Size, opts.L2Size)
	}
	if opts.OverflowRatio <= 0 || opts.OverflowRatio > 1 {
		opts.OverflowRatio = defaultOverflowRatio
	}
	if opts.Codec == nil {
		c, err := codec.ByName("")
		if err != nil {
			return nil, err
		}
		opts.Codec = c
	}
	if opts.Observer == nil {
		opts.Observer = noopObserver{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.SweepEvery == 0 {
		opts.SweepEvery = defaultSweepEvery
	}

	l1, err := newTier(opts.L1Size)
	if err != nil {
		return nil, err
	}
	l2, err := newTier(opts.L2Size)
	if err != nil {
		return nil, err
	}

	return &TieredCache{
		name:       opts.Name,
		defaultTTL: opts.DefaultTTL,
		threshold:  config.OverflowThreshold(opts.L1Size, opts.OverflowRatio),
		sweepEvery: opts.SweepEvery,
		codec:      opts.Codec,
		observer:   opts.Observer,
		logger:     opts.Logger.With("cache", opts.Name),
		now:        opts.Now,
		l1:         l1,
		l2:         l2,
	}, nil
}

// Name returns the cache name.
func (c *TieredCache) Name() string {
	return c.name
}

// Get returns a copy of the value stored under key, or ErrCacheMiss.
func (c *TieredCache) Get(key string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	c.tick(now)

	if it, ok := c.l1.get(key); ok {
		if it.entry.IsExpired(now) {
			c.l1.remove(key)
			c.recordMemory()
			c.observer.RecordL1Miss(c.name)
			c.observer.RecordL2Miss(c.name)
			return nil, types.ErrCacheMiss
		}
		it.entry.LastAccess = now
		it.entry.AccessCount++
		c.observer.RecordL1Hit(c.name)
		return slices.Clone(it.entry.Value), nil
	}
	c.observer.RecordL1Miss(c.name)

	it, ok := c.l2.peek(key)
	if !ok {
		c.observer.RecordL2Miss(c.name)
		return nil, types.ErrCacheMiss
	}
	if it.entry.IsExpired(now) {
		c.l2.remove(key)
		c.recordMemory()
		c.observer.RecordL2Miss(c.name)
		return nil, types.ErrCacheMiss
	}

	value, err := c.codec.Decode(it.compressed)
	if err != nil {
		c.l2.remove(key)
		c.recordMemory()
		c.observer.RecordL2Miss(c.name)
		c.logger.Warn("Dropping undecodable L2 entry", "key", key, "codec", c.codec.Name(), "error", err)
		return nil, types.NewCacheError("Get", c.name, key, types.TierL2.String(),
			fmt.Errorf("%w: %v", types.ErrCodecFailed, err))
	}
	c.observer.RecordL2Hit(c.name)

	prevAccess := it.entry.LastAccess
	it.entry.LastAccess = now
	it.entry.AccessCount++
	c.promote(it, value, prevAccess)

	return value, nil
}

// Set stores a copy of value in L1, then overflows L1 into L2 if needed.
// A zero TTL uses the cache default; NoExpiry disables expiry.
func (c *TieredCache) Set(key string, value []byte, opts ...types.Option) error {
	options := types.ApplyOptions(opts...)
	ttl := options.TTL
	switch {
	case ttl == 0:
		ttl = c.defaultTTL
	case ttl < 0:
		ttl = 0
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	c.tick(now)

	c.l2.remove(key)

	if _, exists := c.l1.peek(key); !exists && c.l1.full() {
		if victim, ok := c.l1.victim(key); ok {
			c.l1.remove(victim.entry.Key)
			c.demote(victim)
		}
	}

	c.l1.add(&item{entry: types.CacheEntry{
		Key:        key,
		Value:      slices.Clone(value),
		CreatedAt:  now,
		LastAccess: now,
		TTL:        ttl,
		Size:       len(value),
	}})

	c.overflow(key)
	c.recordMemory()
	return nil
}

// Contains reports whether a live entry exists in either tier. It does not
// count as an access.
func (c *TieredCache) Contains(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if it, ok := c.l1.peek(key); ok {
		return !it.entry.IsExpired(now)
	}
	if it, ok := c.l2.peek(key); ok {
		return !it.entry.IsExpired(now)
	}
	return false
}

// TierOf reports which tier currently holds key, or 0 if none does.
func (c *TieredCache) TierOf(key string) types.Tier {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.l1.peek(key); ok {
		return types.TierL1
	}
	if _, ok := c.l2.peek(key); ok {
		return types.TierL2
	}
	return 0
}

// Keys lists the keys of one tier from least to most recently used.
func (c *TieredCache) Keys(t types.Tier) []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch t {
	case types.TierL1:
		return c.l1.keys()
	case types.TierL2:
		return c.l2.keys()
	default:
		return nil
	}
}

// Invalidate removes key from whichever tier holds it.
func (c *TieredCache) Invalidate(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, inL1 := c.l1.remove(key)
	_, inL2 := c.l2.remove(key)
	if inL1 || inL2 {
		c.recordMemory()
	}
	return inL1 || inL2
}

// InvalidatePattern removes every key matching pattern and returns the count.
func (c *TieredCache) InvalidatePattern(pattern string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for _, t := range []*tier{c.l1, c.l2} {
		for _, k := range t.keys() {
			if matchPattern(k, pattern) {
				t.remove(k)
				removed++
			}
		}
	}
	if removed > 0 {
		c.recordMemory()
	}
	return removed
}

// Clear empties both tiers.
func (c *TieredCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.l1.purge()
	c.l2.purge()
	c.recordMemory()
}

// SweepExpired removes every expired entry and returns how many were dropped.
func (c *TieredCache) SweepExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sweepLocked(c.now())
}

// TrimL2 evicts least recently used L2 entries until the cache's total
// footprint is at most maxBytes or L2 is empty.
func (c *TieredCache) TrimL2(maxBytes int64) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	evicted := 0
	for c.l1.bytes+c.l2.bytes > maxBytes && c.l2.count() > 0 {
		victim, _ := c.l2.victim("")
		c.l2.remove(victim.entry.Key)
		c.observer.RecordEviction(c.name)
		evicted++
	}
	if evicted > 0 {
		c.recordMemory()
	}
	return evicted
}

// MemoryBytes returns the approximate footprint of both tiers.
func (c *TieredCache) MemoryBytes() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.l1.bytes + c.l2.bytes
}

// Stats returns tier occupancy. Performance counters are filled in by the Manager.
func (c *TieredCache) Stats() types.CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	l1 := c.l1.stats()
	l1.Threshold = c.threshold
	return types.CacheStats{
		Name:       c.name,
		DefaultTTL: c.defaultTTL,
		L1:         l1,
		L2:         c.l2.stats(),
	}
}

// CheckInvariants verifies tier capacities and that no key is in both tiers.
func (c *TieredCache) CheckInvariants() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var errs []error
	if c.l1.count() > c.l1.capacity {
		errs = append(errs, fmt.Errorf("%w: %s l1 holds %d of %d", types.ErrCapacityInvariant, c.name, c.l1.count(), c.l1.capacity))
	}
	if c.l2.count() > c.l2.capacity {
		errs = append(errs, fmt.Errorf("%w: %s l2 holds %d of %d", types.ErrCapacityInvariant, c.name, c.l2.count(), c.l2.capacity))
	}
	for _, k := range c.l1.keys() {
		if _, ok := c.l2.peek(k); ok {
			errs = append(errs, fmt.Errorf("%w: %s key %q in both tiers", types.ErrCapacityInvariant, c.name, k))
		}
	}
	return errors.Join(errs...)
}

// promote moves an L2 hit into L1. If L1 is full, its least recently used
// entry is demoted only when it was not used more recently than the
// promoted entry; otherwise the promotion is skipped.
// Must be called with c.mu held.
func (c *TieredCache) promote(it *item, value []byte, prevAccess time.Time) {
	key := it.entry.Key

	if c.l1.full() {
		victim, _ := c.l1.victim("")
		if victim.entry.LastAccess.After(prevAccess) {
			c.l2.get(key)
			c.logger.Debug("Skipped promotion", "key", key, "l1_victim", victim.entry.Key)
			return
		}
		c.l2.remove(key)
		c.l1.remove(victim.entry.Key)
		c.demote(victim)
	} else {
		c.l2.remove(key)
	}

	promoted := &item{entry: it.entry}
	promoted.entry.Value = slices.Clone(value)
	c.l1.add(promoted)
	c.observer.RecordPromotion(c.name)

	c.overflow(key)
	c.recordMemory()
}

// overflow moves L1 entries to L2 while L1 is at or above the threshold.
// protect is never moved. Must be called with c.mu held.
func (c *TieredCache) overflow(protect string) {
	for c.l1.count() >= c.threshold && c.l1.count() > 1 {
		victim, ok := c.l1.victim(protect)
		if !ok {
			return
		}
		c.l1.remove(victim.entry.Key)
		c.demote(victim)
	}
}

// demote compresses an entry already removed from L1 and inserts it into
// L2, evicting from L2 first if it is full. Must be called with c.mu held.
func (c *TieredCache) demote(it *item) {
	compressed, err := c.codec.Encode(it.entry.Value)
	if err != nil {
		c.logger.Warn("Dropping entry that failed to compress", "key", it.entry.Key, "codec", c.codec.Name(), "error", err)
		c.observer.RecordEviction(c.name)
		return
	}

	for c.l2.full() {
		victim, ok := c.l2.victim("")
		if !ok {
			break
		}
		c.l2.remove(victim.entry.Key)
		c.observer.RecordEviction(c.name)
		c.logger.Debug("Evicted from L2", "key", victim.entry.Key)
	}

	demoted := &item{entry: it.entry, compressed: compressed}
	demoted.entry.Value = nil
	c.l2.add(demoted)
	c.observer.RecordOverflow(c.name)
	c.logger.Debug("Overflowed to L2", "key", it.entry.Key, "original_size", it.entry.Size, "compressed_size", len(compressed))
}

// tick counts an operation and runs a sweep every sweepEvery operations.
func (c *TieredCache) tick(now time.Time) {
	if c.sweepEvery < 0 {
		return
	}
	c.ops++
	if c.ops%c.sweepEvery == 0 {
		c.sweepLocked(now)
	}
}

func (c *TieredCache) sweepLocked(now time.Time) int {
	removed := 0
	for _, t := range []*tier{c.l1, c.l2} {
		for _, k := range t.expired(now) {
			t.remove(k)
			removed++
		}
	}
	if removed > 0 {
		c.recordMemory()
		c.logger.Debug("Swept expired entries", "removed", removed)
	}
	return removed
}

func (c *TieredCache) recordMemory() {
	c.observer.RecordMemory(c.name, c.l1.bytes+c.l2.bytes)
}

type noopObserver struct{}

func (noopObserver) RecordL1Hit(string)         {}
func (noopObserver) RecordL1Miss(string)        {}
func (noopObserver) RecordL2Hit(string)         {}
func (noopObserver) RecordL2Miss(string)        {}
func (noopObserver) RecordPromotion(string)     {}
func (noopObserver) RecordOverflow(string)      {}
func (noopObserver) RecordEviction(string)      {}
func (noopObserver) RecordMemory(string, int64) {}
