package cache

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/simplelru"

	"github.com/LavishGent/kairos/internal/types"
)

// item is what a tier stores. L1 items carry Value; L2 items carry
// compressed bytes and leave Value nil.
type item struct {
	entry      types.CacheEntry
	compressed []byte
}

// footprint approximates the bytes an item pins in memory.
func (it *item) footprint() int64 {
	if it.compressed != nil {
		return int64(len(it.entry.Key) + len(it.compressed))
	}
	return int64(len(it.entry.Key) + len(it.entry.Value))
}

// tier is a recency-ordered map bounded by capacity. It never evicts on its
// own; callers make room before adding. Not safe for concurrent use.
type tier struct {
	lru      *simplelru.LRU[string, *item]
	capacity int
	bytes    int64
}

func newTier(capacity int) (*tier, error) {
	l, err := simplelru.NewLRU[string, *item](capacity, nil)
	if err != nil {
		return nil, err
	}
	return &tier{lru: l, capacity: capacity}, nil
}

func (t *tier) count() int { return t.lru.Len() }

func (t *tier) full() bool { return t.lru.Len() >= t.capacity }

// keys lists keys from least to most recently used.
func (t *tier) keys() []string { return t.lru.Keys() }

// get returns the item and marks it most recently used.
func (t *tier) get(key string) (*item, bool) {
	return t.lru.Get(key)
}

// peek returns the item without touching recency.
func (t *tier) peek(key string) (*item, bool) {
	return t.lru.Peek(key)
}

func (t *tier) add(it *item) {
	if old, ok := t.lru.Peek(it.entry.Key); ok {
		t.bytes -= old.footprint()
	}
	t.lru.Add(it.entry.Key, it)
	t.bytes += it.footprint()
}

func (t *tier) remove(key string) (*item, bool) {
	it, ok := t.lru.Peek(key)
	if !ok {
		return nil, false
	}
	t.lru.Remove(key)
	t.bytes -= it.footprint()
	return it, true
}

// victim picks the least recently accessed item other than exclude,
// breaking ties on LastAccess by the earliest CreatedAt.
func (t *tier) victim(exclude string) (*item, bool) {
	var best *item
	for _, k := range t.lru.Keys() {
		if k == exclude {
			continue
		}
		it, _ := t.lru.Peek(k)
		if best == nil {
			best = it
			continue
		}
		if !it.entry.LastAccess.Equal(best.entry.LastAccess) {
			if it.entry.LastAccess.Before(best.entry.LastAccess) {
				best = it
			}
			continue
		}
		if it.entry.CreatedAt.Before(best.entry.CreatedAt) {
			best = it
		}
	}
	return best, best != nil
}

// expired collects keys whose TTL has lapsed at now.
func (t *tier) expired(now time.Time) []string {
	var keys []string
	for _, k := range t.lru.Keys() {
		if it, ok := t.lru.Peek(k); ok && it.entry.IsExpired(now) {
			keys = append(keys, k)
		}
	}
	return keys
}

func (t *tier) purge() {
	t.lru.Purge()
	t.bytes = 0
}

func (t *tier) stats() types.TierStats {
	return types.TierStats{
		Entries:  t.lru.Len(),
		Capacity: t.capacity,
		Bytes:    t.bytes,
	}
}
