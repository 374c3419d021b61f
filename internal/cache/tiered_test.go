package cache

import (
	"bytes"
	"errors"
	"fmt"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/LavishGent/kairos/internal/codec"
	"github.com/LavishGent/kairos/internal/types"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type countingObserver struct {
	mu     sync.Mutex
	counts map[string]int
}

func newCountingObserver() *countingObserver {
	return &countingObserver{counts: make(map[string]int)}
}

func (o *countingObserver) inc(event string) {
	o.mu.Lock()
	o.counts[event]++
	o.mu.Unlock()
}

func (o *countingObserver) get(event string) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.counts[event]
}

func (o *countingObserver) RecordL1Hit(string)         { o.inc("l1_hit") }
func (o *countingObserver) RecordL1Miss(string)        { o.inc("l1_miss") }
func (o *countingObserver) RecordL2Hit(string)         { o.inc("l2_hit") }
func (o *countingObserver) RecordL2Miss(string)        { o.inc("l2_miss") }
func (o *countingObserver) RecordPromotion(string)     { o.inc("promotion") }
func (o *countingObserver) RecordOverflow(string)      { o.inc("overflow") }
func (o *countingObserver) RecordEviction(string)      { o.inc("eviction") }
func (o *countingObserver) RecordMemory(string, int64) {}

func newTestTiered(t *testing.T, l1, l2 int, clock *fakeClock, obs types.CacheObserver) *TieredCache {
	t.Helper()
	tc, err := NewTieredCache(TieredOptions{
		Name:       "test",
		L1Size:     l1,
		L2Size:     l2,
		DefaultTTL: time.Hour,
		Observer:   obs,
		Now:        clock.Now,
		SweepEvery: -1,
	})
	if err != nil {
		t.Fatalf("NewTieredCache failed: %v", err)
	}
	return tc
}

func TestNewTieredCache(t *testing.T) {
	t.Run("rejects non-positive sizes", func(t *testing.T) {
		for _, sizes := range [][2]int{{0, 1}, {1, 0}, {-1, 4}} {
			if _, err := NewTieredCache(TieredOptions{Name: "x", L1Size: sizes[0], L2Size: sizes[1]}); err == nil {
				t.Errorf("NewTieredCache(%d, %d) succeeded, want error", sizes[0], sizes[1])
			}
		}
	})

	t.Run("defaults to zstd", func(t *testing.T) {
		tc, err := NewTieredCache(TieredOptions{Name: "x", L1Size: 1, L2Size: 1})
		if err != nil {
			t.Fatalf("NewTieredCache failed: %v", err)
		}
		if tc.codec.Name() != "zstd" {
			t.Errorf("codec = %q, want zstd", tc.codec.Name())
		}
	})
}

func TestTieredCacheOverflowScenario(t *testing.T) {
	clock := newFakeClock()
	tc := newTestTiered(t, 2, 2, clock, nil)

	for _, k := range []string{"A", "B", "C"} {
		if err := tc.Set(k, []byte("value-"+k)); err != nil {
			t.Fatalf("Set(%s) failed: %v", k, err)
		}
	}

	if got := tc.Keys(types.TierL1); !slices.Equal(got, []string{"C"}) {
		t.Errorf("L1 keys = %v, want [C]", got)
	}
	l2 := tc.Keys(types.TierL2)
	slices.Sort(l2)
	if !slices.Equal(l2, []string{"A", "B"}) {
		t.Errorf("L2 keys = %v, want [A B]", l2)
	}

	got, err := tc.Get("A")
	if err != nil {
		t.Fatalf("Get(A) failed: %v", err)
	}
	if string(got) != "value-A" {
		t.Errorf("Get(A) = %q, want value-A", got)
	}

	if got := tc.Keys(types.TierL1); !slices.Equal(got, []string{"A"}) {
		t.Errorf("L1 keys after promotion = %v, want [A]", got)
	}
	l2 = tc.Keys(types.TierL2)
	slices.Sort(l2)
	if !slices.Equal(l2, []string{"B", "C"}) {
		t.Errorf("L2 keys after promotion = %v, want [B C]", l2)
	}

	if err := tc.CheckInvariants(); err != nil {
		t.Errorf("CheckInvariants() = %v", err)
	}
}

func TestTieredCacheOverflowThreshold(t *testing.T) {
	clock := newFakeClock()
	obs := newCountingObserver()
	tc := newTestTiered(t, 5, 8, clock, obs)

	for i := 0; i < 10; i++ {
		clock.Advance(time.Millisecond)
		if err := tc.Set(fmt.Sprintf("k%d", i), []byte("v")); err != nil {
			t.Fatalf("Set failed: %v", err)
		}
		if n := tc.Stats().L1.Entries; n >= 4 {
			t.Fatalf("after set %d L1 holds %d entries, want fewer than the threshold 4", i, n)
		}
	}

	stats := tc.Stats()
	if stats.L1.Entries != 3 {
		t.Errorf("L1 entries = %d, want 3", stats.L1.Entries)
	}
	if stats.L2.Entries != 7 {
		t.Errorf("L2 entries = %d, want 7", stats.L2.Entries)
	}
	if obs.get("overflow") != 7 {
		t.Errorf("overflows = %d, want 7", obs.get("overflow"))
	}

	// The most recent writes stay hot.
	l1 := tc.Keys(types.TierL1)
	slices.Sort(l1)
	if !slices.Equal(l1, []string{"k7", "k8", "k9"}) {
		t.Errorf("L1 keys = %v, want [k7 k8 k9]", l1)
	}
}

func TestTieredCacheL2Eviction(t *testing.T) {
	clock := newFakeClock()
	obs := newCountingObserver()
	tc := newTestTiered(t, 2, 2, clock, obs)

	for _, k := range []string{"a", "b", "c", "d"} {
		clock.Advance(time.Millisecond)
		_ = tc.Set(k, []byte(k))
	}

	if _, err := tc.Get("a"); !errors.Is(err, types.ErrCacheMiss) {
		t.Errorf("Get(a) error = %v, want ErrCacheMiss", err)
	}
	if obs.get("eviction") != 1 {
		t.Errorf("evictions = %d, want 1", obs.get("eviction"))
	}
	if err := tc.CheckInvariants(); err != nil {
		t.Errorf("CheckInvariants() = %v", err)
	}
}

func TestTieredCachePromotionSkip(t *testing.T) {
	clock := newFakeClock()
	obs := newCountingObserver()
	tc := newTestTiered(t, 1, 4, clock, obs)

	_ = tc.Set("A", []byte("a"))
	clock.Advance(time.Second)
	_ = tc.Set("B", []byte("b"))

	if tc.TierOf("A") != types.TierL2 {
		t.Fatalf("TierOf(A) = %v, want l2", tc.TierOf("A"))
	}

	clock.Advance(time.Second)
	if _, err := tc.Get("B"); err != nil {
		t.Fatalf("Get(B) failed: %v", err)
	}

	// B was used more recently than A's previous access: A stays in L2.
	clock.Advance(time.Second)
	got, err := tc.Get("A")
	if err != nil {
		t.Fatalf("Get(A) failed: %v", err)
	}
	if string(got) != "a" {
		t.Errorf("Get(A) = %q, want a", got)
	}
	if tc.TierOf("A") != types.TierL2 {
		t.Errorf("TierOf(A) = %v, want l2 after skipped promotion", tc.TierOf("A"))
	}
	if obs.get("promotion") != 0 {
		t.Errorf("promotions = %d, want 0", obs.get("promotion"))
	}

	// Now A's previous access is newer than B's: A is promoted and B demoted.
	clock.Advance(time.Second)
	if _, err := tc.Get("A"); err != nil {
		t.Fatalf("Get(A) failed: %v", err)
	}
	if tc.TierOf("A") != types.TierL1 {
		t.Errorf("TierOf(A) = %v, want l1", tc.TierOf("A"))
	}
	if tc.TierOf("B") != types.TierL2 {
		t.Errorf("TierOf(B) = %v, want l2", tc.TierOf("B"))
	}
	if obs.get("promotion") != 1 {
		t.Errorf("promotions = %d, want 1", obs.get("promotion"))
	}
}

func TestTieredCacheTTL(t *testing.T) {
	t.Run("expires strictly after the deadline", func(t *testing.T) {
		clock := newFakeClock()
		tc := newTestTiered(t, 4, 4, clock, nil)

		_ = tc.Set("k", []byte("v"), types.WithTTL(time.Minute))
		clock.Advance(time.Minute)
		if _, err := tc.Get("k"); err != nil {
			t.Errorf("Get at deadline error = %v, want hit", err)
		}

		clock.Advance(time.Nanosecond)
		if _, err := tc.Get("k"); !types.IsCacheMiss(err) {
			t.Errorf("Get after deadline error = %v, want ErrCacheMiss", err)
		}
		if tc.Contains("k") {
			t.Error("Contains(k) = true after expiry")
		}
	})

	t.Run("zero TTL uses the default", func(t *testing.T) {
		clock := newFakeClock()
		tc := newTestTiered(t, 4, 4, clock, nil)

		_ = tc.Set("k", []byte("v"))
		clock.Advance(59 * time.Minute)
		if !tc.Contains("k") {
			t.Error("Contains(k) = false before default TTL")
		}
		clock.Advance(2 * time.Minute)
		if tc.Contains("k") {
			t.Error("Contains(k) = true after default TTL")
		}
	})

	t.Run("NoExpiry never expires", func(t *testing.T) {
		clock := newFakeClock()
		tc := newTestTiered(t, 4, 4, clock, nil)

		_ = tc.Set("k", []byte("v"), types.WithTTL(NoExpiry))
		clock.Advance(1000 * time.Hour)
		if _, err := tc.Get("k"); err != nil {
			t.Errorf("Get error = %v, want hit", err)
		}
	})

	t.Run("expired L2 entries miss", func(t *testing.T) {
		clock := newFakeClock()
		tc := newTestTiered(t, 2, 4, clock, nil)

		_ = tc.Set("old", []byte("v"), types.WithTTL(time.Second))
		_ = tc.Set("new", []byte("v"))
		if tc.TierOf("old") != types.TierL2 {
			t.Fatalf("TierOf(old) = %v, want l2", tc.TierOf("old"))
		}

		clock.Advance(2 * time.Second)
		if _, err := tc.Get("old"); !types.IsCacheMiss(err) {
			t.Errorf("Get(old) error = %v, want ErrCacheMiss", err)
		}
		if tc.TierOf("old") != 0 {
			t.Errorf("TierOf(old) = %v, want none", tc.TierOf("old"))
		}
	})

	t.Run("SweepExpired removes from both tiers", func(t *testing.T) {
		clock := newFakeClock()
		tc := newTestTiered(t, 2, 4, clock, nil)

		_ = tc.Set("a", []byte("v"), types.WithTTL(time.Second))
		_ = tc.Set("b", []byte("v"), types.WithTTL(time.Second))
		_ = tc.Set("c", []byte("v"), types.WithTTL(time.Hour))

		clock.Advance(2 * time.Second)
		if n := tc.SweepExpired(); n != 2 {
			t.Errorf("SweepExpired() = %d, want 2", n)
		}
		if !tc.Contains("c") {
			t.Error("Contains(c) = false, want true")
		}
	})
}

func TestTieredCacheSetReplaces(t *testing.T) {
	clock := newFakeClock()
	tc := newTestTiered(t, 2, 4, clock, nil)

	_ = tc.Set("a", []byte("one"))
	_ = tc.Set("b", []byte("two"))
	if tc.TierOf("a") != types.TierL2 {
		t.Fatalf("TierOf(a) = %v, want l2", tc.TierOf("a"))
	}

	_ = tc.Set("a", []byte("three"))
	got, err := tc.Get("a")
	if err != nil {
		t.Fatalf("Get(a) failed: %v", err)
	}
	if string(got) != "three" {
		t.Errorf("Get(a) = %q, want three", got)
	}
	if err := tc.CheckInvariants(); err != nil {
		t.Errorf("CheckInvariants() = %v", err)
	}
}

func TestTieredCacheCopiesValues(t *testing.T) {
	clock := newFakeClock()
	tc := newTestTiered(t, 4, 4, clock, nil)

	value := []byte("original")
	_ = tc.Set("k", value)
	value[0] = 'X'

	got, _ := tc.Get("k")
	if string(got) != "original" {
		t.Errorf("Get(k) = %q, want original", got)
	}
	got[0] = 'Y'

	again, _ := tc.Get("k")
	if string(again) != "original" {
		t.Errorf("Get(k) after caller mutation = %q, want original", again)
	}
}

func TestTieredCacheCompressesL2(t *testing.T) {
	clock := newFakeClock()
	tc := newTestTiered(t, 2, 4, clock, nil)

	big := bytes.Repeat([]byte("sunny with a chance of rain "), 200)
	_ = tc.Set("forecast", big)
	_ = tc.Set("other", []byte("x"))

	stats := tc.Stats()
	if stats.L2.Entries != 1 {
		t.Fatalf("L2 entries = %d, want 1", stats.L2.Entries)
	}
	if stats.L2.Bytes >= int64(len(big)) {
		t.Errorf("L2 bytes = %d, want less than %d", stats.L2.Bytes, len(big))
	}

	got, err := tc.Get("forecast")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !bytes.Equal(got, big) {
		t.Error("round-tripped value differs")
	}
}

type brokenCodec struct {
	encodeErr error
	decodeErr error
}

func (c brokenCodec) Encode(src []byte) ([]byte, error) {
	if c.encodeErr != nil {
		return nil, c.encodeErr
	}
	return codec.None{}.Encode(src)
}

func (c brokenCodec) Decode(src []byte) ([]byte, error) {
	if c.decodeErr != nil {
		return nil, c.decodeErr
	}
	return codec.None{}.Decode(src)
}

func (brokenCodec) Name() string { return "broken" }

func TestTieredCacheCodecFailures(t *testing.T) {
	t.Run("encode failure drops the entry", func(t *testing.T) {
		clock := newFakeClock()
		obs := newCountingObserver()
		tc, err := NewTieredCache(TieredOptions{
			Name: "test", L1Size: 2, L2Size: 2, Observer: obs, Now: clock.Now, SweepEvery: -1,
			Codec: brokenCodec{encodeErr: errors.New("boom")},
		})
		if err != nil {
			t.Fatalf("NewTieredCache failed: %v", err)
		}

		_ = tc.Set("a", []byte("a"))
		_ = tc.Set("b", []byte("b"))

		if tc.TierOf("a") != 0 {
			t.Errorf("TierOf(a) = %v, want none", tc.TierOf("a"))
		}
		if obs.get("eviction") != 1 {
			t.Errorf("evictions = %d, want 1", obs.get("eviction"))
		}
	})

	t.Run("decode failure returns a codec error", func(t *testing.T) {
		clock := newFakeClock()
		tc, err := NewTieredCache(TieredOptions{
			Name: "test", L1Size: 2, L2Size: 2, Now: clock.Now, SweepEvery: -1,
			Codec: brokenCodec{decodeErr: errors.New("corrupt")},
		})
		if err != nil {
			t.Fatalf("NewTieredCache failed: %v", err)
		}

		_ = tc.Set("a", []byte("a"))
		_ = tc.Set("b", []byte("b"))

		_, err = tc.Get("a")
		if !errors.Is(err, types.ErrCodecFailed) {
			t.Fatalf("Get(a) error = %v, want ErrCodecFailed", err)
		}
		var ce *types.CacheError
		if !errors.As(err, &ce) || ce.Tier != "l2" {
			t.Errorf("Get(a) error = %#v, want CacheError on l2", err)
		}
		if tc.TierOf("a") != 0 {
			t.Errorf("TierOf(a) = %v, want none after failed decode", tc.TierOf("a"))
		}
	})
}

func TestTieredCacheInvalidate(t *testing.T) {
	clock := newFakeClock()
	tc := newTestTiered(t, 2, 8, clock, nil)

	for _, k := range []string{"weather:nyc", "weather:sf", "alerts:nyc", "weather:la"} {
		_ = tc.Set(k, []byte("v"))
	}

	if !tc.Invalidate("alerts:nyc") {
		t.Error("Invalidate(alerts:nyc) = false, want true")
	}
	if tc.Invalidate("alerts:nyc") {
		t.Error("second Invalidate(alerts:nyc) = true, want false")
	}

	if n := tc.InvalidatePattern("weather:*"); n != 3 {
		t.Errorf("InvalidatePattern(weather:*) = %d, want 3", n)
	}
	if s := tc.Stats(); s.L1.Entries+s.L2.Entries != 0 {
		t.Errorf("entries = %d, want 0", s.L1.Entries+s.L2.Entries)
	}
	if tc.MemoryBytes() != 0 {
		t.Errorf("MemoryBytes() = %d, want 0", tc.MemoryBytes())
	}
}

func TestTieredCacheTrimL2(t *testing.T) {
	clock := newFakeClock()
	obs := newCountingObserver()
	tc, err := NewTieredCache(TieredOptions{
		Name: "test", L1Size: 2, L2Size: 8, Codec: codec.None{}, Observer: obs, Now: clock.Now, SweepEvery: -1,
	})
	if err != nil {
		t.Fatalf("NewTieredCache failed: %v", err)
	}

	for i := 0; i < 5; i++ {
		clock.Advance(time.Millisecond)
		_ = tc.Set(fmt.Sprintf("k%d", i), bytes.Repeat([]byte("x"), 100))
	}

	before := tc.MemoryBytes()
	evicted := tc.TrimL2(before - 150)
	if evicted != 2 {
		t.Errorf("TrimL2 evicted %d, want 2", evicted)
	}
	if tc.MemoryBytes() > before-150 {
		t.Errorf("MemoryBytes() = %d, want at most %d", tc.MemoryBytes(), before-150)
	}
	if tc.Contains("k0") || tc.Contains("k1") {
		t.Error("oldest L2 entries should be trimmed first")
	}
	if obs.get("eviction") != 2 {
		t.Errorf("evictions = %d, want 2", obs.get("eviction"))
	}
}

func TestTieredCacheOpportunisticSweep(t *testing.T) {
	clock := newFakeClock()
	tc, err := NewTieredCache(TieredOptions{
		Name: "test", L1Size: 4, L2Size: 4, Now: clock.Now, SweepEvery: 2,
	})
	if err != nil {
		t.Fatalf("NewTieredCache failed: %v", err)
	}

	_ = tc.Set("short", []byte("v"), types.WithTTL(time.Second))
	clock.Advance(2 * time.Second)
	_ = tc.Set("other", []byte("v"))

	if s := tc.Stats(); s.L1.Entries != 1 {
		t.Errorf("L1 entries = %d, want 1 after sweep", s.L1.Entries)
	}
}

func TestTieredCacheConcurrency(t *testing.T) {
	tc, err := NewTieredCache(TieredOptions{Name: "test", L1Size: 16, L2Size: 32, DefaultTTL: time.Minute})
	if err != nil {
		t.Fatalf("NewTieredCache failed: %v", err)
	}

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				key := fmt.Sprintf("k%d", (g*31+i)%64)
				if i%3 == 0 {
					_ = tc.Set(key, []byte(key))
					continue
				}
				if v, err := tc.Get(key); err == nil && string(v) != key {
					t.Errorf("Get(%s) = %q", key, v)
				}
			}
		}(g)
	}
	wg.Wait()

	if err := tc.CheckInvariants(); err != nil {
		t.Errorf("CheckInvariants() = %v", err)
	}
}
