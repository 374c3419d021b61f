package cache

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/LavishGent/kairos/internal/config"
	"github.com/LavishGent/kairos/internal/types"
)

func newTestManager(t *testing.T, cfg *config.Config, opts *types.ManagerOptions) *Manager {
	t.Helper()
	if cfg == nil {
		cfg = config.ForTesting()
	}
	m, err := NewManager(cfg, opts)
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	t.Cleanup(func() { _ = m.Close() })
	return m
}

func TestNewManager(t *testing.T) {
	t.Run("registers configured caches", func(t *testing.T) {
		m := newTestManager(t, nil, nil)

		want := []string{config.CacheAlerts, config.CacheDisasters, config.CacheGeneral, config.CacheWeather}
		if got := m.Names(); !slices.Equal(got, want) {
			t.Errorf("Names() = %v, want %v", got, want)
		}
	})

	t.Run("rejects unknown codec", func(t *testing.T) {
		cfg := config.ForTesting()
		cfg.Caches["bad"] = config.CacheConfig{L1Size: 1, L2Size: 1, Codec: "lz4"}

		if _, err := NewManager(cfg, nil); err == nil {
			t.Error("NewManager succeeded, want error for unknown codec")
		}
	})
}

func TestManagerGetSet(t *testing.T) {
	m := newTestManager(t, nil, nil)

	t.Run("routes to the named cache", func(t *testing.T) {
		if err := m.Set(config.CacheWeather, "nyc", []byte("sunny")); err != nil {
			t.Fatalf("Set failed: %v", err)
		}
		got, err := m.Get(config.CacheWeather, "nyc")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if string(got) != "sunny" {
			t.Errorf("Get() = %q, want sunny", got)
		}

		if _, err := m.Get(config.CacheAlerts, "nyc"); !types.IsCacheMiss(err) {
			t.Errorf("Get from other cache error = %v, want ErrCacheMiss", err)
		}
	})

	t.Run("unknown cache", func(t *testing.T) {
		_, err := m.Get("traffic", "k")
		if !errors.Is(err, types.ErrUnknownCache) {
			t.Errorf("Get error = %v, want ErrUnknownCache", err)
		}
		if err := m.Set("traffic", "k", []byte("v")); !errors.Is(err, types.ErrUnknownCache) {
			t.Errorf("Set error = %v, want ErrUnknownCache", err)
		}
	})

	t.Run("invalid key", func(t *testing.T) {
		if err := m.Set(config.CacheWeather, "", []byte("v")); !types.IsInvalidKey(err) {
			t.Errorf("Set empty key error = %v, want ErrInvalidKey", err)
		}
		if _, err := m.Get(config.CacheWeather, strings.Repeat("k", 600)); !types.IsInvalidKey(err) {
			t.Errorf("Get long key error = %v, want ErrInvalidKey", err)
		}
	})

	t.Run("invalidate", func(t *testing.T) {
		_ = m.Set(config.CacheAlerts, "tornado", []byte("warning"))

		ok, err := m.Invalidate(config.CacheAlerts, "tornado")
		if err != nil || !ok {
			t.Errorf("Invalidate() = %v, %v; want true, nil", ok, err)
		}
		if _, err := m.Get(config.CacheAlerts, "tornado"); !types.IsCacheMiss(err) {
			t.Errorf("Get after invalidate error = %v, want ErrCacheMiss", err)
		}
	})
}

func TestManagerKeyValidationDisabled(t *testing.T) {
	cfg := config.ForTesting()
	cfg.KeyValidation.Enabled = false
	m := newTestManager(t, cfg, nil)

	if err := m.Set(config.CacheGeneral, "key with spaces\n", []byte("v")); err != nil {
		t.Errorf("Set error = %v, want nil with validation disabled", err)
	}
}

func TestManagerRegister(t *testing.T) {
	m := newTestManager(t, nil, nil)

	tc, err := m.Register("traffic", config.CacheConfig{TTL: time.Minute, L1Size: 2, L2Size: 4, Codec: "gzip"})
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if tc.codec.Name() != "gzip" {
		t.Errorf("codec = %q, want gzip", tc.codec.Name())
	}

	if _, err := m.Register("traffic", config.CacheConfig{L1Size: 1, L2Size: 1}); err == nil {
		t.Error("duplicate Register succeeded, want error")
	}

	if err := m.Set("traffic", "i-95", []byte("jam")); err != nil {
		t.Errorf("Set on registered cache failed: %v", err)
	}
}

func TestManagerInvalidatePattern(t *testing.T) {
	m := newTestManager(t, nil, nil)

	_ = m.Set(config.CacheWeather, "region:east:nyc", []byte("v"))
	_ = m.Set(config.CacheWeather, "region:west:sf", []byte("v"))
	_ = m.Set(config.CacheAlerts, "region:east:flood", []byte("v"))
	_ = m.Set(config.CacheDisasters, "quake:ca", []byte("v"))

	t.Run("single cache", func(t *testing.T) {
		n, err := m.InvalidatePattern(config.CacheWeather, "region:west:*")
		if err != nil || n != 1 {
			t.Errorf("InvalidatePattern() = %d, %v; want 1, nil", n, err)
		}
	})

	t.Run("all caches", func(t *testing.T) {
		n, err := m.InvalidatePattern("", "region:east:*")
		if err != nil || n != 2 {
			t.Errorf("InvalidatePattern() = %d, %v; want 2, nil", n, err)
		}
		if _, err := m.Get(config.CacheDisasters, "quake:ca"); err != nil {
			t.Errorf("non-matching key was removed: %v", err)
		}
	})

	t.Run("unknown cache", func(t *testing.T) {
		if _, err := m.InvalidatePattern("traffic", "*"); !errors.Is(err, types.ErrUnknownCache) {
			t.Errorf("error = %v, want ErrUnknownCache", err)
		}
	})
}

func TestManagerStats(t *testing.T) {
	obs := newCountingObserver()
	m := newTestManager(t, nil, &types.ManagerOptions{Observer: obs})

	_ = m.Set(config.CacheWeather, "nyc", []byte("sunny"))
	_, _ = m.Get(config.CacheWeather, "nyc")
	_, _ = m.Get(config.CacheWeather, "sf")

	stats := m.GetAllStats()
	if len(stats) != 4 {
		t.Fatalf("len(GetAllStats()) = %d, want 4", len(stats))
	}

	w := stats[config.CacheWeather]
	if w.L1.Entries != 1 || w.L1.Capacity != 4 || w.L2.Capacity != 8 {
		t.Errorf("weather tiers = %+v / %+v", w.L1, w.L2)
	}
	if w.Performance.L1Hits != 1 || w.Performance.L1Misses != 1 || w.Performance.L2Misses != 1 {
		t.Errorf("weather performance = %+v", w.Performance)
	}
	if w.Performance.MemoryBytes == 0 {
		t.Error("MemoryBytes = 0, want > 0")
	}

	if obs.get("l1_hit") != 1 || obs.get("l2_miss") != 1 {
		t.Errorf("external observer saw l1_hit=%d l2_miss=%d, want 1 and 1", obs.get("l1_hit"), obs.get("l2_miss"))
	}
}

func TestManagerL2HealthPolicy(t *testing.T) {
	cfg := config.ForTesting()
	m := newTestManager(t, cfg, nil)

	for i := 0; i < 6; i++ {
		_ = m.Set(config.CacheWeather, fmt.Sprintf("k%d", i), []byte("v"))
	}
	for i := 3; i < 6; i++ {
		if _, err := m.Get(config.CacheWeather, fmt.Sprintf("k%d", i)); err != nil {
			t.Fatalf("Get failed: %v", err)
		}
	}

	mon := m.PerformanceMonitor()

	t.Run("zero L2 hit rate alone is healthy", func(t *testing.T) {
		a := mon.AnalyzePerformance()
		if a.OverallHealth != types.CacheStatusHealthy {
			t.Errorf("OverallHealth = %v, want healthy: %v", a.OverallHealth, a.Recommendations)
		}
	})

	t.Run("not yet sustained", func(t *testing.T) {
		for i := 0; i < cfg.Monitor.SustainedSamples-1; i++ {
			m.SampleOccupancy()
		}
		if a := mon.AnalyzePerformance(); a.Caches[config.CacheWeather].Status != types.CacheStatusHealthy {
			t.Errorf("weather status = %v, want healthy", a.Caches[config.CacheWeather].Status)
		}
	})

	t.Run("sustained high occupancy with idle L2 warns", func(t *testing.T) {
		m.SampleOccupancy()
		a := mon.AnalyzePerformance()
		if a.OverallHealth != types.CacheStatusWarning {
			t.Fatalf("OverallHealth = %v, want warning", a.OverallHealth)
		}
		if a.Caches[config.CacheWeather].Status != types.CacheStatusWarning {
			t.Errorf("weather status = %v, want warning", a.Caches[config.CacheWeather].Status)
		}
		if a.Caches[config.CacheAlerts].Status != types.CacheStatusHealthy {
			t.Errorf("alerts status = %v, want healthy", a.Caches[config.CacheAlerts].Status)
		}
		if len(a.Recommendations) != 1 || !strings.HasPrefix(a.Recommendations[0], "weather: ") {
			t.Errorf("Recommendations = %v", a.Recommendations)
		}
	})

	t.Run("an L2 hit clears the warning", func(t *testing.T) {
		if _, err := m.Get(config.CacheWeather, "k0"); err != nil {
			t.Fatalf("Get(k0) failed: %v", err)
		}
		if a := mon.AnalyzePerformance(); a.Caches[config.CacheWeather].Status != types.CacheStatusHealthy {
			t.Errorf("weather status = %v, want healthy", a.Caches[config.CacheWeather].Status)
		}
	})
}

func TestManagerL2HealthPolicyDefaults(t *testing.T) {
	cfg := config.DefaultConfig()
	w := cfg.Caches[config.CacheWeather]
	w.L2Size = 5000
	cfg.Caches[config.CacheWeather] = w
	m := newTestManager(t, cfg, nil)

	var peak float64
	for i := 0; i < 2000; i++ {
		if err := m.Set(config.CacheWeather, fmt.Sprintf("k%d", i), []byte("v")); err != nil {
			t.Fatalf("Set failed: %v", err)
		}
		m.SampleOccupancy()
		peak = max(peak, m.GetAllStats()[config.CacheWeather].L1.Pressure())
	}

	if peak < cfg.Monitor.HighOccupancyRatio {
		t.Errorf("peak L1 pressure = %.3f, want >= %.2f", peak, cfg.Monitor.HighOccupancyRatio)
	}
	a := m.PerformanceMonitor().AnalyzePerformance()
	ca := a.Caches[config.CacheWeather]
	if ca.Status != types.CacheStatusWarning {
		t.Fatalf("weather status = %v, want warning", ca.Status)
	}
	if len(ca.Recommendations) != 1 || !strings.Contains(ca.Recommendations[0], "L2 served no hits") {
		t.Errorf("Recommendations = %v", ca.Recommendations)
	}
}

func TestManagerOptimizeMemory(t *testing.T) {
	t.Run("sweeps expired entries", func(t *testing.T) {
		clock := newFakeClock()
		m := newTestManager(t, nil, &types.ManagerOptions{Now: clock.Now})

		_ = m.Set(config.CacheWeather, "short", []byte("v"), types.WithTTL(time.Second))
		_ = m.Set(config.CacheWeather, "long", []byte("v"))
		clock.Advance(2 * time.Second)

		res := m.OptimizeMemory()
		if res.Expired != 1 {
			t.Errorf("Expired = %d, want 1", res.Expired)
		}
		if res.Evicted != 0 {
			t.Errorf("Evicted = %d, want 0 under budget", res.Evicted)
		}
	})

	t.Run("trims L2 when over budget", func(t *testing.T) {
		cfg := config.ForTesting()
		cfg.Monitor.MaxMemoryBytes = 1
		m := newTestManager(t, cfg, nil)

		for i := 0; i < 6; i++ {
			_ = m.Set(config.CacheGeneral, fmt.Sprintf("k%d", i), []byte("payload"))
		}
		_, _ = m.Get(config.CacheGeneral, "k5")

		res := m.OptimizeMemory()
		if res.Evicted != 3 {
			t.Errorf("Evicted = %d, want 3", res.Evicted)
		}
		if res.BytesAfter >= res.BytesBefore {
			t.Errorf("BytesAfter = %d, want less than %d", res.BytesAfter, res.BytesBefore)
		}

		stats := m.GetAllStats()[config.CacheGeneral]
		if stats.L2.Entries != 0 {
			t.Errorf("L2 entries = %d, want 0", stats.L2.Entries)
		}
		if stats.Performance.L1Hits != 0 {
			t.Errorf("L1Hits = %d, want 0 after reset", stats.Performance.L1Hits)
		}
	})
}

func TestManagerClearAll(t *testing.T) {
	m := newTestManager(t, nil, nil)

	_ = m.Set(config.CacheWeather, "a", []byte("v"))
	_ = m.Set(config.CacheAlerts, "b", []byte("v"))
	_, _ = m.Get(config.CacheWeather, "a")

	m.ClearAll()

	for name, s := range m.GetAllStats() {
		if s.L1.Entries+s.L2.Entries != 0 {
			t.Errorf("%s holds %d entries after ClearAll", name, s.L1.Entries+s.L2.Entries)
		}
		if s.Performance.Requests() != 0 {
			t.Errorf("%s requests = %d after ClearAll", name, s.Performance.Requests())
		}
	}
}

func TestManagerCheckInvariants(t *testing.T) {
	m := newTestManager(t, nil, nil)

	for i := 0; i < 50; i++ {
		_ = m.Set(config.CacheDisasters, fmt.Sprintf("k%d", i), []byte("v"))
		_, _ = m.Get(config.CacheDisasters, fmt.Sprintf("k%d", i/2))
	}
	if err := m.CheckInvariants(); err != nil {
		t.Errorf("CheckInvariants() = %v", err)
	}
}

func TestManagerBackgroundSweep(t *testing.T) {
	cfg := config.ForTesting()
	cfg.SweepInterval = 5 * time.Millisecond
	cfg.Monitor.SampleInterval = 5 * time.Millisecond
	m := newTestManager(t, cfg, nil)
	m.Start()

	_ = m.Set(config.CacheWeather, "short", []byte("v"), types.WithTTL(10*time.Millisecond))

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if m.GetAllStats()[config.CacheWeather].L1.Entries == 0 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Error("expired entry was not swept by the background loop")
}

func TestManagerClose(t *testing.T) {
	t.Run("operations fail after close", func(t *testing.T) {
		m, err := NewManager(config.ForTesting(), nil)
		if err != nil {
			t.Fatalf("NewManager failed: %v", err)
		}
		_ = m.Set(config.CacheWeather, "k", []byte("v"))

		if err := m.Close(); err != nil {
			t.Fatalf("Close failed: %v", err)
		}
		if _, err := m.Get(config.CacheWeather, "k"); !errors.Is(err, types.ErrClosed) {
			t.Errorf("Get after close error = %v, want ErrClosed", err)
		}
		if err := m.Set(config.CacheWeather, "k", []byte("v")); !errors.Is(err, types.ErrClosed) {
			t.Errorf("Set after close error = %v, want ErrClosed", err)
		}
		if _, err := m.InvalidatePattern("", "*"); !errors.Is(err, types.ErrClosed) {
			t.Errorf("InvalidatePattern after close error = %v, want ErrClosed", err)
		}
	})

	t.Run("close is idempotent", func(t *testing.T) {
		m, err := NewManager(config.ForTesting(), nil)
		if err != nil {
			t.Fatalf("NewManager failed: %v", err)
		}
		m.Start()
		if err := m.Close(); err != nil {
			t.Errorf("first Close() = %v", err)
		}
		if err := m.Close(); err != nil {
			t.Errorf("second Close() = %v", err)
		}
	})

	t.Run("loops stop on close", func(t *testing.T) {
		cfg := config.ForTesting()
		cfg.SweepInterval = time.Millisecond
		m, err := NewManager(cfg, nil)
		if err != nil {
			t.Fatalf("NewManager failed: %v", err)
		}
		m.Start()
		if err := m.CloseWithTimeout(time.Second); err != nil {
			t.Errorf("CloseWithTimeout() = %v", err)
		}
	})
}
