package kairos_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LavishGent/kairos/internal/config"
	"github.com/LavishGent/kairos/pkg/kairos"
)

type countingPublisher struct {
	health      atomic.Int64
	transitions atomic.Int64
	timings     atomic.Int64
}

func (p *countingPublisher) Gauge(string, float64, ...string) {}
func (p *countingPublisher) Incr(name string, _ ...string) {
	if name == "breaker.transitions" {
		p.transitions.Add(1)
	}
}
func (p *countingPublisher) Count(string, int64, ...string)                      {}
func (p *countingPublisher) Histogram(string, float64, ...string)                {}
func (p *countingPublisher) Timing(string, time.Duration, ...string)             { p.timings.Add(1) }
func (p *countingPublisher) Event(string, string, string, ...string)             {}
func (p *countingPublisher) PublishHealthMetrics(*kairos.PublisherHealthMetrics) { p.health.Add(1) }
func (p *countingPublisher) Close() error                                        { return nil }

func newSystem(t *testing.T, cfg *config.Config, opts ...kairos.Option) *kairos.System {
	t.Helper()
	sys, err := kairos.NewFromConfig(cfg, opts...)
	require.NoError(t, err)
	require.NoError(t, sys.Start(context.Background()))
	t.Cleanup(func() { _ = sys.Shutdown(context.Background()) })
	return sys
}

type forecast struct {
	City string  `json:"city"`
	Temp float64 `json:"temp"`
}

func TestSystemLifecycle(t *testing.T) {
	sys, err := kairos.NewFromConfig(kairos.TestConfig())
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, sys.Start(ctx))
	require.NoError(t, sys.Start(ctx), "Start is idempotent")

	require.NoError(t, sys.Shutdown(ctx))
	require.NoError(t, sys.Shutdown(ctx), "Shutdown is idempotent")

	assert.ErrorIs(t, sys.Start(ctx), kairos.ErrClosed)
	_, err = sys.Get(kairos.CacheWeather, "nyc")
	assert.ErrorIs(t, err, kairos.ErrClosed)
}

func TestNewFromConfigRejectsInvalidConfig(t *testing.T) {
	cfg := kairos.TestConfig()
	cfg.Snapshot.Backend = "redis"
	cfg.Snapshot.Redis.Address = ""

	_, err := kairos.NewFromConfig(cfg)
	assert.Error(t, err)
}

func TestSystemFetch(t *testing.T) {
	sys := newSystem(t, kairos.TestConfig())
	ctx := context.Background()

	calls := 0
	req := kairos.Request{
		Cache:      kairos.CacheWeather,
		Key:        "nyc",
		Dependency: "weather-api",
		Fetch: func(context.Context) ([]byte, error) {
			calls++
			return []byte(`{"city":"nyc","temp":21.5}`), nil
		},
	}

	got, source, err := kairos.FetchJSON[forecast](ctx, sys, req)
	require.NoError(t, err)
	assert.Equal(t, kairos.SourceUpstream, source)
	assert.Equal(t, forecast{City: "nyc", Temp: 21.5}, got)

	got, source, err = kairos.FetchJSON[forecast](ctx, sys, req)
	require.NoError(t, err)
	assert.Equal(t, kairos.SourceCache, source)
	assert.Equal(t, 21.5, got.Temp)
	assert.Equal(t, 1, calls)

	stats := sys.FetchStats()
	assert.Equal(t, int64(2), stats.Total)
}

func TestSystemJSONHelpers(t *testing.T) {
	sys := newSystem(t, kairos.TestConfig())

	alerts := []string{"flood watch", "heat advisory"}
	require.NoError(t, kairos.SetJSON(sys, kairos.CacheAlerts, "tx", alerts, kairos.WithTTL(time.Minute)))

	got, err := kairos.GetJSON[[]string](sys, kairos.CacheAlerts, "tx")
	require.NoError(t, err)
	assert.Equal(t, alerts, got)

	_, err = kairos.GetJSON[[]string](sys, kairos.CacheAlerts, "ok")
	assert.True(t, kairos.IsCacheMiss(err))

	require.NoError(t, sys.Set(kairos.CacheAlerts, "bad", []byte("{")))
	_, err = kairos.GetJSON[[]string](sys, kairos.CacheAlerts, "bad")
	assert.Error(t, err)
}

func TestSystemDegradesToLastKnownGood(t *testing.T) {
	mr := miniredis.RunT(t)
	sys := newSystem(t, config.ForTestingWithRedis(mr.Addr()))
	ctx := context.Background()

	healthy := true
	req := kairos.Request{
		Cache:      kairos.CacheDisasters,
		Key:        "wildfires",
		Dependency: "eonet",
		Fetch: func(context.Context) ([]byte, error) {
			if healthy {
				return []byte(`["camp fire"]`), nil
			}
			return nil, errors.New("502 bad gateway")
		},
	}

	res, err := sys.Fetch(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, kairos.SourceUpstream, res.Source)
	assert.NotEmpty(t, mr.Keys(), "snapshot saved to redis")

	_, err = sys.Invalidate(kairos.CacheDisasters, "wildfires")
	require.NoError(t, err)

	healthy = false
	res, err = sys.Fetch(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, kairos.SourceFallback, res.Source)
	assert.Equal(t, `["camp fire"]`, string(res.Value))

	health := sys.SystemHealth()
	assert.Equal(t, kairos.HealthStatusUnhealthy, health.Overall)
	assert.Equal(t, "open", health.Breakers["eonet"])
	assert.True(t, health.Services["eonet"].Degraded)
}

func TestSystemPublishesMetrics(t *testing.T) {
	publisher := &countingPublisher{}
	sys := newSystem(t, kairos.TestConfig(), kairos.WithPublisher(publisher))
	ctx := context.Background()

	_, err := sys.CallProtected(ctx, "nws", func(context.Context) ([]byte, error) {
		return nil, errors.New("timeout")
	}, kairos.Static([]byte("[]")))
	require.NoError(t, err)

	assert.Equal(t, int64(1), publisher.transitions.Load(), "closed -> open")

	_, err = sys.Fetch(ctx, kairos.Request{
		Cache: kairos.CacheGeneral,
		Key:   "banner",
		Fetch: func(context.Context) ([]byte, error) { return []byte("hello"), nil },
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), publisher.timings.Load())

	sys.PublishNow()
	assert.Equal(t, int64(1), publisher.health.Load())

	m := sys.HealthMetrics()
	require.NotNil(t, m.System)
	require.NotNil(t, m.Fetches)
	assert.Len(t, m.Caches, 4)
	assert.Equal(t, "open", m.System.Breakers["nws"])
}

func TestSystemPrometheusExport(t *testing.T) {
	cfg := kairos.TestConfig()
	cfg.Metrics.Enabled = true
	cfg.Metrics.PublishInterval = time.Hour
	cfg.Metrics.Prometheus.Enabled = true

	reg := prometheus.NewRegistry()
	sys := newSystem(t, cfg, kairos.WithPrometheusRegistry(reg))

	sys.PublishNow()

	families, err := reg.Gather()
	require.NoError(t, err)

	names := make(map[string]bool)
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["kairos_system_health"])
	assert.True(t, names["kairos_cache_entries"])
}

func TestSystemAnalysis(t *testing.T) {
	sys := newSystem(t, kairos.TestConfig())

	for _, key := range []string{"a", "b", "c", "d", "e", "f"} {
		require.NoError(t, sys.Set(kairos.CacheWeather, key, []byte(key)))
	}

	stats := sys.GetAllStats()[kairos.CacheWeather]
	assert.Equal(t, 6, stats.L1.Entries+stats.L2.Entries)
	assert.Positive(t, stats.L2.Entries, "L1 overflowed into L2")

	analysis := sys.AnalyzePerformance()
	assert.Contains(t, analysis.Caches, kairos.CacheWeather)

	sys.ClearAll()
	stats = sys.GetAllStats()[kairos.CacheWeather]
	assert.Zero(t, stats.L1.Entries+stats.L2.Entries)
}
