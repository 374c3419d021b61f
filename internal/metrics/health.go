package metrics

import (
	"sort"

	"github.com/LavishGent/kairos/internal/types"
)

// Sample is one gauge reading derived from a health batch.
type Sample struct {
	Name  string
	Value float64
	Tags  []string
}

// Breaker states and overall health are exported as ordinals so that
// dashboards can alert on "> 0".
var (
	breakerOrdinal = map[string]float64{"closed": 0, "half-open": 1, "open": 2}
	healthOrdinal  = map[types.HealthStatus]float64{
		types.HealthStatusHealthy:   0,
		types.HealthStatusDegraded:  1,
		types.HealthStatusUnhealthy: 2,
	}
)

// HealthSamples flattens a health batch into gauges. Output order is stable.
func HealthSamples(m *types.PublisherHealthMetrics) []Sample {
	if m == nil {
		return nil
	}

	var out []Sample
	add := func(name string, value float64, tags ...string) {
		out = append(out, Sample{Name: name, Value: value, Tags: tags})
	}

	for _, name := range sortedKeys(m.Caches) {
		s := m.Caches[name]
		perf := s.Performance
		for _, tier := range []struct {
			name  string
			stats types.TierStats
			rate  float64
		}{
			{"l1", s.L1, perf.L1HitRate()},
			{"l2", s.L2, perf.L2HitRate()},
		} {
			tags := []string{CacheTag(name), TierTag(tier.name)}
			add("cache.entries", float64(tier.stats.Entries), tags...)
			add("cache.capacity", float64(tier.stats.Capacity), tags...)
			add("cache.bytes", float64(tier.stats.Bytes), tags...)
			add("cache.occupancy", clamp(tier.stats.Occupancy(), 0, 1), tags...)
			add("cache.hit_rate", clamp(tier.rate, 0, 1), tags...)
		}

		tag := CacheTag(name)
		add("cache.requests", float64(perf.Requests()), tag)
		add("cache.overall_hit_rate", clamp(perf.HitRate(), 0, 1), tag)
		add("cache.promotions", float64(perf.Promotions), tag)
		add("cache.overflows", float64(perf.Overflows), tag)
		add("cache.evictions", float64(perf.Evictions), tag)
	}

	if a := m.Analysis; a != nil {
		for _, name := range sortedKeys(a.Caches) {
			warning := 0.0
			if a.Caches[name].Status == types.CacheStatusWarning {
				warning = 1
			}
			add("cache.warning", warning, CacheTag(name))
		}
	}

	if sys := m.System; sys != nil {
		add("system.health", healthOrdinal[sys.Overall])
		for _, dep := range sortedKeys(sys.Breakers) {
			add("breaker.state", breakerOrdinal[sys.Breakers[dep]], DependencyTag(dep))
		}
		for _, dep := range sortedKeys(sys.Services) {
			degraded := 0.0
			if sys.Services[dep].Degraded {
				degraded = 1
			}
			add("dependency.degraded", degraded, DependencyTag(dep))
		}
	}

	for _, dep := range sortedKeys(m.Bulkheads) {
		b := m.Bulkheads[dep]
		tag := DependencyTag(dep)
		add("bulkhead.active", float64(b.Active), tag)
		add("bulkhead.queued", float64(b.Queued), tag)
		add("bulkhead.saturation", clamp(b.Saturation(), 0, 1), tag)
		add("bulkhead.rejected", float64(b.RejectedFull), tag, Tag("reason", "full"))
		add("bulkhead.rejected", float64(b.RejectedTimeout), tag, Tag("reason", "timeout"))
		add("bulkhead.rejected", float64(b.RejectedCancelled), tag, Tag("reason", "cancelled"))
	}

	if f := m.Fetches; f != nil {
		add("fetch.total", float64(f.Total))
		add("fetch.errors", float64(f.Errors))
		for _, src := range sortedKeys(f.BySource) {
			add("fetch.by_source", float64(f.BySource[src]), SourceTag(src))
		}
		add("fetch.latency_ms", maxFloat(0, f.AvgLatencyMs), Tag("stat", "avg"))
		add("fetch.latency_ms", maxFloat(0, f.P50LatencyMs), Tag("stat", "p50"))
		add("fetch.latency_ms", maxFloat(0, f.P95LatencyMs), Tag("stat", "p95"))
		add("fetch.latency_ms", maxFloat(0, f.P99LatencyMs), Tag("stat", "p99"))
	}

	return out
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func clamp(val, minVal, maxVal float64) float64 {
	if val < minVal {
		return minVal
	}
	if val > maxVal {
		return maxVal
	}
	return val
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
