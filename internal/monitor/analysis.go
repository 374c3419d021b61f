package monitor

import (
	"fmt"
	"sort"
	"strings"

	"github.com/LavishGent/kairos/internal/types"
)

// AnalyzePerformance classifies each attached cache and collects
// recommendations. A 0% L2 hit rate alone is healthy: L1 absorbing all
// reads is the expected steady state. It only becomes a warning when L1 has
// been sustained above the high-occupancy ratio within the sample window
// while L2 holds entries that never produce a hit.
func (m *Monitor) AnalyzePerformance() types.PerformanceAnalysis {
	m.mu.RLock()
	source := m.source
	m.mu.RUnlock()

	analysis := types.PerformanceAnalysis{
		Timestamp:     m.now(),
		OverallHealth: types.CacheStatusHealthy,
		Caches:        make(map[string]types.CacheAnalysis),
	}
	if source == nil {
		return analysis
	}

	stats := source.GetAllStats()
	names := make([]string, 0, len(stats))
	for name := range stats {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		ca := m.analyzeCache(name, stats[name])
		analysis.Caches[name] = ca
		if ca.Status == types.CacheStatusWarning {
			analysis.OverallHealth = types.CacheStatusWarning
		}
		for _, rec := range ca.Recommendations {
			analysis.Recommendations = append(analysis.Recommendations, name+": "+rec)
		}
	}
	return analysis
}

func (m *Monitor) analyzeCache(name string, stats types.CacheStats) types.CacheAnalysis {
	perf := m.Snapshot(name)
	ca := types.CacheAnalysis{
		L1HitRate:   perf.L1HitRate(),
		L2HitRate:   perf.L2HitRate(),
		MemoryBytes: perf.MemoryBytes,
		Status:      types.CacheStatusHealthy,
	}
	warn := func(format string, args ...any) {
		ca.Status = types.CacheStatusWarning
		ca.Recommendations = append(ca.Recommendations, fmt.Sprintf(format, args...))
	}

	if perf.Requests() >= m.cfg.MinRequests && perf.Requests() > 0 && ca.L1HitRate < m.cfg.LowHitRate {
		warn("L1 hit rate is low (%.1f%% over %d requests). Consider increasing TTL or L1 size.",
			ca.L1HitRate*100, perf.Requests())
	}

	if perf.L2Hits == 0 && stats.L2.Entries > 0 && m.highOccupancySamples(name) >= m.cfg.SustainedSamples {
		warn("L1 stayed above %.0f%% occupancy but L2 served no hits from %d entries. Overflow or promotion may need tuning.",
			m.cfg.HighOccupancyRatio*100, stats.L2.Entries)
	}

	if m.cfg.MaxMemoryBytes > 0 && perf.MemoryBytes > m.cfg.MaxMemoryBytes {
		warn("High memory usage (%.1f MB). Consider reducing cache sizes.",
			float64(perf.MemoryBytes)/(1024*1024))
	}

	entries := stats.L1.Entries + stats.L2.Entries
	if entries < 1 {
		entries = 1
	}
	if m.cfg.MaxEvictionRatio > 0 && perf.Evictions > 0 &&
		float64(perf.Evictions)/float64(entries) > m.cfg.MaxEvictionRatio {
		warn("High eviction rate (%d evictions for %d entries). Consider increasing L2 size.",
			perf.Evictions, stats.L1.Entries+stats.L2.Entries)
	}

	return ca
}

// OptimizationSuggestions flattens the warnings of AnalyzePerformance into
// actionable lines.
func (m *Monitor) OptimizationSuggestions() []string {
	analysis := m.AnalyzePerformance()
	if analysis.OverallHealth == types.CacheStatusHealthy {
		return nil
	}

	suggestions := []string{"Consider running memory optimization"}
	names := make([]string, 0, len(analysis.Caches))
	for name := range analysis.Caches {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		ca := analysis.Caches[name]
		if ca.Status != types.CacheStatusWarning || name == "" {
			continue
		}
		title := strings.ToUpper(name[:1]) + name[1:]
		for _, rec := range ca.Recommendations {
			suggestions = append(suggestions, title+" cache needs attention: "+rec)
		}
	}
	return suggestions
}
