package metrics

import (
	"context"
	"log/slog"
	"time"

	"github.com/LavishGent/kairos/internal/types"
)

// LoggingPublisher logs metrics using slog.
type LoggingPublisher struct {
	logger   *slog.Logger
	baseTags []string
}

// NewLoggingPublisher creates a new logging publisher.
func NewLoggingPublisher(logger *slog.Logger, baseTags ...string) *LoggingPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggingPublisher{
		logger:   logger.With("component", "metrics"),
		baseTags: baseTags,
	}
}

func (p *LoggingPublisher) Gauge(name string, value float64, tags ...string) {
	p.logger.Debug("gauge", "name", name, "value", value, "tags", p.mergeTags(tags))
}

func (p *LoggingPublisher) Incr(name string, tags ...string) {
	p.logger.Debug("incr", "name", name, "tags", p.mergeTags(tags))
}

func (p *LoggingPublisher) Count(name string, value int64, tags ...string) {
	p.logger.Debug("count", "name", name, "value", value, "tags", p.mergeTags(tags))
}

func (p *LoggingPublisher) Histogram(name string, value float64, tags ...string) {
	p.logger.Debug("histogram", "name", name, "value", value, "tags", p.mergeTags(tags))
}

func (p *LoggingPublisher) Timing(name string, duration time.Duration, tags ...string) {
	p.logger.Debug("timing",
		"name", name,
		"duration_ms", duration.Milliseconds(),
		"tags", p.mergeTags(tags),
	)
}

// Event logs an event at a level matching its alert type.
func (p *LoggingPublisher) Event(title, text, alertType string, tags ...string) {
	level := slog.LevelInfo
	switch alertType {
	case "error":
		level = slog.LevelError
	case "warning":
		level = slog.LevelWarn
	}
	p.logger.Log(context.Background(), level, "event",
		"title", title,
		"text", text,
		"alert_type", alertType,
		"tags", p.mergeTags(tags),
	)
}

// PublishHealthMetrics logs one line per cache plus a system summary.
func (p *LoggingPublisher) PublishHealthMetrics(m *types.PublisherHealthMetrics) {
	if m == nil {
		return
	}

	for _, name := range sortedKeys(m.Caches) {
		s := m.Caches[name]
		perf := s.Performance
		p.logger.Info("cache_health",
			"cache", name,
			"l1_entries", s.L1.Entries,
			"l1_capacity", s.L1.Capacity,
			"l2_entries", s.L2.Entries,
			"l2_capacity", s.L2.Capacity,
			"l2_bytes", s.L2.Bytes,
			"l1_hit_rate", perf.L1HitRate(),
			"l2_hit_rate", perf.L2HitRate(),
			"requests", perf.Requests(),
		)
	}

	for _, dep := range sortedKeys(m.Bulkheads) {
		b := m.Bulkheads[dep]
		p.logger.Debug("bulkhead_health",
			"dependency", dep,
			"active", b.Active,
			"queued", b.Queued,
			"rejected", b.Rejected(),
		)
	}

	attrs := []any{"timestamp", m.Timestamp}
	if m.Analysis != nil {
		attrs = append(attrs, "cache_health", m.Analysis.OverallHealth.String())
	}
	if m.System != nil {
		attrs = append(attrs, "system_health", m.System.Overall.String(), "breakers", m.System.Breakers)
	}
	if m.Fetches != nil {
		attrs = append(attrs,
			"fetches", m.Fetches.Total,
			"fetch_errors", m.Fetches.Errors,
			"fetch_p95_ms", m.Fetches.P95LatencyMs,
		)
	}
	p.logger.Info("health_metrics", attrs...)
}

// Close does nothing for logging publisher.
func (p *LoggingPublisher) Close() error {
	return nil
}

func (p *LoggingPublisher) mergeTags(tags []string) []string {
	if len(tags) == 0 {
		return p.baseTags
	}
	if len(p.baseTags) == 0 {
		return tags
	}
	return append(append(make([]string, 0, len(p.baseTags)+len(tags)), p.baseTags...), tags...)
}

var _ types.Publisher = (*LoggingPublisher)(nil)
