// Package datadog provides a DataDog StatsD metrics publisher.
package datadog

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/DataDog/datadog-go/v5/statsd"

	"github.com/LavishGent/kairos/internal/config"
	"github.com/LavishGent/kairos/internal/metrics"
	"github.com/LavishGent/kairos/internal/types"
)

// Publisher sends kairos metrics to a DataDog agent over StatsD.
type Publisher struct {
	client statsd.ClientInterface
	logger *slog.Logger
	config *config.DataDogConfig
}

// NewPublisher creates a new DataDog publisher from config.
// If DataDog is not enabled, it returns a metrics.NoOpPublisher.
// Extra statsd options are applied after the configured ones.
func NewPublisher(cfg *config.DataDogConfig, logger *slog.Logger, opts ...statsd.Option) (types.Publisher, error) {
	if !cfg.Enabled {
		return metrics.NewNoOpPublisher(), nil
	}

	if logger == nil {
		logger = slog.Default()
	}

	addr := fmt.Sprintf("%s:%d", cfg.AgentHost, cfg.Port)

	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "kairos"
	}

	options := append([]statsd.Option{
		statsd.WithNamespace(prefix + "."),
		statsd.WithTags(cfg.Tags),
	}, opts...)

	client, err := statsd.New(addr, options...)
	if err != nil {
		return nil, fmt.Errorf("failed to create statsd client: %w", err)
	}

	logger.Info("DataDog publisher initialized",
		"address", addr,
		"prefix", prefix,
		"tags", cfg.Tags,
	)

	return newWithClient(client, cfg, logger), nil
}

func newWithClient(client statsd.ClientInterface, cfg *config.DataDogConfig, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{
		client: client,
		config: cfg,
		logger: logger.With("component", "datadog"),
	}
}

// Gauge records a gauge metric (value at a point in time).
func (p *Publisher) Gauge(name string, value float64, tags ...string) {
	if err := p.client.Gauge(name, value, tags, 1); err != nil {
		p.logger.Debug("Failed to send gauge metric", "name", name, "error", err)
	}
}

// Incr increments a counter by 1.
func (p *Publisher) Incr(name string, tags ...string) {
	if err := p.client.Incr(name, tags, 1); err != nil {
		p.logger.Debug("Failed to send incr metric", "name", name, "error", err)
	}
}

// Count increments a counter by a specified amount.
func (p *Publisher) Count(name string, value int64, tags ...string) {
	if err := p.client.Count(name, value, tags, 1); err != nil {
		p.logger.Debug("Failed to send count metric", "name", name, "error", err)
	}
}

// Histogram records a distribution of values.
func (p *Publisher) Histogram(name string, value float64, tags ...string) {
	if err := p.client.Histogram(name, value, tags, 1); err != nil {
		p.logger.Debug("Failed to send histogram metric", "name", name, "error", err)
	}
}

// Timing records a timing metric.
func (p *Publisher) Timing(name string, duration time.Duration, tags ...string) {
	if err := p.client.Timing(name, duration, tags, 1); err != nil {
		p.logger.Debug("Failed to send timing metric", "name", name, "error", err)
	}
}

// Event sends a DataDog event.
func (p *Publisher) Event(title, text, alertType string, tags ...string) {
	event := &statsd.Event{
		Title:     title,
		Text:      text,
		AlertType: statsd.EventAlertType(alertType),
		Tags:      tags,
	}
	if err := p.client.Event(event); err != nil {
		p.logger.Debug("Failed to send event", "title", title, "error", err)
	}
}

// PublishHealthMetrics sends every cache, breaker and fetch gauge of the
// batch.
func (p *Publisher) PublishHealthMetrics(m *types.PublisherHealthMetrics) {
	for _, sample := range metrics.HealthSamples(m) {
		p.Gauge(sample.Name, sample.Value, sample.Tags...)
	}
}

// Close releases resources held by the publisher.
func (p *Publisher) Close() error {
	if p.client != nil {
		return p.client.Close()
	}
	return nil
}

var _ types.Publisher = (*Publisher)(nil)
