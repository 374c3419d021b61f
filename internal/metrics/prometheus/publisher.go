// Package prometheus exposes kairos metrics to Prometheus scrapes.
package prometheus

import (
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/LavishGent/kairos/internal/metrics"
	"github.com/LavishGent/kairos/internal/types"
)

// Publisher implements types.Publisher on top of a Prometheus registry.
// Metric names are the dotted kairos names with dots turned into
// underscores; DataDog-style "key:value" tags become labels.
type Publisher struct {
	registry  prometheus.Registerer
	namespace string
	logger    *slog.Logger

	mu         sync.Mutex
	counters   map[string]*prometheus.CounterVec
	gauges     map[string]*prometheus.GaugeVec
	histograms map[string]*prometheus.HistogramVec
	labelKeys  map[string][]string
}

// New creates a publisher. If registry is nil, prometheus.DefaultRegisterer
// is used.
func New(registry prometheus.Registerer, namespace string, logger *slog.Logger) *Publisher {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}
	if namespace == "" {
		namespace = "kairos"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{
		registry:   registry,
		namespace:  namespace,
		logger:     logger.With("component", "prometheus"),
		counters:   make(map[string]*prometheus.CounterVec),
		gauges:     make(map[string]*prometheus.GaugeVec),
		histograms: make(map[string]*prometheus.HistogramVec),
		labelKeys:  make(map[string][]string),
	}
}

func (p *Publisher) Gauge(name string, value float64, tags ...string) {
	keys, labels := splitTags(tags)
	if g := p.gauge(name, keys); g != nil {
		p.with(name, labels, func() { g.With(labels).Set(value) })
	}
}

func (p *Publisher) Incr(name string, tags ...string) {
	p.Count(name, 1, tags...)
}

func (p *Publisher) Count(name string, value int64, tags ...string) {
	if value < 0 {
		return
	}
	keys, labels := splitTags(tags)
	if c := p.counter(name, keys); c != nil {
		p.with(name, labels, func() { c.With(labels).Add(float64(value)) })
	}
}

func (p *Publisher) Histogram(name string, value float64, tags ...string) {
	keys, labels := splitTags(tags)
	if h := p.histogram(name, keys); h != nil {
		p.with(name, labels, func() { h.With(labels).Observe(value) })
	}
}

// Timing observes the duration in seconds.
func (p *Publisher) Timing(name string, duration time.Duration, tags ...string) {
	p.Histogram(name+".seconds", duration.Seconds(), tags...)
}

// Event has no Prometheus equivalent; it is counted per alert type.
func (p *Publisher) Event(title, text, alertType string, tags ...string) {
	p.Incr("events", metrics.Tag("alert_type", alertType))
}

// PublishHealthMetrics sets one gauge per health sample.
func (p *Publisher) PublishHealthMetrics(m *types.PublisherHealthMetrics) {
	for _, s := range metrics.HealthSamples(m) {
		p.Gauge(s.Name, s.Value, s.Tags...)
	}
}

// Close does nothing; the registry owns the collectors.
func (p *Publisher) Close() error {
	return nil
}

// with recovers from label mismatches so that one badly tagged call cannot
// take down the caller.
func (p *Publisher) with(name string, labels prometheus.Labels, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Debug("Dropped metric with inconsistent labels", "name", name, "labels", labels, "panic", r)
		}
	}()
	fn()
}

func (p *Publisher) fqName(name string) string {
	return prometheus.BuildFQName(p.namespace, "", strings.NewReplacer(".", "_", "-", "_").Replace(name))
}

// checkLabels pins the label keys of a metric to those of its first use.
// Must be called with p.mu held.
func (p *Publisher) checkLabels(fq string, keys []string) bool {
	prev, ok := p.labelKeys[fq]
	if !ok {
		p.labelKeys[fq] = keys
		return true
	}
	if len(prev) != len(keys) {
		return false
	}
	for i := range keys {
		if prev[i] != keys[i] {
			return false
		}
	}
	return true
}

func (p *Publisher) gauge(name string, keys []string) *prometheus.GaugeVec {
	fq := p.fqName(name)

	p.mu.Lock()
	defer p.mu.Unlock()

	if g, ok := p.gauges[fq]; ok {
		if !p.checkLabels(fq, keys) {
			return nil
		}
		return g
	}
	if !p.checkLabels(fq, keys) {
		return nil
	}

	g := prometheus.NewGaugeVec(prometheus.GaugeOpts{Name: fq, Help: name}, keys)
	if err := p.registry.Register(g); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.GaugeVec); ok {
				g = existing
			}
		} else {
			p.logger.Debug("Failed to register gauge", "name", fq, "error", err)
			return nil
		}
	}
	p.gauges[fq] = g
	return g
}

func (p *Publisher) counter(name string, keys []string) *prometheus.CounterVec {
	fq := p.fqName(name) + "_total"

	p.mu.Lock()
	defer p.mu.Unlock()

	if c, ok := p.counters[fq]; ok {
		if !p.checkLabels(fq, keys) {
			return nil
		}
		return c
	}
	if !p.checkLabels(fq, keys) {
		return nil
	}

	c := prometheus.NewCounterVec(prometheus.CounterOpts{Name: fq, Help: name}, keys)
	if err := p.registry.Register(c); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				c = existing
			}
		} else {
			p.logger.Debug("Failed to register counter", "name", fq, "error", err)
			return nil
		}
	}
	p.counters[fq] = c
	return c
}

func (p *Publisher) histogram(name string, keys []string) *prometheus.HistogramVec {
	fq := p.fqName(name)

	p.mu.Lock()
	defer p.mu.Unlock()

	if h, ok := p.histograms[fq]; ok {
		if !p.checkLabels(fq, keys) {
			return nil
		}
		return h
	}
	if !p.checkLabels(fq, keys) {
		return nil
	}

	h := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    fq,
		Help:    name,
		Buckets: prometheus.DefBuckets,
	}, keys)
	if err := p.registry.Register(h); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.HistogramVec); ok {
				h = existing
			}
		} else {
			p.logger.Debug("Failed to register histogram", "name", fq, "error", err)
			return nil
		}
	}
	p.histograms[fq] = h
	return h
}

// splitTags turns "key:value" tags into sorted label keys and a label set.
// Tags without a colon become a label named after the tag with value "true".
func splitTags(tags []string) ([]string, prometheus.Labels) {
	labels := make(prometheus.Labels, len(tags))
	for _, tag := range tags {
		k, v, ok := strings.Cut(tag, ":")
		if !ok {
			v = "true"
		}
		k = strings.NewReplacer(".", "_", "-", "_").Replace(k)
		if k == "" {
			continue
		}
		labels[k] = v
	}
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, labels
}

var _ types.Publisher = (*Publisher)(nil)
