package metrics

import (
	"time"

	"github.com/LavishGent/kairos/internal/types"
)

// NoOpRecorder discards fetch outcomes.
type NoOpRecorder struct{}

func NewNoOpRecorder() *NoOpRecorder {
	return &NoOpRecorder{}
}

func (NoOpRecorder) RecordFetch(source string, latency time.Duration, err error) {}
func (NoOpRecorder) Snapshot() types.FetchStats                                  { return types.FetchStats{} }
func (NoOpRecorder) Reset()                                                      {}

// NoOpPublisher is a publisher for tests or when metrics are disabled.
type NoOpPublisher struct{}

// NewNoOpPublisher creates a new no-op publisher.
func NewNoOpPublisher() *NoOpPublisher {
	return &NoOpPublisher{}
}

func (NoOpPublisher) Gauge(name string, value float64, tags ...string)           {}
func (NoOpPublisher) Incr(name string, tags ...string)                           {}
func (NoOpPublisher) Count(name string, value int64, tags ...string)             {}
func (NoOpPublisher) Histogram(name string, value float64, tags ...string)       {}
func (NoOpPublisher) Timing(name string, duration time.Duration, tags ...string) {}
func (NoOpPublisher) Event(title, text, alertType string, tags ...string)        {}
func (NoOpPublisher) PublishHealthMetrics(metrics *types.PublisherHealthMetrics) {}
func (NoOpPublisher) Close() error                                               { return nil }

var (
	_ Recorder        = (*NoOpRecorder)(nil)
	_ types.Publisher = (*NoOpPublisher)(nil)
)
