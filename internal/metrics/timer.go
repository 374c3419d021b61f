package metrics

import (
	"time"

	"github.com/LavishGent/kairos/internal/types"
)

// Timer measures one operation and reports it to a publisher.
type Timer struct {
	publisher types.Publisher
	name      string
	tags      []string
	start     time.Time
}

// NewTimer starts a timer that records to publisher when stopped.
func NewTimer(publisher types.Publisher, name string, tags ...string) *Timer {
	return &Timer{
		publisher: publisher,
		name:      name,
		tags:      tags,
		start:     time.Now(),
	}
}

// Stop records the elapsed time as a timing metric and returns it.
func (t *Timer) Stop(extraTags ...string) time.Duration {
	duration := time.Since(t.start)
	tags := t.tags
	if len(extraTags) > 0 {
		tags = append(append(make([]string, 0, len(t.tags)+len(extraTags)), t.tags...), extraTags...)
	}
	t.publisher.Timing(t.name, duration, tags...)
	return duration
}

// Elapsed returns the time since the timer was started without recording.
func (t *Timer) Elapsed() time.Duration {
	return time.Since(t.start)
}
