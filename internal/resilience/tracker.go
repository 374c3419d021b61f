package resilience

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/LavishGent/kairos/internal/types"
)

const defaultMaxErrors = 1000

// ErrorTracker keeps the most recent dependency failures in a ring buffer.
type ErrorTracker struct {
	now func() time.Time

	mu      sync.RWMutex
	records []types.ErrorRecord
	next    int
	count   int
}

// NewErrorTracker creates a tracker holding at most maxEntries records.
func NewErrorTracker(maxEntries int, now func() time.Time) *ErrorTracker {
	if maxEntries <= 0 {
		maxEntries = defaultMaxErrors
	}
	if now == nil {
		now = time.Now
	}
	return &ErrorTracker{
		now:     now,
		records: make([]types.ErrorRecord, maxEntries),
	}
}

// Record stores a failure and returns the stored record.
func (t *ErrorTracker) Record(dep string, kind types.FailureKind, err error, fields map[string]any) types.ErrorRecord {
	rec := types.ErrorRecord{
		ID:         uuid.NewString(),
		Timestamp:  t.now(),
		Dependency: dep,
		Kind:       kind,
	}
	if err != nil {
		rec.Message = err.Error()
	}
	if len(fields) > 0 {
		rec.Context = make(map[string]string, len(fields))
		for k, v := range fields {
			rec.Context[k] = fmt.Sprint(v)
		}
	}

	t.mu.Lock()
	t.records[t.next] = rec
	t.next = (t.next + 1) % len(t.records)
	if t.count < len(t.records) {
		t.count++
	}
	t.mu.Unlock()

	return rec
}

// Recent returns up to limit records, newest first.
func (t *ErrorTracker) Recent(limit int) []types.ErrorRecord {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if limit <= 0 || limit > t.count {
		limit = t.count
	}
	out := make([]types.ErrorRecord, 0, limit)
	for i := 1; i <= limit; i++ {
		idx := (t.next - i + len(t.records)) % len(t.records)
		out = append(out, t.records[idx])
	}
	return out
}

// Stats summarizes failures recorded within window of now. A non-positive
// window covers every retained record.
func (t *ErrorTracker) Stats(window time.Duration) types.ErrorStats {
	stats := types.ErrorStats{
		Window:       window,
		ByDependency: make(map[string]int),
		ByKind:       make(map[string]int),
	}

	var cutoff time.Time
	if window > 0 {
		cutoff = t.now().Add(-window)
	}

	for _, rec := range t.Recent(0) {
		if window > 0 && !rec.Timestamp.After(cutoff) {
			// Recent is newest first, so the rest are older still.
			break
		}
		stats.Total++
		stats.ByDependency[rec.Dependency]++
		stats.ByKind[rec.Kind.String()]++
		if stats.MostRecent == nil {
			r := rec
			stats.MostRecent = &r
		}
	}
	return stats
}

// Len returns the number of retained records.
func (t *ErrorTracker) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.count
}
