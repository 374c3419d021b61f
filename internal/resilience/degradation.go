package resilience

import (
	"sort"
	"sync"
	"time"

	"github.com/LavishGent/kairos/internal/types"
)

// Degradation tracks which dependencies are currently served from fallbacks.
type Degradation struct {
	now func() time.Time

	mu       sync.RWMutex
	services map[string]types.ServiceStatus
}

// NewDegradation creates an empty tracker. now may be nil.
func NewDegradation(now func() time.Time) *Degradation {
	if now == nil {
		now = time.Now
	}
	return &Degradation{
		now:      now,
		services: make(map[string]types.ServiceStatus),
	}
}

// MarkDegraded records that dep is failing. Since only moves when the
// dependency was healthy before. It reports whether this was a transition.
func (d *Degradation) MarkDegraded(dep, reason string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	prev, ok := d.services[dep]
	if ok && prev.Degraded {
		prev.Reason = reason
		d.services[dep] = prev
		return false
	}
	d.services[dep] = types.ServiceStatus{
		Dependency: dep,
		Degraded:   true,
		Reason:     reason,
		Since:      d.now(),
	}
	return true
}

// MarkHealthy records that dep answered. It reports whether dep was degraded.
func (d *Degradation) MarkHealthy(dep string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	prev, ok := d.services[dep]
	if ok && !prev.Degraded {
		return false
	}
	d.services[dep] = types.ServiceStatus{
		Dependency: dep,
		Since:      d.now(),
	}
	return ok && prev.Degraded
}

// Status returns the status of dep and whether it has been seen.
func (d *Degradation) Status(dep string) (types.ServiceStatus, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	s, ok := d.services[dep]
	return s, ok
}

// IsDegraded reports whether dep is currently degraded.
func (d *Degradation) IsDegraded(dep string) bool {
	s, _ := d.Status(dep)
	return s.Degraded
}

// All returns a copy of every status.
func (d *Degradation) All() map[string]types.ServiceStatus {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make(map[string]types.ServiceStatus, len(d.services))
	for k, v := range d.services {
		out[k] = v
	}
	return out
}

// Degraded lists degraded dependencies in sorted order.
func (d *Degradation) Degraded() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var out []string
	for name, s := range d.services {
		if s.Degraded {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}
