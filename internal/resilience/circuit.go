// Package resilience protects calls to upstream data providers with circuit
// breakers, retries, bulkheads and fallbacks.
package resilience

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/LavishGent/kairos/internal/config"
)

type State int32

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

const (
	defaultFailureThreshold = 5
	defaultOpenTimeout      = 60 * time.Second
)

// CircuitBreaker trips after a run of consecutive failures and fails fast
// until the open timeout, measured from the moment it opened, has elapsed.
// It then admits a bounded number of probes; one probe success closes it and
// a probe failure reopens it with a fresh timer.
type CircuitBreaker struct {
	name      string
	threshold int
	openFor   time.Duration
	maxProbes int
	now       func() time.Time

	// state mirrors the locked state so closed breakers admit calls
	// without taking mu.
	state atomic.Int32
	trips atomic.Int64

	mu          sync.Mutex
	failures    int
	probes      int
	openedAt    time.Time
	lastFailure time.Time
	lastSuccess time.Time
	listener    func(name string, from, to State)
}

// transition is a state change whose listener runs after mu is released.
type transition struct {
	name     string
	from, to State
	listener func(name string, from, to State)
}

func (t *transition) fire() {
	if t != nil && t.listener != nil {
		t.listener(t.name, t.from, t.to)
	}
}

// NewCircuitBreaker creates a closed breaker for the named dependency.
// now may be nil.
func NewCircuitBreaker(name string, cfg config.DependencyConfig, now func() time.Time) *CircuitBreaker {
	cb := &CircuitBreaker{
		name:      name,
		threshold: cfg.FailureThreshold,
		openFor:   cfg.OpenTimeout,
		maxProbes: cfg.HalfOpenMaxProbes,
		now:       now,
	}
	if cb.threshold <= 0 {
		cb.threshold = defaultFailureThreshold
	}
	if cb.openFor <= 0 {
		cb.openFor = defaultOpenTimeout
	}
	if cb.maxProbes <= 0 {
		cb.maxProbes = 1
	}
	if cb.now == nil {
		cb.now = time.Now
	}
	return cb
}

// Name returns the dependency this breaker guards.
func (cb *CircuitBreaker) Name() string {
	return cb.name
}

// Execute runs fn if the breaker admits it and records the outcome.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	if !cb.Allow() {
		return ErrCircuitOpen
	}
	err := fn()
	if err != nil {
		cb.RecordFailure()
	} else {
		cb.RecordSuccess()
	}
	return err
}

// Allow reports whether a call may go upstream. An open breaker whose
// timeout has elapsed moves to half-open and admits the caller as its first
// probe.
func (cb *CircuitBreaker) Allow() bool {
	if cb.State() == StateClosed {
		return true
	}

	var t *transition
	allowed := false

	cb.mu.Lock()
	switch cb.State() {
	case StateClosed:
		allowed = true
	case StateOpen:
		if cb.now().Sub(cb.openedAt) >= cb.openFor {
			t = cb.moveTo(StateHalfOpen)
			cb.probes = 1
			allowed = true
		}
	case StateHalfOpen:
		if cb.probes < cb.maxProbes {
			cb.probes++
			allowed = true
		}
	}
	cb.mu.Unlock()

	t.fire()
	return allowed
}

// RecordSuccess closes a half-open breaker and clears the failure run.
func (cb *CircuitBreaker) RecordSuccess() {
	var t *transition

	cb.mu.Lock()
	cb.lastSuccess = cb.now()
	switch cb.State() {
	case StateClosed:
		cb.failures = 0
	case StateHalfOpen:
		t = cb.moveTo(StateClosed)
	}
	cb.mu.Unlock()

	t.fire()
}

// RecordFailure extends the failure run, opening the breaker at the
// threshold. A failed probe reopens it immediately.
func (cb *CircuitBreaker) RecordFailure() {
	var t *transition

	cb.mu.Lock()
	cb.lastFailure = cb.now()
	switch cb.State() {
	case StateClosed:
		cb.failures++
		if cb.failures >= cb.threshold {
			t = cb.moveTo(StateOpen)
		}
	case StateHalfOpen:
		t = cb.moveTo(StateOpen)
	}
	cb.mu.Unlock()

	t.fire()
}

// Cancel gives back a probe slot admitted by Allow when the call ended
// without an upstream outcome, such as caller cancellation.
func (cb *CircuitBreaker) Cancel() {
	cb.mu.Lock()
	if cb.State() == StateHalfOpen && cb.probes > 0 {
		cb.probes--
	}
	cb.mu.Unlock()
}

// moveTo switches state and resets the counters the new state starts from.
// Must be called with mu held; the caller fires the result after unlocking.
func (cb *CircuitBreaker) moveTo(to State) *transition {
	from := cb.State()
	if from == to {
		return nil
	}

	cb.probes = 0
	switch to {
	case StateClosed:
		cb.failures = 0
	case StateOpen:
		cb.openedAt = cb.now()
		cb.trips.Add(1)
	}
	cb.state.Store(int32(to))

	return &transition{name: cb.name, from: from, to: to, listener: cb.listener}
}

// State returns the current circuit breaker state.
func (cb *CircuitBreaker) State() State {
	return State(cb.state.Load())
}

// IsOpen returns true if the circuit is open.
func (cb *CircuitBreaker) IsOpen() bool {
	return cb.State() == StateOpen
}

// RetryAfter is the time left before an open breaker admits a probe, or
// zero when it is not open.
func (cb *CircuitBreaker) RetryAfter() time.Duration {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.retryAfterLocked()
}

func (cb *CircuitBreaker) retryAfterLocked() time.Duration {
	if cb.State() != StateOpen {
		return 0
	}
	return max(cb.openFor-cb.now().Sub(cb.openedAt), 0)
}

// Trips counts how many times the breaker has opened.
func (cb *CircuitBreaker) Trips() int64 {
	return cb.trips.Load()
}

// SetOnStateChange sets a callback for state changes.
// The callback runs synchronously after the transition, outside the
// breaker's lock, so it may read breaker state.
func (cb *CircuitBreaker) SetOnStateChange(fn func(name string, from, to State)) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.listener = fn
}

// Reset forces the breaker closed.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	t := cb.moveTo(StateClosed)
	cb.failures = 0
	cb.mu.Unlock()

	t.fire()
}

// Stats returns circuit breaker statistics.
func (cb *CircuitBreaker) Stats() CircuitBreakerStats {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	return CircuitBreakerStats{
		Name:             cb.name,
		State:            cb.State(),
		ConsecutiveFails: cb.failures,
		HalfOpenRequests: cb.probes,
		Trips:            cb.trips.Load(),
		OpenedAt:         cb.openedAt,
		RetryAfter:       cb.retryAfterLocked(),
		LastFailure:      cb.lastFailure,
		LastSuccess:      cb.lastSuccess,
	}
}

// CircuitBreakerStats contains circuit breaker statistics.
//
//nolint:govet // Stats struct - logical grouping prioritized over alignment
type CircuitBreakerStats struct {
	Name             string
	State            State
	ConsecutiveFails int
	HalfOpenRequests int
	Trips            int64
	OpenedAt         time.Time
	RetryAfter       time.Duration
	LastFailure      time.Time
	LastSuccess      time.Time
}
