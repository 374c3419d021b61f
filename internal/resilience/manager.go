package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/LavishGent/kairos/internal/config"
	"github.com/LavishGent/kairos/internal/logging"
	"github.com/LavishGent/kairos/internal/snapshot"
	"github.com/LavishGent/kairos/internal/types"
)

// defaultFallbackTimeout bounds a fallback run after the caller's deadline
// when the dependency has no call timeout.
const defaultFallbackTimeout = 5 * time.Second

// Fallback supplies a substitute value when a protected call cannot produce
// one. cause is the failure that triggered it.
type Fallback func(ctx context.Context, cause error) ([]byte, error)

// Manager owns one Policy per dependency and turns their failures into
// fallback values, service status and tracked errors.
//
//nolint:govet // Manager struct - logical grouping prioritized over alignment
type Manager struct {
	config    *config.Config
	logger    *slog.Logger
	now       func() time.Time
	snapshots types.SnapshotStore

	tracker     *ErrorTracker
	degradation *Degradation

	mu       sync.RWMutex
	policies map[string]*Policy
	onChange []func(dep string, from, to State)
}

// NewManager creates policies for every configured dependency. Others are
// created on first use with the default dependency settings.
func NewManager(cfg *config.Config, opts *types.ManagerOptions) *Manager {
	if opts == nil {
		opts = &types.ManagerOptions{}
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	store := opts.Snapshots
	if store == nil {
		store = snapshot.NewDisabledStore()
	}

	m := &Manager{
		config:      cfg,
		logger:      logging.New(opts.Logger, "resilience-manager"),
		now:         now,
		snapshots:   store,
		tracker:     NewErrorTracker(defaultMaxErrors, now),
		degradation: NewDegradation(now),
		policies:    make(map[string]*Policy),
	}

	for name := range cfg.Dependencies {
		m.policy(name)
	}
	return m
}

// OnStateChange registers a listener for breaker transitions of every
// dependency. Listeners run outside breaker locks.
func (m *Manager) OnStateChange(fn func(dep string, from, to State)) {
	m.mu.Lock()
	m.onChange = append(m.onChange, fn)
	m.mu.Unlock()
}

func (m *Manager) policy(dep string) *Policy {
	m.mu.RLock()
	p, ok := m.policies[dep]
	m.mu.RUnlock()
	if ok {
		return p
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok = m.policies[dep]; ok {
		return p
	}

	cfg := m.config.Dependency(dep)
	p = NewPolicy(dep, cfg, m.now, WithOnRetry(func(attempt int, err error, delay time.Duration) {
		m.tracker.Record(dep, types.KindTransient, err, map[string]any{"attempt": attempt, "delay": delay})
		m.logger.Debug("Retrying dependency call",
			"dependency", dep,
			"attempt", attempt,
			"delay", delay,
			"error", err,
		)
	}))
	p.breaker.SetOnStateChange(m.handleStateChange)
	m.policies[dep] = p

	m.logger.Debug("Created dependency policy",
		"dependency", dep,
		"failure_threshold", cfg.FailureThreshold,
		"open_timeout", cfg.OpenTimeout,
		"max_retries", cfg.MaxRetries,
	)
	return p
}

func (m *Manager) handleStateChange(dep string, from, to State) {
	switch to {
	case StateOpen:
		m.logger.Warn("Circuit opened", "dependency", dep, "from", from.String())
	case StateHalfOpen:
		m.logger.Info("Circuit half-open, probing", "dependency", dep)
	case StateClosed:
		m.logger.Info("Circuit closed", "dependency", dep)
	}

	m.mu.RLock()
	listeners := m.onChange
	m.mu.RUnlock()
	for _, fn := range listeners {
		fn(dep, from, to)
	}
}

// CallProtected runs op for dep and saves successful results as the
// dependency's last-known-good snapshot.
func (m *Manager) CallProtected(ctx context.Context, dep string, op Operation, fallback Fallback) ([]byte, error) {
	return m.CallProtectedKey(ctx, dep, "", op, fallback)
}

// CallProtectedKey is CallProtected with a per-request snapshot key, for
// dependencies that serve many resources (one forecast per city, say).
//
// Outcomes:
//   - success: the value, nil error.
//   - breaker open or transient failures exhausted: the fallback value, nil error.
//   - permanent failure: the fallback value and a *types.DependencyError.
//   - no usable fallback: an error wrapping types.ErrNoFallback and the cause.
//   - ctx cancelled: ctx.Err(), with nothing recorded against the breaker.
//   - ctx deadline passed: a transient failure like any other; the fallback
//     runs on a detached context bounded by the call timeout.
func (m *Manager) CallProtectedKey(ctx context.Context, dep, key string, op Operation, fallback Fallback) ([]byte, error) {
	p := m.policy(dep)

	value, attempts, err := p.Execute(ctx, op)
	if err == nil {
		if m.degradation.MarkHealthy(dep) {
			m.logger.Info("Dependency recovered", "dependency", dep)
		}
		if serr := m.snapshots.Save(ctx, snapshotKey(dep, key), value); serr != nil {
			m.logger.Debug("Failed to save snapshot", "dependency", dep, "key", key, "error", serr)
		}
		return value, nil
	}

	if errors.Is(ctx.Err(), context.Canceled) {
		return nil, ctx.Err()
	}

	fctx, cancel := m.fallbackContext(ctx, p)
	defer cancel()

	if IsCircuitOpen(err) && attempts == 0 {
		cause := &types.DependencyError{
			Dependency: dep,
			Kind:       types.KindTransient,
			RetryAfter: p.CircuitBreaker().RetryAfter(),
			Err:        err,
		}
		m.markDegraded(dep, cause)
		m.logger.Debug("Circuit open, serving fallback", "dependency", dep, "retry_after", cause.RetryAfter)
		v, ferr := m.runFallback(fctx, dep, fallback, cause)
		if ferr != nil {
			return nil, ferr
		}
		return v, nil
	}

	kind := types.KindTransient
	if types.IsPermanent(err) {
		kind = types.KindPermanent
	}

	cause := &types.DependencyError{
		Dependency: dep,
		Kind:       kind,
		Attempts:   attempts,
		Err:        err,
	}
	m.tracker.Record(dep, kind, err, map[string]any{"attempts": attempts})
	m.markDegraded(dep, cause)

	v, ferr := m.runFallback(fctx, dep, fallback, cause)
	if ferr != nil {
		return nil, ferr
	}

	if kind == types.KindPermanent {
		return v, cause
	}

	m.logger.Warn("Serving fallback after failed attempts",
		"dependency", dep,
		"attempts", attempts,
		"error", err,
	)
	return v, nil
}

// fallbackContext hands the fallback the caller's context, or, when the
// caller's deadline has already passed, a detached one bounded by the
// dependency's call timeout.
func (m *Manager) fallbackContext(ctx context.Context, p *Policy) (context.Context, context.CancelFunc) {
	if ctx.Err() == nil {
		return ctx, func() {}
	}
	timeout := p.callTimeout
	if timeout <= 0 {
		timeout = defaultFallbackTimeout
	}
	return context.WithTimeout(context.WithoutCancel(ctx), timeout)
}

func (m *Manager) markDegraded(dep string, cause error) {
	if m.degradation.MarkDegraded(dep, cause.Error()) {
		m.logger.Warn("Dependency degraded", "dependency", dep, "reason", cause.Error())
	}
}

func (m *Manager) runFallback(ctx context.Context, dep string, fallback Fallback, cause error) ([]byte, error) {
	if fallback == nil {
		return nil, fmt.Errorf("%w for %s: %w", types.ErrNoFallback, dep, cause)
	}
	v, err := fallback(ctx, cause)
	if err != nil {
		m.logger.Error("No fallback available", "dependency", dep, "error", err, "cause", cause)
		return nil, fmt.Errorf("%w for %s: %w (fallback: %w)", types.ErrNoFallback, dep, cause, err)
	}
	return v, nil
}

// LastKnownGood returns a fallback that serves the most recent successful
// response saved for dep and key. Snapshots older than the dependency's
// FallbackMaxAge are refused with ErrSnapshotStale.
func (m *Manager) LastKnownGood(dep, key string) Fallback {
	maxAge := m.config.Dependency(dep).FallbackMaxAge
	return func(ctx context.Context, cause error) ([]byte, error) {
		snap, err := m.snapshots.Load(ctx, snapshotKey(dep, key))
		if err != nil {
			return nil, err
		}
		if age := snap.Age(m.now()); maxAge > 0 && age > maxAge {
			return nil, fmt.Errorf("%w: %s is %s old (max %s)", types.ErrSnapshotStale, dep, age.Round(time.Second), maxAge)
		}
		return snap.Value, nil
	}
}

// Static returns a fallback that always serves value.
func Static(value []byte) Fallback {
	return func(context.Context, error) ([]byte, error) {
		return value, nil
	}
}

// FirstOf tries each fallback in order and returns the first value.
func FirstOf(fallbacks ...Fallback) Fallback {
	return func(ctx context.Context, cause error) ([]byte, error) {
		var errs []error
		for _, fb := range fallbacks {
			if fb == nil {
				continue
			}
			v, err := fb(ctx, cause)
			if err == nil {
				return v, nil
			}
			errs = append(errs, err)
		}
		if len(errs) == 0 {
			return nil, types.ErrNoFallback
		}
		return nil, errors.Join(errs...)
	}
}

func snapshotKey(dep, key string) string {
	if key == "" {
		return dep
	}
	return dep + ":" + key
}

// SystemHealth aggregates breaker states: unhealthy if any breaker is open,
// otherwise degraded if any is half-open, otherwise healthy.
func (m *Manager) SystemHealth() types.SystemHealth {
	h := types.SystemHealth{
		Timestamp: m.now(),
		Overall:   types.HealthStatusHealthy,
		Breakers:  make(map[string]string),
		Services:  m.degradation.All(),
	}

	for _, p := range m.all() {
		state := p.CircuitState()
		h.Breakers[p.Name()] = state.String()
		switch state {
		case StateOpen:
			h.Overall = types.HealthStatusUnhealthy
		case StateHalfOpen:
			if h.Overall != types.HealthStatusUnhealthy {
				h.Overall = types.HealthStatusDegraded
			}
		}
	}
	return h
}

// Breaker returns the breaker of a known dependency.
func (m *Manager) Breaker(dep string) (*CircuitBreaker, error) {
	m.mu.RLock()
	p, ok := m.policies[dep]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", types.ErrUnknownDependency, dep)
	}
	return p.breaker, nil
}

// Policy returns the policy of a known dependency.
func (m *Manager) Policy(dep string) (*Policy, error) {
	m.mu.RLock()
	p, ok := m.policies[dep]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", types.ErrUnknownDependency, dep)
	}
	return p, nil
}

// Dependencies lists known dependencies in sorted order.
func (m *Manager) Dependencies() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(m.policies))
	for name := range m.policies {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ServiceStatus reports whether dep is currently served from fallbacks.
func (m *Manager) ServiceStatus(dep string) (types.ServiceStatus, bool) {
	return m.degradation.Status(dep)
}

// ErrorStats summarizes tracked failures within window.
func (m *Manager) ErrorStats(window time.Duration) types.ErrorStats {
	return m.tracker.Stats(window)
}

// RecentErrors returns up to limit tracked failures, newest first.
func (m *Manager) RecentErrors(limit int) []types.ErrorRecord {
	return m.tracker.Recent(limit)
}

// Snapshots returns the store used for last-known-good values.
func (m *Manager) Snapshots() types.SnapshotStore {
	return m.snapshots
}

// BulkheadStats reports call slots for every dependency seen so far.
func (m *Manager) BulkheadStats() map[string]types.BulkheadStats {
	out := make(map[string]types.BulkheadStats)
	for _, p := range m.all() {
		out[p.Name()] = p.Bulkhead().Stats()
	}
	return out
}

func (m *Manager) all() []*Policy {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*Policy, 0, len(m.policies))
	for _, p := range m.policies {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}
