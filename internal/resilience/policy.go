package resilience

import (
	"context"
	"errors"
	"time"

	"github.com/LavishGent/kairos/internal/config"
)

// Operation fetches a fresh value from an upstream dependency.
type Operation func(ctx context.Context) ([]byte, error)

// Policy combines the bulkhead, retry and circuit breaker of one dependency.
type Policy struct {
	name        string
	breaker     *CircuitBreaker
	retry       *RetryPolicy
	bulkhead    *Bulkhead
	callTimeout time.Duration
}

// NewPolicy builds the policy for a dependency. now may be nil.
func NewPolicy(name string, cfg config.DependencyConfig, now func() time.Time, opts ...RetryOption) *Policy {
	return &Policy{
		name:        name,
		breaker:     NewCircuitBreaker(name, cfg, now),
		retry:       NewRetryPolicy(cfg, opts...),
		bulkhead:    NewBulkhead(cfg.MaxConcurrent, cfg.MaxQueue, cfg.AcquireTimeout),
		callTimeout: cfg.CallTimeout,
	}
}

// Execute runs op through Bulkhead -> Retry -> Circuit Breaker -> Operation.
//
// The breaker sits inside the retry loop so that every attempt counts toward
// its failure threshold; once it opens, the remaining attempts stop. With a
// failure threshold at or below MaxRetries an always-failing call therefore
// ends after threshold attempts rather than MaxRetries+1. Each attempt gets
// its own call timeout. Caller cancellation is not counted as an upstream
// failure, but an expired caller deadline is.
//
// Execute returns the value, the number of times op was invoked, and the
// error. When op ran and failed, the error is its last failure even if the
// breaker opened or the caller's deadline passed afterwards.
func (p *Policy) Execute(ctx context.Context, op Operation) ([]byte, int, error) {
	var (
		value    []byte
		attempts int
		lastErr  error
	)

	err := p.bulkhead.ExecuteCtx(ctx, func(ctx context.Context) error {
		return p.retry.ExecuteCtx(ctx, func(ctx context.Context) error {
			if !p.breaker.Allow() {
				return ErrCircuitOpen
			}

			attempts++
			v, err := p.attempt(ctx, op)
			switch {
			case err == nil:
				p.breaker.RecordSuccess()
				value = v
				return nil
			case errors.Is(ctx.Err(), context.Canceled):
				p.breaker.Cancel()
				return err
			}

			p.breaker.RecordFailure()
			lastErr = err
			return err
		})
	})

	if lastErr != nil && (IsCircuitOpen(err) || errors.Is(err, context.DeadlineExceeded)) {
		err = lastErr
	}
	return value, attempts, err
}

func (p *Policy) attempt(ctx context.Context, op Operation) ([]byte, error) {
	if p.callTimeout <= 0 {
		return op(ctx)
	}
	ctx, cancel := context.WithTimeout(ctx, p.callTimeout)
	defer cancel()
	return op(ctx)
}

// Name returns the dependency name.
func (p *Policy) Name() string {
	return p.name
}

// CircuitBreaker returns the circuit breaker component.
func (p *Policy) CircuitBreaker() *CircuitBreaker {
	return p.breaker
}

// Retry returns the retry component.
func (p *Policy) Retry() *RetryPolicy {
	return p.retry
}

// Bulkhead returns the bulkhead component.
func (p *Policy) Bulkhead() *Bulkhead {
	return p.bulkhead
}

// CircuitState returns the current circuit breaker state.
func (p *Policy) CircuitState() State {
	return p.breaker.State()
}
