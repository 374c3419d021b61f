package resilience

import (
	"context"
	"math/rand"
	"sync/atomic"
	"time"

	"github.com/LavishGent/kairos/internal/config"
)

// Classifier reports whether err is worth another attempt.
type Classifier func(err error) bool

// RetryPolicy retries transient failures with capped exponential backoff.
// The delay before retry n (1-based) is base*2^(n-1), capped at the maximum,
// plus jitter drawn uniformly from [0, base) when enabled.
type RetryPolicy struct {
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
	jitter     bool
	classify   Classifier
	onRetry    func(attempt int, err error, delay time.Duration)

	totalRetries atomic.Int64
	totalSuccess atomic.Int64
	totalFailure atomic.Int64
}

// RetryOption customizes a RetryPolicy.
type RetryOption func(*RetryPolicy)

// WithClassifier replaces the default IsRetryable classifier.
func WithClassifier(c Classifier) RetryOption {
	return func(rp *RetryPolicy) {
		if c != nil {
			rp.classify = c
		}
	}
}

// WithOnRetry registers a hook called before each backoff sleep.
func WithOnRetry(fn func(attempt int, err error, delay time.Duration)) RetryOption {
	return func(rp *RetryPolicy) {
		rp.onRetry = fn
	}
}

// NewRetryPolicy creates a retry policy from a dependency's settings.
// MaxRetries of zero disables retries.
func NewRetryPolicy(cfg config.DependencyConfig, opts ...RetryOption) *RetryPolicy {
	rp := &RetryPolicy{
		maxRetries: cfg.MaxRetries,
		baseDelay:  cfg.BaseDelay,
		maxDelay:   cfg.MaxDelay,
		jitter:     cfg.Jitter,
		classify:   IsRetryable,
	}

	if rp.maxRetries < 0 {
		rp.maxRetries = 0
	}
	if rp.baseDelay <= 0 {
		rp.baseDelay = 2 * time.Second
	}
	if rp.maxDelay <= 0 {
		rp.maxDelay = 30 * time.Second
	}

	for _, opt := range opts {
		opt(rp)
	}

	return rp
}

// MaxAttempts is the total number of invocations: the first try plus retries.
func (rp *RetryPolicy) MaxAttempts() int {
	return rp.maxRetries + 1
}

// ExecuteCtx runs fn until it succeeds, fails permanently, runs out of
// attempts or ctx is done. It returns the last error.
func (rp *RetryPolicy) ExecuteCtx(ctx context.Context, fn func(context.Context) error) error {
	var lastErr error

	for attempt := 1; attempt <= rp.MaxAttempts(); attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		err := fn(ctx)
		if err == nil {
			rp.totalSuccess.Add(1)
			return nil
		}

		lastErr = err

		if !rp.classify(err) {
			rp.totalFailure.Add(1)
			return err
		}

		if attempt == rp.MaxAttempts() {
			break
		}

		rp.totalRetries.Add(1)
		backoff := rp.Backoff(attempt)
		if rp.onRetry != nil {
			rp.onRetry(attempt, err, backoff)
		}

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	rp.totalFailure.Add(1)
	return lastErr
}

// Backoff returns the sleep after the given failed attempt.
func (rp *RetryPolicy) Backoff(attempt int) time.Duration {
	backoff := rp.baseDelay
	for i := 1; i < attempt && backoff < rp.maxDelay; i++ {
		backoff *= 2
	}
	if backoff > rp.maxDelay {
		backoff = rp.maxDelay
	}

	if rp.jitter {
		backoff += time.Duration(rand.Int63n(int64(rp.baseDelay)))
	}

	return backoff
}

// Stats returns retry statistics.
func (rp *RetryPolicy) Stats() (retries, success, failure int64) {
	return rp.totalRetries.Load(), rp.totalSuccess.Load(), rp.totalFailure.Load()
}

// Reset resets the statistics.
func (rp *RetryPolicy) Reset() {
	rp.totalRetries.Store(0)
	rp.totalSuccess.Store(0)
	rp.totalFailure.Store(0)
}
