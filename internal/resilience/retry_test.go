package resilience

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/LavishGent/kairos/internal/config"
	"github.com/LavishGent/kairos/internal/types"
)

func fastRetry(maxRetries int) config.DependencyConfig {
	return config.DependencyConfig{
		MaxRetries: maxRetries,
		BaseDelay:  time.Millisecond,
		MaxDelay:   5 * time.Millisecond,
	}
}

func TestNewRetryPolicy(t *testing.T) {
	t.Run("creates with config values", func(t *testing.T) {
		rp := NewRetryPolicy(config.DependencyConfig{
			MaxRetries: 4,
			BaseDelay:  200 * time.Millisecond,
			MaxDelay:   5 * time.Second,
			Jitter:     true,
		})

		if rp.MaxAttempts() != 5 {
			t.Errorf("MaxAttempts() = %v, want 5", rp.MaxAttempts())
		}
		if rp.baseDelay != 200*time.Millisecond {
			t.Errorf("baseDelay = %v, want 200ms", rp.baseDelay)
		}
		if rp.maxDelay != 5*time.Second {
			t.Errorf("maxDelay = %v, want 5s", rp.maxDelay)
		}
		if !rp.jitter {
			t.Error("jitter = false, want true")
		}
	})

	t.Run("applies defaults for zero values", func(t *testing.T) {
		rp := NewRetryPolicy(config.DependencyConfig{})

		if rp.MaxAttempts() != 1 {
			t.Errorf("MaxAttempts() = %v, want 1", rp.MaxAttempts())
		}
		if rp.baseDelay != 2*time.Second {
			t.Errorf("baseDelay = %v, want 2s", rp.baseDelay)
		}
		if rp.maxDelay != 30*time.Second {
			t.Errorf("maxDelay = %v, want 30s", rp.maxDelay)
		}
	})
}

func TestRetryPolicyExecuteCtx(t *testing.T) {
	ctx := context.Background()

	t.Run("succeeds on first attempt", func(t *testing.T) {
		rp := NewRetryPolicy(fastRetry(3))
		var attempts int

		err := rp.ExecuteCtx(ctx, func(context.Context) error {
			attempts++
			return nil
		})

		if err != nil {
			t.Errorf("ExecuteCtx() error = %v, want nil", err)
		}
		if attempts != 1 {
			t.Errorf("attempts = %v, want 1", attempts)
		}
	})

	t.Run("retries transient failures", func(t *testing.T) {
		rp := NewRetryPolicy(fastRetry(3))
		var attempts int

		err := rp.ExecuteCtx(ctx, func(context.Context) error {
			attempts++
			if attempts < 3 {
				return errors.New("503")
			}
			return nil
		})

		if err != nil {
			t.Errorf("ExecuteCtx() error = %v, want nil", err)
		}
		if attempts != 3 {
			t.Errorf("attempts = %v, want 3", attempts)
		}
	})

	t.Run("invokes max retries plus one times", func(t *testing.T) {
		rp := NewRetryPolicy(fastRetry(3))
		var attempts int
		upstream := errors.New("timeout")

		err := rp.ExecuteCtx(ctx, func(context.Context) error {
			attempts++
			return upstream
		})

		if !errors.Is(err, upstream) {
			t.Errorf("ExecuteCtx() error = %v, want %v", err, upstream)
		}
		if attempts != 4 {
			t.Errorf("attempts = %v, want 4", attempts)
		}
	})

	t.Run("does not retry permanent failures", func(t *testing.T) {
		rp := NewRetryPolicy(fastRetry(5))
		var attempts int

		err := rp.ExecuteCtx(ctx, func(context.Context) error {
			attempts++
			return types.Permanent(errors.New("404"))
		})

		if !types.IsPermanent(err) {
			t.Errorf("ExecuteCtx() error = %v, want permanent", err)
		}
		if attempts != 1 {
			t.Errorf("attempts = %v, want 1", attempts)
		}
	})

	t.Run("does not retry an open circuit", func(t *testing.T) {
		rp := NewRetryPolicy(fastRetry(5))
		var attempts int

		err := rp.ExecuteCtx(ctx, func(context.Context) error {
			attempts++
			return ErrCircuitOpen
		})

		if !errors.Is(err, ErrCircuitOpen) {
			t.Errorf("ExecuteCtx() error = %v, want ErrCircuitOpen", err)
		}
		if attempts != 1 {
			t.Errorf("attempts = %v, want 1", attempts)
		}
	})

	t.Run("custom classifier", func(t *testing.T) {
		rp := NewRetryPolicy(fastRetry(5), WithClassifier(func(error) bool { return false }))
		var attempts int

		_ = rp.ExecuteCtx(ctx, func(context.Context) error {
			attempts++
			return errors.New("503")
		})

		if attempts != 1 {
			t.Errorf("attempts = %v, want 1", attempts)
		}
	})

	t.Run("on retry hook sees each retry", func(t *testing.T) {
		var seen []int
		rp := NewRetryPolicy(fastRetry(2), WithOnRetry(func(attempt int, err error, delay time.Duration) {
			seen = append(seen, attempt)
		}))

		_ = rp.ExecuteCtx(ctx, func(context.Context) error { return errors.New("503") })

		if fmt.Sprint(seen) != "[1 2]" {
			t.Errorf("retries seen = %v, want [1 2]", seen)
		}
	})

	t.Run("respects cancellation during backoff", func(t *testing.T) {
		rp := NewRetryPolicy(config.DependencyConfig{
			MaxRetries: 10,
			BaseDelay:  time.Second,
			MaxDelay:   time.Second,
		})
		ctx, cancel := context.WithCancel(context.Background())
		var attempts int

		err := rp.ExecuteCtx(ctx, func(context.Context) error {
			attempts++
			cancel()
			return errors.New("503")
		})

		if !errors.Is(err, context.Canceled) {
			t.Errorf("ExecuteCtx() error = %v, want context.Canceled", err)
		}
		if attempts != 1 {
			t.Errorf("attempts = %v, want 1", attempts)
		}
	})

	t.Run("checks context before the first attempt", func(t *testing.T) {
		rp := NewRetryPolicy(fastRetry(5))
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		err := rp.ExecuteCtx(ctx, func(context.Context) error {
			t.Error("function called with a cancelled context")
			return nil
		})

		if !errors.Is(err, context.Canceled) {
			t.Errorf("ExecuteCtx() error = %v, want context.Canceled", err)
		}
	})
}

func TestRetryPolicyBackoff(t *testing.T) {
	t.Run("doubles from the base delay", func(t *testing.T) {
		rp := NewRetryPolicy(config.DependencyConfig{
			BaseDelay: 100 * time.Millisecond,
			MaxDelay:  10 * time.Second,
		})

		//nolint:govet // Test table - alignment not critical
		tests := []struct {
			attempt int
			want    time.Duration
		}{
			{1, 100 * time.Millisecond},
			{2, 200 * time.Millisecond},
			{3, 400 * time.Millisecond},
			{4, 800 * time.Millisecond},
		}
		for _, tt := range tests {
			if got := rp.Backoff(tt.attempt); got != tt.want {
				t.Errorf("Backoff(%d) = %v, want %v", tt.attempt, got, tt.want)
			}
		}
	})

	t.Run("capped at max", func(t *testing.T) {
		rp := NewRetryPolicy(config.DependencyConfig{
			BaseDelay: 2 * time.Second,
			MaxDelay:  30 * time.Second,
		})

		if got := rp.Backoff(5); got != 30*time.Second {
			t.Errorf("Backoff(5) = %v, want 30s", got)
		}
		if got := rp.Backoff(200); got != 30*time.Second {
			t.Errorf("Backoff(200) = %v, want 30s", got)
		}
	})

	t.Run("jitter stays below one base delay", func(t *testing.T) {
		rp := NewRetryPolicy(config.DependencyConfig{
			BaseDelay: 100 * time.Millisecond,
			MaxDelay:  10 * time.Second,
			Jitter:    true,
		})

		values := make(map[time.Duration]bool)
		for i := 0; i < 50; i++ {
			b := rp.Backoff(2)
			if b < 200*time.Millisecond || b >= 300*time.Millisecond {
				t.Fatalf("Backoff(2) = %v, want in [200ms, 300ms)", b)
			}
			values[b] = true
		}
		if len(values) < 2 {
			t.Error("jitter not producing variation")
		}
	})
}

func TestRetryPolicyStats(t *testing.T) {
	ctx := context.Background()
	rp := NewRetryPolicy(fastRetry(2))

	_ = rp.ExecuteCtx(ctx, func(context.Context) error { return nil })

	attempts := 0
	_ = rp.ExecuteCtx(ctx, func(context.Context) error {
		attempts++
		if attempts < 2 {
			return errors.New("fail")
		}
		return nil
	})

	_ = rp.ExecuteCtx(ctx, func(context.Context) error { return errors.New("always fail") })

	retries, success, failure := rp.Stats()
	if success != 2 {
		t.Errorf("success = %v, want 2", success)
	}
	if failure != 1 {
		t.Errorf("failure = %v, want 1", failure)
	}
	if retries != 3 {
		t.Errorf("retries = %v, want 3", retries)
	}

	rp.Reset()
	retries, success, failure = rp.Stats()
	if retries != 0 || success != 0 || failure != 0 {
		t.Errorf("Stats after reset = (%d, %d, %d), want (0, 0, 0)", retries, success, failure)
	}
}

func TestRetryPolicyConcurrency(t *testing.T) {
	rp := NewRetryPolicy(fastRetry(1))

	var successCount atomic.Int64
	var wg sync.WaitGroup

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := rp.ExecuteCtx(context.Background(), func(context.Context) error { return nil }); err == nil {
				successCount.Add(1)
			}
		}()
	}
	wg.Wait()

	if successCount.Load() != 50 {
		t.Errorf("successCount = %v, want 50", successCount.Load())
	}
}
