package resilience

import (
	"context"
	"errors"

	"github.com/LavishGent/kairos/internal/types"
)

var (
	ErrCircuitOpen     = types.ErrCircuitOpen
	ErrBulkheadFull    = types.ErrBulkheadFull
	ErrBulkheadTimeout = types.ErrBulkheadTimeout
)

// IsCircuitOpen returns true if the error is a circuit open error.
func IsCircuitOpen(err error) bool {
	return errors.Is(err, types.ErrCircuitOpen)
}

// IsBulkheadError returns true if the error is a bulkhead error.
func IsBulkheadError(err error) bool {
	return errors.Is(err, types.ErrBulkheadFull) || errors.Is(err, types.ErrBulkheadTimeout)
}

// IsRetryable is the default Classifier. Errors marked with types.Permanent
// and caller cancellation are final. An open breaker is final too, since
// every further attempt would fail fast. Everything else, including a
// per-attempt deadline, is transient.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, types.ErrCircuitOpen) || errors.Is(err, context.Canceled) {
		return false
	}
	if IsBulkheadError(err) {
		return false
	}
	return types.IsTransient(err)
}
