package types

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrCacheMiss         = errors.New("kairos: key not found")
	ErrCircuitOpen       = errors.New("kairos: circuit breaker open")
	ErrClosed            = errors.New("kairos: manager closed")
	ErrBulkheadFull      = errors.New("kairos: bulkhead at capacity")
	ErrBulkheadTimeout   = errors.New("kairos: bulkhead timeout")
	ErrInvalidKey        = errors.New("kairos: invalid key")
	ErrInvalidName       = errors.New("kairos: invalid name")
	ErrUnknownCache      = errors.New("kairos: unknown cache")
	ErrUnknownDependency = errors.New("kairos: unknown dependency")
	ErrCapacityInvariant = errors.New("kairos: tier capacity invariant violated")
	ErrNoFallback        = errors.New("kairos: no fallback available")
	ErrSnapshotMiss      = errors.New("kairos: no last-known-good snapshot")
	ErrSnapshotStale     = errors.New("kairos: last-known-good snapshot too old")
	ErrStoreUnavailable  = errors.New("kairos: snapshot store unavailable")
	ErrCodecFailed       = errors.New("kairos: codec failed")
	ErrShutdownTimeout   = errors.New("kairos: shutdown timeout waiting for background operations")
)

// CacheError describes a failed cache operation on a named cache and tier.
type CacheError struct {
	Op    string
	Cache string
	Key   string
	Tier  string
	Err   error
}

func (e *CacheError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("cache %s on %s/%s [%s]: %v", e.Op, e.Cache, e.Tier, e.Key, e.Err)
	}
	return fmt.Sprintf("cache %s on %s/%s: %v", e.Op, e.Cache, e.Tier, e.Err)
}

func (e *CacheError) Unwrap() error {
	return e.Err
}

func NewCacheError(op, cache, key, tier string, err error) *CacheError {
	return &CacheError{
		Op:    op,
		Cache: cache,
		Key:   key,
		Tier:  tier,
		Err:   err,
	}
}

// FailureKind classifies a dependency failure for retry purposes.
type FailureKind int

const (
	KindTransient FailureKind = iota + 1
	KindPermanent
)

func (k FailureKind) String() string {
	switch k {
	case KindTransient:
		return "transient"
	case KindPermanent:
		return "permanent"
	default:
		return "unknown"
	}
}

// DependencyError is returned when a call to an external dependency fails.
// A call rejected by an open breaker has zero Attempts and RetryAfter set
// to the time left until the breaker admits a probe.
type DependencyError struct {
	Dependency string
	Kind       FailureKind
	Attempts   int
	RetryAfter time.Duration
	Err        error
}

func (e *DependencyError) Error() string {
	if e.Attempts == 0 && e.RetryAfter > 0 {
		return fmt.Sprintf("dependency %s: %v (retry in %s)", e.Dependency, e.Err, e.RetryAfter)
	}
	return fmt.Sprintf("dependency %s: %s failure after %d attempt(s): %v",
		e.Dependency, e.Kind, e.Attempts, e.Err)
}

func (e *DependencyError) Unwrap() error {
	return e.Err
}

// permanentError marks an error as not worth retrying.
type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent wraps err so that classifiers treat it as a permanent failure.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

func IsCacheMiss(err error) bool {
	return errors.Is(err, ErrCacheMiss)
}

func IsCircuitOpen(err error) bool {
	return errors.Is(err, ErrCircuitOpen)
}

// IsPermanent reports whether err was marked with Permanent or is a
// DependencyError of kind Permanent.
func IsPermanent(err error) bool {
	if err == nil {
		return false
	}
	var pe *permanentError
	if errors.As(err, &pe) {
		return true
	}
	var de *DependencyError
	if errors.As(err, &de) {
		return de.Kind == KindPermanent
	}
	return false
}

// IsTransient reports whether err is a failure that may succeed on retry.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if IsCacheMiss(err) || errors.Is(err, ErrClosed) || errors.Is(err, ErrInvalidKey) {
		return false
	}
	return !IsPermanent(err)
}
