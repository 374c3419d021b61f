package kairos

import (
	"github.com/LavishGent/kairos/internal/types"
)

type (
	// CacheError describes a failed cache operation.
	CacheError = types.CacheError
	// DependencyError describes a failed upstream call.
	DependencyError = types.DependencyError
	// FailureKind tells transient from permanent failures.
	FailureKind = types.FailureKind
)

const (
	KindTransient = types.KindTransient
	KindPermanent = types.KindPermanent
)

var (
	// ErrCacheMiss indicates that a key is in neither tier.
	ErrCacheMiss = types.ErrCacheMiss
	// ErrCircuitOpen indicates that a dependency's breaker is failing fast.
	ErrCircuitOpen = types.ErrCircuitOpen
	// ErrClosed indicates that the System has been shut down.
	ErrClosed = types.ErrClosed
	// ErrBulkheadFull indicates that a dependency has no free call slots.
	ErrBulkheadFull = types.ErrBulkheadFull
	// ErrBulkheadTimeout indicates that waiting for a call slot timed out.
	ErrBulkheadTimeout = types.ErrBulkheadTimeout
	// ErrInvalidKey indicates that a cache key is invalid.
	ErrInvalidKey = types.ErrInvalidKey
	// ErrInvalidName indicates that a cache or dependency name is invalid.
	ErrInvalidName = types.ErrInvalidName
	// ErrUnknownCache indicates that no cache has the given name.
	ErrUnknownCache = types.ErrUnknownCache
	// ErrUnknownDependency indicates that no dependency has the given name.
	ErrUnknownDependency = types.ErrUnknownDependency
	// ErrNoFallback indicates that a failed call had no usable fallback.
	ErrNoFallback = types.ErrNoFallback
	// ErrSnapshotMiss indicates that no last-known-good value exists.
	ErrSnapshotMiss = types.ErrSnapshotMiss
	// ErrSnapshotStale indicates that the last-known-good value is too old.
	ErrSnapshotStale = types.ErrSnapshotStale
	// ErrCapacityInvariant indicates a tier broke its capacity or exclusivity.
	ErrCapacityInvariant = types.ErrCapacityInvariant
)

// MarkPermanent wraps err so that it is not retried.
func MarkPermanent(err error) error {
	return types.Permanent(err)
}

func IsCacheMiss(err error) bool {
	return types.IsCacheMiss(err)
}

func IsCircuitOpen(err error) bool {
	return types.IsCircuitOpen(err)
}

func IsPermanent(err error) bool {
	return types.IsPermanent(err)
}

func IsTransient(err error) bool {
	return types.IsTransient(err)
}
