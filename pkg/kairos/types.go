package kairos

import (
	"github.com/LavishGent/kairos/internal/cache"
	"github.com/LavishGent/kairos/internal/pipeline"
	"github.com/LavishGent/kairos/internal/resilience"
	"github.com/LavishGent/kairos/internal/types"
)

type (
	// Request describes one cached upstream read.
	Request = pipeline.Request
	// Result is the outcome of one Request.
	Result = pipeline.Result
	// Source names where a Result value came from.
	Source = pipeline.Source

	// Operation calls an upstream dependency.
	Operation = resilience.Operation
	// Fallback supplies a substitute value when an Operation fails.
	Fallback = resilience.Fallback
	// State is a circuit breaker state.
	State = resilience.State

	// CacheStats holds per-tier statistics of one cache.
	CacheStats = types.CacheStats
	// TierStats describes one tier of a cache.
	TierStats = types.TierStats
	// PerformanceSnapshot holds the monitor counters of one cache.
	PerformanceSnapshot = types.PerformanceSnapshot
	// PerformanceAnalysis is the monitor's verdict across all caches.
	PerformanceAnalysis = types.PerformanceAnalysis
	// OptimizeResult reports what OptimizeMemory removed.
	OptimizeResult = cache.OptimizeResult

	// SystemHealth aggregates the breaker state of every dependency.
	SystemHealth = types.SystemHealth
	// ServiceStatus tells whether a dependency is served from fallbacks.
	ServiceStatus = types.ServiceStatus
	// HealthStatus is healthy, degraded or unhealthy.
	HealthStatus = types.HealthStatus
	// ErrorStats groups tracked dependency errors.
	ErrorStats = types.ErrorStats
	// FetchStats summarizes pipeline fetches.
	FetchStats = types.FetchStats
	// BulkheadStats reports the call slots of one dependency.
	BulkheadStats = types.BulkheadStats

	// Publisher exports metrics to an external sink.
	Publisher = types.Publisher
	// PublisherHealthMetrics is the periodic batch handed to publishers.
	PublisherHealthMetrics = types.PublisherHealthMetrics
	// SnapshotStore persists last-known-good values.
	SnapshotStore = types.SnapshotStore
	// Logger is the minimal structured logger kairos accepts.
	Logger = types.Logger
)

const (
	SourceCache    = pipeline.SourceCache
	SourceUpstream = pipeline.SourceUpstream
	SourceFallback = pipeline.SourceFallback
)

const (
	StateClosed   = resilience.StateClosed
	StateOpen     = resilience.StateOpen
	StateHalfOpen = resilience.StateHalfOpen
)

const (
	HealthStatusHealthy   = types.HealthStatusHealthy
	HealthStatusDegraded  = types.HealthStatusDegraded
	HealthStatusUnhealthy = types.HealthStatusUnhealthy
)

// NoExpiry passed to WithTTL stores an entry that never expires.
const NoExpiry = cache.NoExpiry

// Well-known cache names.
const (
	CacheWeather   = "weather"
	CacheAlerts    = "alerts"
	CacheDisasters = "disasters"
	CacheGeneral   = "general"
)

// Static returns a fallback that always serves value.
func Static(value []byte) Fallback {
	return resilience.Static(value)
}

// FirstOf tries fallbacks in order and serves the first value produced.
func FirstOf(fallbacks ...Fallback) Fallback {
	return resilience.FirstOf(fallbacks...)
}
