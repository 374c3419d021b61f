package types

import "time"

// HealthStatus represents the overall health state.
type HealthStatus int

const (
	// HealthStatusHealthy indicates all dependencies are reachable.
	HealthStatusHealthy HealthStatus = iota + 1
	// HealthStatusDegraded indicates at least one breaker is probing recovery.
	HealthStatusDegraded
	// HealthStatusUnhealthy indicates at least one breaker is open.
	HealthStatusUnhealthy
)

// String returns the string representation of health status.
func (s HealthStatus) String() string {
	switch s {
	case HealthStatusHealthy:
		return "healthy"
	case HealthStatusDegraded:
		return "degraded"
	case HealthStatusUnhealthy:
		return "unhealthy"
	default:
		return "unknown"
	}
}

// MarshalText lets health statuses render by name in JSON output.
func (s HealthStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// CacheStatus is the per-cache verdict of the performance monitor.
type CacheStatus int

const (
	CacheStatusHealthy CacheStatus = iota + 1
	CacheStatusWarning
)

func (s CacheStatus) String() string {
	switch s {
	case CacheStatusHealthy:
		return "healthy"
	case CacheStatusWarning:
		return "warning"
	default:
		return "unknown"
	}
}

func (s CacheStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// ServiceStatus records whether a dependency is currently served from
// live calls or from fallback data.
//
//nolint:govet // Small struct - readability over alignment
type ServiceStatus struct {
	Dependency string    `json:"dependency"`
	Degraded   bool      `json:"degraded"`
	Reason     string    `json:"reason,omitempty"`
	Since      time.Time `json:"since"`
}

// SystemHealth is the aggregated view across all circuit breakers.
//
//nolint:govet // Report struct - logical grouping prioritized for readability
type SystemHealth struct {
	Timestamp time.Time                `json:"timestamp"`
	Overall   HealthStatus             `json:"overall"`
	Breakers  map[string]string        `json:"breakers"`
	Services  map[string]ServiceStatus `json:"services"`
}
