// Package types provides shared types for the kairos data plane.
// This package breaks import cycles between pkg/kairos and the internal packages.
package types

import "time"

// Tier names a level of a tiered cache.
type Tier int

const (
	TierL1 Tier = iota + 1
	TierL2
)

func (t Tier) String() string {
	switch t {
	case TierL1:
		return "l1"
	case TierL2:
		return "l2"
	default:
		return "unknown"
	}
}

// CacheEntry is a cached value with its bookkeeping metadata.
// A zero TTL means the entry never expires.
//
//nolint:govet // Entry struct - logical grouping prioritized for readability
type CacheEntry struct {
	Key         string
	Value       []byte
	CreatedAt   time.Time
	LastAccess  time.Time
	TTL         time.Duration
	Size        int
	AccessCount int64
}

// ExpiresAt returns the zero time for entries without a TTL.
func (e *CacheEntry) ExpiresAt() time.Time {
	if e.TTL <= 0 {
		return time.Time{}
	}
	return e.CreatedAt.Add(e.TTL)
}

// IsExpired reports whether created_at + ttl lies strictly before now.
func (e *CacheEntry) IsExpired(now time.Time) bool {
	if e.TTL <= 0 {
		return false
	}
	return e.CreatedAt.Add(e.TTL).Before(now)
}

// TierStats describes the occupancy of one tier. Threshold is the entry
// count that triggers overflow out of the tier, zero when it never
// overflows.
type TierStats struct {
	Entries   int   `json:"entries"`
	Capacity  int   `json:"capacity"`
	Threshold int   `json:"threshold,omitempty"`
	Bytes     int64 `json:"bytes"`
}

// Occupancy returns Entries/Capacity in [0,1].
func (s TierStats) Occupancy() float64 {
	if s.Capacity <= 0 {
		return 0
	}
	return float64(s.Entries) / float64(s.Capacity)
}

// Pressure returns how full the tier is relative to the most it can hold
// between writes. A tier that overflows at Threshold settles at
// Threshold-1 entries, so that count reads as 1. Tiers without a threshold
// report Occupancy.
func (s TierStats) Pressure() float64 {
	if s.Threshold <= 0 {
		return s.Occupancy()
	}
	held := max(s.Threshold-1, 1)
	return min(float64(s.Entries)/float64(held), 1)
}

// PerformanceSnapshot holds the monotonic counters for one cache since the
// last reset.
//
//nolint:govet // Metrics struct - grouping by category improves readability
type PerformanceSnapshot struct {
	Cache       string    `json:"cache"`
	Since       time.Time `json:"since"`
	L1Hits      int64     `json:"l1Hits"`
	L1Misses    int64     `json:"l1Misses"`
	L2Hits      int64     `json:"l2Hits"`
	L2Misses    int64     `json:"l2Misses"`
	Promotions  int64     `json:"promotions"`
	Overflows   int64     `json:"overflows"`
	Evictions   int64     `json:"evictions"`
	MemoryBytes int64     `json:"memoryBytes"`
}

// L1HitRate is hits over all lookups that reached L1.
func (s *PerformanceSnapshot) L1HitRate() float64 {
	total := s.L1Hits + s.L1Misses
	if total == 0 {
		return 0
	}
	return float64(s.L1Hits) / float64(total)
}

// L2HitRate is hits over lookups that fell through to L2.
func (s *PerformanceSnapshot) L2HitRate() float64 {
	total := s.L2Hits + s.L2Misses
	if total == 0 {
		return 0
	}
	return float64(s.L2Hits) / float64(total)
}

// HitRate is the combined rate over all Get calls.
func (s *PerformanceSnapshot) HitRate() float64 {
	total := s.L1Hits + s.L1Misses
	if total == 0 {
		return 0
	}
	return float64(s.L1Hits+s.L2Hits) / float64(total)
}

// Requests is the number of Get calls observed.
func (s *PerformanceSnapshot) Requests() int64 {
	return s.L1Hits + s.L1Misses
}

// CacheStats is the full stats view for a named cache.
//
//nolint:govet // Report struct - logical grouping prioritized for readability
type CacheStats struct {
	Name        string              `json:"name"`
	DefaultTTL  time.Duration       `json:"defaultTTL"`
	L1          TierStats           `json:"l1"`
	L2          TierStats           `json:"l2"`
	Performance PerformanceSnapshot `json:"performance"`
}

// CacheAnalysis is the monitor's verdict for one cache.
//
//nolint:govet // Report struct - logical grouping prioritized for readability
type CacheAnalysis struct {
	L1HitRate       float64     `json:"l1HitRate"`
	L2HitRate       float64     `json:"l2HitRate"`
	MemoryBytes     int64       `json:"memoryBytes"`
	Status          CacheStatus `json:"status"`
	Recommendations []string    `json:"recommendations"`
}

// PerformanceAnalysis is the result of analyzing all registered caches.
//
//nolint:govet // Report struct - logical grouping prioritized for readability
type PerformanceAnalysis struct {
	Timestamp       time.Time                `json:"timestamp"`
	OverallHealth   CacheStatus              `json:"overallHealth"`
	Caches          map[string]CacheAnalysis `json:"caches"`
	Recommendations []string                 `json:"recommendations"`
}

// ErrorRecord is one tracked dependency failure.
//
//nolint:govet // Record struct - logical grouping prioritized for readability
type ErrorRecord struct {
	ID         string            `json:"id"`
	Timestamp  time.Time         `json:"timestamp"`
	Dependency string            `json:"dependency"`
	Kind       FailureKind       `json:"kind"`
	Message    string            `json:"message"`
	Context    map[string]string `json:"context,omitempty"`
}

// ErrorStats summarizes tracked failures inside a time window.
//
//nolint:govet // Report struct - logical grouping prioritized for readability
type ErrorStats struct {
	Window       time.Duration  `json:"window"`
	Total        int            `json:"total"`
	ByDependency map[string]int `json:"byDependency"`
	ByKind       map[string]int `json:"byKind"`
	MostRecent   *ErrorRecord   `json:"mostRecent,omitempty"`
}

// FetchStats summarizes pipeline fetches by the source that served them.
//
//nolint:govet // Report struct - logical grouping prioritized for readability
type FetchStats struct {
	Timestamp    time.Time        `json:"timestamp"`
	Total        int64            `json:"total"`
	Errors       int64            `json:"errors"`
	BySource     map[string]int64 `json:"bySource"`
	AvgLatencyMs float64          `json:"avgLatencyMs"`
	P50LatencyMs float64          `json:"p50LatencyMs"`
	P95LatencyMs float64          `json:"p95LatencyMs"`
	P99LatencyMs float64          `json:"p99LatencyMs"`
}

// BulkheadStats reports the call slots of one dependency. Rejections are
// split by cause: no queue room, acquire timeout, or caller cancellation.
type BulkheadStats struct {
	MaxConcurrent     int   `json:"maxConcurrent"`
	MaxQueue          int   `json:"maxQueue"`
	Active            int   `json:"active"`
	Queued            int   `json:"queued"`
	Available         int   `json:"available"`
	TotalExecuted     int64 `json:"totalExecuted"`
	RejectedFull      int64 `json:"rejectedFull"`
	RejectedTimeout   int64 `json:"rejectedTimeout"`
	RejectedCancelled int64 `json:"rejectedCancelled"`
}

// Rejected is the total number of calls turned away.
func (s BulkheadStats) Rejected() int64 {
	return s.RejectedFull + s.RejectedTimeout + s.RejectedCancelled
}

// Saturation is the fraction of slots in use.
func (s BulkheadStats) Saturation() float64 {
	if s.MaxConcurrent == 0 {
		return 0
	}
	return float64(s.Active) / float64(s.MaxConcurrent)
}
