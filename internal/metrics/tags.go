package metrics

import "fmt"

// Tag creates a formatted DataDog tag string in "key:value" format.
func Tag(key, value string) string {
	return fmt.Sprintf("%s:%s", key, value)
}

// CacheTag names the tiered cache a metric belongs to.
func CacheTag(name string) string {
	return Tag("cache", name)
}

// TierTag creates a cache tier tag (l1/l2).
func TierTag(tier string) string {
	return Tag("tier", tier)
}

// DependencyTag names an upstream dependency.
func DependencyTag(dep string) string {
	return Tag("dependency", dep)
}

// SourceTag records what served a fetch (cache/upstream/fallback).
func SourceTag(source string) string {
	return Tag("source", source)
}

// StatusTag carries a health or cache status.
func StatusTag(status string) string {
	return Tag("status", status)
}

// CircuitStateTag creates a circuit breaker state tag.
func CircuitStateTag(state string) string {
	return Tag("circuit_state", state)
}
