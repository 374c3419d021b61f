package cache

import "strings"

// matchPattern supports "*", "prefix*", "*suffix" and "pre*suf".
func matchPattern(key, pattern string) bool {
	if pattern == "*" {
		return true
	}

	before, after, found := strings.Cut(pattern, "*")
	if !found {
		return key == pattern
	}
	if strings.Contains(after, "*") {
		return false
	}
	return len(key) >= len(before)+len(after) &&
		strings.HasPrefix(key, before) &&
		strings.HasSuffix(key, after)
}
