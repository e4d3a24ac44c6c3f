// Package utils provides small helpers for interpreting query parameters in
// the HTTP layer.
package utils

import "strconv"

// AtoiDefault converts s to an int, returning def when s is empty or not a
// plain integer. No trimming is applied.
func AtoiDefault(s string, def int) int {
	if s == "" {
		return def
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	return def
}

// ParseLimit interprets a "limit" query value for list endpoints such as the
// notification feed. A positive integer caps the response; empty, junk,
// zero, or negative values mean no cap and return 0.
func ParseLimit(s string) int {
	n := AtoiDefault(s, 0)
	if n < 0 {
		return 0
	}
	return n
}
