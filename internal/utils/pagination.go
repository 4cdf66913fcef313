// Package utils provides small, generic helper functions used across
// different layers of the application. These utilities are independent
// of domain or business logic.
package utils

import "strconv"

// AtoiDefault converts a string to an int using strconv.Atoi.
// If the string is empty or cannot be parsed as an integer,
// it returns the provided default value instead.
func AtoiDefault(s string, def int) int {
	if s == "" {
		return def
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	return def
}

// PageBounds normalizes a (page, pageSize) pair and returns the offset and
// limit to apply. Page numbers start at 1; size is clamped to [1, max].
func PageBounds(page, size, max int) (offset, limit int) {
	if page < 1 {
		page = 1
	}
	if size < 1 {
		size = 20
	}
	if size > max {
		size = max
	}
	return (page - 1) * size, size
}
