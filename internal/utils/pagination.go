// Package utils provides small helpers shared by the HTTP layer. They carry
// no domain logic.
package utils

import "strconv"

// AtoiDefault converts s to an int, returning def when s is empty or not
// an integer.
//
//	n := utils.AtoiDefault("42", 0) // 42
//	n = utils.AtoiDefault("", 10)   // 10
//	n = utils.AtoiDefault("x", 5)   // 5
func AtoiDefault(s string, def int) int {
	if s == "" {
		return def
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	return def
}
