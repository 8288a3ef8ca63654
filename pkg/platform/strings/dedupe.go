// Package strings provides string normalization helpers shared by parsers
// and advisory comparisons.
package strings

import (
	"strings"
	"unicode"
)

// DedupeAndTrimUpper removes duplicates and empty strings from a slice,
// trimming and uppercasing each element. Order is preserved.
//
// Example:
//
//	DedupeAndTrimUpper([]string{" payslip ", "PAYSLIP", "", "marksheet"})
//	// Returns: []string{"PAYSLIP", "MARKSHEET"}
func DedupeAndTrimUpper(values []string) []string {
	if len(values) == 0 {
		return values
	}

	seen := make(map[string]struct{}, len(values))
	result := make([]string, 0, len(values))

	for _, v := range values {
		trimmed := strings.ToUpper(strings.TrimSpace(v))
		if trimmed == "" {
			continue
		}
		if _, ok := seen[trimmed]; !ok {
			seen[trimmed] = struct{}{}
			result = append(result, trimmed)
		}
	}

	return result
}

// Fold lowercases s, drops punctuation and collapses runs of whitespace so
// that "  Jane  O'Neil " and "jane oneil" compare equal.
func Fold(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	space := false
	for _, r := range strings.TrimSpace(s) {
		switch {
		case unicode.IsSpace(r):
			space = true
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			if space && b.Len() > 0 {
				b.WriteByte(' ')
			}
			space = false
			b.WriteRune(unicode.ToLower(r))
		}
	}
	return b.String()
}

// EqualFold reports whether a and b are equal after Fold.
func EqualFold(a, b string) bool {
	return Fold(a) == Fold(b)
}
