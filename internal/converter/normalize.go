package converter

import "strings"

// NormalizeDomain trims whitespace, strips leading dots and lowercases.
func NormalizeDomain(value string) string {
	return strings.ToLower(strings.TrimLeft(strings.TrimSpace(value), "."))
}

// NormalizeKeyword trims whitespace and lowercases.
func NormalizeKeyword(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}
