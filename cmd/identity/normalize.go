package identity

import "strings"

// NormalizeEmail performs case-insensitive canonicalization.
func NormalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// NormalizeName trims and collapses internal whitespace runs to one space.
func NormalizeName(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// NormalizeOrgID trims the organization id. Empty means "no organization".
func NormalizeOrgID(s string) string {
	return strings.TrimSpace(s)
}
