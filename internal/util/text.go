package util

import (
	"strings"
	"unicode"
)

// NormalizeSpace collapses runs of whitespace into single spaces and
// trims the ends. Punctuation and casing are preserved verbatim so
// entity linking can rely on exact substrings.
func NormalizeSpace(value string) string {
	return strings.Join(strings.Fields(value), " ")
}

// NormalizeForMatch lowercases the value and replaces every run of
// non-alphanumeric characters with a single space. Both sides of a
// surface-form comparison go through this, which makes possessives and
// stray punctuation ("Reyna's", "KAY/O") compare cleanly.
func NormalizeForMatch(value string) string {
	var b strings.Builder
	b.Grow(len(value))
	lastSpace := true
	for _, r := range strings.ToLower(value) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			lastSpace = false
			continue
		}
		if !lastSpace {
			b.WriteByte(' ')
			lastSpace = true
		}
	}
	return strings.TrimSpace(b.String())
}

// SanitizePostgresText strips NUL bytes and invalid UTF-8 sequences,
// which Postgres text columns reject.
func SanitizePostgresText(value string) string {
	if value == "" {
		return value
	}

	sanitized := strings.ToValidUTF8(value, "")
	return strings.ReplaceAll(sanitized, "\x00", "")
}
