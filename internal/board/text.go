package board

import (
	"strings"
	"unicode/utf8"
)

// Ellipsis marks truncated text.
const Ellipsis = "..."

// Truncate shortens s to at most max bytes. Cuts fall on rune boundaries
// and a truncated result ends with Ellipsis. When max is too small to hold
// the marker, the result is cut without it.
func Truncate(s string, max int) string {
	if max <= 0 {
		return ""
	}
	if len(s) <= max {
		return s
	}
	if max <= len(Ellipsis) {
		return cutRunes(s, max)
	}
	return cutRunes(s, max-len(Ellipsis)) + Ellipsis
}

// Preview collapses whitespace runs (including newlines) to single spaces
// and truncates to max bytes.
func Preview(s string, max int) string {
	return Truncate(strings.Join(strings.Fields(s), " "), max)
}

// cutRunes returns the longest prefix of s that is at most n bytes and
// does not split a rune.
func cutRunes(s string, n int) string {
	if n >= len(s) {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
