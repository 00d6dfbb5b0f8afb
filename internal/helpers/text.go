package helpers

import (
	"strings"
	"unicode/utf8"
)

// CountWords returns the number of whitespace-separated words in s.
func CountWords(s string) int {
	return len(strings.Fields(s))
}

// NormalizeSpace collapses runs of whitespace into single spaces and trims the ends.
func NormalizeSpace(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	return strings.Join(strings.Fields(s), " ")
}

// FoldText lowercases and collapses whitespace for case- and layout-insensitive matching.
func FoldText(s string) string {
	return strings.ToLower(NormalizeSpace(s))
}

// TrimExcerpt shortens s to at most max runes, appending an ellipsis when truncated.
// Multi-byte text is cut on rune boundaries.
func TrimExcerpt(s string, max int) string {
	if max <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return string(runes[:max]) + "..."
}

// SnapRuneStart moves a byte index backwards until it lands on a rune start,
// so slicing at the returned index never splits a multi-byte character.
func SnapRuneStart(s string, i int) int {
	if i <= 0 {
		return 0
	}
	if i >= len(s) {
		return len(s)
	}
	for i > 0 && !utf8.RuneStart(s[i]) {
		i--
	}
	return i
}
