package utils

import "strings"

// NormalizePhrase prepares a phrase for strict but whitespace- and
// case-insensitive comparison: trim, then lowercase.
func NormalizePhrase(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// TruncatePreview caps s at max runes, appending " ..." when it was cut.
func TruncatePreview(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + " ..."
}
