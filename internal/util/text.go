package util

import "strings"

// SanitizeText drops invalid UTF-8 and NUL bytes from model output and
// trims surrounding whitespace, so the text can be stored as a graph
// property.
func SanitizeText(value string) string {
	if value == "" {
		return value
	}

	sanitized := strings.ToValidUTF8(value, "")
	return strings.TrimSpace(strings.ReplaceAll(sanitized, "\x00", ""))
}
