package utils

import "strings"

// Truncate is a simple string truncate
func Truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}

// Preview returns a single-line preview of content, truncated to maxLen.
// Newlines are collapsed so the preview renders cleanly in tables and
// search results.
func Preview(content string, maxLen int) string {
	collapsed := strings.Join(strings.Fields(content), " ")
	return Truncate(collapsed, maxLen)
}
