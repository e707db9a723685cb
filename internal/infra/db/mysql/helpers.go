package mysql

import "strings"

// stringOrAnonymous returns "anonymous" when no principal was resolved
func stringOrAnonymous(s string) string {
	if strings.TrimSpace(s) == "" {
		return "anonymous"
	}
	return s
}

// stringOrUnknown returns "Unknown" for empty/whitespace labels
func stringOrUnknown(s string) string {
	if strings.TrimSpace(s) == "" {
		return "Unknown"
	}
	return s
}
