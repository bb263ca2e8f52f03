// Package fileutil holds small filesystem helpers.
package fileutil

import (
	"regexp"
	"strings"
)

var (
	illegalChars = regexp.MustCompile(`[\/\\:*?"<>|]`)
	whitespace   = regexp.MustCompile(`[\s_]+`)
)

// SanitizeForFilename turns a meeting title into a safe filename component:
// illegal characters become underscores, runs of whitespace collapse to a
// single hyphen, and the result is capped at 50 characters. An input that
// sanitizes to nothing yields "recording".
func SanitizeForFilename(input string) string {
	sanitized := illegalChars.ReplaceAllString(input, "_")
	sanitized = whitespace.ReplaceAllString(sanitized, "-")
	sanitized = strings.Trim(sanitized, "-")

	if len(sanitized) > 50 {
		sanitized = strings.TrimRight(sanitized[:50], "-")
	}
	if sanitized == "" {
		return "recording"
	}
	return sanitized
}
