package utils

import (
	"regexp"
	"strings"
)

var invalidPathChars = regexp.MustCompile(`[<>:"/\\|?*]`)

// SanitizeFilename strips characters that are invalid in most filesystems,
// plus trailing spaces and periods.
func SanitizeFilename(name string) string {
	sanitized := invalidPathChars.ReplaceAllString(name, "")
	return strings.TrimRight(sanitized, " .")
}
