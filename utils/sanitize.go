package utils

import (
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

var (
	ugcPolicy   = bluemonday.UGCPolicy()
	plainPolicy = bluemonday.StrictPolicy()
)

// Sanitize cleans user HTML content (message and reply bodies) to prevent XSS attacks.
func Sanitize(input string) string {
	return strings.TrimSpace(ugcPolicy.Sanitize(input))
}

// SanitizeText strips all markup, for short fields such as titles, names and tags.
func SanitizeText(input string) string {
	return strings.TrimSpace(plainPolicy.Sanitize(input))
}
