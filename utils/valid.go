// utils/validation.go
package utils

import (
	"html"
	"regexp"
	"strings"
	"unicode"
)

var (
	scriptRegex     = regexp.MustCompile(`(?is)<script[^>]*>.*?</script>`)
	objectIDRegex   = regexp.MustCompile(`^[0-9a-fA-F]{24}$`)
	deviceTokenChar = regexp.MustCompile(`^[A-Za-z0-9_:\-.]+$`)
)

// SanitizeInput sanitizes user input to prevent XSS and injection attacks
func SanitizeInput(input string) string {
	// Trim spaces
	input = strings.TrimSpace(input)

	// Remove any potential script tags before escaping hides them
	input = scriptRegex.ReplaceAllString(input, "")

	// HTML escape
	input = html.EscapeString(input)

	// Remove control characters, keeping line breaks and tabs
	input = strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return r
		}
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, input)

	return input
}

// IsValidObjectID reports whether id looks like a notification id
func IsValidObjectID(id string) bool {
	return objectIDRegex.MatchString(id)
}

// IsValidDeviceToken checks the shape of an FCM registration token
func IsValidDeviceToken(token string) bool {
	return len(token) >= 20 && len(token) <= 4096 && deviceTokenChar.MatchString(token)
}
