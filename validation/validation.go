// Package validation holds the input rules shared by the REST handlers
// and the message broadcaster: identifier formats, content bounds and
// markup sanitization.
package validation

import (
	"html"
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	minUsernameLen = 3
	maxUsernameLen = 20
	minRoomNameLen = 3
	maxRoomNameLen = 50
	maxDescription = 200
	maxMessageLen  = 2000
)

var (
	usernameRe = regexp.MustCompile(`^[a-zA-Z0-9_]+$`)
	roomNameRe = regexp.MustCompile(`^[a-zA-Z0-9\s_-]+$`)

	scriptRe       = regexp.MustCompile(`(?is)<script\b.*?</script>`)
	iframeRe       = regexp.MustCompile(`(?is)<iframe\b.*?</iframe>`)
	eventHandlerRe = regexp.MustCompile(`(?i)on\w+=("[^"]*"|'[^']*')`)
)

// SanitizeInput trims and HTML-escapes a free-form string field.
func SanitizeInput(input string) string {
	return html.EscapeString(strings.TrimSpace(input))
}

// IsValidUsername checks the 3-20 character alnum+underscore rule.
func IsValidUsername(username string) bool {
	trimmed := strings.TrimSpace(username)
	if len(trimmed) < minUsernameLen || len(trimmed) > maxUsernameLen {
		return false
	}
	return usernameRe.MatchString(trimmed)
}

// IsValidRoomName checks the 3-50 character rule allowing letters,
// numbers, spaces, hyphens and underscores.
func IsValidRoomName(name string) bool {
	trimmed := strings.TrimSpace(name)
	if len(trimmed) < minRoomNameLen || len(trimmed) > maxRoomNameLen {
		return false
	}
	return roomNameRe.MatchString(trimmed)
}

// IsValidDescription bounds a room description to 200 characters.
func IsValidDescription(description string) bool {
	return utf8.RuneCountInString(strings.TrimSpace(description)) <= maxDescription
}

// IsValidMessage checks the 1-2000 character content bound after
// trimming. Characters, not bytes: multibyte content counts per rune.
func IsValidMessage(content string) bool {
	trimmed := strings.TrimSpace(content)
	n := utf8.RuneCountInString(trimmed)
	return n > 0 && n <= maxMessageLen
}

// SanitizeMessage strips script and iframe blocks plus inline event
// handler attributes while preserving other markup. Trimming is applied
// here as well, so callers can validate and sanitize in either order.
func SanitizeMessage(content string) string {
	sanitized := strings.TrimSpace(content)
	sanitized = scriptRe.ReplaceAllString(sanitized, "")
	sanitized = iframeRe.ReplaceAllString(sanitized, "")
	sanitized = eventHandlerRe.ReplaceAllString(sanitized, "")
	return sanitized
}
