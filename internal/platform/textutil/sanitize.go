// Package textutil normalises free text before it is stored.
package textutil

import (
	"html"
	"strings"
	"unicode"

	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/text/unicode/norm"
)

var strictPolicy = bluemonday.StrictPolicy()

// SanitizeText strips markup, normalises to NFC, drops control characters and collapses runs of
// whitespace. The result is plain text safe to render in any surface.
func SanitizeText(value string) string {
	if strings.TrimSpace(value) == "" {
		return ""
	}
	cleaned := html.UnescapeString(strictPolicy.Sanitize(value))
	cleaned = norm.NFC.String(cleaned)
	cleaned = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) && !unicode.IsSpace(r) {
			return -1
		}
		return r
	}, cleaned)
	return strings.Join(strings.Fields(cleaned), " ")
}

// SanitizeOptional applies SanitizeText to an optional value, returning nil when nothing remains.
func SanitizeOptional(value *string) *string {
	if value == nil {
		return nil
	}
	cleaned := SanitizeText(*value)
	if cleaned == "" {
		return nil
	}
	return &cleaned
}

// Truncate shortens value to at most limit runes.
func Truncate(value string, limit int) string {
	if limit <= 0 {
		return value
	}
	runes := []rune(value)
	if len(runes) <= limit {
		return value
	}
	return strings.TrimSpace(string(runes[:limit]))
}
