// internal/app/system/textsanitize/textsanitize.go

// Package textsanitize strips markup from free-text input. FieldHub has no
// rich-text fields: names, notes, and undo reasons are stored and rendered
// as plain text, so everything that looks like HTML is removed outright.
package textsanitize

import (
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

var strict = bluemonday.StrictPolicy()

// Plain removes all HTML tags and trims surrounding whitespace.
func Plain(s string) string {
	return strings.TrimSpace(strict.Sanitize(s))
}
