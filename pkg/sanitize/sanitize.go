// Package sanitize cleans free-text customer input before it is stored or
// forwarded to the messaging channel.
package sanitize

import (
	"html"
	"strings"
	"unicode"

	"github.com/microcosm-cc/bluemonday"
)

// MaxTextLength bounds any single free-text field.
const MaxTextLength = 500

var strict = bluemonday.StrictPolicy()

// Text strips markup and control characters from value, trims it and cuts it
// to at most maxRunes runes. A non-positive maxRunes uses MaxTextLength.
func Text(value string, maxRunes int) string {
	if maxRunes <= 0 {
		maxRunes = MaxTextLength
	}
	cleaned := html.UnescapeString(strict.Sanitize(value))
	cleaned = strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return r
		}
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, cleaned)
	cleaned = strings.TrimSpace(cleaned)

	runes := []rune(cleaned)
	if len(runes) > maxRunes {
		cleaned = strings.TrimSpace(string(runes[:maxRunes]))
	}
	return cleaned
}

// Line is Text for single-line fields: newlines and tabs become spaces and
// runs of whitespace collapse.
func Line(value string, maxRunes int) string {
	return strings.Join(strings.Fields(Text(value, maxRunes)), " ")
}
