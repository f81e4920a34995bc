package extract

import (
	"strings"
	"unicode/utf8"

	"github.com/PentesterFlow/pagescope/internal/report"
)

// DefaultMethodWindow is how much text before a match is inspected.
const DefaultMethodWindow = 50

// methodHints are checked in order; the first group with a hit wins.
var methodHints = []struct {
	method   string
	keywords []string
}{
	{report.MethodPost, []string{"post", "create", "save", "add"}},
	{report.MethodPut, []string{"put", "update", "edit"}},
	{report.MethodDelete, []string{"delete", "remove"}},
	{report.MethodPatch, []string{"patch"}},
}

// GuessMethod infers the HTTP verb for a URL found at offset in text by looking
// at the DefaultMethodWindow bytes before it.
func GuessMethod(text string, offset int) string {
	return guessMethod(text, offset, DefaultMethodWindow)
}

func guessMethod(text string, offset, window int) string {
	if offset > len(text) {
		offset = len(text)
	}
	if offset <= 0 || window <= 0 {
		return report.MethodGet
	}

	start := offset - window
	if start < 0 {
		start = 0
	}
	for start < offset && !utf8.RuneStart(text[start]) {
		start++
	}
	prev := strings.ToLower(text[start:offset])

	for _, hint := range methodHints {
		for _, kw := range hint.keywords {
			if strings.Contains(prev, kw) {
				return hint.method
			}
		}
	}
	return report.MethodGet
}

// normalizeMethod upper-cases an explicit verb, falling back to GET for
// anything outside the supported set.
func normalizeMethod(m string) string {
	switch up := strings.ToUpper(strings.TrimSpace(m)); up {
	case report.MethodGet, report.MethodPost, report.MethodPut, report.MethodDelete, report.MethodPatch:
		return up
	default:
		return report.MethodGet
	}
}
