// Package extract recovers API endpoint and webhook candidates from inline
// script text and serialized page markup.
//
// This is pattern matching, not parsing: a URL inside a comment or an unused
// string literal is reported just the same.
package extract

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/PentesterFlow/pagescope/internal/dedup"
	"github.com/PentesterFlow/pagescope/internal/dom"
	"github.com/PentesterFlow/pagescope/internal/report"
)

// quoted builds a pattern matching inner between a pair of identical quotes.
// RE2 has no backreferences, so each quote style gets its own branch.
func quoted(prefix, inner string) *regexp.Regexp {
	return regexp.MustCompile(prefix + `(?:"(` + inner + `)"|'(` + inner + `)')`)
}

var (
	apiPattern     = quoted(``, `(?:https?://[^"']+/api/[^"']+)|(?:/api/[^"']+)`)
	webhookPattern = quoted(``, `(?:https?://[^"']+/webhooks?/[^"']+)|(?:/webhooks?/[^"']+)`)

	fetchPattern = quoted(`fetch\s*\(\s*`, `.*?`)
	xhrPattern   = regexp.MustCompile(`XMLHttpRequest\(\).*?\.open\s*\(\s*["'](\w+)["']\s*,\s*["'](.*?)["']`)
	ajaxPattern  = quoted(`\.ajax\s*\(\s*\{[^}]*url\s*:\s*`, `.*?`)

	configPattern = quoted(`(?:apiUrl|apiEndpoint|apiBase|baseUrl|baseAPI|apiPath)\s*[:=]\s*`, `[^"']+`)
)

// Extractor scans documents for endpoint candidates.
type Extractor struct {
	// MethodWindow is the number of bytes before a match inspected by the
	// method heuristic.
	MethodWindow int
}

// New creates an extractor with default settings.
func New() *Extractor {
	return &Extractor{MethodWindow: DefaultMethodWindow}
}

// ExtractAPIs runs a default extractor over doc.
func ExtractAPIs(doc *dom.Document) (report.APIs, error) {
	return New().Extract(doc)
}

// Extract scans the inline scripts and the serialized markup of doc. The
// returned APIs are always usable; a non-nil error means the markup pass was
// skipped.
func (e *Extractor) Extract(doc *dom.Document) (report.APIs, error) {
	if !doc.Valid() {
		return report.NewAPIs(), fmt.Errorf("extract: invalid document")
	}

	scripts := InlineScripts(doc)
	markup, err := doc.OuterHTML()
	if err != nil {
		return e.FromText(scripts, ""), fmt.Errorf("extract: serialize markup: %w", err)
	}
	return e.FromText(scripts, markup), nil
}

// InlineScripts returns the text of every script element without a src.
func InlineScripts(doc *dom.Document) []string {
	scripts := make([]string, 0)
	doc.Find("script:not([src])").Each(func(_ int, s *goquery.Selection) {
		if text := s.Text(); text != "" {
			scripts = append(scripts, text)
		}
	})
	return scripts
}

// FromText runs the full rule battery over script bodies and page markup.
func (e *Extractor) FromText(scripts []string, markup string) report.APIs {
	endpoints := dedup.NewSet(32)
	webhooks := dedup.NewSet(8)

	for _, text := range scripts {
		e.scanURLs(text, endpoints, webhooks)
	}
	for _, text := range scripts {
		e.scanCallSites(text, endpoints)
	}
	if markup != "" {
		e.scanURLs(markup, endpoints, webhooks)
		scanConfig(markup, endpoints)
	}

	return report.APIs{
		Endpoints: endpoints.Items(),
		Webhooks:  webhooks.Items(),
	}
}

// scanURLs applies the quoted API and webhook URL patterns.
func (e *Extractor) scanURLs(text string, endpoints, webhooks *dedup.Set) {
	for _, m := range findQuoted(apiPattern, text) {
		if endpoints.Has(m.value) {
			continue
		}
		endpoints.Add(report.EndpointRef{
			URL:    m.value,
			Method: guessMethod(text, m.start, e.MethodWindow),
		})
	}

	for _, m := range findQuoted(webhookPattern, text) {
		if webhooks.Has(m.value) {
			continue
		}
		webhooks.Add(report.EndpointRef{
			URL:    m.value,
			Method: guessMethod(text, m.start, e.MethodWindow),
		})
	}
}

// scanCallSites applies the fetch, XMLHttpRequest and $.ajax patterns. Only
// URLs mentioning "api" are kept.
func (e *Extractor) scanCallSites(text string, endpoints *dedup.Set) {
	for _, m := range findQuoted(fetchPattern, text) {
		if isAPIish(m.value) && !endpoints.Has(m.value) {
			endpoints.Add(report.EndpointRef{
				URL:    m.value,
				Method: guessMethod(text, m.start, e.MethodWindow),
			})
		}
	}

	for _, idx := range xhrPattern.FindAllStringSubmatchIndex(text, -1) {
		method := text[idx[2]:idx[3]]
		url := text[idx[4]:idx[5]]
		if isAPIish(url) && !endpoints.Has(url) {
			endpoints.Add(report.EndpointRef{URL: url, Method: normalizeMethod(method)})
		}
	}

	for _, m := range findQuoted(ajaxPattern, text) {
		if isAPIish(m.value) && !endpoints.Has(m.value) {
			endpoints.Add(report.EndpointRef{
				URL:    m.value,
				Method: guessMethod(text, m.start, e.MethodWindow),
			})
		}
	}
}

// scanConfig picks up base-URL style assignments such as apiUrl: "...".
func scanConfig(text string, endpoints *dedup.Set) {
	for _, m := range findQuoted(configPattern, text) {
		if !isConfigURL(m.value) || endpoints.Has(m.value) {
			continue
		}
		endpoints.Add(report.EndpointRef{
			URL:    m.value,
			Method: report.MethodGet,
			Type:   report.EndpointTypeConfig,
		})
	}
}

func isAPIish(url string) bool {
	return strings.Contains(url, "api")
}

func isConfigURL(url string) bool {
	return strings.Contains(url, "/api/") ||
		strings.Contains(url, "api.") ||
		strings.HasSuffix(url, "/api")
}

type quotedMatch struct {
	start int
	value string
}

// findQuoted returns every match of a pattern built by quoted, with the
// offset of the whole match and whichever quote branch captured.
func findQuoted(re *regexp.Regexp, text string) []quotedMatch {
	all := re.FindAllStringSubmatchIndex(text, -1)
	out := make([]quotedMatch, 0, len(all))
	for _, idx := range all {
		var value string
		switch {
		case idx[2] >= 0:
			value = text[idx[2]:idx[3]]
		case idx[4] >= 0:
			value = text[idx[4]:idx[5]]
		default:
			continue
		}
		out = append(out, quotedMatch{start: idx[0], value: value})
	}
	return out
}
