package analyzer

import (
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"

	"github.com/PentesterFlow/pagescope/internal/dom"
	"github.com/PentesterFlow/pagescope/internal/report"
)

// linkKeywords mark hrefs worth surfacing. Matching is a case-sensitive
// substring test, like a[href*="..."].
var linkKeywords = []string{"api", "download", "export", "csv", "json", "xlsx"}

// countButtons counts button, input[type=button|submit], [role=button], .btn
// and .button, each element once.
func countButtons(doc *dom.Document) int {
	return doc.Find("*").FilterFunction(func(_ int, s *goquery.Selection) bool {
		return isButton(s)
	}).Length()
}

func isButton(s *goquery.Selection) bool {
	switch dom.TagName(s) {
	case "button":
		return true
	case "input":
		if t := inputType(s); t == "button" || t == "submit" {
			return true
		}
	}
	if role, _ := dom.Attr(s, "role"); role == "button" {
		return true
	}
	for _, class := range strings.Fields(dom.ClassName(s)) {
		if class == "btn" || class == "button" {
			return true
		}
	}
	return false
}

// countStandaloneInputs counts visible input, textarea and select elements
// outside any form.
func countStandaloneInputs(doc *dom.Document) int {
	return doc.Find("input, textarea, select").FilterFunction(func(_ int, s *goquery.Selection) bool {
		if dom.InsideTag(s, "form") {
			return false
		}
		return !(dom.TagName(s) == "input" && inputType(s) == "hidden")
	}).Length()
}

// analyzeLinks counts interesting links and samples the first few.
func analyzeLinks(doc *dom.Document, sample, textMax int) (int, []report.ImportantElementRef) {
	links := doc.Find("a[href]").FilterFunction(func(_ int, s *goquery.Selection) bool {
		href, _ := dom.Attr(s, "href")
		for _, kw := range linkKeywords {
			if strings.Contains(href, kw) {
				return true
			}
		}
		return false
	})

	samples := make([]report.ImportantElementRef, 0)
	links.EachWithBreak(func(i int, s *goquery.Selection) bool {
		if i >= sample {
			return false
		}
		href, _ := dom.Attr(s, "href")
		samples = append(samples, report.LinkElement(
			truncate(dom.TextContent(s), textMax),
			doc.ResolveURL(href),
		))
		return true
	})

	return links.Length(), samples
}

// truncate cuts s to at most n runes.
func truncate(s string, n int) string {
	if n < 0 || utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n])
}
