package dom

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// Attr returns the attribute value of the first element in s.
func Attr(s *goquery.Selection, name string) (string, bool) {
	return s.Attr(name)
}

// AttrOr returns the attribute value, or def when it is missing or empty.
func AttrOr(s *goquery.Selection, name, def string) string {
	if v, ok := s.Attr(name); ok && v != "" {
		return v
	}
	return def
}

// HasAttr reports whether the first element carries the attribute at all.
func HasAttr(s *goquery.Selection, name string) bool {
	_, ok := s.Attr(name)
	return ok
}

// TagName returns the lower-cased tag name of the first element.
func TagName(s *goquery.Selection) string {
	if s.Length() == 0 {
		return ""
	}
	return strings.ToLower(goquery.NodeName(s))
}

// ClassName returns the raw class attribute, "" when absent.
func ClassName(s *goquery.Selection) string {
	return AttrOr(s, "class", "")
}

// TextContent returns the trimmed text of the first element.
func TextContent(s *goquery.Selection) string {
	return strings.TrimSpace(s.First().Text())
}

// ParentElement returns the element parent of the first node, which may be
// empty for the root element or detached nodes.
func ParentElement(s *goquery.Selection) *goquery.Selection {
	return s.First().Parent()
}

// DescendantCount counts element descendants, like querySelectorAll('*').length.
func DescendantCount(s *goquery.Selection) int {
	if s.Length() == 0 {
		return 0
	}
	count := 0
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if c.Type == html.ElementNode {
				count++
			}
			walk(c)
		}
	}
	walk(s.Get(0))
	return count
}

// InsideTag reports whether the first element has an ancestor with the tag.
func InsideTag(s *goquery.Selection, tag string) bool {
	return s.First().ParentsFiltered(tag).Length() > 0
}
