package dom

import (
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// Selector synthesizes a CSS-like locator for the first element in s:
// #id, then .first-class, then tag:nth-child(n) among the parent's element
// children. A node without a parent yields the bare tag.
func Selector(s *goquery.Selection) string {
	if s.Length() == 0 {
		return ""
	}
	if id := AttrOr(s, "id", ""); id != "" {
		return "#" + id
	}
	if classes := strings.Fields(ClassName(s)); len(classes) > 0 {
		return "." + classes[0]
	}

	n := s.Get(0)
	tag := strings.ToLower(n.Data)
	if n.Parent == nil {
		return tag
	}
	return tag + ":nth-child(" + strconv.Itoa(elementPosition(n)) + ")"
}

// Identifier is the element id when set, otherwise its Selector.
func Identifier(s *goquery.Selection) string {
	if id := AttrOr(s, "id", ""); id != "" {
		return id
	}
	return Selector(s)
}

// elementPosition is the 1-based index of n among its parent's element children.
func elementPosition(n *html.Node) int {
	pos := 0
	for c := n.Parent.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != html.ElementNode {
			continue
		}
		pos++
		if c == n {
			return pos
		}
	}
	return pos
}
