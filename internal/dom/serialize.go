package dom

import (
	"strings"

	"golang.org/x/net/html"
)

// html.Render escapes quotes in text and attribute values. Browsers do not,
// and the markup scan matches quoted URLs, so OuterHTML serializes the tree
// the way documentElement.outerHTML does instead.

var voidElements = map[string]bool{
	"area": true, "base": true, "basefont": true, "bgsound": true, "br": true,
	"col": true, "embed": true, "frame": true, "hr": true, "img": true,
	"input": true, "keygen": true, "link": true, "meta": true, "param": true,
	"source": true, "track": true, "wbr": true,
}

// Text inside these is written verbatim.
var rawTextElements = map[string]bool{
	"iframe": true, "noembed": true, "noframes": true, "noscript": true,
	"plaintext": true, "script": true, "style": true, "xmp": true,
}

var (
	textEscaper = strings.NewReplacer("&", "&amp;", "\u00a0", "&nbsp;", "<", "&lt;", ">", "&gt;")
	attrEscaper = strings.NewReplacer("&", "&amp;", "\u00a0", "&nbsp;", `"`, "&quot;")
)

// OuterHTML serializes the document element, like documentElement.outerHTML.
// A tree without an <html> element is serialized from the document node.
func (d *Document) OuterHTML() (string, error) {
	root := d.doc.Find("html").First()
	if root.Length() == 0 {
		root = d.doc.Selection
	}
	if root.Length() == 0 {
		return "", ErrNilTree
	}

	var b strings.Builder
	serialize(&b, root.Get(0))
	return b.String(), nil
}

func serialize(b *strings.Builder, n *html.Node) {
	switch n.Type {
	case html.DocumentNode:
		serializeChildren(b, n)
	case html.DoctypeNode:
		b.WriteString("<!DOCTYPE ")
		b.WriteString(n.Data)
		b.WriteByte('>')
	case html.CommentNode:
		b.WriteString("<!--")
		b.WriteString(n.Data)
		b.WriteString("-->")
	case html.RawNode:
		b.WriteString(n.Data)
	case html.TextNode:
		if p := n.Parent; p != nil && p.Type == html.ElementNode && p.Namespace == "" && rawTextElements[p.Data] {
			b.WriteString(n.Data)
			return
		}
		textEscaper.WriteString(b, n.Data)
	case html.ElementNode:
		b.WriteByte('<')
		b.WriteString(n.Data)
		for _, a := range n.Attr {
			b.WriteByte(' ')
			if a.Namespace != "" {
				b.WriteString(a.Namespace)
				b.WriteByte(':')
			}
			b.WriteString(a.Key)
			b.WriteString(`="`)
			attrEscaper.WriteString(b, a.Val)
			b.WriteByte('"')
		}
		b.WriteByte('>')
		if n.Namespace == "" && voidElements[n.Data] {
			return
		}
		serializeChildren(b, n)
		b.WriteString("</")
		b.WriteString(n.Data)
		b.WriteByte('>')
	}
}

func serializeChildren(b *strings.Builder, n *html.Node) {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		serialize(b, c)
	}
}
