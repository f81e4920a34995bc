// Package dom provides the read-only document model the analyzer runs over.
//
// A Document is a parsed HTML tree (goquery over golang.org/x/net/html) plus
// whatever a rendering host could observe about it: per-element geometry and
// resource timing entries. Static HTML simply has neither.
package dom

import (
	"errors"
	"io"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// ErrNilTree is returned when a Document is built without a parsed tree.
var ErrNilTree = errors.New("dom: document has no tree")

// Resource is a buffered resource timing entry observed by the host.
type Resource struct {
	Name          string `json:"name"`
	InitiatorType string `json:"initiatorType"`
}

// Document is an immutable view over a parsed page.
type Document struct {
	rawURL    string
	base      *url.URL
	title     *string
	doc       *goquery.Document
	layout    Layout
	resources []Resource
	order     map[*html.Node]int
}

// Option configures a Document.
type Option func(*Document)

// WithLayout attaches element geometry captured in document order.
func WithLayout(layout Layout) Option {
	return func(d *Document) {
		d.layout = layout
	}
}

// WithResources attaches resource timing entries.
func WithResources(resources []Resource) Option {
	return func(d *Document) {
		d.resources = append([]Resource(nil), resources...)
	}
}

// WithTitle overrides the title derived from the <title> element.
func WithTitle(title string) Option {
	return func(d *Document) {
		d.title = &title
	}
}

// Parse parses HTML from r.
func Parse(rawURL string, r io.Reader, opts ...Option) (*Document, error) {
	gq, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, err
	}
	return NewDocument(rawURL, gq, opts...)
}

// ParseString parses an HTML string.
func ParseString(rawURL, markup string, opts ...Option) (*Document, error) {
	return Parse(rawURL, strings.NewReader(markup), opts...)
}

// NewDocument wraps an already parsed goquery document.
func NewDocument(rawURL string, gq *goquery.Document, opts ...Option) (*Document, error) {
	if gq == nil || gq.Selection == nil || len(gq.Nodes) == 0 {
		return nil, ErrNilTree
	}

	d := &Document{
		rawURL: rawURL,
		doc:    gq,
	}
	for _, opt := range opts {
		opt(d)
	}

	if u, err := url.Parse(rawURL); err == nil {
		d.base = u
	}
	// <base href> changes how the browser resolves reflected URL properties
	if href, ok := gq.Find("base[href]").First().Attr("href"); ok && d.base != nil {
		if ref, err := url.Parse(strings.TrimSpace(href)); err == nil {
			d.base = d.base.ResolveReference(ref)
		}
	}

	if len(d.layout) > 0 {
		d.order = make(map[*html.Node]int)
		for i, n := range gq.Find("*").Nodes {
			d.order[n] = i
		}
	}

	return d, nil
}

// Valid reports whether the document has a tree to traverse.
func (d *Document) Valid() bool {
	return d != nil && d.doc != nil && len(d.doc.Nodes) > 0
}

// URL returns the document URL as supplied by the host.
func (d *Document) URL() string {
	return d.rawURL
}

// Title returns document.title: the first <title> with whitespace collapsed.
func (d *Document) Title() string {
	if d.title != nil {
		return *d.title
	}
	return strings.Join(strings.Fields(d.doc.Find("title").First().Text()), " ")
}

// Find runs a CSS selector against the whole document.
func (d *Document) Find(selector string) *goquery.Selection {
	return d.doc.Find(selector)
}

// Root returns the document selection.
func (d *Document) Root() *goquery.Selection {
	return d.doc.Selection
}

// Resources returns the resource timing entries, if any were captured.
func (d *Document) Resources() []Resource {
	return d.resources
}

// ResolveURL resolves ref against the document base URL. Unresolvable refs are
// returned unchanged.
func (d *Document) ResolveURL(ref string) string {
	ref = strings.TrimSpace(ref)
	if d.base == nil {
		return ref
	}
	u, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return d.base.ResolveReference(u).String()
}
