package dom

import (
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Rect is an element rectangle in page coordinates (viewport rect plus scroll).
type Rect struct {
	Top    float64 `json:"top"`
	Left   float64 `json:"left"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Layout holds one Rect per element, in the order of querySelectorAll('*').
type Layout []Rect

// ViewportRect is a getBoundingClientRect result before scroll adjustment.
type ViewportRect struct {
	Top    float64
	Left   float64
	Width  float64
	Height float64
}

// PageRect converts a viewport rect into page coordinates.
func PageRect(r ViewportRect, scrollX, scrollY float64) Rect {
	return Rect{
		Top:    r.Top + scrollY,
		Left:   r.Left + scrollX,
		Width:  r.Width,
		Height: r.Height,
	}
}

// Rect returns the page-relative box of the first element in s. Documents
// without layout report a zero box.
func (d *Document) Rect(s *goquery.Selection) Rect {
	if d.order == nil || s.Length() == 0 {
		return Rect{}
	}
	i, ok := d.order[s.Get(0)]
	if !ok || i >= len(d.layout) {
		return Rect{}
	}
	return d.layout[i]
}

// Canvas intrinsic size defaults from the HTML standard.
const (
	DefaultCanvasWidth  = 300
	DefaultCanvasHeight = 150
)

// CanvasSize returns the canvas bitmap size the way canvas.width/height
// report it: the attribute parsed as a non-negative integer, else the default.
func CanvasSize(s *goquery.Selection) (width, height int) {
	return dimension(s, "width", DefaultCanvasWidth), dimension(s, "height", DefaultCanvasHeight)
}

func dimension(s *goquery.Selection, attr string, def int) int {
	v, ok := s.Attr(attr)
	if !ok {
		return def
	}
	n, ok := parseNonNegativeInt(v)
	if !ok {
		return def
	}
	return n
}

// parseNonNegativeInt follows the HTML rules: leading whitespace is skipped,
// a leading '+' is allowed, and parsing stops at the first non-digit.
func parseNonNegativeInt(v string) (int, bool) {
	v = strings.TrimLeft(v, " \t\n\f\r")
	v = strings.TrimPrefix(v, "+")
	end := 0
	for end < len(v) && v[end] >= '0' && v[end] <= '9' {
		end++
	}
	if end == 0 {
		return 0, false
	}
	n, err := strconv.Atoi(v[:end])
	if err != nil {
		return 0, false
	}
	return n, true
}
