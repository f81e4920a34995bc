package analyzer

import (
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/PentesterFlow/pagescope/internal/dom"
	"github.com/PentesterFlow/pagescope/internal/report"
)

const (
	dashboardSelector = `[class*="dashboard"], [class*="widget"], [id*="dashboard"], [id*="widget"]`
	shapeSelector     = "path, rect, circle"
)

var (
	chartParentHints = []string{"chart", "graph", "plot"}
	svgParentHints   = []string{"chart", "graph"}
)

// detectVisualElements finds chart canvases, dense dashboard containers and
// SVG visualizations.
func detectVisualElements(doc *dom.Document, cfg Config) report.VisualElements {
	visuals := report.NewVisualElements()

	doc.Find("canvas").Each(func(_ int, canvas *goquery.Selection) {
		isChart := parentClassHas(canvas, chartParentHints) ||
			dom.AttrOr(canvas, "data-chart-type", "") != ""
		if !isChart {
			return
		}
		width, height := dom.CanvasSize(canvas)
		visuals.Charts = append(visuals.Charts, report.VisualElementRef{
			ID:       dom.Identifier(canvas),
			Width:    report.IntPtr(width),
			Height:   report.IntPtr(height),
			Position: box(doc, canvas),
		})
	})

	doc.Find(dashboardSelector).Each(func(_ int, el *goquery.Selection) {
		children := dom.DescendantCount(el)
		if children <= cfg.DashboardThreshold {
			return
		}
		visuals.Dashboards = append(visuals.Dashboards, report.VisualElementRef{
			ID:       dom.Identifier(el),
			Children: report.IntPtr(children),
			Position: box(doc, el),
		})
	})

	doc.Find("svg").Each(func(_ int, svg *goquery.Selection) {
		isDataVis := svg.Find(shapeSelector).Length() > cfg.SVGShapeThreshold ||
			parentClassHas(svg, svgParentHints)
		if !isDataVis {
			return
		}
		visuals.DataVisualizations = append(visuals.DataVisualizations, report.VisualElementRef{
			ID:       dom.Identifier(svg),
			Type:     "svg",
			Children: report.IntPtr(dom.DescendantCount(svg)),
			Position: box(doc, svg),
		})
	})

	return visuals
}

// parentClassHas reports whether the parent's class attribute contains any
// hint, case-insensitively. A missing parent has no class.
func parentClassHas(s *goquery.Selection, hints []string) bool {
	class := strings.ToLower(dom.ClassName(dom.ParentElement(s)))
	for _, h := range hints {
		if strings.Contains(class, h) {
			return true
		}
	}
	return false
}

func box(doc *dom.Document, s *goquery.Selection) report.BoundingBox {
	r := doc.Rect(s)
	return report.BoundingBox{Top: r.Top, Left: r.Left, Width: r.Width, Height: r.Height}
}
