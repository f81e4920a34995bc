// Package report defines the page analysis report produced by the analyzer.
package report

import (
	"encoding/json"
	"fmt"
)

// HTTP methods an endpoint can be tagged with.
const (
	MethodGet    = "GET"
	MethodPost   = "POST"
	MethodPut    = "PUT"
	MethodDelete = "DELETE"
	MethodPatch  = "PATCH"
)

// EndpointTypeConfig marks endpoints recovered from base-URL configuration.
const EndpointTypeConfig = "config"

// Page types assigned by the classifier.
const (
	PageTypeLogin     = "login"
	PageTypeEcommerce = "ecommerce"
)

// PageAnalysisReport is the root of a single analysis pass.
type PageAnalysisReport struct {
	URL            string         `json:"url"`
	Title          string         `json:"title"`
	ElementCount   int            `json:"elementCount"`
	Forms          int            `json:"forms"`
	Inputs         int            `json:"inputs"`
	Buttons        int            `json:"buttons"`
	Links          int            `json:"links"`
	Tables         int            `json:"tables"`
	VisualElements VisualElements `json:"visualElements"`
	APIs           APIs           `json:"apis"`
	Details        Details        `json:"details"`
}

// New returns an empty report with every list initialized.
func New(url, title string) *PageAnalysisReport {
	return &PageAnalysisReport{
		URL:            url,
		Title:          title,
		VisualElements: NewVisualElements(),
		APIs:           NewAPIs(),
		Details: Details{
			Forms:             make([]FormDetail, 0),
			ImportantElements: make([]ImportantElementRef, 0),
		},
	}
}

// ComputedElementCount reconstructs elementCount from the individual counters.
func (r *PageAnalysisReport) ComputedElementCount() int {
	return r.Forms + r.Buttons + r.Inputs + r.Links + r.Tables
}

// VisualElements groups detected charts, dashboards and SVG visualizations.
type VisualElements struct {
	Charts             []VisualElementRef `json:"charts"`
	Dashboards         []VisualElementRef `json:"dashboards"`
	DataVisualizations []VisualElementRef `json:"dataVisualizations"`
}

// NewVisualElements returns VisualElements with empty, non-nil lists.
func NewVisualElements() VisualElements {
	return VisualElements{
		Charts:             make([]VisualElementRef, 0),
		Dashboards:         make([]VisualElementRef, 0),
		DataVisualizations: make([]VisualElementRef, 0),
	}
}

// APIs holds endpoint and webhook candidates, unique by URL within each list.
type APIs struct {
	Endpoints []EndpointRef `json:"endpoints"`
	Webhooks  []EndpointRef `json:"webhooks"`
}

// NewAPIs returns APIs with empty, non-nil lists.
func NewAPIs() APIs {
	return APIs{
		Endpoints: make([]EndpointRef, 0),
		Webhooks:  make([]EndpointRef, 0),
	}
}

// Details carries the sampled detail records.
type Details struct {
	Forms             []FormDetail          `json:"forms"`
	ImportantElements []ImportantElementRef `json:"importantElements"`
	PageType          string                `json:"pageType,omitempty"`
	DetectedAPIs      []NetworkObservation  `json:"detectedAPIs,omitempty"`
}

// FormDetail describes one form with at least one visible field.
type FormDetail struct {
	Index  int           `json:"index"`
	Action string        `json:"action"`
	Method string        `json:"method"`
	Fields []FieldDetail `json:"fields"`
}

// FieldDetail describes one non-hidden form control.
type FieldDetail struct {
	Type        string `json:"type"`
	Name        string `json:"name"`
	Placeholder string `json:"placeholder"`
	Required    bool   `json:"required"`
}

// EndpointRef is a statically recovered endpoint or webhook candidate.
type EndpointRef struct {
	URL    string `json:"url"`
	Method string `json:"method"`
	Type   string `json:"type,omitempty"`
}

// BoundingBox is an element rectangle in scroll-adjusted page coordinates.
type BoundingBox struct {
	Top    float64 `json:"top"`
	Left   float64 `json:"left"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// VisualElementRef references a detected chart, dashboard or SVG.
type VisualElementRef struct {
	ID       string      `json:"id"`
	Width    *int        `json:"width,omitempty"`
	Height   *int        `json:"height,omitempty"`
	Children *int        `json:"children,omitempty"`
	Type     string      `json:"type,omitempty"`
	Position BoundingBox `json:"position"`
}

// NetworkObservation is a resource timing entry that looks like an API call.
type NetworkObservation struct {
	URL  string `json:"url"`
	Type string `json:"type"`
}

// Important element kinds.
const (
	ElementTypeLink  = "link"
	ElementTypeTable = "table"
)

// ImportantElementRef is either a sampled link or a sampled table.
type ImportantElementRef struct {
	Type string

	// link
	Text string
	Href string

	// table
	Headers  []string
	RowCount int
}

// LinkElement builds a link reference.
func LinkElement(text, href string) ImportantElementRef {
	return ImportantElementRef{Type: ElementTypeLink, Text: text, Href: href}
}

// TableElement builds a table reference.
func TableElement(headers []string, rowCount int) ImportantElementRef {
	if headers == nil {
		headers = make([]string, 0)
	}
	return ImportantElementRef{Type: ElementTypeTable, Headers: headers, RowCount: rowCount}
}

type linkJSON struct {
	Type string `json:"type"`
	Text string `json:"text"`
	Href string `json:"href"`
}

type tableJSON struct {
	Type     string   `json:"type"`
	Headers  []string `json:"headers"`
	RowCount int      `json:"rowCount"`
}

// MarshalJSON emits only the fields of the element's variant.
func (e ImportantElementRef) MarshalJSON() ([]byte, error) {
	switch e.Type {
	case ElementTypeLink:
		return json.Marshal(linkJSON{Type: e.Type, Text: e.Text, Href: e.Href})
	case ElementTypeTable:
		headers := e.Headers
		if headers == nil {
			headers = make([]string, 0)
		}
		return json.Marshal(tableJSON{Type: e.Type, Headers: headers, RowCount: e.RowCount})
	default:
		return nil, fmt.Errorf("unknown important element type %q", e.Type)
	}
}

// UnmarshalJSON decodes either variant based on the type discriminator.
func (e *ImportantElementRef) UnmarshalJSON(data []byte) error {
	var probe struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return err
	}

	switch probe.Type {
	case ElementTypeLink:
		var l linkJSON
		if err := json.Unmarshal(data, &l); err != nil {
			return err
		}
		*e = LinkElement(l.Text, l.Href)
	case ElementTypeTable:
		var t tableJSON
		if err := json.Unmarshal(data, &t); err != nil {
			return err
		}
		*e = TableElement(t.Headers, t.RowCount)
	default:
		return fmt.Errorf("unknown important element type %q", probe.Type)
	}
	return nil
}

// IntPtr returns a pointer to v, for the optional numeric fields.
func IntPtr(v int) *int {
	return &v
}
