// Package analyzer turns a parsed page into a PageAnalysisReport.
//
// Every report section is computed independently. A section that panics on a
// malformed page is recovered and left at its empty default while the rest of
// the report is still produced.
package analyzer

import (
	"time"

	"github.com/PentesterFlow/pagescope/internal/dom"
	apperrors "github.com/PentesterFlow/pagescope/internal/errors"
	"github.com/PentesterFlow/pagescope/internal/extract"
	"github.com/PentesterFlow/pagescope/internal/logger"
	"github.com/PentesterFlow/pagescope/internal/metrics"
	"github.com/PentesterFlow/pagescope/internal/report"
)

// ErrInvalidDocument matches (via errors.Is) the error returned for a nil or
// empty document.
var ErrInvalidDocument error = &apperrors.AnalysisError{Type: apperrors.InvalidDocument}

// Config holds the sampling caps and detection thresholds.
type Config struct {
	LinkSample         int `yaml:"link_sample" json:"link_sample"`
	LinkTextMax        int `yaml:"link_text_max" json:"link_text_max"`
	TableSample        int `yaml:"table_sample" json:"table_sample"`
	HeaderMax          int `yaml:"header_max" json:"header_max"`
	PriceThreshold     int `yaml:"price_threshold" json:"price_threshold"`
	DashboardThreshold int `yaml:"dashboard_threshold" json:"dashboard_threshold"`
	SVGShapeThreshold  int `yaml:"svg_shape_threshold" json:"svg_shape_threshold"`
	DetectedAPIMax     int `yaml:"detected_api_max" json:"detected_api_max"`
	MethodWindow       int `yaml:"method_window" json:"method_window"`
}

// DefaultConfig returns the stock thresholds.
func DefaultConfig() Config {
	return Config{
		LinkSample:         5,
		LinkTextMax:        50,
		TableSample:        3,
		HeaderMax:          5,
		PriceThreshold:     3,
		DashboardThreshold: 10,
		SVGShapeThreshold:  5,
		DetectedAPIMax:     5,
		MethodWindow:       extract.DefaultMethodWindow,
	}
}

// Result is a report plus what went wrong while building it.
type Result struct {
	Report *report.PageAnalysisReport
	// Degraded lists the sections that failed and were left at their defaults.
	Degraded []*apperrors.AnalysisError
	Duration time.Duration
}

// Analyzer builds reports. It holds no per-page state and is safe for
// concurrent use.
type Analyzer struct {
	cfg       Config
	extractor *extract.Extractor
	log       *logger.Logger
	metrics   *metrics.Collector
	sections  []section
}

// Option configures an Analyzer.
type Option func(*Analyzer)

// WithConfig sets thresholds.
func WithConfig(cfg Config) Option {
	return func(a *Analyzer) {
		a.cfg = cfg
	}
}

// WithLogger sets the logger.
func WithLogger(l *logger.Logger) Option {
	return func(a *Analyzer) {
		a.log = l
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(m *metrics.Collector) Option {
	return func(a *Analyzer) {
		a.metrics = m
	}
}

// New creates an analyzer.
func New(opts ...Option) *Analyzer {
	a := &Analyzer{
		cfg:     DefaultConfig(),
		log:     logger.Nop(),
		metrics: metrics.New(),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.extractor = &extract.Extractor{MethodWindow: a.cfg.MethodWindow}
	a.sections = defaultSections()
	return a
}

// Analyze runs a default analyzer over doc.
func Analyze(doc *dom.Document) (*report.PageAnalysisReport, error) {
	return New().Analyze(doc)
}

// Analyze builds the report for doc. It fails only when doc has no tree.
func (a *Analyzer) Analyze(doc *dom.Document) (*report.PageAnalysisReport, error) {
	res, err := a.Run(doc)
	if err != nil {
		return nil, err
	}
	return res.Report, nil
}

// Run is Analyze with diagnostics.
func (a *Analyzer) Run(doc *dom.Document) (*Result, error) {
	if !doc.Valid() {
		a.metrics.RecordAnalysisFailure()
		return nil, apperrors.NewInvalidDocumentError(targetOf(doc))
	}

	start := time.Now()
	r := report.New(doc.URL(), doc.Title())
	res := &Result{Report: r}

	for _, s := range a.sections {
		if err := a.runSection(s, doc, r); err != nil {
			res.Degraded = append(res.Degraded, err)
		}
	}
	r.ElementCount = r.ComputedElementCount()

	res.Duration = time.Since(start)
	visuals := len(r.VisualElements.Charts) + len(r.VisualElements.Dashboards) + len(r.VisualElements.DataVisualizations)
	a.metrics.RecordAnalysis(res.Duration, r.Forms, visuals, len(r.APIs.Endpoints), len(r.APIs.Webhooks))
	a.log.AnalysisEvent(logger.DebugLevel, r.URL, r.ElementCount, len(r.APIs.Endpoints)).
		Int("degraded", len(res.Degraded)).
		Dur("duration", res.Duration).
		Msg("Analyzed page")

	return res, nil
}

// ExtractAPIs runs only the script endpoint extraction over doc.
func (a *Analyzer) ExtractAPIs(doc *dom.Document) (report.APIs, error) {
	if !doc.Valid() {
		return report.NewAPIs(), apperrors.NewInvalidDocumentError(targetOf(doc))
	}
	apis, err := a.extractor.Extract(doc)
	if err != nil {
		a.log.WithURL(doc.URL()).WithError(err).Warn("Markup pass skipped")
	}
	return apis, nil
}

func (a *Analyzer) runSection(s section, doc *dom.Document, r *report.PageAnalysisReport) (err *apperrors.AnalysisError) {
	defer func() {
		if p := recover(); p != nil {
			err = apperrors.NewSectionError(doc.URL(), s.name, p)
			a.log.SectionFailure(s.name, doc.URL(), p)
			a.metrics.RecordSectionFailure(s.name)
		}
	}()
	s.run(a, doc, r)
	return nil
}

func targetOf(doc *dom.Document) string {
	if doc == nil {
		return ""
	}
	return doc.URL()
}
