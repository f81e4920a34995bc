package analyzer

import (
	"github.com/PentesterFlow/pagescope/internal/dom"
	"github.com/PentesterFlow/pagescope/internal/report"
)

// Section names as they appear in logs and metrics.
const (
	SectionForms    = "forms"
	SectionControls = "controls"
	SectionTables   = "tables"
	SectionPageType = "page_type"
	SectionNetwork  = "network"
	SectionVisual   = "visual"
	SectionAPIs     = "apis"
)

// section computes its part of the report into locals and assigns them last,
// so a panic leaves the report fields at their defaults.
type section struct {
	name string
	run  func(a *Analyzer, doc *dom.Document, r *report.PageAnalysisReport)
}

func defaultSections() []section {
	return []section{
		{SectionForms, runForms},
		{SectionControls, runControls},
		{SectionTables, runTables},
		{SectionPageType, runPageType},
		{SectionNetwork, runNetwork},
		{SectionVisual, runVisual},
		{SectionAPIs, runAPIs},
	}
}

func runForms(a *Analyzer, doc *dom.Document, r *report.PageAnalysisReport) {
	count, details := analyzeForms(doc)
	r.Forms = count
	r.Details.Forms = details
}

func runControls(a *Analyzer, doc *dom.Document, r *report.PageAnalysisReport) {
	buttons := countButtons(doc)
	inputs := countStandaloneInputs(doc)
	links, samples := analyzeLinks(doc, a.cfg.LinkSample, a.cfg.LinkTextMax)

	r.Buttons = buttons
	r.Inputs = inputs
	r.Links = links
	r.Details.ImportantElements = append(r.Details.ImportantElements, samples...)
}

func runTables(a *Analyzer, doc *dom.Document, r *report.PageAnalysisReport) {
	count, samples := analyzeTables(doc, a.cfg.TableSample, a.cfg.HeaderMax)
	r.Tables = count
	r.Details.ImportantElements = append(r.Details.ImportantElements, samples...)
}

func runPageType(a *Analyzer, doc *dom.Document, r *report.PageAnalysisReport) {
	r.Details.PageType = classifyPage(doc, a.cfg.PriceThreshold)
}

func runNetwork(a *Analyzer, doc *dom.Document, r *report.PageAnalysisReport) {
	r.Details.DetectedAPIs = detectedAPIs(doc.Resources(), a.cfg.DetectedAPIMax)
}

func runVisual(a *Analyzer, doc *dom.Document, r *report.PageAnalysisReport) {
	r.VisualElements = detectVisualElements(doc, a.cfg)
}

func runAPIs(a *Analyzer, doc *dom.Document, r *report.PageAnalysisReport) {
	apis, err := a.extractor.Extract(doc)
	if err != nil {
		a.log.WithURL(doc.URL()).WithError(err).Warn("Markup pass skipped")
	}
	r.APIs = apis
}
