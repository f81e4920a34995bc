package output

import (
	"time"

	"github.com/PentesterFlow/pagescope/internal/report"
)

// Event types written in stream mode.
const (
	EventReport  = "report"
	EventAPIs    = "apis"
	EventError   = "error"
	EventSummary = "summary"
)

// Event represents a streaming output event.
type Event struct {
	Type   string      `json:"type"`
	Target string      `json:"target,omitempty"`
	Data   interface{} `json:"data"`
}

// ErrorRecord describes a target that failed.
type ErrorRecord struct {
	Target  string `json:"target"`
	Type    string `json:"type"`
	Message string `json:"message"`
}

// Summary holds totals for a batch of analyses.
type Summary struct {
	Targets   int           `json:"targets"`
	Succeeded int           `json:"succeeded"`
	Failed    int           `json:"failed"`
	Forms     int           `json:"forms"`
	Endpoints int           `json:"endpoints"`
	Webhooks  int           `json:"webhooks"`
	Duration  time.Duration `json:"duration"`
}

// Add folds one report into the totals. A nil report counts as a failure.
func (s *Summary) Add(r *report.PageAnalysisReport) {
	s.Targets++
	if r == nil {
		s.Failed++
		return
	}
	s.Succeeded++
	s.Forms += r.Forms
	s.Endpoints += len(r.APIs.Endpoints)
	s.Webhooks += len(r.APIs.Webhooks)
}
