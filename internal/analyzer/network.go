package analyzer

import (
	"strings"

	"github.com/PentesterFlow/pagescope/internal/dom"
	"github.com/PentesterFlow/pagescope/internal/report"
)

// detectedAPIs picks resource timing entries that look like API traffic. It
// returns nil when there are none so the field is omitted from the report.
func detectedAPIs(resources []dom.Resource, max int) []report.NetworkObservation {
	var out []report.NetworkObservation
	for _, r := range resources {
		if len(out) >= max {
			break
		}
		if !looksLikeAPICall(r) {
			continue
		}
		out = append(out, report.NetworkObservation{URL: r.Name, Type: r.InitiatorType})
	}
	return out
}

func looksLikeAPICall(r dom.Resource) bool {
	return strings.Contains(r.Name, "/api/") ||
		strings.Contains(r.Name, ".json") ||
		r.InitiatorType == "xmlhttprequest" ||
		r.InitiatorType == "fetch"
}
