// Package messaging exposes the analyzer over a JSON request/response
// protocol, one response per request.
package messaging

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/PentesterFlow/pagescope/internal/logger"
	"github.com/PentesterFlow/pagescope/internal/metrics"
	"github.com/PentesterFlow/pagescope/internal/report"
)

// Actions understood by the dispatcher.
const (
	ActionPing        = "ping"
	ActionAnalyzePage = "analyzePage"
	ActionExtractAPIs = "extractJavaScriptAPIs"
)

// StatusPong answers a ping.
const StatusPong = "pong"

// ErrNoTarget is returned when a request names no page and there is no
// default page configured.
var ErrNoTarget = errors.New("no page to analyze: request has no url")

// Request is one inbound message.
type Request struct {
	ID     string `json:"id,omitempty"`
	Action string `json:"action"`
	URL    string `json:"url,omitempty"`
}

// Response is the reply to a Request. Exactly one of Status, Analysis, APIs
// or Error is set.
type Response struct {
	ID       string                     `json:"id,omitempty"`
	Status   string                     `json:"status,omitempty"`
	Analysis *report.PageAnalysisReport `json:"analysis,omitempty"`
	APIs     *report.APIs               `json:"apis,omitempty"`
	Error    string                     `json:"error,omitempty"`
}

// Backend loads and analyzes pages.
type Backend interface {
	Analyze(ctx context.Context, target string) (*report.PageAnalysisReport, error)
	ExtractAPIs(ctx context.Context, target string) (report.APIs, error)
}

// Dispatcher maps requests to backend calls.
type Dispatcher struct {
	backend Backend
	// DefaultURL stands in for a request without url.
	DefaultURL string
	// Timeout bounds each analysis, fetch included. Zero means no limit.
	Timeout time.Duration

	log     *logger.Logger
	metrics *metrics.Collector
}

// NewDispatcher creates a dispatcher. log and m may be nil.
func NewDispatcher(backend Backend, log *logger.Logger, m *metrics.Collector) *Dispatcher {
	if log == nil {
		log = logger.Nop()
	}
	if m == nil {
		m = metrics.New()
	}
	return &Dispatcher{
		backend: backend,
		log:     log.WithComponent("messaging"),
		metrics: m,
	}
}

// Handle answers req. It never panics; failures become an error response.
func (d *Dispatcher) Handle(ctx context.Context, req Request) (resp Response) {
	defer func() {
		if p := recover(); p != nil {
			d.log.WithField("action", req.Action).Errorf("Recovered panic: %v", p)
			resp = Response{ID: req.ID, Error: fmt.Sprint(p)}
		}
	}()

	switch req.Action {
	case ActionPing:
		d.metrics.RecordMessage(req.Action)
		return Response{ID: req.ID, Status: StatusPong}

	case ActionAnalyzePage:
		d.metrics.RecordMessage(req.Action)
		target, err := d.target(req)
		if err != nil {
			return errorResponse(req.ID, err)
		}
		ctx, cancel := d.withTimeout(ctx)
		defer cancel()

		r, err := d.backend.Analyze(ctx, target)
		if err != nil {
			return errorResponse(req.ID, err)
		}
		return Response{ID: req.ID, Analysis: r}

	case ActionExtractAPIs:
		d.metrics.RecordMessage(req.Action)
		target, err := d.target(req)
		if err != nil {
			return errorResponse(req.ID, err)
		}
		ctx, cancel := d.withTimeout(ctx)
		defer cancel()

		apis, err := d.backend.ExtractAPIs(ctx, target)
		if err != nil {
			return errorResponse(req.ID, err)
		}
		return Response{ID: req.ID, APIs: &apis}

	default:
		d.metrics.RecordMessage("unknown")
		return Response{ID: req.ID, Error: "unknown action: " + req.Action}
	}
}

func (d *Dispatcher) target(req Request) (string, error) {
	if req.URL != "" {
		return req.URL, nil
	}
	if d.DefaultURL != "" {
		return d.DefaultURL, nil
	}
	return "", ErrNoTarget
}

func (d *Dispatcher) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if d.Timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d.Timeout)
}

// errorResponse flattens err to its message. Typed errors carry their
// category prefix, so clients can tell a timeout from a bad page.
func errorResponse(id string, err error) Response {
	return Response{ID: id, Error: err.Error()}
}
