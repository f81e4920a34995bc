// Package pagescope loads web pages and reports their automatable surface:
// forms, controls, tables, visual widgets and the API endpoints their
// scripts reference.
//
//	engine, err := pagescope.New(pagescope.WithSourceKind("http"))
//	if err != nil {
//		return err
//	}
//	defer engine.Close()
//
//	report, err := engine.Analyze(ctx, "https://example.com/login")
package pagescope

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/PentesterFlow/pagescope/internal/analyzer"
	"github.com/PentesterFlow/pagescope/internal/dom"
	"github.com/PentesterFlow/pagescope/internal/history"
	"github.com/PentesterFlow/pagescope/internal/logger"
	"github.com/PentesterFlow/pagescope/internal/messaging"
	"github.com/PentesterFlow/pagescope/internal/metrics"
	"github.com/PentesterFlow/pagescope/internal/output"
	"github.com/PentesterFlow/pagescope/internal/ratelimit"
	"github.com/PentesterFlow/pagescope/internal/report"
	"github.com/PentesterFlow/pagescope/internal/source"
)

// ErrClosed is returned by calls on a closed engine.
var ErrClosed = errors.New("engine is closed")

var _ messaging.Backend = (*Engine)(nil)

// Engine loads pages from the configured source and analyzes them.
type Engine struct {
	config   *Config
	source   source.Source
	analyzer *analyzer.Analyzer
	history  *history.Store
	limiter  *ratelimit.Limiter
	log      *logger.Logger
	metrics  *metrics.Collector

	closeOnce sync.Once
	closed    atomic.Bool
}

// BatchResult is the outcome for one target of AnalyzeBatch.
type BatchResult struct {
	Target   string
	Report   *report.PageAnalysisReport
	Err      error
	Duration time.Duration
	// Skipped is set for targets never started because ctx ended.
	Skipped bool
}

// New creates an engine with the given options.
func New(opts ...Option) (*Engine, error) {
	e := &Engine{
		config: DefaultConfig(),
	}

	// Apply options
	for _, opt := range opts {
		if err := opt(e); err != nil {
			return nil, fmt.Errorf("failed to apply option: %w", err)
		}
	}

	// Validate config
	if err := e.config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	if e.log == nil {
		e.log = logger.New(logger.Config{
			Level:     logger.LevelFor(e.config.Verbose, e.config.Debug),
			Pretty:    true,
			Component: "engine",
		})
	}
	if e.metrics == nil {
		e.metrics = metrics.New()
	}

	e.limiter = ratelimit.NewLimiter(e.config.RateLimit.RequestsPerSecond, e.config.RateLimit.Burst)
	e.analyzer = analyzer.New(
		analyzer.WithConfig(e.config.Analysis),
		analyzer.WithLogger(e.log.WithComponent("analyzer")),
		analyzer.WithMetrics(e.metrics),
	)

	if e.source == nil {
		src, err := e.newSource()
		if err != nil {
			return nil, err
		}
		e.source = src
	}

	if e.config.History.Enabled {
		store, err := history.Open(e.config.History.Path, e.config.History.MaxItems)
		if err != nil {
			e.source.Close()
			return nil, fmt.Errorf("failed to open history: %w", err)
		}
		e.history = store
	}

	return e, nil
}

// newSource builds the configured source. Browsers are launched lazily, so
// a browser source costs nothing until its first remote target.
func (e *Engine) newSource() (source.Source, error) {
	kind, err := source.ParseKind(e.config.Source)
	if err != nil {
		return nil, err
	}

	log := e.log.WithComponent("source")
	file := func() source.Source {
		return source.NewFileSource(e.config.BaseURL)
	}
	httpSrc := func() source.Source {
		return source.NewHTTPSource(e.config.HTTP, e.limiter, log, e.metrics)
	}
	browserSrc := func() source.Source {
		return source.NewBrowserSource(e.config.Browser, e.config.HTTP.Headers, e.limiter, log, e.metrics)
	}

	switch kind {
	case source.KindFile:
		return file(), nil
	case source.KindHTTP:
		return httpSrc(), nil
	case source.KindBrowser:
		return browserSrc(), nil
	default:
		return &source.Router{Remote: httpSrc(), Local: file()}, nil
	}
}

// Analyze loads target and builds its report. Failed report sections are
// logged and left empty; only a failed load is an error.
func (e *Engine) Analyze(ctx context.Context, target string) (*report.PageAnalysisReport, error) {
	if e.closed.Load() {
		return nil, ErrClosed
	}

	ctx, cancel := e.withTimeout(ctx)
	defer cancel()

	doc, err := e.source.Load(ctx, target)
	if err != nil {
		e.metrics.RecordAnalysisFailure()
		return nil, err
	}

	res, err := e.analyzer.Run(doc)
	if err != nil {
		return nil, err
	}
	for _, d := range res.Degraded {
		e.log.WithURL(doc.URL()).WithError(d).Warn("Report section left empty")
	}

	e.save(res.Report)
	return res.Report, nil
}

// ExtractAPIs loads target and returns only its script endpoints.
func (e *Engine) ExtractAPIs(ctx context.Context, target string) (report.APIs, error) {
	if e.closed.Load() {
		return report.NewAPIs(), ErrClosed
	}

	ctx, cancel := e.withTimeout(ctx)
	defer cancel()

	doc, err := e.source.Load(ctx, target)
	if err != nil {
		return report.NewAPIs(), err
	}
	return e.analyzer.ExtractAPIs(doc)
}

// AnalyzeHTML analyzes markup already in memory. url becomes the report URL
// and the base for relative links.
func (e *Engine) AnalyzeHTML(url, html string) (*report.PageAnalysisReport, error) {
	if e.closed.Load() {
		return nil, ErrClosed
	}

	doc, err := dom.ParseString(url, html)
	if err != nil {
		return nil, err
	}
	r, err := e.analyzer.Analyze(doc)
	if err != nil {
		return nil, err
	}
	e.save(r)
	return r, nil
}

// AnalyzeBatch analyzes targets with the configured number of workers.
// Results come back in input order. onResult, if set, is called once per
// target as it completes; calls are serialized.
func (e *Engine) AnalyzeBatch(ctx context.Context, targets []string, onResult func(BatchResult)) []BatchResult {
	results := make([]BatchResult, len(targets))
	if len(targets) == 0 {
		return results
	}

	workers := e.config.Workers
	if workers > len(targets) {
		workers = len(targets)
	}

	jobs := make(chan int)
	var wg sync.WaitGroup
	var cbMu sync.Mutex

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				start := time.Now()
				r, err := e.Analyze(ctx, targets[i])
				res := BatchResult{
					Target:   targets[i],
					Report:   r,
					Err:      err,
					Duration: time.Since(start),
				}
				if err != nil {
					e.log.WithURL(targets[i]).WithError(err).Warn("Analysis failed")
				}
				results[i] = res

				if onResult != nil {
					cbMu.Lock()
					onResult(res)
					cbMu.Unlock()
				}
			}
		}()
	}

	for i := range targets {
		if ctx.Err() != nil {
			for j := i; j < len(targets); j++ {
				results[j] = BatchResult{Target: targets[j], Err: ctx.Err(), Skipped: true}
			}
			break
		}
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	return results
}

// Summarize totals a batch.
func Summarize(results []BatchResult) *output.Summary {
	s := &output.Summary{}
	for _, r := range results {
		s.Add(r.Report)
		s.Duration += r.Duration
	}
	return s
}

// History returns the report history, or nil when it is disabled.
func (e *Engine) History() *history.Store {
	return e.history
}

// Config returns a copy of the engine configuration.
func (e *Engine) Config() *Config {
	return e.config.Clone()
}

// Logger returns the engine logger.
func (e *Engine) Logger() *logger.Logger {
	return e.log
}

// Metrics returns the metrics collector.
func (e *Engine) Metrics() *metrics.Collector {
	return e.metrics
}

// Close releases the source and the history store. It is safe to call more
// than once.
func (e *Engine) Close() error {
	var err error
	e.closeOnce.Do(func() {
		e.closed.Store(true)
		err = e.source.Close()
		if e.history != nil {
			if herr := e.history.Close(); err == nil {
				err = herr
			}
		}
	})
	return err
}

func (e *Engine) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if e.config.Timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, e.config.Timeout)
}

func (e *Engine) save(r *report.PageAnalysisReport) {
	if e.history == nil {
		return
	}
	if err := e.history.Add(r); err != nil {
		e.log.WithURL(r.URL).WithError(err).Warn("Failed to save report to history")
	}
}
