// Package metrics provides metrics collection for page analysis.
package metrics

import (
	"sync"
	"sync/atomic"
	"time"
)

// Collector collects and aggregates metrics.
type Collector struct {
	// Analysis counters
	analysesTotal  atomic.Int64
	analysesFailed atomic.Int64
	formsFound     atomic.Int64
	visualsFound   atomic.Int64
	endpointsFound atomic.Int64
	webhooksFound  atomic.Int64

	// Source counters
	fetchesTotal atomic.Int64
	fetchErrors  atomic.Int64
	bytesTotal   atomic.Int64
	retriesTotal atomic.Int64

	// Rate tracking
	analysesInWindow atomic.Int64
	windowStart      atomic.Int64

	// Analysis duration tracking
	durationSum atomic.Int64
	durationNum atomic.Int64

	// Gauges
	activeSessions atomic.Int64

	// Histogram buckets for analysis duration in ms
	durationBuckets [10]atomic.Int64 // <10, <50, <100, <250, <500, <1000, <2500, <5000, <10000, >=10000

	// Section failures by section name
	sectionFailures map[string]*atomic.Int64
	sectionMu       sync.RWMutex

	// Fetch errors by error type
	errorCounts map[string]*atomic.Int64
	errorMu     sync.RWMutex

	// Messages handled by action
	messages  map[string]*atomic.Int64
	messageMu sync.RWMutex

	startTime time.Time
}

// New creates a new metrics collector.
func New() *Collector {
	now := time.Now()
	c := &Collector{
		sectionFailures: make(map[string]*atomic.Int64),
		errorCounts:     make(map[string]*atomic.Int64),
		messages:        make(map[string]*atomic.Int64),
		startTime:       now,
	}
	c.windowStart.Store(now.UnixNano())
	return c
}

// RecordAnalysis records a completed analysis pass and what it found.
func (c *Collector) RecordAnalysis(d time.Duration, forms, visuals, endpoints, webhooks int) {
	c.analysesTotal.Add(1)
	c.analysesInWindow.Add(1)
	c.formsFound.Add(int64(forms))
	c.visualsFound.Add(int64(visuals))
	c.endpointsFound.Add(int64(endpoints))
	c.webhooksFound.Add(int64(webhooks))

	ms := d.Milliseconds()
	c.durationSum.Add(ms)
	c.durationNum.Add(1)
	c.durationBuckets[getBucket(ms)].Add(1)
}

// RecordAnalysisFailure records an analysis that produced no report.
func (c *Collector) RecordAnalysisFailure() {
	c.analysesFailed.Add(1)
}

// RecordSectionFailure records a report section that degraded to its default.
func (c *Collector) RecordSectionFailure(section string) {
	incr(&c.sectionMu, c.sectionFailures, section)
}

// RecordFetch records a document fetch of n bytes.
func (c *Collector) RecordFetch(n int64) {
	c.fetchesTotal.Add(1)
	c.bytesTotal.Add(n)
}

// RecordFetchError records a failed fetch by error type.
func (c *Collector) RecordFetchError(errorType string) {
	c.fetchErrors.Add(1)
	incr(&c.errorMu, c.errorCounts, errorType)
}

// RecordRetry records a retry attempt.
func (c *Collector) RecordRetry() {
	c.retriesTotal.Add(1)
}

// RecordMessage records a handled protocol message.
func (c *Collector) RecordMessage(action string) {
	incr(&c.messageMu, c.messages, action)
}

// SessionOpened increments the active session gauge.
func (c *Collector) SessionOpened() {
	c.activeSessions.Add(1)
}

// SessionClosed decrements the active session gauge.
func (c *Collector) SessionClosed() {
	c.activeSessions.Add(-1)
}

func incr(mu *sync.RWMutex, m map[string]*atomic.Int64, key string) {
	mu.RLock()
	counter := m[key]
	mu.RUnlock()
	if counter == nil {
		mu.Lock()
		if m[key] == nil {
			m[key] = &atomic.Int64{}
		}
		counter = m[key]
		mu.Unlock()
	}
	counter.Add(1)
}

// getBucket returns the histogram bucket for a duration in ms.
func getBucket(ms int64) int {
	switch {
	case ms < 10:
		return 0
	case ms < 50:
		return 1
	case ms < 100:
		return 2
	case ms < 250:
		return 3
	case ms < 500:
		return 4
	case ms < 1000:
		return 5
	case ms < 2500:
		return 6
	case ms < 5000:
		return 7
	case ms < 10000:
		return 8
	default:
		return 9
	}
}

// GetAnalysesPerSecond returns the analysis rate over the current window.
func (c *Collector) GetAnalysesPerSecond() float64 {
	windowDuration := 10 * time.Second
	now := time.Now().UnixNano()
	windowStart := c.windowStart.Load()

	elapsed := time.Duration(now - windowStart)
	if elapsed >= windowDuration {
		if c.windowStart.CompareAndSwap(windowStart, now) {
			c.analysesInWindow.Store(0)
		}
		return 0
	}
	if elapsed <= 0 {
		return 0
	}
	return float64(c.analysesInWindow.Load()) / elapsed.Seconds()
}

// GetAverageDuration returns the mean analysis duration.
func (c *Collector) GetAverageDuration() time.Duration {
	sum := c.durationSum.Load()
	num := c.durationNum.Load()
	if num == 0 {
		return 0
	}
	return time.Duration(sum/num) * time.Millisecond
}

// Snapshot returns a point-in-time snapshot of all metrics.
func (c *Collector) Snapshot() *Snapshot {
	s := &Snapshot{
		Timestamp:       time.Now(),
		Uptime:          time.Since(c.startTime),
		AnalysesTotal:   c.analysesTotal.Load(),
		AnalysesFailed:  c.analysesFailed.Load(),
		FormsFound:      c.formsFound.Load(),
		VisualsFound:    c.visualsFound.Load(),
		EndpointsFound:  c.endpointsFound.Load(),
		WebhooksFound:   c.webhooksFound.Load(),
		FetchesTotal:    c.fetchesTotal.Load(),
		FetchErrors:     c.fetchErrors.Load(),
		BytesTotal:      c.bytesTotal.Load(),
		RetriesTotal:    c.retriesTotal.Load(),
		ActiveSessions:  c.activeSessions.Load(),
		AnalysesPerSec:  c.GetAnalysesPerSecond(),
		AverageDuration: c.GetAverageDuration(),
		SectionFailures: copyCounts(&c.sectionMu, c.sectionFailures),
		ErrorCounts:     copyCounts(&c.errorMu, c.errorCounts),
		Messages:        copyCounts(&c.messageMu, c.messages),
		DurationHist:    make([]int64, len(c.durationBuckets)),
	}
	for i := range c.durationBuckets {
		s.DurationHist[i] = c.durationBuckets[i].Load()
	}
	return s
}

func copyCounts(mu *sync.RWMutex, m map[string]*atomic.Int64) map[string]int64 {
	mu.RLock()
	defer mu.RUnlock()
	out := make(map[string]int64, len(m))
	for k, v := range m {
		out[k] = v.Load()
	}
	return out
}

// clearCounts empties m in place so callers holding the map stay valid.
func clearCounts(mu *sync.RWMutex, m map[string]*atomic.Int64) {
	mu.Lock()
	for k := range m {
		delete(m, k)
	}
	mu.Unlock()
}

// Reset resets all metrics.
func (c *Collector) Reset() {
	c.analysesTotal.Store(0)
	c.analysesFailed.Store(0)
	c.formsFound.Store(0)
	c.visualsFound.Store(0)
	c.endpointsFound.Store(0)
	c.webhooksFound.Store(0)
	c.fetchesTotal.Store(0)
	c.fetchErrors.Store(0)
	c.bytesTotal.Store(0)
	c.retriesTotal.Store(0)
	c.analysesInWindow.Store(0)
	c.durationSum.Store(0)
	c.durationNum.Store(0)
	c.activeSessions.Store(0)

	for i := range c.durationBuckets {
		c.durationBuckets[i].Store(0)
	}

	clearCounts(&c.sectionMu, c.sectionFailures)
	clearCounts(&c.errorMu, c.errorCounts)
	clearCounts(&c.messageMu, c.messages)

	c.windowStart.Store(time.Now().UnixNano())
	c.startTime = time.Now()
}

// Snapshot represents a point-in-time view of metrics.
type Snapshot struct {
	Timestamp       time.Time        `json:"timestamp"`
	Uptime          time.Duration    `json:"uptime"`
	AnalysesTotal   int64            `json:"analyses_total"`
	AnalysesFailed  int64            `json:"analyses_failed"`
	FormsFound      int64            `json:"forms_found"`
	VisualsFound    int64            `json:"visuals_found"`
	EndpointsFound  int64            `json:"endpoints_found"`
	WebhooksFound   int64            `json:"webhooks_found"`
	FetchesTotal    int64            `json:"fetches_total"`
	FetchErrors     int64            `json:"fetch_errors"`
	BytesTotal      int64            `json:"bytes_total"`
	RetriesTotal    int64            `json:"retries_total"`
	ActiveSessions  int64            `json:"active_sessions"`
	AnalysesPerSec  float64          `json:"analyses_per_second"`
	AverageDuration time.Duration    `json:"average_duration"`
	SectionFailures map[string]int64 `json:"section_failures"`
	ErrorCounts     map[string]int64 `json:"error_counts"`
	Messages        map[string]int64 `json:"messages"`
	DurationHist    []int64          `json:"duration_histogram"`
}

// FailureRate returns failed analyses over all attempts.
func (s *Snapshot) FailureRate() float64 {
	attempts := s.AnalysesTotal + s.AnalysesFailed
	if attempts == 0 {
		return 0
	}
	return float64(s.AnalysesFailed) / float64(attempts)
}

// Summary returns a human-readable summary.
func (s *Snapshot) Summary() map[string]interface{} {
	return map[string]interface{}{
		"uptime":              s.Uptime.String(),
		"analyses_total":      s.AnalysesTotal,
		"analyses_failed":     s.AnalysesFailed,
		"failure_rate":        s.FailureRate(),
		"endpoints_found":     s.EndpointsFound,
		"webhooks_found":      s.WebhooksFound,
		"fetches_total":       s.FetchesTotal,
		"active_sessions":     s.ActiveSessions,
		"analyses_per_second": s.AnalysesPerSec,
		"avg_duration_ms":     s.AverageDuration.Milliseconds(),
	}
}
