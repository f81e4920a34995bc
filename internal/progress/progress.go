// Package progress renders a one-line progress bar for batch analysis.
package progress

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Display manages progress bar display during a batch.
type Display struct {
	mu      sync.Mutex
	out     io.Writer
	started bool
	stopped bool

	// Stats
	total     atomic.Int64
	analyzed  atomic.Int64
	forms     atomic.Int64
	endpoints atomic.Int64
	errors    atomic.Int64

	// Timing
	startTime time.Time

	// Display
	lastLine string
}

// New creates a display writing to stderr.
func New() *Display {
	return NewWriter(os.Stderr)
}

// NewWriter creates a display writing to w.
func NewWriter(w io.Writer) *Display {
	return &Display{out: w}
}

// Start begins the display for total targets.
func (d *Display) Start(total int) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.started {
		return
	}

	d.started = true
	d.startTime = time.Now()
	d.total.Store(int64(total))
}

// Record folds one finished target into the stats and redraws the bar.
func (d *Display) Record(forms, endpoints int, failed bool) {
	d.analyzed.Add(1)
	if failed {
		d.errors.Add(1)
	} else {
		d.forms.Add(int64(forms))
		d.endpoints.Add(int64(endpoints))
	}
	d.render()
}

func (d *Display) render() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.started || d.stopped {
		return
	}

	total := d.total.Load()
	done := d.analyzed.Load()

	percent := 100
	if total > 0 {
		percent = int(done * 100 / total)
	}

	elapsed := time.Since(d.startTime)
	speed := float64(0)
	if elapsed.Seconds() > 0 {
		speed = float64(done) / elapsed.Seconds()
	}

	// Build progress bar
	barWidth := 30
	filled := percent * barWidth / 100
	bar := strings.Repeat("█", filled) + strings.Repeat("░", barWidth-filled)

	line := fmt.Sprintf("\r[%s] %3d%% | Pages: %d/%d | APIs: %d | Forms: %d | Errors: %d | %.1f p/s | %s",
		bar, percent, done, total, d.endpoints.Load(), d.forms.Load(), d.errors.Load(), speed, formatDuration(elapsed))

	// Clear previous line and print new one
	if len(line) < len(d.lastLine) {
		fmt.Fprint(d.out, "\r"+strings.Repeat(" ", len(d.lastLine)))
	}
	fmt.Fprint(d.out, line)
	d.lastLine = line
}

// Stop ends the display.
func (d *Display) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped || !d.started {
		return
	}

	d.stopped = true

	// Print newline to move past progress bar
	fmt.Fprintln(d.out)
}

// PrintSummary prints the batch totals.
func (d *Display) PrintSummary() {
	duration := time.Since(d.startTime)

	fmt.Fprintln(d.out)
	fmt.Fprintln(d.out, "╔══════════════════════════════════════════════════════════════╗")
	fmt.Fprintln(d.out, "║                      Analysis Complete                       ║")
	fmt.Fprintln(d.out, "╚══════════════════════════════════════════════════════════════╝")
	fmt.Fprintln(d.out)
	fmt.Fprintf(d.out, "  Duration:            %s\n", formatDuration(duration))
	fmt.Fprintf(d.out, "  Pages Analyzed:      %d/%d\n", d.analyzed.Load(), d.total.Load())
	fmt.Fprintf(d.out, "  Forms Found:         %d\n", d.forms.Load())
	fmt.Fprintf(d.out, "  API Endpoints:       %d\n", d.endpoints.Load())
	fmt.Fprintf(d.out, "  Errors:              %d\n", d.errors.Load())
	fmt.Fprintln(d.out)
}

// Stats returns current batch statistics.
func (d *Display) Stats() (analyzed, forms, endpoints, errors int64) {
	return d.analyzed.Load(),
		d.forms.Load(),
		d.endpoints.Load(),
		d.errors.Load()
}

// formatDuration formats a duration for display.
func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second

	if h > 0 {
		return fmt.Sprintf("%dh%02dm%02ds", h, m, s)
	}
	if m > 0 {
		return fmt.Sprintf("%dm%02ds", m, s)
	}
	return fmt.Sprintf("%ds", s)
}
