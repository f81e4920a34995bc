// Package output writes analysis reports as JSON.
package output

import (
	"io"
	"os"
	"path/filepath"

	"github.com/PentesterFlow/pagescope/internal/report"
)

// Writer defines the interface for report writers.
type Writer interface {
	// WriteReport writes one page analysis.
	WriteReport(r *report.PageAnalysisReport) error

	// WriteAPIs writes the endpoints extracted from target.
	WriteAPIs(target string, apis report.APIs) error

	// WriteError records a target that could not be analyzed.
	WriteError(target string, err error) error

	// WriteSummary writes batch totals. Ignored outside stream mode.
	WriteSummary(s *Summary) error

	// Flush flushes any buffered output
	Flush() error

	// Close closes the writer
	Close() error
}

// Config holds output configuration.
type Config struct {
	Pretty bool `yaml:"pretty" json:"pretty"`
	// Stream wraps every record in an Event, one per line.
	Stream bool `yaml:"stream" json:"stream"`
	// FilePath is the destination; empty or "-" means stdout.
	FilePath string `yaml:"file" json:"file"`
}

// NewWriter creates a writer on w.
func NewWriter(w io.Writer, config Config) Writer {
	return NewJSONWriter(w, config.Pretty, config.Stream)
}

// Open creates a writer for config.FilePath, creating parent directories
// as needed. Closing it never closes stdout.
func Open(config Config) (Writer, error) {
	if config.FilePath == "" || config.FilePath == "-" {
		return NewWriter(nopCloser{os.Stdout}, config), nil
	}

	if dir := filepath.Dir(config.FilePath); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, err
		}
	}
	f, err := os.Create(config.FilePath)
	if err != nil {
		return nil, err
	}
	return NewWriter(f, config), nil
}

type nopCloser struct {
	io.Writer
}
