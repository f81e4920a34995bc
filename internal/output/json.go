package output

import (
	"encoding/json"
	"io"
	"sync"

	apperrors "github.com/PentesterFlow/pagescope/internal/errors"
	"github.com/PentesterFlow/pagescope/internal/report"
)

// JSONWriter writes output in JSON format.
type JSONWriter struct {
	mu     sync.Mutex
	writer io.Writer
	pretty bool
	stream bool
	closed bool
}

// NewJSONWriter creates a new JSON writer.
func NewJSONWriter(w io.Writer, pretty, stream bool) *JSONWriter {
	return &JSONWriter{
		writer: w,
		pretty: pretty,
		stream: stream,
	}
}

// WriteReport writes a report, bare or as a "report" event.
func (j *JSONWriter) WriteReport(r *report.PageAnalysisReport) error {
	if r == nil {
		return nil
	}
	if j.stream {
		return j.write(Event{Type: EventReport, Target: r.URL, Data: r})
	}
	return j.write(r)
}

// WriteAPIs writes extracted endpoints, bare or as an "apis" event.
func (j *JSONWriter) WriteAPIs(target string, apis report.APIs) error {
	if j.stream {
		return j.write(Event{Type: EventAPIs, Target: target, Data: apis})
	}
	return j.write(apis)
}

// WriteError writes a failed target.
func (j *JSONWriter) WriteError(target string, err error) error {
	if err == nil {
		return nil
	}
	rec := ErrorRecord{
		Target:  target,
		Type:    apperrors.GetErrorType(err).String(),
		Message: err.Error(),
	}
	if j.stream {
		return j.write(Event{Type: EventError, Target: target, Data: rec})
	}
	return j.write(rec)
}

// WriteSummary writes a "summary" event in stream mode.
func (j *JSONWriter) WriteSummary(s *Summary) error {
	if !j.stream || s == nil {
		return nil
	}
	return j.write(Event{Type: EventSummary, Data: s})
}

// write marshals v followed by a newline.
func (j *JSONWriter) write(v interface{}) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.closed {
		return nil
	}

	var data []byte
	var err error

	if j.pretty {
		data, err = json.MarshalIndent(v, "", "  ")
	} else {
		data, err = json.Marshal(v)
	}

	if err != nil {
		return err
	}

	data = append(data, '\n')
	_, err = j.writer.Write(data)
	return err
}

// Flush flushes the writer.
func (j *JSONWriter) Flush() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if flusher, ok := j.writer.(interface{ Flush() error }); ok {
		return flusher.Flush()
	}
	return nil
}

// Close closes the writer.
func (j *JSONWriter) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.closed {
		return nil
	}
	j.closed = true

	if closer, ok := j.writer.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}
