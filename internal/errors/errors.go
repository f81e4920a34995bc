// Package errors provides the error taxonomy for loading and analyzing pages.
package errors

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"syscall"
)

// ErrorType categorizes errors for handling decisions.
type ErrorType int

const (
	// Unknown is an uncategorized error.
	Unknown ErrorType = iota
	// InvalidDocument means there was no document tree to analyze.
	InvalidDocument
	// Fetch represents a non-success HTTP status while loading a page.
	Fetch
	// Network represents network-related errors (DNS, connection).
	Network
	// Timeout represents timeout errors.
	Timeout
	// Parse represents HTML or message decoding errors.
	Parse
	// Browser represents browser/CDP errors.
	Browser
	// Section represents a report section that failed and was degraded.
	Section
	// Transport represents messaging channel errors.
	Transport
	// Cancelled represents context cancellation.
	Cancelled
)

// String returns the string representation of ErrorType.
func (t ErrorType) String() string {
	switch t {
	case InvalidDocument:
		return "invalid_document"
	case Fetch:
		return "fetch"
	case Network:
		return "network"
	case Timeout:
		return "timeout"
	case Parse:
		return "parse"
	case Browser:
		return "browser"
	case Section:
		return "section"
	case Transport:
		return "transport"
	case Cancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// IsRetryable returns whether errors of this type are worth retrying.
func (t ErrorType) IsRetryable() bool {
	switch t {
	case Network, Timeout, Browser:
		return true
	default:
		return false
	}
}

// AnalysisError is a categorized error raised while loading or analyzing a
// page.
type AnalysisError struct {
	Type       ErrorType
	Target     string
	Operation  string
	Message    string
	Cause      error
	StatusCode int
	Retryable  bool
}

// Error implements the error interface.
func (e *AnalysisError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s error during %s", e.Type, e.Operation)
	if e.Target != "" {
		fmt.Fprintf(&b, " on %s", e.Target)
	}
	fmt.Fprintf(&b, ": %s", e.Message)
	if e.Cause != nil {
		fmt.Fprintf(&b, " (caused by: %v)", e.Cause)
	}
	return b.String()
}

// Unwrap returns the underlying error.
func (e *AnalysisError) Unwrap() error {
	return e.Cause
}

// Is matches any AnalysisError of the same type.
func (e *AnalysisError) Is(target error) bool {
	t, ok := target.(*AnalysisError)
	if !ok {
		return false
	}
	return e.Type == t.Type
}

// New creates a new AnalysisError.
func New(errType ErrorType, target, operation, message string, cause error) *AnalysisError {
	return &AnalysisError{
		Type:      errType,
		Target:    target,
		Operation: operation,
		Message:   message,
		Cause:     cause,
		Retryable: errType.IsRetryable(),
	}
}

// NewInvalidDocumentError reports a missing or empty document tree.
func NewInvalidDocumentError(target string) *AnalysisError {
	return New(InvalidDocument, target, "analyze", "invalid document", nil)
}

// NewFetchError creates an error for a non-success HTTP status. 429 and 5xx
// are retryable.
func NewFetchError(target string, statusCode int) *AnalysisError {
	err := New(Fetch, target, "fetch", fmt.Sprintf("server returned %d", statusCode), nil)
	err.StatusCode = statusCode
	err.Retryable = statusCode == 429 || statusCode >= 500
	return err
}

// NewNetworkError creates a network error.
func NewNetworkError(target, operation string, cause error) *AnalysisError {
	return New(Network, target, operation, "network failure", cause)
}

// NewTimeoutError creates a timeout error.
func NewTimeoutError(target, operation string, cause error) *AnalysisError {
	return New(Timeout, target, operation, "operation timed out", cause)
}

// NewParseError creates a parse error.
func NewParseError(target, operation string, cause error) *AnalysisError {
	return New(Parse, target, operation, "parsing failed", cause)
}

// NewBrowserError creates a browser error.
func NewBrowserError(target, operation string, cause error) *AnalysisError {
	return New(Browser, target, operation, "browser operation failed", cause)
}

// NewSectionError records a recovered panic in one report section.
func NewSectionError(target, section string, recovered interface{}) *AnalysisError {
	err := New(Section, target, section, fmt.Sprint(recovered), nil)
	if cause, ok := recovered.(error); ok {
		err.Cause = cause
	}
	return err
}

// NewTransportError creates a messaging transport error.
func NewTransportError(operation string, cause error) *AnalysisError {
	return New(Transport, "", operation, "transport failure", cause)
}

// NewCircuitOpenError reports a load refused because host's circuit is open.
func NewCircuitOpenError(target, host string) *AnalysisError {
	err := New(Network, target, "circuit_open", "too many recent failures for "+host, nil)
	err.Retryable = false
	return err
}

// NewCancelledError creates a cancelled error.
func NewCancelledError(target, operation string) *AnalysisError {
	return New(Cancelled, target, operation, "operation cancelled", nil)
}

// Categorize determines the error type from a generic error.
func Categorize(err error, target string) *AnalysisError {
	if err == nil {
		return nil
	}

	var analysisErr *AnalysisError
	if errors.As(err, &analysisErr) {
		return analysisErr
	}

	if errors.Is(err, context.Canceled) {
		return NewCancelledError(target, "request")
	}
	if isTimeout(err) {
		return NewTimeoutError(target, "request", err)
	}
	if isNetworkError(err) {
		return NewNetworkError(target, "request", err)
	}

	return New(Unknown, target, "request", err.Error(), err)
}

// CategorizeHTTPStatus returns a Fetch error for status codes >= 400.
func CategorizeHTTPStatus(statusCode int, target string) *AnalysisError {
	if statusCode < 400 {
		return nil
	}
	return NewFetchError(target, statusCode)
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	errStr := err.Error()
	return strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "deadline exceeded")
}

func isNetworkError(err error) bool {
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}

	if errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EHOSTUNREACH) ||
		errors.Is(err, syscall.ENETUNREACH) {
		return true
	}

	errStr := err.Error()
	return strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "connection reset") ||
		strings.Contains(errStr, "no such host") ||
		strings.Contains(errStr, "dial tcp")
}

// IsRetryable checks if an error should be retried.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var analysisErr *AnalysisError
	if errors.As(err, &analysisErr) {
		return analysisErr.Retryable
	}

	return isTimeout(err) || isNetworkError(err)
}

// GetErrorType extracts the error type from an error.
func GetErrorType(err error) ErrorType {
	var analysisErr *AnalysisError
	if errors.As(err, &analysisErr) {
		return analysisErr.Type
	}
	return Unknown
}

// GetStatusCode extracts the HTTP status code from an error.
func GetStatusCode(err error) int {
	var analysisErr *AnalysisError
	if errors.As(err, &analysisErr) {
		return analysisErr.StatusCode
	}
	return 0
}
