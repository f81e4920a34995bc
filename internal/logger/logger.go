// Package logger provides structured logging for pagescope.
package logger

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Level represents log levels.
type Level = zerolog.Level

// Log levels.
const (
	DebugLevel = zerolog.DebugLevel
	InfoLevel  = zerolog.InfoLevel
	WarnLevel  = zerolog.WarnLevel
	ErrorLevel = zerolog.ErrorLevel
)

// Logger wraps zerolog for structured logging. Derived loggers share the
// output but never the fields of their parent.
type Logger struct {
	zl zerolog.Logger
}

// Config holds logger configuration.
type Config struct {
	Level     Level
	Pretty    bool // console writer instead of JSON lines
	Output    io.Writer
	Component string // "engine", "analyzer", "server", ...
}

// DefaultConfig returns the CLI defaults: info level, console output on
// stderr.
func DefaultConfig() Config {
	return Config{
		Level:  InfoLevel,
		Pretty: true,
		Output: os.Stderr,
	}
}

// LevelFor maps the verbose and debug switches to a level. Without either
// only warnings reach the terminal so that report JSON on stdout stays
// readable.
func LevelFor(verbose, debug bool) Level {
	switch {
	case debug:
		return DebugLevel
	case verbose:
		return InfoLevel
	default:
		return WarnLevel
	}
}

// New creates a logger.
func New(cfg Config) *Logger {
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	if cfg.Pretty {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: "15:04:05"}
	}

	ctx := zerolog.New(out).Level(cfg.Level).With().Timestamp()
	if cfg.Component != "" {
		ctx = ctx.Str("component", cfg.Component)
	}
	return &Logger{zl: ctx.Logger()}
}

// Nop returns a logger that discards everything.
func Nop() *Logger {
	return &Logger{zl: zerolog.Nop()}
}

func (l *Logger) with(fn func(zerolog.Context) zerolog.Context) *Logger {
	return &Logger{zl: fn(l.zl.With()).Logger()}
}

// WithComponent returns a logger tagged with component.
func (l *Logger) WithComponent(component string) *Logger {
	return l.with(func(c zerolog.Context) zerolog.Context { return c.Str("component", component) })
}

// WithField returns a logger with one extra field.
func (l *Logger) WithField(key string, value interface{}) *Logger {
	return l.with(func(c zerolog.Context) zerolog.Context { return c.Interface(key, value) })
}

// WithFields returns a logger with extra fields.
func (l *Logger) WithFields(fields map[string]interface{}) *Logger {
	return l.with(func(c zerolog.Context) zerolog.Context { return c.Fields(fields) })
}

// WithURL returns a logger tagged with the page URL.
func (l *Logger) WithURL(url string) *Logger {
	return l.with(func(c zerolog.Context) zerolog.Context { return c.Str("url", url) })
}

// WithSession returns a logger tagged with a messaging session ID.
func (l *Logger) WithSession(sessionID string) *Logger {
	return l.with(func(c zerolog.Context) zerolog.Context { return c.Str("session_id", sessionID) })
}

// WithSource returns a logger tagged with the document source kind.
func (l *Logger) WithSource(source string) *Logger {
	return l.with(func(c zerolog.Context) zerolog.Context { return c.Str("source", source) })
}

// WithError returns a logger carrying err.
func (l *Logger) WithError(err error) *Logger {
	return l.with(func(c zerolog.Context) zerolog.Context { return c.Err(err) })
}

// WithDuration returns a logger carrying d.
func (l *Logger) WithDuration(d time.Duration) *Logger {
	return l.with(func(c zerolog.Context) zerolog.Context { return c.Dur("duration", d) })
}

func (l *Logger) Debug(msg string)                          { l.zl.Debug().Msg(msg) }
func (l *Logger) Debugf(format string, args ...interface{}) { l.zl.Debug().Msgf(format, args...) }
func (l *Logger) Info(msg string)                           { l.zl.Info().Msg(msg) }
func (l *Logger) Infof(format string, args ...interface{})  { l.zl.Info().Msgf(format, args...) }
func (l *Logger) Warn(msg string)                           { l.zl.Warn().Msg(msg) }
func (l *Logger) Warnf(format string, args ...interface{})  { l.zl.Warn().Msgf(format, args...) }
func (l *Logger) Error(msg string)                          { l.zl.Error().Msg(msg) }
func (l *Logger) Errorf(format string, args ...interface{}) { l.zl.Error().Msgf(format, args...) }

// Event returns a zerolog event at level for callers that need typed fields.
func (l *Logger) Event(level Level) *zerolog.Event {
	return l.zl.WithLevel(level)
}

// AnalysisEvent returns an event carrying the standard fields of a finished
// analysis pass.
func (l *Logger) AnalysisEvent(level Level, url string, elementCount, endpoints int) *zerolog.Event {
	return l.Event(level).
		Str("url", url).
		Int("element_count", elementCount).
		Int("endpoints", endpoints)
}

// FetchEvent logs a document fetch.
func (l *Logger) FetchEvent(source, url string, statusCode int, size int64, duration time.Duration) {
	l.zl.Debug().
		Str("source", source).
		Str("url", url).
		Int("status_code", statusCode).
		Int64("bytes", size).
		Dur("duration", duration).
		Msg("Fetched document")
}

// SectionFailure logs a report section that was degraded to its default.
func (l *Logger) SectionFailure(section, url string, cause interface{}) {
	l.zl.Warn().
		Str("section", section).
		Str("url", url).
		Interface("cause", cause).
		Msg("Section degraded")
}

// MessageEvent logs a handled protocol message. Failed messages are logged at
// warn, the rest at debug.
func (l *Logger) MessageEvent(action, sessionID string, duration time.Duration, err error) {
	event := l.zl.Debug()
	if err != nil {
		event = l.zl.Warn().Err(err)
	}
	event.
		Str("action", action).
		Str("session_id", sessionID).
		Dur("duration", duration).
		Msg("Handled message")
}

// StatsEvent logs a metrics summary, one field per entry.
func (l *Logger) StatsEvent(msg string, stats map[string]interface{}) {
	l.zl.Info().Fields(stats).Msg(msg)
}
