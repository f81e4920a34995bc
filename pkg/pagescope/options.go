package pagescope

import (
	"time"

	"github.com/PentesterFlow/pagescope/internal/analyzer"
	"github.com/PentesterFlow/pagescope/internal/logger"
	"github.com/PentesterFlow/pagescope/internal/metrics"
	"github.com/PentesterFlow/pagescope/internal/source"
)

// Option is a functional option for configuring the Engine.
type Option func(*Engine) error

// WithConfig replaces the whole configuration. Options applied after it
// still take effect.
func WithConfig(config *Config) Option {
	return func(e *Engine) error {
		if config != nil {
			e.config = config.Clone()
		}
		return nil
	}
}

// WithSourceKind selects how pages are loaded: auto, http, browser or file.
func WithSourceKind(kind string) Option {
	return func(e *Engine) error {
		k, err := source.ParseKind(kind)
		if err != nil {
			return err
		}
		e.config.Source = string(k)
		return nil
	}
}

// WithSource sets a ready-made source. The engine closes it on Close.
func WithSource(src source.Source) Option {
	return func(e *Engine) error {
		e.source = src
		return nil
	}
}

// WithTimeout sets the per-target budget. Zero disables it.
func WithTimeout(timeout time.Duration) Option {
	return func(e *Engine) error {
		e.config.Timeout = timeout
		return nil
	}
}

// WithWorkers sets the number of targets analyzed concurrently.
func WithWorkers(n int) Option {
	return func(e *Engine) error {
		if n < 1 {
			n = 1
		}
		e.config.Workers = n
		return nil
	}
}

// WithRateLimit sets the rate limiting configuration.
func WithRateLimit(rps float64, burst int) Option {
	return func(e *Engine) error {
		e.config.RateLimit.RequestsPerSecond = rps
		e.config.RateLimit.Burst = burst
		return nil
	}
}

// WithHeaders adds headers sent with every fetch.
func WithHeaders(headers map[string]string) Option {
	return func(e *Engine) error {
		if e.config.HTTP.Headers == nil {
			e.config.HTTP.Headers = make(map[string]string)
		}
		for k, v := range headers {
			e.config.HTTP.Headers[k] = v
		}
		return nil
	}
}

// WithUserAgent sets the user agent for both remote sources.
func WithUserAgent(ua string) Option {
	return func(e *Engine) error {
		e.config.HTTP.UserAgent = ua
		e.config.Browser.UserAgent = ua
		return nil
	}
}

// WithBaseURL sets the document URL used for local files.
func WithBaseURL(url string) Option {
	return func(e *Engine) error {
		e.config.BaseURL = url
		return nil
	}
}

// WithHeadless sets headless browser mode.
func WithHeadless(headless bool) Option {
	return func(e *Engine) error {
		e.config.Browser.Headless = headless
		return nil
	}
}

// WithAnalysis sets the analyzer thresholds.
func WithAnalysis(cfg analyzer.Config) Option {
	return func(e *Engine) error {
		e.config.Analysis = cfg
		return nil
	}
}

// WithHistory enables the report history at path. An empty path keeps the
// configured one.
func WithHistory(path string) Option {
	return func(e *Engine) error {
		e.config.History.Enabled = true
		if path != "" {
			e.config.History.Path = path
		}
		return nil
	}
}

// WithLogger sets a custom logger.
func WithLogger(l *logger.Logger) Option {
	return func(e *Engine) error {
		e.log = l
		return nil
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(m *metrics.Collector) Option {
	return func(e *Engine) error {
		e.metrics = m
		return nil
	}
}

// WithVerbose enables verbose logging.
func WithVerbose(verbose bool) Option {
	return func(e *Engine) error {
		e.config.Verbose = verbose
		return nil
	}
}

// WithDebug enables debug mode.
func WithDebug(debug bool) Option {
	return func(e *Engine) error {
		e.config.Debug = debug
		return nil
	}
}
