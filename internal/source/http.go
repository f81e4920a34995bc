package source

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PentesterFlow/pagescope/internal/dom"
	apperrors "github.com/PentesterFlow/pagescope/internal/errors"
	"github.com/PentesterFlow/pagescope/internal/logger"
	"github.com/PentesterFlow/pagescope/internal/metrics"
	"github.com/PentesterFlow/pagescope/internal/ratelimit"
)

// HTTPConfig configures the static HTTP source.
type HTTPConfig struct {
	Timeout             time.Duration           `yaml:"timeout" json:"timeout"`
	MaxIdleConns        int                     `yaml:"max_idle_conns" json:"max_idle_conns"`
	MaxIdleConnsPerHost int                     `yaml:"max_idle_conns_per_host" json:"max_idle_conns_per_host"`
	UserAgent           string                  `yaml:"user_agent" json:"user_agent"`
	Headers             map[string]string       `yaml:"headers" json:"headers"`
	SkipTLSVerify       bool                    `yaml:"skip_tls_verify" json:"skip_tls_verify"`
	MaxRetries          int                     `yaml:"max_retries" json:"max_retries"`
	RetryDelay          time.Duration           `yaml:"retry_delay" json:"retry_delay"`
	MaxBodySize         int64                   `yaml:"max_body_size" json:"max_body_size"`
	Breaker             apperrors.BreakerConfig `yaml:"breaker" json:"breaker"`
}

// DefaultHTTPConfig returns defaults for fetching single pages.
func DefaultHTTPConfig() HTTPConfig {
	return HTTPConfig{
		Timeout:             15 * time.Second,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		UserAgent:           "Mozilla/5.0 (compatible; pagescope/1.0)",
		SkipTLSVerify:       false,
		MaxRetries:          2,
		RetryDelay:          250 * time.Millisecond,
		MaxBodySize:         5 * 1024 * 1024,
		Breaker:             apperrors.DefaultBreakerConfig(),
	}
}

// HTTPSource fetches static HTML over HTTP. Pages are not rendered, so the
// resulting documents carry no layout or resource timing.
type HTTPSource struct {
	client      *http.Client
	userAgent   string
	headers     map[string]string
	maxBodySize int64
	retrier     *apperrors.Retrier
	breakers    *apperrors.HostBreakers
	limiter     *ratelimit.Limiter
	log         *logger.Logger
	metrics     *metrics.Collector
}

// NewHTTPSource creates an HTTP source. limiter may be nil.
func NewHTTPSource(config HTTPConfig, limiter *ratelimit.Limiter, log *logger.Logger, m *metrics.Collector) *HTTPSource {
	if log == nil {
		log = logger.Nop()
	}
	if m == nil {
		m = metrics.New()
	}
	if config.MaxBodySize <= 0 {
		config.MaxBodySize = DefaultHTTPConfig().MaxBodySize
	}

	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   5 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          config.MaxIdleConns,
		MaxIdleConnsPerHost:   config.MaxIdleConnsPerHost,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		ForceAttemptHTTP2:     true,
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: config.SkipTLSVerify,
		},
	}

	s := &HTTPSource{
		client: &http.Client{
			Transport: transport,
			Timeout:   config.Timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 10 {
					return http.ErrUseLastResponse
				}
				return nil
			},
		},
		userAgent:   config.UserAgent,
		headers:     config.Headers,
		maxBodySize: config.MaxBodySize,
		limiter:     limiter,
		log:         log.WithSource(string(KindHTTP)),
		metrics:     m,
	}

	retry := apperrors.DefaultRetryConfig()
	retry.MaxRetries = config.MaxRetries
	if config.RetryDelay > 0 {
		retry.InitialDelay = config.RetryDelay
	}
	retry.OnRetry = func(attempt int, err error) {
		s.metrics.RecordRetry()
		s.log.WithError(err).Debugf("Retrying fetch (attempt %d)", attempt)
	}
	s.retrier = apperrors.NewRetrier(retry)

	s.breakers = apperrors.NewHostBreakers(config.Breaker)
	s.breakers.OnStateChange(func(host string, from, to apperrors.CircuitState) {
		s.log.WithField("host", host).Infof("Circuit %s -> %s", from, to)
	})

	return s
}

// Kind implements Source.
func (s *HTTPSource) Kind() Kind {
	return KindHTTP
}

// Load fetches target, retrying transient failures. Hosts that keep failing
// are refused until their circuit cools down.
func (s *HTTPSource) Load(ctx context.Context, target string) (*dom.Document, error) {
	host := hostOf(target)
	if err := s.breakers.Allow(host, target); err != nil {
		s.metrics.RecordFetchError(apperrors.GetErrorType(err).String())
		return nil, err
	}

	doc, res := apperrors.DoWithResult(ctx, s.retrier, "fetch", target, func(ctx context.Context) (*dom.Document, error) {
		return s.fetch(ctx, target)
	})
	if !res.Success {
		// A spent caller budget says nothing about the host.
		if ctx.Err() == nil {
			s.breakers.Record(host, res.LastError)
		}
		s.metrics.RecordFetchError(apperrors.GetErrorType(res.LastError).String())
		return nil, res.LastError
	}
	s.breakers.Record(host, nil)
	return doc, nil
}

func hostOf(target string) string {
	u, err := url.Parse(target)
	if err != nil || u.Host == "" {
		return target
	}
	return u.Host
}

func (s *HTTPSource) fetch(ctx context.Context, target string) (*dom.Document, error) {
	if s.limiter != nil {
		if err := s.limiter.WaitURL(ctx, target); err != nil {
			if ctx.Err() != nil {
				return nil, apperrors.NewCancelledError(target, "rate_limit")
			}
			return nil, apperrors.Categorize(err, target)
		}
	}

	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, apperrors.NewParseError(target, "request_creation", err)
	}

	req.Header.Set("User-Agent", s.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.5")

	for k, v := range s.headers {
		req.Header.Set(k, v)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, apperrors.Categorize(err, target)
	}
	defer resp.Body.Close()

	if httpErr := apperrors.CategorizeHTTPStatus(resp.StatusCode, target); httpErr != nil {
		s.log.FetchEvent(string(KindHTTP), target, resp.StatusCode, 0, time.Since(start))
		return nil, httpErr
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType != "" && !strings.Contains(strings.ToLower(contentType), "html") {
		return nil, apperrors.NewParseError(target, "content_type",
			fmt.Errorf("unsupported content type %q", contentType))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, s.maxBodySize+1))
	if err != nil {
		return nil, apperrors.NewNetworkError(target, "body_read", err)
	}
	if int64(len(body)) > s.maxBodySize {
		body = body[:s.maxBodySize]
		s.log.WithURL(target).WithField("limit", s.maxBodySize).
			Warn("Document truncated at body size limit, report covers the prefix only")
	}

	doc, err := dom.Parse(resp.Request.URL.String(), bytes.NewReader(body))
	if err != nil {
		return nil, apperrors.NewParseError(target, "parse", err)
	}

	s.metrics.RecordFetch(int64(len(body)))
	s.log.FetchEvent(string(KindHTTP), target, resp.StatusCode, int64(len(body)), time.Since(start))
	return doc, nil
}

// Close releases idle connections.
func (s *HTTPSource) Close() error {
	s.client.CloseIdleConnections()
	return nil
}
