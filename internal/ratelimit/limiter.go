// Package ratelimit throttles document fetches when many targets are analyzed
// in one run.
package ratelimit

import (
	"context"
	"net/url"
	"strings"
	"sync"

	"golang.org/x/time/rate"
)

// Limiter applies a global rate and an independent per-host rate.
type Limiter struct {
	mu           sync.Mutex
	global       *rate.Limiter
	perHost      map[string]*rate.Limiter
	defaultRate  rate.Limit
	defaultBurst int
}

// NewLimiter creates a limiter allowing requestsPerSecond with the given
// burst. A non-positive rate disables limiting.
func NewLimiter(requestsPerSecond float64, burst int) *Limiter {
	limit := rate.Limit(requestsPerSecond)
	if requestsPerSecond <= 0 {
		limit = rate.Inf
	}
	if burst < 1 {
		burst = 1
	}
	return &Limiter{
		global:       rate.NewLimiter(limit, burst),
		perHost:      make(map[string]*rate.Limiter),
		defaultRate:  limit,
		defaultBurst: burst,
	}
}

// Wait blocks until the global limiter allows a request.
func (l *Limiter) Wait(ctx context.Context) error {
	return l.global.Wait(ctx)
}

// WaitURL blocks until both the global and the host limiter allow a request
// to rawURL. Targets without a host (local files) only pass the global gate.
func (l *Limiter) WaitURL(ctx context.Context, rawURL string) error {
	if err := l.global.Wait(ctx); err != nil {
		return err
	}
	host := hostOf(rawURL)
	if host == "" {
		return nil
	}
	return l.hostLimiter(host).Wait(ctx)
}

// Allow reports whether a request to rawURL may proceed now.
func (l *Limiter) Allow(rawURL string) bool {
	if !l.global.Allow() {
		return false
	}
	host := hostOf(rawURL)
	if host == "" {
		return true
	}
	return l.hostLimiter(host).Allow()
}

// SetHostRate overrides the rate for one host.
func (l *Limiter) SetHostRate(host string, requestsPerSecond float64, burst int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.perHost[strings.ToLower(host)] = rate.NewLimiter(rate.Limit(requestsPerSecond), burst)
}

func (l *Limiter) hostLimiter(host string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	hl, ok := l.perHost[host]
	if !ok {
		hl = rate.NewLimiter(l.defaultRate, l.defaultBurst)
		l.perHost[host] = hl
	}
	return hl
}

// Stats returns rate limiter statistics.
func (l *Limiter) Stats() LimiterStats {
	l.mu.Lock()
	defer l.mu.Unlock()

	return LimiterStats{
		HostCount:    len(l.perHost),
		DefaultRate:  float64(l.defaultRate),
		DefaultBurst: l.defaultBurst,
	}
}

// LimiterStats contains rate limiter statistics.
type LimiterStats struct {
	HostCount    int     `json:"host_count"`
	DefaultRate  float64 `json:"default_rate"`
	DefaultBurst int     `json:"default_burst"`
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}
