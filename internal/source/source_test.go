package source

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/PentesterFlow/pagescope/internal/browser"
	"github.com/PentesterFlow/pagescope/internal/dom"
	apperrors "github.com/PentesterFlow/pagescope/internal/errors"
	"github.com/PentesterFlow/pagescope/internal/logger"
	"github.com/PentesterFlow/pagescope/internal/metrics"
	"github.com/PentesterFlow/pagescope/internal/ratelimit"
)

const page = `<html><head><title>Shop</title></head><body><a href="/api/items">items</a></body></html>`

func testHTTPConfig() HTTPConfig {
	c := DefaultHTTPConfig()
	c.Timeout = 5 * time.Second
	c.RetryDelay = time.Millisecond
	return c
}

// =============================================================================
// Kind Tests
// =============================================================================

func TestParseKind(t *testing.T) {
	tests := []struct {
		in      string
		want    Kind
		wantErr bool
	}{
		{"", KindAuto, false},
		{"auto", KindAuto, false},
		{"HTTP", KindHTTP, false},
		{" browser ", KindBrowser, false},
		{"file", KindFile, false},
		{"ftp", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseKind(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseKind(%q) error = %v", tt.in, err)
			}
			if got != tt.want {
				t.Errorf("ParseKind(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestIsRemote(t *testing.T) {
	tests := map[string]bool{
		"https://example.com/a": true,
		"http://localhost:8080": true,
		"file:///tmp/a.html":    false,
		"./page.html":           false,
		"-":                     false,
		"https://":              false,
	}
	for target, want := range tests {
		if got := IsRemote(target); got != want {
			t.Errorf("IsRemote(%q) = %v, want %v", target, got, want)
		}
	}
}

// =============================================================================
// HTTP Source Tests
// =============================================================================

func TestHTTPSource_Load(t *testing.T) {
	var gotUA, gotHeader string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		gotHeader = r.Header.Get("X-Scan")
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(page))
	}))
	defer server.Close()

	m := metrics.New()
	cfg := testHTTPConfig()
	cfg.Headers = map[string]string{"X-Scan": "1"}
	s := NewHTTPSource(cfg, nil, nil, m)
	defer s.Close()

	doc, err := s.Load(context.Background(), server.URL+"/shop")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if doc.URL() != server.URL+"/shop" {
		t.Errorf("URL = %s", doc.URL())
	}
	if doc.Title() != "Shop" {
		t.Errorf("Title = %q", doc.Title())
	}
	if got := doc.ResolveURL("/api/items"); got != server.URL+"/api/items" {
		t.Errorf("ResolveURL = %s", got)
	}
	if gotUA != cfg.UserAgent || gotHeader != "1" {
		t.Errorf("headers: UA=%q X-Scan=%q", gotUA, gotHeader)
	}

	snap := m.Snapshot()
	if snap.FetchesTotal != 1 || snap.BytesTotal != int64(len(page)) {
		t.Errorf("fetches = %d, bytes = %d", snap.FetchesTotal, snap.BytesTotal)
	}
}

func TestHTTPSource_FollowsRedirects(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/old", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/new/", http.StatusFound)
	})
	mux.HandleFunc("/new/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(page))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	s := NewHTTPSource(testHTTPConfig(), nil, nil, nil)
	doc, err := s.Load(context.Background(), server.URL+"/old")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if doc.URL() != server.URL+"/new/" {
		t.Errorf("URL = %s, want the final URL", doc.URL())
	}
}

func TestHTTPSource_Errors(t *testing.T) {
	tests := []struct {
		name         string
		status       int
		contentType  string
		wantType     apperrors.ErrorType
		wantAttempts int32
	}{
		{"not found", http.StatusNotFound, "text/html", apperrors.Fetch, 1},
		{"server error retried", http.StatusServiceUnavailable, "text/html", apperrors.Fetch, 3},
		{"json body", http.StatusOK, "application/json", apperrors.Parse, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var attempts int32
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				atomic.AddInt32(&attempts, 1)
				w.Header().Set("Content-Type", tt.contentType)
				w.WriteHeader(tt.status)
				w.Write([]byte(`{}`))
			}))
			defer server.Close()

			m := metrics.New()
			s := NewHTTPSource(testHTTPConfig(), nil, nil, m)
			_, err := s.Load(context.Background(), server.URL)
			if err == nil {
				t.Fatal("Load() should fail")
			}
			if got := apperrors.GetErrorType(err); got != tt.wantType {
				t.Errorf("error type = %v, want %v", got, tt.wantType)
			}
			if got := atomic.LoadInt32(&attempts); got != tt.wantAttempts {
				t.Errorf("attempts = %d, want %d", got, tt.wantAttempts)
			}
			if got := m.Snapshot().RetriesTotal; got != int64(tt.wantAttempts-1) {
				t.Errorf("RetriesTotal = %d, want %d", got, tt.wantAttempts-1)
			}
			if m.Snapshot().FetchErrors != 1 {
				t.Errorf("FetchErrors = %d, want 1", m.Snapshot().FetchErrors)
			}
		})
	}
}

func TestHTTPSource_RetryThenSuccess(t *testing.T) {
	var attempts int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&attempts, 1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(page))
	}))
	defer server.Close()

	s := NewHTTPSource(testHTTPConfig(), nil, nil, nil)
	if _, err := s.Load(context.Background(), server.URL); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if attempts != 2 {
		t.Errorf("attempts = %d, want 2", attempts)
	}
}

func TestHTTPSource_CircuitBreaker(t *testing.T) {
	var attempts int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	config := testHTTPConfig()
	config.MaxRetries = 0
	config.Breaker = apperrors.BreakerConfig{Threshold: 2, Cooldown: time.Hour}
	s := NewHTTPSource(config, nil, nil, nil)

	for i := 0; i < 2; i++ {
		if _, err := s.Load(context.Background(), server.URL); apperrors.GetErrorType(err) != apperrors.Fetch {
			t.Fatalf("load %d: error = %v, want fetch error", i, err)
		}
	}

	_, err := s.Load(context.Background(), server.URL+"/other")
	if err == nil || !strings.Contains(err.Error(), "circuit_open") {
		t.Fatalf("error = %v, want open circuit", err)
	}
	if got := atomic.LoadInt32(&attempts); got != 2 {
		t.Errorf("attempts = %d, want 2 (open circuit must not reach the server)", got)
	}
}

func TestHTTPSource_BodyLimit(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<title>cut</title><p>` + strings.Repeat("x", 4096) + `</p><form></form>`))
	}))
	defer server.Close()

	cfg := testHTTPConfig()
	cfg.MaxBodySize = 1024
	var logs strings.Builder
	log := logger.New(logger.Config{Level: logger.WarnLevel, Output: &logs})
	s := NewHTTPSource(cfg, nil, log, nil)

	doc, err := s.Load(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if doc.Find("form").Length() != 0 {
		t.Error("content past the body limit should be dropped")
	}
	if !strings.Contains(logs.String(), "truncated") || !strings.Contains(logs.String(), `"limit":1024`) {
		t.Errorf("expected a truncation warning, got %q", logs.String())
	}
}

func TestHTTPSource_BodyAtLimit(t *testing.T) {
	body := `<title>fits</title>`
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(body))
	}))
	defer server.Close()

	cfg := testHTTPConfig()
	cfg.MaxBodySize = int64(len(body))
	var logs strings.Builder
	log := logger.New(logger.Config{Level: logger.WarnLevel, Output: &logs})
	s := NewHTTPSource(cfg, nil, log, nil)

	doc, err := s.Load(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if doc.Title() != "fits" {
		t.Errorf("Title() = %q, want fits", doc.Title())
	}
	if logs.Len() != 0 {
		t.Errorf("a body exactly at the limit should not warn, got %q", logs.String())
	}
}

func TestHTTPSource_Cancelled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(page))
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := NewHTTPSource(testHTTPConfig(), ratelimit.NewLimiter(1, 1), nil, nil)
	_, err := s.Load(ctx, server.URL)
	if apperrors.GetErrorType(err) != apperrors.Cancelled {
		t.Errorf("error = %v, want Cancelled", err)
	}
}

func TestHTTPSource_RateLimited(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(page))
	}))
	defer server.Close()

	s := NewHTTPSource(testHTTPConfig(), ratelimit.NewLimiter(20, 1), nil, nil)

	start := time.Now()
	for i := 0; i < 3; i++ {
		if _, err := s.Load(context.Background(), server.URL); err != nil {
			t.Fatal(err)
		}
	}
	if elapsed := time.Since(start); elapsed < 80*time.Millisecond {
		t.Errorf("3 loads at 20 rps took %v, want >= ~100ms", elapsed)
	}
}

// =============================================================================
// File Source Tests
// =============================================================================

func TestFileSource_Load(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "page.html")
	if err := os.WriteFile(path, []byte(page), 0644); err != nil {
		t.Fatal(err)
	}

	s := NewFileSource("")
	doc, err := s.Load(context.Background(), path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !strings.HasPrefix(doc.URL(), "file://") || !strings.HasSuffix(doc.URL(), "/page.html") {
		t.Errorf("URL = %s", doc.URL())
	}
	if doc.Title() != "Shop" {
		t.Errorf("Title = %q", doc.Title())
	}

	// file:// targets resolve to the same file
	doc2, err := s.Load(context.Background(), doc.URL())
	if err != nil {
		t.Fatalf("Load(file URL) error = %v", err)
	}
	if doc2.URL() != doc.URL() {
		t.Errorf("URL = %s, want %s", doc2.URL(), doc.URL())
	}
}

func TestFileSource_BaseURL(t *testing.T) {
	path := filepath.Join(t.TempDir(), "saved.html")
	os.WriteFile(path, []byte(page), 0644)

	s := NewFileSource("https://shop.example.com/catalog/")
	doc, err := s.Load(context.Background(), path)
	if err != nil {
		t.Fatal(err)
	}
	if got := doc.ResolveURL("/api/items"); got != "https://shop.example.com/api/items" {
		t.Errorf("ResolveURL = %s", got)
	}
}

func TestFileSource_Stdin(t *testing.T) {
	s := &FileSource{Stdin: strings.NewReader(page)}
	doc, err := s.Load(context.Background(), StdinTarget)
	if err != nil {
		t.Fatalf("Load(-) error = %v", err)
	}
	if doc.Title() != "Shop" {
		t.Errorf("Title = %q", doc.Title())
	}
}

func TestFileSource_Missing(t *testing.T) {
	s := NewFileSource("")
	_, err := s.Load(context.Background(), filepath.Join(t.TempDir(), "nope.html"))
	if apperrors.GetErrorType(err) != apperrors.Fetch {
		t.Errorf("error = %v, want Fetch", err)
	}
}

// =============================================================================
// Browser Source Tests
// =============================================================================

type fakePool struct {
	snap   *browser.Snapshot
	err    error
	closed bool
}

func (p *fakePool) Snapshot(ctx context.Context, url string, headers map[string]string) (*browser.Snapshot, error) {
	if p.err != nil {
		return nil, p.err
	}
	return p.snap, nil
}

func (p *fakePool) Close() error {
	p.closed = true
	return nil
}

func TestBrowserSource_Load(t *testing.T) {
	// html, head, title, body, div
	layout := dom.Layout{{}, {}, {}, {Width: 1920, Height: 900}, {Top: 40, Left: 8, Width: 600, Height: 400}}
	pool := &fakePool{snap: &browser.Snapshot{
		URL:       "https://example.com/dash",
		FinalURL:  "https://example.com/dash#home",
		HTML:      `<html><head><title>raw</title></head><body><div id="dashboard"></div></body></html>`,
		Title:     "Rendered title",
		Layout:    layout,
		Resources: []dom.Resource{{Name: "https://example.com/api/stats", InitiatorType: "fetch"}},
	}}
	m := metrics.New()
	s := &BrowserSource{pool: pool, log: logger.Nop(), metrics: m}

	doc, err := s.Load(context.Background(), "https://example.com/dash")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if doc.URL() != "https://example.com/dash#home" {
		t.Errorf("URL = %s", doc.URL())
	}
	if doc.Title() != "Rendered title" {
		t.Errorf("Title = %q", doc.Title())
	}
	if len(doc.Resources()) != 1 {
		t.Errorf("Resources = %+v", doc.Resources())
	}
	if got := doc.Rect(doc.Find("#dashboard")); got != layout[4] {
		t.Errorf("Rect = %+v, want %+v", got, layout[4])
	}
	if m.Snapshot().FetchesTotal != 1 {
		t.Error("fetch not recorded")
	}

	s.Close()
	if !pool.closed {
		t.Error("pool not closed")
	}
}

func TestBrowserSource_LayoutMismatchDropped(t *testing.T) {
	pool := &fakePool{snap: &browser.Snapshot{
		URL:      "https://example.com",
		FinalURL: "https://example.com",
		HTML:     `<div id="a"></div>`,
		Layout:   dom.Layout{{Top: 1}, {Top: 2}},
	}}
	s := &BrowserSource{pool: pool, log: logger.Nop(), metrics: metrics.New()}

	doc, err := s.Load(context.Background(), "https://example.com")
	if err != nil {
		t.Fatal(err)
	}
	if got := doc.Rect(doc.Find("#a")); got != (dom.Rect{}) {
		t.Errorf("Rect = %+v, want zero box", got)
	}
}

func TestBrowserSource_Error(t *testing.T) {
	pool := &fakePool{err: apperrors.NewBrowserError("https://example.com", "navigate", errors.New("net::ERR_NAME_NOT_RESOLVED"))}
	m := metrics.New()
	s := &BrowserSource{pool: pool, log: logger.Nop(), metrics: m}

	_, err := s.Load(context.Background(), "https://example.com")
	if apperrors.GetErrorType(err) != apperrors.Browser {
		t.Errorf("error = %v, want Browser", err)
	}
	if m.Snapshot().ErrorCounts["browser"] != 1 {
		t.Errorf("ErrorCounts = %v", m.Snapshot().ErrorCounts)
	}
}

// =============================================================================
// Router Tests
// =============================================================================

type recordingSource struct {
	kind    Kind
	targets []string
}

func (r *recordingSource) Kind() Kind { return r.kind }

func (r *recordingSource) Load(ctx context.Context, target string) (*dom.Document, error) {
	r.targets = append(r.targets, target)
	return dom.ParseString(target, "")
}

func (r *recordingSource) Close() error { return nil }

func TestRouter(t *testing.T) {
	remote := &recordingSource{kind: KindHTTP}
	local := &recordingSource{kind: KindFile}
	r := &Router{Remote: remote, Local: local}

	for _, target := range []string{"https://a.example", "./a.html", "file:///tmp/b.html", "-"} {
		if _, err := r.Load(context.Background(), target); err != nil {
			t.Fatal(err)
		}
	}

	if len(remote.targets) != 1 || len(local.targets) != 3 {
		t.Errorf("remote = %v, local = %v", remote.targets, local.targets)
	}
	if r.Kind() != KindAuto {
		t.Errorf("Kind = %s", r.Kind())
	}
}
