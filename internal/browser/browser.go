// Package browser renders pages in headless Chrome via Rod and snapshots
// what the analyzer needs: serialized markup, element layout and resource
// timing entries.
package browser

import (
	"context"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/ysmood/gson"

	"github.com/PentesterFlow/pagescope/internal/dom"
	apperrors "github.com/PentesterFlow/pagescope/internal/errors"
)

// Config defines browser configuration.
type Config struct {
	PoolSize          int           `yaml:"pool_size" json:"pool_size"`
	Headless          bool          `yaml:"headless" json:"headless"`
	Timeout           time.Duration `yaml:"timeout" json:"timeout"`
	UserAgent         string        `yaml:"user_agent" json:"user_agent"`
	ViewportWidth     int           `yaml:"viewport_width" json:"viewport_width"`
	ViewportHeight    int           `yaml:"viewport_height" json:"viewport_height"`
	RecycleAfter      int           `yaml:"recycle_after" json:"recycle_after"`
	IgnoreHTTPSErrors bool          `yaml:"ignore_https_errors" json:"ignore_https_errors"`
	// SettleTime bounds the wait for in-flight XHR/fetch after load.
	SettleTime time.Duration `yaml:"settle_time" json:"settle_time"`
}

// DefaultConfig returns default browser configuration.
func DefaultConfig() Config {
	return Config{
		PoolSize:          2,
		Headless:          true,
		Timeout:           30 * time.Second,
		UserAgent:         "pagescope/1.0",
		ViewportWidth:     1920,
		ViewportHeight:    1080,
		RecycleAfter:      50,
		IgnoreHTTPSErrors: true,
		SettleTime:        2 * time.Second,
	}
}

// Browser wraps a Rod browser instance.
type Browser struct {
	browser   *rod.Browser
	config    Config
	mu        sync.Mutex
	pageCount int
}

// Snapshot is a rendered page captured at one instant.
type Snapshot struct {
	URL       string
	FinalURL  string
	HTML      string
	Title     string
	Layout    dom.Layout
	Resources []dom.Resource
	Duration  time.Duration
}

// snapshotJS collects viewport rects for every element in document order
// together with the scroll offsets and resource timing entries.
const snapshotJS = `() => {
	const rects = Array.from(document.querySelectorAll('*')).map(el => {
		const r = el.getBoundingClientRect();
		return [r.top, r.left, r.width, r.height];
	});
	const resources = performance.getEntriesByType('resource').map(e => ({
		name: e.name,
		initiatorType: e.initiatorType,
	}));
	return {
		title: document.title,
		scrollX: window.scrollX,
		scrollY: window.scrollY,
		rects: rects,
		resources: resources,
	};
}`

// pendingJS reports whether scripts still have network work in flight.
const pendingJS = `() => {
	if (window.jQuery && jQuery.active > 0) return true;
	const entries = performance.getEntriesByType('resource');
	return entries.some(e => e.responseEnd === 0);
}`

// New launches and connects a browser.
func New(config Config) (*Browser, error) {
	l := launcher.New()

	if config.Headless {
		l = l.Headless(true)
	}

	if config.IgnoreHTTPSErrors {
		l = l.Set("ignore-certificate-errors", "true")
	}

	url, err := l.Launch()
	if err != nil {
		return nil, apperrors.NewBrowserError("", "launch", err)
	}

	browser := rod.New().ControlURL(url)
	if err := browser.Connect(); err != nil {
		return nil, apperrors.NewBrowserError("", "connect", err)
	}

	if config.Timeout > 0 {
		browser = browser.Timeout(config.Timeout)
	}

	return &Browser{
		browser: browser,
		config:  config,
	}, nil
}

// Snapshot navigates to url, waits for the page to settle and captures it.
func (b *Browser) Snapshot(ctx context.Context, url string, headers map[string]string) (*Snapshot, error) {
	b.mu.Lock()
	b.pageCount++
	b.mu.Unlock()

	start := time.Now()

	page, err := b.browser.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		return nil, apperrors.NewBrowserError(url, "create_page", err)
	}
	defer page.Close()

	page = page.Context(ctx)

	// Viewport and user agent are best effort.
	_ = page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:  b.config.ViewportWidth,
		Height: b.config.ViewportHeight,
	})

	if b.config.UserAgent != "" {
		_ = proto.NetworkSetUserAgentOverride{
			UserAgent: b.config.UserAgent,
		}.Call(page)
	}

	if len(headers) > 0 {
		networkHeaders := make(proto.NetworkHeaders)
		for k, v := range headers {
			networkHeaders[k] = gson.New(v)
		}
		_ = proto.NetworkSetExtraHTTPHeaders{Headers: networkHeaders}.Call(page)
	}

	if err := page.Navigate(url); err != nil {
		return nil, b.pageError(ctx, url, "navigate", err)
	}
	if err := page.WaitLoad(); err != nil {
		return nil, b.pageError(ctx, url, "wait_load", err)
	}
	b.settle(ctx, page)

	snap := &Snapshot{URL: url, FinalURL: url}
	if info, err := page.Info(); err == nil && info != nil {
		snap.FinalURL = info.URL
	}

	snap.HTML, err = page.HTML()
	if err != nil {
		return nil, b.pageError(ctx, url, "html", err)
	}

	res, err := page.Eval(snapshotJS)
	if err != nil {
		return nil, b.pageError(ctx, url, "snapshot", err)
	}
	snap.Title = res.Value.Get("title").Str()
	snap.Layout = decodeLayout(res.Value)
	snap.Resources = decodeResources(res.Value.Get("resources"))

	snap.Duration = time.Since(start)
	return snap, nil
}

// settle polls for in-flight requests until none remain or SettleTime passes.
func (b *Browser) settle(ctx context.Context, page *rod.Page) {
	if b.config.SettleTime <= 0 {
		return
	}

	deadline := time.Now().Add(b.config.SettleTime)
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for time.Now().Before(deadline) {
		res, err := page.Eval(pendingJS)
		if err != nil || !res.Value.Bool() {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (b *Browser) pageError(ctx context.Context, url, op string, err error) error {
	if ctx.Err() != nil {
		return apperrors.Categorize(ctx.Err(), url)
	}
	return apperrors.NewBrowserError(url, op, err)
}

// decodeLayout converts the viewport rects in v to page coordinates. A
// malformed entry becomes a zero box so indices stay aligned with document
// order.
func decodeLayout(v gson.JSON) dom.Layout {
	scrollX := v.Get("scrollX").Num()
	scrollY := v.Get("scrollY").Num()

	rects := v.Get("rects").Arr()
	layout := make(dom.Layout, 0, len(rects))
	for _, item := range rects {
		r := item.Arr()
		if len(r) < 4 {
			layout = append(layout, dom.Rect{})
			continue
		}
		layout = append(layout, dom.PageRect(dom.ViewportRect{
			Top:    r[0].Num(),
			Left:   r[1].Num(),
			Width:  r[2].Num(),
			Height: r[3].Num(),
		}, scrollX, scrollY))
	}
	return layout
}

func decodeResources(v gson.JSON) []dom.Resource {
	entries := v.Arr()
	resources := make([]dom.Resource, 0, len(entries))
	for _, e := range entries {
		name := e.Get("name").Str()
		if name == "" {
			continue
		}
		resources = append(resources, dom.Resource{
			Name:          name,
			InitiatorType: e.Get("initiatorType").Str(),
		})
	}
	return resources
}

// Close closes the browser.
func (b *Browser) Close() error {
	return b.browser.Close()
}

// PageCount returns the number of pages visited.
func (b *Browser) PageCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.pageCount
}

// NeedsRecycle checks if the browser needs recycling.
func (b *Browser) NeedsRecycle() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.config.RecycleAfter > 0 && b.pageCount >= b.config.RecycleAfter
}
