package source

import (
	"context"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/PentesterFlow/pagescope/internal/browser"
	"github.com/PentesterFlow/pagescope/internal/dom"
	apperrors "github.com/PentesterFlow/pagescope/internal/errors"
	"github.com/PentesterFlow/pagescope/internal/logger"
	"github.com/PentesterFlow/pagescope/internal/metrics"
	"github.com/PentesterFlow/pagescope/internal/ratelimit"
)

// snapshotPool is satisfied by *browser.Pool.
type snapshotPool interface {
	Snapshot(ctx context.Context, url string, headers map[string]string) (*browser.Snapshot, error)
	Close() error
}

// BrowserSource renders pages in headless Chrome, so documents carry layout
// and the resource timing entries observed while loading.
type BrowserSource struct {
	pool    snapshotPool
	headers map[string]string
	limiter *ratelimit.Limiter
	log     *logger.Logger
	metrics *metrics.Collector
}

// NewBrowserSource creates a browser source over a lazily launched pool.
func NewBrowserSource(config browser.Config, headers map[string]string, limiter *ratelimit.Limiter, log *logger.Logger, m *metrics.Collector) *BrowserSource {
	if log == nil {
		log = logger.Nop()
	}
	if m == nil {
		m = metrics.New()
	}
	return &BrowserSource{
		pool:    browser.NewPool(config),
		headers: headers,
		limiter: limiter,
		log:     log.WithSource(string(KindBrowser)),
		metrics: m,
	}
}

// Kind implements Source.
func (s *BrowserSource) Kind() Kind {
	return KindBrowser
}

// Load renders target and builds a document from the snapshot.
func (s *BrowserSource) Load(ctx context.Context, target string) (*dom.Document, error) {
	if s.limiter != nil {
		if err := s.limiter.WaitURL(ctx, target); err != nil {
			return nil, apperrors.NewCancelledError(target, "rate_limit")
		}
	}

	snap, err := s.pool.Snapshot(ctx, target, s.headers)
	if err != nil {
		s.metrics.RecordFetchError(apperrors.GetErrorType(err).String())
		return nil, apperrors.Categorize(err, target)
	}

	doc, err := s.document(snap)
	if err != nil {
		return nil, err
	}

	s.metrics.RecordFetch(int64(len(snap.HTML)))
	s.log.FetchEvent(string(KindBrowser), target, 0, int64(len(snap.HTML)), snap.Duration)
	return doc, nil
}

// document reparses the serialized markup. Layout is attached only when the
// reparsed tree has exactly one element per captured rect; otherwise boxes
// would land on the wrong elements.
func (s *BrowserSource) document(snap *browser.Snapshot) (*dom.Document, error) {
	gq, err := goquery.NewDocumentFromReader(strings.NewReader(snap.HTML))
	if err != nil {
		return nil, apperrors.NewParseError(snap.URL, "parse", err)
	}

	opts := []dom.Option{
		dom.WithTitle(snap.Title),
		dom.WithResources(snap.Resources),
	}
	if n := gq.Find("*").Length(); n == len(snap.Layout) {
		opts = append(opts, dom.WithLayout(snap.Layout))
	} else {
		s.log.WithURL(snap.URL).Debugf("Dropping layout: %d rects for %d elements", len(snap.Layout), n)
	}

	doc, err := dom.NewDocument(snap.FinalURL, gq, opts...)
	if err != nil {
		return nil, apperrors.NewParseError(snap.URL, "parse", err)
	}
	return doc, nil
}

// Close shuts down every launched browser.
func (s *BrowserSource) Close() error {
	return s.pool.Close()
}
