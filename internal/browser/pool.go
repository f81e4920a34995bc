package browser

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrPoolClosed is returned by Snapshot after Close.
var ErrPoolClosed = errors.New("browser pool is closed")

// launchFunc starts one browser; tests replace it.
type launchFunc func(Config) (snapshotter, error)

// snapshotter is the part of *Browser the pool depends on.
type snapshotter interface {
	Snapshot(ctx context.Context, url string, headers map[string]string) (*Snapshot, error)
	NeedsRecycle() bool
	PageCount() int
	Close() error
}

func launch(config Config) (snapshotter, error) {
	return New(config)
}

// Pool hands out browsers to concurrent snapshots. Each slot is held by one
// snapshot at a time. Browsers are launched on first use and replaced once
// they have served RecycleAfter pages.
type Pool struct {
	config Config
	launch launchFunc

	// free holds the indexes of idle slots.
	free chan int

	mu       sync.Mutex
	browsers []snapshotter
	closed   bool
}

// NewPool creates a browser pool. No browser is started until the first
// snapshot.
func NewPool(config Config) *Pool {
	if config.PoolSize < 1 {
		config.PoolSize = 1
	}

	p := &Pool{
		config:   config,
		launch:   launch,
		free:     make(chan int, config.PoolSize),
		browsers: make([]snapshotter, config.PoolSize),
	}
	for i := 0; i < config.PoolSize; i++ {
		p.free <- i
	}
	return p
}

// Snapshot takes an idle slot, snapshots url with its browser and gives the
// slot back.
func (p *Pool) Snapshot(ctx context.Context, url string, headers map[string]string) (*Snapshot, error) {
	var slot int
	select {
	case slot = <-p.free:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	defer func() { p.free <- slot }()

	b, err := p.browserFor(slot)
	if err != nil {
		return nil, err
	}
	return b.Snapshot(ctx, url, headers)
}

// browserFor returns the browser in slot, which the caller owns, launching a
// fresh one when the slot is empty or its browser is due for recycling.
func (p *Pool) browserFor(slot int) (snapshotter, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrPoolClosed
	}
	b := p.browsers[slot]
	if b != nil && b.NeedsRecycle() {
		p.browsers[slot] = nil
		b.Close()
		b = nil
	}
	p.mu.Unlock()

	if b != nil {
		return b, nil
	}

	b, err := p.launch(p.config)
	if err != nil {
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		b.Close()
		return nil, ErrPoolClosed
	}
	p.browsers[slot] = b
	return b, nil
}

// Close closes all launched browsers.
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true

	var errs []error
	for i, b := range p.browsers {
		if b == nil {
			continue
		}
		if err := b.Close(); err != nil {
			errs = append(errs, err)
		}
		p.browsers[i] = nil
	}
	return errors.Join(errs...)
}

// PoolStats describes pool usage.
type PoolStats struct {
	Size       int `json:"size"`
	Launched   int `json:"launched"`
	Available  int `json:"available"`
	TotalPages int `json:"total_pages"`
}

// Stats returns pool statistics.
func (p *Pool) Stats() PoolStats {
	p.mu.Lock()
	defer p.mu.Unlock()

	stats := PoolStats{Size: p.config.PoolSize, Available: len(p.free)}
	for _, b := range p.browsers {
		if b != nil {
			stats.Launched++
			stats.TotalPages += b.PageCount()
		}
	}
	return stats
}
