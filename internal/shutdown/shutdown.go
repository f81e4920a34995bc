// Package shutdown coordinates graceful shutdown of long-running commands.
//
// A Handler owns a context that is cancelled when shutdown starts. Cleanup
// callbacks registered with it then run in reverse registration order, so a
// server registered after the engine it serves is stopped before the engine
// is closed.
package shutdown

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/PentesterFlow/pagescope/internal/logger"
)

// Callback is a function called during shutdown.
type Callback func(ctx context.Context) error

type namedCallback struct {
	name string
	fn   Callback
}

// Config holds shutdown configuration.
type Config struct {
	// Timeout bounds all callbacks together.
	Timeout        time.Duration
	Signals        []os.Signal
	Logger         *logger.Logger
	OnShutdownDone func(elapsed time.Duration, errors []error)
}

// DefaultConfig returns default configuration.
func DefaultConfig() Config {
	return Config{
		Timeout: 15 * time.Second,
		Signals: []os.Signal{syscall.SIGINT, syscall.SIGTERM},
	}
}

// Handler runs registered cleanup callbacks once, on a signal or on demand.
type Handler struct {
	timeout time.Duration
	log     *logger.Logger
	onDone  func(elapsed time.Duration, errors []error)

	mu        sync.Mutex
	callbacks []namedCallback

	ctx      context.Context
	cancel   context.CancelFunc
	signals  chan os.Signal
	started  atomic.Bool
	once     sync.Once
	finished chan struct{}
}

// New creates a shutdown handler listening for cfg.Signals.
func New(cfg Config) *Handler {
	def := DefaultConfig()
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if len(cfg.Signals) == 0 {
		cfg.Signals = def.Signals
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.Nop()
	}

	ctx, cancel := context.WithCancel(context.Background())
	h := &Handler{
		timeout:  cfg.Timeout,
		log:      cfg.Logger.WithComponent("shutdown"),
		onDone:   cfg.OnShutdownDone,
		ctx:      ctx,
		cancel:   cancel,
		signals:  make(chan os.Signal, 1),
		finished: make(chan struct{}),
	}
	signal.Notify(h.signals, cfg.Signals...)
	return h
}

// Register adds a named callback.
func (h *Handler) Register(name string, callback Callback) {
	h.mu.Lock()
	h.callbacks = append(h.callbacks, namedCallback{name: name, fn: callback})
	h.mu.Unlock()
}

// RegisterFunc registers a cleanup function that cannot fail.
func (h *Handler) RegisterFunc(name string, fn func()) {
	h.Register(name, func(context.Context) error {
		fn()
		return nil
	})
}

// GracefulServer is anything with an http.Server style Shutdown.
type GracefulServer interface {
	Shutdown(ctx context.Context) error
}

// RegisterServer registers a GracefulServer for shutdown.
func (h *Handler) RegisterServer(name string, server GracefulServer) {
	h.Register(name, server.Shutdown)
}

// Context is cancelled when shutdown begins.
func (h *Handler) Context() context.Context {
	return h.ctx
}

// IsShuttingDown returns whether shutdown has begun.
func (h *Handler) IsShuttingDown() bool {
	return h.started.Load()
}

// Done is closed once every callback has returned or timed out.
func (h *Handler) Done() <-chan struct{} {
	return h.finished
}

// Wait blocks until a signal arrives or ctx ends, then shuts down. It
// returns early if shutdown was started elsewhere.
func (h *Handler) Wait(ctx context.Context) {
	select {
	case sig := <-h.signals:
		h.log.Infof("Received %s, shutting down", sig)
	case <-ctx.Done():
	case <-h.ctx.Done():
		return
	}
	h.Shutdown()
}

// Trigger requests shutdown as if a signal had arrived.
func (h *Handler) Trigger() {
	select {
	case h.signals <- syscall.SIGTERM:
	default:
	}
}

// Shutdown cancels Context and runs the callbacks within the timeout.
// Concurrent and repeated calls wait for the first to finish.
func (h *Handler) Shutdown() {
	h.once.Do(h.run)
}

func (h *Handler) run() {
	h.started.Store(true)
	signal.Stop(h.signals)
	h.cancel()

	start := time.Now()
	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()

	h.mu.Lock()
	callbacks := append([]namedCallback(nil), h.callbacks...)
	h.mu.Unlock()

	var errs []error
	for i := len(callbacks) - 1; i >= 0; i-- {
		cb := callbacks[i]
		if err := runCallback(ctx, cb); err != nil {
			h.log.WithError(err).WithField("callback", cb.name).Warn("Shutdown callback failed")
			errs = append(errs, err)
		}
	}

	elapsed := time.Since(start)
	h.log.WithDuration(elapsed).Debug("Shutdown complete")
	if h.onDone != nil {
		h.onDone(elapsed, errs)
	}
	close(h.finished)
}

// runCallback gives up on cb when ctx ends; cb keeps running in the
// background.
func runCallback(ctx context.Context, cb namedCallback) error {
	result := make(chan error, 1)
	go func() { result <- cb.fn(ctx) }()

	select {
	case err := <-result:
		if err != nil {
			return fmt.Errorf("%s: %w", cb.name, err)
		}
		return nil
	case <-ctx.Done():
		return &TimeoutError{CallbackName: cb.name}
	}
}

// TimeoutError is returned when a callback outlives the shutdown timeout.
type TimeoutError struct {
	CallbackName string
}

func (e *TimeoutError) Error() string {
	return "shutdown callback timed out: " + e.CallbackName
}
