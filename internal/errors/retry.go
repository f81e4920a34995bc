package errors

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"time"
)

// RetryConfig configures how page loads are retried.
type RetryConfig struct {
	MaxRetries   int           // retries after the first attempt
	InitialDelay time.Duration // wait before the first retry
	MaxDelay     time.Duration // backoff ceiling
	Multiplier   float64       // backoff growth per retry
	Jitter       float64       // +/- fraction applied to each wait

	// OnRetry is called before each retry with the attempt that failed.
	OnRetry func(attempt int, err error)
}

// DefaultRetryConfig returns the defaults for loading a single page: two
// quick retries, since a user is usually waiting on the report.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:   2,
		InitialDelay: 250 * time.Millisecond,
		MaxDelay:     5 * time.Second,
		Multiplier:   2.0,
		Jitter:       0.2,
	}
}

// Retrier retries operations that fail with retryable errors, backing off
// exponentially between attempts. Whether an error is retryable is decided
// by IsRetryable.
type Retrier struct {
	config RetryConfig

	mu  sync.Mutex
	rng *rand.Rand
}

// NewRetrier creates a retrier.
func NewRetrier(config RetryConfig) *Retrier {
	if config.Multiplier < 1 {
		config.Multiplier = 1
	}
	return &Retrier{
		config: config,
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// RetryFunc is one attempt of a retried operation.
type RetryFunc func(ctx context.Context) error

// RetryResult describes how a retried operation ended.
type RetryResult struct {
	Attempts  int
	LastError error
	Duration  time.Duration
	Success   bool
}

// Do runs fn until it succeeds, fails with a non-retryable error, or the
// retry budget is spent. A done ctx ends the loop with a Timeout error when
// its deadline passed and a Cancelled error otherwise.
func (r *Retrier) Do(ctx context.Context, operation, target string, fn RetryFunc) *RetryResult {
	start := time.Now()
	res := &RetryResult{}
	done := func(err error) *RetryResult {
		res.LastError = err
		res.Success = err == nil
		res.Duration = time.Since(start)
		return res
	}

	for {
		res.Attempts++
		err := fn(ctx)
		switch {
		case err == nil:
			return done(nil)
		case ctx.Err() != nil:
			return done(contextError(ctx, target, operation))
		case res.Attempts > r.config.MaxRetries || !IsRetryable(err):
			return done(err)
		}

		if r.config.OnRetry != nil {
			r.config.OnRetry(res.Attempts, err)
		}

		timer := time.NewTimer(r.backoff(res.Attempts))
		select {
		case <-ctx.Done():
			timer.Stop()
			return done(contextError(ctx, target, operation))
		case <-timer.C:
		}
	}
}

func contextError(ctx context.Context, target, operation string) *AnalysisError {
	if ctx.Err() == context.DeadlineExceeded {
		return NewTimeoutError(target, operation, ctx.Err())
	}
	return NewCancelledError(target, operation)
}

// backoff returns the jittered wait after the given failed attempt.
func (r *Retrier) backoff(attempt int) time.Duration {
	d := float64(r.config.InitialDelay) * math.Pow(r.config.Multiplier, float64(attempt-1))
	if r.config.MaxDelay > 0 && d > float64(r.config.MaxDelay) {
		d = float64(r.config.MaxDelay)
	}
	if r.config.Jitter > 0 {
		r.mu.Lock()
		d += d * r.config.Jitter * (2*r.rng.Float64() - 1)
		r.mu.Unlock()
	}
	return time.Duration(d)
}

// DoWithResult is Do for operations that produce a value.
func DoWithResult[T any](ctx context.Context, r *Retrier, operation, target string, fn func(ctx context.Context) (T, error)) (T, *RetryResult) {
	var value T
	res := r.Do(ctx, operation, target, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err == nil {
			value = v
		}
		return err
	})
	return value, res
}
