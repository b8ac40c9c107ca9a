// Package resilience retries transient failures, trips per-host circuits and
// sets failed items aside for replay.
package resilience

import (
	"context"
	"math"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"
)

// Backoff controls how a failing fetch is retried: exponential delay with
// jitter, stopping early on errors that are not retryable.
type Backoff struct {
	// Attempts is the total number of tries, the first included.
	Attempts int
	Initial  time.Duration
	Max      time.Duration
	// Multiplier scales the delay after each failed attempt.
	Multiplier float64
	// Jitter randomizes each delay by up to ±Jitter of its value.
	Jitter float64

	// Retryable overrides IsRetryable when set.
	Retryable func(err error) bool
	// OnRetry runs before each sleep.
	OnRetry func(attempt int, err error)
}

// DefaultBackoff suits polite scraping of retail pages.
func DefaultBackoff() Backoff {
	return Backoff{
		Attempts:   4,
		Initial:    time.Second,
		Max:        20 * time.Second,
		Multiplier: 2,
		Jitter:     0.25,
	}
}

// WithRetries returns the default backoff allowing maxRetries retries after
// the first attempt. Zero means a single attempt.
func WithRetries(maxRetries int) Backoff {
	b := DefaultBackoff()
	if maxRetries < 0 {
		maxRetries = 0
	}
	b.Attempts = maxRetries + 1
	return b
}

func (b Backoff) normalized() Backoff {
	if b.Attempts <= 0 {
		b.Attempts = 1
	}
	if b.Initial <= 0 {
		b.Initial = time.Second
	}
	if b.Max < b.Initial {
		b.Max = b.Initial
	}
	if b.Multiplier < 1 {
		b.Multiplier = 1
	}
	if b.Jitter < 0 {
		b.Jitter = 0
	}
	if b.Retryable == nil {
		b.Retryable = IsRetryable
	}
	return b
}

// Delay is the pause after the given zero-based failed attempt.
func (b Backoff) Delay(attempt int) time.Duration {
	b = b.normalized()
	d := float64(b.Initial) * math.Pow(b.Multiplier, float64(attempt))
	d = math.Min(d, float64(b.Max))
	if b.Jitter > 0 {
		d += (rand.Float64()*2 - 1) * d * b.Jitter
	}
	return time.Duration(math.Max(d, 0))
}

// Retry calls fn until it succeeds, returns a non-retryable error, the
// attempts run out, or ctx is done. The last error is returned as is.
func Retry[T any](ctx context.Context, b Backoff, fn func(ctx context.Context) (T, error)) (T, error) {
	b = b.normalized()
	var zero T
	for attempt := 0; ; attempt++ {
		v, err := fn(ctx)
		if err == nil {
			return v, nil
		}
		if ctx.Err() != nil || !b.Retryable(err) || attempt+1 >= b.Attempts {
			return zero, err
		}
		if b.OnRetry != nil {
			b.OnRetry(attempt+1, err)
		}

		timer := time.NewTimer(b.Delay(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, err
		case <-timer.C:
		}
	}
}

// Run is Retry for functions without a result.
func Run(ctx context.Context, b Backoff, fn func(ctx context.Context) error) error {
	_, err := Retry(ctx, b, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// LogRetries returns an OnRetry hook that logs the source and target.
func LogRetries(source, target string) func(int, error) {
	return func(attempt int, err error) {
		zap.L().Warn("retrying fetch",
			zap.String("source", source),
			zap.String("url", target),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
	}
}
