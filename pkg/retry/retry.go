// Package retry runs storage operations a bounded number of times with
// exponential backoff. Permanent errors stop the loop immediately.
package retry

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"
)

// PermanentError marks an error that retrying cannot fix, such as a write
// rejected by a constraint.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

// Permanent wraps err so the retrier gives up on it.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// IsPermanent reports whether err was wrapped with Permanent.
func IsPermanent(err error) bool {
	var permanentErr *PermanentError
	return errors.As(err, &permanentErr)
}

// Config holds retry configuration.
type Config struct {
	// MaxAttempts counts the first call.
	MaxAttempts int

	// InitialDelay precedes the second attempt and doubles for each one after.
	InitialDelay time.Duration
	MaxDelay     time.Duration

	// JitterFactor spreads each delay by up to ±JitterFactor of itself.
	JitterFactor float64

	// RetryIf, when set, vetoes retries of errors it rejects.
	RetryIf func(error) bool

	// OnRetry runs before sleeping ahead of attempt+1.
	OnRetry func(attempt int, err error, delay time.Duration)
}

// DefaultConfig returns three attempts starting at 100ms.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:  3,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     10 * time.Second,
		JitterFactor: 0.1,
	}
}

// Option is a functional option for configuring retries.
type Option func(*Config)

func WithMaxAttempts(n int) Option {
	return func(c *Config) {
		if n > 0 {
			c.MaxAttempts = n
		}
	}
}

func WithInitialDelay(d time.Duration) Option {
	return func(c *Config) {
		if d >= 0 {
			c.InitialDelay = d
		}
	}
}

func WithMaxDelay(d time.Duration) Option {
	return func(c *Config) {
		if d > 0 {
			c.MaxDelay = d
		}
	}
}

// WithJitter sets the jitter factor, between 0 and 1.
func WithJitter(j float64) Option {
	return func(c *Config) {
		if j >= 0 && j <= 1 {
			c.JitterFactor = j
		}
	}
}

func WithRetryIf(fn func(error) bool) Option {
	return func(c *Config) { c.RetryIf = fn }
}

func WithOnRetry(fn func(attempt int, err error, delay time.Duration)) Option {
	return func(c *Config) { c.OnRetry = fn }
}

// Retrier runs operations under one Config.
type Retrier struct {
	config Config
}

// New creates a Retrier from DefaultConfig and opts.
func New(opts ...Option) *Retrier {
	config := DefaultConfig()
	for _, opt := range opts {
		opt(&config)
	}
	return &Retrier{config: config}
}

// Do calls op until it succeeds, fails permanently, is vetoed by RetryIf or
// runs out of attempts. It returns the number of calls made and the last
// error, unwrapped when permanent. A context cancelled before the first call
// yields zero attempts and the context error.
func (r *Retrier) Do(ctx context.Context, op func(ctx context.Context) error) (int, error) {
	var lastErr error
	delay := r.config.InitialDelay

	for attempt := 1; attempt <= r.config.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return attempt - 1, lastErr
			}
			return 0, err
		}

		err := op(ctx)
		if err == nil {
			return attempt, nil
		}
		lastErr = err

		switch {
		case IsPermanent(err):
			return attempt, errors.Unwrap(err)
		case r.config.RetryIf != nil && !r.config.RetryIf(err):
			return attempt, err
		case attempt == r.config.MaxAttempts:
			return attempt, err
		}

		wait := r.jitter(delay)
		if r.config.OnRetry != nil {
			r.config.OnRetry(attempt, err, wait)
		}
		if wait > 0 {
			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				return attempt, lastErr
			case <-timer.C:
			}
		}

		delay *= 2
		if r.config.MaxDelay > 0 && delay > r.config.MaxDelay {
			delay = r.config.MaxDelay
		}
	}
	return r.config.MaxAttempts, lastErr
}

func (r *Retrier) jitter(d time.Duration) time.Duration {
	if r.config.JitterFactor == 0 || d <= 0 {
		return d
	}
	spread := float64(d) * r.config.JitterFactor * (rand.Float64()*2 - 1)
	return max(0, d+time.Duration(spread))
}

// BatchRetrier is the policy for batch writes: the same payload is sent once
// more after delay, then the batch is given up.
func BatchRetrier(delay time.Duration, opts ...Option) *Retrier {
	base := []Option{
		WithMaxAttempts(2),
		WithInitialDelay(delay),
		WithJitter(0),
	}
	return New(append(base, opts...)...)
}
