// Package retrier runs fallible operations with exponential backoff.
package retrier

import (
	"context"
	"time"

	"go.uber.org/zap"
)

const (
	defaultInitialInterval = 1 * time.Second
	defaultMultiplier      = 2.0
	defaultMaxAttempts     = 5
)

// Retrier implements exponential backoff without jitter.
type Retrier struct {
	initialInterval time.Duration
	multiplier      float64
	maxAttempts     int
	name            string
	l               *zap.Logger
	onRetry         func(attempt int, delay time.Duration, err error)
	sleep           func(ctx context.Context, d time.Duration) error
}

// Option defines a function to configure the Retrier.
type Option func(*Retrier)

// WithInitialInterval sets the delay after the first failed attempt.
func WithInitialInterval(d time.Duration) Option {
	return func(r *Retrier) {
		r.initialInterval = d
	}
}

// WithMultiplier sets the backoff multiplier.
func WithMultiplier(m float64) Option {
	return func(r *Retrier) {
		r.multiplier = m
	}
}

// WithMaxAttempts sets the total number of attempts, including the first one.
func WithMaxAttempts(n int) Option {
	return func(r *Retrier) {
		if n < 1 {
			n = 1
		}
		r.maxAttempts = n
	}
}

// WithLogger sets the logger used to report failed attempts.
func WithLogger(l *zap.Logger) Option {
	return func(r *Retrier) {
		r.l = l
	}
}

// WithName tags log lines with the operation name.
func WithName(name string) Option {
	return func(r *Retrier) {
		r.name = name
	}
}

// WithOnRetry registers a hook called before each backoff wait.
func WithOnRetry(fn func(attempt int, delay time.Duration, err error)) Option {
	return func(r *Retrier) {
		r.onRetry = fn
	}
}

// New creates a new Retrier with default values and optional overrides.
func New(opts ...Option) *Retrier {
	r := &Retrier{
		initialInterval: defaultInitialInterval,
		multiplier:      defaultMultiplier,
		maxAttempts:     defaultMaxAttempts,
		l:               zap.NewNop(),
		sleep:           sleepCtx,
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Named returns a copy of the retrier tagged with name.
func (r *Retrier) Named(name string) *Retrier {
	c := *r
	c.name = name
	return &c
}

// MaxAttempts returns the configured number of attempts.
func (r *Retrier) MaxAttempts() int {
	return r.maxAttempts
}

// Do executes fn until it succeeds or maxAttempts is reached.
// The error of the last attempt is returned as is.
func (r *Retrier) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	delay := r.initialInterval

	for attempt := 1; ; attempt++ {
		err := fn(ctx)
		if err == nil {
			if attempt > 1 {
				r.l.Info("operation succeeded after retry", zap.String("op", r.name), zap.Int("attempt", attempt))
			}
			return nil
		}

		if attempt >= r.maxAttempts {
			r.l.Error("operation failed, attempts exhausted",
				zap.String("op", r.name), zap.Int("attempt", attempt), zap.Int("max_attempts", r.maxAttempts), zap.Error(err))
			return err
		}

		r.l.Warn("operation failed, retrying",
			zap.String("op", r.name), zap.Int("attempt", attempt), zap.Int("max_attempts", r.maxAttempts),
			zap.Duration("delay", delay), zap.Error(err))
		if r.onRetry != nil {
			r.onRetry(attempt, delay, err)
		}

		if err := r.sleep(ctx, delay); err != nil {
			return err
		}

		delay = time.Duration(float64(delay) * r.multiplier)
	}
}

// DoWithData executes the given function with retries and returns a value.
func DoWithData[T any](r *Retrier, ctx context.Context, fn func(ctx context.Context) (T, error)) (T, error) {
	var result T
	err := r.Do(ctx, func(ctx context.Context) error {
		var e error
		result, e = fn(ctx)
		return e
	})
	return result, err
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
