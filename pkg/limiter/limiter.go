// Package limiter bounds concurrent operations and spaces their start times.
package limiter

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// Limiter admits at most maxConcurrent operations at a time and starts
// them at least minSpacing apart. Waiters are admitted in arrival order.
type Limiter struct {
	sem      *semaphore.Weighted
	spacing  *rate.Limiter
	max      int
	inFlight atomic.Int64
	gauge    Gauge
}

// Gauge tracks running operations. prometheus.Gauge satisfies it.
type Gauge interface {
	Inc()
	Dec()
}

type Option func(*Limiter)

// WithGauge mirrors the in-flight count into g.
func WithGauge(g Gauge) Option {
	return func(l *Limiter) {
		l.gauge = g
	}
}

// New creates a limiter. A zero minSpacing disables start spacing.
func New(maxConcurrent int, minSpacing time.Duration, opts ...Option) (*Limiter, error) {
	if maxConcurrent < 1 {
		return nil, errors.Errorf("maxConcurrent must be at least 1, got %d", maxConcurrent)
	}
	if minSpacing < 0 {
		return nil, errors.Errorf("minSpacing must not be negative, got %s", minSpacing)
	}

	spacing := rate.NewLimiter(rate.Inf, 1)
	if minSpacing > 0 {
		spacing = rate.NewLimiter(rate.Every(minSpacing), 1)
	}

	l := &Limiter{
		sem:     semaphore.NewWeighted(int64(maxConcurrent)),
		spacing: spacing,
		max:     maxConcurrent,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// Schedule waits for a free slot and the spacing window, then runs fn.
// Queued operations are only dropped when ctx is cancelled while waiting.
func (l *Limiter) Schedule(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := l.sem.Acquire(ctx, 1); err != nil {
		return errors.Wrap(err, "wait for submission slot")
	}
	defer l.sem.Release(1)

	if err := l.spacing.Wait(ctx); err != nil {
		return errors.Wrap(err, "wait for submission spacing")
	}

	l.inFlight.Add(1)
	if l.gauge != nil {
		l.gauge.Inc()
	}
	defer func() {
		l.inFlight.Add(-1)
		if l.gauge != nil {
			l.gauge.Dec()
		}
	}()

	return fn(ctx)
}

// ScheduleWithData schedules fn and returns its value.
func ScheduleWithData[T any](l *Limiter, ctx context.Context, fn func(ctx context.Context) (T, error)) (T, error) {
	var result T
	err := l.Schedule(ctx, func(ctx context.Context) error {
		var e error
		result, e = fn(ctx)
		return e
	})
	return result, err
}

// InFlight returns the number of operations currently running.
func (l *Limiter) InFlight() int {
	return int(l.inFlight.Load())
}

// MaxConcurrent returns the concurrency cap.
func (l *Limiter) MaxConcurrent() int {
	return l.max
}
