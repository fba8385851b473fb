// Package retry provides bounded exponential-backoff retry for transient errors.
//
// Usage:
//
//	err := retry.Do(ctx, retry.Config{
//	    MaxRetries: 6,
//	    Schedule:   retry.CappedExponential{Base: 50 * time.Millisecond, Max: 1150 * time.Millisecond, Jitter: 50 * time.Millisecond},
//	}, func(attempt int) error {
//	    return client.Call()
//	})
package retry

import (
	"context"
	"log/slog"
	"math/rand"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Schedule returns the wait before retry number n (0 for the first retry).
type Schedule interface {
	Delay(n int) time.Duration
}

// CappedExponential waits min(2^n*Base, Max) plus a uniform jitter in [0, Jitter).
type CappedExponential struct {
	Base   time.Duration
	Max    time.Duration
	Jitter time.Duration
	// Rand returns a value in [0, 1). Defaults to math/rand.
	Rand func() float64
}

// Delay implements Schedule.
func (c CappedExponential) Delay(n int) time.Duration {
	d := c.Base
	for i := 0; i < n && d < c.Max; i++ {
		d *= 2
	}
	if d > c.Max {
		d = c.Max
	}
	if c.Jitter > 0 {
		r := rand.Float64
		if c.Rand != nil {
			r = c.Rand
		}
		d += time.Duration(r() * float64(c.Jitter))
	}
	return d
}

// Config controls the retry behaviour.
type Config struct {
	// MaxRetries is the number of retries after the first attempt. Zero
	// disables retrying.
	MaxRetries int
	// Schedule computes the wait before each retry.
	Schedule Schedule
	// Timer overrides the wall-clock timer, for tests.
	Timer backoff.Timer
	// OnRetry is called before each wait with the failed attempt number
	// (starting at 1), its error and the upcoming delay.
	OnRetry func(attempt int, err error, delay time.Duration)
}

// scheduleBackOff adapts a Schedule to backoff.BackOff.
type scheduleBackOff struct {
	schedule Schedule
	n        int
}

func (s *scheduleBackOff) NextBackOff() time.Duration {
	d := s.schedule.Delay(s.n)
	s.n++
	return d
}

func (s *scheduleBackOff) Reset() { s.n = 0 }

// Do calls fn until it succeeds, the retry budget is exhausted, or ctx is
// cancelled. fn receives the 1-based attempt number. The error from the last
// attempt is returned; wrap an error with Permanent to stop immediately.
// The second return value is the number of attempts made.
func Do(ctx context.Context, cfg Config, fn func(attempt int) error) (int, error) {
	schedule := cfg.Schedule
	if schedule == nil {
		schedule = CappedExponential{Base: 500 * time.Millisecond, Max: 10 * time.Second}
	}
	maxRetries := cfg.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}

	b := backoff.WithContext(
		backoff.WithMaxRetries(&scheduleBackOff{schedule: schedule}, uint64(maxRetries)),
		ctx,
	)

	attempts := 0
	op := func() error {
		attempts++
		return fn(attempts)
	}
	notify := func(err error, delay time.Duration) {
		slog.Debug("retry: attempt failed, retrying",
			"attempt", attempts, "max", maxRetries+1,
			"err", err, "delay", delay)
		if cfg.OnRetry != nil {
			cfg.OnRetry(attempts, err, delay)
		}
	}

	err := backoff.RetryNotifyWithTimer(op, b, notify, cfg.Timer)
	return attempts, err
}

// Permanent marks err as not retryable.
func Permanent(err error) error {
	return backoff.Permanent(err)
}
