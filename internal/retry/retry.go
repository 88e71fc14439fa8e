// Package retry provides a bounded retry policy for operations that fail on
// transient connectivity problems.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/johndauphine/accdb-pg-migrate/internal/logging"
)

// ErrExhausted is returned (wrapping the last error) when every attempt failed.
var ErrExhausted = errors.New("retry budget exhausted")

// permanentError marks a failure that retrying cannot fix.
type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Stop wraps err so that Do returns it at once instead of retrying.
func Stop(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// Policy describes how often and how patiently an operation is retried.
type Policy struct {
	// MaxAttempts is the total number of tries, including the first one.
	MaxAttempts int

	// Interval is the wait before the second attempt.
	Interval time.Duration

	// Multiplier scales the wait after each failure. Values below 1 are
	// treated as 1 (fixed interval).
	Multiplier float64

	// MaxInterval caps the wait. Zero means no cap.
	MaxInterval time.Duration

	// sleep is replaced in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// Fixed returns a policy with a constant interval that allows retries
// additional attempts after the first one.
func Fixed(retries int, interval time.Duration) Policy {
	return Policy{MaxAttempts: retries + 1, Interval: interval, Multiplier: 1}
}

// Backoff returns the wait before attempt n (1-based, n >= 2).
func (p Policy) Backoff(n int) time.Duration {
	if n < 2 {
		return 0
	}
	m := p.Multiplier
	if m < 1 {
		m = 1
	}
	d := float64(p.Interval)
	for i := 2; i < n; i++ {
		d *= m
		if p.MaxInterval > 0 && d > float64(p.MaxInterval) {
			break
		}
	}
	wait := time.Duration(d)
	if p.MaxInterval > 0 && wait > p.MaxInterval {
		wait = p.MaxInterval
	}
	return wait
}

// Do runs fn until it succeeds, the attempts run out, or ctx is done.
func (p Policy) Do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	sleep := p.sleep
	if sleep == nil {
		sleep = sleepCtx
	}

	var err error
	for n := 1; n <= attempts; n++ {
		if n > 1 {
			wait := p.Backoff(n)
			logging.Warn("Retry %d/%d for %s after %v (error: %v)", n-1, attempts-1, op, wait, err)
			if serr := sleep(ctx, wait); serr != nil {
				return fmt.Errorf("%s: %w", op, serr)
			}
		}

		if err = fn(ctx); err == nil {
			return nil
		}
		var perm *permanentError
		if errors.As(err, &perm) {
			return fmt.Errorf("%s: %w", op, perm.err)
		}
		if ctx.Err() != nil {
			return fmt.Errorf("%s: %w", op, ctx.Err())
		}
	}
	return fmt.Errorf("%s: %w after %d attempts: %w", op, ErrExhausted, attempts, err)
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
