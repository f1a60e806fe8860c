// Package retryx wraps github.com/sethvargo/go-retry with the bounded
// exponential backoff used by every store adapter in the service.
package retryx

import (
	"context"
	"errors"
	"time"

	"github.com/sethvargo/go-retry"
)

// Policy bounds retries of a single store operation.
type Policy struct {
	// Attempts is the number of retries after the first try. Zero means one try only.
	Attempts uint64
	// BaseDelay is the first backoff interval; it doubles on every retry.
	BaseDelay time.Duration
	// MaxDelay caps a single backoff interval. Zero means 1s.
	MaxDelay time.Duration
	// Timeout bounds every single attempt. Zero disables the per-attempt deadline.
	Timeout time.Duration
}

// DefaultPolicy is what adapters use when the caller passes a zero Policy.
var DefaultPolicy = Policy{Attempts: 3, BaseDelay: 50 * time.Millisecond, MaxDelay: time.Second, Timeout: 3 * time.Second}

func (p Policy) backoff() retry.Backoff {
	base := p.BaseDelay
	if base <= 0 {
		base = DefaultPolicy.BaseDelay
	}
	maxDelay := p.MaxDelay
	if maxDelay <= 0 {
		maxDelay = time.Second
	}

	b := retry.NewExponential(base)
	b = retry.WithCappedDuration(maxDelay, b)
	return retry.WithMaxRetries(p.Attempts, b)
}

// Permanent marks err as not worth retrying. Do returns it unchanged.
func Permanent(err error) error {
	return &permanentError{err: err}
}

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Do runs fn until it succeeds, returns a Permanent error, the retries are
// exhausted or ctx is done. Every other error is treated as transient.
// Each attempt gets its own deadline when p.Timeout is set.
func Do(ctx context.Context, p Policy, fn func(ctx context.Context) error) error {
	err := retry.Do(ctx, p.backoff(), func(ctx context.Context) error {
		attemptCtx := ctx
		if p.Timeout > 0 {
			var cancel context.CancelFunc
			attemptCtx, cancel = context.WithTimeout(ctx, p.Timeout)
			defer cancel()
		}

		err := fn(attemptCtx)
		if err == nil {
			return nil
		}

		var perm *permanentError
		if errors.As(err, &perm) {
			return err
		}
		return retry.RetryableError(err)
	})

	var perm *permanentError
	if errors.As(err, &perm) {
		return perm.err
	}
	return err
}
