// Package retry runs operations with bounded exponential backoff.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"
)

// ErrExhausted wraps the last error once every attempt has failed.
var ErrExhausted = errors.New("retries exhausted")

// ErrAttemptTimeout marks an attempt cut short by Policy.AttemptTimeout.
var ErrAttemptTimeout = errors.New("attempt timed out")

// Policy controls how an operation is retried.
type Policy struct {
	MaxAttempts    int           // total attempts, including the first
	BaseDelay      time.Duration // delay before the second attempt
	MaxDelay       time.Duration // cap on any single delay
	Jitter         float64       // fraction of the delay randomized, 0..1
	AttemptTimeout time.Duration // per-attempt deadline, 0 = none

	// Retryable reports whether an error is transient. Nil retries
	// only attempt timeouts.
	Retryable func(error) bool

	// Sleep waits between attempts. Nil uses a timer honoring ctx.
	Sleep func(ctx context.Context, d time.Duration) error
	// Rand returns a value in [0, 1) for jitter. Nil uses math/rand.
	Rand func() float64
}

// DefaultPolicy returns the policy used when none is configured.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:    4,
		BaseDelay:      500 * time.Millisecond,
		MaxDelay:       10 * time.Second,
		Jitter:         0.2,
		AttemptTimeout: 30 * time.Second,
	}
}

// Do calls op until it succeeds, fails with a non-retryable error, the
// attempts run out, or ctx is done. It returns the number of attempts made.
// Cancellation of ctx is returned as ctx.Err() and never retried.
func (p Policy) Do(ctx context.Context, op func(ctx context.Context) error) (int, error) {
	maxAttempts := p.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			if err := p.sleep(ctx, p.Backoff(attempt)); err != nil {
				return attempt, err
			}
		}
		if err := ctx.Err(); err != nil {
			return attempt, err
		}

		err := p.once(ctx, op)
		if err == nil {
			return attempt + 1, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return attempt + 1, ctxErr
		}
		if !errors.Is(err, ErrAttemptTimeout) && !p.retryable(err) {
			return attempt + 1, err
		}
		lastErr = err
	}

	return maxAttempts, fmt.Errorf("%w after %d attempts: %w", ErrExhausted, maxAttempts, lastErr)
}

func (p Policy) once(ctx context.Context, op func(ctx context.Context) error) error {
	if p.AttemptTimeout <= 0 {
		return op(ctx)
	}
	actx, cancel := context.WithTimeout(ctx, p.AttemptTimeout)
	defer cancel()

	err := op(actx)
	if err != nil && ctx.Err() == nil && errors.Is(actx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", ErrAttemptTimeout, err)
	}
	return err
}

func (p Policy) retryable(err error) bool {
	if p.Retryable == nil {
		return false
	}
	return p.Retryable(err)
}

// Backoff returns the delay before the given attempt (1-based retries):
// BaseDelay, 2*BaseDelay, 4*BaseDelay, ... capped at MaxDelay, then jittered.
func (p Policy) Backoff(attempt int) time.Duration {
	if attempt < 1 || p.BaseDelay <= 0 {
		return 0
	}
	shift := attempt - 1
	if shift > 30 {
		shift = 30
	}
	delay := p.BaseDelay * time.Duration(1<<uint(shift))
	if p.MaxDelay > 0 && (delay > p.MaxDelay || delay <= 0) {
		delay = p.MaxDelay
	}
	if p.Jitter > 0 {
		r := rand.Float64
		if p.Rand != nil {
			r = p.Rand
		}
		spread := float64(delay) * p.Jitter
		delay = time.Duration(float64(delay) - spread + 2*spread*r())
	}
	if delay < 0 {
		delay = 0
	}
	return delay
}

func (p Policy) sleep(ctx context.Context, d time.Duration) error {
	if p.Sleep != nil {
		return p.Sleep(ctx, d)
	}
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
