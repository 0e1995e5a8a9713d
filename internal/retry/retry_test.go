package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errTransient = errors.New("throttled")

func recordingPolicy(delays *[]time.Duration) Policy {
	return Policy{
		MaxAttempts: 4,
		BaseDelay:   100 * time.Millisecond,
		MaxDelay:    250 * time.Millisecond,
		Retryable:   func(err error) bool { return errors.Is(err, errTransient) },
		Sleep: func(_ context.Context, d time.Duration) error {
			*delays = append(*delays, d)
			return nil
		},
	}
}

func TestDoSucceedsAfterTransientFailures(t *testing.T) {
	var delays []time.Duration
	p := recordingPolicy(&delays)

	calls := 0
	attempts, err := p.Do(context.Background(), func(context.Context) error {
		calls++
		if calls < 3 {
			return errTransient
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
	assert.Equal(t, []time.Duration{100 * time.Millisecond, 200 * time.Millisecond}, delays)
}

func TestDoExhausts(t *testing.T) {
	var delays []time.Duration
	p := recordingPolicy(&delays)

	attempts, err := p.Do(context.Background(), func(context.Context) error { return errTransient })

	require.Error(t, err)
	assert.Equal(t, 4, attempts)
	assert.ErrorIs(t, err, ErrExhausted)
	assert.ErrorIs(t, err, errTransient)
	assert.Equal(t, []time.Duration{100 * time.Millisecond, 200 * time.Millisecond, 250 * time.Millisecond}, delays)
}

func TestDoStopsOnPermanentError(t *testing.T) {
	var delays []time.Duration
	p := recordingPolicy(&delays)
	permanent := errors.New("access denied")

	attempts, err := p.Do(context.Background(), func(context.Context) error { return permanent })

	assert.Equal(t, 1, attempts)
	assert.Same(t, permanent, err)
	assert.Empty(t, delays)
}

func TestDoHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := Policy{
		MaxAttempts: 5,
		BaseDelay:   time.Hour,
		Retryable:   func(error) bool { return true },
	}

	_, err := p.Do(ctx, func(context.Context) error {
		cancel()
		return errTransient
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, ErrExhausted)
}

func TestDoRetriesAttemptTimeout(t *testing.T) {
	p := Policy{
		MaxAttempts:    2,
		AttemptTimeout: 5 * time.Millisecond,
		Sleep:          func(context.Context, time.Duration) error { return nil },
	}

	calls := 0
	attempts, err := p.Do(context.Background(), func(ctx context.Context) error {
		calls++
		if calls == 1 {
			<-ctx.Done()
			return ctx.Err()
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 2, attempts)
}

func TestBackoffJitterBounds(t *testing.T) {
	p := Policy{BaseDelay: time.Second, MaxDelay: time.Minute, Jitter: 0.5}

	p.Rand = func() float64 { return 0 }
	assert.Equal(t, 1*time.Second, p.Backoff(2))

	p.Rand = func() float64 { return 0.999999 }
	assert.InDelta(t, float64(3*time.Second), float64(p.Backoff(2)), float64(time.Millisecond))

	assert.Zero(t, p.Backoff(0))
}
