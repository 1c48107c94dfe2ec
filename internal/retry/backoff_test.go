package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBackoff_DefaultConfigIsFixedAndUnbounded(t *testing.T) {
	b := NewBackoff(DefaultBackoffConfig())

	assert.Equal(t, 5*time.Second, b.Delay(1))
	assert.Equal(t, 5*time.Second, b.Delay(10))
	assert.False(t, b.Exhausted(1000))
}

func TestBackoff_ExponentialIncrease(t *testing.T) {
	b := NewBackoff(BackoffConfig{
		InitialDelay: 10 * time.Millisecond,
		MaxDelay:     time.Second,
		Multiplier:   2.0,
	})

	assert.Equal(t, 10*time.Millisecond, b.Delay(1))
	assert.Equal(t, 20*time.Millisecond, b.Delay(2))
	assert.Equal(t, 40*time.Millisecond, b.Delay(3))
}

func TestBackoff_MaxDelayConstraint(t *testing.T) {
	b := NewBackoff(BackoffConfig{
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     150 * time.Millisecond,
		Multiplier:   2.0,
	})

	assert.Equal(t, 150*time.Millisecond, b.Delay(5))
	assert.Equal(t, 150*time.Millisecond, b.Delay(5000))
}

func TestBackoff_NormalizesConfig(t *testing.T) {
	b := NewBackoff(BackoffConfig{
		InitialDelay: time.Second,
		MaxDelay:     0,
		Multiplier:   0,
		MaxAttempts:  -3,
	})

	cfg := b.Config()
	assert.Equal(t, 1.0, cfg.Multiplier)
	assert.Equal(t, time.Second, cfg.MaxDelay)
	assert.Equal(t, 0, cfg.MaxAttempts)
	assert.Equal(t, time.Second, b.Delay(0))
}

func TestBackoff_Exhausted(t *testing.T) {
	b := NewBackoff(BackoffConfig{MaxAttempts: 3, Multiplier: 1})

	assert.False(t, b.Exhausted(1))
	assert.False(t, b.Exhausted(3))
	assert.True(t, b.Exhausted(4))
}

func TestBackoff_JitterStaysInBounds(t *testing.T) {
	b := NewBackoff(BackoffConfig{
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     time.Second,
		Multiplier:   1,
		Jitter:       true,
	})

	for i := 0; i < 50; i++ {
		d := b.Delay(1)
		assert.GreaterOrEqual(t, d, 75*time.Millisecond)
		assert.LessOrEqual(t, d, 125*time.Millisecond)
	}
}

func always(error) bool { return true }

func TestBackoff_SuccessAfterRetries(t *testing.T) {
	b := NewBackoff(BackoffConfig{
		InitialDelay: time.Millisecond,
		MaxDelay:     10 * time.Millisecond,
		Multiplier:   2.0,
		MaxAttempts:  3,
	})

	attempts := 0
	err := b.RetryWithPredicate(context.Background(), func() error {
		attempts++
		if attempts < 3 {
			return errors.New("temporary error")
		}
		return nil
	}, always)

	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestBackoff_FailureAfterMaxAttempts(t *testing.T) {
	b := NewBackoff(BackoffConfig{
		InitialDelay: time.Millisecond,
		MaxDelay:     10 * time.Millisecond,
		Multiplier:   2.0,
		MaxAttempts:  2,
	})

	expected := errors.New("persistent error")
	attempts := 0
	err := b.RetryWithPredicate(context.Background(), func() error {
		attempts++
		return expected
	}, always)

	assert.ErrorIs(t, err, expected)
	assert.Equal(t, 2, attempts)
}

func TestBackoff_UnboundedStopsOnContext(t *testing.T) {
	b := NewBackoff(BackoffConfig{
		InitialDelay: 5 * time.Millisecond,
		Multiplier:   1,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 40*time.Millisecond)
	defer cancel()

	attempts := 0
	err := b.RetryWithPredicate(ctx, func() error {
		attempts++
		return errors.New("still down")
	}, always)

	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Greater(t, attempts, 1)
}

func TestBackoff_WithPredicate_NonRetryableError(t *testing.T) {
	b := NewBackoff(BackoffConfig{
		InitialDelay: time.Millisecond,
		Multiplier:   2.0,
		MaxAttempts:  3,
	})

	fatal := errors.New("non-retryable error")
	attempts := 0
	err := b.RetryWithPredicate(context.Background(), func() error {
		attempts++
		return fatal
	}, func(err error) bool { return !errors.Is(err, fatal) })

	assert.ErrorIs(t, err, fatal)
	assert.Equal(t, 1, attempts)
}

func TestBackoff_WaitHonorsCancellation(t *testing.T) {
	b := NewBackoff(BackoffConfig{InitialDelay: time.Hour, Multiplier: 1})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, b.Wait(ctx, 1), context.Canceled)
}
