package retry

import (
	"context"
	"crypto/rand"
	"math"
	"math/big"
	"time"
)

// BackoffConfig contains configuration for reconnect backoff. A Multiplier
// of 1 gives a fixed delay, MaxAttempts of 0 never gives up.
type BackoffConfig struct {
	InitialDelay time.Duration `json:"initial_delay"`
	MaxDelay     time.Duration `json:"max_delay"`
	Multiplier   float64       `json:"multiplier"`
	MaxAttempts  int           `json:"max_attempts"`
	Jitter       bool          `json:"jitter"`
}

// DefaultBackoffConfig returns the fixed five second reconnect policy
func DefaultBackoffConfig() BackoffConfig {
	return BackoffConfig{
		InitialDelay: 5 * time.Second,
		MaxDelay:     5 * time.Minute,
		Multiplier:   1.0,
		MaxAttempts:  0,
		Jitter:       false,
	}
}

// Backoff computes delays between attempts and runs retry loops
type Backoff struct {
	config BackoffConfig
}

// NewBackoff creates a new backoff instance, normalizing nonsensical values
func NewBackoff(config BackoffConfig) *Backoff {
	if config.Multiplier < 1 {
		config.Multiplier = 1
	}
	if config.InitialDelay < 0 {
		config.InitialDelay = 0
	}
	if config.MaxDelay < config.InitialDelay {
		config.MaxDelay = config.InitialDelay
	}
	if config.MaxAttempts < 0 {
		config.MaxAttempts = 0
	}
	return &Backoff{config: config}
}

// Config returns the normalized configuration
func (b *Backoff) Config() BackoffConfig {
	return b.config
}

// Exhausted reports whether attempt is past the configured limit.
// Attempts are counted from 1.
func (b *Backoff) Exhausted(attempt int) bool {
	return b.config.MaxAttempts > 0 && attempt > b.config.MaxAttempts
}

// Wait sleeps for the delay of the given attempt or until ctx is done
func (b *Backoff) Wait(ctx context.Context, attempt int) error {
	timer := time.NewTimer(b.Delay(attempt))
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// RetryWithPredicate executes the operation until it succeeds, attempts run
// out, ctx is done or isRetryable rejects the error
func (b *Backoff) RetryWithPredicate(ctx context.Context, operation func() error, isRetryable func(error) bool) error {
	var lastErr error

	for attempt := 1; !b.Exhausted(attempt); attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := operation()
		if err == nil {
			return nil
		}
		lastErr = err

		if !isRetryable(err) {
			return err
		}

		// Don't wait after the last attempt
		if b.Exhausted(attempt + 1) {
			break
		}

		if err := b.Wait(ctx, attempt); err != nil {
			return err
		}
	}

	return lastErr
}

// Delay returns the wait after the given failed attempt
func (b *Backoff) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	delay := float64(b.config.InitialDelay) * math.Pow(b.config.Multiplier, float64(attempt-1))
	if delay > float64(b.config.MaxDelay) || math.IsInf(delay, 0) {
		delay = float64(b.config.MaxDelay)
	}

	// ±25% randomness
	if b.config.Jitter {
		jitter := delay * 0.25
		delay += (secureFloat64() - 0.5) * 2 * jitter

		if delay < 0 {
			delay = float64(b.config.InitialDelay)
		}
		if delay > float64(b.config.MaxDelay) {
			delay = float64(b.config.MaxDelay)
		}
	}

	return time.Duration(delay)
}

// secureFloat64 generates a cryptographically secure float64 between 0 and 1
func secureFloat64() float64 {
	max := big.NewInt(0).SetUint64(math.MaxUint64)
	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		return float64(time.Now().UnixNano()%1000000) / 1000000.0
	}
	return float64(n.Uint64()) / float64(math.MaxUint64)
}
