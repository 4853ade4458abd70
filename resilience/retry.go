package resilience

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"time"
)

// BackoffStrategy defines how delays grow between retries.
type BackoffStrategy int

const (
	// BackoffExponential multiplies the delay each attempt.
	BackoffExponential BackoffStrategy = iota
	// BackoffLinear increases delay linearly.
	BackoffLinear
	// BackoffFixed uses the same delay for all retries.
	BackoffFixed
	// BackoffImmediate retries without delay.
	BackoffImmediate
)

// RetryConfig configures the retry behavior.
type RetryConfig struct {
	// MaxAttempts is the maximum number of attempts (including initial).
	// Default: 3
	MaxAttempts int

	// BaseDelay is the delay before the first retry.
	// Default: 1s
	BaseDelay time.Duration

	// MaxDelay caps the delay between retries.
	// Default: 60s
	MaxDelay time.Duration

	// Multiplier is the backoff multiplier for exponential backoff.
	// Default: 2.0
	Multiplier float64

	// Strategy is the backoff strategy.
	// Default: BackoffExponential
	Strategy BackoffStrategy

	// Jitter adds up to ±10% random noise to each delay to prevent
	// thundering herd. Disabled unless set.
	Jitter bool

	// RetryIf determines if an error should trigger a retry.
	// Default: Retryable.
	RetryIf func(err error) bool

	// OnRetry is called before each retry attempt.
	OnRetry func(attempt int, err error, delay time.Duration)

	// OnRecovered is called when an operation succeeds after at least
	// one retry.
	OnRecovered func(attempts int)
}

// Retry implements retry with backoff.
type Retry struct {
	config RetryConfig
	clock  Clock
	rand   *rand.Rand
	stats  *Stats
}

// RetryOption configures a Retry beyond its RetryConfig.
type RetryOption func(*Retry)

// WithClock sets the clock used for backoff sleeps.
func WithClock(clock Clock) RetryOption {
	return func(r *Retry) {
		r.clock = clock
	}
}

// WithRand sets the random source used for jitter. Seedable for tests.
func WithRand(rnd *rand.Rand) RetryOption {
	return func(r *Retry) {
		r.rand = rnd
	}
}

// WithStats sets the stats recorder for per-operation retry counters.
func WithStats(stats *Stats) RetryOption {
	return func(r *Retry) {
		r.stats = stats
	}
}

// NewRetry creates a new retry handler.
func NewRetry(config RetryConfig, opts ...RetryOption) *Retry {
	// Apply defaults
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 3
	}
	if config.BaseDelay <= 0 {
		config.BaseDelay = time.Second
	}
	if config.MaxDelay <= 0 {
		config.MaxDelay = 60 * time.Second
	}
	if config.Multiplier <= 0 {
		config.Multiplier = 2.0
	}
	if config.RetryIf == nil {
		config.RetryIf = Retryable
	}

	r := &Retry{
		config: config,
		clock:  NewRealClock(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// DelayFor returns the backoff delay for a zero-based attempt index.
// Pure except for jitter randomness.
func (r *Retry) DelayFor(attempt int) time.Duration {
	var delay time.Duration

	switch r.config.Strategy {
	case BackoffFixed:
		delay = r.config.BaseDelay

	case BackoffLinear:
		delay = r.config.BaseDelay * time.Duration(attempt+1)

	case BackoffImmediate:
		return 0

	case BackoffExponential:
		multiplier := math.Pow(r.config.Multiplier, float64(attempt))
		delay = time.Duration(float64(r.config.BaseDelay) * multiplier)
	}

	// Cap at max delay
	if delay > r.config.MaxDelay {
		delay = r.config.MaxDelay
	}

	// Add jitter if enabled
	if r.config.Jitter && delay > 0 {
		// #nosec G404 -- jitter is non-cryptographic timing variance.
		f := rand.Float64
		if r.rand != nil {
			f = r.rand.Float64
		}
		jitter := time.Duration((f()*2 - 1) * 0.1 * float64(delay))
		delay += jitter
		if delay < 0 {
			delay = 0
		}
	}

	return delay
}

// Execute runs the operation with retry logic.
func (r *Retry) Execute(ctx context.Context, op func(context.Context) error) error {
	return r.ExecuteNamed(ctx, "default", op)
}

// ExecuteNamed runs the operation with retry logic, recording stats under
// the given operation name.
func (r *Retry) ExecuteNamed(ctx context.Context, name string, op func(context.Context) error) error {
	var lastErr error

	for attempt := 0; attempt < r.config.MaxAttempts; attempt++ {
		err := op(ctx)

		if err == nil {
			if r.stats != nil {
				r.stats.RecordRetry(name, attempt+1, true)
			}
			if attempt > 0 && r.config.OnRecovered != nil {
				r.config.OnRecovered(attempt + 1)
			}
			return nil
		}

		lastErr = err

		// Non-retryable errors propagate immediately
		if !r.config.RetryIf(err) {
			if r.stats != nil {
				r.stats.RecordRetry(name, attempt+1, false)
			}
			return err
		}

		// Don't sleep after the last attempt
		if attempt >= r.config.MaxAttempts-1 {
			break
		}

		delay := r.DelayFor(attempt)

		if r.config.OnRetry != nil {
			r.config.OnRetry(attempt+1, err, delay)
		}

		if delay > 0 {
			select {
			case <-ctx.Done():
				if r.stats != nil {
					r.stats.RecordRetry(name, attempt+1, false)
				}
				return ctx.Err()
			case <-r.clock.After(delay):
			}
		}
	}

	if r.stats != nil {
		r.stats.RecordRetry(name, r.config.MaxAttempts, false)
	}
	return fmt.Errorf("%w after %d attempts: %w", ErrRetriesExhausted, r.config.MaxAttempts, lastErr)
}

// Config returns the retry configuration.
func (r *Retry) Config() RetryConfig {
	return r.config
}
