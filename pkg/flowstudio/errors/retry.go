package errors

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"
)

// RetryConfig is the retry policy for provider calls.
type RetryConfig struct {
	// MaxAttempts counts the first call. Values below 1 mean a single call.
	MaxAttempts int

	// InitialBackoff is the wait before the second call.
	InitialBackoff time.Duration

	// MaxBackoff caps every wait, including provider Retry-After hints.
	MaxBackoff time.Duration

	// BackoffFactor grows the wait after each failed call.
	BackoffFactor float64

	// Jitter spreads each wait by up to this fraction in either direction.
	Jitter float64

	// RetryableFunc replaces IsRetryable when set.
	RetryableFunc func(error) bool

	// OnRetry is called before waiting for the next call.
	OnRetry func(attempt int, err error, delay time.Duration)
}

// DefaultRetry is the policy LLM and classifier nodes use unless the engine
// is configured otherwise.
var DefaultRetry = RetryConfig{
	MaxAttempts:    3,
	InitialBackoff: 500 * time.Millisecond,
	MaxBackoff:     10 * time.Second,
	BackoffFactor:  2.0,
	Jitter:         0.1,
}

// NoRetry makes a single call.
var NoRetry = RetryConfig{MaxAttempts: 1}

// RetryResult is the outcome of WithRetryContext.
type RetryResult[T any] struct {
	Value T
	// Err is nil on success, otherwise a *CategorizedError around the last
	// failure.
	Err      error
	Attempts int
	Duration time.Duration
}

// WithRetry is WithRetryContext without cancellation.
func WithRetry[T any](cfg RetryConfig, fn func() (T, error)) RetryResult[T] {
	return WithRetryContext(context.Background(), cfg, func(context.Context) (T, error) {
		return fn()
	})
}

// WithRetryContext calls fn until it succeeds, fails permanently, runs out
// of attempts or ctx ends.
func WithRetryContext[T any](
	ctx context.Context,
	cfg RetryConfig,
	fn func(context.Context) (T, error),
) RetryResult[T] {
	p := newPolicy(cfg)
	started := time.Now()
	done := func(v T, err error, attempts int) RetryResult[T] {
		return RetryResult[T]{Value: v, Err: err, Attempts: attempts, Duration: time.Since(started)}
	}

	var zero T
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return done(zero, cancelled(err, attempt-1, "context cancelled"), attempt-1)
		}

		v, err := fn(ctx)
		switch {
		case err == nil:
			return done(v, nil, attempt)
		case !p.retryable(err):
			return done(zero, &CategorizedError{Err: err, Category: Categorize(err), Retries: attempt}, attempt)
		case attempt >= p.attempts:
			return done(zero, &CategorizedError{
				Err:      err,
				Category: Categorize(err),
				Retries:  attempt,
				Context:  "max retries exceeded",
			}, attempt)
		}

		wait := p.delay(err)
		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt, err, wait)
		}
		if err := sleep(ctx, wait); err != nil {
			return done(zero, cancelled(err, attempt, "context cancelled during backoff"), attempt)
		}
		p.grow()
	}
}

// policy tracks the backoff state of one WithRetryContext call.
type policy struct {
	cfg       RetryConfig
	attempts  int
	backoff   time.Duration
	retryable func(error) bool
}

func newPolicy(cfg RetryConfig) *policy {
	p := &policy{
		cfg:       cfg,
		attempts:  max(cfg.MaxAttempts, 1),
		backoff:   cfg.InitialBackoff,
		retryable: cfg.RetryableFunc,
	}
	if p.retryable == nil {
		p.retryable = IsRetryable
	}
	return p
}

// delay returns the next wait. A provider Retry-After replaces the computed
// backoff.
func (p *policy) delay(err error) time.Duration {
	d := jittered(p.backoff, p.cfg.Jitter)
	var limited *RateLimitError
	if errors.As(err, &limited) && limited.RetryAfter > 0 {
		d = limited.RetryAfter
	}
	return p.capped(d)
}

func (p *policy) grow() {
	if p.cfg.BackoffFactor > 0 {
		p.backoff = p.capped(time.Duration(float64(p.backoff) * p.cfg.BackoffFactor))
	}
}

func (p *policy) capped(d time.Duration) time.Duration {
	if p.cfg.MaxBackoff > 0 {
		return min(d, p.cfg.MaxBackoff)
	}
	return d
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func cancelled(err error, attempts int, where string) *CategorizedError {
	return &CategorizedError{Err: err, Category: CategoryPermanent, Retries: attempts, Context: where}
}

// jittered moves base by a random amount within ±jitter*base.
func jittered(base time.Duration, jitter float64) time.Duration {
	if jitter <= 0 || base <= 0 {
		return base
	}
	spread := float64(base) * jitter
	return base + time.Duration(spread*(2*rand.Float64()-1))
}

// RetryOption adjusts a RetryConfig built by NewRetryConfig.
type RetryOption func(*RetryConfig)

// NewRetryConfig applies opts on top of DefaultRetry.
func NewRetryConfig(opts ...RetryOption) RetryConfig {
	cfg := DefaultRetry
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// WithMaxAttempts sets the total number of calls, including the first.
func WithMaxAttempts(n int) RetryOption { return func(c *RetryConfig) { c.MaxAttempts = n } }

// WithInitialBackoff sets the delay before the second attempt.
func WithInitialBackoff(d time.Duration) RetryOption {
	return func(c *RetryConfig) { c.InitialBackoff = d }
}

// WithMaxBackoff caps the delay between attempts.
func WithMaxBackoff(d time.Duration) RetryOption { return func(c *RetryConfig) { c.MaxBackoff = d } }

// WithBackoffFactor sets the multiplier applied to the delay after each retry.
func WithBackoffFactor(f float64) RetryOption { return func(c *RetryConfig) { c.BackoffFactor = f } }

// WithJitter sets the random spread applied to each delay, as a fraction
// in [0, 1].
func WithJitter(j float64) RetryOption { return func(c *RetryConfig) { c.Jitter = j } }

// WithRetryableFunc decides which errors are retried instead of IsRetryable.
func WithRetryableFunc(fn func(error) bool) RetryOption {
	return func(c *RetryConfig) { c.RetryableFunc = fn }
}

// WithOnRetry registers a callback invoked before each retry sleep.
func WithOnRetry(fn func(attempt int, err error, delay time.Duration)) RetryOption {
	return func(c *RetryConfig) { c.OnRetry = fn }
}
