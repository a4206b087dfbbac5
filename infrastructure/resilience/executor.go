// Package resilience wraps fortify's circuit breaker, retry and bulkhead
// patterns around the router's capability ports.
package resilience

import (
	"context"
	"errors"
	"time"

	"github.com/felixgeelhaar/fortify/bulkhead"
	"github.com/felixgeelhaar/fortify/circuitbreaker"
	"github.com/felixgeelhaar/fortify/retry"

	domainconfig "github.com/felixgeelhaar/agent-router/domain/config"
)

// errPermanent marks failures the retrier must not repeat.
var errPermanent = errors.New("permanent failure")

// ExecutorConfig configures a resilient executor.
type ExecutorConfig struct {
	// MaxConcurrent limits concurrent executions. Zero disables the bulkhead.
	MaxConcurrent int

	// CircuitBreakerEnabled wraps calls in a circuit breaker.
	CircuitBreakerEnabled bool

	// CircuitBreakerThreshold is the number of consecutive failures before opening.
	CircuitBreakerThreshold int

	// CircuitBreakerTimeout is how long the circuit stays open.
	CircuitBreakerTimeout time.Duration

	// RetryMaxAttempts is the maximum number of attempts including the first.
	RetryMaxAttempts int

	// RetryInitialDelay is the initial delay between retries.
	RetryInitialDelay time.Duration

	// RetryBackoffMultiplier is the exponential backoff multiplier.
	RetryBackoffMultiplier float64

	// Timeout bounds a single execution including retries. Zero means no bound.
	Timeout time.Duration

	// Retryable selects which errors are retried. Nil retries nothing.
	Retryable func(error) bool
}

// DefaultExecutorConfig returns a configuration with sensible defaults.
func DefaultExecutorConfig() ExecutorConfig {
	return ExecutorConfig{
		CircuitBreakerThreshold: 5,
		CircuitBreakerTimeout:   30 * time.Second,
		RetryMaxAttempts:        3,
		RetryInitialDelay:       200 * time.Millisecond,
		RetryBackoffMultiplier:  2.0,
		Timeout:                 10 * time.Second,
	}
}

// ConfigFrom maps router resilience settings to an executor configuration.
func ConfigFrom(r domainconfig.ResilienceConfig) ExecutorConfig {
	cfg := DefaultExecutorConfig()
	cfg.CircuitBreakerEnabled = r.CircuitBreaker.Enabled
	if r.CircuitBreaker.Threshold > 0 {
		cfg.CircuitBreakerThreshold = r.CircuitBreaker.Threshold
	}
	if r.CircuitBreaker.Timeout > 0 {
		cfg.CircuitBreakerTimeout = r.CircuitBreaker.Timeout.Duration()
	}
	if r.Retry.MaxAttempts > 0 {
		cfg.RetryMaxAttempts = r.Retry.MaxAttempts
	}
	if r.Retry.InitialDelay > 0 {
		cfg.RetryInitialDelay = r.Retry.InitialDelay.Duration()
	}
	if r.Retry.Multiplier > 0 {
		cfg.RetryBackoffMultiplier = r.Retry.Multiplier
	}
	if r.ToolTimeout > 0 {
		cfg.Timeout = r.ToolTimeout.Duration()
	}
	return cfg
}

// Executor runs calls returning T with resilience patterns applied.
// Composition order: Bulkhead → Timeout → Circuit Breaker → Retry.
type Executor[T any] struct {
	bulkhead  bulkhead.Bulkhead[T]
	breaker   circuitbreaker.CircuitBreaker[T]
	retry     retry.Retry[T]
	retryable func(error) bool
	timeout   time.Duration
}

// NewExecutor creates a new resilient executor.
func NewExecutor[T any](config ExecutorConfig) *Executor[T] {
	threshold := config.CircuitBreakerThreshold
	if threshold <= 0 {
		threshold = 5
	}
	attempts := config.RetryMaxAttempts
	if attempts <= 0 {
		attempts = 1
	}

	e := &Executor[T]{
		retryable: config.Retryable,
		timeout:   config.Timeout,
		retry: retry.New[T](retry.Config{
			MaxAttempts:        attempts,
			InitialDelay:       config.RetryInitialDelay,
			BackoffPolicy:      retry.BackoffExponential,
			Multiplier:         config.RetryBackoffMultiplier,
			NonRetryableErrors: []error{errPermanent},
		}),
	}
	if config.MaxConcurrent > 0 {
		e.bulkhead = bulkhead.New[T](bulkhead.Config{
			MaxConcurrent: config.MaxConcurrent,
		})
	}
	if config.CircuitBreakerEnabled {
		e.breaker = circuitbreaker.New[T](circuitbreaker.Config{
			MaxRequests: 1,
			Interval:    config.CircuitBreakerTimeout,
			Timeout:     config.CircuitBreakerTimeout,
			ReadyToTrip: func(counts circuitbreaker.Counts) bool {
				return counts.ConsecutiveFailures >= uint32(threshold) // #nosec G115 -- bounds checked above
			},
		})
	}
	return e
}

// Execute runs fn. Errors accepted by the Retryable predicate are retried
// with exponential backoff; every other error is returned unchanged after
// the first attempt.
func (e *Executor[T]) Execute(ctx context.Context, fn func(context.Context) (T, error)) (T, error) {
	run := func(ctx context.Context) (T, error) {
		if e.timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, e.timeout)
			defer cancel()
		}
		if e.breaker != nil {
			return e.breaker.Execute(ctx, func(ctx context.Context) (T, error) {
				return e.attempt(ctx, fn)
			})
		}
		return e.attempt(ctx, fn)
	}
	if e.bulkhead != nil {
		return e.bulkhead.Execute(ctx, run)
	}
	return run(ctx)
}

func (e *Executor[T]) attempt(ctx context.Context, fn func(context.Context) (T, error)) (T, error) {
	if e.retryable == nil {
		return fn(ctx)
	}

	var permanent error
	result, err := e.retry.Do(ctx, func(ctx context.Context) (T, error) {
		v, err := fn(ctx)
		if err != nil && !e.retryable(err) {
			permanent = err
			return v, errPermanent
		}
		return v, err
	})
	if permanent != nil {
		var zero T
		return zero, permanent
	}
	return result, err
}

// CircuitBreakerState names the circuit breaker state. A disabled breaker
// reports closed.
func (e *Executor[T]) CircuitBreakerState() string {
	if e.breaker == nil {
		return "closed"
	}
	return e.breaker.State().String()
}

// RetryOn returns a predicate that accepts errors matching any target.
func RetryOn(targets ...error) func(error) bool {
	return func(err error) bool {
		for _, t := range targets {
			if errors.Is(err, t) {
				return true
			}
		}
		return false
	}
}
