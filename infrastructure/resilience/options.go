package resilience

import "time"

// Option configures the executor.
type Option func(*ExecutorConfig)

// WithMaxConcurrent bounds concurrent executions with a bulkhead.
func WithMaxConcurrent(n int) Option {
	return func(c *ExecutorConfig) {
		c.MaxConcurrent = n
	}
}

// WithCircuitBreaker enables the circuit breaker with the given threshold and open duration.
func WithCircuitBreaker(threshold int, timeout time.Duration) Option {
	return func(c *ExecutorConfig) {
		c.CircuitBreakerEnabled = true
		c.CircuitBreakerThreshold = threshold
		c.CircuitBreakerTimeout = timeout
	}
}

// WithRetry sets the attempt count and initial backoff delay.
func WithRetry(attempts int, initialDelay time.Duration) Option {
	return func(c *ExecutorConfig) {
		c.RetryMaxAttempts = attempts
		c.RetryInitialDelay = initialDelay
	}
}

// WithRetryable selects which errors are retried.
func WithRetryable(fn func(error) bool) Option {
	return func(c *ExecutorConfig) {
		c.Retryable = fn
	}
}

// WithTimeout bounds each execution.
func WithTimeout(d time.Duration) Option {
	return func(c *ExecutorConfig) {
		c.Timeout = d
	}
}

// NewExecutorWithOptions creates an executor from the defaults and the given options.
func NewExecutorWithOptions[T any](opts ...Option) *Executor[T] {
	config := DefaultExecutorConfig()
	for _, opt := range opts {
		opt(&config)
	}
	return NewExecutor[T](config)
}
