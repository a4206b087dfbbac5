package resilience

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	domainconfig "github.com/felixgeelhaar/agent-router/domain/config"
)

var (
	errTransient = errors.New("transient")
	errFatal     = errors.New("fatal")
)

func TestDefaultExecutorConfig(t *testing.T) {
	config := DefaultExecutorConfig()

	if config.RetryMaxAttempts != 3 {
		t.Errorf("RetryMaxAttempts = %d, want 3", config.RetryMaxAttempts)
	}
	if config.CircuitBreakerEnabled {
		t.Error("circuit breaker should be disabled by default")
	}
	if config.Retryable != nil {
		t.Error("nothing should be retryable by default")
	}
}

func TestConfigFrom(t *testing.T) {
	cfg := domainconfig.Default()
	cfg.Resilience.CircuitBreaker.Enabled = true
	cfg.Resilience.Retry.MaxAttempts = 4
	cfg.Resilience.ToolTimeout = domainconfig.Duration(2 * time.Second)

	got := ConfigFrom(cfg.Resilience)
	if !got.CircuitBreakerEnabled {
		t.Error("CircuitBreakerEnabled = false")
	}
	if got.RetryMaxAttempts != 4 {
		t.Errorf("RetryMaxAttempts = %d, want 4", got.RetryMaxAttempts)
	}
	if got.Timeout != 2*time.Second {
		t.Errorf("Timeout = %v, want 2s", got.Timeout)
	}
}

func TestExecutor_RetriesRetryableErrors(t *testing.T) {
	e := NewExecutorWithOptions[string](
		WithRetry(3, time.Millisecond),
		WithRetryable(RetryOn(errTransient)),
	)

	var calls atomic.Int32
	got, err := e.Execute(context.Background(), func(ctx context.Context) (string, error) {
		if calls.Add(1) < 3 {
			return "", errTransient
		}
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if got != "ok" {
		t.Errorf("Execute() = %q, want ok", got)
	}
	if calls.Load() != 3 {
		t.Errorf("calls = %d, want 3", calls.Load())
	}
}

func TestExecutor_DoesNotRetryOtherErrors(t *testing.T) {
	e := NewExecutorWithOptions[string](
		WithRetry(3, time.Millisecond),
		WithRetryable(RetryOn(errTransient)),
	)

	var calls atomic.Int32
	_, err := e.Execute(context.Background(), func(ctx context.Context) (string, error) {
		calls.Add(1)
		return "", errFatal
	})
	if !errors.Is(err, errFatal) {
		t.Errorf("Execute() error = %v, want errFatal", err)
	}
	if errors.Is(err, errPermanent) {
		t.Error("internal marker leaked to caller")
	}
	if calls.Load() != 1 {
		t.Errorf("calls = %d, want 1", calls.Load())
	}
}

func TestExecutor_NoRetryWithoutPredicate(t *testing.T) {
	e := NewExecutorWithOptions[int](WithRetry(5, time.Millisecond))

	var calls atomic.Int32
	_, err := e.Execute(context.Background(), func(ctx context.Context) (int, error) {
		calls.Add(1)
		return 0, errTransient
	})
	if !errors.Is(err, errTransient) {
		t.Errorf("Execute() error = %v", err)
	}
	if calls.Load() != 1 {
		t.Errorf("calls = %d, want 1", calls.Load())
	}
}

func TestExecutor_Timeout(t *testing.T) {
	e := NewExecutorWithOptions[int](WithTimeout(20 * time.Millisecond))

	start := time.Now()
	_, err := e.Execute(context.Background(), func(ctx context.Context) (int, error) {
		<-ctx.Done()
		return 0, ctx.Err()
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Execute() error = %v, want deadline exceeded", err)
	}
	if time.Since(start) > time.Second {
		t.Error("timeout was not applied")
	}
}

func TestExecutor_CircuitBreakerState(t *testing.T) {
	if state := NewExecutorWithOptions[int]().CircuitBreakerState(); state != "closed" {
		t.Errorf("disabled CircuitBreakerState() = %v, want closed", state)
	}

	e := NewExecutorWithOptions[int](WithCircuitBreaker(5, time.Minute))
	if state := e.CircuitBreakerState(); state != "closed" {
		t.Errorf("initial CircuitBreakerState() = %v, want closed", state)
	}
}

func TestExecutor_Bulkhead(t *testing.T) {
	e := NewExecutorWithOptions[int](WithMaxConcurrent(2))

	got, err := e.Execute(context.Background(), func(ctx context.Context) (int, error) {
		return 42, nil
	})
	if err != nil || got != 42 {
		t.Errorf("Execute() = %d, %v", got, err)
	}
}
