package llm

import (
	"context"
	"sync/atomic"

	"github.com/felixgeelhaar/agent-router/domain/llm"
	"github.com/felixgeelhaar/agent-router/infrastructure/logging"
	"github.com/felixgeelhaar/agent-router/infrastructure/resilience"
)

// Retrying retries upstream failures of the wrapped completer with
// exponential backoff. Validation errors are returned at once.
type Retrying struct {
	next     llm.Completer
	executor *resilience.Executor[llm.Response]
	calls    atomic.Int64
}

// NewRetrying wraps next with the given executor configuration. The
// retry predicate is always llm.ErrUpstream.
func NewRetrying(next llm.Completer, config resilience.ExecutorConfig) *Retrying {
	config.Retryable = resilience.RetryOn(llm.ErrUpstream)
	return &Retrying{
		next:     next,
		executor: resilience.NewExecutor[llm.Response](config),
	}
}

// Complete implements llm.Completer.
func (r *Retrying) Complete(ctx context.Context, req llm.Request) (llm.Response, error) {
	attempt := 0
	resp, err := r.executor.Execute(ctx, func(ctx context.Context) (llm.Response, error) {
		attempt++
		r.calls.Add(1)
		resp, err := r.next.Complete(ctx, req)
		if err != nil {
			logging.Debug().
				Add(logging.Component("llm")).
				Add(logging.Attempt(attempt)).
				Add(logging.ErrorField(err)).
				Msg("completion attempt failed")
		}
		return resp, err
	})
	if err != nil {
		logging.Warn().
			Add(logging.Component("llm")).
			Add(logging.Attempt(attempt)).
			Add(logging.ErrorField(err)).
			Msg("completion failed")
	}
	return resp, err
}

// Calls returns the number of upstream attempts made so far.
func (r *Retrying) Calls() int64 {
	return r.calls.Load()
}

// CircuitState names the state of the wrapped circuit breaker.
func (r *Retrying) CircuitState() string {
	return r.executor.CircuitBreakerState()
}

var _ llm.Completer = (*Retrying)(nil)
