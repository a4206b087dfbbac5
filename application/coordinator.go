package application

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/felixgeelhaar/agent-router/domain/assembly"
	"github.com/felixgeelhaar/agent-router/domain/event"
	"github.com/felixgeelhaar/agent-router/domain/intent"
	"github.com/felixgeelhaar/agent-router/domain/plan"
	"github.com/felixgeelhaar/agent-router/domain/specialist"
	"github.com/felixgeelhaar/agent-router/domain/telemetry"
	"github.com/felixgeelhaar/agent-router/domain/tooling"
	"github.com/felixgeelhaar/agent-router/infrastructure/logging"
	"github.com/felixgeelhaar/agent-router/infrastructure/observability"
	"github.com/felixgeelhaar/agent-router/infrastructure/resilience"
	infraspec "github.com/felixgeelhaar/agent-router/infrastructure/specialist"
)

// CoordinatorConfig bounds subtask execution.
type CoordinatorConfig struct {
	MaxConcurrent  int
	SubtaskTimeout time.Duration
	Floor          float64
	Ports          resilience.ExecutorConfig
}

// DefaultCoordinatorConfig returns the default execution bounds.
func DefaultCoordinatorConfig() CoordinatorConfig {
	return CoordinatorConfig{
		MaxConcurrent:  5,
		SubtaskTimeout: 30 * time.Second,
		Floor:          0.3,
		Ports:          resilience.DefaultExecutorConfig(),
	}
}

// Coordinator executes task plans against the specialist registry and
// dispatches capability port calls on their behalf.
type Coordinator struct {
	config   CoordinatorConfig
	fallback specialist.Specialist
	ports    Ports

	mu       sync.RWMutex
	registry specialist.Registry

	portsMu sync.Mutex
	guards  map[tooling.Kind]*resilience.Executor[tooling.Call]

	tracer  telemetry.Tracer
	metrics telemetry.Metrics
}

// NewCoordinator creates a coordinator. fallback handles subtasks no
// registered specialist claims.
func NewCoordinator(config CoordinatorConfig, registry specialist.Registry, fallback specialist.Specialist, ports Ports) *Coordinator {
	if config.MaxConcurrent <= 0 {
		config.MaxConcurrent = 5
	}
	if fallback == nil {
		fallback = infraspec.NewFallback(nil)
	}
	return &Coordinator{
		config:   config,
		fallback: fallback,
		ports:    ports,
		registry: registry,
		guards:   make(map[tooling.Kind]*resilience.Executor[tooling.Call]),
		tracer:   observability.NoopTracer{},
		metrics:  observability.NoopMetrics{},
	}
}

// Instrument sets the tracer and metrics sink.
func (c *Coordinator) Instrument(tracer telemetry.Tracer, metrics telemetry.Metrics) {
	if tracer != nil {
		c.tracer = tracer
	}
	if metrics != nil {
		c.metrics = metrics
	}
}

// Register adds a specialist. It becomes visible to the next dispatch
// cycle; subtasks already running keep their assignment.
func (c *Coordinator) Register(s specialist.Specialist) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.registry.Register(s)
}

// Specialists returns a snapshot of the registry.
func (c *Coordinator) Specialists() []specialist.Specialist {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.registry.All()
}

// Execution is the shared input of every subtask in a plan.
type Execution struct {
	Request string
	Intent  intent.Intent
	Context assembly.Context
}

// Execute runs every subtask of p. A subtask starts only after all of its
// dependencies finished, at most MaxConcurrent run at once, and failures
// are folded into the returned results. On cancellation, subtasks not yet
// started are reported as failed. Each call has its own pool, so plans of
// different conversations never compete for slots.
func (c *Coordinator) Execute(ctx context.Context, p plan.TaskPlan, x Execution) map[string]plan.Result {
	results := make(map[string]plan.Result, p.Len())
	if p.Len() == 0 {
		return results
	}
	pool := resilience.NewExecutorWithOptions[plan.Result](
		resilience.WithMaxConcurrent(c.config.MaxConcurrent),
		resilience.WithTimeout(0),
	)

	waiting := make(map[string]int, p.Len())
	dependents := make(map[string][]string)
	var ready []string
	for _, id := range p.Order {
		st := p.Subtasks[id]
		n := 0
		for _, dep := range st.DependsOn {
			if _, ok := p.Subtasks[dep]; ok {
				n++
				dependents[dep] = append(dependents[dep], id)
			}
		}
		waiting[id] = n
		if n == 0 {
			ready = append(ready, id)
		}
	}
	rank := make(map[string]int, len(p.Order))
	for i, id := range p.Order {
		rank[id] = i
	}

	done := make(chan plan.Result)
	running := 0
	cancelled := false
	for len(results) < p.Len() {
		if ctx.Err() != nil {
			cancelled = true
		}
		if !cancelled && len(ready) > 0 && running < c.config.MaxConcurrent {
			snapshot := c.Specialists()
			for len(ready) > 0 && running < c.config.MaxConcurrent {
				st := p.Subtasks[ready[0]]
				ready = ready[1:]
				deps := dependencyResults(st, results)
				running++
				go func() {
					done <- c.run(ctx, pool, snapshot, st, deps, x)
				}()
			}
		}
		if running == 0 {
			// Only reachable after cancellation; nothing more can start.
			break
		}

		select {
		case r := <-done:
			running--
			results[r.SubtaskID] = r
			for _, next := range dependents[r.SubtaskID] {
				waiting[next]--
				if waiting[next] == 0 {
					ready = insertByRank(ready, next, rank)
				}
			}
		case <-ctx.Done():
			if !cancelled {
				cancelled = true
				logging.Warn().
					Add(logging.Component("coordinator")).
					Add(logging.Count("running", running)).
					Add(logging.ErrorField(ctx.Err())).
					Msg("turn cancelled during execution")
			}
			// Running subtasks observe the same context and report promptly.
			r := <-done
			running--
			results[r.SubtaskID] = r
		}
	}

	for _, id := range p.Order {
		if _, ok := results[id]; !ok {
			st := p.Subtasks[id]
			results[id] = failure(st, "", fmt.Errorf("%w: not started: %v", plan.ErrSubtaskFailure, context.Cause(ctx)), nil)
		}
	}
	return results
}

func dependencyResults(st plan.Subtask, results map[string]plan.Result) []plan.Result {
	var out []plan.Result
	for _, dep := range st.DependsOn {
		if r, ok := results[dep]; ok && !r.Failed() {
			out = append(out, r)
		}
	}
	return out
}

func insertByRank(queue []string, id string, rank map[string]int) []string {
	i := len(queue)
	for i > 0 && rank[queue[i-1]] > rank[id] {
		i--
	}
	queue = append(queue, "")
	copy(queue[i+1:], queue[i:])
	queue[i] = id
	return queue
}

// choose re-scores the subtask against the snapshot. The planner's
// assignment is a hint; a better claim made since planning wins.
func (c *Coordinator) choose(snapshot []specialist.Specialist, st plan.Subtask) specialist.Specialist {
	s, _, err := specialist.Select(snapshot, st, c.config.Floor)
	if err == nil {
		return s
	}
	logging.Debug().
		Add(logging.Component("coordinator")).
		Add(logging.SubtaskID(st.ID)).
		Msg("no specialist above floor, using fallback")
	return c.fallback
}

func (c *Coordinator) run(ctx context.Context, pool *resilience.Executor[plan.Result], snapshot []specialist.Specialist, st plan.Subtask, deps []plan.Result, x Execution) plan.Result {
	start := time.Now()
	spec := c.choose(snapshot, st)

	ctx, span := c.tracer.Start(ctx, "subtask",
		telemetry.String("subtask.id", st.ID),
		telemetry.String("specialist", spec.Name()),
	)
	defer span.End()

	tools := &subtaskTools{next: c}
	in := specialist.Input{
		Subtask:      st,
		Request:      x.Request,
		Intent:       x.Intent,
		Context:      x.Context,
		Dependencies: deps,
		Tools:        tools,
	}

	r, err := pool.Execute(ctx, func(ctx context.Context) (plan.Result, error) {
		return c.process(ctx, spec, in)
	})
	if err != nil {
		span.RecordError(err)
		r = failure(st, spec.Name(), err, tools.calls())
	} else {
		r.SubtaskID = st.ID
		if r.Specialist == "" {
			r.Specialist = spec.Name()
		}
		r.Confidence = clamp(r.Confidence)
	}

	d := time.Since(start)
	span.SetAttributes(telemetry.Float64("confidence", r.Confidence), telemetry.Bool("failed", r.Failed()))
	c.metrics.SubtaskFinished(ctx, r.Specialist, r.Failed(), d)
	record(ctx, event.TypeSubtaskCompleted, event.SubtaskCompletedPayload{
		SubtaskID:  r.SubtaskID,
		Specialist: r.Specialist,
		Confidence: r.Confidence,
		Error:      r.Error,
		Duration:   d,
	})

	var log *logging.LogEvent
	if r.Failed() {
		log = logging.Warn().Add(logging.Str("error", r.Error))
	} else {
		log = logging.Debug()
	}
	log.Add(logging.Component("coordinator")).
		Add(logging.SubtaskID(st.ID)).
		Add(logging.Specialist(r.Specialist)).
		Add(logging.Confidence(r.Confidence)).
		Add(logging.Duration(d)).
		Msg("subtask finished")
	return r
}

// process runs the specialist under the subtask deadline. The result is
// abandoned if the deadline passes first.
func (c *Coordinator) process(ctx context.Context, spec specialist.Specialist, in specialist.Input) (plan.Result, error) {
	if c.config.SubtaskTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.config.SubtaskTimeout)
		defer cancel()
	}

	type outcome struct {
		result plan.Result
		err    error
	}
	ch := make(chan outcome, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				ch <- outcome{err: fmt.Errorf("%w: panic: %v", plan.ErrSubtaskFailure, p)}
			}
		}()
		r, err := spec.Process(ctx, in)
		ch <- outcome{result: r, err: err}
	}()

	select {
	case o := <-ch:
		if o.err != nil {
			if errors.Is(o.err, context.DeadlineExceeded) {
				return plan.Result{}, fmt.Errorf("%w: %v", plan.ErrSubtaskTimeout, o.err)
			}
			if !errors.Is(o.err, plan.ErrSubtaskFailure) {
				o.err = fmt.Errorf("%w: %v", plan.ErrSubtaskFailure, o.err)
			}
			return plan.Result{}, o.err
		}
		return o.result, nil
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return plan.Result{}, fmt.Errorf("%w after %s", plan.ErrSubtaskTimeout, c.config.SubtaskTimeout)
		}
		return plan.Result{}, fmt.Errorf("%w: %v", plan.ErrSubtaskFailure, ctx.Err())
	}
}

func failure(st plan.Subtask, name string, err error, calls []tooling.Call) plan.Result {
	return plan.Result{
		SubtaskID:  st.ID,
		Specialist: name,
		Content:    fmt.Sprintf("（子任务「%s」未能完成）", st.Description),
		Confidence: 0,
		ToolCalls:  calls,
		Error:      err.Error(),
	}
}

func clamp(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}

// DispatchTool invokes one capability port under the port's timeout and
// circuit breaker. It never fails; errors are reported on the call.
func (c *Coordinator) DispatchTool(ctx context.Context, kind tooling.Kind, args tooling.Args) tooling.Call {
	ctx, span := c.tracer.Start(ctx, "tool", telemetry.String("tool.kind", string(kind)))
	defer span.End()

	call, err := c.guard(kind).Execute(ctx, func(ctx context.Context) (tooling.Call, error) {
		return c.ports.call(ctx, kind, args)
	})
	if call.Kind == "" {
		call.Kind = kind
	}
	if err != nil {
		call.Error = err.Error()
		call.Items = nil
		span.RecordError(err)
	}

	c.metrics.ToolCalled(ctx, string(kind), call.Failed())
	record(ctx, event.TypeToolCalled, event.ToolCalledPayload{
		Kind:    string(call.Kind),
		Name:    call.Name,
		Summary: call.Summary,
		Error:   call.Error,
	})

	var log *logging.LogEvent
	if call.Failed() {
		log = logging.Warn().Add(logging.Str("error", call.Error))
	} else {
		log = logging.Debug()
	}
	log.Add(logging.Component("dispatch")).
		Add(logging.ToolKind(kind)).
		Add(logging.ToolName(call.Name)).
		Msg("tool called")
	return call
}

func (c *Coordinator) guard(kind tooling.Kind) *resilience.Executor[tooling.Call] {
	c.portsMu.Lock()
	defer c.portsMu.Unlock()
	g, ok := c.guards[kind]
	if !ok {
		cfg := c.config.Ports
		cfg.MaxConcurrent = 0
		cfg.Retryable = nil
		g = resilience.NewExecutor[tooling.Call](cfg)
		c.guards[kind] = g
	}
	return g
}

// BreakerStates reports the circuit breaker state of every port used so far.
func (c *Coordinator) BreakerStates() map[tooling.Kind]string {
	c.portsMu.Lock()
	defer c.portsMu.Unlock()
	out := make(map[tooling.Kind]string, len(c.guards))
	for k, g := range c.guards {
		out[k] = g.CircuitBreakerState()
	}
	return out
}

// subtaskTools records the calls one subtask makes so they survive a
// timeout of the subtask itself.
type subtaskTools struct {
	next specialist.Dispatcher

	mu  sync.Mutex
	log []tooling.Call
}

func (t *subtaskTools) DispatchTool(ctx context.Context, kind tooling.Kind, args tooling.Args) tooling.Call {
	call := t.next.DispatchTool(ctx, kind, args)
	t.mu.Lock()
	t.log = append(t.log, call)
	t.mu.Unlock()
	return call
}

func (t *subtaskTools) calls() []tooling.Call {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]tooling.Call(nil), t.log...)
}
