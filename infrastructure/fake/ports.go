package fake

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/felixgeelhaar/agent-router/domain/search"
	"github.com/felixgeelhaar/agent-router/domain/tool"
	"github.com/felixgeelhaar/agent-router/domain/tooling"
)

// Dispatcher is a recording specialist.Dispatcher. Outputs are keyed by
// kind; kinds without an output fail with tooling.ErrToolUnavailable.
type Dispatcher struct {
	mu      sync.Mutex
	outputs map[tooling.Kind]string
	calls   []DispatchCall
}

// DispatchCall records one dispatch.
type DispatchCall struct {
	Kind tooling.Kind
	Args tooling.Args
}

// NewDispatcher creates a dispatcher answering the given kinds.
func NewDispatcher(outputs map[tooling.Kind]string) *Dispatcher {
	if outputs == nil {
		outputs = map[tooling.Kind]string{}
	}
	return &Dispatcher{outputs: outputs}
}

// DispatchTool implements specialist.Dispatcher.
func (d *Dispatcher) DispatchTool(_ context.Context, kind tooling.Kind, args tooling.Args) tooling.Call {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, DispatchCall{Kind: kind, Args: args})

	out, ok := d.outputs[kind]
	if !ok {
		return tooling.Call{Kind: kind, Summary: string(kind) + " unavailable", Error: tooling.ErrToolUnavailable.Error()}
	}
	return tooling.Call{
		Kind:    kind,
		Summary: fmt.Sprintf("%s: %s", kind, args.Query),
		Output:  out,
		Items:   []tooling.Item{{Ref: string(kind), Content: out, Score: 1}},
	}
}

// Calls returns every dispatch so far.
func (d *Dispatcher) Calls() []DispatchCall {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]DispatchCall(nil), d.calls...)
}

// Invoker is a recording tool.Invoker and tool.Lister.
type Invoker struct {
	mu       sync.Mutex
	handlers map[string]func(json.RawMessage) (string, error)
	calls    []Invocation
	delay    time.Duration
}

// Invocation records one tool call.
type Invocation struct {
	Name string
	Args json.RawMessage
}

// NewInvoker creates an invoker without tools.
func NewInvoker() *Invoker {
	return &Invoker{handlers: make(map[string]func(json.RawMessage) (string, error))}
}

// Handle registers a tool.
func (i *Invoker) Handle(name string, fn func(json.RawMessage) (string, error)) *Invoker {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.handlers[name] = fn
	return i
}

// WithDelay holds every invocation back by d.
func (i *Invoker) WithDelay(d time.Duration) *Invoker {
	i.delay = d
	return i
}

// Invoke implements tool.Invoker.
func (i *Invoker) Invoke(ctx context.Context, name string, args json.RawMessage) (tool.Result, error) {
	i.mu.Lock()
	i.calls = append(i.calls, Invocation{Name: name, Args: append(json.RawMessage(nil), args...)})
	fn, ok := i.handlers[name]
	delay := i.delay
	i.mu.Unlock()

	if delay > 0 {
		select {
		case <-ctx.Done():
			return tool.Result{}, tool.NewError(name, ctx.Err())
		case <-time.After(delay):
		}
	}
	if !ok {
		return tool.Result{}, fmt.Errorf("%w: %s", tool.ErrToolNotFound, name)
	}
	out, err := fn(args)
	if err != nil {
		return tool.Result{}, tool.NewError(name, err)
	}
	return tool.TextResult(out), nil
}

// Tools implements tool.Lister.
func (i *Invoker) Tools(context.Context) ([]string, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	names := make([]string, 0, len(i.handlers))
	for name := range i.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// Invocations returns every call so far.
func (i *Invoker) Invocations() []Invocation {
	i.mu.Lock()
	defer i.mu.Unlock()
	return append([]Invocation(nil), i.calls...)
}

// Searcher is a canned search.Searcher.
type Searcher struct {
	mu      sync.Mutex
	results []search.Result
	err     error
	queries []string
}

// NewSearcher returns the given results for every query.
func NewSearcher(results ...search.Result) *Searcher {
	return &Searcher{results: results}
}

// Failing returns a searcher whose every query fails with err.
func Failing(err error) *Searcher {
	return &Searcher{err: err}
}

// Query implements search.Searcher.
func (s *Searcher) Query(_ context.Context, text string) ([]search.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queries = append(s.queries, text)
	if s.err != nil {
		return nil, fmt.Errorf("%w: %v", search.ErrSearchFailed, s.err)
	}
	return append([]search.Result(nil), s.results...), nil
}

// Queries returns every query received.
func (s *Searcher) Queries() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.queries...)
}

// Echo returns a searcher whose single result repeats the query.
func Echo() search.Searcher {
	return echo{}
}

type echo struct{}

func (echo) Query(_ context.Context, text string) ([]search.Result, error) {
	return []search.Result{{
		Title:   "Result for " + strings.TrimSpace(text),
		Snippet: text,
		URL:     "https://example.invalid/search",
	}}, nil
}

var (
	_ tool.Invoker    = (*Invoker)(nil)
	_ tool.Lister     = (*Invoker)(nil)
	_ search.Searcher = (*Searcher)(nil)
)
