// Package memory provides in-memory implementations of the router's storage ports.
package memory

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/felixgeelhaar/agent-router/domain/tool"
)

// ToolRegistry is an in-memory tool.Registry that also serves as the
// in-process command-tool invoker.
type ToolRegistry struct {
	tools map[string]tool.Tool
	mu    sync.RWMutex
}

// NewToolRegistry creates a registry holding the given tools.
func NewToolRegistry(tools ...tool.Tool) (*ToolRegistry, error) {
	r := &ToolRegistry{
		tools: make(map[string]tool.Tool),
	}
	for _, t := range tools {
		if err := r.Register(t); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds a tool to the registry.
func (r *ToolRegistry) Register(t tool.Tool) error {
	if t == nil || t.Name() == "" {
		return tool.ErrEmptyName
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[t.Name()]; exists {
		return tool.ErrToolExists
	}

	r.tools[t.Name()] = t
	return nil
}

// Get retrieves a tool by name.
func (r *ToolRegistry) Get(name string) (tool.Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.tools[name]
	return t, ok
}

// List returns all registered tools in name order.
func (r *ToolRegistry) List() []tool.Tool {
	names := r.Names()

	r.mu.RLock()
	defer r.mu.RUnlock()

	tools := make([]tool.Tool, 0, len(names))
	for _, name := range names {
		if t, ok := r.tools[name]; ok {
			tools = append(tools, t)
		}
	}
	return tools
}

// Names returns all registered tool names, sorted.
func (r *ToolRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Invoke runs the named tool. Every failure is reported as *tool.Error.
func (r *ToolRegistry) Invoke(ctx context.Context, name string, args json.RawMessage) (tool.Result, error) {
	t, ok := r.Get(name)
	if !ok {
		return tool.Result{}, tool.NewError(name, tool.ErrToolNotFound)
	}

	start := time.Now()
	result, err := t.Execute(ctx, args)
	if err != nil {
		var te *tool.Error
		if errors.As(err, &te) {
			return tool.Result{}, te
		}
		return tool.Result{}, tool.NewError(name, err)
	}
	result.Duration = time.Since(start)
	return result, nil
}

// Tools lists the invocable tool names.
func (r *ToolRegistry) Tools(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return r.Names(), nil
}

var (
	_ tool.Registry = (*ToolRegistry)(nil)
	_ tool.Invoker  = (*ToolRegistry)(nil)
	_ tool.Lister   = (*ToolRegistry)(nil)
)
