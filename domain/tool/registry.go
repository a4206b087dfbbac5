package tool

import (
	"context"
	"encoding/json"
)

// Registry defines the interface for tool registration and lookup.
// Implementations are in infrastructure.
type Registry interface {
	// Register adds a tool to the registry.
	Register(tool Tool) error

	// Get retrieves a tool by name.
	Get(name string) (Tool, bool)

	// List returns all registered tools in name order.
	List() []Tool

	// Names returns all registered tool names.
	Names() []string
}

// Invoker is the command-tool capability port. Failures are reported as *Error.
type Invoker interface {
	Invoke(ctx context.Context, name string, args json.RawMessage) (Result, error)
}

// Lister is implemented by invokers that can enumerate their tools.
type Lister interface {
	Tools(ctx context.Context) ([]string, error)
}
