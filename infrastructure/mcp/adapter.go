package mcp

import (
	"context"
	"encoding/json"

	"github.com/felixgeelhaar/agent-router/domain/tool"
)

// proxyTool forwards execution of a remote MCP tool through an invoker.
type proxyTool struct {
	def     ToolDef
	invoker tool.Invoker
}

// NewProxyTool wraps a remote tool definition as a local tool.
func NewProxyTool(def ToolDef, invoker tool.Invoker) tool.Tool {
	return &proxyTool{def: def, invoker: invoker}
}

func (t *proxyTool) Name() string {
	return t.def.Name
}

func (t *proxyTool) Description() string {
	return t.def.Description
}

func (t *proxyTool) InputSchema() tool.Schema {
	if len(t.def.InputSchema) == 0 {
		return tool.EmptySchema()
	}
	return tool.NewSchema(t.def.InputSchema)
}

// ReadOnly is false: a remote tool's side effects are unknown.
func (t *proxyTool) ReadOnly() bool {
	return false
}

func (t *proxyTool) Execute(ctx context.Context, input json.RawMessage) (tool.Result, error) {
	return t.invoker.Invoke(ctx, t.def.Name, input)
}

// DefFromTool converts a local tool to an MCP tool definition.
func DefFromTool(t tool.Tool) ToolDef {
	def := ToolDef{
		Name:        t.Name(),
		Description: t.Description(),
	}
	if schema := t.InputSchema(); !schema.IsEmpty() {
		def.InputSchema = schema.Raw()
	}
	return def
}
