package cli

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/agent-router/application"
	"github.com/felixgeelhaar/agent-router/domain/tool"
	"github.com/felixgeelhaar/agent-router/infrastructure/mcp"
	storemem "github.com/felixgeelhaar/agent-router/infrastructure/storage/memory"
)

// routeToolName is the MCP tool that runs one router turn.
const routeToolName = "route_message"

// newMCPCmd creates the mcp command.
func (a *App) newMCPCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Serve the router as an MCP server",
		Long: `Serve the router over the Model Context Protocol.

The server exposes the command tools (add, current_time, echo and, when
tools.root_dir is set, file_read) and a route_message tool that runs one
router turn. It speaks stdio unless --http is given.

Examples:
  # stdio transport, for MCP clients that spawn the server
  agent-router mcp -c router.yaml

  # HTTP transport
  agent-router mcp --http :8090`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			rt, err := a.runtime(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = rt.Close(context.Background()) }()

			registry := rt.Tools
			if registry == nil {
				builtin, err := storemem.NewToolRegistry(mcp.BuiltinTools(rt.Config.Tools.RootDir, nil)...)
				if err != nil {
					return err
				}
				registry = builtin
			}

			srv := mcp.NewServer(mcp.ServerConfig{
				Name:         "agent-router",
				Version:      Version,
				Description:  "Multi-agent message router",
				Instructions: "Call route_message with a message to get the router's answer. Reuse conversation_id to continue a conversation.",
				Registry:     registry,
			})
			if err := srv.AddTool(routeTool(rt.Engine)); err != nil {
				return err
			}

			if addr != "" {
				return srv.ServeHTTP(ctx, addr)
			}
			return srv.ServeStdio(ctx)
		},
	}

	cmd.Flags().StringVar(&addr, "http", "", "Serve over HTTP on this address instead of stdio")

	return cmd
}

// routeTool exposes ProcessMessage as a command tool.
func routeTool(engine *application.Engine) tool.Tool {
	return tool.NewBuilder(routeToolName).
		WithDescription("Route a message through the multi-agent router and return its answer").
		WithInputSchema(tool.ObjectSchema(map[string]json.RawMessage{
			"message":         json.RawMessage(`{"type":"string","description":"The user message"}`),
			"conversation_id": json.RawMessage(`{"type":"string","description":"Conversation to continue; a new one when empty"}`),
			"user_id":         json.RawMessage(`{"type":"string"}`),
		}, []string{"message"})).
		WithHandler(func(ctx context.Context, input json.RawMessage) (tool.Result, error) {
			var in struct {
				Message        string `json:"message"`
				ConversationID string `json:"conversation_id"`
				UserID         string `json:"user_id"`
			}
			if err := json.Unmarshal(input, &in); err != nil {
				return tool.Result{}, fmt.Errorf("%w: %v", tool.ErrInvalidInput, err)
			}
			if in.ConversationID == "" {
				in.ConversationID = uuid.NewString()
			}
			resp := engine.ProcessMessage(ctx, in.ConversationID, in.Message, in.UserID)
			out, err := json.Marshal(resp)
			if err != nil {
				return tool.Result{}, err
			}
			return tool.NewResult(out), nil
		}).
		MustBuild()
}
