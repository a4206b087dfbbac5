package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/agent-router/application"
)

// chatOptions holds options for the chat command.
type chatOptions struct {
	conversationID string
	userID         string
	jsonOutput     bool
	verbose        bool
}

// newChatCmd creates the chat command.
func (a *App) newChatCmd() *cobra.Command {
	opts := &chatOptions{}

	cmd := &cobra.Command{
		Use:   "chat [message]",
		Short: "Send messages to the router",
		Long: `Send a message to the router and print the answer.

With a message argument one turn is processed. Without one, an interactive
session reads one message per line until EOF or "/exit".

Examples:
  # One turn
  agent-router chat "帮我制定一个三天的北京旅行计划"

  # Continue a stored conversation
  agent-router chat -c router.yaml --conversation c1 "然后推荐酒店"

  # Interactive session
  agent-router chat

  # Full response as JSON
  agent-router chat --json "你好"`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := a.runtime(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = rt.Close(context.Background()) }()

			if opts.conversationID == "" {
				opts.conversationID = uuid.NewString()
			}
			if len(args) > 0 {
				return a.chatTurn(cmd.Context(), rt.Engine, opts, args[0])
			}
			return a.chatSession(cmd.Context(), rt.Engine, opts)
		},
	}

	cmd.Flags().StringVar(&opts.conversationID, "conversation", "", "Conversation id (default: a new one)")
	cmd.Flags().StringVar(&opts.userID, "user", "", "User id")
	cmd.Flags().BoolVar(&opts.jsonOutput, "json", false, "Output full responses as JSON")
	cmd.Flags().BoolVarP(&opts.verbose, "verbose", "v", false, "Show state, confidence and tool calls")

	return cmd
}

// chatSession reads messages line by line.
func (a *App) chatSession(ctx context.Context, engine *application.Engine, opts *chatOptions) error {
	if !opts.jsonOutput {
		fmt.Fprintf(a.stdout, "Conversation %s. Type /exit to quit.\n", opts.conversationID)
	}

	scanner := bufio.NewScanner(a.stdin)
	for {
		if !opts.jsonOutput {
			fmt.Fprint(a.stdout, "> ")
		}
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
			continue
		case "/exit", "/quit":
			return nil
		}
		if err := a.chatTurn(ctx, engine, opts, line); err != nil {
			return err
		}
		if ctx.Err() != nil {
			return nil
		}
	}
	if !opts.jsonOutput {
		fmt.Fprintln(a.stdout)
	}
	return scanner.Err()
}

// chatTurn processes one message and prints the response.
func (a *App) chatTurn(ctx context.Context, engine *application.Engine, opts *chatOptions, message string) error {
	resp := engine.ProcessMessage(ctx, opts.conversationID, message, opts.userID)

	if opts.jsonOutput {
		enc := json.NewEncoder(a.stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(resp)
	}

	fmt.Fprintln(a.stdout, resp.Response)
	if !opts.verbose {
		return nil
	}

	fmt.Fprintf(a.stdout, "  State: %s\n", resp.State)
	fmt.Fprintf(a.stdout, "  Confidence: %.2f\n", resp.Confidence)
	if resp.Intent != nil {
		fmt.Fprintf(a.stdout, "  Intent: %s\n", resp.Intent.Type)
	}
	if resp.Plan != nil && resp.Plan.Len() > 1 {
		fmt.Fprintf(a.stdout, "  Subtasks: %d\n", resp.Plan.Len())
		for _, st := range resp.Plan.Ordered() {
			fmt.Fprintf(a.stdout, "    - [%s] %s (%s)\n", st.ID, st.Description, st.Specialist)
		}
	}
	for _, call := range resp.ToolCalls {
		status := "ok"
		if call.Error != "" {
			status = call.Error
		}
		fmt.Fprintf(a.stdout, "  Tool: %s %s: %s\n", call.Kind, call.Name, status)
	}
	if resp.Error != "" {
		fmt.Fprintf(a.stdout, "  Error: %s\n", resp.Error)
	}
	return nil
}
