package cli

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

// newHistoryCmd creates the history command.
func (a *App) newHistoryCmd() *cobra.Command {
	var (
		jsonOutput bool
		turns      bool
	)

	cmd := &cobra.Command{
		Use:   "history <conversation-id>",
		Short: "Show a stored conversation",
		Long: `Show the stored messages of a conversation, or with --turns the turns
rebuilt from the event log.

Examples:
  agent-router history -c router.yaml c1
  agent-router history -c router.yaml --turns --json c1`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			rt, err := a.runtime(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = rt.Close(context.Background()) }()

			var out any
			if turns {
				records, err := rt.Engine.Turns(ctx, args[0])
				if err != nil {
					return err
				}
				if !jsonOutput {
					for _, r := range records {
						fmt.Fprintf(a.stdout, "%s  %-20s %-8.2f %s\n", r.StartedAt.Format("2006-01-02 15:04:05"), r.State, r.Confidence, r.Text)
					}
					return nil
				}
				out = records
			} else {
				st, err := rt.Engine.History(ctx, args[0])
				if err != nil {
					return err
				}
				if !jsonOutput {
					fmt.Fprintf(a.stdout, "Conversation %s (%d turns)\n", st.ID, st.TurnCount)
					for k, v := range st.Preferences {
						fmt.Fprintf(a.stdout, "  preference %s = %s\n", k, v)
					}
					for _, t := range st.Turns {
						fmt.Fprintf(a.stdout, "[%s] %s: %s\n", t.Timestamp.Format("15:04:05"), t.Role, t.Content)
					}
					return nil
				}
				out = st
			}

			enc := json.NewEncoder(a.stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	cmd.Flags().BoolVar(&turns, "turns", false, "Show turns rebuilt from events")

	return cmd
}

// newCloseCmd creates the close command.
func (a *App) newCloseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "close <conversation-id>",
		Short: "Delete a stored conversation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := a.runtime(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = rt.Close(context.Background()) }()

			if err := rt.Engine.Close(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(a.stdout, "Closed conversation %s\n", args[0])
			return nil
		},
	}
}
