package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/felixgeelhaar/agent-router/interfaces/api"
)

// newValidateCmd creates the validate command.
func (a *App) newValidateCmd() *cobra.Command {
	var strict bool

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate a configuration file",
		Long: `Validate a router configuration file for correctness.

This command checks:
  - File format (YAML or JSON)
  - Required fields (name)
  - Orchestrator thresholds and timeouts
  - Storage backend names and their connection settings
  - LLM provider settings
  - Environment variable references (in strict mode)

Examples:
  agent-router validate -c router.yaml
  agent-router validate -c router.yaml --strict`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if a.configPath == "" {
				return fmt.Errorf("configuration file path is required (-c flag)")
			}
			if err := api.ValidateConfig(a.configPath, strict); err != nil {
				return fmt.Errorf("validation failed: %w", err)
			}

			cfg, err := api.LoadConfig(a.configPath)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.stdout, "✓ Configuration is valid\n")
			fmt.Fprintf(a.stdout, "  Name: %s\n", cfg.Name)
			fmt.Fprintf(a.stdout, "  Version: %s\n", cfg.Version)

			fmt.Fprintf(a.stdout, "\nConfiguration summary:\n")
			fmt.Fprintf(a.stdout, "  Conversations: %s\n", cfg.Storage.Conversations)
			fmt.Fprintf(a.stdout, "  Memory: %s", cfg.Storage.Memory)
			if cfg.Storage.MemoryFallback != "" {
				fmt.Fprintf(a.stdout, " (fallback %s)", cfg.Storage.MemoryFallback)
			}
			fmt.Fprintln(a.stdout)
			fmt.Fprintf(a.stdout, "  Knowledge: %s\n", cfg.Storage.Knowledge)
			fmt.Fprintf(a.stdout, "  Events: %s\n", cfg.Storage.Events)
			fmt.Fprintf(a.stdout, "  LLM: %s\n", cfg.LLM.Provider)
			fmt.Fprintf(a.stdout, "  Max concurrent subtasks: %d\n", cfg.Orchestrator.MaxConcurrent)
			if cfg.Tools.Enabled {
				fmt.Fprintf(a.stdout, "  Command tools: enabled\n")
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&strict, "strict", false, "Enable strict validation (fail on missing env vars)")

	return cmd
}

// newInspectCmd creates the inspect command.
func (a *App) newInspectCmd() *cobra.Command {
	var (
		jsonOutput bool
		section    string
	)

	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Print the effective configuration",
		Long: `Print the configuration with every default applied.

Sections:
  all            Show all configuration (default)
  orchestrator   Show routing and planning settings
  resilience     Show retry and circuit breaker settings
  storage        Show storage backends
  llm            Show the model provider
  observability  Show tracing and metrics settings

Examples:
  agent-router inspect -c router.yaml
  agent-router inspect -c router.yaml --section storage --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := api.LoadConfig(a.configPath)
			if err != nil {
				return err
			}

			if cfg.LLM.APIKey != "" {
				cfg.LLM.APIKey = "***"
			}
			if cfg.Search.APIKey != "" {
				cfg.Search.APIKey = "***"
			}

			var out any
			switch section {
			case "", "all":
				out = cfg
			case "orchestrator":
				out = cfg.Orchestrator
			case "resilience":
				out = cfg.Resilience
			case "storage":
				out = cfg.Storage
			case "llm":
				out = cfg.LLM
			case "observability":
				out = cfg.Observability
			default:
				return fmt.Errorf("unknown section %q", section)
			}

			if jsonOutput {
				enc := json.NewEncoder(a.stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(out)
			}
			enc := yaml.NewEncoder(a.stdout)
			enc.SetIndent(2)
			defer enc.Close()
			return enc.Encode(out)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	cmd.Flags().StringVar(&section, "section", "all", "Section to inspect")

	return cmd
}
