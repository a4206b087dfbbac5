// Package cli provides the command-line interface of agent-router.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/agent-router/interfaces/api"
)

// Version information set at build time.
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// App represents the CLI application.
type App struct {
	root   *cobra.Command
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer

	configPath string
	build      []api.BuildOption
}

// New creates a new CLI application.
func New() *App {
	app := &App{
		stdin:  os.Stdin,
		stdout: os.Stdout,
		stderr: os.Stderr,
	}

	app.root = &cobra.Command{
		Use:   "agent-router",
		Short: "Multi-agent message router",
		Long: `agent-router routes each user message through intent classification,
context assembly, tool resolution and task planning, then coordinates
specialist agents to answer it.

Without a configuration file everything runs in memory.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	app.root.PersistentFlags().StringVarP(&app.configPath, "config", "c", "", "Path to configuration file")

	app.root.AddCommand(
		app.newVersionCmd(),
		app.newValidateCmd(),
		app.newInspectCmd(),
		app.newChatCmd(),
		app.newServeCmd(),
		app.newMCPCmd(),
		app.newKnowledgeCmd(),
		app.newHistoryCmd(),
		app.newCloseCmd(),
	)

	return app
}

// WithOutput sets custom output writers.
func (a *App) WithOutput(stdout, stderr io.Writer) *App {
	a.stdout = stdout
	a.stderr = stderr
	a.root.SetOut(stdout)
	a.root.SetErr(stderr)
	return a
}

// WithInput sets the reader interactive commands read from.
func (a *App) WithInput(stdin io.Reader) *App {
	a.stdin = stdin
	a.root.SetIn(stdin)
	return a
}

// WithBuildOptions passes options to every runtime the commands build.
func (a *App) WithBuildOptions(opts ...api.BuildOption) *App {
	a.build = append(a.build, opts...)
	return a
}

// Execute runs the CLI application.
func (a *App) Execute(ctx context.Context) error {
	// Set up signal handling
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	return a.root.ExecuteContext(ctx)
}

// ExecuteWithArgs runs the CLI with specific arguments (useful for testing).
func (a *App) ExecuteWithArgs(ctx context.Context, args []string) error {
	a.root.SetArgs(args)
	return a.Execute(ctx)
}

// loadConfig loads the --config file, or the in-memory defaults.
func (a *App) loadConfig() (api.RouterConfig, error) {
	cfg, err := api.LoadConfig(a.configPath)
	if err != nil {
		return cfg, fmt.Errorf("failed to load configuration: %w", err)
	}
	api.InitLogging(cfg)
	return cfg, nil
}

// runtime loads configuration and builds a router from it.
func (a *App) runtime(ctx context.Context) (*api.Runtime, error) {
	cfg, err := a.loadConfig()
	if err != nil {
		return nil, err
	}
	rt, err := api.Build(ctx, cfg, a.build...)
	if err != nil {
		return nil, fmt.Errorf("failed to build router: %w", err)
	}
	return rt, nil
}

// newVersionCmd creates the version command.
func (a *App) newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(a.stdout, "agent-router version %s\n", Version)
			fmt.Fprintf(a.stdout, "  Git commit: %s\n", GitCommit)
			fmt.Fprintf(a.stdout, "  Build date: %s\n", BuildDate)
		},
	}
}
