package cli

import (
	"context"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/felixgeelhaar/agent-router/infrastructure/logging"
	"github.com/felixgeelhaar/agent-router/interfaces/api"
	httpserver "github.com/felixgeelhaar/agent-router/interfaces/http"
)

// serveOptions holds options for the serve command.
type serveOptions struct {
	addr  string
	watch bool
}

// newServeCmd creates the serve command.
func (a *App) newServeCmd() *cobra.Command {
	opts := &serveOptions{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the router over HTTP",
		Long: `Serve the chat, conversation and knowledge endpoints over HTTP.

Endpoints:
  POST   /v1/chat
  GET    /v1/conversations/:id
  DELETE /v1/conversations/:id
  GET    /v1/conversations/:id/turns
  POST   /v1/knowledge
  GET    /v1/knowledge?q=
  GET    /v1/tools
  GET    /v1/specialists
  GET    /healthz
  GET    /metrics      (when observability.prometheus is set)

Examples:
  # Serve with in-memory defaults on :8080
  agent-router serve

  # Serve a configuration and reload its log level on change
  agent-router serve -c router.yaml --watch`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.serve(cmd.Context(), opts)
		},
	}

	cmd.Flags().StringVar(&opts.addr, "addr", "", "Listen address (overrides server.addr)")
	cmd.Flags().BoolVar(&opts.watch, "watch", false, "Reload the log level when the config file changes")

	return cmd
}

func (a *App) serve(ctx context.Context, opts *serveOptions) error {
	rt, err := a.runtime(ctx)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := rt.Close(shutdownCtx); err != nil {
			logging.Warn().
				Add(logging.Component("cli")).
				Add(logging.ErrorField(err)).
				Msg("shutdown incomplete")
		}
	}()

	addr := rt.Config.Server.Addr
	if opts.addr != "" {
		addr = opts.addr
	}
	srv := httpserver.New(rt.Engine, httpserver.Config{
		Addr: addr,
		RateLimit: httpserver.RateLimitConfig{
			Scope: httpserver.ScopePerClient,
			Rate:  rt.Config.Server.RateLimit,
			Burst: rt.Config.Server.RateBurst,
		},
		Metrics: rt.MetricsHandler(),
		Tools:   rt.Tools,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Run(gctx) })
	if opts.watch && a.configPath != "" {
		g.Go(func() error { return api.WatchConfig(gctx, a.configPath) })
	}
	return g.Wait()
}
