// Package httpserver exposes the router over HTTP with gin.
package httpserver

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/felixgeelhaar/agent-router/application"
	"github.com/felixgeelhaar/agent-router/domain/tool"
	"github.com/felixgeelhaar/agent-router/infrastructure/logging"
)

// Config configures the HTTP server.
type Config struct {
	Addr string

	// RateLimit bounds POST /v1/chat. A zero Rate disables limiting.
	RateLimit RateLimitConfig

	// Metrics is mounted at /metrics when non-nil.
	Metrics http.Handler

	// Tools is listed by GET /v1/tools when non-nil.
	Tools tool.Registry

	// ShutdownTimeout bounds graceful shutdown. Default 10s.
	ShutdownTimeout time.Duration
}

// Server serves the chat, conversation and knowledge endpoints.
type Server struct {
	engine *application.Engine
	config Config
	router *gin.Engine
}

// New creates a server for engine.
func New(engine *application.Engine, config Config) *Server {
	if config.ShutdownTimeout <= 0 {
		config.ShutdownTimeout = 10 * time.Second
	}

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger())

	s := &Server{engine: engine, config: config, router: r}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.router.GET("/healthz", s.health)
	if s.config.Metrics != nil {
		s.router.GET("/metrics", gin.WrapH(s.config.Metrics))
	}

	v1 := s.router.Group("/v1")
	{
		chat := []gin.HandlerFunc{}
		if s.config.RateLimit.Rate > 0 || s.config.RateLimit.Limiter != nil {
			chat = append(chat, RateLimit(s.config.RateLimit))
		}
		chat = append(chat, s.chat)
		v1.POST("/chat", chat...)

		v1.GET("/conversations/:id", s.history)
		v1.DELETE("/conversations/:id", s.closeConversation)
		v1.GET("/conversations/:id/turns", s.turns)
		v1.GET("/conversations/:id/turns/:turn", s.turn)

		v1.POST("/knowledge", s.addKnowledge)
		v1.GET("/knowledge", s.searchKnowledge)

		v1.GET("/tools", s.tools)
		v1.GET("/specialists", s.specialists)
	}
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.config.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logging.Info().
			Add(logging.Component("http")).
			Add(logging.Str("addr", s.config.Addr)).
			Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()
	logging.Info().
		Add(logging.Component("http")).
		Msg("http server shutting down")
	return srv.Shutdown(shutdownCtx)
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		ev := logging.Debug()
		if c.Writer.Status() >= http.StatusInternalServerError {
			ev = logging.Error()
		}
		ev.Add(logging.Component("http")).
			Add(logging.Str("method", c.Request.Method)).
			Add(logging.Str("path", c.FullPath())).
			Add(logging.Count("status", c.Writer.Status())).
			Add(logging.Duration(time.Since(start))).
			Msg("request")
	}
}
