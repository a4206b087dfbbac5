// Package mcp exposes the router's command tools over the Model Context
// Protocol and consumes tools from external MCP servers. It wraps
// github.com/felixgeelhaar/mcp-go.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	mcpgo "github.com/felixgeelhaar/mcp-go"
	mcpserver "github.com/felixgeelhaar/mcp-go/server"

	"github.com/felixgeelhaar/agent-router/domain/tool"
)

// Server wraps an MCP server to expose command tools.
type Server struct {
	srv      *mcpgo.Server
	registry tool.Registry
	info     mcpgo.ServerInfo
}

// ServerConfig configures a tool server.
type ServerConfig struct {
	Name         string
	Version      string
	Description  string
	Instructions string

	// Registry holds the tools to expose.
	Registry tool.Registry
}

// NewServer creates an MCP server exposing every tool in the registry.
func NewServer(cfg ServerConfig) *Server {
	info := mcpgo.ServerInfo{
		Name:        cfg.Name,
		Version:     cfg.Version,
		Description: cfg.Description,
		Capabilities: mcpgo.Capabilities{
			Tools: true,
		},
	}

	var opts []mcpgo.Option
	if cfg.Instructions != "" {
		opts = append(opts, mcpgo.WithInstructions(cfg.Instructions))
	}

	s := &Server{
		srv:      mcpgo.NewServer(info, opts...),
		registry: cfg.Registry,
		info:     info,
	}
	if cfg.Registry != nil {
		for _, t := range cfg.Registry.List() {
			s.registerTool(t)
		}
	}
	return s
}

func (s *Server) registerTool(t tool.Tool) {
	handler := func(ctx context.Context, input json.RawMessage) (string, error) {
		result, err := t.Execute(ctx, input)
		if err != nil {
			return "", err
		}
		return result.OutputString(), nil
	}

	s.srv.Tool(t.Name()).
		Description(t.Description()).
		Handler(handler)
}

// Server returns the underlying mcp-go server.
func (s *Server) Server() *mcpgo.Server {
	return s.srv
}

// Info returns the advertised server metadata.
func (s *Server) Info() mcpgo.ServerInfo {
	return s.info
}

// Use adds middleware to the server.
func (s *Server) Use(middlewares ...mcpserver.Middleware) {
	s.srv.Use(middlewares...)
}

// ServeStdio runs the server over stdin/stdout until ctx is done.
func (s *Server) ServeStdio(ctx context.Context, opts ...mcpgo.ServeOption) error {
	return mcpgo.ServeStdio(ctx, s.srv, opts...)
}

// ServeHTTP runs the server over HTTP with SSE.
func (s *Server) ServeHTTP(ctx context.Context, addr string, opts ...mcpgo.HTTPOption) error {
	return mcpgo.ServeHTTP(ctx, s.srv, addr, opts...)
}

// AddTool registers a tool and exposes it.
func (s *Server) AddTool(t tool.Tool) error {
	if s.registry != nil {
		if err := s.registry.Register(t); err != nil {
			return fmt.Errorf("register tool: %w", err)
		}
	}
	s.registerTool(t)
	return nil
}
