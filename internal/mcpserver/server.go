// Package mcpserver serves a loaded plugin over the Model Context Protocol on
// stdio: the peb_* tools become MCP tools and the prime text becomes the
// server instructions.
package mcpserver

import (
	"context"
	"errors"
	"fmt"
	"io"
	stdlog "log"
	"time"

	"github.com/dyluth/peb-bridge/internal/plugin"
	"github.com/dyluth/peb-bridge/internal/project"
	"github.com/dyluth/peb-bridge/internal/tools"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog"
)

// ServerName is the name reported in the initialize handshake.
const ServerName = "pebbles"

// DefaultRefreshDebounce groups the burst of events an editor save produces.
const DefaultRefreshDebounce = 250 * time.Millisecond

// Server wraps an mcp-go server around a plugin.
type Server struct {
	plugin *plugin.Plugin
	mcp    *server.MCPServer
	logger zerolog.Logger
}

// New builds the MCP server for p. version is reported as the server version.
func New(p *plugin.Plugin, version string, logger zerolog.Logger) *Server {
	s := &Server{
		plugin: p,
		logger: logger.With().Str("component", "mcp").Logger(),
	}

	s.mcp = server.NewMCPServer(
		ServerName,
		version,
		server.WithToolCapabilities(true),
		server.WithInstructions(p.Prime),
		server.WithRecovery(),
	)
	s.mcp.SetTools(tools.ServerTools(p.Tools())...)

	return s
}

// MCP exposes the underlying server, mainly for in-process message handling.
func (s *Server) MCP() *server.MCPServer {
	return s.mcp
}

// Refresh reloads the project configuration and replaces the registered tools
// so their ID examples match the current prefix and length.
func (s *Server) Refresh(ctx context.Context) error {
	if err := s.plugin.Reload(ctx); err != nil {
		return err
	}
	list := s.plugin.Tools()
	s.mcp.SetTools(tools.ServerTools(list)...)

	if cfg := s.plugin.Project(); cfg != nil {
		s.logger.Info().Str("prefix", cfg.Prefix).Int("id_length", cfg.IDLength).
			Int("tools", len(list)).Msg("Tools refreshed")
	}
	return nil
}

// Serve runs the stdio transport until in is exhausted or ctx is cancelled.
// When dir lies inside a pebbles project and the plugin carries tools, the
// project's config.toml is watched and the tools are refreshed on change.
func (s *Server) Serve(ctx context.Context, dir string, in io.Reader, out io.Writer) error {
	if s.plugin.Variant.Tools {
		stop, err := s.watchProject(ctx, dir)
		if err != nil {
			s.logger.Warn().Err(err).Msg("Project config will not be watched")
		} else {
			defer stop()
		}
	}

	stdio := server.NewStdioServer(s.mcp)
	stdio.SetErrorLogger(stdlog.New(s.logger, "", 0))

	s.logger.Info().Str("plugin", s.plugin.Name).Int("tools", len(s.plugin.Tools())).Msg("MCP server listening on stdio")

	if err := stdio.Listen(ctx, in, out); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("mcp server stopped: %w", err)
	}
	return nil
}

func (s *Server) watchProject(ctx context.Context, dir string) (func(), error) {
	root, err := project.FindRoot(dir)
	if err != nil {
		return nil, err
	}

	w, err := WatchConfig(root, DefaultRefreshDebounce, func() {
		if err := s.Refresh(ctx); err != nil {
			s.logger.Warn().Err(err).Msg("Failed to refresh tools")
		}
	}, s.logger)
	if err != nil {
		return nil, err
	}
	return func() { _ = w.Close() }, nil
}
