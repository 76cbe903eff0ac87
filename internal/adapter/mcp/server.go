// Package mcp exposes read-only claim operations over the Model Context
// Protocol, so operator agents can inspect claims, decisions and the
// review backlog.
package mcp

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/claimpilot/claimpilot/internal/domain/claim"
)

// ClaimReader reads claims for MCP tools.
type ClaimReader interface {
	GetClaim(ctx context.Context, id string) (*claim.Claim, error)
	ListClaims(ctx context.Context) ([]claim.Claim, error)
}

// DecisionReader reads automated decisions for MCP tools.
type DecisionReader interface {
	GetDecision(ctx context.Context, claimID string) (*claim.Decision, error)
}

// ReviewLister lists claims waiting on a human reviewer.
type ReviewLister interface {
	ActiveReviews(ctx context.Context) ([]claim.Claim, error)
}

// ServerConfig holds MCP server settings.
type ServerConfig struct {
	Addr    string
	Name    string
	Version string
	APIKey  string
}

// ServerDeps are the read models the MCP tools are built on. Nil deps
// disable the corresponding tools with an error result.
type ServerDeps struct {
	Claims    ClaimReader
	Decisions DecisionReader
	Reviews   ReviewLister
}

// Server wraps an MCP server served over SSE.
type Server struct {
	cfg  ServerConfig
	deps ServerDeps

	mcpServer  *mcpserver.MCPServer
	httpServer *http.Server
}

// NewServer creates the MCP server and registers all tools and resources.
func NewServer(cfg ServerConfig, deps ServerDeps) *Server {
	s := &Server{cfg: cfg, deps: deps}
	s.mcpServer = mcpserver.NewMCPServer(cfg.Name, cfg.Version,
		mcpserver.WithToolCapabilities(false),
		mcpserver.WithResourceCapabilities(false, false),
	)
	s.registerTools()
	s.registerResources()
	return s
}

// MCPServer returns the underlying MCP server, mainly for tests.
func (s *Server) MCPServer() *mcpserver.MCPServer { return s.mcpServer }

// Start serves the MCP server over SSE in the background.
func (s *Server) Start() error {
	sse := mcpserver.NewSSEServer(s.mcpServer)
	s.httpServer = &http.Server{
		Addr:    s.cfg.Addr,
		Handler: AuthMiddleware(s.cfg.APIKey, sse),
	}
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("mcp server", "error", err)
		}
	}()
	slog.Info("mcp server listening", "addr", s.cfg.Addr)
	return nil
}

// Stop shuts the MCP server down gracefully.
func (s *Server) Stop(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}
