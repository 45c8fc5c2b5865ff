package mcpadapter

import (
	"context"
	"errors"
	"log/slog"
	"os"

	"github.com/mark3labs/mcp-go/server"

	"github.com/kirillkom/candidate-rag/internal/core/ports"
)

const (
	ServerName    = "candidate-rag"
	ServerVersion = "1.0.0"
)

// Server exposes the question answering pipeline as MCP tools.
type Server struct {
	mcp    *server.MCPServer
	query  ports.QueryRunner
	runs   ports.RunReader
	logger *slog.Logger
}

// NewServer registers the tools. runs may be nil, in which case get_run is not offered.
func NewServer(query ports.QueryRunner, runs ports.RunReader, logger *slog.Logger) (*Server, error) {
	if query == nil {
		return nil, errors.New("query runner is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		mcp: server.NewMCPServer(
			ServerName,
			ServerVersion,
			server.WithToolCapabilities(false),
			server.WithRecovery(),
		),
		query:  query,
		runs:   runs,
		logger: logger,
	}

	s.mcp.AddTool(askCandidatesTool(), s.handleAskCandidates)
	if runs != nil {
		s.mcp.AddTool(getRunTool(), s.handleGetRun)
	}
	return s, nil
}

// Serve speaks MCP over stdio until the client disconnects or ctx is cancelled.
// Stdout carries protocol frames only.
func (s *Server) Serve(ctx context.Context) error {
	stdio := server.NewStdioServer(s.mcp)
	stdio.SetErrorLogger(slog.NewLogLogger(s.logger.Handler(), slog.LevelError))
	return stdio.Listen(ctx, os.Stdin, os.Stdout)
}
