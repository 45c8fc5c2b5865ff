package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	mcpadapter "github.com/kirillkom/candidate-rag/internal/adapters/mcp"
	"github.com/kirillkom/candidate-rag/internal/bootstrap"
	"github.com/kirillkom/candidate-rag/internal/config"
	"github.com/kirillkom/candidate-rag/internal/observability/logging"
)

func main() {
	cfg := config.Load()
	// stdout carries MCP frames, so logs go to stderr.
	logger := logging.New(os.Stderr, "mcp", logging.Options{Level: cfg.LogLevel, Format: cfg.LogFormat})
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, logger, bootstrap.Options{})
	if err != nil {
		logger.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	server, err := mcpadapter.NewServer(app.QueryUC, app.Runs, logger)
	if err != nil {
		logger.Error("mcp_init_failed", "error", err)
		os.Exit(1)
	}

	logger.Info("mcp_server_ready", "name", mcpadapter.ServerName, "version", mcpadapter.ServerVersion)
	if err := server.Serve(ctx); err != nil && ctx.Err() == nil {
		logger.Error("mcp_server_failed", "error", err)
		os.Exit(1)
	}
}
