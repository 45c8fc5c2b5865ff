package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	httpadapter "github.com/kirillkom/candidate-rag/internal/adapters/http"
	"github.com/kirillkom/candidate-rag/internal/bootstrap"
	"github.com/kirillkom/candidate-rag/internal/config"
	"github.com/kirillkom/candidate-rag/internal/core/domain"
	"github.com/kirillkom/candidate-rag/internal/observability/logging"
	"github.com/kirillkom/candidate-rag/internal/observability/metrics"
)

func main() {
	cfg := config.Load()
	logger := logging.New(os.Stdout, "api", logging.Options{Level: cfg.LogLevel, Format: cfg.LogFormat})
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	httpMetrics := metrics.NewHTTPServerMetrics("api")
	app, err := bootstrap.New(ctx, cfg, logger, bootstrap.Options{Metrics: httpMetrics})
	if err != nil {
		logger.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	if app.Cache != nil {
		go func() {
			err := app.Queue.SubscribeIndexUpdated(ctx, func(_ context.Context, event domain.IndexUpdatedEvent) error {
				dropped := app.Cache.InvalidateScope(event.Scope)
				logger.Info("cache_invalidated", "session_id", event.Scope.SessionID, "entries", dropped)
				return nil
			})
			if err != nil {
				logger.Error("index_subscription_failed", "error", err)
			}
		}()
	}

	router, err := httpadapter.NewRouter(cfg, app.QueryUC, app.Runs, httpMetrics, logger)
	if err != nil {
		logger.Error("router_init_failed", "error", err)
		os.Exit(1)
	}
	server := &http.Server{
		Addr:              ":" + cfg.APIPort,
		Handler:           router.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      cfg.GenerationTimeout*time.Duration(max(cfg.RAGMaxAttempts, 1)) + time.Minute,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info("api_listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("api_server_failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("api_shutdown_failed", "error", err)
	}
}
