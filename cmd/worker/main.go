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

	"github.com/kirillkom/candidate-rag/internal/bootstrap"
	"github.com/kirillkom/candidate-rag/internal/config"
	"github.com/kirillkom/candidate-rag/internal/core/domain"
	"github.com/kirillkom/candidate-rag/internal/observability/logging"
	"github.com/kirillkom/candidate-rag/internal/observability/metrics"
)

const recordTimeout = 30 * time.Second

func main() {
	cfg := config.Load()
	logger := logging.New(os.Stdout, "worker", logging.Options{Level: cfg.LogLevel, Format: cfg.LogFormat})
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, logger, bootstrap.Options{RecorderOnly: true})
	if err != nil {
		logger.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	recorderMetrics := metrics.NewRecorderMetrics("worker")
	metricsServer := &http.Server{
		Addr:              ":" + cfg.WorkerMetricsPort,
		Handler:           recorderMetrics.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("worker_metrics_server_failed", "error", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	logger.Info("worker_subscribed", "subject", cfg.NATSQueryCompletedSubject)
	err = app.Queue.SubscribeQueryCompleted(ctx, func(handlerCtx context.Context, event domain.QueryCompletedEvent) error {
		done := recorderMetrics.Track(event.Run)

		recordCtx, cancel := context.WithTimeout(handlerCtx, recordTimeout)
		defer cancel()
		err := app.Runs.RecordRun(recordCtx, event)
		done(err)
		return err
	})
	if err != nil {
		logger.Error("worker_subscribe_failed", "error", err)
	}
}
