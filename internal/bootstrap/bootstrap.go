package bootstrap

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/kirillkom/candidate-rag/internal/config"
	"github.com/kirillkom/candidate-rag/internal/core/output"
	"github.com/kirillkom/candidate-rag/internal/core/ports"
	"github.com/kirillkom/candidate-rag/internal/core/usecase"
	"github.com/kirillkom/candidate-rag/internal/infrastructure/cache/semantic"
	"github.com/kirillkom/candidate-rag/internal/infrastructure/queue/nats"
	"github.com/kirillkom/candidate-rag/internal/infrastructure/repository/postgres"
)

type Options struct {
	// Metrics receives pipeline observations; nil disables them.
	Metrics ports.PipelineMetrics
	// RecorderOnly skips model providers. The run audit worker needs only Postgres and NATS.
	RecorderOnly bool
}

type App struct {
	Config config.Config
	Logger *slog.Logger

	Queue *nats.Queue
	Runs  *usecase.RunService

	// Set unless RecorderOnly.
	Providers *Providers
	Cache     *semantic.Cache
	QueryUC   *usecase.QueryUseCase
	Loader    *usecase.ChunkLoader

	closeFn func()
}

func New(ctx context.Context, cfg config.Config, logger *slog.Logger, opts Options) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}

	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	repo := postgres.NewRunRepository(db)
	if err := repo.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	queue, err := nats.NewWithOptions(cfg.NATSURL, nats.Subjects{
		QueryCompleted: cfg.NATSQueryCompletedSubject,
		IndexUpdated:   cfg.NATSIndexUpdatedSubject,
	}, nats.Options{
		ResilienceExecutor: newExecutor(cfg, logger),
		Logger:             logger,
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init message queue: %w", err)
	}

	app := &App{
		Config: cfg,
		Logger: logger,
		Queue:  queue,
		Runs:   usecase.NewRunService(repo, logger),
	}
	closers := []func(){func() { _ = db.Close() }, queue.Close}
	app.closeFn = func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	if opts.RecorderOnly {
		return app, nil
	}

	providers, err := NewProviders(ctx, cfg, logger)
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("init providers: %w", err)
	}
	closers = append(closers, providers.Close)
	app.Providers = providers

	var cache ports.SemanticCache
	if cfg.CacheEnabled {
		app.Cache = semantic.New(cfg.CacheSize, cfg.CacheTTL, cfg.CacheThreshold)
		cache = app.Cache
	}

	app.QueryUC = NewQueryPipeline(cfg, providers, cache, queue, opts.Metrics, logger)
	app.Loader = usecase.NewChunkLoader(providers.Embedder, providers.Writers, queue, logger)
	return app, nil
}

// NewQueryPipeline assembles the question answering use case from selected providers.
func NewQueryPipeline(
	cfg config.Config,
	p *Providers,
	cache ports.SemanticCache,
	publisher ports.EventPublisher,
	metrics ports.PipelineMetrics,
	logger *slog.Logger,
) *usecase.QueryUseCase {
	retriever := usecase.NewHybridRetriever(p.Embedder, p.Vector, p.Lexical, usecase.RetrievalConfig{
		Fusion: usecase.FusionConfig{
			RRFK:          cfg.RAGFusionRRFK,
			LexicalWeight: cfg.RAGLexicalWeight,
			VectorWeight:  cfg.RAGVectorWeight,
		},
		EmbedTimeout:  cfg.EmbedTimeout,
		SearchTimeout: cfg.SearchTimeout,
	}, logger)

	generator := usecase.NewGenerator(p.Completion, usecase.DefaultTemplates(), usecase.GenerationConfig{
		Temperature:     cfg.RAGGenTemperature,
		MaxTokens:       cfg.RAGGenMaxTokens,
		MaxContextChars: cfg.RAGMaxContextChars,
		Timeout:         cfg.GenerationTimeout,
	}, logger)

	verifier := usecase.NewClaimVerifier(p.NLI, usecase.VerifyConfig{
		Threshold: cfg.NLIThreshold,
		MaxClaims: cfg.RAGMaxClaims,
		Workers:   cfg.RAGVerifyWorkers,
		Timeout:   cfg.NLITimeout,
	}, logger)

	return usecase.NewQueryUseCase(usecase.QueryDependencies{
		Guardrail: usecase.NewGuardrail(p.ZeroShot, usecase.GuardrailConfig{
			Threshold: cfg.GuardrailThreshold,
			Timeout:   cfg.ClassifyTimeout,
		}, logger),
		Analyzer:     usecase.NewQueryAnalyzer(p.Completion, cfg.ExpansionTimeout, logger),
		Retriever:    retriever,
		Reranker:     usecase.NewReranker(p.Reranker, cfg.RerankTimeout, logger),
		Generator:    generator,
		Verifier:     verifier,
		Orchestrator: output.NewOrchestrator(logger),
		Chunks:       p.Vector,
		Candidates:   p.Candidates,
		Cache:        cache,
		Publisher:    publisher,
		Metrics:      metrics,
		Logger:       logger,
	}, usecase.PipelineConfig{
		DefaultTopK:      cfg.RAGTopK,
		MaxTopK:          cfg.RAGMaxTopK,
		DirectoryTimeout: cfg.SearchTimeout,
		Policy: usecase.DecisionPolicy{
			NLIThreshold:      cfg.NLIThreshold,
			FaithfulnessFloor: cfg.FaithfulnessFloor,
			MaxAttempts:       cfg.RAGMaxAttempts,
		},
	})
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}

// NewLoader wires only what seeding needs: providers and the index event publisher.
func NewLoader(ctx context.Context, cfg config.Config, logger *slog.Logger) (*usecase.ChunkLoader, func(), error) {
	if logger == nil {
		logger = slog.Default()
	}
	providers, err := NewProviders(ctx, cfg, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("init providers: %w", err)
	}
	queue, err := nats.NewWithOptions(cfg.NATSURL, nats.Subjects{
		QueryCompleted: cfg.NATSQueryCompletedSubject,
		IndexUpdated:   cfg.NATSIndexUpdatedSubject,
	}, nats.Options{Logger: logger})
	if err != nil {
		providers.Close()
		return nil, nil, fmt.Errorf("init message queue: %w", err)
	}
	closeFn := func() {
		queue.Close()
		providers.Close()
	}
	return usecase.NewChunkLoader(providers.Embedder, providers.Writers, queue, logger), closeFn, nil
}
