package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/kirillkom/candidate-rag/internal/config"
	"github.com/kirillkom/candidate-rag/internal/core/ports"
	"github.com/kirillkom/candidate-rag/internal/core/usecase"
	"github.com/kirillkom/candidate-rag/internal/infrastructure/lexical/sqlite"
	"github.com/kirillkom/candidate-rag/internal/infrastructure/llm/gemini"
	"github.com/kirillkom/candidate-rag/internal/infrastructure/llm/ollama"
	"github.com/kirillkom/candidate-rag/internal/infrastructure/llm/openai"
	"github.com/kirillkom/candidate-rag/internal/infrastructure/resilience"
	"github.com/kirillkom/candidate-rag/internal/infrastructure/scoring/tei"
	"github.com/kirillkom/candidate-rag/internal/infrastructure/vector/qdrant"
)

// Providers holds the outbound adapters chosen once per process from config.
// Optional capabilities (Reranker, NLI, ZeroShot) are nil when disabled.
type Providers struct {
	Embedder   ports.Embedder
	Completion ports.CompletionService
	Vector     *qdrant.Client
	Lexical    ports.LexicalIndex
	Candidates ports.CandidateDirectory
	Reranker   ports.PairScorer
	NLI        ports.EntailmentClassifier
	ZeroShot   ports.ZeroShotClassifier

	// Writers receive seeded chunks: Qdrant always, SQLite when it is the lexical backend.
	Writers []ports.ChunkWriter

	closers []func()
}

func (p *Providers) Close() {
	for i := len(p.closers) - 1; i >= 0; i-- {
		p.closers[i]()
	}
}

func newExecutor(cfg config.Config, logger *slog.Logger) *resilience.Executor {
	rc := resilience.DefaultConfig()
	rc.Retry.MaxAttempts = cfg.RetryMaxAttempts
	rc.Breaker.Enabled = cfg.BreakerEnabled
	rc.Breaker.OpenTimeout = cfg.BreakerOpenTimeout
	return resilience.NewExecutor(rc).WithLogger(logger)
}

func NewProviders(ctx context.Context, cfg config.Config, logger *slog.Logger) (*Providers, error) {
	exec := newExecutor(cfg, logger)
	p := &Providers{}

	var ollamaClient *ollama.Client
	ollamaFor := func() *ollama.Client {
		if ollamaClient == nil {
			ollamaClient = ollama.New(cfg.OllamaURL, cfg.OllamaGenModel, cfg.OllamaEmbedModel, exec)
		}
		return ollamaClient
	}
	var openaiClient *openai.Client
	openaiFor := func() (*openai.Client, error) {
		if openaiClient != nil {
			return openaiClient, nil
		}
		client, err := openai.New(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.OpenAIModel, cfg.OpenAIEmbedModel, exec)
		if err != nil {
			return nil, err
		}
		openaiClient = client
		return client, nil
	}
	var geminiClient *gemini.Client
	geminiFor := func() (*gemini.Client, error) {
		if geminiClient != nil {
			return geminiClient, nil
		}
		client, err := gemini.New(ctx, cfg.GeminiAPIKey, cfg.GeminiModel, cfg.GeminiEmbedModel, exec)
		if err != nil {
			return nil, err
		}
		geminiClient = client
		return client, nil
	}
	teiClient := tei.New(cfg.RerankURL, cfg.NLIURL, exec)

	switch provider(cfg.EmbedProvider) {
	case "ollama":
		p.Embedder = ollama.NewEmbedder(ollamaFor())
	case "openai":
		client, err := openaiFor()
		if err != nil {
			return nil, fmt.Errorf("embed provider: %w", err)
		}
		p.Embedder = client
	case "gemini":
		client, err := geminiFor()
		if err != nil {
			return nil, fmt.Errorf("embed provider: %w", err)
		}
		p.Embedder = client
	default:
		return nil, fmt.Errorf("unknown EMBED_PROVIDER %q", cfg.EmbedProvider)
	}

	switch provider(cfg.CompletionProvider) {
	case "ollama":
		p.Completion = ollama.NewCompletion(ollamaFor())
	case "openai":
		client, err := openaiFor()
		if err != nil {
			return nil, fmt.Errorf("completion provider: %w", err)
		}
		p.Completion = client
	case "gemini":
		client, err := geminiFor()
		if err != nil {
			return nil, fmt.Errorf("completion provider: %w", err)
		}
		p.Completion = client
	default:
		return nil, fmt.Errorf("unknown COMPLETION_PROVIDER %q", cfg.CompletionProvider)
	}

	p.Vector = qdrant.New(cfg.QdrantURL, cfg.QdrantCollection, exec)
	p.Writers = append(p.Writers, p.Vector)

	switch provider(cfg.LexicalBackend) {
	case "qdrant":
		p.Lexical = p.Vector
		p.Candidates = p.Vector
	case "sqlite":
		index, err := sqlite.Open(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("lexical backend: %w", err)
		}
		p.Lexical = index
		p.Candidates = index
		p.Writers = append(p.Writers, index)
		p.closers = append(p.closers, func() { _ = index.Close() })
	default:
		return nil, fmt.Errorf("unknown LEXICAL_BACKEND %q", cfg.LexicalBackend)
	}

	switch provider(cfg.RerankProvider) {
	case "tei":
		p.Reranker = teiClient
	case "heuristic":
		p.Reranker = usecase.HeuristicScorer{}
	default:
		p.Close()
		return nil, fmt.Errorf("unknown RERANK_PROVIDER %q", cfg.RerankProvider)
	}

	switch provider(cfg.NLIProvider) {
	case "tei":
		p.NLI = teiClient
	case "ollama":
		p.NLI = ollama.NewEntailmentJudge(ollamaFor())
	case "none":
	default:
		p.Close()
		return nil, fmt.Errorf("unknown NLI_PROVIDER %q", cfg.NLIProvider)
	}

	switch provider(cfg.GuardrailProvider) {
	case "tei":
		p.ZeroShot = tei.NewZeroShot(teiClient)
	case "keyword":
	default:
		p.Close()
		return nil, fmt.Errorf("unknown GUARDRAIL_PROVIDER %q", cfg.GuardrailProvider)
	}

	logger.Info("providers_selected",
		"embed", cfg.EmbedProvider,
		"completion", cfg.CompletionProvider,
		"lexical", cfg.LexicalBackend,
		"rerank", cfg.RerankProvider,
		"nli", cfg.NLIProvider,
		"guardrail", cfg.GuardrailProvider,
	)
	return p, nil
}

func provider(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
