package ports

import (
	"context"

	"github.com/kirillkom/candidate-rag/internal/core/domain"
)

// Embedder builds vectors for query text.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// VectorIndex performs nearest-neighbour search over chunk embeddings.
// Filters match chunk metadata by equality; nil means no restriction.
type VectorIndex interface {
	SearchVector(ctx context.Context, vector []float32, scope domain.Scope, filters domain.MetadataFilter, limit int, minScore float64) ([]domain.ScoredChunk, error)
	CountChunks(ctx context.Context, scope domain.Scope) (int, error)
}

// LexicalIndex performs BM25-style term matching over chunk text.
type LexicalIndex interface {
	SearchLexical(ctx context.Context, text string, scope domain.Scope, filters domain.MetadataFilter, limit int) ([]domain.ScoredChunk, error)
}

// CandidateDirectory lists the distinct candidate names indexed in a scope.
type CandidateDirectory interface {
	CandidateNames(ctx context.Context, scope domain.Scope) ([]string, error)
}

// ChunkWriter loads pre-chunked fixtures into an index.
type ChunkWriter interface {
	UpsertChunks(ctx context.Context, scope domain.Scope, chunks []domain.Chunk, vectors [][]float32) error
}

// PairScorer scores (query, text) pairs; higher means more relevant.
type PairScorer interface {
	ScorePairs(ctx context.Context, pairs []domain.TextPair) ([]float64, error)
}

// CompletionService produces text from a system and user prompt.
type CompletionService interface {
	Generate(ctx context.Context, req domain.CompletionRequest) (domain.Completion, error)
}

// EntailmentClassifier runs natural language inference on a premise/hypothesis pair.
type EntailmentClassifier interface {
	Classify(ctx context.Context, premise, hypothesis string) (domain.EntailmentScores, error)
}

// ZeroShotClassifier scores text against free-form labels. Scores are keyed by label.
type ZeroShotClassifier interface {
	ClassifyZeroShot(ctx context.Context, text string, labels []string) (map[string]float64, error)
}

// SemanticCache stores finished results keyed by query embedding within a
// scope. Results assembled under different structure overrides never match.
type SemanticCache interface {
	Lookup(scope domain.Scope, structure string, vector []float32) (*domain.QueryResult, bool)
	Store(scope domain.Scope, structure string, vector []float32, result *domain.QueryResult)
}

// EventPublisher announces finished queries.
type EventPublisher interface {
	PublishQueryCompleted(ctx context.Context, event domain.QueryCompletedEvent) error
}

// RunRepository persists query run audit records.
type RunRepository interface {
	SaveRun(ctx context.Context, run domain.QueryRun) error
	GetRun(ctx context.Context, id string) (*domain.QueryRun, error)
}

// PipelineMetrics receives per-stage observations.
type PipelineMetrics interface {
	RecordStep(step domain.PipelineStep)
	RecordOutcome(queryType domain.QueryType, decision domain.Decision, attempts int, cacheHit bool)
	RecordGuardrail(method string, allowed bool)
	RecordDegradation(stage, reason string)
	RecordTokenUsage(promptTokens, completionTokens int)
}

// IndexEventPublisher announces that the chunks of a scope changed.
type IndexEventPublisher interface {
	PublishIndexUpdated(ctx context.Context, event domain.IndexUpdatedEvent) error
}
