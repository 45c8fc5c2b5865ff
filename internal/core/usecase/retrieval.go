package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kirillkom/candidate-rag/internal/core/domain"
	"github.com/kirillkom/candidate-rag/internal/core/ports"
)

type RetrievalConfig struct {
	Fusion        FusionConfig
	EmbedTimeout  time.Duration
	SearchTimeout time.Duration
}

// HybridRetriever runs lexical and vector search side by side and fuses the rankings.
type HybridRetriever struct {
	embedder ports.Embedder
	vector   ports.VectorIndex
	lexical  ports.LexicalIndex
	cfg      RetrievalConfig
	logger   *slog.Logger
}

func NewHybridRetriever(
	embedder ports.Embedder,
	vector ports.VectorIndex,
	lexical ports.LexicalIndex,
	cfg RetrievalConfig,
	logger *slog.Logger,
) *HybridRetriever {
	if logger == nil {
		logger = slog.Default()
	}
	return &HybridRetriever{embedder: embedder, vector: vector, lexical: lexical, cfg: cfg, logger: logger}
}

// QueryVector embeds the resolved question, the hypothetical answer and the
// variations in one batch and averages them.
func (r *HybridRetriever) QueryVector(ctx context.Context, q domain.Query) ([]float32, error) {
	texts := queryEmbeddingTexts(q)
	callCtx := ctx
	if r.cfg.EmbedTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, r.cfg.EmbedTimeout)
		defer cancel()
	}
	vectors, err := r.embedder.Embed(callCtx, texts)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	vector := domain.MeanVector(vectors)
	if len(vector) == 0 {
		return nil, fmt.Errorf("embed query: empty vector")
	}
	return vector, nil
}

func queryEmbeddingTexts(q domain.Query) []string {
	texts := []string{q.SearchText()}
	if h := strings.TrimSpace(q.HypotheticalAnswer); h != "" {
		texts = append(texts, h)
	}
	texts = append(texts, q.Variations...)
	return texts
}

type RetrieveInput struct {
	Query          domain.Query
	Vector         []float32
	Scope          domain.Scope
	TopK           int
	ScoreThreshold float64
}

type RetrievalOutcome struct {
	Candidates  []domain.RetrievalCandidate
	LexicalHits int
	VectorHits  int
	// Degraded lists the searches that were skipped or failed.
	Degraded []string
	// FilterRelaxed is set when the metadata filter matched nothing and the
	// search was repeated over the whole scope.
	FilterRelaxed bool
}

type searchHits struct {
	lexical, vector       []domain.ScoredChunk
	lexicalErr, vectorErr error
}

// empty reports a search that ran and found nothing on either list.
func (h searchHits) empty() bool {
	ran := h.lexicalErr == nil || h.vectorErr == nil
	return ran && len(h.lexical) == 0 && len(h.vector) == 0
}

// Retrieve returns an error only when ctx is done. A nil Vector skips vector
// search. Metadata filters from query understanding are applied first and
// dropped when they leave both lists empty.
func (r *HybridRetriever) Retrieve(ctx context.Context, in RetrieveInput) (RetrievalOutcome, error) {
	var out RetrievalOutcome
	filters := in.Query.Entities.Filters
	hits := r.search(ctx, in, filters)
	if err := ctx.Err(); err != nil {
		return RetrievalOutcome{}, err
	}
	if len(filters) > 0 && hits.empty() {
		r.logger.Debug("retrieval_filter_relaxed", "filters", filters)
		hits = r.search(ctx, in, nil)
		out.FilterRelaxed = true
		if err := ctx.Err(); err != nil {
			return RetrievalOutcome{}, err
		}
	}

	if hits.lexicalErr != nil {
		out.Degraded = append(out.Degraded, "lexical")
		r.logger.Warn("stage_degraded", "stage", "retrieval", "reason", "lexical_failed", "error", hits.lexicalErr)
	}
	if hits.vectorErr != nil {
		out.Degraded = append(out.Degraded, "vector")
		r.logger.Warn("stage_degraded", "stage", "retrieval", "reason", "vector_failed", "error", hits.vectorErr)
	}

	out.LexicalHits = len(hits.lexical)
	out.VectorHits = len(hits.vector)
	out.Candidates = fuseWeightedRRF(hits.lexical, hits.vector, r.cfg.Fusion, in.TopK)
	return out, nil
}

// search runs both lists concurrently. Failed lists come back empty with
// their error set.
func (r *HybridRetriever) search(ctx context.Context, in RetrieveInput, filters domain.MetadataFilter) searchHits {
	perList := in.TopK * 2
	var (
		hits searchHits
		g    errgroup.Group
	)

	if r.lexical != nil {
		g.Go(func() error {
			callCtx, cancel := r.searchContext(ctx)
			defer cancel()
			hits.lexical, hits.lexicalErr = r.lexical.SearchLexical(callCtx, in.Query.SearchText(), in.Scope, filters, perList)
			return nil
		})
	} else {
		hits.lexicalErr = fmt.Errorf("lexical index not configured")
	}
	if r.vector != nil && len(in.Vector) > 0 {
		g.Go(func() error {
			callCtx, cancel := r.searchContext(ctx)
			defer cancel()
			hits.vector, hits.vectorErr = r.vector.SearchVector(callCtx, in.Vector, in.Scope, filters, perList, in.ScoreThreshold)
			return nil
		})
	} else {
		hits.vectorErr = fmt.Errorf("query vector unavailable")
	}
	_ = g.Wait()

	if hits.lexicalErr != nil {
		hits.lexical = nil
	}
	if hits.vectorErr != nil {
		hits.vector = nil
	}
	hits.vector = filterByScore(hits.vector, in.ScoreThreshold)
	return hits
}

func (r *HybridRetriever) searchContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.cfg.SearchTimeout > 0 {
		return context.WithTimeout(ctx, r.cfg.SearchTimeout)
	}
	return context.WithCancel(ctx)
}

// filterByScore drops vector hits below the similarity threshold. Indexes that
// already apply the threshold pass through unchanged.
func filterByScore(hits []domain.ScoredChunk, threshold float64) []domain.ScoredChunk {
	if threshold <= 0 {
		return hits
	}
	out := hits[:0:0]
	for _, h := range hits {
		if h.Score >= threshold {
			out = append(out, h)
		}
	}
	return out
}
