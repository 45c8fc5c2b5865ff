package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"
	"time"
	"unicode"

	"github.com/kirillkom/candidate-rag/internal/core/domain"
	"github.com/kirillkom/candidate-rag/internal/core/ports"
)

type Reranker struct {
	scorer  ports.PairScorer
	timeout time.Duration
	logger  *slog.Logger
}

func NewReranker(scorer ports.PairScorer, timeout time.Duration, logger *slog.Logger) *Reranker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reranker{scorer: scorer, timeout: timeout, logger: logger}
}

// Rerank orders candidates by pairwise score, ties broken by fused rank. When the
// scorer fails the fused order is kept and degraded reports why.
func (r *Reranker) Rerank(ctx context.Context, query string, candidates []domain.RetrievalCandidate, topN int) (out []domain.RerankedCandidate, degraded string) {
	if len(candidates) == 0 {
		return nil, ""
	}
	if topN <= 0 || topN > len(candidates) {
		topN = len(candidates)
	}

	scores, err := r.score(ctx, query, candidates)
	if err != nil {
		r.logger.Warn("stage_degraded", "stage", "rerank", "reason", "scorer_failed", "error", err)
		return keepFusedOrder(candidates, topN), "scorer_failed"
	}

	out = make([]domain.RerankedCandidate, len(candidates))
	for i, c := range candidates {
		out[i] = domain.RerankedCandidate{RetrievalCandidate: c, RerankScore: scores[i]}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].RerankScore != out[j].RerankScore {
			return out[i].RerankScore > out[j].RerankScore
		}
		return out[i].FusedRank < out[j].FusedRank
	})
	out = out[:topN]
	for i := range out {
		out[i].Position = i + 1
	}
	return out, ""
}

func (r *Reranker) score(ctx context.Context, query string, candidates []domain.RetrievalCandidate) ([]float64, error) {
	if r.scorer == nil {
		return nil, fmt.Errorf("pair scorer not configured")
	}
	callCtx := ctx
	if r.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}
	pairs := make([]domain.TextPair, len(candidates))
	for i, c := range candidates {
		pairs[i] = domain.TextPair{Query: query, Text: rerankPassage(c.Chunk)}
	}
	scores, err := r.scorer.ScorePairs(callCtx, pairs)
	if err != nil {
		return nil, err
	}
	if len(scores) != len(pairs) {
		return nil, fmt.Errorf("pair scorer returned %d scores for %d pairs", len(scores), len(pairs))
	}
	for i, s := range scores {
		if math.IsNaN(s) || math.IsInf(s, 0) {
			return nil, fmt.Errorf("pair scorer returned non-finite score %v for candidate %s", s, candidates[i].Chunk.ID)
		}
	}
	return scores, nil
}

func rerankPassage(c domain.Chunk) string {
	var b strings.Builder
	if name := c.CandidateName(); name != "" {
		b.WriteString(name)
		b.WriteString(". ")
	}
	if section := c.SectionType(); section != "" {
		b.WriteString(section)
		b.WriteString(". ")
	}
	b.WriteString(c.Text)
	return b.String()
}

func keepFusedOrder(candidates []domain.RetrievalCandidate, topN int) []domain.RerankedCandidate {
	out := make([]domain.RerankedCandidate, 0, topN)
	for i, c := range candidates[:topN] {
		out = append(out, domain.RerankedCandidate{RetrievalCandidate: c, RerankScore: c.FusedScore, Position: i + 1})
	}
	return out
}

// HeuristicScorer is a local PairScorer based on query token overlap. It is used
// when no cross-encoder is deployed.
type HeuristicScorer struct{}

func (HeuristicScorer) ScorePairs(ctx context.Context, pairs []domain.TextPair) ([]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	scores := make([]float64, len(pairs))
	cache := make(map[string]map[string]struct{})
	for i, p := range pairs {
		queryTokens, ok := cache[p.Query]
		if !ok {
			queryTokens = toTokenSet(p.Query)
			cache[p.Query] = queryTokens
		}
		passage := toTokenSet(p.Text)
		scores[i] = 0.8*tokenOverlap(queryTokens, passage) + 0.2*bigramHit(p.Query, p.Text)
	}
	return scores, nil
}

var rerankStopwords = map[string]struct{}{
	"a": {}, "an": {}, "the": {}, "of": {}, "in": {}, "on": {}, "and": {}, "or": {}, "to": {}, "for": {},
	"with": {}, "is": {}, "are": {}, "was": {}, "who": {}, "what": {}, "which": {}, "does": {}, "do": {},
	"has": {}, "have": {}, "me": {}, "about": {}, "tell": {}, "their": {}, "his": {}, "her": {},
}

func tokenOverlap(query, chunk map[string]struct{}) float64 {
	if len(query) == 0 || len(chunk) == 0 {
		return 0
	}
	matches := 0
	for token := range query {
		if _, ok := chunk[token]; ok {
			matches++
		}
	}
	return float64(matches) / float64(len(query))
}

// bigramHit is 1 when any adjacent query token pair appears verbatim in the passage.
func bigramHit(query, passage string) float64 {
	tokens := splitAlphaNumLower(query)
	lower := strings.ToLower(passage)
	for i := 0; i+1 < len(tokens); i++ {
		if strings.Contains(lower, tokens[i]+" "+tokens[i+1]) {
			return 1
		}
	}
	return 0
}

func toTokenSet(s string) map[string]struct{} {
	tokens := splitAlphaNumLower(s)
	out := make(map[string]struct{}, len(tokens))
	for _, token := range tokens {
		if _, stop := rerankStopwords[token]; stop {
			continue
		}
		out[token] = struct{}{}
	}
	return out
}

func splitAlphaNumLower(s string) []string {
	if s == "" {
		return nil
	}

	tokens := make([]string, 0, 16)
	var b strings.Builder
	for _, r := range s {
		r = unicode.ToLower(r)
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '+' || r == '#' {
			b.WriteRune(r)
			continue
		}
		if b.Len() > 0 {
			tokens = append(tokens, b.String())
			b.Reset()
		}
	}
	if b.Len() > 0 {
		tokens = append(tokens, b.String())
	}
	return tokens
}
