package usecase

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/kirillkom/candidate-rag/internal/core/domain"
)

func fusedCandidates(ids ...string) []domain.RetrievalCandidate {
	lexical := scored(fusionChunks(ids...), make([]float64, len(ids))...)
	return fuseWeightedRRF(lexical, nil, FusionConfig{}, len(ids))
}

func TestRerankerOrdersByScore(t *testing.T) {
	scorer := &scorerFake{scores: func(pairs []domain.TextPair) []float64 {
		out := make([]float64, len(pairs))
		for i, p := range pairs {
			out[i] = 0.5
			if strings.Contains(p.Text, "text c") {
				out[i] = 0.9
			}
		}
		return out
	}}
	r := NewReranker(scorer, 0, discardLogger())

	out, degraded := r.Rerank(context.Background(), "query", fusedCandidates("a", "b", "c", "d"), 3)
	if degraded != "" {
		t.Fatalf("unexpected degradation %q", degraded)
	}
	if got := joinIDs(rerankedIDs(out)); got != "c,a,b" {
		t.Fatalf("expected score order with fused-rank ties, got %s", got)
	}
	for i, c := range out {
		if c.Position != i+1 {
			t.Fatalf("expected position %d, got %d", i+1, c.Position)
		}
	}
	if scorer.calls.Load() != 1 {
		t.Fatalf("expected one batched scorer call, got %d", scorer.calls.Load())
	}
}

func TestRerankerKeepsFusedOrderOnFailure(t *testing.T) {
	tests := []struct {
		name   string
		scorer *scorerFake
	}{
		{"error", &scorerFake{err: errors.New("tei timeout")}},
		{"short response", &scorerFake{scores: func([]domain.TextPair) []float64 { return []float64{1} }}},
		{"nan score", &scorerFake{scores: func([]domain.TextPair) []float64 { return []float64{0.2, math.NaN(), 0.9} }}},
		{"infinite score", &scorerFake{scores: func([]domain.TextPair) []float64 { return []float64{math.Inf(1), 0.1, 0.9} }}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			candidates := fusedCandidates("a", "b", "c")
			out, degraded := NewReranker(tc.scorer, 0, discardLogger()).Rerank(context.Background(), "q", candidates, 5)
			if degraded != "scorer_failed" {
				t.Fatalf("degraded = %q", degraded)
			}
			if got := joinIDs(rerankedIDs(out)); got != "a,b,c" {
				t.Fatalf("expected fused order, got %s", got)
			}
			if out[0].RerankScore != candidates[0].FusedScore {
				t.Fatalf("expected fused score to stand in for rerank score")
			}
		})
	}
}

func TestRerankPassageIncludesCandidateAndSection(t *testing.T) {
	chunk := resumeChunk("c1", "d1", "Alice Smith", "Built payment APIs.", map[string]any{domain.MetaSectionType: "experience"})
	if got := rerankPassage(chunk); got != "Alice Smith. experience. Built payment APIs." {
		t.Fatalf("unexpected passage %q", got)
	}
}

func TestHeuristicScorerPrefersOverlap(t *testing.T) {
	scores, err := HeuristicScorer{}.ScorePairs(context.Background(), []domain.TextPair{
		{Query: "Who has machine learning experience?", Text: "Five years of machine learning research at a lab."},
		{Query: "Who has machine learning experience?", Text: "Managed a retail store."},
	})
	if err != nil {
		t.Fatalf("ScorePairs() error = %v", err)
	}
	if scores[0] <= scores[1] {
		t.Fatalf("expected overlapping passage to score higher, got %v", scores)
	}
}
