package usecase

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/kirillkom/candidate-rag/internal/core/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type embedderFake struct {
	vectors [][]float32
	err     error
	texts   []string
	calls   atomic.Int32
}

func (f *embedderFake) Embed(_ context.Context, texts []string) ([][]float32, error) {
	f.calls.Add(1)
	f.texts = texts
	if f.err != nil {
		return nil, f.err
	}
	if f.vectors != nil {
		return f.vectors, nil
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0, 0}
	}
	return out, nil
}

func (f *embedderFake) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := f.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

type vectorIndexFake struct {
	hits      []domain.ScoredChunk
	err       error
	count     int
	countErr  error
	limit     atomic.Int32
	calls     atomic.Int32
	countSeen atomic.Int32

	mu      sync.Mutex
	filters []domain.MetadataFilter
}

func (f *vectorIndexFake) SearchVector(_ context.Context, _ []float32, _ domain.Scope, filters domain.MetadataFilter, limit int, _ float64) ([]domain.ScoredChunk, error) {
	f.calls.Add(1)
	f.limit.Store(int32(limit))
	f.mu.Lock()
	f.filters = append(f.filters, filters)
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return matching(f.hits, filters), nil
}

// matching keeps the hits whose chunk satisfies filters.
func matching(hits []domain.ScoredChunk, filters domain.MetadataFilter) []domain.ScoredChunk {
	if len(filters) == 0 {
		return hits
	}
	var out []domain.ScoredChunk
	for _, h := range hits {
		if filters.Matches(h.Chunk) {
			out = append(out, h)
		}
	}
	return out
}

func (f *vectorIndexFake) CountChunks(context.Context, domain.Scope) (int, error) {
	f.countSeen.Add(1)
	return f.count, f.countErr
}

type lexicalIndexFake struct {
	hits    []domain.ScoredChunk
	err     error
	text    string
	limit   int
	filters []domain.MetadataFilter
	calls   atomic.Int32
}

func (f *lexicalIndexFake) SearchLexical(_ context.Context, text string, _ domain.Scope, filters domain.MetadataFilter, limit int) ([]domain.ScoredChunk, error) {
	f.calls.Add(1)
	f.text = text
	f.limit = limit
	f.filters = append(f.filters, filters)
	if f.err != nil {
		return nil, f.err
	}
	return matching(f.hits, filters), nil
}

type directoryFake struct {
	names []string
	err   error
	calls atomic.Int32
}

func (f *directoryFake) CandidateNames(context.Context, domain.Scope) ([]string, error) {
	f.calls.Add(1)
	return f.names, f.err
}

type scorerFake struct {
	scores func(pairs []domain.TextPair) []float64
	err    error
	calls  atomic.Int32
}

func (f *scorerFake) ScorePairs(_ context.Context, pairs []domain.TextPair) ([]float64, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	return f.scores(pairs), nil
}

// completionFake answers generation requests with drafts in order; the last
// draft repeats. JSON requests get the expansion payload.
type completionFake struct {
	mu        sync.Mutex
	drafts    []string
	expansion string
	err       error
	requests  []domain.CompletionRequest
}

func (f *completionFake) Generate(_ context.Context, req domain.CompletionRequest) (domain.Completion, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if f.err != nil {
		return domain.Completion{}, f.err
	}
	if req.JSON {
		return domain.Completion{Text: f.expansion}, nil
	}
	n := len(f.generationRequestsLocked()) - 1
	if n >= len(f.drafts) {
		n = len(f.drafts) - 1
	}
	return domain.Completion{Text: f.drafts[n], PromptTokens: 100, CompletionTokens: 50}, nil
}

func (f *completionFake) generations() []domain.CompletionRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.generationRequestsLocked()
}

func (f *completionFake) generationRequestsLocked() []domain.CompletionRequest {
	var out []domain.CompletionRequest
	for _, r := range f.requests {
		if !r.JSON {
			out = append(out, r)
		}
	}
	return out
}

// nliFake scores a claim by looking up its text in premise rules.
type nliFake struct {
	classify func(premise, hypothesis string) (domain.EntailmentScores, error)
	calls    atomic.Int32
}

func (f *nliFake) Classify(_ context.Context, premise, hypothesis string) (domain.EntailmentScores, error) {
	f.calls.Add(1)
	return f.classify(premise, hypothesis)
}

func entailAll(string, string) (domain.EntailmentScores, error) {
	return domain.EntailmentScores{Entailment: 0.95, Neutral: 0.04, Contradiction: 0.01}, nil
}

func contradictAll(string, string) (domain.EntailmentScores, error) {
	return domain.EntailmentScores{Entailment: 0.01, Neutral: 0.04, Contradiction: 0.95}, nil
}

type zeroShotFake struct {
	scores map[string]float64
	err    error
	calls  atomic.Int32
}

func (f *zeroShotFake) ClassifyZeroShot(context.Context, string, []string) (map[string]float64, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	return f.scores, nil
}

type cacheFake struct {
	mu      sync.Mutex
	entries map[string]*domain.QueryResult
	stores  int
}

func (f *cacheFake) Lookup(scope domain.Scope, structure string, _ []float32) (*domain.QueryResult, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.entries[scope.Key()+"#"+structure]
	if !ok {
		return nil, false
	}
	cp := *r
	return &cp, true
}

func (f *cacheFake) Store(scope domain.Scope, structure string, _ []float32, result *domain.QueryResult) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.entries == nil {
		f.entries = make(map[string]*domain.QueryResult)
	}
	cp := *result
	f.entries[scope.Key()+"#"+structure] = &cp
	f.stores++
}

type publisherFake struct {
	mu     sync.Mutex
	events []domain.QueryCompletedEvent
	err    error
}

func (f *publisherFake) PublishQueryCompleted(_ context.Context, event domain.QueryCompletedEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
	return f.err
}

type metricsFake struct {
	mu           sync.Mutex
	steps        []string
	degradations []string
	outcomes     []domain.Decision
	guardrails   int
	tokens       int
}

func (f *metricsFake) RecordStep(step domain.PipelineStep) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.steps = append(f.steps, step.Name)
}

func (f *metricsFake) RecordOutcome(_ domain.QueryType, decision domain.Decision, _ int, _ bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.outcomes = append(f.outcomes, decision)
}

func (f *metricsFake) RecordGuardrail(string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.guardrails++
}

func (f *metricsFake) RecordDegradation(stage, reason string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.degradations = append(f.degradations, stage+":"+reason)
}

func (f *metricsFake) RecordTokenUsage(prompt, completion int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tokens += prompt + completion
}

func resumeChunk(id, doc, name, text string, meta map[string]any) domain.Chunk {
	m := map[string]any{domain.MetaCandidateName: name}
	for k, v := range meta {
		m[k] = v
	}
	return domain.Chunk{ID: id, DocumentID: doc, Text: text, Metadata: m}
}

func scored(chunks []domain.Chunk, scores ...float64) []domain.ScoredChunk {
	out := make([]domain.ScoredChunk, len(chunks))
	for i, c := range chunks {
		out[i] = domain.ScoredChunk{Chunk: c, Score: scores[i]}
	}
	return out
}

func candidateIDs(candidates []domain.RetrievalCandidate) []string {
	out := make([]string, len(candidates))
	for i, c := range candidates {
		out[i] = c.Chunk.ID
	}
	return out
}

func rerankedIDs(candidates []domain.RerankedCandidate) []string {
	out := make([]string, len(candidates))
	for i, c := range candidates {
		out[i] = c.Chunk.ID
	}
	return out
}

func joinIDs(ids []string) string {
	return strings.Join(ids, ",")
}
