package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/candidate-rag/internal/core/domain"
	"github.com/kirillkom/candidate-rag/internal/core/output"
	"github.com/kirillkom/candidate-rag/internal/core/ports"
)

const (
	rejectedAnswer = "### Answer\nI can only answer questions about the candidates and their résumés."
	disclaimer     = "> Note: parts of this answer could not be fully verified against the résumés. Please check the cited sources."
)

type PipelineConfig struct {
	DefaultTopK      int
	MaxTopK          int
	Policy           DecisionPolicy
	DirectoryTimeout time.Duration
}

// QueryDependencies wires the pipeline stages. Candidates, Cache, Publisher
// and Metrics are optional.
type QueryDependencies struct {
	Guardrail    *Guardrail
	Analyzer     *QueryAnalyzer
	Retriever    *HybridRetriever
	Reranker     *Reranker
	Generator    *Generator
	Verifier     *ClaimVerifier
	Orchestrator *output.Orchestrator
	Chunks       ports.VectorIndex
	Candidates   ports.CandidateDirectory
	Cache        ports.SemanticCache
	Publisher    ports.EventPublisher
	Metrics      ports.PipelineMetrics
	Logger       *slog.Logger
}

type QueryUseCase struct {
	guardrail    *Guardrail
	analyzer     *QueryAnalyzer
	retriever    *HybridRetriever
	reranker     *Reranker
	generator    *Generator
	verifier     *ClaimVerifier
	orchestrator *output.Orchestrator
	chunks       ports.VectorIndex
	candidates   ports.CandidateDirectory
	cache        ports.SemanticCache
	publisher    ports.EventPublisher
	metrics      ports.PipelineMetrics
	logger       *slog.Logger
	cfg          PipelineConfig

	now   func() time.Time
	newID func() string
}

func NewQueryUseCase(deps QueryDependencies, cfg PipelineConfig) *QueryUseCase {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.DefaultTopK <= 0 {
		cfg.DefaultTopK = 5
	}
	if cfg.MaxTopK < cfg.DefaultTopK {
		cfg.MaxTopK = max(cfg.DefaultTopK, 20)
	}
	cfg.Policy = cfg.Policy.normalize()

	uc := &QueryUseCase{
		guardrail:    deps.Guardrail,
		analyzer:     deps.Analyzer,
		retriever:    deps.Retriever,
		reranker:     deps.Reranker,
		generator:    deps.Generator,
		verifier:     deps.Verifier,
		orchestrator: deps.Orchestrator,
		chunks:       deps.Chunks,
		candidates:   deps.Candidates,
		cache:        deps.Cache,
		publisher:    deps.Publisher,
		metrics:      deps.Metrics,
		logger:       logger,
		cfg:          cfg,
		now:          time.Now,
		newID:        uuid.NewString,
	}
	if uc.guardrail == nil {
		uc.guardrail = NewGuardrail(nil, GuardrailConfig{}, logger)
	}
	if uc.analyzer == nil {
		uc.analyzer = NewQueryAnalyzer(nil, 0, logger)
	}
	if uc.reranker == nil {
		uc.reranker = NewReranker(HeuristicScorer{}, 0, logger)
	}
	if uc.verifier == nil {
		uc.verifier = NewClaimVerifier(nil, VerifyConfig{}, logger)
	}
	if uc.orchestrator == nil {
		uc.orchestrator = output.NewOrchestrator(logger)
	}
	if uc.metrics == nil {
		uc.metrics = noopMetrics{}
	}
	return uc
}

type pipelineRun struct {
	id     string
	req    domain.QueryRequest
	query  domain.Query
	guard  domain.GuardrailDecision
	vector []float32
	steps  *stepLog
	tokens int
}

func (uc *QueryUseCase) RunQuery(ctx context.Context, req domain.QueryRequest) (*domain.QueryResult, error) {
	req.Text = strings.TrimSpace(req.Text)
	if req.Text == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "run query", fmt.Errorf("question is required"))
	}
	if req.Structure != "" {
		if _, ok := output.LookupStructure(req.Structure); !ok {
			return nil, domain.WrapError(domain.ErrInvalidInput, "run query", fmt.Errorf("unknown structure %q", req.Structure))
		}
	}
	req.TopK = uc.topK(req.TopK)
	req.ScoreThreshold = clamp01(req.ScoreThreshold)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	run := &pipelineRun{
		id:    uc.newID(),
		req:   req,
		query: domain.Query{Text: req.Text, Resolved: req.Text, Type: domain.QueryTypeGeneral},
		steps: &stepLog{metrics: uc.metrics},
	}
	uc.logger.Debug("query_received",
		"run_id", run.id,
		"session_id", req.Scope.SessionID,
		"question", req.Text,
		"structure", req.Structure,
	)

	hasChunks := uc.scopeHasChunks(ctx, run)

	start := time.Now()
	run.guard = uc.guardrail.Check(ctx, req.Text, hasChunks)
	run.steps.record("guardrail", start, nil, map[string]any{
		"allowed": run.guard.Allowed,
		"method":  run.guard.Method,
	})
	uc.metrics.RecordGuardrail(run.guard.Method, run.guard.Allowed)
	if !run.guard.Allowed {
		return uc.finish(ctx, run, uc.rejected(run)), nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	known := uc.knownCandidates(ctx, run)
	start = time.Now()
	analysis := uc.analyzer.Analyze(ctx, AnalyzeInput{
		Text:            req.Text,
		History:         req.History,
		KnownCandidates: known,
	})
	run.query = analysis.Query
	understandingMeta := map[string]any{
		"query_type": string(run.query.Type),
		"variations": len(run.query.Variations),
		"resolved":   run.query.Resolved != run.query.Text,
	}
	if analysis.Degraded != "" {
		run.steps.degraded("query_understanding", start, analysis.Degraded, understandingMeta)
	} else {
		run.steps.record("query_understanding", start, nil, understandingMeta)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if !hasChunks {
		return uc.finish(ctx, run, uc.noEvidence(run, "empty_scope")), nil
	}

	if cached := uc.embedAndLookup(ctx, run); cached != nil {
		return uc.finish(ctx, run, cached), nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	start = time.Now()
	outcome, err := uc.retriever.Retrieve(ctx, RetrieveInput{
		Query:          run.query,
		Vector:         run.vector,
		Scope:          req.Scope,
		TopK:           req.TopK,
		ScoreThreshold: req.ScoreThreshold,
	})
	if err != nil {
		return nil, err
	}
	retrievalMeta := map[string]any{
		"lexical_hits": outcome.LexicalHits,
		"vector_hits":  outcome.VectorHits,
		"candidates":   len(outcome.Candidates),
	}
	if filters := run.query.Entities.Filters; len(filters) > 0 {
		retrievalMeta["filters"] = filters
		retrievalMeta["filter_relaxed"] = outcome.FilterRelaxed
	}
	if len(outcome.Degraded) > 0 {
		run.steps.degraded("retrieval", start, strings.Join(outcome.Degraded, ","), retrievalMeta)
	} else {
		run.steps.record("retrieval", start, nil, retrievalMeta)
	}
	if len(outcome.Candidates) == 0 {
		return uc.finish(ctx, run, uc.noEvidence(run, "no_results")), nil
	}

	start = time.Now()
	reranked, rerankDegraded := uc.reranker.Rerank(ctx, run.query.SearchText(), outcome.Candidates, req.TopK)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if rerankDegraded != "" {
		run.steps.degraded("rerank", start, rerankDegraded, map[string]any{"candidates": len(reranked)})
	} else {
		run.steps.record("rerank", start, nil, map[string]any{"candidates": len(reranked)})
	}

	result, err := uc.generateVerified(ctx, run, reranked)
	if err != nil {
		return nil, err
	}
	return uc.finish(ctx, run, result), nil
}

func (uc *QueryUseCase) scopeHasChunks(ctx context.Context, run *pipelineRun) bool {
	if uc.chunks == nil {
		return true
	}
	start := time.Now()
	count, err := uc.chunks.CountChunks(ctx, run.req.Scope)
	if err != nil {
		// The retrievers decide when the count is unknown.
		uc.logger.Warn("stage_degraded", "stage", "scope_count", "reason", "count_failed", "error", err)
		run.steps.degraded("scope_count", start, "count_failed", nil)
		return true
	}
	run.steps.record("scope_count", start, nil, map[string]any{"chunks": count})
	return count > 0
}

// knownCandidates returns the names sent by the caller, or asks the index
// which candidates the scope holds so names and pronouns can be resolved.
func (uc *QueryUseCase) knownCandidates(ctx context.Context, run *pipelineRun) []string {
	if len(run.req.KnownCandidates) > 0 || uc.candidates == nil {
		return run.req.KnownCandidates
	}
	callCtx := ctx
	if uc.cfg.DirectoryTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, uc.cfg.DirectoryTimeout)
		defer cancel()
	}
	start := time.Now()
	names, err := uc.candidates.CandidateNames(callCtx, run.req.Scope)
	if err != nil {
		uc.logger.Warn("stage_degraded", "stage", "candidate_directory", "reason", "lookup_failed", "error", err)
		run.steps.degraded("candidate_directory", start, "lookup_failed", nil)
		return nil
	}
	run.steps.record("candidate_directory", start, nil, map[string]any{"candidates": len(names)})
	return names
}

// embedAndLookup computes the query vector and returns a cached result on a hit.
func (uc *QueryUseCase) embedAndLookup(ctx context.Context, run *pipelineRun) *domain.QueryResult {
	start := time.Now()
	vector, err := uc.retriever.QueryVector(ctx, run.query)
	if err != nil {
		uc.logger.Warn("stage_degraded", "stage", "embedding", "reason", "embed_failed", "error", err)
		run.steps.degraded("embedding", start, "embed_failed", nil)
		return nil
	}
	run.vector = vector
	run.steps.record("embedding", start, nil, map[string]any{"inputs": len(queryEmbeddingTexts(run.query))})

	if uc.cache == nil {
		return nil
	}
	start = time.Now()
	cached, ok := uc.cache.Lookup(run.req.Scope, run.req.Structure, vector)
	run.steps.record("cache_lookup", start, nil, map[string]any{"hit": ok})
	if !ok {
		return nil
	}
	cached.RunID = run.id
	cached.CacheHit = true
	cached.Guardrail = run.guard
	cached.TokensUsed = 0
	return cached
}

type attemptResult struct {
	draft    Draft
	report   domain.VerificationReport
	score    domain.ConfidenceScore
	decision domain.Decision
	reason   string
	attempt  int
}

// generateVerified runs the bounded generate, verify and decide loop.
func (uc *QueryUseCase) generateVerified(ctx context.Context, run *pipelineRun, reranked []domain.RerankedCandidate) (*domain.QueryResult, error) {
	chunks := domain.ChunksOf(reranked)
	required := uc.generator.RequiredSections(run.query.Type)

	var (
		last     attemptResult
		feedback []domain.Claim
	)
	for attempt := 1; attempt <= uc.cfg.Policy.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		start := time.Now()
		draft, err := uc.generator.Generate(ctx, GenerationInput{
			Query:    run.query,
			Chunks:   reranked,
			Attempt:  attempt,
			Feedback: feedback,
		})
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			run.steps.record("generation", start, err, map[string]any{"attempt": attempt})
			uc.logger.Error("generation_failed", "run_id", run.id, "attempt", attempt, "error", err)
			last = attemptResult{decision: domain.DecisionDecline, reason: "generation_failed", attempt: attempt}
			break
		}
		run.tokens += draft.PromptTokens + draft.CompletionTokens
		uc.metrics.RecordTokenUsage(draft.PromptTokens, draft.CompletionTokens)
		run.steps.record("generation", start, nil, map[string]any{
			"attempt":        attempt,
			"temperature":    draft.Temperature,
			"context_chunks": draft.ContextChunks,
		})

		start = time.Now()
		report := uc.verifier.Verify(ctx, draft.Text, chunks)
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		verifyMeta := map[string]any{
			"attempt":      attempt,
			"claims":       len(report.Claims),
			"supported":    report.Supported,
			"contradicted": report.Contradicted,
			"faithfulness": report.Faithfulness,
		}
		if report.Skipped {
			run.steps.degraded("verification", start, "nli_unavailable", verifyMeta)
		} else {
			run.steps.record("verification", start, nil, verifyMeta)
		}

		start = time.Now()
		score := ScoreConfidence(ConfidenceInput{
			Query:            run.query,
			Chunks:           reranked,
			Draft:            draft.Text,
			RequiredSections: required,
			Verification:     report,
		})
		decision, reason := uc.cfg.Policy.Decide(score, report, attempt)
		run.steps.record("decision", start, nil, map[string]any{
			"attempt":  attempt,
			"overall":  score.Overall,
			"decision": string(decision),
		})

		last = attemptResult{draft: draft, report: report, score: score, decision: decision, reason: reason, attempt: attempt}
		if decision != domain.DecisionRegenerate {
			break
		}
		uc.logger.Info("regenerating_answer", "run_id", run.id, "attempt", attempt, "reason", reason)
		feedback = regenerationFeedback(report)
	}

	result := &domain.QueryResult{
		RunID:         run.id,
		QueryType:     run.query.Type,
		Sources:       sourcesOf(reranked),
		Confidence:    last.score,
		Decision:      last.decision,
		DeclineReason: last.reason,
		Attempts:      last.attempt,
		Guardrail:     run.guard,
		Verification:  last.report,
	}
	switch last.decision {
	case domain.DecisionSend:
		result.DeclineReason = ""
		result.Answer = last.draft.Text
		result.Structured = uc.orchestrator.Assemble(run.query.Type, run.req.Structure, last.draft.Text, chunks)
	case domain.DecisionSendWithDisclaimer:
		result.DeclineReason = ""
		result.Answer = disclaimer + "\n\n" + last.draft.Text
		result.Structured = uc.orchestrator.Assemble(run.query.Type, run.req.Structure, last.draft.Text, chunks)
	default:
		result.Decision = domain.DecisionDecline
		result.Answer = declineAnswer(last.reason)
		result.Structured = uc.orchestrator.Assemble(run.query.Type, run.req.Structure, result.Answer, chunks)
	}
	return result, nil
}

func (uc *QueryUseCase) rejected(run *pipelineRun) *domain.QueryResult {
	return &domain.QueryResult{
		RunID:         run.id,
		Answer:        rejectedAnswer,
		Structured:    uc.orchestrator.Assemble(domain.QueryTypeGeneral, "", rejectedAnswer, nil),
		Sources:       []domain.Source{},
		Decision:      domain.DecisionDecline,
		DeclineReason: run.guard.Reason,
		QueryType:     domain.QueryTypeGeneral,
		Guardrail:     run.guard,
	}
}

// noEvidence answers without calling the completion service.
func (uc *QueryUseCase) noEvidence(run *pipelineRun, reason string) *domain.QueryResult {
	start := time.Now()
	draft := uc.generator.NoInformation()
	run.steps.record("generation", start, nil, map[string]any{"no_information": true, "reason": reason})
	return &domain.QueryResult{
		RunID:         run.id,
		Answer:        draft.Text,
		Structured:    uc.orchestrator.Assemble(run.query.Type, run.req.Structure, draft.Text, nil),
		Sources:       []domain.Source{},
		Decision:      domain.DecisionDecline,
		DeclineReason: "no_evidence: " + reason,
		QueryType:     run.query.Type,
		Guardrail:     run.guard,
	}
}

func (uc *QueryUseCase) finish(ctx context.Context, run *pipelineRun, result *domain.QueryResult) *domain.QueryResult {
	result.Steps = run.steps.snapshot()
	if !result.CacheHit {
		result.TokensUsed = run.tokens
	}
	if uc.cache != nil && run.vector != nil && !result.CacheHit && result.Decision.Delivers() {
		uc.cache.Store(run.req.Scope, run.req.Structure, run.vector, result)
	}

	uc.metrics.RecordOutcome(result.QueryType, result.Decision, result.Attempts, result.CacheHit)
	if uc.publisher != nil {
		event := domain.QueryCompletedEvent{Run: domain.NewQueryRun(run.req, result, uc.now())}
		if err := uc.publisher.PublishQueryCompleted(ctx, event); err != nil {
			uc.logger.Warn("event_publish_failed", "run_id", run.id, "error", err)
		}
	}
	uc.logger.Info("query_completed",
		"run_id", run.id,
		"query_type", result.QueryType,
		"decision", result.Decision,
		"confidence", result.Confidence.Overall,
		"attempts", result.Attempts,
		"cache_hit", result.CacheHit,
	)
	return result
}

func (uc *QueryUseCase) topK(requested int) int {
	if requested <= 0 {
		return uc.cfg.DefaultTopK
	}
	if requested > uc.cfg.MaxTopK {
		return uc.cfg.MaxTopK
	}
	return requested
}

func sourcesOf(reranked []domain.RerankedCandidate) []domain.Source {
	out := make([]domain.Source, 0, len(reranked))
	for _, c := range reranked {
		out = append(out, domain.Source{
			ChunkID:       c.Chunk.ID,
			DocumentID:    c.Chunk.DocumentID,
			CandidateName: c.Chunk.CandidateName(),
			Score:         c.RerankScore,
		})
	}
	return out
}

func declineAnswer(reason string) string {
	text := "### Answer\nI could not produce an answer that is sufficiently supported by the provided résumés."
	if reason != "" {
		text += "\n\n### Conclusion\nReason: " + reason
	}
	return text
}
