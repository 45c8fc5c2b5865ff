package domain

import "time"

type PipelineStep struct {
	Name       string         `json:"name"`
	DurationMS float64        `json:"duration_ms"`
	Success    bool           `json:"success"`
	Error      string         `json:"error,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

type CompletionRequest struct {
	System      string
	User        string
	Temperature float64
	MaxTokens   int
	JSON        bool
}

type Completion struct {
	Text             string `json:"text"`
	PromptTokens     int    `json:"prompt_tokens"`
	CompletionTokens int    `json:"completion_tokens"`
}

type QueryRequest struct {
	Text           string             `json:"question"`
	Scope          Scope              `json:"scope"`
	History        []ConversationTurn `json:"history,omitempty"`
	TopK           int                `json:"top_k,omitempty"`
	ScoreThreshold float64            `json:"score_threshold,omitempty"`
	// Structure overrides the structure chosen from the query type.
	Structure string `json:"structure,omitempty"`
	// KnownCandidates lists candidate names already loaded in the scope.
	KnownCandidates []string `json:"known_candidates,omitempty"`
}

type Source struct {
	ChunkID       string  `json:"chunk_id"`
	DocumentID    string  `json:"document_id"`
	CandidateName string  `json:"candidate_name,omitempty"`
	Score         float64 `json:"score"`
}

type QueryResult struct {
	RunID         string             `json:"run_id"`
	Answer        string             `json:"answer_markdown"`
	Structured    StructuredOutput   `json:"structured_output"`
	Sources       []Source           `json:"sources"`
	Confidence    ConfidenceScore    `json:"confidence"`
	Decision      Decision           `json:"decision"`
	DeclineReason string             `json:"decline_reason,omitempty"`
	QueryType     QueryType          `json:"query_type"`
	Attempts      int                `json:"attempts"`
	Guardrail     GuardrailDecision  `json:"guardrail"`
	Verification  VerificationReport `json:"verification"`
	Steps         []PipelineStep     `json:"metrics"`
	TokensUsed    int                `json:"tokens_used"`
	CacheHit      bool               `json:"cache_hit"`
}

// QueryRun is the audit record of a completed request.
type QueryRun struct {
	ID         string           `json:"id"`
	SessionID  string           `json:"session_id"`
	Question   string           `json:"question"`
	QueryType  QueryType        `json:"query_type"`
	Decision   Decision         `json:"decision"`
	Confidence ConfidenceScore  `json:"confidence"`
	Answer     string           `json:"answer_markdown"`
	Structured StructuredOutput `json:"structured_output"`
	Steps      []PipelineStep   `json:"metrics"`
	Attempts   int              `json:"attempts"`
	CacheHit   bool             `json:"cache_hit"`
	CreatedAt  time.Time        `json:"created_at"`
}

// QueryCompletedEvent is published once a request finishes.
type QueryCompletedEvent struct {
	Run QueryRun `json:"run"`
}

// IndexUpdatedEvent announces that chunks of a scope changed.
type IndexUpdatedEvent struct {
	Scope Scope `json:"scope"`
}

func NewQueryRun(req QueryRequest, result *QueryResult, at time.Time) QueryRun {
	return QueryRun{
		ID:         result.RunID,
		SessionID:  req.Scope.SessionID,
		Question:   req.Text,
		QueryType:  result.QueryType,
		Decision:   result.Decision,
		Confidence: result.Confidence,
		Answer:     result.Answer,
		Structured: result.Structured,
		Steps:      result.Steps,
		Attempts:   result.Attempts,
		CacheHit:   result.CacheHit,
		CreatedAt:  at.UTC(),
	}
}
