package ollama

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/kirillkom/candidate-rag/internal/core/domain"
	"github.com/kirillkom/candidate-rag/internal/infrastructure/resilience"
)

type Client struct {
	api        resilience.Endpoint
	genModel   string
	embedModel string
	exec       *resilience.Executor
}

func New(baseURL, genModel, embedModel string, exec *resilience.Executor) *Client {
	return &Client{
		api:        resilience.NewEndpoint("ollama", baseURL, 120*time.Second),
		genModel:   genModel,
		embedModel: embedModel,
		exec:       exec,
	}
}

type Embedder struct {
	client *Client
}

func NewEmbedder(client *Client) *Embedder {
	return &Embedder{client: client}
}

func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	request := map[string]any{
		"model": e.client.embedModel,
		"input": texts,
	}

	var response struct {
		Embeddings [][]float32 `json:"embeddings"`
	}
	err := e.client.exec.Execute(ctx, "ollama.embed", func(callCtx context.Context) error {
		return e.client.api.Post(callCtx, "/api/embed", request, &response, "embed")
	}, classifyOllamaError)
	if err != nil {
		return nil, wrapUnavailable("ollama.embed", err)
	}
	if len(response.Embeddings) != len(texts) {
		return nil, fmt.Errorf("ollama embed: expected %d vectors, got %d", len(texts), len(response.Embeddings))
	}
	return response.Embeddings, nil
}

func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("empty embedding result")
	}
	return vectors[0], nil
}

// Completion implements the completion service over /api/chat.
type Completion struct {
	client *Client
}

func NewCompletion(client *Client) *Completion {
	return &Completion{client: client}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

func (c *Completion) Generate(ctx context.Context, req domain.CompletionRequest) (domain.Completion, error) {
	messages := make([]chatMessage, 0, 2)
	if strings.TrimSpace(req.System) != "" {
		messages = append(messages, chatMessage{Role: "system", Content: req.System})
	}
	messages = append(messages, chatMessage{Role: "user", Content: req.User})

	options := map[string]any{"temperature": req.Temperature}
	if req.MaxTokens > 0 {
		options["num_predict"] = req.MaxTokens
	}
	reqBody := map[string]any{
		"model":    c.client.genModel,
		"messages": messages,
		"stream":   false,
		"options":  options,
	}
	if req.JSON {
		reqBody["format"] = "json"
	}

	var response struct {
		Message         chatMessage `json:"message"`
		PromptEvalCount int         `json:"prompt_eval_count"`
		EvalCount       int         `json:"eval_count"`
	}
	err := c.client.exec.ExecuteOnce(ctx, "ollama.chat", func(callCtx context.Context) error {
		return c.client.api.Post(callCtx, "/api/chat", reqBody, &response, "chat")
	}, classifyOllamaError)
	if err != nil {
		return domain.Completion{}, wrapUnavailable("ollama.chat", err)
	}

	text := strings.TrimSpace(response.Message.Content)
	if req.JSON {
		text = extractJSONObject(text)
	}
	return domain.Completion{
		Text:             text,
		PromptTokens:     response.PromptEvalCount,
		CompletionTokens: response.EvalCount,
	}, nil
}

// EntailmentJudge asks the generation model for NLI probabilities. It backs
// claim verification when no dedicated NLI service is deployed.
type EntailmentJudge struct {
	client *Client
}

func NewEntailmentJudge(client *Client) *EntailmentJudge {
	return &EntailmentJudge{client: client}
}

func (j *EntailmentJudge) Classify(ctx context.Context, premise, hypothesis string) (domain.EntailmentScores, error) {
	reqBody := map[string]any{
		"model":   j.client.genModel,
		"prompt":  buildEntailmentPrompt(premise, hypothesis),
		"stream":  false,
		"format":  "json",
		"options": map[string]any{"temperature": 0},
	}

	var response struct {
		Response string `json:"response"`
	}
	err := j.client.exec.Execute(ctx, "ollama.entailment", func(callCtx context.Context) error {
		return j.client.api.Post(callCtx, "/api/generate", reqBody, &response, "entailment")
	}, classifyOllamaError)
	if err != nil {
		return domain.EntailmentScores{}, wrapUnavailable("ollama.entailment", err)
	}

	var scores domain.EntailmentScores
	if err := json.Unmarshal([]byte(extractJSONObject(response.Response)), &scores); err != nil {
		return domain.EntailmentScores{}, fmt.Errorf("parse entailment json: %w", err)
	}
	return normalizeScores(scores), nil
}

func normalizeScores(s domain.EntailmentScores) domain.EntailmentScores {
	s.Entailment = clamp01(s.Entailment)
	s.Neutral = clamp01(s.Neutral)
	s.Contradiction = clamp01(s.Contradiction)
	total := s.Entailment + s.Neutral + s.Contradiction
	if total <= 0 {
		return domain.EntailmentScores{Neutral: 1}
	}
	return domain.EntailmentScores{
		Entailment:    s.Entailment / total,
		Neutral:       s.Neutral / total,
		Contradiction: s.Contradiction / total,
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func extractJSONObject(raw string) string {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start >= 0 && end > start {
		return raw[start : end+1]
	}
	return raw
}
