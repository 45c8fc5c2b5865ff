package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/kirillkom/candidate-rag/internal/core/domain"
	"github.com/kirillkom/candidate-rag/internal/infrastructure/resilience"
)

const (
	defaultModel      = "gemini-2.5-flash"
	defaultEmbedModel = "text-embedding-004"
)

// Client wraps the Google GenAI client for completion and embeddings.
type Client struct {
	client     *genai.Client
	model      string
	embedModel string
	exec       *resilience.Executor
}

func New(ctx context.Context, apiKey, model, embedModel string, exec *resilience.Executor) (*Client, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, errors.New("gemini api key is required")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}

	if model = strings.TrimSpace(model); model == "" {
		model = defaultModel
	}
	if embedModel = strings.TrimSpace(embedModel); embedModel == "" {
		embedModel = defaultEmbedModel
	}
	return &Client{client: client, model: model, embedModel: embedModel, exec: exec}, nil
}

func (c *Client) Generate(ctx context.Context, req domain.CompletionRequest) (domain.Completion, error) {
	prompt := strings.TrimSpace(req.User)
	if prompt == "" {
		return domain.Completion{}, errors.New("prompt must not be empty")
	}

	cfg := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(float32(req.Temperature)),
	}
	if req.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(req.MaxTokens)
	}
	if strings.TrimSpace(req.System) != "" {
		cfg.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}
	if req.JSON {
		cfg.ResponseMIMEType = "application/json"
	}

	var resp *genai.GenerateContentResponse
	err := c.exec.ExecuteOnce(ctx, "gemini.generate", func(callCtx context.Context) error {
		var callErr error
		resp, callErr = c.client.Models.GenerateContent(callCtx, c.model, genai.Text(prompt), cfg)
		return callErr
	}, classifyGeminiError)
	if err != nil {
		return domain.Completion{}, resilience.WrapUnavailable("gemini.generate", err, classifyGeminiError)
	}

	output := responseText(resp)
	if output == "" {
		return domain.Completion{}, errors.New("gemini api returned empty response")
	}
	completion := domain.Completion{Text: output}
	if resp.UsageMetadata != nil {
		completion.PromptTokens = int(resp.UsageMetadata.PromptTokenCount)
		completion.CompletionTokens = int(resp.UsageMetadata.CandidatesTokenCount)
	}
	return completion, nil
}

func (c *Client) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	contents := make([]*genai.Content, 0, len(texts))
	for _, text := range texts {
		contents = append(contents, genai.NewContentFromText(text, genai.RoleUser))
	}

	var resp *genai.EmbedContentResponse
	err := c.exec.Execute(ctx, "gemini.embed", func(callCtx context.Context) error {
		var callErr error
		resp, callErr = c.client.Models.EmbedContent(callCtx, c.embedModel, contents, nil)
		return callErr
	}, classifyGeminiError)
	if err != nil {
		return nil, resilience.WrapUnavailable("gemini.embed", err, classifyGeminiError)
	}
	if resp == nil || len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("gemini embed: unexpected embedding count")
	}
	out := make([][]float32, 0, len(resp.Embeddings))
	for _, embedding := range resp.Embeddings {
		if embedding == nil {
			return nil, fmt.Errorf("gemini embed: nil embedding")
		}
		out = append(out, embedding.Values)
	}
	return out, nil
}

func (c *Client) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := c.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil {
		return ""
	}
	var builder strings.Builder
	for _, candidate := range resp.Candidates {
		if candidate == nil || candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if part == nil {
				continue
			}
			text := strings.TrimSpace(part.Text)
			if text == "" {
				continue
			}
			if builder.Len() > 0 {
				builder.WriteString("\n")
			}
			builder.WriteString(text)
		}
	}
	return strings.TrimSpace(builder.String())
}

func classifyGeminiError(err error) resilience.ErrorClassification {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		if resilience.IsRetryableHTTPStatus(apiErr.Code) {
			return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
		}
		return resilience.ErrorClassification{Retryable: false, RecordFailure: false}
	}
	return resilience.ClassifyHTTPError(err)
}
