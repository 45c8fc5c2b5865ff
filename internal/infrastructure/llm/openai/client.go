package openai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	goopenai "github.com/sashabaranov/go-openai"

	"github.com/kirillkom/candidate-rag/internal/core/domain"
	"github.com/kirillkom/candidate-rag/internal/infrastructure/resilience"
)

// Client talks to any OpenAI-compatible endpoint.
type Client struct {
	api        *goopenai.Client
	model      string
	embedModel string
	exec       *resilience.Executor
}

func New(apiKey, baseURL, model, embedModel string, exec *resilience.Executor) (*Client, error) {
	apiKey = strings.TrimSpace(apiKey)
	baseURL = strings.TrimSpace(baseURL)
	if apiKey == "" && baseURL == "" {
		return nil, errors.New("openai api key is required")
	}
	config := goopenai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = strings.TrimRight(baseURL, "/")
	}
	return &Client{
		api:        goopenai.NewClientWithConfig(config),
		model:      model,
		embedModel: embedModel,
		exec:       exec,
	}, nil
}

func (c *Client) Generate(ctx context.Context, req domain.CompletionRequest) (domain.Completion, error) {
	messages := make([]goopenai.ChatCompletionMessage, 0, 2)
	if strings.TrimSpace(req.System) != "" {
		messages = append(messages, goopenai.ChatCompletionMessage{Role: goopenai.ChatMessageRoleSystem, Content: req.System})
	}
	messages = append(messages, goopenai.ChatCompletionMessage{Role: goopenai.ChatMessageRoleUser, Content: req.User})

	chatReq := goopenai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    messages,
		Temperature: float32(req.Temperature),
		MaxTokens:   req.MaxTokens,
	}
	if req.JSON {
		chatReq.ResponseFormat = &goopenai.ChatCompletionResponseFormat{Type: goopenai.ChatCompletionResponseFormatTypeJSONObject}
	}

	var resp goopenai.ChatCompletionResponse
	err := c.exec.ExecuteOnce(ctx, "openai.chat", func(callCtx context.Context) error {
		var callErr error
		resp, callErr = c.api.CreateChatCompletion(callCtx, chatReq)
		return callErr
	}, classifyOpenAIError)
	if err != nil {
		return domain.Completion{}, resilience.WrapUnavailable("openai.chat", err, classifyOpenAIError)
	}
	if len(resp.Choices) == 0 {
		return domain.Completion{}, fmt.Errorf("openai chat: empty choices")
	}
	return domain.Completion{
		Text:             strings.TrimSpace(resp.Choices[0].Message.Content),
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
	}, nil
}

func (c *Client) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	var resp goopenai.EmbeddingResponse
	err := c.exec.Execute(ctx, "openai.embed", func(callCtx context.Context) error {
		var callErr error
		resp, callErr = c.api.CreateEmbeddings(callCtx, goopenai.EmbeddingRequest{
			Input:          texts,
			Model:          goopenai.EmbeddingModel(c.embedModel),
			EncodingFormat: goopenai.EmbeddingEncodingFormatFloat,
		})
		return callErr
	}, classifyOpenAIError)
	if err != nil {
		return nil, resilience.WrapUnavailable("openai.embed", err, classifyOpenAIError)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("openai embed: expected %d vectors, got %d", len(texts), len(resp.Data))
	}
	out := make([][]float32, len(texts))
	for i, item := range resp.Data {
		idx := item.Index
		if idx < 0 || idx >= len(out) {
			idx = i
		}
		out[idx] = item.Embedding
	}
	return out, nil
}

func (c *Client) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := c.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("empty embedding result")
	}
	return vectors[0], nil
}

func classifyOpenAIError(err error) resilience.ErrorClassification {
	var apiErr *goopenai.APIError
	if errors.As(err, &apiErr) {
		return classifyStatus(apiErr.HTTPStatusCode)
	}
	var reqErr *goopenai.RequestError
	if errors.As(err, &reqErr) {
		return classifyStatus(reqErr.HTTPStatusCode)
	}
	return resilience.ClassifyHTTPError(err)
}

func classifyStatus(code int) resilience.ErrorClassification {
	if resilience.IsRetryableHTTPStatus(code) {
		return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
	}
	return resilience.ErrorClassification{Retryable: false, RecordFailure: false}
}
