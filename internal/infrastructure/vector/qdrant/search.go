package qdrant

import (
	"context"
	"fmt"

	"github.com/kirillkom/candidate-rag/internal/core/domain"
	"github.com/kirillkom/candidate-rag/internal/infrastructure/resilience"
)

type queryResponse struct {
	Result struct {
		Points []struct {
			Score   float64        `json:"score"`
			Payload map[string]any `json:"payload"`
		} `json:"points"`
	} `json:"result"`
}

func (c *Client) SearchVector(
	ctx context.Context,
	vector []float32,
	scope domain.Scope,
	filters domain.MetadataFilter,
	limit int,
	minScore float64,
) ([]domain.ScoredChunk, error) {
	if len(vector) == 0 || limit <= 0 {
		return nil, nil
	}
	reqBody := map[string]any{
		"query":        vector,
		"using":        denseVectorName,
		"limit":        limit,
		"with_payload": true,
	}
	if minScore > 0 {
		reqBody["score_threshold"] = minScore
	}
	return c.query(ctx, reqBody, scope, filters, "qdrant.search_vector")
}

func (c *Client) SearchLexical(
	ctx context.Context,
	text string,
	scope domain.Scope,
	filters domain.MetadataFilter,
	limit int,
) ([]domain.ScoredChunk, error) {
	sparse := encodeSparseQuery(text)
	if len(sparse.Indices) == 0 || limit <= 0 {
		return nil, nil
	}
	reqBody := map[string]any{
		"query":        sparse,
		"using":        sparseVectorName,
		"limit":        limit,
		"with_payload": true,
	}
	return c.query(ctx, reqBody, scope, filters, "qdrant.search_lexical")
}

func (c *Client) query(ctx context.Context, reqBody map[string]any, scope domain.Scope, filters domain.MetadataFilter, operation string) ([]domain.ScoredChunk, error) {
	if filter := searchFilter(scope, filters); filter != nil {
		reqBody["filter"] = filter
	}

	var resp queryResponse
	err := c.exec.Execute(ctx, operation, func(callCtx context.Context) error {
		return c.api.Call(callCtx, "POST", fmt.Sprintf("/collections/%s/points/query", c.collection), reqBody, &resp, "query")
	}, resilience.ClassifyHTTPError)
	if err != nil {
		return nil, resilience.WrapUnavailable(operation, err, nil)
	}

	out := make([]domain.ScoredChunk, 0, len(resp.Result.Points))
	for _, point := range resp.Result.Points {
		out = append(out, domain.ScoredChunk{
			Chunk: chunkFromPayload(point.Payload),
			Score: point.Score,
		})
	}
	return out, nil
}

func (c *Client) CountChunks(ctx context.Context, scope domain.Scope) (int, error) {
	reqBody := map[string]any{"exact": true}
	if filter := scopeFilter(scope); filter != nil {
		reqBody["filter"] = filter
	}

	var resp struct {
		Result struct {
			Count int `json:"count"`
		} `json:"result"`
	}
	err := c.exec.Execute(ctx, "qdrant.count", func(callCtx context.Context) error {
		return c.api.Call(callCtx, "POST", fmt.Sprintf("/collections/%s/points/count", c.collection), reqBody, &resp, "count")
	}, resilience.ClassifyHTTPError)
	if err != nil {
		return 0, resilience.WrapUnavailable("qdrant.count", err, nil)
	}
	return resp.Result.Count, nil
}
