package qdrant

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/kirillkom/candidate-rag/internal/core/domain"
	"github.com/kirillkom/candidate-rag/internal/infrastructure/resilience"
)

const (
	directoryPageSize  = 256
	directoryMaxPoints = 4096
)

type scrollResponse struct {
	Result struct {
		Points []struct {
			Payload map[string]any `json:"payload"`
		} `json:"points"`
		NextPageOffset any `json:"next_page_offset"`
	} `json:"result"`
}

// CandidateNames scrolls the scope reading only the candidate name payload.
// Large scopes are cut at directoryMaxPoints points.
func (c *Client) CandidateNames(ctx context.Context, scope domain.Scope) ([]string, error) {
	seen := make(map[string]string)
	var offset any
	for read := 0; read < directoryMaxPoints; {
		reqBody := map[string]any{
			"limit":        directoryPageSize,
			"with_payload": map[string]any{"include": []string{"metadata." + domain.MetaCandidateName}},
			"with_vector":  false,
		}
		if filter := scopeFilter(scope); filter != nil {
			reqBody["filter"] = filter
		}
		if offset != nil {
			reqBody["offset"] = offset
		}

		var resp scrollResponse
		err := c.exec.Execute(ctx, "qdrant.scroll", func(callCtx context.Context) error {
			return c.api.Call(callCtx, "POST", fmt.Sprintf("/collections/%s/points/scroll", c.collection), reqBody, &resp, "scroll")
		}, resilience.ClassifyHTTPError)
		if err != nil {
			return nil, resilience.WrapUnavailable("qdrant.scroll", err, nil)
		}

		for _, point := range resp.Result.Points {
			chunk := chunkFromPayload(point.Payload)
			if name := chunk.CandidateName(); name != "" {
				key := strings.ToLower(name)
				if _, ok := seen[key]; !ok {
					seen[key] = name
				}
			}
		}
		read += len(resp.Result.Points)
		if resp.Result.NextPageOffset == nil || len(resp.Result.Points) == 0 {
			break
		}
		offset = resp.Result.NextPageOffset
	}

	names := make([]string, 0, len(seen))
	for _, name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}
