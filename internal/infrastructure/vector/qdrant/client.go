package qdrant

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/kirillkom/candidate-rag/internal/core/domain"
	"github.com/kirillkom/candidate-rag/internal/infrastructure/resilience"
)

const (
	denseVectorName  = "dense"
	sparseVectorName = "lexical"
)

// Client serves both dense and sparse (BM25-style) search over one collection
// with named vectors.
type Client struct {
	api        resilience.Endpoint
	collection string
	exec       *resilience.Executor

	ensureMu          sync.Mutex
	ensuredCollection bool
	ensuredVectorSize int
}

func New(baseURL, collection string, exec *resilience.Executor) *Client {
	return &Client{
		api:        resilience.NewEndpoint("qdrant", baseURL, 60*time.Second),
		collection: collection,
		exec:       exec,
	}
}

func (c *Client) ensureCollection(ctx context.Context, vectorSize int) error {
	c.ensureMu.Lock()
	if c.ensuredCollection && c.ensuredVectorSize == vectorSize {
		c.ensureMu.Unlock()
		return nil
	}
	c.ensureMu.Unlock()

	reqBody := map[string]any{
		"vectors": map[string]any{
			denseVectorName: map[string]any{
				"size":     vectorSize,
				"distance": "Cosine",
			},
		},
		"sparse_vectors": map[string]any{
			sparseVectorName: map[string]any{"modifier": "idf"},
		},
	}

	err := c.api.Call(ctx, http.MethodPut, fmt.Sprintf("/collections/%s", c.collection), reqBody, nil, "ensure collection")
	if err != nil {
		// 409 if the collection already exists (depends on version/config).
		var statusErr *resilience.HTTPStatusError
		if !errors.As(err, &statusErr) || statusErr.StatusCode != http.StatusConflict {
			return err
		}
	}

	c.ensureMu.Lock()
	defer c.ensureMu.Unlock()
	c.ensuredCollection = true
	c.ensuredVectorSize = vectorSize
	return nil
}

func scopeFilter(scope domain.Scope) map[string]any {
	return searchFilter(scope, nil)
}

// searchFilter adds one must condition per metadata key. Chunk metadata sits
// under the "metadata" payload key.
func searchFilter(scope domain.Scope, filters domain.MetadataFilter) map[string]any {
	must := make([]map[string]any, 0, 2+len(filters))
	if sid := strings.TrimSpace(scope.SessionID); sid != "" {
		must = append(must, map[string]any{
			"key":   "session_id",
			"match": map[string]any{"value": sid},
		})
	}
	ids := make([]string, 0, len(scope.DocumentIDs))
	for _, id := range scope.DocumentIDs {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	if len(ids) > 0 {
		must = append(must, map[string]any{
			"key":   "document_id",
			"match": map[string]any{"any": ids},
		})
	}
	for _, key := range filters.Keys() {
		value := strings.TrimSpace(filters[key])
		if value == "" {
			continue
		}
		must = append(must, map[string]any{
			"key":   "metadata." + key,
			"match": map[string]any{"value": value},
		})
	}
	if len(must) == 0 {
		return nil
	}
	return map[string]any{"must": must}
}

func chunkFromPayload(payload map[string]any) domain.Chunk {
	chunk := domain.Chunk{
		ID:         getStringPayload(payload, "chunk_id"),
		DocumentID: getStringPayload(payload, "document_id"),
		Text:       getStringPayload(payload, "text"),
	}
	if meta, ok := payload["metadata"].(map[string]any); ok {
		chunk.Metadata = meta
	}
	return chunk
}

func getStringPayload(payload map[string]any, key string) string {
	v, ok := payload[key]
	if !ok || v == nil {
		return ""
	}
	s, ok := v.(string)
	if ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}
