package qdrant

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/kirillkom/candidate-rag/internal/core/domain"
)

// UpsertChunks writes fixture chunks with both dense and sparse vectors.
// Point ids derive from chunk ids so reloading a fixture replaces points.
func (c *Client) UpsertChunks(ctx context.Context, scope domain.Scope, chunks []domain.Chunk, vectors [][]float32) error {
	if len(chunks) == 0 {
		return nil
	}
	if len(chunks) != len(vectors) {
		return fmt.Errorf("chunks/vectors mismatch")
	}
	if err := c.ensureCollection(ctx, len(vectors[0])); err != nil {
		return err
	}

	type point struct {
		ID      string         `json:"id"`
		Vector  map[string]any `json:"vector"`
		Payload map[string]any `json:"payload"`
	}

	points := make([]point, 0, len(chunks))
	for i, chunk := range chunks {
		chunkID := strings.TrimSpace(chunk.ID)
		if chunkID == "" {
			return fmt.Errorf("chunk %d has no id", i)
		}
		points = append(points, point{
			ID: uuid.NewSHA1(uuid.NameSpaceURL, []byte(chunkID)).String(),
			Vector: map[string]any{
				denseVectorName:  vectors[i],
				sparseVectorName: encodeChunk(chunk),
			},
			Payload: map[string]any{
				"chunk_id":    chunkID,
				"document_id": chunk.DocumentID,
				"session_id":  scope.SessionID,
				"text":        chunk.Text,
				"metadata":    chunk.Metadata,
			},
		})
	}

	path := fmt.Sprintf("/collections/%s/points?wait=true", c.collection)
	return c.api.Call(ctx, http.MethodPut, path, map[string]any{"points": points}, nil, "upsert")
}
