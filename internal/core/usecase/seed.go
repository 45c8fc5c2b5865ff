package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/kirillkom/candidate-rag/internal/core/domain"
	"github.com/kirillkom/candidate-rag/internal/core/ports"
)

const defaultEmbedBatch = 32

// ChunkLoader writes pre-chunked résumés into every configured index. It is the
// development stand-in for the external indexing subsystem.
type ChunkLoader struct {
	embedder  ports.Embedder
	writers   []ports.ChunkWriter
	publisher ports.IndexEventPublisher
	batchSize int
	logger    *slog.Logger
}

func NewChunkLoader(embedder ports.Embedder, writers []ports.ChunkWriter, publisher ports.IndexEventPublisher, logger *slog.Logger) *ChunkLoader {
	if logger == nil {
		logger = slog.Default()
	}
	return &ChunkLoader{
		embedder:  embedder,
		writers:   writers,
		publisher: publisher,
		batchSize: defaultEmbedBatch,
		logger:    logger,
	}
}

// Load embeds chunks in batches and upserts them. Chunks inherit the scope's
// session id. An index.updated event is published once everything is written.
func (l *ChunkLoader) Load(ctx context.Context, scope domain.Scope, chunks []domain.Chunk) (int, error) {
	if len(l.writers) == 0 {
		return 0, domain.WrapError(domain.ErrInvalidInput, "load chunks", fmt.Errorf("no index writers configured"))
	}
	valid := make([]domain.Chunk, 0, len(chunks))
	for _, c := range chunks {
		if strings.TrimSpace(c.ID) == "" || strings.TrimSpace(c.Text) == "" {
			return 0, domain.WrapError(domain.ErrInvalidInput, "load chunks", fmt.Errorf("chunk %q has no id or text", c.ID))
		}
		if scope.SessionID != "" {
			c.Metadata = withMeta(c.Metadata, domain.MetaSessionID, scope.SessionID)
		}
		valid = append(valid, c)
	}

	loaded := 0
	for start := 0; start < len(valid); start += l.batchSize {
		end := min(start+l.batchSize, len(valid))
		batch := valid[start:end]

		texts := make([]string, len(batch))
		for i, c := range batch {
			texts[i] = c.Text
		}
		vectors, err := l.embedder.Embed(ctx, texts)
		if err != nil {
			return loaded, fmt.Errorf("embed batch %d-%d: %w", start, end, err)
		}
		if len(vectors) != len(batch) {
			return loaded, fmt.Errorf("embed batch %d-%d: got %d vectors for %d chunks", start, end, len(vectors), len(batch))
		}
		for _, w := range l.writers {
			if err := w.UpsertChunks(ctx, scope, batch, vectors); err != nil {
				return loaded, fmt.Errorf("upsert batch %d-%d: %w", start, end, err)
			}
		}
		loaded += len(batch)
	}

	l.logger.Info("chunks_loaded", "session_id", scope.SessionID, "chunks", loaded, "writers", len(l.writers))
	if l.publisher != nil && loaded > 0 {
		if err := l.publisher.PublishIndexUpdated(ctx, domain.IndexUpdatedEvent{Scope: scope}); err != nil {
			l.logger.Warn("index_event_publish_failed", "session_id", scope.SessionID, "error", err)
		}
	}
	return loaded, nil
}

func withMeta(meta map[string]any, key string, value any) map[string]any {
	out := make(map[string]any, len(meta)+1)
	for k, v := range meta {
		out[k] = v
	}
	out[key] = value
	return out
}
