package usecase

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/kirillkom/candidate-rag/internal/core/domain"
	"github.com/kirillkom/candidate-rag/internal/core/ports"
)

type chunkWriterFake struct {
	batches [][]domain.Chunk
	err     error
}

func (f *chunkWriterFake) UpsertChunks(_ context.Context, _ domain.Scope, chunks []domain.Chunk, vectors [][]float32) error {
	if f.err != nil {
		return f.err
	}
	if len(vectors) != len(chunks) {
		return fmt.Errorf("vector mismatch")
	}
	f.batches = append(f.batches, chunks)
	return nil
}

type indexPublisherFake struct {
	events []domain.IndexUpdatedEvent
	err    error
}

func (f *indexPublisherFake) PublishIndexUpdated(_ context.Context, event domain.IndexUpdatedEvent) error {
	f.events = append(f.events, event)
	return f.err
}

func seedChunks(n int) []domain.Chunk {
	out := make([]domain.Chunk, n)
	for i := range out {
		out[i] = domain.Chunk{ID: fmt.Sprintf("c%d", i), DocumentID: "d1", Text: "Go developer"}
	}
	return out
}

func TestChunkLoaderBatchesAndPublishes(t *testing.T) {
	embedder := &embedderFake{}
	vector, lexical := &chunkWriterFake{}, &chunkWriterFake{}
	publisher := &indexPublisherFake{}
	loader := NewChunkLoader(embedder, []ports.ChunkWriter{vector, lexical}, publisher, discardLogger())
	loader.batchSize = 2

	scope := domain.Scope{SessionID: "s-1"}
	n, err := loader.Load(context.Background(), scope, seedChunks(5))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if n != 5 {
		t.Fatalf("expected 5 loaded, got %d", n)
	}
	if got := embedder.calls.Load(); got != 3 {
		t.Fatalf("expected 3 embed batches, got %d", got)
	}
	if len(vector.batches) != 3 || len(lexical.batches) != 3 {
		t.Fatalf("both writers must receive every batch")
	}
	if sid := vector.batches[0][0].MetaString(domain.MetaSessionID); sid != "s-1" {
		t.Fatalf("session id not stamped on chunk, got %q", sid)
	}
	if len(publisher.events) != 1 || publisher.events[0].Scope.SessionID != "s-1" {
		t.Fatalf("expected one index event, got %+v", publisher.events)
	}
}

func TestChunkLoaderFailures(t *testing.T) {
	ctx := context.Background()

	loader := NewChunkLoader(&embedderFake{}, nil, nil, discardLogger())
	if _, err := loader.Load(ctx, domain.Scope{}, seedChunks(1)); !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input without writers, got %v", err)
	}

	writer := &chunkWriterFake{}
	loader = NewChunkLoader(&embedderFake{}, []ports.ChunkWriter{writer}, nil, discardLogger())
	bad := []domain.Chunk{{ID: "c1", Text: " "}}
	if _, err := loader.Load(ctx, domain.Scope{}, bad); !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input for empty text, got %v", err)
	}

	publisher := &indexPublisherFake{}
	loader = NewChunkLoader(&embedderFake{err: errors.New("ollama down")}, []ports.ChunkWriter{writer}, publisher, discardLogger())
	if _, err := loader.Load(ctx, domain.Scope{}, seedChunks(2)); err == nil {
		t.Fatalf("expected embed failure")
	}
	if len(publisher.events) != 0 {
		t.Fatalf("no event expected after failure")
	}

	loader = NewChunkLoader(&embedderFake{}, []ports.ChunkWriter{&chunkWriterFake{}}, &indexPublisherFake{err: errors.New("nats down")}, discardLogger())
	if n, err := loader.Load(ctx, domain.Scope{}, seedChunks(2)); err != nil || n != 2 {
		t.Fatalf("publish failure must not fail the load: n=%d err=%v", n, err)
	}
}
