package ports

import (
	"context"

	"github.com/kirillkom/candidate-rag/internal/core/domain"
)

// QueryRunner is the inbound contract of the question answering pipeline.
type QueryRunner interface {
	RunQuery(ctx context.Context, req domain.QueryRequest) (*domain.QueryResult, error)
}

// RunReader is the inbound read model for persisted query runs.
type RunReader interface {
	GetRun(ctx context.Context, id string) (*domain.QueryRun, error)
}

// RunRecorder is the inbound contract for asynchronous run persistence.
type RunRecorder interface {
	RecordRun(ctx context.Context, event domain.QueryCompletedEvent) error
}
