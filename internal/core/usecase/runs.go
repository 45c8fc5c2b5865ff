package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/kirillkom/candidate-rag/internal/core/domain"
	"github.com/kirillkom/candidate-rag/internal/core/ports"
)

// RunService persists completed runs from events and serves them back.
type RunService struct {
	repo   ports.RunRepository
	logger *slog.Logger
}

func NewRunService(repo ports.RunRepository, logger *slog.Logger) *RunService {
	if logger == nil {
		logger = slog.Default()
	}
	return &RunService{repo: repo, logger: logger}
}

func (s *RunService) RecordRun(ctx context.Context, event domain.QueryCompletedEvent) error {
	if strings.TrimSpace(event.Run.ID) == "" {
		return domain.WrapError(domain.ErrInvalidInput, "record run", fmt.Errorf("run id is required"))
	}
	if err := s.repo.SaveRun(ctx, event.Run); err != nil {
		return fmt.Errorf("save run %s: %w", event.Run.ID, err)
	}
	s.logger.Info("run_recorded", "run_id", event.Run.ID, "decision", event.Run.Decision, "query_type", event.Run.QueryType)
	return nil
}

func (s *RunService) GetRun(ctx context.Context, id string) (*domain.QueryRun, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "get run", fmt.Errorf("run id is required"))
	}
	return s.repo.GetRun(ctx, id)
}
