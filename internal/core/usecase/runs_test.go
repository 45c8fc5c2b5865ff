package usecase

import (
	"context"
	"errors"
	"testing"

	"github.com/kirillkom/candidate-rag/internal/core/domain"
)

type runRepositoryFake struct {
	saved []domain.QueryRun
	err   error
	runs  map[string]domain.QueryRun
}

func (f *runRepositoryFake) SaveRun(_ context.Context, run domain.QueryRun) error {
	if f.err != nil {
		return f.err
	}
	f.saved = append(f.saved, run)
	return nil
}

func (f *runRepositoryFake) GetRun(_ context.Context, id string) (*domain.QueryRun, error) {
	run, ok := f.runs[id]
	if !ok {
		return nil, domain.ErrRunNotFound
	}
	return &run, nil
}

func TestRunServiceRecordRun(t *testing.T) {
	repo := &runRepositoryFake{}
	svc := NewRunService(repo, discardLogger())

	event := domain.QueryCompletedEvent{Run: domain.QueryRun{ID: "run-1", Decision: domain.DecisionSend}}
	if err := svc.RecordRun(context.Background(), event); err != nil {
		t.Fatalf("RecordRun() error = %v", err)
	}
	if len(repo.saved) != 1 || repo.saved[0].ID != "run-1" {
		t.Fatalf("unexpected saved runs %+v", repo.saved)
	}

	if err := svc.RecordRun(context.Background(), domain.QueryCompletedEvent{}); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input for missing id, got %v", err)
	}
}

func TestRunServiceRecordRunPropagatesRepositoryError(t *testing.T) {
	svc := NewRunService(&runRepositoryFake{err: domain.ErrTemporary}, discardLogger())
	err := svc.RecordRun(context.Background(), domain.QueryCompletedEvent{Run: domain.QueryRun{ID: "run-1"}})
	if !errors.Is(err, domain.ErrTemporary) {
		t.Fatalf("expected temporary error, got %v", err)
	}
}

func TestRunServiceGetRun(t *testing.T) {
	repo := &runRepositoryFake{runs: map[string]domain.QueryRun{"run-1": {ID: "run-1"}}}
	svc := NewRunService(repo, discardLogger())

	run, err := svc.GetRun(context.Background(), " run-1 ")
	if err != nil || run.ID != "run-1" {
		t.Fatalf("GetRun() = %+v, %v", run, err)
	}
	if _, err := svc.GetRun(context.Background(), "missing"); !errors.Is(err, domain.ErrRunNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := svc.GetRun(context.Background(), ""); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}
