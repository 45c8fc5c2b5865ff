package usecase

import (
	"time"

	"github.com/kirillkom/candidate-rag/internal/core/domain"
	"github.com/kirillkom/candidate-rag/internal/core/ports"
)

// stepLog collects the per-stage trace of one request.
type stepLog struct {
	steps   []domain.PipelineStep
	metrics ports.PipelineMetrics
}

func (l *stepLog) record(name string, start time.Time, err error, meta map[string]any) {
	step := domain.PipelineStep{
		Name:       name,
		DurationMS: float64(time.Since(start).Microseconds()) / 1000,
		Success:    err == nil,
		Metadata:   meta,
	}
	if err != nil {
		step.Error = err.Error()
	}
	l.steps = append(l.steps, step)
	if l.metrics != nil {
		l.metrics.RecordStep(step)
	}
}

// degraded records a stage that finished on its fallback path.
func (l *stepLog) degraded(name string, start time.Time, reason string, meta map[string]any) {
	if meta == nil {
		meta = map[string]any{}
	}
	meta["degraded"] = reason
	l.record(name, start, nil, meta)
	if l.metrics != nil {
		l.metrics.RecordDegradation(name, reason)
	}
}

func (l *stepLog) snapshot() []domain.PipelineStep {
	return append([]domain.PipelineStep(nil), l.steps...)
}

type noopMetrics struct{}

func (noopMetrics) RecordStep(domain.PipelineStep)                             {}
func (noopMetrics) RecordOutcome(domain.QueryType, domain.Decision, int, bool) {}
func (noopMetrics) RecordGuardrail(string, bool)                               {}
func (noopMetrics) RecordDegradation(string, string)                           {}
func (noopMetrics) RecordTokenUsage(int, int)                                  {}
