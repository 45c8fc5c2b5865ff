package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/kirillkom/candidate-rag/internal/core/domain"
)

// RunRepository stores the audit trail of answered questions.
type RunRepository struct {
	db *sql.DB
}

func NewRunRepository(db *sql.DB) *RunRepository {
	return &RunRepository{db: db}
}

func (r *RunRepository) EnsureSchema(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across api/worker startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026101801)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS query_runs (
	id TEXT PRIMARY KEY,
	session_id TEXT NOT NULL DEFAULT '',
	question TEXT NOT NULL,
	query_type TEXT NOT NULL,
	decision TEXT NOT NULL,
	confidence_overall DOUBLE PRECISION NOT NULL,
	confidence JSONB NOT NULL,
	answer_markdown TEXT NOT NULL,
	structured_output JSONB NOT NULL,
	metrics JSONB NOT NULL DEFAULT '[]'::jsonb,
	attempts INTEGER NOT NULL DEFAULT 1,
	cache_hit BOOLEAN NOT NULL DEFAULT FALSE,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_query_runs_session ON query_runs(session_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_query_runs_decision ON query_runs(decision);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

// SaveRun is idempotent on the run id so that redelivered events are harmless.
func (r *RunRepository) SaveRun(ctx context.Context, run domain.QueryRun) error {
	confidenceJSON, err := json.Marshal(run.Confidence)
	if err != nil {
		return fmt.Errorf("marshal confidence: %w", err)
	}
	structuredJSON, err := json.Marshal(run.Structured)
	if err != nil {
		return fmt.Errorf("marshal structured output: %w", err)
	}
	steps := run.Steps
	if steps == nil {
		steps = []domain.PipelineStep{}
	}
	metricsJSON, err := json.Marshal(steps)
	if err != nil {
		return fmt.Errorf("marshal metrics: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
INSERT INTO query_runs (
	id, session_id, question, query_type, decision, confidence_overall, confidence,
	answer_markdown, structured_output, metrics, attempts, cache_hit, created_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
ON CONFLICT (id) DO NOTHING
`,
		run.ID, run.SessionID, run.Question, string(run.QueryType), string(run.Decision), run.Confidence.Overall,
		confidenceJSON, run.Answer, structuredJSON, metricsJSON, run.Attempts, run.CacheHit, run.CreatedAt,
	)
	if err != nil {
		return domain.WrapError(domain.ErrTemporary, "insert query run", err)
	}
	return nil
}

func (r *RunRepository) GetRun(ctx context.Context, id string) (*domain.QueryRun, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT id, session_id, question, query_type, decision, confidence, answer_markdown,
	structured_output, metrics, attempts, cache_hit, created_at
FROM query_runs
WHERE id = $1
`, id)

	var (
		run                 domain.QueryRun
		queryType, decision string
		confidenceRaw       []byte
		structuredRaw       []byte
		metricsRaw          []byte
	)
	err := row.Scan(
		&run.ID, &run.SessionID, &run.Question, &queryType, &decision, &confidenceRaw, &run.Answer,
		&structuredRaw, &metricsRaw, &run.Attempts, &run.CacheHit, &run.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrRunNotFound, "get query run", fmt.Errorf("id=%s", id))
		}
		return nil, fmt.Errorf("scan query run: %w", err)
	}

	if err := json.Unmarshal(confidenceRaw, &run.Confidence); err != nil {
		return nil, fmt.Errorf("unmarshal confidence: %w", err)
	}
	if err := json.Unmarshal(structuredRaw, &run.Structured); err != nil {
		return nil, fmt.Errorf("unmarshal structured output: %w", err)
	}
	if err := json.Unmarshal(metricsRaw, &run.Steps); err != nil {
		return nil, fmt.Errorf("unmarshal metrics: %w", err)
	}
	run.QueryType = domain.QueryType(queryType)
	run.Decision = domain.Decision(decision)
	return &run, nil
}
