package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"unicode"

	_ "modernc.org/sqlite"

	"github.com/kirillkom/candidate-rag/internal/core/domain"
)

const driverName = "sqlite"

const schema = `
CREATE VIRTUAL TABLE IF NOT EXISTS chunks_fts USING fts5(
	chunk_id UNINDEXED,
	document_id UNINDEXED,
	session_id UNINDEXED,
	candidate_name,
	text,
	metadata UNINDEXED,
	tokenize = 'unicode61'
);`

// Index is a BM25 lexical index over chunk text backed by SQLite FTS5.
type Index struct {
	db *sql.DB
}

func Open(ctx context.Context, path string) (*Index, error) {
	db, err := sql.Open(driverName, path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable wal: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create fts schema: %w", err)
	}
	return &Index{db: db}, nil
}

func (i *Index) Close() error {
	return i.db.Close()
}

func (i *Index) SearchLexical(ctx context.Context, text string, scope domain.Scope, filters domain.MetadataFilter, limit int) ([]domain.ScoredChunk, error) {
	match := buildMatchQuery(text)
	if match == "" || limit <= 0 {
		return nil, nil
	}

	// bm25 weights follow column order; unindexed columns get zero.
	query := `
		SELECT chunk_id, document_id, text, metadata,
			bm25(chunks_fts, 0.0, 0.0, 0.0, 2.0, 1.0, 0.0) AS score
		FROM chunks_fts
		WHERE chunks_fts MATCH ?`
	args := []any{match}
	clause, scopeArgs := scopeClause(scope)
	query += clause
	args = append(args, scopeArgs...)
	for _, key := range filters.Keys() {
		query += ` AND CASE WHEN json_valid(metadata) THEN json_extract(metadata, ?) END = ? COLLATE NOCASE`
		args = append(args, `$."`+key+`"`, strings.TrimSpace(filters[key]))
	}
	// bm25 is lower-is-better; chunk_id keeps ties stable.
	query += " ORDER BY score, chunk_id LIMIT ?"
	args = append(args, limit)

	rows, err := i.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, domain.WrapError(domain.ErrUnavailable, "sqlite.search_lexical", err)
	}
	defer func() { _ = rows.Close() }()

	out := make([]domain.ScoredChunk, 0, limit)
	for rows.Next() {
		var (
			chunk    domain.Chunk
			metadata string
			score    float64
		)
		if err := rows.Scan(&chunk.ID, &chunk.DocumentID, &chunk.Text, &metadata, &score); err != nil {
			return nil, fmt.Errorf("scan fts row: %w", err)
		}
		if metadata != "" {
			if err := json.Unmarshal([]byte(metadata), &chunk.Metadata); err != nil {
				return nil, fmt.Errorf("decode chunk metadata %s: %w", chunk.ID, err)
			}
		}
		out = append(out, domain.ScoredChunk{Chunk: chunk, Score: -score})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate fts rows: %w", err)
	}
	return out, nil
}

// CandidateNames lists the distinct candidate names indexed in scope.
func (i *Index) CandidateNames(ctx context.Context, scope domain.Scope) ([]string, error) {
	clause, args := scopeClause(scope)
	rows, err := i.db.QueryContext(ctx,
		`SELECT DISTINCT candidate_name FROM chunks_fts WHERE candidate_name != ''`+clause+` ORDER BY candidate_name`,
		args...)
	if err != nil {
		return nil, domain.WrapError(domain.ErrUnavailable, "sqlite.candidate_names", err)
	}
	defer func() { _ = rows.Close() }()

	var names []string
	seen := make(map[string]struct{})
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan candidate name: %w", err)
		}
		key := strings.ToLower(strings.TrimSpace(name))
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		names = append(names, strings.TrimSpace(name))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate candidate names: %w", err)
	}
	return names, nil
}

func scopeClause(scope domain.Scope) (string, []any) {
	var (
		clause string
		args   []any
	)
	if sid := strings.TrimSpace(scope.SessionID); sid != "" {
		clause += " AND session_id = ?"
		args = append(args, sid)
	}
	if len(scope.DocumentIDs) > 0 {
		placeholders := make([]string, 0, len(scope.DocumentIDs))
		for _, id := range scope.DocumentIDs {
			placeholders = append(placeholders, "?")
			args = append(args, id)
		}
		clause += " AND document_id IN (" + strings.Join(placeholders, ",") + ")"
	}
	return clause, args
}

// UpsertChunks replaces rows by chunk id. Vectors are ignored.
func (i *Index) UpsertChunks(ctx context.Context, scope domain.Scope, chunks []domain.Chunk, _ [][]float32) error {
	if len(chunks) == 0 {
		return nil
	}
	tx, err := i.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin fts tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, chunk := range chunks {
		metadata := ""
		if len(chunk.Metadata) > 0 {
			raw, err := json.Marshal(chunk.Metadata)
			if err != nil {
				return fmt.Errorf("encode chunk metadata %s: %w", chunk.ID, err)
			}
			metadata = string(raw)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM chunks_fts WHERE chunk_id = ?`, chunk.ID); err != nil {
			return fmt.Errorf("delete fts row: %w", err)
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO chunks_fts (chunk_id, document_id, session_id, candidate_name, text, metadata)
			VALUES (?, ?, ?, ?, ?, ?)`,
			chunk.ID, chunk.DocumentID, scope.SessionID, chunk.CandidateName(), chunk.Text, metadata,
		)
		if err != nil {
			return fmt.Errorf("insert fts row: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit fts tx: %w", err)
	}
	return nil
}

// buildMatchQuery turns free text into an OR of quoted terms so that user
// input never reaches the FTS5 query syntax.
func buildMatchQuery(text string) string {
	seen := make(map[string]struct{})
	terms := make([]string, 0, 8)
	for _, token := range strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		if len([]rune(token)) < 2 {
			continue
		}
		if _, ok := stopwords[token]; ok {
			continue
		}
		if _, ok := seen[token]; ok {
			continue
		}
		seen[token] = struct{}{}
		terms = append(terms, `"`+token+`"`)
	}
	return strings.Join(terms, " OR ")
}

var stopwords = map[string]struct{}{
	"the": {}, "and": {}, "or": {}, "of": {}, "in": {}, "on": {}, "to": {}, "a": {}, "an": {},
	"is": {}, "are": {}, "who": {}, "what": {}, "which": {}, "with": {}, "has": {}, "have": {},
	"for": {}, "me": {}, "about": {}, "does": {}, "do": {}, "tell": {}, "any": {}, "at": {},
}
