package main

import (
	"path/filepath"
	"testing"

	"github.com/xuri/excelize/v2"

	"github.com/kirillkom/candidate-rag/internal/core/domain"
)

func TestExportXLSXWritesModuleSheets(t *testing.T) {
	path := filepath.Join(t.TempDir(), "answer.xlsx")
	result := &domain.QueryResult{
		RunID:     "run-3",
		Answer:    "Maria fits best.",
		Decision:  domain.DecisionSend,
		QueryType: domain.QueryTypeJobMatch,
		Structured: domain.StructuredOutput{Modules: []domain.ModuleOutput{
			{Module: "match_scores", Data: decoded(t, `[{"candidate":"Maria","percent":100},{"candidate":"Ivan","percent":47}]`)},
		}},
	}

	if err := exportXLSX(path, result); err != nil {
		t.Fatalf("export: %v", err)
	}

	f, err := excelize.OpenFile(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()

	summary, err := f.GetRows("Summary")
	if err != nil {
		t.Fatalf("summary rows: %v", err)
	}
	if len(summary) == 0 || summary[0][0] != "run_id" || summary[0][1] != "run-3" {
		t.Fatalf("unexpected summary %v", summary)
	}

	rows, err := f.GetRows("match_scores")
	if err != nil {
		t.Fatalf("module rows: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected header plus two rows, got %v", rows)
	}
	if rows[0][0] != "candidate" || rows[2][0] != "Ivan" || rows[2][1] != "47" {
		t.Fatalf("unexpected module rows %v", rows)
	}
}
