package main

import (
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/kirillkom/candidate-rag/internal/core/domain"
)

const maxSheetName = 31

// exportXLSX writes a summary sheet plus one sheet per tabular module.
func exportXLSX(path string, result *domain.QueryResult) error {
	f := excelize.NewFile()
	defer f.Close()

	const summary = "Summary"
	if err := f.SetSheetName("Sheet1", summary); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	summaryRows := [][]any{
		{"run_id", result.RunID},
		{"question_type", string(result.QueryType)},
		{"decision", string(result.Decision)},
		{"confidence", result.Confidence.Overall},
		{"attempts", result.Attempts},
		{"answer", result.Answer},
	}
	if err := writeRows(f, summary, summaryRows); err != nil {
		return err
	}

	used := map[string]int{summary: 1}
	for _, m := range result.Structured.Modules {
		header, rows := tabulate(m.Data)
		if len(rows) == 0 {
			continue
		}
		name := sheetName(m.Module, used)
		if _, err := f.NewSheet(name); err != nil {
			return fmt.Errorf("create sheet %s: %w", name, err)
		}
		table := make([][]any, 0, len(rows)+1)
		table = append(table, toAny(header))
		for _, row := range rows {
			table = append(table, toAny(row))
		}
		if err := writeRows(f, name, table); err != nil {
			return err
		}
	}

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("save %s: %w", path, err)
	}
	return nil
}

func writeRows(f *excelize.File, sheet string, rows [][]any) error {
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("write %s!%s: %w", sheet, cell, err)
		}
	}
	return nil
}

func sheetName(module string, used map[string]int) string {
	name := strings.NewReplacer(":", "_", "/", "_", "\\", "_", "?", "_", "*", "_", "[", "_", "]", "_").Replace(module)
	if name == "" {
		name = "module"
	}
	if len(name) > maxSheetName {
		name = name[:maxSheetName]
	}
	used[name]++
	if n := used[name]; n > 1 {
		suffix := fmt.Sprintf("_%d", n)
		base := name
		if len(base)+len(suffix) > maxSheetName {
			base = base[:maxSheetName-len(suffix)]
		}
		name = base + suffix
	}
	return name
}

func toAny(cells []string) []any {
	out := make([]any, len(cells))
	for i, c := range cells {
		out[i] = c
	}
	return out
}
