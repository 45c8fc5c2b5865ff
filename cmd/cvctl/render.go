package main

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"

	"github.com/kirillkom/candidate-rag/internal/core/domain"
)

// renderResult prints the Markdown answer followed by one table per module.
func renderResult(w io.Writer, result *domain.QueryResult) error {
	fmt.Fprintf(w, "run %s  type=%s  decision=%s  confidence=%.2f  attempts=%d",
		result.RunID, result.QueryType, result.Decision, result.Confidence.Overall, result.Attempts)
	if result.CacheHit {
		fmt.Fprint(w, "  (cached)")
	}
	fmt.Fprintln(w)
	if result.DeclineReason != "" {
		fmt.Fprintf(w, "declined: %s\n", result.DeclineReason)
	}
	fmt.Fprintf(w, "\n%s\n", strings.TrimSpace(result.Answer))

	for _, m := range result.Structured.Modules {
		header, rows := tabulate(m.Data)
		if len(rows) == 0 {
			continue
		}
		fmt.Fprintf(w, "\n[%s]\n", m.Module)
		table := tablewriter.NewWriter(w)
		table.SetHeader(header)
		table.SetAutoWrapText(false)
		for _, row := range rows {
			table.Append(row)
		}
		table.Render()
	}
	return nil
}

// tabulate flattens decoded module data into a header and rows. Lists of objects
// become one row per object, a single object becomes field/value pairs, and a
// {header, rows} table is used as is.
func tabulate(data any) ([]string, [][]string) {
	switch v := data.(type) {
	case nil:
		return nil, nil
	case []any:
		return tabulateList(v)
	case map[string]any:
		if header, rows, ok := markdownTable(v); ok {
			return header, rows
		}
		keys := sortedKeys(v)
		rows := make([][]string, 0, len(keys))
		for _, k := range keys {
			rows = append(rows, []string{k, cellText(v[k])})
		}
		return []string{"field", "value"}, rows
	default:
		return []string{"value"}, [][]string{{cellText(v)}}
	}
}

func tabulateList(items []any) ([]string, [][]string) {
	columns := map[string]struct{}{}
	var order []string
	for _, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			continue
		}
		for _, k := range sortedKeys(obj) {
			if _, seen := columns[k]; !seen {
				columns[k] = struct{}{}
				order = append(order, k)
			}
		}
	}
	if len(order) == 0 {
		rows := make([][]string, 0, len(items))
		for _, item := range items {
			rows = append(rows, []string{cellText(item)})
		}
		return []string{"value"}, rows
	}

	rows := make([][]string, 0, len(items))
	for _, item := range items {
		obj, _ := item.(map[string]any)
		row := make([]string, len(order))
		for i, k := range order {
			row[i] = cellText(obj[k])
		}
		rows = append(rows, row)
	}
	return order, rows
}

func markdownTable(v map[string]any) ([]string, [][]string, bool) {
	rawHeader, ok := v["header"].([]any)
	if !ok {
		return nil, nil, false
	}
	rawRows, _ := v["rows"].([]any)
	header := make([]string, len(rawHeader))
	for i, h := range rawHeader {
		header[i] = cellText(h)
	}
	rows := make([][]string, 0, len(rawRows))
	for _, r := range rawRows {
		cells, _ := r.([]any)
		row := make([]string, len(header))
		for i := range row {
			if i < len(cells) {
				row[i] = cellText(cells[i])
			}
		}
		rows = append(rows, row)
	}
	return header, rows, true
}

func cellText(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case []any:
		parts := make([]string, 0, len(t))
		for _, item := range t {
			parts = append(parts, cellText(item))
		}
		return strings.Join(parts, ", ")
	default:
		return fmt.Sprint(t)
	}
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
