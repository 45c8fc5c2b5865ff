package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		" WARN ":  slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Fatalf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestJSONLoggerAddsServiceAndFiltersLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, "cv-api", Options{Level: "warn"})

	logger.Info("query_started")
	logger.Warn("guardrail_decision", "allowed", false)

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	if len(lines) != 1 {
		t.Fatalf("expected exactly one log line, got %d: %s", len(lines), buf.String())
	}
	var record map[string]any
	if err := json.Unmarshal(lines[0], &record); err != nil {
		t.Fatalf("unmarshal log line: %v", err)
	}
	if record["service"] != "cv-api" || record["msg"] != "guardrail_decision" {
		t.Fatalf("unexpected record %+v", record)
	}
}

func TestTextFormatAndQuestionTruncation(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, "cvctl", Options{Level: "debug", Format: "text"})

	long := strings.Repeat("é", maxTextAttrRunes+50)
	logger.Debug("query_received", "question", long, "run_id", "r1")

	out := buf.String()
	if !strings.Contains(out, "service=cvctl") || !strings.Contains(out, "run_id=r1") {
		t.Fatalf("expected text format with attributes, got %s", out)
	}
	if strings.Contains(out, long) {
		t.Fatalf("expected question to be truncated, got %s", out)
	}
	if !strings.Contains(out, strings.Repeat("é", maxTextAttrRunes)+"…") {
		t.Fatalf("expected truncated question with ellipsis, got %s", out)
	}
}
