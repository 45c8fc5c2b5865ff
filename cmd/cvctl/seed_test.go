package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kirillkom/candidate-rag/internal/infrastructure/chunking"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestReadFixtureJSONL(t *testing.T) {
	path := writeFile(t, "chunks.jsonl", strings.Join([]string{
		`{"id":"c1","document_id":"d1","text":"Maria: 6 years of Go","metadata":{"candidate_name":"Maria Petrova"}}`,
		``,
		`{"id":"c2","document_id":"d1","text":"MSc Computer Science"}`,
	}, "\n"))

	chunks, err := readFixture(path, "", chunking.NewSplitter(900, 0))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(chunks) != 2 || chunks[0].CandidateName() != "Maria Petrova" {
		t.Fatalf("unexpected chunks %+v", chunks)
	}
}

func TestReadFixtureJSONLRejectsMissingIDs(t *testing.T) {
	path := writeFile(t, "bad.jsonl", `{"text":"no ids"}`)
	if _, err := readFixture(path, "", chunking.NewSplitter(900, 0)); err == nil || !strings.Contains(err.Error(), "bad.jsonl:1") {
		t.Fatalf("expected line-numbered error, got %v", err)
	}
}

func TestReadFixtureTextResume(t *testing.T) {
	path := writeFile(t, "Ivan_Sidorov.txt", "Platform engineer\n\nSkills\nKubernetes, Terraform\n")

	chunks, err := readFixture(path, "", chunking.NewSplitter(900, 0))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(chunks) != 2 {
		t.Fatalf("expected summary and skills chunks, got %d", len(chunks))
	}
	if chunks[1].CandidateName() != "Ivan Sidorov" || chunks[1].SectionType() != "skills" {
		t.Fatalf("unexpected chunk %+v", chunks[1])
	}
	if chunks[0].DocumentID != "Ivan_Sidorov" {
		t.Fatalf("document id should come from file name, got %q", chunks[0].DocumentID)
	}
}

func TestReadFixtureRejectsUnknownExtension(t *testing.T) {
	path := writeFile(t, "resume.pdf", "%PDF")
	if _, err := readFixture(path, "", chunking.NewSplitter(900, 0)); err == nil {
		t.Fatalf("expected unsupported fixture error")
	}
}
