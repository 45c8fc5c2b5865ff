package usecase

import (
	"strings"
	"testing"

	"github.com/kirillkom/candidate-rag/internal/core/domain"
)

func TestDefaultTemplatesCoverEveryQueryType(t *testing.T) {
	set := DefaultTemplates()
	for _, qt := range domain.AllQueryTypes() {
		sections := set.RequiredSections(qt)
		if len(sections) == 0 {
			t.Fatalf("no sections for %s", qt)
		}
	}
	if !strings.Contains(set.NoInformation, "### Answer") {
		t.Fatalf("no information answer must carry an answer heading")
	}
	if got := set.For(domain.QueryType("other")).Instructions; got != set.For(domain.QueryTypeGeneral).Instructions {
		t.Fatalf("unknown type should fall back to general template")
	}
}

func TestLoadTemplatesRejectsIncompleteSet(t *testing.T) {
	_, err := LoadTemplates([]byte("system: hi\nno_information: none\ntemplates:\n  general:\n    sections: [Answer]\n"))
	if err == nil || !strings.Contains(err.Error(), "missing template") {
		t.Fatalf("expected missing template error, got %v", err)
	}
	if _, err := LoadTemplates([]byte("system: [")); err == nil {
		t.Fatalf("expected yaml error")
	}
}
