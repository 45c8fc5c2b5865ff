package usecase

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/kirillkom/candidate-rag/internal/core/domain"
)

var testCandidates = []string{"Alice Smith", "Bob Jones", "Carol White"}

func TestClassifyQueryType(t *testing.T) {
	tests := []struct {
		text  string
		names []string
		want  domain.QueryType
	}{
		{"Is it true that Alice worked at Google?", []string{"Alice Smith"}, domain.QueryTypeVerification},
		{"Build a team for a mobile app", nil, domain.QueryTypeTeamBuild},
		{"Is Bob a good fit for the backend position?", []string{"Bob Jones"}, domain.QueryTypeJobMatch},
		{"Compare Alice and Bob", []string{"Alice Smith", "Bob Jones"}, domain.QueryTypeComparison},
		{"Rank the candidates by Kubernetes experience", nil, domain.QueryTypeRanking},
		{"Summarize Carol's background", []string{"Carol White"}, domain.QueryTypeSummary},
		{"Who has Python and 5 years of experience?", nil, domain.QueryTypeSearch},
		{"Tell me about Alice", []string{"Alice Smith"}, domain.QueryTypeSingleCandidate},
		{"Tell me about Alice and Bob", []string{"Alice Smith", "Bob Jones"}, domain.QueryTypeComparison},
		{"Alice Smith?", []string{"Alice Smith"}, domain.QueryTypeSingleCandidate},
		{"hello there", nil, domain.QueryTypeGeneral},
	}
	for _, tc := range tests {
		t.Run(tc.text, func(t *testing.T) {
			got := classifyQueryType(tc.text, domain.QueryEntities{CandidateNames: tc.names})
			if got != tc.want {
				t.Fatalf("classifyQueryType(%q) = %s, want %s", tc.text, got, tc.want)
			}
		})
	}
}

func TestExtractEntities(t *testing.T) {
	entities := extractEntities("Who knows Python, k8s and machine learning with 5+ years? Bob maybe", testCandidates)

	if want := []string{"kubernetes", "machine learning", "python"}; !reflect.DeepEqual(entities.Skills, want) {
		t.Fatalf("skills = %v, want %v", entities.Skills, want)
	}
	if entities.MinYears != 5 {
		t.Fatalf("min years = %d, want 5", entities.MinYears)
	}
	if want := []string{"Bob Jones"}; !reflect.DeepEqual(entities.CandidateNames, want) {
		t.Fatalf("names = %v, want %v", entities.CandidateNames, want)
	}
}

func TestExtractEntitiesSectionFilter(t *testing.T) {
	entities := extractEntities("Which university degree does Carol hold?", testCandidates)
	if entities.Filters[domain.MetaSectionType] != "education" {
		t.Fatalf("expected education filter, got %v", entities.Filters)
	}
}

func TestResolveAnaphora(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		history []domain.ConversationTurn
		want    string
		names   []string
	}{
		{
			name:    "both of them",
			text:    "Compare both of them on Python",
			history: []domain.ConversationTurn{{Role: "user", Content: "Tell me about Alice Smith and Bob Jones"}},
			want:    "Compare Alice Smith and Bob Jones on Python",
			names:   []string{"Alice Smith", "Bob Jones"},
		},
		{
			name: "possessive keeps the noun",
			text: "What is her experience with Go?",
			history: []domain.ConversationTurn{
				{Role: "user", Content: "Tell me about Alice Smith"},
				{Role: "assistant", Content: "Carol White has 7 years of backend work."},
			},
			want:  "What is Carol White's experience with Go?",
			names: []string{"Carol White"},
		},
		{
			name:    "counted reference",
			text:    "Rank those three candidates by seniority",
			history: []domain.ConversationTurn{{Role: "assistant", Content: "Alice Smith, Bob Jones and Carol White know Java."}},
			want:    "Rank Alice Smith, Bob Jones and Carol White by seniority",
			names:   []string{"Alice Smith", "Bob Jones", "Carol White"},
		},
		{
			name:    "explicit name wins",
			text:    "Does Bob know her?",
			history: []domain.ConversationTurn{{Role: "user", Content: "Tell me about Alice Smith"}},
			want:    "Does Bob know her?",
		},
		{
			name: "no history",
			text: "What are their skills?",
			want: "What are their skills?",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, names := resolveAnaphora(tc.text, tc.history, testCandidates)
			if got != tc.want {
				t.Fatalf("resolved = %q, want %q", got, tc.want)
			}
			if !reflect.DeepEqual(names, tc.names) {
				t.Fatalf("names = %v, want %v", names, tc.names)
			}
		})
	}
}

func TestAnalyzeWithExpansion(t *testing.T) {
	completion := &completionFake{
		expansion: "Sure!\n```json\n" + `{"query_type":"search","variations":["candidates knowing Elixir","Elixir developers","hello folks","Elixir engineers","Phoenix experts","extra one"],"hypothetical_answer":"Worked 4 years with Elixir and Phoenix."}` + "\n```",
	}
	analyzer := NewQueryAnalyzer(completion, 0, discardLogger())

	analysis := analyzer.Analyze(context.Background(), AnalyzeInput{Text: "hello folks"})
	if analysis.Degraded != "" {
		t.Fatalf("unexpected degradation %q", analysis.Degraded)
	}
	q := analysis.Query
	if q.Type != domain.QueryTypeSearch {
		t.Fatalf("expected expansion type to fill a general query, got %s", q.Type)
	}
	if len(q.Variations) != maxVariations {
		t.Fatalf("expected %d variations, got %v", maxVariations, q.Variations)
	}
	for _, v := range q.Variations {
		if v == "hello folks" {
			t.Fatalf("variation repeating the question must be dropped")
		}
	}
	if q.HypotheticalAnswer == "" {
		t.Fatalf("expected hypothetical answer")
	}
	if !completion.requests[0].JSON {
		t.Fatalf("expansion request must ask for json")
	}
}

func TestAnalyzeKeepsRuleTypeOverExpansion(t *testing.T) {
	completion := &completionFake{expansion: `{"query_type":"summary","variations":["a","b"]}`}
	analyzer := NewQueryAnalyzer(completion, 0, discardLogger())

	analysis := analyzer.Analyze(context.Background(), AnalyzeInput{Text: "Compare Alice and Bob", KnownCandidates: testCandidates})
	if !analysis.RuleConfident || analysis.Query.Type != domain.QueryTypeComparison {
		t.Fatalf("expected rule type comparison, got %+v", analysis)
	}
}

func TestAnalyzeDegradesOnExpansionFailure(t *testing.T) {
	tests := []struct {
		name       string
		completion *completionFake
		want       string
	}{
		{"completion error", &completionFake{err: errors.New("llm down")}, "expansion_failed"},
		{"not json", &completionFake{expansion: "I cannot help"}, "expansion_failed"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			analyzer := NewQueryAnalyzer(tc.completion, 0, discardLogger())
			analysis := analyzer.Analyze(context.Background(), AnalyzeInput{
				Text:            "Who knows Rust?",
				History:         []domain.ConversationTurn{{Role: "user", Content: "hi"}},
				KnownCandidates: testCandidates,
			})
			if analysis.Degraded != tc.want {
				t.Fatalf("degraded = %q, want %q", analysis.Degraded, tc.want)
			}
			if analysis.Query.Type != domain.QueryTypeSearch {
				t.Fatalf("expected rule-based type, got %s", analysis.Query.Type)
			}
			if len(analysis.Query.Variations) != 0 || analysis.Query.HypotheticalAnswer != "" {
				t.Fatalf("expected no expansion, got %+v", analysis.Query)
			}
		})
	}

	analysis := NewQueryAnalyzer(nil, 0, discardLogger()).Analyze(context.Background(), AnalyzeInput{Text: "Who knows Rust?"})
	if analysis.Degraded != "no_completion_service" {
		t.Fatalf("degraded = %q", analysis.Degraded)
	}
}
