package usecase

import (
	"regexp"
	"strings"

	"github.com/kirillkom/candidate-rag/internal/core/domain"
	"github.com/kirillkom/candidate-rag/internal/core/output"
)

const (
	weightRelevance    = 0.25
	weightCoverage     = 0.15
	weightCompleteness = 0.15
	weightFaithfulness = 0.35
	weightConsistency  = 0.10
)

type ConfidenceInput struct {
	Query            domain.Query
	Chunks           []domain.RerankedCandidate
	Draft            string
	RequiredSections []string
	Verification     domain.VerificationReport
}

func ScoreConfidence(in ConfidenceInput) domain.ConfidenceScore {
	parsed := output.ParseDraft(in.Draft)
	score := domain.ConfidenceScore{
		RetrievalRelevance:   retrievalRelevance(in.Chunks),
		RetrievalCoverage:    retrievalCoverage(in.Query, in.Chunks),
		ResponseCompleteness: responseCompleteness(parsed, in.RequiredSections),
		Faithfulness:         clamp01(in.Verification.Faithfulness),
		InternalConsistency:  internalConsistency(parsed),
	}
	score.Overall = clamp01(weightRelevance*score.RetrievalRelevance +
		weightCoverage*score.RetrievalCoverage +
		weightCompleteness*score.ResponseCompleteness +
		weightFaithfulness*score.Faithfulness +
		weightConsistency*score.InternalConsistency)
	return score
}

// retrievalRelevance is the mean similarity of the chunks given to the generator.
// Vector similarity is preferred; lexical-only hits use the rerank score.
func retrievalRelevance(chunks []domain.RerankedCandidate) float64 {
	if len(chunks) == 0 {
		return 0
	}
	total := 0.0
	for _, c := range chunks {
		if c.HasVector() {
			total += clamp01(c.VectorScore)
			continue
		}
		total += clamp01(c.RerankScore)
	}
	return total / float64(len(chunks))
}

var expectedDocuments = map[domain.QueryType]int{
	domain.QueryTypeSingleCandidate: 1,
	domain.QueryTypeComparison:      2,
	domain.QueryTypeRanking:         3,
	domain.QueryTypeSearch:          2,
	domain.QueryTypeJobMatch:        2,
	domain.QueryTypeTeamBuild:       3,
	domain.QueryTypeVerification:    1,
	domain.QueryTypeSummary:         1,
	domain.QueryTypeGeneral:         1,
}

func retrievalCoverage(q domain.Query, chunks []domain.RerankedCandidate) float64 {
	expected := expectedDocuments[q.Type]
	if expected == 0 {
		expected = 1
	}
	if q.Type == domain.QueryTypeComparison && len(q.Entities.CandidateNames) > expected {
		expected = len(q.Entities.CandidateNames)
	}
	docs := make(map[string]struct{})
	for _, c := range chunks {
		if c.Chunk.DocumentID != "" {
			docs[c.Chunk.DocumentID] = struct{}{}
		}
	}
	return clamp01(float64(len(docs)) / float64(expected))
}

func responseCompleteness(d output.Draft, required []string) float64 {
	if len(required) == 0 {
		return 1
	}
	present := 0
	for _, title := range required {
		if d.HasSection(title) {
			present++
		}
	}
	return float64(present) / float64(len(required))
}

var percentValue = regexp.MustCompile(`(\d{1,3})(?:\.\d+)?\s*%`)

// internalConsistency checks the draft against itself: the candidate in the first
// table row should appear in the conclusion, and every percentage quoted in the
// conclusion should appear in a table. Drafts without either signal score 1.
func internalConsistency(d output.Draft) float64 {
	conclusion, ok := d.Section("Conclusion")
	if !ok || conclusion.Text() == "" {
		return 1
	}
	conclusionText := strings.ToLower(conclusion.Text())
	tables := d.Tables()

	checks, passed := 0, 0
	if top := topTableCandidate(tables); top != "" {
		checks++
		if strings.Contains(conclusionText, strings.ToLower(top)) {
			passed++
		}
	}

	if percents := percentValue.FindAllStringSubmatch(conclusionText, -1); len(percents) > 0 {
		inTables := make(map[string]struct{})
		for _, t := range tables {
			for _, row := range t.Rows {
				for _, cell := range row {
					for _, m := range percentValue.FindAllStringSubmatch(cell, -1) {
						inTables[m[1]] = struct{}{}
					}
				}
			}
		}
		for _, m := range percents {
			checks++
			if _, ok := inTables[m[1]]; ok {
				passed++
			}
		}
	}

	if checks == 0 {
		return 1
	}
	return float64(passed) / float64(checks)
}

// topTableCandidate returns the candidate named in the first row of the first table
// that has a candidate or name column.
func topTableCandidate(tables []output.Table) string {
	for _, t := range tables {
		col := t.Column("candidate", "name")
		if col < 0 || len(t.Rows) == 0 || col >= len(t.Rows[0]) {
			continue
		}
		if name := strings.TrimSpace(t.Rows[0][col]); name != "" {
			return name
		}
	}
	return ""
}
