package output

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/kirillkom/candidate-rag/internal/core/domain"
)

// Module extracts one piece of structured output. ok is false when the draft or
// chunks carry nothing for it; the orchestrator then leaves the module out.
type Module func(draft string, chunks []domain.Chunk) (any, bool)

const (
	ModuleDirectAnswer       = "direct_answer"
	ModuleReasoning          = "reasoning"
	ModuleConclusion         = "conclusion"
	ModuleCandidateProfile   = "candidate_profile"
	ModuleComparisonTable    = "comparison_table"
	ModuleRanking            = "ranking"
	ModuleMatchScores        = "match_scores"
	ModuleRiskAssessment     = "risk_assessment"
	ModuleStrengths          = "strengths"
	ModuleGaps               = "gaps"
	ModuleTeamComposition    = "team_composition"
	ModuleVerificationResult = "verification_result"
	ModuleSummary            = "summary"
	ModuleSearchResults      = "search_results"
	ModuleSources            = "sources"
)

var modules = map[string]Module{
	ModuleDirectAnswer:       directAnswer,
	ModuleReasoning:          reasoning,
	ModuleConclusion:         conclusion,
	ModuleCandidateProfile:   candidateProfile,
	ModuleComparisonTable:    comparisonTable,
	ModuleRanking:            ranking,
	ModuleMatchScores:        matchScores,
	ModuleRiskAssessment:     riskAssessment,
	ModuleStrengths:          strengths,
	ModuleGaps:               gaps,
	ModuleTeamComposition:    teamComposition,
	ModuleVerificationResult: verificationResult,
	ModuleSummary:            summary,
	ModuleSearchResults:      searchResults,
	ModuleSources:            sources,
}

// LookupModule returns the registered module by name.
func LookupModule(name string) (Module, bool) {
	m, ok := modules[name]
	return m, ok
}

type TextBlock struct {
	Text   string   `json:"text"`
	Points []string `json:"points,omitempty"`
}

type CandidateProfile struct {
	Name            string   `json:"name"`
	CurrentRole     string   `json:"current_role,omitempty"`
	YearsExperience float64  `json:"years_experience,omitempty"`
	Skills          []string `json:"skills,omitempty"`
	Education       []string `json:"education,omitempty"`
	Documents       []string `json:"documents"`
}

type RankingEntry struct {
	Position  int    `json:"position"`
	Candidate string `json:"candidate"`
	Score     string `json:"score,omitempty"`
	Rationale string `json:"rationale,omitempty"`
}

type MatchScore struct {
	Candidate     string   `json:"candidate"`
	Percent       int      `json:"percent"`
	MatchedSkills []string `json:"matched_skills,omitempty"`
	MissingSkills []string `json:"missing_skills,omitempty"`
	Years         string   `json:"years,omitempty"`
}

type RiskItem struct {
	Text     string `json:"text"`
	Severity string `json:"severity"`
}

type TeamMember struct {
	Role      string `json:"role"`
	Candidate string `json:"candidate"`
	Rationale string `json:"rationale,omitempty"`
}

type VerificationResult struct {
	Verdict  string   `json:"verdict"`
	Evidence []string `json:"evidence,omitempty"`
}

type CandidateMatch struct {
	Name      string   `json:"name"`
	Documents []string `json:"documents"`
	Sections  []string `json:"sections,omitempty"`
	Excerpt   string   `json:"excerpt"`
}

type SourceRef struct {
	Index         int    `json:"index"`
	ChunkID       string `json:"chunk_id"`
	DocumentID    string `json:"document_id"`
	CandidateName string `json:"candidate_name,omitempty"`
	Section       string `json:"section,omitempty"`
	Cited         bool   `json:"cited"`
}

func directAnswer(draft string, _ []domain.Chunk) (any, bool) {
	d := ParseDraft(draft)
	if s, ok := d.Section("Answer", "Direct Answer"); ok && s.Text() != "" {
		return TextBlock{Text: s.Text()}, true
	}
	if len(d.Sections) == 0 && d.Preamble.Text() != "" {
		return TextBlock{Text: d.Preamble.Text()}, true
	}
	return nil, false
}

func reasoning(draft string, _ []domain.Chunk) (any, bool) {
	return textSection(draft, "Reasoning")
}

func conclusion(draft string, _ []domain.Chunk) (any, bool) {
	return textSection(draft, "Conclusion")
}

func summary(draft string, _ []domain.Chunk) (any, bool) {
	return textSection(draft, "Summary")
}

func textSection(draft string, titles ...string) (any, bool) {
	s, ok := ParseDraft(draft).Section(titles...)
	if !ok || s.Text() == "" {
		return nil, false
	}
	return TextBlock{Text: strings.Join(s.Paragraphs, "\n"), Points: s.Items}, true
}

func strengths(draft string, _ []domain.Chunk) (any, bool) {
	return bulletSection(draft, "Strengths")
}

func gaps(draft string, _ []domain.Chunk) (any, bool) {
	return bulletSection(draft, "Gaps", "Weaknesses")
}

func bulletSection(draft string, titles ...string) (any, bool) {
	s, ok := ParseDraft(draft).Section(titles...)
	if !ok {
		return nil, false
	}
	items := append([]string(nil), s.Items...)
	if len(items) == 0 {
		items = append(items, s.Paragraphs...)
	}
	if len(items) == 0 {
		return nil, false
	}
	return items, true
}

// candidateProfile describes the candidate of the highest ranked chunk from metadata alone.
func candidateProfile(_ string, chunks []domain.Chunk) (any, bool) {
	name := ""
	for _, c := range chunks {
		if name = c.CandidateName(); name != "" {
			break
		}
	}
	if name == "" {
		return nil, false
	}

	profile := CandidateProfile{Name: name}
	skills := newOrderedSet()
	education := newOrderedSet()
	documents := newOrderedSet()
	for _, c := range chunks {
		if !strings.EqualFold(c.CandidateName(), name) {
			continue
		}
		documents.add(c.DocumentID)
		if profile.CurrentRole == "" {
			profile.CurrentRole = c.MetaString(domain.MetaCurrentRole)
		}
		if years, ok := c.MetaFloat(domain.MetaYearsExperience); ok && years > profile.YearsExperience {
			profile.YearsExperience = years
		}
		for _, s := range c.MetaStrings(domain.MetaSkills) {
			skills.add(s)
		}
		for _, e := range c.MetaStrings(domain.MetaEducation) {
			education.add(e)
		}
	}
	profile.Skills = skills.items
	profile.Education = education.items
	profile.Documents = documents.items
	return profile, true
}

func comparisonTable(draft string, _ []domain.Chunk) (any, bool) {
	d := ParseDraft(draft)
	if s, ok := d.Section("Comparison Table", "Comparison"); ok && len(s.Tables) > 0 {
		return s.Tables[0], true
	}
	for _, t := range d.Tables() {
		if len(t.Header) >= 2 && len(t.Rows) > 0 {
			return t, true
		}
	}
	return nil, false
}

var leadingNumber = regexp.MustCompile(`^\s*#?(\d+)[.)]?\s*`)

func ranking(draft string, _ []domain.Chunk) (any, bool) {
	s, ok := ParseDraft(draft).Section("Ranking", "Rankings")
	if !ok {
		return nil, false
	}

	var entries []RankingEntry
	if len(s.Tables) > 0 {
		t := s.Tables[0]
		nameCol := t.Column("candidate", "name")
		if nameCol < 0 {
			nameCol = 1
			if len(t.Header) < 2 {
				nameCol = 0
			}
		}
		posCol := t.Column("rank", "#", "position")
		scoreCol := t.Column("score", "match", "%")
		reasonCol := t.Column("reason", "rationale", "justification", "why")
		for i, row := range t.Rows {
			entry := RankingEntry{Position: i + 1, Candidate: cell(row, nameCol)}
			if pos, err := strconv.Atoi(strings.Trim(cell(row, posCol), "#. ")); err == nil && pos > 0 {
				entry.Position = pos
			}
			entry.Score = cell(row, scoreCol)
			entry.Rationale = cell(row, reasonCol)
			if entry.Candidate != "" {
				entries = append(entries, entry)
			}
		}
	} else {
		for i, item := range s.Items {
			item = leadingNumber.ReplaceAllString(item, "")
			name, rationale := splitLabel(item)
			if name == "" {
				continue
			}
			entries = append(entries, RankingEntry{Position: i + 1, Candidate: name, Rationale: rationale})
		}
	}
	if len(entries) == 0 {
		return nil, false
	}
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].Position < entries[j].Position })
	return entries, true
}

var percentPattern = regexp.MustCompile(`(\d{1,3})(?:\.\d+)?\s*%`)

func matchScores(draft string, _ []domain.Chunk) (any, bool) {
	s, ok := ParseDraft(draft).Section("Match Scores")
	if !ok || len(s.Tables) == 0 {
		return nil, false
	}
	t := s.Tables[0]
	nameCol := t.Column("candidate", "name")
	if nameCol < 0 {
		nameCol = 0
	}
	percentCol := t.Column("match", "score", "%")
	matchedCol := t.Column("matched")
	missingCol := t.Column("missing")
	yearsCol := t.Column("years")

	var out []MatchScore
	for _, row := range t.Rows {
		name := cell(row, nameCol)
		m := percentPattern.FindStringSubmatch(cell(row, percentCol))
		if name == "" || m == nil {
			continue
		}
		percent, _ := strconv.Atoi(m[1])
		out = append(out, MatchScore{
			Candidate:     name,
			Percent:       percent,
			MatchedSkills: splitList(cell(row, matchedCol)),
			MissingSkills: splitList(cell(row, missingCol)),
			Years:         cell(row, yearsCol),
		})
	}
	if len(out) == 0 {
		return nil, false
	}
	return out, true
}

func riskAssessment(draft string, _ []domain.Chunk) (any, bool) {
	s, ok := ParseDraft(draft).Section("Risk Assessment", "Risks", "Red Flags")
	if !ok {
		return nil, false
	}
	lines := append([]string(nil), s.Items...)
	if len(lines) == 0 {
		lines = append(lines, s.Paragraphs...)
	}
	var out []RiskItem
	for _, line := range lines {
		if line = strings.TrimSpace(line); line == "" {
			continue
		}
		out = append(out, RiskItem{Text: line, Severity: severityOf(line)})
	}
	if len(out) == 0 {
		return nil, false
	}
	return out, true
}

func severityOf(line string) string {
	lower := strings.ToLower(line)
	switch {
	case strings.Contains(lower, "high"), strings.Contains(lower, "critical"), strings.Contains(lower, "major"):
		return "high"
	case strings.Contains(lower, "medium"), strings.Contains(lower, "moderate"):
		return "medium"
	case strings.Contains(lower, "low"), strings.Contains(lower, "minor"):
		return "low"
	default:
		return "unspecified"
	}
}

func teamComposition(draft string, _ []domain.Chunk) (any, bool) {
	s, ok := ParseDraft(draft).Section("Team Composition", "Team")
	if !ok {
		return nil, false
	}
	var out []TeamMember
	if len(s.Tables) > 0 {
		t := s.Tables[0]
		roleCol := t.Column("role", "position")
		nameCol := t.Column("candidate", "name", "member")
		reasonCol := t.Column("reason", "rationale", "why", "contribution")
		if roleCol < 0 {
			roleCol = 0
		}
		if nameCol < 0 {
			nameCol = 1
		}
		for _, row := range t.Rows {
			member := TeamMember{Role: cell(row, roleCol), Candidate: cell(row, nameCol), Rationale: cell(row, reasonCol)}
			if member.Candidate != "" {
				out = append(out, member)
			}
		}
	} else {
		for _, item := range s.Items {
			role, rest := splitLabel(item)
			candidate, rationale := splitDash(rest)
			if candidate == "" {
				continue
			}
			out = append(out, TeamMember{Role: role, Candidate: candidate, Rationale: rationale})
		}
	}
	if len(out) == 0 {
		return nil, false
	}
	return out, true
}

func verificationResult(draft string, _ []domain.Chunk) (any, bool) {
	s, ok := ParseDraft(draft).Section("Verification")
	if !ok || s.Text() == "" {
		return nil, false
	}
	lower := strings.ToLower(s.Text())
	verdict := "inconclusive"
	switch {
	case containsAny(lower, "not supported", "not confirmed", "refuted", "contradict", "incorrect", "false", "no evidence"):
		verdict = "refuted"
	case containsAny(lower, "confirmed", "verified", "supported", "correct", "true"):
		verdict = "confirmed"
	}
	evidence := append([]string(nil), s.Items...)
	if len(evidence) == 0 {
		evidence = append(evidence, s.Paragraphs...)
	}
	return VerificationResult{Verdict: verdict, Evidence: evidence}, true
}

// searchResults groups chunks by candidate in retrieval order.
func searchResults(_ string, chunks []domain.Chunk) (any, bool) {
	index := make(map[string]int)
	var out []CandidateMatch
	for _, c := range chunks {
		name := c.CandidateName()
		if name == "" {
			continue
		}
		key := strings.ToLower(name)
		i, ok := index[key]
		if !ok {
			i = len(out)
			index[key] = i
			out = append(out, CandidateMatch{Name: name, Excerpt: excerpt(c.Text, 200)})
		}
		if !containsString(out[i].Documents, c.DocumentID) {
			out[i].Documents = append(out[i].Documents, c.DocumentID)
		}
		if section := c.SectionType(); section != "" && !containsString(out[i].Sections, section) {
			out[i].Sections = append(out[i].Sections, section)
		}
	}
	if len(out) == 0 {
		return nil, false
	}
	return out, true
}

func sources(draft string, chunks []domain.Chunk) (any, bool) {
	seen := make(map[string]struct{}, len(chunks))
	var out []SourceRef
	for i, c := range chunks {
		if _, ok := seen[c.ID]; ok {
			continue
		}
		seen[c.ID] = struct{}{}
		out = append(out, SourceRef{
			Index:         i + 1,
			ChunkID:       c.ID,
			DocumentID:    c.DocumentID,
			CandidateName: c.CandidateName(),
			Section:       c.SectionType(),
			Cited:         strings.Contains(draft, fmt.Sprintf("[%d]", i+1)),
		})
	}
	if len(out) == 0 {
		return nil, false
	}
	return out, true
}

func cell(row []string, col int) string {
	if col < 0 || col >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[col])
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ';' }) {
		if part = strings.TrimSpace(part); part != "" && part != "-" {
			out = append(out, part)
		}
	}
	return out
}

// splitLabel splits "Maria Lopez: strong Python" into its label and remainder.
func splitLabel(s string) (string, string) {
	if i := strings.Index(s, ":"); i > 0 {
		return strings.TrimSpace(s[:i]), strings.TrimSpace(s[i+1:])
	}
	return splitDash(s)
}

func splitDash(s string) (string, string) {
	for _, sep := range []string{" - ", " – ", " — "} {
		if i := strings.Index(s, sep); i > 0 {
			return strings.TrimSpace(s[:i]), strings.TrimSpace(s[i+len(sep):])
		}
	}
	return strings.TrimSpace(s), ""
}

func containsAny(s string, needles ...string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}

func containsString(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}

func excerpt(s string, limit int) string {
	s = strings.Join(strings.Fields(s), " ")
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return strings.TrimSpace(string(runes[:limit])) + "..."
}

type orderedSet struct {
	seen  map[string]struct{}
	items []string
}

func newOrderedSet() *orderedSet {
	return &orderedSet{seen: make(map[string]struct{})}
}

func (s *orderedSet) add(v string) {
	v = strings.TrimSpace(v)
	key := strings.ToLower(v)
	if v == "" {
		return
	}
	if _, ok := s.seen[key]; ok {
		return
	}
	s.seen[key] = struct{}{}
	s.items = append(s.items, v)
}
