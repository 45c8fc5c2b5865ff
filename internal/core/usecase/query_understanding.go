package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/kirillkom/candidate-rag/internal/core/domain"
	"github.com/kirillkom/candidate-rag/internal/core/ports"
)

const (
	minVariations = 2
	maxVariations = 4
)

type QueryAnalyzer struct {
	completion ports.CompletionService
	timeout    time.Duration
	logger     *slog.Logger
}

func NewQueryAnalyzer(completion ports.CompletionService, timeout time.Duration, logger *slog.Logger) *QueryAnalyzer {
	if logger == nil {
		logger = slog.Default()
	}
	return &QueryAnalyzer{completion: completion, timeout: timeout, logger: logger}
}

type AnalyzeInput struct {
	Text            string
	History         []domain.ConversationTurn
	KnownCandidates []string
}

type QueryAnalysis struct {
	Query domain.Query
	// RuleConfident is set when the rules alone settled the query type.
	RuleConfident bool
	// Degraded names the reason expansion was skipped; empty on success.
	Degraded string
}

// Analyze never fails: expansion problems degrade to the rule-based result.
func (a *QueryAnalyzer) Analyze(ctx context.Context, in AnalyzeInput) QueryAnalysis {
	text := strings.TrimSpace(in.Text)
	resolved, referenced := resolveAnaphora(text, in.History, in.KnownCandidates)

	entities := extractEntities(resolved, in.KnownCandidates)
	entities.CandidateNames = mergeNames(referenced, entities.CandidateNames)
	queryType := classifyQueryType(resolved, entities)

	q := domain.Query{
		Text:     text,
		Resolved: resolved,
		Type:     queryType,
		Entities: entities,
	}
	analysis := QueryAnalysis{Query: q, RuleConfident: queryType != domain.QueryTypeGeneral}

	if a.completion == nil {
		analysis.Degraded = "no_completion_service"
		return analysis
	}

	expansion, err := a.expand(ctx, resolved)
	if err != nil {
		analysis.Degraded = "expansion_failed"
		a.logger.Warn("stage_degraded", "stage", "query_understanding", "reason", analysis.Degraded, "error", err)
		return analysis
	}

	analysis.Query.Variations = cleanVariations(expansion.Variations, resolved)
	analysis.Query.HypotheticalAnswer = strings.TrimSpace(expansion.HypotheticalAnswer)
	if !analysis.RuleConfident {
		if qt, ok := domain.ParseQueryType(expansion.QueryType); ok {
			analysis.Query.Type = qt
		}
	}
	if len(analysis.Query.Variations) < minVariations {
		a.logger.Debug("query_variations_short", "count", len(analysis.Query.Variations))
	}
	return analysis
}

type queryExpansion struct {
	QueryType          string   `json:"query_type"`
	Variations         []string `json:"variations"`
	HypotheticalAnswer string   `json:"hypothetical_answer"`
}

func (a *QueryAnalyzer) expand(ctx context.Context, question string) (queryExpansion, error) {
	callCtx := ctx
	if a.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}
	completion, err := a.completion.Generate(callCtx, domain.CompletionRequest{
		System:      expansionSystemPrompt,
		User:        buildExpansionPrompt(question),
		Temperature: 0.3,
		MaxTokens:   400,
		JSON:        true,
	})
	if err != nil {
		return queryExpansion{}, err
	}
	return parseExpansion(completion.Text)
}

const expansionSystemPrompt = `You rewrite recruiting questions for document search. Return ONLY a JSON object.`

func buildExpansionPrompt(question string) string {
	types := make([]string, 0, len(domain.AllQueryTypes()))
	for _, qt := range domain.AllQueryTypes() {
		types = append(types, string(qt))
	}
	return fmt.Sprintf(`Question: %s

Return JSON with this schema:
{"query_type":"one of %s","variations":["2 to 4 paraphrases of the question"],"hypothetical_answer":"a short résumé excerpt that would answer the question"}`,
		question, strings.Join(types, "|"))
}

func parseExpansion(raw string) (queryExpansion, error) {
	raw = strings.TrimSpace(raw)
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return queryExpansion{}, fmt.Errorf("expansion response has no json object")
	}
	var out queryExpansion
	if err := json.Unmarshal([]byte(raw[start:end+1]), &out); err != nil {
		return queryExpansion{}, fmt.Errorf("unmarshal expansion json: %w", err)
	}
	return out, nil
}

func cleanVariations(raw []string, resolved string) []string {
	seen := map[string]struct{}{strings.ToLower(strings.TrimSpace(resolved)): {}}
	out := make([]string, 0, maxVariations)
	for _, v := range raw {
		v = strings.TrimSpace(v)
		key := strings.ToLower(v)
		if v == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, v)
		if len(out) == maxVariations {
			break
		}
	}
	return out
}

type typeRule struct {
	queryType domain.QueryType
	pattern   *regexp.Regexp
}

// Order matters: the first matching rule wins.
var typeRules = []typeRule{
	{domain.QueryTypeVerification, regexp.MustCompile(`\b(verify|is it true|confirm|fact[- ]check|really|did \w+ (actually|really))\b`)},
	{domain.QueryTypeTeamBuild, regexp.MustCompile(`\b(team|squad|assemble|staff (a|the) project)\b`)},
	{domain.QueryTypeJobMatch, regexp.MustCompile(`\b(job description|requirements?|good fit|fit for|fits|suitable|match(es)? (the|this|our)|qualif(y|ied|ies) for|position|vacancy|opening)\b`)},
	{domain.QueryTypeComparison, regexp.MustCompile(`\b(compare|comparison|versus|vs\.?|difference between|better than|differ)\b`)},
	{domain.QueryTypeRanking, regexp.MustCompile(`\b(rank|ranking|top \d+|top|best|strongest|most experienced|order (them|candidates)|shortlist)\b`)},
	{domain.QueryTypeSummary, regexp.MustCompile(`\b(summari[sz]e|summary|overview|tl;?dr|brief(ly)?|recap)\b`)},
	{domain.QueryTypeSearch, regexp.MustCompile(`\b(who (has|have|knows|know|worked|is|can)|find|which candidates?|anyone|any candidates?|list (all )?candidates|search|candidates with)\b`)},
	{domain.QueryTypeSingleCandidate, regexp.MustCompile(`\b(tell me (more )?about|profile of|background of|what does \w+ do)\b`)},
}

func classifyQueryType(text string, entities domain.QueryEntities) domain.QueryType {
	lower := strings.ToLower(text)
	for _, rule := range typeRules {
		if !rule.pattern.MatchString(lower) {
			continue
		}
		if rule.queryType == domain.QueryTypeSingleCandidate && len(entities.CandidateNames) > 1 {
			return domain.QueryTypeComparison
		}
		return rule.queryType
	}
	switch len(entities.CandidateNames) {
	case 0:
		return domain.QueryTypeGeneral
	case 1:
		return domain.QueryTypeSingleCandidate
	default:
		return domain.QueryTypeComparison
	}
}

var (
	yearsPattern = regexp.MustCompile(`(?i)\b(\d{1,2})\s*\+?\s*(?:years?|yrs?)\b`)
	tokenPattern = regexp.MustCompile(`[a-z0-9][a-z0-9+#.\-]*`)
)

var skillLexicon = []string{
	"python", "java", "javascript", "typescript", "golang", "rust", "c++", "c#", "kotlin", "swift",
	"ruby", "php", "scala", "r", "sql", "postgresql", "mysql", "mongodb", "redis", "kafka", "spark",
	"hadoop", "airflow", "dbt", "docker", "kubernetes", "terraform", "ansible", "aws", "gcp", "azure",
	"linux", "react", "angular", "vue", "node.js", "django", "flask", "fastapi", "spring", "graphql",
	"pytorch", "tensorflow", "scikit-learn", "pandas", "machine learning", "deep learning", "nlp",
	"computer vision", "data engineering", "devops", "ci/cd", "microservices", "figma", "tableau",
	"power bi", "excel", "agile", "scrum", "leadership", "project management",
}

var skillAliases = map[string]string{
	"go":       "golang",
	"js":       "javascript",
	"ts":       "typescript",
	"k8s":      "kubernetes",
	"postgres": "postgresql",
	"ml":       "machine learning",
	"node":     "node.js",
	"nodejs":   "node.js",
	"sklearn":  "scikit-learn",
	"powerbi":  "power bi",
	"gcloud":   "gcp",
}

func canonicalSkill(skill string) string {
	skill = strings.ToLower(strings.TrimSpace(skill))
	if alias, ok := skillAliases[skill]; ok {
		return alias
	}
	return skill
}

var sectionHints = map[string]string{
	"education":      "education",
	"degree":         "education",
	"university":     "education",
	"certification":  "certifications",
	"certifications": "certifications",
	"project":        "projects",
	"projects":       "projects",
}

func extractEntities(text string, known []string) domain.QueryEntities {
	lower := strings.ToLower(text)
	entities := domain.QueryEntities{CandidateNames: matchKnownNames(text, known)}

	tokens := tokenPattern.FindAllString(lower, -1)
	tokenSet := make(map[string]struct{}, len(tokens))
	for _, tok := range tokens {
		tokenSet[strings.TrimRight(tok, ".")] = struct{}{}
	}

	seen := make(map[string]struct{})
	addSkill := func(s string) {
		if _, ok := seen[s]; ok {
			return
		}
		seen[s] = struct{}{}
		entities.Skills = append(entities.Skills, s)
	}
	for _, skill := range skillLexicon {
		if strings.ContainsAny(skill, " /") {
			if wordIndex(lower, skill) >= 0 {
				addSkill(skill)
			}
			continue
		}
		// A bare "r" is too ambiguous to count without an explicit language context.
		if skill == "r" {
			continue
		}
		if _, ok := tokenSet[skill]; ok {
			addSkill(skill)
		}
	}
	for alias, skill := range skillAliases {
		if alias == "go" {
			continue
		}
		if _, ok := tokenSet[alias]; ok {
			addSkill(skill)
		}
	}
	sort.Strings(entities.Skills)

	if m := yearsPattern.FindStringSubmatch(text); m != nil {
		if years, err := strconv.Atoi(m[1]); err == nil {
			entities.MinYears = years
		}
	}
	// Only a question about a single section narrows the search.
	sections := make(map[string]struct{})
	for word, section := range sectionHints {
		if _, ok := tokenSet[word]; ok {
			sections[section] = struct{}{}
		}
	}
	if len(sections) == 1 {
		for section := range sections {
			entities.Filters = domain.MetadataFilter{domain.MetaSectionType: section}
		}
	}
	return entities
}

// matchKnownNames finds candidate names in text, by full name or by first name,
// in order of appearance.
func matchKnownNames(text string, known []string) []string {
	lower := strings.ToLower(text)
	type hit struct {
		name string
		pos  int
	}
	var hits []hit
	for _, name := range known {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if pos := wordIndex(lower, strings.ToLower(name)); pos >= 0 {
			hits = append(hits, hit{name, pos})
			continue
		}
		if first := strings.Fields(name)[0]; len(first) > 2 {
			if pos := wordIndex(lower, strings.ToLower(first)); pos >= 0 {
				hits = append(hits, hit{name, pos})
			}
		}
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].pos < hits[j].pos })
	out := make([]string, 0, len(hits))
	for _, h := range hits {
		out = mergeNames(out, []string{h.name})
	}
	return out
}

// wordIndex is strings.Index restricted to whole-word matches.
func wordIndex(s, word string) int {
	offset := 0
	for {
		i := strings.Index(s[offset:], word)
		if i < 0 {
			return -1
		}
		start := offset + i
		end := start + len(word)
		if (start == 0 || !isWordByte(s[start-1])) && (end == len(s) || !isWordByte(s[end])) {
			return start
		}
		offset = start + 1
	}
}

func isWordByte(b byte) bool {
	return b == '_' || (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z') || (b >= '0' && b <= '9')
}

func mergeNames(a, b []string) []string {
	out := append([]string(nil), a...)
	for _, name := range b {
		dup := false
		for _, existing := range out {
			if strings.EqualFold(existing, name) {
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, name)
		}
	}
	return out
}

type anaphoraRule struct {
	pattern    *regexp.Regexp
	count      int // 0 means every name of the latest turn
	possessive bool
}

var countWords = map[string]int{"two": 2, "three": 3, "four": 4, "five": 5}

var (
	countedReference = regexp.MustCompile(`(?i)\b(?:those|these|the|all)\s+(two|three|four|five)(?:\s+(?:candidates|people|applicants|of them))?\b`)
	anaphoraRules    = []anaphoraRule{
		{pattern: regexp.MustCompile(`(?i)\bboth(?:\s+of\s+them)?\b`), count: 2},
		{pattern: regexp.MustCompile(`(?i)\b(?:those|these)\s+(?:candidates|people|applicants)\b`)},
		{pattern: regexp.MustCompile(`(?i)\b(?:all\s+of\s+them|them|they)\b`)},
		{pattern: regexp.MustCompile(`(?i)\btheir\b`), possessive: true},
		{pattern: regexp.MustCompile(`(?i)\b(?:this|that|the)\s+(?:candidate|person|applicant)\b`), count: 1},
		{pattern: regexp.MustCompile(`(?i)\b(?:his|hers)\b|\bher\s+(?:experience|skills|background|resume|résumé|cv|education|role|profile|projects|career|work)\b`), count: 1, possessive: true},
		{pattern: regexp.MustCompile(`(?i)\b(?:she|he|her|him)\b`), count: 1},
	}
)

// resolveAnaphora substitutes pronoun references with candidate names from the
// most recent history turns. It returns the resolved text and the names used.
func resolveAnaphora(text string, history []domain.ConversationTurn, known []string) (string, []string) {
	if len(history) == 0 || len(known) == 0 || len(matchKnownNames(text, known)) > 0 {
		return text, nil
	}
	recent, latest := recentNames(history, known)
	if len(recent) == 0 {
		return text, nil
	}

	if loc := countedReference.FindStringSubmatchIndex(text); loc != nil {
		n := countWords[strings.ToLower(text[loc[2]:loc[3]])]
		names := takeNames(recent, n)
		return text[:loc[0]] + joinNames(names) + text[loc[1]:], names
	}

	for _, rule := range anaphoraRules {
		loc := rule.pattern.FindStringIndex(text)
		if loc == nil {
			continue
		}
		names := latest
		if rule.count > 0 {
			names = takeNames(recent, rule.count)
		}
		matched := text[loc[0]:loc[1]]
		replacement := joinNames(names)
		if rule.possessive {
			replacement += "'s"
			// Keep the noun after "her experience".
			if fields := strings.Fields(matched); len(fields) == 2 {
				replacement += " " + fields[1]
			}
		}
		return text[:loc[0]] + replacement + text[loc[1]:], names
	}
	return text, nil
}

// recentNames lists known names from the newest turn backwards, and separately
// the names of the newest turn that mentions any.
func recentNames(history []domain.ConversationTurn, known []string) ([]string, []string) {
	var all, latest []string
	for i := len(history) - 1; i >= 0; i-- {
		names := matchKnownNames(history[i].Content, known)
		if len(names) == 0 {
			continue
		}
		if latest == nil {
			latest = names
		}
		all = mergeNames(all, names)
	}
	return all, latest
}

func takeNames(names []string, n int) []string {
	if n <= 0 || n >= len(names) {
		return names
	}
	return names[:n]
}

func joinNames(names []string) string {
	switch len(names) {
	case 0:
		return ""
	case 1:
		return names[0]
	default:
		return strings.Join(names[:len(names)-1], ", ") + " and " + names[len(names)-1]
	}
}
