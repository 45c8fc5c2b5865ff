package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/kirillkom/candidate-rag/internal/core/domain"
	"github.com/kirillkom/candidate-rag/internal/core/ports"
)

const matchScoresSection = "Match Scores"

type GenerationConfig struct {
	Temperature     float64
	MaxTokens       int
	MaxContextChars int
	Timeout         time.Duration
}

type Generator struct {
	completion ports.CompletionService
	templates  *TemplateSet
	cfg        GenerationConfig
	logger     *slog.Logger
}

func NewGenerator(completion ports.CompletionService, templates *TemplateSet, cfg GenerationConfig, logger *slog.Logger) *Generator {
	if templates == nil {
		templates = DefaultTemplates()
	}
	if cfg.MaxContextChars <= 0 {
		cfg.MaxContextChars = 12000
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 1200
	}
	if cfg.Temperature < 0 {
		cfg.Temperature = 0
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Generator{completion: completion, templates: templates, cfg: cfg, logger: logger}
}

type GenerationInput struct {
	Query   domain.Query
	Chunks  []domain.RerankedCandidate
	Attempt int
	// Feedback carries the claims that failed verification in the previous attempt.
	Feedback []domain.Claim
}

type Draft struct {
	Text             string
	NoInformation    bool
	Temperature      float64
	ContextChunks    int
	PromptTokens     int
	CompletionTokens int
}

func (g *Generator) Generate(ctx context.Context, in GenerationInput) (Draft, error) {
	if len(in.Chunks) == 0 {
		return g.NoInformation(), nil
	}

	tpl := g.templates.For(in.Query.Type)
	contextText, used := buildContext(in.Chunks, g.cfg.MaxContextChars)
	temperature := temperatureFor(g.cfg.Temperature, in.Attempt)

	callCtx := ctx
	if g.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, g.cfg.Timeout)
		defer cancel()
	}
	completion, err := g.completion.Generate(callCtx, domain.CompletionRequest{
		System:      g.templates.System,
		User:        buildGenerationPrompt(in.Query, tpl, contextText, in.Feedback),
		Temperature: temperature,
		MaxTokens:   g.cfg.MaxTokens,
	})
	if err != nil {
		return Draft{}, fmt.Errorf("generate draft: %w", err)
	}

	text := strings.TrimSpace(completion.Text)
	if text == "" {
		return Draft{}, fmt.Errorf("generate draft: empty completion")
	}
	if containsSection(tpl.Sections, matchScoresSection) {
		if table := renderMatchScores(computeMatchScores(in.Query, in.Chunks)); table != "" {
			text = replaceSection(text, matchScoresSection, table)
		}
	}

	return Draft{
		Text:             text,
		Temperature:      temperature,
		ContextChunks:    used,
		PromptTokens:     completion.PromptTokens,
		CompletionTokens: completion.CompletionTokens,
	}, nil
}

// NoInformation is the fixed answer used when nothing relevant was retrieved.
func (g *Generator) NoInformation() Draft {
	return Draft{Text: strings.TrimSpace(g.templates.NoInformation), NoInformation: true}
}

func (g *Generator) RequiredSections(queryType domain.QueryType) []string {
	return g.templates.RequiredSections(queryType)
}

// temperatureFor halves the temperature on every regeneration.
func temperatureFor(base float64, attempt int) float64 {
	if attempt <= 1 {
		return base
	}
	return base / math.Pow(2, float64(attempt-1))
}

func buildContext(chunks []domain.RerankedCandidate, maxChars int) (string, int) {
	var b strings.Builder
	budget := maxChars
	used := 0
	for i, c := range chunks {
		header := fmt.Sprintf("[%d] source=%s candidate=%s section=%s\n", i+1,
			orDash(c.Chunk.DocumentID), orDash(c.Chunk.CandidateName()), orDash(c.Chunk.SectionType()))
		body := strings.TrimSpace(c.Chunk.Text)
		size := runeLen(header) + runeLen(body) + 2
		if size > budget {
			if used > 0 {
				break
			}
			remaining := budget - runeLen(header) - 2
			if remaining <= 0 {
				break
			}
			body = string([]rune(body)[:remaining])
			size = budget
		}
		b.WriteString(header)
		b.WriteString(body)
		b.WriteString("\n\n")
		budget -= size
		used++
	}
	return strings.TrimSpace(b.String()), used
}

func buildGenerationPrompt(q domain.Query, tpl PromptTemplate, contextText string, feedback []domain.Claim) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Question: %s\n", q.SearchText())
	fmt.Fprintf(&b, "Query type: %s\n", q.Type)
	if len(q.Entities.CandidateNames) > 0 {
		fmt.Fprintf(&b, "Candidates in question: %s\n", strings.Join(q.Entities.CandidateNames, ", "))
	}
	if len(q.Entities.Skills) > 0 {
		fmt.Fprintf(&b, "Required skills: %s\n", strings.Join(q.Entities.Skills, ", "))
	}
	if q.Entities.MinYears > 0 {
		fmt.Fprintf(&b, "Minimum years of experience: %d\n", q.Entities.MinYears)
	}

	b.WriteString("\nContext excerpts:\n")
	b.WriteString(contextText)
	b.WriteString("\n\nTask: ")
	b.WriteString(strings.TrimSpace(tpl.Instructions))
	b.WriteString("\nUse these sections in this order, each as a level-3 heading: ")
	headings := make([]string, 0, len(tpl.Sections))
	for _, s := range tpl.Sections {
		headings = append(headings, "### "+s)
	}
	b.WriteString(strings.Join(headings, ", "))
	b.WriteString("\n")

	if len(feedback) > 0 {
		b.WriteString("\nThe previous answer contained statements the excerpts do not support. Remove or correct them:\n")
		for _, claim := range feedback {
			fmt.Fprintf(&b, "- %s (%s)\n", claim.Text, claim.Status)
		}
	}
	return b.String()
}

type candidateMatch struct {
	name    string
	percent int
	matched []string
	missing []string
	years   float64
	hasYear bool
}

// computeMatchScores derives match percentages from chunk metadata only. It
// returns nil when the query names neither skills nor a minimum of years.
func computeMatchScores(q domain.Query, chunks []domain.RerankedCandidate) []candidateMatch {
	required := q.Entities.Skills
	minYears := q.Entities.MinYears
	if len(required) == 0 && minYears <= 0 {
		return nil
	}

	type profile struct {
		name    string
		skills  map[string]struct{}
		years   float64
		hasYear bool
	}
	byName := make(map[string]*profile)
	var order []string
	for _, c := range chunks {
		name := c.Chunk.CandidateName()
		if name == "" {
			continue
		}
		key := strings.ToLower(name)
		p, ok := byName[key]
		if !ok {
			p = &profile{name: name, skills: make(map[string]struct{})}
			byName[key] = p
			order = append(order, key)
		}
		for _, s := range c.Chunk.MetaStrings(domain.MetaSkills) {
			p.skills[canonicalSkill(s)] = struct{}{}
		}
		if years, ok := c.Chunk.MetaFloat(domain.MetaYearsExperience); ok && (!p.hasYear || years > p.years) {
			p.years = years
			p.hasYear = true
		}
	}

	out := make([]candidateMatch, 0, len(order))
	for _, key := range order {
		p := byName[key]
		m := candidateMatch{name: p.name, years: p.years, hasYear: p.hasYear}
		for _, skill := range required {
			if _, ok := p.skills[canonicalSkill(skill)]; ok {
				m.matched = append(m.matched, skill)
			} else {
				m.missing = append(m.missing, skill)
			}
		}

		var score float64
		skillScore := 0.0
		if len(required) > 0 {
			skillScore = float64(len(m.matched)) / float64(len(required))
		}
		yearsScore := 0.0
		if minYears > 0 && p.hasYear {
			yearsScore = math.Min(1, p.years/float64(minYears))
		}
		switch {
		case len(required) > 0 && minYears > 0:
			score = 0.7*skillScore + 0.3*yearsScore
		case len(required) > 0:
			score = skillScore
		default:
			score = yearsScore
		}
		m.percent = int(math.Round(score * 100))
		out = append(out, m)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].percent != out[j].percent {
			return out[i].percent > out[j].percent
		}
		return out[i].name < out[j].name
	})
	return out
}

func renderMatchScores(matches []candidateMatch) string {
	if len(matches) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("| Candidate | Match | Matched Skills | Missing Skills | Years |\n")
	b.WriteString("|---|---|---|---|---|\n")
	for _, m := range matches {
		years := "-"
		if m.hasYear {
			years = strconv.FormatFloat(m.years, 'f', -1, 64)
		}
		fmt.Fprintf(&b, "| %s | %d%% | %s | %s | %s |\n",
			m.name, m.percent, orDash(strings.Join(m.matched, ", ")), orDash(strings.Join(m.missing, ", ")), years)
	}
	return strings.TrimRight(b.String(), "\n")
}

var headingLine = regexp.MustCompile(`^\s{0,3}#{1,6}\s+(.*?)\s*#*\s*$`)

// replaceSection swaps the body under the given heading, or inserts the section
// before the conclusion when the draft has no such heading.
func replaceSection(draft, title, body string) string {
	lines := strings.Split(draft, "\n")
	block := []string{"### " + title, body, ""}

	start, conclusion := -1, -1
	for i, line := range lines {
		m := headingLine.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		name := strings.ToLower(strings.TrimSpace(m[1]))
		if start < 0 && name == strings.ToLower(title) {
			start = i
			continue
		}
		if conclusion < 0 && name == "conclusion" {
			conclusion = i
		}
	}

	if start >= 0 {
		end := len(lines)
		for i := start + 1; i < len(lines); i++ {
			if headingLine.MatchString(lines[i]) {
				end = i
				break
			}
		}
		out := append([]string{}, lines[:start]...)
		out = append(out, block...)
		out = append(out, lines[end:]...)
		return strings.TrimSpace(strings.Join(out, "\n"))
	}
	if conclusion >= 0 {
		out := append([]string{}, lines[:conclusion]...)
		out = append(out, block...)
		out = append(out, lines[conclusion:]...)
		return strings.TrimSpace(strings.Join(out, "\n"))
	}
	return strings.TrimSpace(draft) + "\n\n" + strings.Join(block[:2], "\n")
}

func containsSection(sections []string, title string) bool {
	for _, s := range sections {
		if strings.EqualFold(s, title) {
			return true
		}
	}
	return false
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}

func runeLen(s string) int {
	return len([]rune(s))
}
