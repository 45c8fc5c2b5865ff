package usecase

import (
	"context"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/kirillkom/candidate-rag/internal/core/domain"
	"github.com/kirillkom/candidate-rag/internal/core/ports"
)

const (
	GuardrailMethodKeyword  = "keyword"
	GuardrailMethodSemantic = "semantic"
	GuardrailMethodFallback = "keyword_fallback"

	inDomainLabel = "candidate résumés, skills, work experience or hiring"
)

var offTopicLabels = []string{
	"weather",
	"cooking or recipes",
	"sports",
	"entertainment, movies or music",
	"politics or news",
	"general trivia",
}

var (
	domainPattern = regexp.MustCompile(`(?i)\b(r[ée]sum[ée]s?|cvs?|candidates?|applicants?|hire|hiring|recruit\w*|interview\w*|experience|experienced|skills?|skilled|developers?|engineers?|designers?|analysts?|managers?|scientists?|job|role|position|employ\w*|worked|career|education|degree|certif\w*|qualif\w*|seniority|senior|junior|team|salary|portfolio)\b`)
	offTopicPattern = regexp.MustCompile(`(?i)\b(weather|forecast|rain|temperature outside|recipes?|cook(ing)?|bake|baking|pasta|pizza|dinner|football|soccer|basketball|nba|nfl|match score|movies?|films?|songs?|lyrics|jokes?|horoscope|zodiac|stock price|bitcoin|capital of|president of|election|celebrity)\b`)
)

type GuardrailConfig struct {
	Threshold float64
	Timeout   time.Duration
}

// Guardrail rejects clearly off-topic questions before any retrieval cost.
type Guardrail struct {
	classifier ports.ZeroShotClassifier
	cfg        GuardrailConfig
	logger     *slog.Logger
}

func NewGuardrail(classifier ports.ZeroShotClassifier, cfg GuardrailConfig, logger *slog.Logger) *Guardrail {
	if cfg.Threshold <= 0 || cfg.Threshold >= 1 {
		cfg.Threshold = 0.5
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Guardrail{classifier: classifier, cfg: cfg, logger: logger}
}

func (g *Guardrail) Check(ctx context.Context, text string, hasChunks bool) domain.GuardrailDecision {
	decision := g.decide(ctx, text, hasChunks)
	g.logger.Info("guardrail_decision",
		"allowed", decision.Allowed,
		"method", decision.Method,
		"confidence", decision.Confidence,
		"reason", decision.Reason,
		"has_chunks", hasChunks,
	)
	return decision
}

func (g *Guardrail) decide(ctx context.Context, text string, hasChunks bool) domain.GuardrailDecision {
	if domainPattern.MatchString(text) {
		return domain.GuardrailDecision{Allowed: true, Confidence: 0.9, Method: GuardrailMethodKeyword, Reason: "in_domain_keyword"}
	}
	if !hasChunks || g.classifier == nil {
		return keywordDecision(text, GuardrailMethodKeyword)
	}

	callCtx := ctx
	if g.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, g.cfg.Timeout)
		defer cancel()
	}
	labels := append([]string{inDomainLabel}, offTopicLabels...)
	scores, err := g.classifier.ClassifyZeroShot(callCtx, text, labels)
	if err != nil {
		g.logger.Warn("stage_degraded", "stage", "guardrail", "reason", "classifier_failed", "error", err)
		return keywordDecision(text, GuardrailMethodFallback)
	}
	return semanticDecision(scores, g.cfg.Threshold)
}

// semanticDecision allows the query when the in-domain label wins or clears the threshold.
func semanticDecision(scores map[string]float64, threshold float64) domain.GuardrailDecision {
	inDomain := scores[inDomainLabel]
	bestOther, bestLabel := 0.0, ""
	for _, label := range offTopicLabels {
		if s := scores[label]; s > bestOther {
			bestOther, bestLabel = s, label
		}
	}
	if inDomain >= threshold || inDomain >= bestOther {
		return domain.GuardrailDecision{Allowed: true, Confidence: clamp01(inDomain), Method: GuardrailMethodSemantic, Reason: "in_domain"}
	}
	return domain.GuardrailDecision{
		Allowed:    false,
		Confidence: clamp01(bestOther),
		Method:     GuardrailMethodSemantic,
		Reason:     "off_topic: " + bestLabel,
	}
}

// keywordDecision rejects only on an explicit off-topic pattern; anything else
// is borderline and allowed.
func keywordDecision(text, method string) domain.GuardrailDecision {
	if m := offTopicPattern.FindString(text); m != "" {
		return domain.GuardrailDecision{
			Allowed:    false,
			Confidence: 0.9,
			Method:     method,
			Reason:     "off_topic: " + strings.ToLower(m),
		}
	}
	return domain.GuardrailDecision{Allowed: true, Confidence: 0.5, Method: method, Reason: "borderline"}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
