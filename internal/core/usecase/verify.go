package usecase

import (
	"context"
	"log/slog"
	"regexp"
	"strings"
	"sync/atomic"
	"time"

	"github.com/sourcegraph/conc/pool"

	"github.com/kirillkom/candidate-rag/internal/core/domain"
	"github.com/kirillkom/candidate-rag/internal/core/output"
	"github.com/kirillkom/candidate-rag/internal/core/ports"
)

// UnknownFaithfulness is reported when claims could not be checked.
const UnknownFaithfulness = 0.5

type VerifyConfig struct {
	Threshold float64
	MaxClaims int
	Workers   int
	Timeout   time.Duration
}

type ClaimVerifier struct {
	nli    ports.EntailmentClassifier
	cfg    VerifyConfig
	logger *slog.Logger
}

func NewClaimVerifier(nli ports.EntailmentClassifier, cfg VerifyConfig, logger *slog.Logger) *ClaimVerifier {
	if cfg.Threshold <= 0 || cfg.Threshold >= 1 {
		cfg.Threshold = 0.7
	}
	if cfg.MaxClaims <= 0 {
		cfg.MaxClaims = 20
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ClaimVerifier{nli: nli, cfg: cfg, logger: logger}
}

func (v *ClaimVerifier) Threshold() float64 {
	return v.cfg.Threshold
}

type claimOutcome struct {
	claim     domain.Claim
	succeeded int
}

// Verify checks every claim of the draft against every chunk. When the entailment
// service answers none of the calls the report is marked Skipped.
func (v *ClaimVerifier) Verify(ctx context.Context, draft string, chunks []domain.Chunk) domain.VerificationReport {
	texts := extractClaims(draft, v.cfg.MaxClaims)
	if len(texts) == 0 {
		return domain.NewVerificationReport(nil)
	}
	if v.nli == nil || len(chunks) == 0 {
		return skippedReport(texts)
	}

	outcomes := make([]claimOutcome, len(texts))
	var failures atomic.Int64
	p := pool.New().WithMaxGoroutines(v.cfg.Workers)
	for i, text := range texts {
		p.Go(func() {
			outcomes[i] = v.verifyClaim(ctx, text, chunks, &failures)
		})
	}
	p.Wait()

	claims := make([]domain.Claim, len(outcomes))
	succeeded := 0
	for i, o := range outcomes {
		claims[i] = o.claim
		succeeded += o.succeeded
	}
	if succeeded == 0 {
		v.logger.Warn("stage_degraded", "stage", "verification", "reason", "nli_unavailable", "failed_calls", failures.Load())
		return skippedReport(texts)
	}
	if n := failures.Load(); n > 0 {
		v.logger.Warn("verification_partial", "failed_calls", n, "claims", len(texts))
	}
	return domain.NewVerificationReport(claims)
}

func (v *ClaimVerifier) verifyClaim(ctx context.Context, text string, chunks []domain.Chunk, failures *atomic.Int64) claimOutcome {
	claim := domain.Claim{Text: text}
	out := claimOutcome{}
	for i, chunk := range chunks {
		if ctx.Err() != nil {
			failures.Add(int64(len(chunks) - i))
			break
		}
		scores, err := v.classify(ctx, chunk.Text, text)
		if err != nil {
			failures.Add(1)
			continue
		}
		out.succeeded++
		if scores.Entailment > claim.MaxEntailment {
			claim.MaxEntailment = scores.Entailment
		}
		if scores.Contradiction > claim.MaxContradiction {
			claim.MaxContradiction = scores.Contradiction
		}
		if scores.Entailment > v.cfg.Threshold {
			claim.SupportingChunks = append(claim.SupportingChunks, i)
		}
	}

	switch {
	case claim.MaxEntailment > v.cfg.Threshold:
		claim.Status = domain.ClaimSupported
		claim.Confidence = claim.MaxEntailment
	case claim.MaxContradiction > v.cfg.Threshold:
		claim.Status = domain.ClaimContradicted
		claim.Confidence = claim.MaxContradiction
	default:
		claim.Status = domain.ClaimUnsupported
		claim.Confidence = clamp01(1 - max(claim.MaxEntailment, claim.MaxContradiction))
	}
	out.claim = claim
	return out
}

func (v *ClaimVerifier) classify(ctx context.Context, premise, hypothesis string) (domain.EntailmentScores, error) {
	if v.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, v.cfg.Timeout)
		defer cancel()
	}
	return v.nli.Classify(ctx, premise, hypothesis)
}

func skippedReport(texts []string) domain.VerificationReport {
	claims := make([]domain.Claim, len(texts))
	for i, t := range texts {
		claims[i] = domain.Claim{Text: t, Status: domain.ClaimUnsupported}
	}
	report := domain.NewVerificationReport(claims)
	report.Faithfulness = UnknownFaithfulness
	report.Skipped = true
	return report
}

var (
	citationPattern = regexp.MustCompile(`\s*\[\d+(?:\s*,\s*\d+)*\]`)
	linkPattern     = regexp.MustCompile(`\[([^\]]+)\]\([^)]*\)`)
	bulletPattern   = regexp.MustCompile(`^\s*(?:[-*+]|\d+[.)])\s+`)
	sentenceEnd     = regexp.MustCompile(`([.!?])\s+`)
	hedgePattern    = regexp.MustCompile(`(?i)\b(may|might|could|possibly|perhaps|likely|unclear|not (mentioned|specified|stated|provided|available)|no information|cannot (determine|be determined)|do(es)? not contain|not found in)\b`)
)

// extractClaims splits a markdown draft into checkable sentences. Headings, table
// rows, questions and hedged statements are skipped.
func extractClaims(draft string, limit int) []string {
	var out []string
	seen := make(map[string]struct{})
	inFence := false
	for _, line := range strings.Split(draft, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "```") {
			inFence = !inFence
			continue
		}
		if inFence || trimmed == "" || strings.HasPrefix(trimmed, "#") || strings.HasPrefix(trimmed, "|") || strings.HasPrefix(trimmed, ">") {
			continue
		}
		trimmed = bulletPattern.ReplaceAllString(trimmed, "")
		trimmed = linkPattern.ReplaceAllString(trimmed, "$1")
		trimmed = citationPattern.ReplaceAllString(trimmed, "")
		trimmed = strings.NewReplacer("**", "", "__", "", "`", "", "*", "").Replace(trimmed)
		trimmed = output.StripLabel(trimmed)

		for _, sentence := range splitSentences(trimmed) {
			sentence = strings.Join(strings.Fields(sentence), " ")
			if !isCheckable(sentence) {
				continue
			}
			key := strings.ToLower(sentence)
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			out = append(out, sentence)
			if limit > 0 && len(out) == limit {
				return out
			}
		}
	}
	return out
}

func splitSentences(text string) []string {
	marked := sentenceEnd.ReplaceAllString(text, "$1\n")
	return strings.Split(marked, "\n")
}

func isCheckable(sentence string) bool {
	if sentence == "" || strings.HasSuffix(sentence, "?") || strings.HasSuffix(sentence, ":") {
		return false
	}
	if len(strings.Fields(sentence)) < 3 {
		return false
	}
	return !hedgePattern.MatchString(sentence)
}
