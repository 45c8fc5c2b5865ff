package usecase

import (
	"fmt"

	"github.com/kirillkom/candidate-rag/internal/core/domain"
)

const (
	sendThreshold       = 0.8
	disclaimerThreshold = 0.5
	regenerateThreshold = 0.3
)

type DecisionPolicy struct {
	NLIThreshold      float64
	FaithfulnessFloor float64
	MaxAttempts       int
}

func (p DecisionPolicy) normalize() DecisionPolicy {
	if p.NLIThreshold <= 0 || p.NLIThreshold >= 1 {
		p.NLIThreshold = 0.7
	}
	if p.FaithfulnessFloor < 0 || p.FaithfulnessFloor > 1 {
		p.FaithfulnessFloor = 0.5
	}
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 2
	}
	return p
}

// Decide picks the action for one attempt. attempt is 1-based; regenerate is only
// returned while attempt < MaxAttempts. reason is empty for deliverable answers.
func (p DecisionPolicy) Decide(score domain.ConfidenceScore, report domain.VerificationReport, attempt int) (domain.Decision, string) {
	p = p.normalize()
	canRetry := attempt < p.MaxAttempts

	if failure := p.hardFailure(report); failure != "" {
		if canRetry {
			return domain.DecisionRegenerate, failure
		}
		return domain.DecisionDecline, failure
	}

	switch {
	case score.Overall >= sendThreshold:
		return domain.DecisionSend, ""
	case score.Overall >= disclaimerThreshold:
		return domain.DecisionSendWithDisclaimer, ""
	case score.Overall >= regenerateThreshold:
		reason := fmt.Sprintf("low_confidence: %.2f", score.Overall)
		if canRetry {
			return domain.DecisionRegenerate, reason
		}
		return domain.DecisionDecline, reason
	default:
		return domain.DecisionDecline, fmt.Sprintf("very_low_confidence: %.2f", score.Overall)
	}
}

// hardFailure is checked only when claims were actually verified.
func (p DecisionPolicy) hardFailure(report domain.VerificationReport) string {
	if report.Skipped {
		return ""
	}
	for _, claim := range report.Claims {
		if claim.Status == domain.ClaimContradicted && claim.MaxContradiction > p.NLIThreshold {
			return fmt.Sprintf("contradicted_claim: %s", claim.Text)
		}
	}
	if report.Faithfulness < p.FaithfulnessFloor {
		return fmt.Sprintf("low_faithfulness: %.2f", report.Faithfulness)
	}
	return ""
}

// regenerationFeedback lists the claims the next attempt must fix, contradictions first.
func regenerationFeedback(report domain.VerificationReport) []domain.Claim {
	var contradicted, unsupported []domain.Claim
	for _, c := range report.Claims {
		switch c.Status {
		case domain.ClaimContradicted:
			contradicted = append(contradicted, c)
		case domain.ClaimUnsupported:
			unsupported = append(unsupported, c)
		}
	}
	return append(contradicted, unsupported...)
}
