package domain

type ClaimStatus string

const (
	ClaimSupported    ClaimStatus = "supported"
	ClaimContradicted ClaimStatus = "contradicted"
	ClaimUnsupported  ClaimStatus = "unsupported"
)

type Claim struct {
	Text             string      `json:"text"`
	Status           ClaimStatus `json:"status"`
	Confidence       float64     `json:"confidence"`
	MaxEntailment    float64     `json:"max_entailment"`
	MaxContradiction float64     `json:"max_contradiction"`
	SupportingChunks []int       `json:"supporting_chunks,omitempty"`
}

type VerificationReport struct {
	Claims       []Claim `json:"claims"`
	Supported    int     `json:"supported"`
	Contradicted int     `json:"contradicted"`
	Unsupported  int     `json:"unsupported"`
	Faithfulness float64 `json:"faithfulness"`
	// Skipped is set when the entailment service could not be reached.
	Skipped bool `json:"skipped,omitempty"`
}

// Faithfulness penalizes contradictions at half weight and never drops below zero.
// A draft without checkable claims is fully faithful.
func Faithfulness(supported, contradicted, total int) float64 {
	if total <= 0 {
		return 1.0
	}
	score := (float64(supported) - 0.5*float64(contradicted)) / float64(total)
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}

// NewVerificationReport counts statuses and computes faithfulness.
func NewVerificationReport(claims []Claim) VerificationReport {
	report := VerificationReport{Claims: claims}
	for _, claim := range claims {
		switch claim.Status {
		case ClaimSupported:
			report.Supported++
		case ClaimContradicted:
			report.Contradicted++
		default:
			report.Unsupported++
		}
	}
	report.Faithfulness = Faithfulness(report.Supported, report.Contradicted, len(claims))
	return report
}
