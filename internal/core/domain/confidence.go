package domain

type ConfidenceScore struct {
	RetrievalRelevance   float64 `json:"retrieval_relevance"`
	RetrievalCoverage    float64 `json:"retrieval_coverage"`
	ResponseCompleteness float64 `json:"response_completeness"`
	Faithfulness         float64 `json:"faithfulness"`
	InternalConsistency  float64 `json:"internal_consistency"`
	Overall              float64 `json:"overall"`
}

type Decision string

const (
	DecisionSend               Decision = "send"
	DecisionSendWithDisclaimer Decision = "send_with_disclaimer"
	DecisionRegenerate         Decision = "regenerate"
	DecisionDecline            Decision = "decline"
)

// Strictness orders decisions from most permissive to most restrictive.
func (d Decision) Strictness() int {
	switch d {
	case DecisionSend:
		return 0
	case DecisionSendWithDisclaimer:
		return 1
	case DecisionRegenerate:
		return 2
	default:
		return 3
	}
}

func (d Decision) Delivers() bool {
	return d == DecisionSend || d == DecisionSendWithDisclaimer
}
