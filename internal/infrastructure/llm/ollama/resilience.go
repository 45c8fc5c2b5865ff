package ollama

import "github.com/kirillkom/candidate-rag/internal/infrastructure/resilience"

// classifyOllamaError retries truncated replies on top of the usual HTTP
// rules; ollama drops the stream when it swaps models under memory pressure.
func classifyOllamaError(err error) resilience.ErrorClassification {
	if resilience.IsDecodeError(err) {
		return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
	}
	return resilience.ClassifyHTTPError(err)
}

func wrapUnavailable(operation string, err error) error {
	return resilience.WrapUnavailable(operation, err, classifyOllamaError)
}
