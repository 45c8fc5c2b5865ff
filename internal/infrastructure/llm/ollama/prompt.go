package ollama

import "strings"

const maxPremiseChars = 3000

func buildEntailmentPrompt(premise, hypothesis string) string {
	snippet := strings.TrimSpace(premise)
	if runes := []rune(snippet); len(runes) > maxPremiseChars {
		snippet = string(runes[:maxPremiseChars])
	}

	return `You are a natural language inference judge.
Decide whether the PREMISE entails, contradicts or is neutral towards the HYPOTHESIS.
Return strict JSON object with keys:
entailment (number from 0 to 1), neutral (number from 0 to 1), contradiction (number from 0 to 1).
The three numbers must sum to 1. No markdown, no extra keys.

PREMISE:
` + snippet + `

HYPOTHESIS:
` + strings.TrimSpace(hypothesis)
}
