package qdrant

import (
	"cmp"
	"hash/fnv"
	"math"
	"slices"
	"strings"
	"unicode"

	"github.com/kirillkom/candidate-rag/internal/core/domain"
)

type sparseVector struct {
	Indices []uint32  `json:"indices"`
	Values  []float32 `json:"values"`
}

// Saturation constant of the BM25 term-frequency curve. The collection is
// created with the idf modifier, so only the tf part is computed here.
const bm25K1 = 1.2

const (
	candidateNameBoost = 1.5
	skillsSectionBoost = 1.25
	maxSparseTerms     = 256
)

// termAliases folds common spellings of the same skill so that a question
// about "k8s" matches a résumé that says "Kubernetes".
var termAliases = map[string]string{
	"k8s":      "kubernetes",
	"golang":   "go",
	"js":       "javascript",
	"ts":       "typescript",
	"postgres": "postgresql",
	"py":       "python",
}

// queryNoise holds question words that carry no signal against résumé text.
var queryNoise = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "any": {}, "are": {}, "candidate": {}, "candidates": {},
	"does": {}, "for": {}, "has": {}, "have": {}, "in": {}, "is": {}, "of": {}, "or": {},
	"the": {}, "to": {}, "what": {}, "which": {}, "who": {}, "with": {},
}

type termWeights map[uint32]float64

func (tw termWeights) add(tokens []string, weight float64, skip map[string]struct{}) {
	for _, token := range tokens {
		if _, noisy := skip[token]; noisy {
			continue
		}
		tw[hashToken(token)] += weight
	}
}

// vector keeps the heaviest maxSparseTerms terms and returns them in index
// order, as qdrant expects.
func (tw termWeights) vector() sparseVector {
	if len(tw) == 0 {
		return sparseVector{}
	}
	indices := make([]uint32, 0, len(tw))
	for idx := range tw {
		indices = append(indices, idx)
	}
	if len(indices) > maxSparseTerms {
		slices.SortFunc(indices, func(a, b uint32) int {
			if c := cmp.Compare(tw[b], tw[a]); c != 0 {
				return c
			}
			return cmp.Compare(a, b)
		})
		indices = indices[:maxSparseTerms]
	}
	slices.Sort(indices)

	values := make([]float32, len(indices))
	for i, idx := range indices {
		tf := tw[idx]
		weight := tf * (bm25K1 + 1) / (tf + bm25K1)
		if math.IsNaN(weight) || math.IsInf(weight, 0) {
			weight = 0
		}
		values[i] = float32(weight)
	}
	return sparseVector{Indices: indices, Values: values}
}

// encodeChunk weights the candidate's name and the skills section up so that
// name lookups and skill questions rank the owning résumé first.
func encodeChunk(chunk domain.Chunk) sparseVector {
	tw := make(termWeights, 64)
	textWeight := 1.0
	if chunk.SectionType() == "skills" {
		textWeight = skillsSectionBoost
	}
	tw.add(tokenizeResumeText(chunk.Text), textWeight, nil)
	tw.add(tokenizeResumeText(chunk.CandidateName()), candidateNameBoost, nil)
	return tw.vector()
}

func encodeSparseQuery(query string) sparseVector {
	tw := make(termWeights, 16)
	tw.add(tokenizeResumeText(query), 1, queryNoise)
	return tw.vector()
}

func hashToken(token string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(token))
	if sum := h.Sum32(); sum != 0 {
		return sum
	}
	return 1
}

// tokenizeResumeText lowercases and splits on anything that is not a letter,
// digit, '+' or '#', so "C++" and "C#" survive. Known aliases are folded.
func tokenizeResumeText(s string) []string {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '+' && r != '#'
	})
	for i, field := range fields {
		if canonical, ok := termAliases[field]; ok {
			fields[i] = canonical
		}
	}
	return fields
}
