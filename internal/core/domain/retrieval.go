package domain

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Chunk is an indexed excerpt of a résumé. Chunks are produced by the indexer and read-only here.
type Chunk struct {
	ID         string         `json:"id"`
	DocumentID string         `json:"document_id"`
	Text       string         `json:"text"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

const (
	MetaCandidateName   = "candidate_name"
	MetaSectionType     = "section_type"
	MetaSkills          = "skills"
	MetaYearsExperience = "years_experience"
	MetaCurrentRole     = "current_role"
	MetaEducation       = "education"
	MetaSessionID       = "session_id"
)

// MetadataFilter restricts search to chunks whose metadata values equal the
// given strings, compared case-insensitively.
type MetadataFilter map[string]string

func (f MetadataFilter) Matches(c Chunk) bool {
	for key, want := range f {
		if !strings.EqualFold(c.MetaString(key), strings.TrimSpace(want)) {
			return false
		}
	}
	return true
}

// Keys returns the filter keys in sorted order.
func (f MetadataFilter) Keys() []string {
	keys := make([]string, 0, len(f))
	for key := range f {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func (c Chunk) CandidateName() string {
	return c.MetaString(MetaCandidateName)
}

func (c Chunk) SectionType() string {
	return c.MetaString(MetaSectionType)
}

func (c Chunk) MetaString(key string) string {
	if c.Metadata == nil {
		return ""
	}
	switch v := c.Metadata[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case nil:
		return ""
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}

// MetaStrings reads a list value. Comma separated strings are accepted as well.
func (c Chunk) MetaStrings(key string) []string {
	if c.Metadata == nil {
		return nil
	}
	var raw []string
	switch v := c.Metadata[key].(type) {
	case []string:
		raw = v
	case []any:
		for _, item := range v {
			raw = append(raw, fmt.Sprint(item))
		}
	case string:
		raw = strings.Split(v, ",")
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// MetaFloat reads a numeric value. ok is false when the key is absent or not numeric.
func (c Chunk) MetaFloat(key string) (float64, bool) {
	if c.Metadata == nil {
		return 0, false
	}
	switch v := c.Metadata[key].(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		return f, err == nil
	}
	return 0, false
}

// ScoredChunk is a single index hit with the index-native score.
type ScoredChunk struct {
	Chunk Chunk   `json:"chunk"`
	Score float64 `json:"score"`
}

type RetrievalCandidate struct {
	Chunk        Chunk   `json:"chunk"`
	LexicalScore float64 `json:"lexical_score"`
	LexicalRank  int     `json:"lexical_rank,omitempty"`
	VectorScore  float64 `json:"vector_score"`
	VectorRank   int     `json:"vector_rank,omitempty"`
	FusedScore   float64 `json:"fused_score"`
	FusedRank    int     `json:"fused_rank"`
}

func (c RetrievalCandidate) HasVector() bool {
	return c.VectorRank > 0
}

func (c RetrievalCandidate) HasLexical() bool {
	return c.LexicalRank > 0
}

type RerankedCandidate struct {
	RetrievalCandidate
	RerankScore float64 `json:"rerank_score"`
	Position    int     `json:"position"`
}

// TextPair is one (query, passage) input of a pairwise scorer.
type TextPair struct {
	Query string
	Text  string
}

// EntailmentScores are NLI class probabilities for a premise/hypothesis pair.
type EntailmentScores struct {
	Entailment    float64 `json:"entailment"`
	Neutral       float64 `json:"neutral"`
	Contradiction float64 `json:"contradiction"`
}

func ChunksOf(candidates []RerankedCandidate) []Chunk {
	out := make([]Chunk, 0, len(candidates))
	for _, c := range candidates {
		out = append(out, c.Chunk)
	}
	return out
}
