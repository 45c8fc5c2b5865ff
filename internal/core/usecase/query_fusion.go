package usecase

import (
	"sort"

	"github.com/kirillkom/candidate-rag/internal/core/domain"
)

// absentRank is the rank assumed for a chunk missing from one of the lists.
const absentRank = 1000

type FusionConfig struct {
	RRFK          int
	LexicalWeight float64
	VectorWeight  float64
}

func (c FusionConfig) normalize() FusionConfig {
	if c.RRFK <= 0 {
		c.RRFK = 60
	}
	if c.LexicalWeight < 0 {
		c.LexicalWeight = 0
	}
	if c.VectorWeight < 0 {
		c.VectorWeight = 0
	}
	if c.LexicalWeight == 0 && c.VectorWeight == 0 {
		c.LexicalWeight, c.VectorWeight = 0.4, 0.6
	}
	return c
}

// fuseWeightedRRF merges both rankings. Ranks are 1-based; a chunk listed twice
// in one list keeps its best position.
func fuseWeightedRRF(lexical, vector []domain.ScoredChunk, cfg FusionConfig, topK int) []domain.RetrievalCandidate {
	cfg = cfg.normalize()

	acc := make(map[string]*domain.RetrievalCandidate, len(lexical)+len(vector))
	order := make([]string, 0, len(lexical)+len(vector))
	get := func(chunk domain.Chunk) *domain.RetrievalCandidate {
		key := retrievalChunkKey(chunk)
		c, ok := acc[key]
		if !ok {
			c = &domain.RetrievalCandidate{Chunk: chunk}
			acc[key] = c
			order = append(order, key)
		}
		c.Chunk = preferRicherChunk(c.Chunk, chunk)
		return c
	}

	for i, hit := range lexical {
		c := get(hit.Chunk)
		if c.LexicalRank == 0 {
			c.LexicalRank = i + 1
			c.LexicalScore = hit.Score
		}
	}
	for i, hit := range vector {
		c := get(hit.Chunk)
		if c.VectorRank == 0 {
			c.VectorRank = i + 1
			c.VectorScore = hit.Score
		}
	}

	out := make([]domain.RetrievalCandidate, 0, len(acc))
	for _, key := range order {
		c := acc[key]
		c.FusedScore = cfg.LexicalWeight/float64(cfg.RRFK+rankOrAbsent(c.LexicalRank)) +
			cfg.VectorWeight/float64(cfg.RRFK+rankOrAbsent(c.VectorRank))
		out = append(out, *c)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].FusedScore != out[j].FusedScore {
			return out[i].FusedScore > out[j].FusedScore
		}
		bi, bj := bestRank(out[i]), bestRank(out[j])
		if bi != bj {
			return bi < bj
		}
		return out[i].Chunk.ID < out[j].Chunk.ID
	})

	out = trimCandidates(out, topK)
	for i := range out {
		out[i].FusedRank = i + 1
	}
	return out
}

func rankOrAbsent(rank int) int {
	if rank <= 0 {
		return absentRank
	}
	return rank
}

func bestRank(c domain.RetrievalCandidate) int {
	return min(rankOrAbsent(c.LexicalRank), rankOrAbsent(c.VectorRank))
}

func trimCandidates(candidates []domain.RetrievalCandidate, limit int) []domain.RetrievalCandidate {
	if limit <= 0 || len(candidates) <= limit {
		return candidates
	}
	return candidates[:limit]
}

func retrievalChunkKey(chunk domain.Chunk) string {
	if chunk.ID != "" {
		return chunk.ID
	}
	return chunk.DocumentID + "|" + chunk.Text
}

func preferRicherChunk(current, candidate domain.Chunk) domain.Chunk {
	if current.Text == "" && candidate.Text != "" {
		current.Text = candidate.Text
	}
	if current.DocumentID == "" && candidate.DocumentID != "" {
		current.DocumentID = candidate.DocumentID
	}
	if len(current.Metadata) < len(candidate.Metadata) {
		current.Metadata = candidate.Metadata
	}
	return current
}
