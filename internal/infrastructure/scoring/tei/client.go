package tei

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/kirillkom/candidate-rag/internal/core/domain"
	"github.com/kirillkom/candidate-rag/internal/infrastructure/resilience"
)

// Client talks to text-embeddings-inference style servers: a cross-encoder
// behind /rerank and a sequence-pair NLI classifier behind /predict.
type Client struct {
	reranker   resilience.Endpoint
	classifier resilience.Endpoint
	exec       *resilience.Executor
}

func New(rerankURL, nliURL string, exec *resilience.Executor) *Client {
	return &Client{
		reranker:   resilience.NewEndpoint("tei", rerankURL, 30*time.Second),
		classifier: resilience.NewEndpoint("tei", nliURL, 30*time.Second),
		exec:       exec,
	}
}

type rerankRequest struct {
	Query     string   `json:"query"`
	Texts     []string `json:"texts"`
	RawScores bool     `json:"raw_scores"`
	Truncate  bool     `json:"truncate"`
}

type rerankHit struct {
	Index int     `json:"index"`
	Score float64 `json:"score"`
}

// ScorePairs groups pairs by query so that each distinct query costs one call.
func (c *Client) ScorePairs(ctx context.Context, pairs []domain.TextPair) ([]float64, error) {
	scores := make([]float64, len(pairs))
	if len(pairs) == 0 {
		return scores, nil
	}

	groups := make(map[string][]int)
	order := make([]string, 0, 1)
	for i, pair := range pairs {
		if _, ok := groups[pair.Query]; !ok {
			order = append(order, pair.Query)
		}
		groups[pair.Query] = append(groups[pair.Query], i)
	}

	for _, query := range order {
		indices := groups[query]
		texts := make([]string, 0, len(indices))
		for _, idx := range indices {
			texts = append(texts, pairs[idx].Text)
		}

		var hits []rerankHit
		err := c.exec.Execute(ctx, "tei.rerank", func(callCtx context.Context) error {
			return c.reranker.Post(callCtx, "/rerank", rerankRequest{Query: query, Texts: texts, Truncate: true}, &hits, "rerank")
		}, resilience.ClassifyHTTPError)
		if err != nil {
			return nil, resilience.WrapUnavailable("tei.rerank", err, nil)
		}
		if len(hits) != len(texts) {
			return nil, fmt.Errorf("tei rerank: expected %d scores, got %d", len(texts), len(hits))
		}
		for _, hit := range hits {
			if hit.Index < 0 || hit.Index >= len(indices) {
				return nil, fmt.Errorf("tei rerank: index %d out of range", hit.Index)
			}
			scores[indices[hit.Index]] = hit.Score
		}
	}
	return scores, nil
}

type predictRequest struct {
	Inputs   [][2]string `json:"inputs"`
	Truncate bool        `json:"truncate"`
}

type labelScore struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

func (c *Client) Classify(ctx context.Context, premise, hypothesis string) (domain.EntailmentScores, error) {
	out, err := c.classifyBatch(ctx, [][2]string{{premise, hypothesis}})
	if err != nil {
		return domain.EntailmentScores{}, err
	}
	return out[0], nil
}

func (c *Client) classifyBatch(ctx context.Context, inputs [][2]string) ([]domain.EntailmentScores, error) {
	var raw [][]labelScore
	err := c.exec.Execute(ctx, "tei.nli", func(callCtx context.Context) error {
		return c.classifier.Post(callCtx, "/predict", predictRequest{Inputs: inputs, Truncate: true}, &raw, "predict")
	}, resilience.ClassifyHTTPError)
	if err != nil {
		return nil, resilience.WrapUnavailable("tei.nli", err, nil)
	}
	if len(raw) != len(inputs) {
		return nil, fmt.Errorf("tei predict: expected %d results, got %d", len(inputs), len(raw))
	}

	out := make([]domain.EntailmentScores, 0, len(raw))
	for _, labels := range raw {
		out = append(out, toEntailmentScores(labels))
	}
	return out, nil
}

func toEntailmentScores(labels []labelScore) domain.EntailmentScores {
	var scores domain.EntailmentScores
	for _, item := range labels {
		label := strings.ToLower(strings.TrimSpace(item.Label))
		switch {
		case strings.HasPrefix(label, "entail"):
			scores.Entailment = item.Score
		case strings.HasPrefix(label, "contra"):
			scores.Contradiction = item.Score
		case strings.HasPrefix(label, "neutral"):
			scores.Neutral = item.Score
		}
	}
	return scores
}

// ZeroShot turns the NLI model into a zero-shot classifier by testing one
// hypothesis per label against the text.
type ZeroShot struct {
	client   *Client
	template string
}

func NewZeroShot(client *Client) *ZeroShot {
	return &ZeroShot{client: client, template: "This question is about %s."}
}

func (z *ZeroShot) ClassifyZeroShot(ctx context.Context, text string, labels []string) (map[string]float64, error) {
	if len(labels) == 0 {
		return map[string]float64{}, nil
	}
	inputs := make([][2]string, 0, len(labels))
	for _, label := range labels {
		inputs = append(inputs, [2]string{text, fmt.Sprintf(z.template, label)})
	}
	scores, err := z.client.classifyBatch(ctx, inputs)
	if err != nil {
		return nil, err
	}

	total := 0.0
	for _, s := range scores {
		total += s.Entailment
	}
	out := make(map[string]float64, len(labels))
	for i, label := range labels {
		if total <= 0 {
			out[label] = 1.0 / float64(len(labels))
			continue
		}
		out[label] = scores[i].Entailment / total
	}
	return out, nil
}
