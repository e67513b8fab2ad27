package reranker

import (
	"context"
	"log/slog"
	"sort"

	"github.com/w-h-a/grounded/retriever"
	"github.com/w-h-a/grounded/vectorstore"
)

// Scorer rates how well one candidate answers the query, in [0, 1].
type Scorer interface {
	Score(ctx context.Context, query string, candidate retriever.Result) (float64, error)
}

type Result struct {
	Chunk        vectorstore.KnowledgeChunk
	Similarity   float64
	Relevance    float64
	Rank         int
	OriginalRank int
}

type Reranker struct {
	options Options
	scorer  Scorer
}

// Rerank rescores candidates and returns at most TopN of them, best first.
// Ties fall back to the original rank, then the chunk id.
func (r *Reranker) Rerank(ctx context.Context, query string, candidates []retriever.Result) ([]Result, error) {
	results := make([]Result, 0, len(candidates))

	for i, c := range candidates {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		relevance, err := r.scorer.Score(ctx, query, c)
		if err != nil {
			slog.WarnContext(ctx, "relevance scoring failed, using similarity", "chunk", c.Chunk.Id, "error", err)
			relevance = clamp(c.Similarity)
		}

		original := c.Rank
		if original == 0 {
			original = i + 1
		}

		results = append(results, Result{
			Chunk:        c.Chunk,
			Similarity:   c.Similarity,
			Relevance:    relevance,
			OriginalRank: original,
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if a.Relevance != b.Relevance {
			return a.Relevance > b.Relevance
		}
		if a.OriginalRank != b.OriginalRank {
			return a.OriginalRank < b.OriginalRank
		}
		return a.Chunk.Id < b.Chunk.Id
	})

	if r.options.TopN > 0 && len(results) > r.options.TopN {
		results = results[:r.options.TopN]
	}

	for i := range results {
		results[i].Rank = i + 1
	}

	return results, nil
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func New(scorer Scorer, opts ...Option) *Reranker {
	return &Reranker{
		options: NewOptions(opts...),
		scorer:  scorer,
	}
}
