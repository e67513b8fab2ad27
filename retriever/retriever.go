package retriever

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/cenkalti/backoff/v4"
	"github.com/w-h-a/grounded/errs"
	"github.com/w-h-a/grounded/vectorstore"
)

type Result struct {
	Chunk      vectorstore.KnowledgeChunk
	Similarity float64
	Rank       int
}

// Retriever turns a query embedding into thresholded knowledge-base
// candidates.
type Retriever struct {
	options Options
	store   vectorstore.VectorStore
}

// Retrieve returns at most k results with similarity >= minSimilarity,
// best first. It never pads with weaker matches.
func (r *Retriever) Retrieve(ctx context.Context, embedding []float32, k int, minSimilarity float64) ([]Result, error) {
	if k <= 0 {
		return nil, nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.options.Initial
	b.MaxInterval = r.options.Max
	b.MaxElapsedTime = 0

	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(r.options.MaxRetries)), ctx)

	candidates, err := backoff.RetryWithData(func() ([]vectorstore.Candidate, error) {
		cs, err := r.store.Search(ctx, embedding, k)
		if err != nil {
			if errs.IsPermanent(err) {
				return nil, backoff.Permanent(err)
			}
			slog.WarnContext(ctx, "vector search failed, retrying", "error", err)
			return nil, err
		}
		return cs, nil
	}, policy)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errs.ErrRetrievalUnavailable, err)
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Similarity != candidates[j].Similarity {
			return candidates[i].Similarity > candidates[j].Similarity
		}
		return candidates[i].Chunk.Id < candidates[j].Chunk.Id
	})

	results := make([]Result, 0, k)
	for _, c := range candidates {
		if c.Similarity < minSimilarity {
			break
		}
		if len(results) == k {
			break
		}
		results = append(results, Result{
			Chunk:      c.Chunk,
			Similarity: c.Similarity,
			Rank:       len(results) + 1,
		})
	}

	return results, nil
}

func New(store vectorstore.VectorStore, opts ...Option) *Retriever {
	return &Retriever{
		options: NewOptions(opts...),
		store:   store,
	}
}
