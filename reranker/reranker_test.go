package reranker

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/w-h-a/grounded/retriever"
	"github.com/w-h-a/grounded/vectorstore"
)

type tableScorer map[string]float64

func (s tableScorer) Score(ctx context.Context, query string, c retriever.Result) (float64, error) {
	v, ok := s[c.Chunk.Id]
	if !ok {
		return 0, errors.New("no score")
	}
	return v, nil
}

func results(ids ...string) []retriever.Result {
	out := make([]retriever.Result, 0, len(ids))
	for i, id := range ids {
		out = append(out, retriever.Result{
			Chunk:      vectorstore.KnowledgeChunk{Id: id},
			Similarity: 0.9 - float64(i)*0.1,
			Rank:       i + 1,
		})
	}
	return out
}

func ids(rs []Result) []string {
	out := make([]string, 0, len(rs))
	for _, r := range rs {
		out = append(out, r.Chunk.Id)
	}
	return out
}

func TestRerank_Reorders(t *testing.T) {
	r := New(tableScorer{"a": 0.2, "b": 0.9, "c": 0.5})

	got, err := r.Rerank(context.Background(), "q", results("a", "b", "c"))
	require.NoError(t, err)

	assert.Equal(t, []string{"b", "c", "a"}, ids(got))
	for i, res := range got {
		assert.Equal(t, i+1, res.Rank)
	}
	assert.Equal(t, 2, got[0].OriginalRank)
}

func TestRerank_TiesAreDeterministic(t *testing.T) {
	r := New(tableScorer{"a": 0.5, "b": 0.5, "c": 0.5})

	in := results("a", "b", "c")
	first, err := r.Rerank(context.Background(), "q", in)
	require.NoError(t, err)
	second, err := r.Rerank(context.Background(), "q", in)
	require.NoError(t, err)

	assert.Equal(t, []string{"a", "b", "c"}, ids(first))
	assert.Equal(t, ids(first), ids(second))
}

func TestRerank_TiesOnRankUseChunkId(t *testing.T) {
	r := New(tableScorer{"x": 0.5, "y": 0.5})

	in := []retriever.Result{
		{Chunk: vectorstore.KnowledgeChunk{Id: "y"}, Rank: 1},
		{Chunk: vectorstore.KnowledgeChunk{Id: "x"}, Rank: 1},
	}

	got, err := r.Rerank(context.Background(), "q", in)
	require.NoError(t, err)
	assert.Equal(t, []string{"x", "y"}, ids(got))
}

func TestRerank_PermutationTruncatedToTopN(t *testing.T) {
	r := New(tableScorer{"a": 0.1, "b": 0.2, "c": 0.3, "d": 0.4}, WithTopN(2))

	got, err := r.Rerank(context.Background(), "q", results("a", "b", "c", "d"))
	require.NoError(t, err)

	assert.Equal(t, []string{"d", "c"}, ids(got))
}

func TestRerank_ScorerFailureUsesSimilarity(t *testing.T) {
	r := New(tableScorer{"b": 0.1})

	got, err := r.Rerank(context.Background(), "q", results("a", "b"))
	require.NoError(t, err)

	assert.Equal(t, []string{"a", "b"}, ids(got))
	assert.InDelta(t, 0.9, got[0].Relevance, 1e-9)
}

func TestRerank_Empty(t *testing.T) {
	got, err := New(tableScorer{}).Rerank(context.Background(), "q", nil)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestRerank_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(tableScorer{"a": 1}).Rerank(ctx, "q", results("a"))
	assert.ErrorIs(t, err, context.Canceled)
}
