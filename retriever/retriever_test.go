package retriever

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/w-h-a/grounded/errs"
	"github.com/w-h-a/grounded/vectorstore"
	"github.com/w-h-a/grounded/vectorstore/memory"
)

type fakeStore struct {
	candidates []vectorstore.Candidate
	err        error
	calls      int
}

func (f *fakeStore) Search(ctx context.Context, embedding []float32, k int) ([]vectorstore.Candidate, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.candidates, nil
}

func (f *fakeStore) Upsert(ctx context.Context, chunks ...vectorstore.KnowledgeChunk) error {
	return nil
}

func candidate(id string, sim float64) vectorstore.Candidate {
	return vectorstore.Candidate{
		Chunk:      vectorstore.KnowledgeChunk{Id: id, Text: "text " + id},
		Similarity: sim,
	}
}

func TestRetrieve_ThresholdAndOrder(t *testing.T) {
	store := &fakeStore{candidates: []vectorstore.Candidate{
		candidate("c", 0.4),
		candidate("a", 0.9),
		candidate("b", 0.6),
		candidate("d", 0.5),
	}}

	r := New(store)

	results, err := r.Retrieve(context.Background(), []float32{1}, 5, 0.5)
	require.NoError(t, err)
	require.Len(t, results, 3)

	for i, res := range results {
		assert.GreaterOrEqual(t, res.Similarity, 0.5)
		assert.Equal(t, i+1, res.Rank)
		if i > 0 {
			assert.GreaterOrEqual(t, results[i-1].Similarity, res.Similarity)
		}
	}

	assert.Equal(t, "a", results[0].Chunk.Id)
	assert.Equal(t, "d", results[2].Chunk.Id)
}

func TestRetrieve_AtMostK(t *testing.T) {
	store := &fakeStore{}
	for i := 0; i < 10; i++ {
		store.candidates = append(store.candidates, candidate(fmt.Sprintf("c%d", i), 0.9-float64(i)*0.01))
	}

	results, err := New(store).Retrieve(context.Background(), []float32{1}, 3, 0.5)
	require.NoError(t, err)
	assert.Len(t, results, 3)
}

func TestRetrieve_Unavailable(t *testing.T) {
	store := &fakeStore{err: errors.New("connection refused")}

	r := New(store, WithRetry(2, time.Millisecond, time.Millisecond))

	_, err := r.Retrieve(context.Background(), []float32{1}, 5, 0.5)
	require.Error(t, err)
	assert.ErrorIs(t, err, errs.ErrRetrievalUnavailable)
	assert.Equal(t, 3, store.calls)
}

func TestRetrieve_PermanentNotRetried(t *testing.T) {
	store := &fakeStore{err: fmt.Errorf("%w: bad dimension", errs.ErrPermanent)}

	r := New(store, WithRetry(2, time.Millisecond, time.Millisecond))

	_, err := r.Retrieve(context.Background(), []float32{1}, 5, 0.5)
	assert.ErrorIs(t, err, errs.ErrRetrievalUnavailable)
	assert.Equal(t, 1, store.calls)
}

func TestRetrieve_MemoryStore(t *testing.T) {
	store := memory.NewStore()
	require.NoError(t, store.Upsert(context.Background(),
		vectorstore.KnowledgeChunk{Id: "btc", Text: "Bitcoin is a decentralized digital currency.", Embedding: []float32{1, 0}},
		vectorstore.KnowledgeChunk{Id: "eth", Text: "Ethereum runs smart contracts.", Embedding: []float32{0, 1}},
	))

	results, err := New(store).Retrieve(context.Background(), []float32{1, 0.1}, 5, 0.5)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "btc", results[0].Chunk.Id)
}
