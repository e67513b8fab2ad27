package cached

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/w-h-a/grounded/cache"
	"github.com/w-h-a/grounded/cache/memory"
	"github.com/w-h-a/grounded/embedder"
	"github.com/w-h-a/grounded/errs"
)

type countingEmbedder struct {
	calls int
	err   error
}

func (e *countingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	e.calls++
	if e.err != nil {
		return nil, e.err
	}
	return []float32{float32(len(text)), 0.5, -1.25}, nil
}

func TestEmbedder_MemoisesVectors(t *testing.T) {
	ctx := context.Background()
	inner := &countingEmbedder{}
	e := NewEmbedder(
		embedder.WithModel("test"),
		embedder.WithEmbedder(inner),
		embedder.WithCache(memory.NewCache(), time.Hour),
	)

	first, err := e.Embed(ctx, "bitcoin")
	require.NoError(t, err)

	second, err := e.Embed(ctx, "bitcoin")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, []float32{7, 0.5, -1.25}, second)
	assert.Equal(t, 1, inner.calls)

	_, err = e.Embed(ctx, "ethereum")
	require.NoError(t, err)
	assert.Equal(t, 2, inner.calls)
}

func TestEmbedder_PropagatesFailure(t *testing.T) {
	inner := &countingEmbedder{err: errors.New("boom")}
	e := NewEmbedder(
		embedder.WithEmbedder(inner),
		embedder.WithCache(memory.NewCache(), time.Hour),
	)

	_, err := e.Embed(context.Background(), "bitcoin")
	assert.Error(t, err)
}

func TestEmbedder_CorruptPayload(t *testing.T) {
	ctx := context.Background()
	c := memory.NewCache()
	e := NewEmbedder(
		embedder.WithModel("test"),
		embedder.WithEmbedder(&countingEmbedder{}),
		embedder.WithCache(c, time.Hour),
	)

	key := cache.Key("embed:test", map[string]string{"text": "bitcoin"})
	require.NoError(t, c.Set(ctx, key, []byte{1, 2, 3}, time.Hour))

	_, err := e.Embed(ctx, "bitcoin")
	assert.ErrorIs(t, err, errs.ErrCacheCorruption)
}
