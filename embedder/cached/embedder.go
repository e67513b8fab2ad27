package cached

import (
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/w-h-a/grounded/cache"
	"github.com/w-h-a/grounded/embedder"
	"github.com/w-h-a/grounded/errs"
)

type cachedEmbedder struct {
	options embedder.Options
	next    embedder.Embedder
	cache   cache.Cache
	ttl     time.Duration
}

func (e *cachedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	key := cache.Key("embed:"+e.options.Model, map[string]string{"text": text})

	raw, ok, err := e.cache.Get(ctx, key)
	if err != nil {
		slog.WarnContext(ctx, "embedding cache read failed", "error", err)
	}

	if ok {
		return decode(raw)
	}

	vec, err := e.next.Embed(ctx, text)
	if err != nil {
		return nil, err
	}

	if len(vec) == 0 {
		return nil, fmt.Errorf("empty embedding for %q", text)
	}

	if err := e.cache.Set(ctx, key, encode(vec), e.ttl); err != nil {
		slog.WarnContext(ctx, "embedding cache write failed", "error", err)
	}

	return vec, nil
}

func encode(vec []float32) []byte {
	buf := make([]byte, 4*len(vec))
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(v))
	}
	return buf
}

func decode(buf []byte) ([]float32, error) {
	if len(buf) == 0 || len(buf)%4 != 0 {
		return nil, fmt.Errorf("%w: embedding payload of %d bytes", errs.ErrCacheCorruption, len(buf))
	}

	vec := make([]float32, len(buf)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[4*i:]))
	}

	return vec, nil
}

func NewEmbedder(opts ...embedder.Option) embedder.Embedder {
	options := embedder.NewOptions(opts...)

	e := &cachedEmbedder{
		options: options,
	}

	next, ok := embedder.EmbedderFrom(options.Context)
	if !ok {
		panic("cached embedder requires an embedder to wrap")
	}

	c, ttl, ok := embedder.CacheFrom(options.Context)
	if !ok {
		panic("cached embedder requires a cache")
	}

	e.next = next
	e.cache = c
	e.ttl = ttl

	return e
}
