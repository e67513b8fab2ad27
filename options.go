package grounded

import (
	"io"
	"time"

	"github.com/w-h-a/grounded/cache"
	"github.com/w-h-a/grounded/embedder"
	"github.com/w-h-a/grounded/entity"
	"github.com/w-h-a/grounded/generator"
	"github.com/w-h-a/grounded/guard"
	"github.com/w-h-a/grounded/marketdata"
	"github.com/w-h-a/grounded/marketdata/budgeted"
	"github.com/w-h-a/grounded/ratelimit"
	"github.com/w-h-a/grounded/reranker"
	"github.com/w-h-a/grounded/vectorstore"
)

type Option func(*Options)

type Options struct {
	Embedder            embedder.Embedder
	Generator           generator.Generator
	VectorStore         vectorstore.VectorStore
	Fetcher             marketdata.Fetcher
	Cache               cache.Cache
	Limiter             ratelimit.Limiter
	SourceId            string
	Scorer              reranker.Scorer
	Entities            *entity.Catalog
	Catalog             marketdata.Catalog
	Retry               budgeted.Retry
	LastKnownTTL        time.Duration
	EmbeddingTTL        time.Duration
	TopK                int
	SimilarityThreshold float64
	MaxContextTokens    int
	WindowSize          int
	SessionTTL          time.Duration
	GuardOptions        []guard.Option
	Clock               func() time.Time
	Closers             []io.Closer
}

func WithEmbedder(e embedder.Embedder) Option {
	return func(o *Options) {
		o.Embedder = e
	}
}

func WithGenerator(g generator.Generator) Option {
	return func(o *Options) {
		o.Generator = g
	}
}

func WithVectorStore(s vectorstore.VectorStore) Option {
	return func(o *Options) {
		o.VectorStore = s
	}
}

// WithFetcher sets the raw market-data client. It is wrapped with the
// cache, the rate budget and retries.
func WithFetcher(f marketdata.Fetcher) Option {
	return func(o *Options) {
		o.Fetcher = f
	}
}

func WithCache(c cache.Cache) Option {
	return func(o *Options) {
		o.Cache = c
	}
}

func WithLimiter(l ratelimit.Limiter, sourceId string) Option {
	return func(o *Options) {
		o.Limiter = l
		o.SourceId = sourceId
	}
}

func WithScorer(s reranker.Scorer) Option {
	return func(o *Options) {
		o.Scorer = s
	}
}

func WithEntities(c *entity.Catalog) Option {
	return func(o *Options) {
		o.Entities = c
	}
}

func WithCatalog(c marketdata.Catalog) Option {
	return func(o *Options) {
		o.Catalog = c
	}
}

func WithRetry(r budgeted.Retry) Option {
	return func(o *Options) {
		o.Retry = r
	}
}

func WithLastKnownTTL(ttl time.Duration) Option {
	return func(o *Options) {
		o.LastKnownTTL = ttl
	}
}

// WithEmbeddingTTL memoises query embeddings in the cache; zero disables it.
func WithEmbeddingTTL(ttl time.Duration) Option {
	return func(o *Options) {
		o.EmbeddingTTL = ttl
	}
}

func WithTopK(k int) Option {
	return func(o *Options) {
		o.TopK = k
	}
}

func WithSimilarityThreshold(v float64) Option {
	return func(o *Options) {
		o.SimilarityThreshold = v
	}
}

func WithMaxContextTokens(n int) Option {
	return func(o *Options) {
		o.MaxContextTokens = n
	}
}

func WithWindowSize(n int) Option {
	return func(o *Options) {
		o.WindowSize = n
	}
}

// WithSessionTTL sets how long an unused session is kept; zero keeps
// sessions until deleted.
func WithSessionTTL(ttl time.Duration) Option {
	return func(o *Options) {
		o.SessionTTL = ttl
	}
}

func WithGuardOptions(opts ...guard.Option) Option {
	return func(o *Options) {
		o.GuardOptions = append(o.GuardOptions, opts...)
	}
}

func WithClock(clock func() time.Time) Option {
	return func(o *Options) {
		o.Clock = clock
	}
}

// WithCloser registers a resource released by Close.
func WithCloser(c io.Closer) Option {
	return func(o *Options) {
		o.Closers = append(o.Closers, c)
	}
}

func NewOptions(opts ...Option) Options {
	options := Options{
		SourceId: "freecryptoapi",
		Catalog:  marketdata.DefaultCatalog(),
		Retry: budgeted.Retry{
			MaxRetries: 3,
			Initial:    2 * time.Second,
			Max:        10 * time.Second,
		},
		LastKnownTTL:        24 * time.Hour,
		EmbeddingTTL:        7 * 24 * time.Hour,
		TopK:                5,
		SimilarityThreshold: 0.5,
		MaxContextTokens:    4000,
		WindowSize:          10,
		SessionTTL:          time.Hour,
		Clock:               time.Now,
	}

	for _, fn := range opts {
		fn(&options)
	}

	return options
}
