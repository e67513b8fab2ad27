package bootstrap

import (
	"fmt"

	"github.com/w-h-a/grounded"
	"github.com/w-h-a/grounded/cache"
	memorycache "github.com/w-h-a/grounded/cache/memory"
	rediscache "github.com/w-h-a/grounded/cache/redis"
	"github.com/w-h-a/grounded/config"
	"github.com/w-h-a/grounded/embedder"
	googleembedder "github.com/w-h-a/grounded/embedder/google"
	openaiembedder "github.com/w-h-a/grounded/embedder/openai"
	"github.com/w-h-a/grounded/generator"
	"github.com/w-h-a/grounded/generator/anthropic"
	googlegenerator "github.com/w-h-a/grounded/generator/google"
	openaigenerator "github.com/w-h-a/grounded/generator/openai"
	"github.com/w-h-a/grounded/guard"
	"github.com/w-h-a/grounded/marketdata"
	"github.com/w-h-a/grounded/marketdata/budgeted"
	httpfetcher "github.com/w-h-a/grounded/marketdata/http"
	utcpfetcher "github.com/w-h-a/grounded/marketdata/utcp"
	"github.com/w-h-a/grounded/ratelimit"
	memorylimiter "github.com/w-h-a/grounded/ratelimit/memory"
	sqlitelimiter "github.com/w-h-a/grounded/ratelimit/sqlite"
	"github.com/w-h-a/grounded/reranker"
	"github.com/w-h-a/grounded/reranker/lexical"
	"github.com/w-h-a/grounded/reranker/llm"
	"github.com/w-h-a/grounded/vectorstore"
	"github.com/w-h-a/grounded/vectorstore/chromem"
	memorystore "github.com/w-h-a/grounded/vectorstore/memory"
	"github.com/w-h-a/grounded/vectorstore/postgres"
	"github.com/w-h-a/grounded/vectorstore/qdrant"
)

// New builds the answering facade described by cfg.
func New(cfg config.Config) (*grounded.Grounded, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	emb, err := NewEmbedder(cfg.Embedder)
	if err != nil {
		return nil, err
	}

	gen, err := NewGenerator(cfg.Generator)
	if err != nil {
		return nil, err
	}

	store, err := NewVectorStore(cfg.VectorStore)
	if err != nil {
		return nil, err
	}

	fetcher, err := NewFetcher(cfg.MarketData)
	if err != nil {
		return nil, err
	}

	c, err := NewCache(cfg.Cache)
	if err != nil {
		return nil, err
	}

	limiter, err := NewLimiter(cfg.RateLimit)
	if err != nil {
		return nil, err
	}

	scorer, err := NewScorer(cfg.RAG.Reranker, gen)
	if err != nil {
		return nil, err
	}

	return grounded.New(
		grounded.WithEmbedder(emb),
		grounded.WithGenerator(gen),
		grounded.WithVectorStore(store),
		grounded.WithFetcher(fetcher),
		grounded.WithCache(c),
		grounded.WithLimiter(limiter, cfg.MarketData.SourceId),
		grounded.WithScorer(scorer),
		grounded.WithCatalog(cfg.MarketData.Catalog()),
		grounded.WithRetry(budgeted.Retry{
			MaxRetries: cfg.MarketData.Retry.MaxRetries,
			Initial:    cfg.MarketData.Retry.Initial.Duration,
			Max:        cfg.MarketData.Retry.Max.Duration,
		}),
		grounded.WithLastKnownTTL(cfg.MarketData.LastKnownTTL.Duration),
		grounded.WithEmbeddingTTL(cfg.Cache.EmbeddingTTL.Duration),
		grounded.WithTopK(cfg.RAG.TopK),
		grounded.WithSimilarityThreshold(cfg.RAG.SimilarityThreshold),
		grounded.WithMaxContextTokens(cfg.RAG.MaxContextTokens),
		grounded.WithWindowSize(cfg.Conversation.WindowSize),
		grounded.WithSessionTTL(cfg.Conversation.SessionTTL.Duration),
		grounded.WithGuardOptions(
			guard.WithMinRelevance(cfg.Guard.MinRelevance),
			guard.WithMinConfidence(cfg.Guard.MinConfidence),
			guard.WithStripUncited(cfg.Guard.StripUncited),
		),
	), nil
}

func NewEmbedder(cfg config.Embedder) (embedder.Embedder, error) {
	opts := []embedder.Option{
		embedder.WithApiKey(cfg.ApiKey),
	}

	if len(cfg.Model) > 0 {
		opts = append(opts, embedder.WithModel(cfg.Model))
	}

	switch cfg.Provider {
	case "openai":
		return openaiembedder.NewEmbedder(opts...), nil
	case "google":
		return googleembedder.NewEmbedder(opts...), nil
	default:
		return nil, fmt.Errorf("unsupported embedder provider %q", cfg.Provider)
	}
}

func NewGenerator(cfg config.Generator) (generator.Generator, error) {
	opts := []generator.Option{
		generator.WithApiKey(cfg.ApiKey),
		generator.WithTemperature(cfg.Temperature),
		generator.WithMaxTokens(cfg.MaxTokens),
	}

	if len(cfg.Model) > 0 {
		opts = append(opts, generator.WithModel(cfg.Model))
	}

	var g generator.Generator

	switch cfg.Provider {
	case "openai":
		g = openaigenerator.NewGenerator(opts...)
	case "anthropic":
		g = anthropic.NewGenerator(opts...)
	case "google":
		g = googlegenerator.NewGenerator(opts...)
	default:
		return nil, fmt.Errorf("unsupported generator provider %q", cfg.Provider)
	}

	return generator.NewPaced(g, cfg.RequestsPerMinute), nil
}

func NewVectorStore(cfg config.VectorStore) (vectorstore.VectorStore, error) {
	opts := []vectorstore.Option{
		vectorstore.WithLocation(cfg.Location),
		vectorstore.WithCollection(cfg.Collection),
		vectorstore.WithApiKey(cfg.ApiKey),
		vectorstore.WithVectorSize(cfg.VectorSize),
		vectorstore.WithDistance(cfg.Distance),
	}

	switch cfg.Provider {
	case "memory":
		return memorystore.NewStore(opts...), nil
	case "postgres":
		return postgres.NewStore(opts...), nil
	case "qdrant":
		return qdrant.NewStore(opts...), nil
	case "chromem":
		return chromem.NewStore(opts...), nil
	default:
		return nil, fmt.Errorf("unsupported vector store provider %q", cfg.Provider)
	}
}

func NewFetcher(cfg config.MarketData) (marketdata.Fetcher, error) {
	opts := []marketdata.Option{
		marketdata.WithLocation(cfg.Location),
		marketdata.WithApiKey(cfg.ApiKey),
		marketdata.WithTimeout(cfg.Timeout.Duration),
		marketdata.WithCatalog(cfg.Catalog()),
	}

	switch cfg.Provider {
	case "http":
		return httpfetcher.NewFetcher(opts...), nil
	case "utcp":
		opts = append(opts, utcpfetcher.WithProviderAddrs(cfg.UtcpProviders...))
		return utcpfetcher.NewFetcher(opts...), nil
	default:
		return nil, fmt.Errorf("unsupported market data provider %q", cfg.Provider)
	}
}

func NewCache(cfg config.Cache) (cache.Cache, error) {
	opts := []cache.Option{
		cache.WithLocation(cfg.Location),
		cache.WithCapacity(cfg.Capacity),
		cache.WithPrefix(cfg.Prefix),
	}

	switch cfg.Provider {
	case "memory":
		return memorycache.NewCache(opts...), nil
	case "redis":
		return rediscache.NewCache(opts...), nil
	default:
		return nil, fmt.Errorf("unsupported cache provider %q", cfg.Provider)
	}
}

func NewLimiter(cfg config.RateLimit) (ratelimit.Limiter, error) {
	opts := []ratelimit.Option{
		ratelimit.WithLocation(cfg.Location),
		ratelimit.WithLimit(cfg.Limit),
		ratelimit.WithWindow(cfg.Window.Duration),
		ratelimit.WithWarnRatio(cfg.WarnRatio),
	}

	switch cfg.Provider {
	case "memory":
		return memorylimiter.NewLimiter(opts...), nil
	case "sqlite":
		return sqlitelimiter.NewLimiter(opts...), nil
	default:
		return nil, fmt.Errorf("unsupported rate limit provider %q", cfg.Provider)
	}
}

func NewScorer(kind string, gen generator.Generator) (reranker.Scorer, error) {
	switch kind {
	case "", "lexical":
		return lexical.NewScorer(), nil
	case "llm":
		return llm.NewScorer(llm.WithGenerator(gen)), nil
	default:
		return nil, fmt.Errorf("unsupported reranker %q", kind)
	}
}
