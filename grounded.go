package grounded

import (
	"context"
	"errors"
	"io"
	"log/slog"

	"github.com/w-h-a/grounded/answer"
	"github.com/w-h-a/grounded/cache"
	memorycache "github.com/w-h-a/grounded/cache/memory"
	"github.com/w-h-a/grounded/classifier"
	"github.com/w-h-a/grounded/conversation"
	"github.com/w-h-a/grounded/embedder"
	"github.com/w-h-a/grounded/embedder/cached"
	"github.com/w-h-a/grounded/internal/service/pipeline"
	"github.com/w-h-a/grounded/internal/service/session"
	"github.com/w-h-a/grounded/marketdata"
	"github.com/w-h-a/grounded/marketdata/budgeted"
	"github.com/w-h-a/grounded/ratelimit"
	memorylimiter "github.com/w-h-a/grounded/ratelimit/memory"
	"github.com/w-h-a/grounded/reranker"
	"github.com/w-h-a/grounded/reranker/lexical"
	"github.com/w-h-a/grounded/retriever"
)

// Grounded answers crypto questions from retrieved evidence and refuses
// when the evidence is not good enough.
type Grounded struct {
	options  Options
	pipeline *pipeline.Service
	sessions *session.Service
}

// Answer is the single entry point for callers. sessionId may be empty, in
// which case a new session is started and reported in the response.
func (g *Grounded) Answer(ctx context.Context, query string, sessionId string) (answer.Response, error) {
	return g.pipeline.Answer(ctx, query, sessionId)
}

func (g *Grounded) CreateSession(ctx context.Context, sessionId string) (string, error) {
	s, err := g.sessions.CreateSession(ctx, sessionId)
	if err != nil {
		return "", err
	}
	return s.Id(), nil
}

func (g *Grounded) ListSessionIds(ctx context.Context) []string {
	return g.sessions.ListSessionIds(ctx)
}

func (g *Grounded) History(ctx context.Context, sessionId string) ([]conversation.Turn, error) {
	s, err := g.sessions.GetSession(ctx, sessionId)
	if err != nil {
		return nil, err
	}
	return s.Conversation().History(), nil
}

func (g *Grounded) DeleteSession(ctx context.Context, sessionId string) bool {
	return g.sessions.DeleteSession(ctx, sessionId)
}

// ExpireSessions drops sessions idle for longer than the session TTL.
func (g *Grounded) ExpireSessions(ctx context.Context) (int, error) {
	return g.sessions.ExpireIdle(ctx, g.options.SessionTTL), nil
}

// Usage reports the market-data budget for the current window.
func (g *Grounded) Usage(ctx context.Context) (ratelimit.Usage, error) {
	return g.options.Limiter.Usage(ctx, g.options.SourceId)
}

func (g *Grounded) PurgeCache(ctx context.Context) (int, error) {
	return g.options.Cache.Purge(ctx)
}

func (g *Grounded) CacheStats(ctx context.Context) (cache.Stats, error) {
	return g.options.Cache.Stats(ctx)
}

func (g *Grounded) Close() error {
	var errList []error
	for _, c := range g.options.Closers {
		if err := c.Close(); err != nil {
			errList = append(errList, err)
		}
	}
	return errors.Join(errList...)
}

func New(opts ...Option) *Grounded {
	options := NewOptions(opts...)

	if options.Embedder == nil || options.Generator == nil || options.VectorStore == nil || options.Fetcher == nil {
		detail := "grounded requires an embedder, a generator, a vector store and a market data fetcher"
		slog.ErrorContext(context.Background(), detail)
		panic(detail)
	}

	if options.Cache == nil {
		options.Cache = memorycache.NewCache(cache.WithClock(options.Clock))
	}

	if options.Limiter == nil {
		options.Limiter = memorylimiter.NewLimiter(ratelimit.WithClock(options.Clock))
	}

	if options.Scorer == nil {
		options.Scorer = lexical.NewScorer()
	}

	for _, v := range []any{options.Cache, options.Limiter, options.VectorStore, options.Fetcher} {
		if c, ok := v.(io.Closer); ok {
			options.Closers = append(options.Closers, c)
		}
	}

	emb := options.Embedder
	if options.EmbeddingTTL > 0 {
		emb = cached.NewEmbedder(
			embedder.WithEmbedder(emb),
			embedder.WithCache(options.Cache, options.EmbeddingTTL),
		)
	}

	fetcher := budgeted.NewFetcher(
		marketdata.WithCatalog(options.Catalog),
		marketdata.WithClock(options.Clock),
		budgeted.WithFetcher(options.Fetcher),
		budgeted.WithCache(options.Cache),
		budgeted.WithLimiter(options.Limiter, options.SourceId),
		budgeted.WithRetry(options.Retry),
		budgeted.WithLastKnownTTL(options.LastKnownTTL),
	)

	sessions := session.New(options.Clock, conversation.WithWindowSize(options.WindowSize), conversation.WithCatalog(options.Entities))

	svc := pipeline.New(
		sessions,
		classifier.New(options.Entities),
		emb,
		retriever.New(options.VectorStore),
		reranker.New(options.Scorer, reranker.WithTopN(options.TopK)),
		fetcher,
		options.Generator,
		pipeline.WithTopK(options.TopK),
		pipeline.WithSimilarityThreshold(options.SimilarityThreshold),
		pipeline.WithMaxContextTokens(options.MaxContextTokens),
		pipeline.WithGuardOptions(options.GuardOptions...),
		pipeline.WithClock(options.Clock),
	)

	return &Grounded{
		options:  options,
		pipeline: svc,
		sessions: sessions,
	}
}
