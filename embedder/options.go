package embedder

import (
	"context"
	"time"

	"github.com/w-h-a/grounded/cache"
)

type Option func(*Options)

type Options struct {
	ApiKey  string
	Model   string
	Context context.Context
}

func WithApiKey(apiKey string) Option {
	return func(o *Options) {
		o.ApiKey = apiKey
	}
}

func WithModel(model string) Option {
	return func(o *Options) {
		o.Model = model
	}
}

type embedderKey struct{}

// WithEmbedder sets the embedder a decorating provider wraps.
func WithEmbedder(e Embedder) Option {
	return func(o *Options) {
		o.Context = context.WithValue(o.Context, embedderKey{}, e)
	}
}

func EmbedderFrom(ctx context.Context) (Embedder, bool) {
	e, ok := ctx.Value(embedderKey{}).(Embedder)
	return e, ok
}

type cacheKey struct{}

func WithCache(c cache.Cache, ttl time.Duration) Option {
	return func(o *Options) {
		o.Context = context.WithValue(o.Context, cacheKey{}, cacheConfig{cache: c, ttl: ttl})
	}
}

type cacheConfig struct {
	cache cache.Cache
	ttl   time.Duration
}

func CacheFrom(ctx context.Context) (cache.Cache, time.Duration, bool) {
	cfg, ok := ctx.Value(cacheKey{}).(cacheConfig)
	return cfg.cache, cfg.ttl, ok
}

func NewOptions(opts ...Option) Options {
	options := Options{
		Context: context.Background(),
	}
	for _, opt := range opts {
		opt(&options)
	}
	return options
}
