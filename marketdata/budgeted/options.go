package budgeted

import (
	"context"
	"time"

	"github.com/w-h-a/grounded/cache"
	"github.com/w-h-a/grounded/marketdata"
	"github.com/w-h-a/grounded/ratelimit"
)

type fetcherKey struct{}

func WithFetcher(f marketdata.Fetcher) marketdata.Option {
	return func(o *marketdata.Options) {
		o.Context = context.WithValue(o.Context, fetcherKey{}, f)
	}
}

func FetcherFrom(ctx context.Context) (marketdata.Fetcher, bool) {
	f, ok := ctx.Value(fetcherKey{}).(marketdata.Fetcher)
	return f, ok
}

type cacheKey struct{}

func WithCache(c cache.Cache) marketdata.Option {
	return func(o *marketdata.Options) {
		o.Context = context.WithValue(o.Context, cacheKey{}, c)
	}
}

func CacheFrom(ctx context.Context) (cache.Cache, bool) {
	c, ok := ctx.Value(cacheKey{}).(cache.Cache)
	return c, ok
}

type limiterKey struct{}

type limiterConfig struct {
	limiter  ratelimit.Limiter
	sourceId string
}

// WithLimiter charges every outbound attempt against sourceId's budget.
func WithLimiter(l ratelimit.Limiter, sourceId string) marketdata.Option {
	return func(o *marketdata.Options) {
		o.Context = context.WithValue(o.Context, limiterKey{}, limiterConfig{limiter: l, sourceId: sourceId})
	}
}

func LimiterFrom(ctx context.Context) (ratelimit.Limiter, string, bool) {
	cfg, ok := ctx.Value(limiterKey{}).(limiterConfig)
	return cfg.limiter, cfg.sourceId, ok
}

type Retry struct {
	MaxRetries int
	Initial    time.Duration
	Max        time.Duration
}

type retryKey struct{}

func WithRetry(r Retry) marketdata.Option {
	return func(o *marketdata.Options) {
		o.Context = context.WithValue(o.Context, retryKey{}, r)
	}
}

func RetryFrom(ctx context.Context) (Retry, bool) {
	r, ok := ctx.Value(retryKey{}).(Retry)
	return r, ok
}

type lastKnownKey struct{}

// WithLastKnownTTL sets how long a record stays available as a fallback
// after its fresh TTL has passed.
func WithLastKnownTTL(ttl time.Duration) marketdata.Option {
	return func(o *marketdata.Options) {
		o.Context = context.WithValue(o.Context, lastKnownKey{}, ttl)
	}
}

func LastKnownTTLFrom(ctx context.Context) (time.Duration, bool) {
	ttl, ok := ctx.Value(lastKnownKey{}).(time.Duration)
	return ttl, ok
}
