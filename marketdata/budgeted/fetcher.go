package budgeted

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/w-h-a/grounded/cache"
	"github.com/w-h-a/grounded/errs"
	"github.com/w-h-a/grounded/marketdata"
	"github.com/w-h-a/grounded/ratelimit"
)

// budgetedFetcher is the single boundary through which market data leaves
// the process: cache first, then the rate budget, then bounded retries.
type budgetedFetcher struct {
	options   marketdata.Options
	next      marketdata.Fetcher
	cache     cache.Cache
	limiter   ratelimit.Limiter
	sourceId  string
	retry     Retry
	lastKnown time.Duration
}

func (f *budgetedFetcher) Fetch(ctx context.Context, endpointId string, params map[string]string) (marketdata.Record, error) {
	ep, ok := f.options.Catalog.Lookup(endpointId)
	if !ok {
		return marketdata.Record{}, fmt.Errorf("%w: unknown endpoint %q", errs.ErrPermanent, endpointId)
	}

	params = marketdata.NormalizeParams(params)
	key := cache.Key(endpointId, params)

	rec, ok, err := f.load(ctx, "fresh:"+key)
	if err != nil {
		return marketdata.Record{}, err
	}
	if ok {
		return f.mark(rec), nil
	}

	rec, err = f.fetch(ctx, endpointId, params)
	if err != nil {
		return f.fallback(ctx, key, endpointId, err)
	}

	f.store(ctx, "fresh:"+key, rec, ep.TTL)
	f.store(ctx, "last:"+key, rec, f.lastKnown)

	return rec, nil
}

func (f *budgetedFetcher) fetch(ctx context.Context, endpointId string, params map[string]string) (marketdata.Record, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = f.retry.Initial
	b.MaxInterval = f.retry.Max
	b.MaxElapsedTime = 0

	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(f.retry.MaxRetries)), ctx)

	op := func() (marketdata.Record, error) {
		if f.limiter != nil {
			if err := f.limiter.Take(ctx, f.sourceId); err != nil {
				return marketdata.Record{}, backoff.Permanent(err)
			}
		}

		rec, err := f.next.Fetch(ctx, endpointId, params)
		if err != nil {
			if errs.IsPermanent(err) {
				return marketdata.Record{}, backoff.Permanent(err)
			}
			slog.WarnContext(ctx, "market data fetch failed, retrying", "endpoint", endpointId, "error", err)
			return marketdata.Record{}, err
		}

		return rec, nil
	}

	return backoff.RetryWithData(op, policy)
}

// fallback serves the last known record when the live call could not be made.
func (f *budgetedFetcher) fallback(ctx context.Context, key string, endpointId string, cause error) (marketdata.Record, error) {
	rec, ok, err := f.load(ctx, "last:"+key)
	if err != nil {
		return marketdata.Record{}, err
	}

	if ok {
		slog.WarnContext(ctx, "serving last known market data", "endpoint", endpointId, "cause", cause)
		return f.mark(rec), nil
	}

	if errors.Is(cause, errs.ErrRateLimitExceeded) {
		return marketdata.Record{}, fmt.Errorf("%s: %w", endpointId, cause)
	}

	return marketdata.Record{}, fmt.Errorf("%w: %s: %w", errs.ErrRetrievalUnavailable, endpointId, cause)
}

func (f *budgetedFetcher) mark(rec marketdata.Record) marketdata.Record {
	rec.FromCache = true
	rec.Stale = rec.IsStale(f.options.Clock())
	return rec
}

func (f *budgetedFetcher) load(ctx context.Context, key string) (marketdata.Record, bool, error) {
	if f.cache == nil {
		return marketdata.Record{}, false, nil
	}

	raw, ok, err := f.cache.Get(ctx, key)
	if err != nil {
		slog.WarnContext(ctx, "market data cache read failed", "error", err)
		return marketdata.Record{}, false, nil
	}
	if !ok {
		return marketdata.Record{}, false, nil
	}

	var rec marketdata.Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return marketdata.Record{}, false, fmt.Errorf("%w: %v", errs.ErrCacheCorruption, err)
	}

	return rec, true, nil
}

func (f *budgetedFetcher) store(ctx context.Context, key string, rec marketdata.Record, ttl time.Duration) {
	if f.cache == nil {
		return
	}

	raw, err := json.Marshal(rec)
	if err != nil {
		slog.WarnContext(ctx, "failed to encode market data record", "error", err)
		return
	}

	if err := f.cache.Set(ctx, key, raw, ttl); err != nil {
		slog.WarnContext(ctx, "market data cache write failed", "error", err)
	}
}

func NewFetcher(opts ...marketdata.Option) marketdata.Fetcher {
	options := marketdata.NewOptions(opts...)

	f := &budgetedFetcher{
		options: options,
		retry: Retry{
			MaxRetries: 3,
			Initial:    2 * time.Second,
			Max:        10 * time.Second,
		},
		lastKnown: 24 * time.Hour,
	}

	next, ok := FetcherFrom(options.Context)
	if !ok {
		panic("budgeted fetcher requires a fetcher to wrap")
	}

	f.next = next

	if c, ok := CacheFrom(options.Context); ok {
		f.cache = c
	}

	if l, sourceId, ok := LimiterFrom(options.Context); ok {
		f.limiter = l
		f.sourceId = sourceId
	}

	if r, ok := RetryFrom(options.Context); ok {
		f.retry = r
	}

	if ttl, ok := LastKnownTTLFrom(options.Context); ok {
		f.lastKnown = ttl
	}

	return f
}
