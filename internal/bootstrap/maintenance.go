package bootstrap

import (
	"context"
	"log/slog"

	"github.com/robfig/cron/v3"
	"github.com/w-h-a/grounded/cache"
	"github.com/w-h-a/grounded/ratelimit"
)

type Maintainer interface {
	PurgeCache(ctx context.Context) (int, error)
	CacheStats(ctx context.Context) (cache.Stats, error)
	Usage(ctx context.Context) (ratelimit.Usage, error)
	ExpireSessions(ctx context.Context) (int, error)
}

// Schedule registers the background jobs. Expired cache entries and idle
// sessions are purged every minute and the market-data budget is logged
// every hour. The caller starts and stops the returned scheduler.
func Schedule(ctx context.Context, m Maintainer) (*cron.Cron, error) {
	c := cron.New()

	if _, err := c.AddFunc("@every 1m", func() { purge(ctx, m) }); err != nil {
		return nil, err
	}

	if _, err := c.AddFunc("@every 1m", func() { expire(ctx, m) }); err != nil {
		return nil, err
	}

	if _, err := c.AddFunc("@hourly", func() { report(ctx, m) }); err != nil {
		return nil, err
	}

	return c, nil
}

func purge(ctx context.Context, m Maintainer) {
	n, err := m.PurgeCache(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "failed to purge cache", "error", err)
		return
	}
	if n > 0 {
		slog.DebugContext(ctx, "purged expired cache entries", "count", n)
	}
}

func expire(ctx context.Context, m Maintainer) {
	n, err := m.ExpireSessions(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "failed to expire sessions", "error", err)
		return
	}
	if n > 0 {
		slog.InfoContext(ctx, "expired idle sessions", "count", n)
	}
}

func report(ctx context.Context, m Maintainer) {
	usage, err := m.Usage(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "failed to read market data budget", "error", err)
		return
	}

	stats, err := m.CacheStats(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "failed to read cache stats", "error", err)
		return
	}

	slog.InfoContext(
		ctx,
		"market data budget",
		"source", usage.SourceId,
		"used", usage.Used,
		"limit", usage.Limit,
		"percentage_used", usage.PercentageUsed,
		"reset_at", usage.ResetAt,
		"cache_entries", stats.Entries,
		"cache_hits", stats.Hits,
		"cache_misses", stats.Misses,
	)
}
