package memory

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/w-h-a/grounded/errs"
	"github.com/w-h-a/grounded/ratelimit"
)

type budget struct {
	limit       int
	used        int
	windowStart time.Time
	warned      bool
}

type memoryLimiter struct {
	options ratelimit.Options
	budgets map[string]*budget
	mtx     sync.Mutex
}

func (l *memoryLimiter) Take(ctx context.Context, sourceId string) error {
	l.mtx.Lock()
	defer l.mtx.Unlock()

	b := l.budgetFor(sourceId, l.options.Clock())

	if b.used >= b.limit {
		return fmt.Errorf("%w: %s used %d of %d", errs.ErrRateLimitExceeded, sourceId, b.used, b.limit)
	}

	b.used++

	if !b.warned && float64(b.used) >= l.options.WarnRatio*float64(b.limit) {
		b.warned = true
		slog.WarnContext(ctx, "rate budget nearly exhausted", "source", sourceId, "used", b.used, "limit", b.limit)
	}

	return nil
}

func (l *memoryLimiter) Usage(ctx context.Context, sourceId string) (ratelimit.Usage, error) {
	l.mtx.Lock()
	defer l.mtx.Unlock()

	b := l.budgetFor(sourceId, l.options.Clock())

	return ratelimit.NewUsage(sourceId, b.limit, b.used, b.windowStart, l.options.Window), nil
}

// budgetFor must be called with mtx held.
func (l *memoryLimiter) budgetFor(sourceId string, now time.Time) *budget {
	b, ok := l.budgets[sourceId]
	if !ok {
		b = &budget{
			limit:       l.options.LimitFor(sourceId),
			windowStart: now,
		}
		l.budgets[sourceId] = b
		return b
	}

	if now.Sub(b.windowStart) >= l.options.Window {
		b.used = 0
		b.warned = false
		b.windowStart = now
	}

	return b
}

func NewLimiter(opts ...ratelimit.Option) ratelimit.Limiter {
	options := ratelimit.NewOptions(opts...)

	l := &memoryLimiter{
		options: options,
		budgets: map[string]*budget{},
		mtx:     sync.Mutex{},
	}

	return l
}
