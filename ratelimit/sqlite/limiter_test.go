package sqlite

import (
	"context"
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/w-h-a/grounded/errs"
	"github.com/w-h-a/grounded/ratelimit"
)

func TestLimiter_AllowsExactlyLimit(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "budgets.db")

	l := NewLimiter(ratelimit.WithLocation(path), ratelimit.WithLimit(3))
	t.Cleanup(func() { _ = l.(io.Closer).Close() })

	for range 3 {
		require.NoError(t, l.Take(ctx, "market"))
	}

	assert.ErrorIs(t, l.Take(ctx, "market"), errs.ErrRateLimitExceeded)

	usage, err := l.Usage(ctx, "market")
	require.NoError(t, err)
	assert.Equal(t, 3, usage.Used)
	assert.Equal(t, 0, usage.Remaining)
}

func TestLimiter_SurvivesRestart(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "budgets.db")

	first := NewLimiter(ratelimit.WithLocation(path), ratelimit.WithLimit(2))
	require.NoError(t, first.Take(ctx, "market"))
	require.NoError(t, first.(io.Closer).Close())

	second := NewLimiter(ratelimit.WithLocation(path), ratelimit.WithLimit(2))
	t.Cleanup(func() { _ = second.(io.Closer).Close() })

	require.NoError(t, second.Take(ctx, "market"))
	assert.ErrorIs(t, second.Take(ctx, "market"), errs.ErrRateLimitExceeded)
}

func TestLimiter_ResetsAfterWindow(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "budgets.db")
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	l := NewLimiter(
		ratelimit.WithLocation(path),
		ratelimit.WithLimit(1),
		ratelimit.WithWindow(time.Hour),
		ratelimit.WithClock(func() time.Time { return now }),
	)
	t.Cleanup(func() { _ = l.(io.Closer).Close() })

	require.NoError(t, l.Take(ctx, "market"))
	require.Error(t, l.Take(ctx, "market"))

	now = now.Add(time.Hour)

	require.NoError(t, l.Take(ctx, "market"))

	usage, err := l.Usage(ctx, "market")
	require.NoError(t, err)
	assert.Equal(t, now, usage.WindowStart)
}
