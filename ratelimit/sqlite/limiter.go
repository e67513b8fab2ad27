package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/w-h-a/grounded/errs"
	"github.com/w-h-a/grounded/ratelimit"
	_ "modernc.org/sqlite"
)

const schema = `
	CREATE TABLE IF NOT EXISTS rate_budgets (
		source_id    TEXT PRIMARY KEY,
		window_limit INTEGER NOT NULL,
		used         INTEGER NOT NULL DEFAULT 0,
		window_start INTEGER NOT NULL
	)
`

type sqliteLimiter struct {
	options ratelimit.Options
	conn    *sql.DB
	warned  map[string]int64
	mtx     sync.Mutex
}

func (l *sqliteLimiter) Take(ctx context.Context, sourceId string) error {
	l.mtx.Lock()
	defer l.mtx.Unlock()

	tx, err := l.conn.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	now := l.options.Clock()

	if err := l.roll(ctx, tx, sourceId, now); err != nil {
		return err
	}

	res, err := tx.ExecContext(
		ctx,
		`UPDATE rate_budgets SET used = used + 1 WHERE source_id = ? AND used < window_limit`,
		sourceId,
	)
	if err != nil {
		return err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}

	b, err := l.read(ctx, tx, sourceId)
	if err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	if n == 0 {
		return fmt.Errorf("%w: %s used %d of %d", errs.ErrRateLimitExceeded, sourceId, b.Used, b.Limit)
	}

	if float64(b.Used) >= l.options.WarnRatio*float64(b.Limit) && l.warned[sourceId] != b.WindowStart.UnixNano() {
		l.warned[sourceId] = b.WindowStart.UnixNano()
		slog.WarnContext(ctx, "rate budget nearly exhausted", "source", sourceId, "used", b.Used, "limit", b.Limit)
	}

	return nil
}

func (l *sqliteLimiter) Usage(ctx context.Context, sourceId string) (ratelimit.Usage, error) {
	l.mtx.Lock()
	defer l.mtx.Unlock()

	tx, err := l.conn.BeginTx(ctx, nil)
	if err != nil {
		return ratelimit.Usage{}, err
	}
	defer tx.Rollback()

	if err := l.roll(ctx, tx, sourceId, l.options.Clock()); err != nil {
		return ratelimit.Usage{}, err
	}

	usage, err := l.read(ctx, tx, sourceId)
	if err != nil {
		return ratelimit.Usage{}, err
	}

	return usage, tx.Commit()
}

func (l *sqliteLimiter) Close() error {
	return l.conn.Close()
}

// roll creates the budget row if needed and starts a new window once the
// current one has elapsed.
func (l *sqliteLimiter) roll(ctx context.Context, tx *sql.Tx, sourceId string, now time.Time) error {
	if _, err := tx.ExecContext(
		ctx,
		`INSERT INTO rate_budgets (source_id, window_limit, used, window_start) VALUES (?, ?, 0, ?)
		 ON CONFLICT(source_id) DO UPDATE SET window_limit = excluded.window_limit`,
		sourceId,
		l.options.LimitFor(sourceId),
		now.UnixNano(),
	); err != nil {
		return err
	}

	_, err := tx.ExecContext(
		ctx,
		`UPDATE rate_budgets SET used = 0, window_start = ? WHERE source_id = ? AND ? - window_start >= ?`,
		now.UnixNano(),
		sourceId,
		now.UnixNano(),
		l.options.Window.Nanoseconds(),
	)

	return err
}

func (l *sqliteLimiter) read(ctx context.Context, tx *sql.Tx, sourceId string) (ratelimit.Usage, error) {
	var limit, used int
	var start int64

	if err := tx.QueryRowContext(
		ctx,
		`SELECT window_limit, used, window_start FROM rate_budgets WHERE source_id = ?`,
		sourceId,
	).Scan(&limit, &used, &start); err != nil {
		return ratelimit.Usage{}, err
	}

	return ratelimit.NewUsage(sourceId, limit, used, time.Unix(0, start).UTC(), l.options.Window), nil
}

func NewLimiter(opts ...ratelimit.Option) ratelimit.Limiter {
	options := ratelimit.NewOptions(opts...)

	l := &sqliteLimiter{
		options: options,
		warned:  map[string]int64{},
		mtx:     sync.Mutex{},
	}

	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(10000)&_pragma=journal_mode(WAL)", options.Location)

	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		detail := "failed to open sqlite rate limiter"
		slog.ErrorContext(context.Background(), detail, "error", err)
		panic(detail)
	}

	conn.SetMaxOpenConns(1)

	if _, err := conn.Exec(schema); err != nil {
		detail := "failed to initialize sqlite rate limiter schema"
		slog.ErrorContext(context.Background(), detail, "error", err)
		panic(detail)
	}

	l.conn = conn

	return l
}
