package ratelimit

import (
	"context"
	"time"
)

// Limiter enforces a fixed-window call budget per external source.
type Limiter interface {
	Take(ctx context.Context, sourceId string) error
	Usage(ctx context.Context, sourceId string) (Usage, error)
}

type Usage struct {
	SourceId       string    `json:"source_id"`
	Limit          int       `json:"limit"`
	Used           int       `json:"used"`
	Remaining      int       `json:"remaining"`
	PercentageUsed float64   `json:"percentage_used"`
	WindowStart    time.Time `json:"window_start"`
	ResetAt        time.Time `json:"reset_at"`
}

func NewUsage(sourceId string, limit int, used int, windowStart time.Time, window time.Duration) Usage {
	remaining := limit - used
	if remaining < 0 {
		remaining = 0
	}

	var pct float64
	if limit > 0 {
		pct = float64(used) / float64(limit) * 100
	}

	return Usage{
		SourceId:       sourceId,
		Limit:          limit,
		Used:           used,
		Remaining:      remaining,
		PercentageUsed: pct,
		WindowStart:    windowStart,
		ResetAt:        windowStart.Add(window),
	}
}
