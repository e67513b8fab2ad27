package marketdata

import (
	"context"
	"time"
)

// Fetcher retrieves one record from a market-data endpoint.
type Fetcher interface {
	Fetch(ctx context.Context, endpointId string, params map[string]string) (Record, error)
}

type Record struct {
	Endpoint  string            `json:"endpoint"`
	Params    map[string]string `json:"params"`
	Data      map[string]any    `json:"data"`
	Timestamp time.Time         `json:"timestamp"`
	FetchedAt time.Time         `json:"fetched_at"`
	TTL       time.Duration     `json:"ttl"`
	Missing   []string          `json:"missing,omitempty"`
	Stale     bool              `json:"stale"`
	FromCache bool              `json:"from_cache"`
}

func (r Record) Complete() bool {
	return len(r.Missing) == 0
}

// IsStale reports whether the data is older than its endpoint's TTL.
func (r Record) IsStale(now time.Time) bool {
	return now.Sub(r.Timestamp) > r.TTL
}

// Freshness is 1 within the TTL and decays as TTL/age beyond it.
func (r Record) Freshness(now time.Time) float64 {
	age := now.Sub(r.Timestamp)
	if age <= r.TTL {
		return 1
	}
	if r.TTL <= 0 {
		return 0
	}
	return float64(r.TTL) / float64(age)
}

func NewRecord(ep Endpoint, params map[string]string, data map[string]any, now time.Time) Record {
	ts := now
	if parsed, ok := ep.Timestamp(data); ok {
		ts = parsed
	}

	return Record{
		Endpoint:  ep.Id,
		Params:    params,
		Data:      data,
		Timestamp: ts,
		FetchedAt: now,
		TTL:       ep.TTL,
		Missing:   ep.Missing(data),
		Stale:     now.Sub(ts) > ep.TTL,
	}
}
