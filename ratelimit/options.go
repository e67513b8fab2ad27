package ratelimit

import (
	"context"
	"time"
)

type Option func(*Options)

type Options struct {
	Location  string
	Limit     int
	Limits    map[string]int
	Window    time.Duration
	WarnRatio float64
	Clock     func() time.Time
	Context   context.Context
}

func WithLocation(loc string) Option {
	return func(o *Options) {
		o.Location = loc
	}
}

func WithLimit(limit int) Option {
	return func(o *Options) {
		o.Limit = limit
	}
}

// WithSourceLimit overrides the default limit for one source.
func WithSourceLimit(sourceId string, limit int) Option {
	return func(o *Options) {
		o.Limits[sourceId] = limit
	}
}

func WithWindow(window time.Duration) Option {
	return func(o *Options) {
		o.Window = window
	}
}

func WithWarnRatio(ratio float64) Option {
	return func(o *Options) {
		o.WarnRatio = ratio
	}
}

func WithClock(clock func() time.Time) Option {
	return func(o *Options) {
		o.Clock = clock
	}
}

func NewOptions(opts ...Option) Options {
	options := Options{
		Limit:     100000,
		Limits:    map[string]int{},
		Window:    30 * 24 * time.Hour,
		WarnRatio: 0.8,
		Clock:     time.Now,
		Context:   context.Background(),
	}
	for _, opt := range opts {
		opt(&options)
	}
	return options
}

func (o Options) LimitFor(sourceId string) int {
	if limit, ok := o.Limits[sourceId]; ok {
		return limit
	}
	return o.Limit
}
