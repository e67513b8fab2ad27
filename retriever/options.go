package retriever

import (
	"context"
	"time"
)

type Option func(*Options)

type Options struct {
	MaxRetries int
	Initial    time.Duration
	Max        time.Duration
	Context    context.Context
}

func WithRetry(maxRetries int, initial, max time.Duration) Option {
	return func(o *Options) {
		o.MaxRetries = maxRetries
		o.Initial = initial
		o.Max = max
	}
}

func NewOptions(opts ...Option) Options {
	options := Options{
		MaxRetries: 2,
		Initial:    200 * time.Millisecond,
		Max:        2 * time.Second,
		Context:    context.Background(),
	}

	for _, fn := range opts {
		fn(&options)
	}

	return options
}
