package pipeline

import (
	"time"

	"github.com/w-h-a/grounded/guard"
)

type Option func(*Options)

type Options struct {
	TopK                int
	SimilarityThreshold float64
	MaxContextTokens    int
	ExcerptLength       int
	GuardOptions        []guard.Option
	Clock               func() time.Time
}

func WithTopK(k int) Option {
	return func(o *Options) {
		o.TopK = k
	}
}

func WithSimilarityThreshold(v float64) Option {
	return func(o *Options) {
		o.SimilarityThreshold = v
	}
}

func WithMaxContextTokens(n int) Option {
	return func(o *Options) {
		o.MaxContextTokens = n
	}
}

func WithGuardOptions(opts ...guard.Option) Option {
	return func(o *Options) {
		o.GuardOptions = append(o.GuardOptions, opts...)
	}
}

func WithClock(clock func() time.Time) Option {
	return func(o *Options) {
		o.Clock = clock
	}
}

func NewOptions(opts ...Option) Options {
	options := Options{
		TopK:                5,
		SimilarityThreshold: 0.5,
		MaxContextTokens:    4000,
		ExcerptLength:       200,
		Clock:               time.Now,
	}

	for _, fn := range opts {
		fn(&options)
	}

	return options
}
