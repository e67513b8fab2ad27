package reranker

import "context"

type Option func(*Options)

type Options struct {
	TopN    int
	Context context.Context
}

func WithTopN(n int) Option {
	return func(o *Options) {
		o.TopN = n
	}
}

func NewOptions(opts ...Option) Options {
	options := Options{
		TopN:    5,
		Context: context.Background(),
	}
	for _, opt := range opts {
		opt(&options)
	}
	return options
}
