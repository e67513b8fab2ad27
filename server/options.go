package server

import (
	"context"
)

type Option func(*Options)

type Options struct {
	Location string
	Service  Service
	Context  context.Context
}

func WithLocation(loc string) Option {
	return func(o *Options) {
		o.Location = loc
	}
}

func WithService(s Service) Option {
	return func(o *Options) {
		o.Service = s
	}
}

func NewOptions(opts ...Option) Options {
	options := Options{
		Location: ":8080",
		Context:  context.Background(),
	}

	for _, fn := range opts {
		fn(&options)
	}

	return options
}
