package conversation

import (
	"github.com/w-h-a/grounded/entity"
)

type Option func(*Options)

type Options struct {
	WindowSize int
	Catalog    *entity.Catalog
}

func WithWindowSize(n int) Option {
	return func(o *Options) {
		o.WindowSize = n
	}
}

func WithCatalog(c *entity.Catalog) Option {
	return func(o *Options) {
		o.Catalog = c
	}
}

func NewOptions(opts ...Option) Options {
	options := Options{
		WindowSize: 10,
	}

	for _, fn := range opts {
		fn(&options)
	}

	if options.WindowSize <= 0 {
		options.WindowSize = 10
	}

	if options.Catalog == nil {
		options.Catalog = entity.DefaultCatalog()
	}

	return options
}
