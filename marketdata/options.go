package marketdata

import (
	"context"
	"time"
)

type Option func(*Options)

type Options struct {
	Location string
	ApiKey   string
	Catalog  Catalog
	Timeout  time.Duration
	Clock    func() time.Time
	Context  context.Context
}

func WithLocation(loc string) Option {
	return func(o *Options) {
		o.Location = loc
	}
}

func WithApiKey(apiKey string) Option {
	return func(o *Options) {
		o.ApiKey = apiKey
	}
}

func WithCatalog(c Catalog) Option {
	return func(o *Options) {
		o.Catalog = c
	}
}

func WithTimeout(d time.Duration) Option {
	return func(o *Options) {
		o.Timeout = d
	}
}

func WithClock(clock func() time.Time) Option {
	return func(o *Options) {
		o.Clock = clock
	}
}

func NewOptions(opts ...Option) Options {
	options := Options{
		Location: "https://freecryptoapi.com/api/v1",
		Catalog:  DefaultCatalog(),
		Timeout:  30 * time.Second,
		Clock:    time.Now,
		Context:  context.Background(),
	}
	for _, opt := range opts {
		opt(&options)
	}
	return options
}
