package guard

import (
	"context"
	"time"
)

type Option func(*Options)

type Weights struct {
	Scope     float64
	Strength  float64
	Freshness float64
	Citations float64
}

type Options struct {
	MinRelevance  float64
	MinConfidence float64
	// MissingFreshness scores freshness when market data was wanted but absent.
	MissingFreshness float64
	StripUncited     bool
	Weights          Weights
	Clock            func() time.Time
	Context          context.Context
}

func WithMinRelevance(v float64) Option {
	return func(o *Options) {
		o.MinRelevance = v
	}
}

func WithMinConfidence(v float64) Option {
	return func(o *Options) {
		o.MinConfidence = v
	}
}

func WithStripUncited(strip bool) Option {
	return func(o *Options) {
		o.StripUncited = strip
	}
}

func WithWeights(w Weights) Option {
	return func(o *Options) {
		o.Weights = w
	}
}

func WithClock(clock func() time.Time) Option {
	return func(o *Options) {
		o.Clock = clock
	}
}

func NewOptions(opts ...Option) Options {
	options := Options{
		MinRelevance:     0.35,
		MinConfidence:    0.6,
		MissingFreshness: 0.3,
		StripUncited:     true,
		Weights: Weights{
			Scope:     0.1,
			Strength:  0.4,
			Freshness: 0.2,
			Citations: 0.3,
		},
		Clock:   time.Now,
		Context: context.Background(),
	}

	for _, fn := range opts {
		fn(&options)
	}

	return options
}
