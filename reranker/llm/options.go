package llm

import (
	"context"

	"github.com/w-h-a/grounded/generator"
	"github.com/w-h-a/grounded/reranker"
)

type generatorKey struct{}

func WithGenerator(g generator.Generator) reranker.Option {
	return func(o *reranker.Options) {
		o.Context = context.WithValue(o.Context, generatorKey{}, g)
	}
}

func GeneratorFrom(ctx context.Context) (generator.Generator, bool) {
	g, ok := ctx.Value(generatorKey{}).(generator.Generator)
	return g, ok
}

type fallbackKey struct{}

// WithFallback sets the scorer used when the model's reply cannot be read.
func WithFallback(s reranker.Scorer) reranker.Option {
	return func(o *reranker.Options) {
		o.Context = context.WithValue(o.Context, fallbackKey{}, s)
	}
}

func FallbackFrom(ctx context.Context) (reranker.Scorer, bool) {
	s, ok := ctx.Value(fallbackKey{}).(reranker.Scorer)
	return s, ok
}
