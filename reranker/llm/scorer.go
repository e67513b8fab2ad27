package llm

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"

	"github.com/w-h-a/grounded/generator"
	"github.com/w-h-a/grounded/reranker"
	"github.com/w-h-a/grounded/reranker/lexical"
	"github.com/w-h-a/grounded/retriever"
)

const template = `Rate how relevant the passage is to the question on a scale from 0 to 1.
Reply with the number only.

Question: %s

Passage: %s

Relevance:`

var number = regexp.MustCompile(`[01](?:\.\d+)?|\.\d+`)

type llmScorer struct {
	options   reranker.Options
	generator generator.Generator
	fallback  reranker.Scorer
}

func (s *llmScorer) Score(ctx context.Context, query string, candidate retriever.Result) (float64, error) {
	reply, err := s.generator.Generate(ctx, fmt.Sprintf(template, query, candidate.Chunk.Text))
	if err != nil {
		return 0, err
	}

	match := number.FindString(reply)
	if len(match) == 0 {
		slog.WarnContext(ctx, "unreadable relevance reply", "chunk", candidate.Chunk.Id, "reply", reply)
		return s.fallback.Score(ctx, query, candidate)
	}

	v, err := strconv.ParseFloat(match, 64)
	if err != nil || v < 0 || v > 1 {
		return s.fallback.Score(ctx, query, candidate)
	}

	return v, nil
}

func NewScorer(opts ...reranker.Option) reranker.Scorer {
	options := reranker.NewOptions(opts...)

	g, ok := GeneratorFrom(options.Context)
	if !ok {
		panic("llm scorer requires a generator")
	}

	s := &llmScorer{
		options:   options,
		generator: g,
		fallback:  lexical.NewScorer(),
	}

	if f, ok := FallbackFrom(options.Context); ok {
		s.fallback = f
	}

	return s
}
