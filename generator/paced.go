package generator

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

type pacedGenerator struct {
	next    Generator
	limiter *rate.Limiter
}

func (g *pacedGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return "", err
	}
	return g.next.Generate(ctx, prompt)
}

// NewPaced spaces calls to g so that at most rpm start per minute.
func NewPaced(g Generator, rpm int) Generator {
	if rpm <= 0 {
		return g
	}

	return &pacedGenerator{
		next:    g,
		limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(rpm)), 1),
	}
}
