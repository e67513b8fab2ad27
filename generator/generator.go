package generator

import "context"

// Generator completes a prompt. Implementations must not retry on their own;
// callers decide how a failed generation is reported.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}
