package embedder

import "context"

// Embedder turns text into a fixed-length vector. Identical input yields
// identical output, and failure is an error, never a zero vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}
