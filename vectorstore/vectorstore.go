package vectorstore

import "context"

// VectorStore answers nearest-neighbour queries over the knowledge base.
// Search returns at most k candidates, best first, with cosine scores in [-1, 1].
type VectorStore interface {
	Search(ctx context.Context, embedding []float32, k int) ([]Candidate, error)
	Upsert(ctx context.Context, chunks ...KnowledgeChunk) error
}
