package memory

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/w-h-a/grounded/vectorstore"
)

type memoryStore struct {
	options vectorstore.Options
	chunks  map[string]vectorstore.KnowledgeChunk
	mtx     sync.RWMutex
}

func (s *memoryStore) Search(ctx context.Context, embedding []float32, k int) ([]vectorstore.Candidate, error) {
	if k < 1 {
		return nil, nil
	}

	s.mtx.RLock()
	defer s.mtx.RUnlock()

	candidates := make([]vectorstore.Candidate, 0, len(s.chunks))

	for _, chunk := range s.chunks {
		candidates = append(candidates, vectorstore.Candidate{
			Chunk:      chunk,
			Similarity: vectorstore.CosineSimilarity(embedding, chunk.Embedding),
		})
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Similarity != candidates[j].Similarity {
			return candidates[i].Similarity > candidates[j].Similarity
		}
		return candidates[i].Chunk.Id < candidates[j].Chunk.Id
	})

	if len(candidates) > k {
		candidates = candidates[:k]
	}

	return candidates, nil
}

func (s *memoryStore) Upsert(ctx context.Context, chunks ...vectorstore.KnowledgeChunk) error {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	for _, chunk := range chunks {
		if len(chunk.Id) == 0 {
			return errors.New("chunk id is required")
		}

		cpy := make([]float32, len(chunk.Embedding))
		copy(cpy, chunk.Embedding)
		chunk.Embedding = cpy

		s.chunks[chunk.Id] = chunk
	}

	return nil
}

func NewStore(opts ...vectorstore.Option) vectorstore.VectorStore {
	options := vectorstore.NewOptions(opts...)

	s := &memoryStore{
		options: options,
		chunks:  map[string]vectorstore.KnowledgeChunk{},
		mtx:     sync.RWMutex{},
	}

	return s
}
