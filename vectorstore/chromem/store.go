package chromem

import (
	"context"
	"errors"
	"log/slog"

	"github.com/philippgille/chromem-go"
	"github.com/w-h-a/grounded/vectorstore"
)

type chromemStore struct {
	options    vectorstore.Options
	db         *chromem.DB
	collection *chromem.Collection
}

func (s *chromemStore) Search(ctx context.Context, embedding []float32, k int) ([]vectorstore.Candidate, error) {
	n := min(k, s.collection.Count())
	if n < 1 {
		return nil, nil
	}

	results, err := s.collection.QueryEmbedding(ctx, embedding, n, nil, nil)
	if err != nil {
		return nil, err
	}

	candidates := make([]vectorstore.Candidate, 0, len(results))

	for _, res := range results {
		candidates = append(candidates, vectorstore.Candidate{
			Chunk: vectorstore.KnowledgeChunk{
				Id:               res.ID,
				Text:             res.Content,
				Category:         res.Metadata["category"],
				SourceDocumentId: res.Metadata["source_document_id"],
			},
			Similarity: float64(res.Similarity),
		})
	}

	return candidates, nil
}

func (s *chromemStore) Upsert(ctx context.Context, chunks ...vectorstore.KnowledgeChunk) error {
	docs := make([]chromem.Document, 0, len(chunks))

	for _, chunk := range chunks {
		if len(chunk.Id) == 0 {
			return errors.New("chunk id is required")
		}
		if len(chunk.Embedding) == 0 {
			return errors.New("chunk embedding is required")
		}

		emb := make([]float32, len(chunk.Embedding))
		copy(emb, chunk.Embedding)

		docs = append(docs, chromem.Document{
			ID:      chunk.Id,
			Content: chunk.Text,
			Metadata: map[string]string{
				"category":           chunk.Category,
				"source_document_id": chunk.SourceDocumentId,
			},
			Embedding: emb,
		})
	}

	if len(docs) == 0 {
		return nil
	}

	return s.collection.AddDocuments(ctx, docs, 1)
}

func NewStore(opts ...vectorstore.Option) vectorstore.VectorStore {
	options := vectorstore.NewOptions(opts...)

	s := &chromemStore{
		options: options,
	}

	db := chromem.NewDB()

	if len(options.Location) > 0 {
		var err error
		db, err = chromem.NewPersistentDB(options.Location, false)
		if err != nil {
			detail := "failed to open persistent chromem vector store"
			slog.ErrorContext(context.Background(), detail, "error", err)
			panic(detail)
		}
	}

	// embeddings always arrive precomputed, so the collection never embeds itself
	collection, err := db.GetOrCreateCollection(options.Collection, nil, noEmbedding)
	if err != nil {
		detail := "failed to create chromem collection"
		slog.ErrorContext(context.Background(), detail, "error", err)
		panic(detail)
	}

	s.db = db
	s.collection = collection

	return s
}

func noEmbedding(ctx context.Context, text string) ([]float32, error) {
	return nil, errors.New("chromem store requires precomputed embeddings")
}
