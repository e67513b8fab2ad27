package vectorstore

type KnowledgeChunk struct {
	Id               string    `json:"id"`
	Text             string    `json:"text"`
	Category         string    `json:"category"`
	Embedding        []float32 `json:"embedding,omitempty"`
	SourceDocumentId string    `json:"source_document_id"`
}

type Candidate struct {
	Chunk      KnowledgeChunk
	Similarity float64
}
