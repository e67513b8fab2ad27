package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	getsafe "github.com/w-h-a/grounded/util/get_safe"
	"github.com/w-h-a/grounded/vectorstore"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

type qdrantStore struct {
	options vectorstore.Options
	client  *http.Client
}

func (s *qdrantStore) Search(ctx context.Context, embedding []float32, k int) ([]vectorstore.Candidate, error) {
	if k < 1 {
		return nil, nil
	}

	req := map[string]any{
		"vector":       embedding,
		"limit":        k,
		"with_payload": true,
	}

	var rsp qdrantEnvelope[[]qdrantScoredPoint]

	path := fmt.Sprintf("/collections/%s/points/search", url.PathEscape(s.options.Collection))

	if err := s.do(ctx, http.MethodPost, path, req, &rsp); err != nil {
		return nil, err
	}

	candidates := make([]vectorstore.Candidate, 0, len(rsp.Result))

	for _, point := range rsp.Result {
		payload := point.Payload

		candidates = append(candidates, vectorstore.Candidate{
			Chunk: vectorstore.KnowledgeChunk{
				Id:               getsafe.String(payload, "chunk_id"),
				Text:             getsafe.String(payload, "text"),
				Category:         getsafe.String(payload, "category"),
				SourceDocumentId: getsafe.String(payload, "source_document_id"),
			},
			Similarity: point.Score,
		})
	}

	return candidates, nil
}

func (s *qdrantStore) Upsert(ctx context.Context, chunks ...vectorstore.KnowledgeChunk) error {
	points := make([]qdrantPoint, 0, len(chunks))

	for _, chunk := range chunks {
		if len(chunk.Id) == 0 {
			return errors.New("chunk id is required")
		}

		points = append(points, qdrantPoint{
			Id:     PointId(chunk.Id),
			Vector: chunk.Embedding,
			Payload: map[string]any{
				"chunk_id":           chunk.Id,
				"text":               chunk.Text,
				"category":           chunk.Category,
				"source_document_id": chunk.SourceDocumentId,
			},
		})
	}

	var rsp qdrantEnvelope[json.RawMessage]

	path := fmt.Sprintf("/collections/%s/points?wait=true", url.PathEscape(s.options.Collection))

	if err := s.do(ctx, http.MethodPut, path, map[string]any{"points": points}, &rsp); err != nil {
		return err
	}

	if !strings.EqualFold(rsp.Status.State, "ok") && len(rsp.Status.Error) > 0 {
		return errors.New(rsp.Status.Error)
	}

	return nil
}

// PointId maps a chunk id onto the uuid space qdrant requires.
func PointId(chunkId string) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(chunkId)).String()
}

func (s *qdrantStore) do(ctx context.Context, method string, path string, req any, rsp any) error {
	u := s.options.Location + path

	var buf io.Reader
	if req != nil {
		data, err := json.Marshal(req)
		if err != nil {
			return err
		}
		buf = bytes.NewReader(data)
	}

	request, err := http.NewRequestWithContext(ctx, method, u, buf)
	if err != nil {
		return err
	}

	request.Header.Set("Content-Type", "application/json")

	if len(s.options.ApiKey) > 0 {
		request.Header.Set("api-key", s.options.ApiKey)
	}

	response, err := s.client.Do(request)
	if err != nil {
		return err
	}
	defer response.Body.Close()

	payload, err := io.ReadAll(response.Body)
	if err != nil {
		return err
	}

	if response.StatusCode >= 400 {
		return &statusError{code: response.StatusCode, body: string(payload)}
	}

	if rsp != nil && len(payload) > 0 {
		if err := json.Unmarshal(payload, rsp); err != nil {
			return err
		}
	}

	return nil
}

type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("qdrant http %d: %s", e.code, e.body)
}

func (s *qdrantStore) configure(ctx context.Context) error {
	path := fmt.Sprintf("/collections/%s", url.PathEscape(s.options.Collection))

	var rsp qdrantEnvelope[json.RawMessage]

	err := s.do(ctx, http.MethodGet, path, nil, &rsp)
	if err == nil {
		return nil
	}

	var se *statusError
	if !errors.As(err, &se) || se.code != http.StatusNotFound {
		return err
	}

	distance := s.options.Distance
	if len(distance) == 0 {
		distance = "Cosine"
	}

	req := map[string]any{
		"vectors": map[string]any{
			"size":     s.options.VectorSize,
			"distance": distance,
		},
	}

	if err := s.do(ctx, http.MethodPut, path, req, &rsp); err != nil {
		return err
	}

	if !strings.EqualFold(rsp.Status.State, "ok") {
		return errors.New(rsp.Status.Error)
	}

	return nil
}

func NewStore(opts ...vectorstore.Option) vectorstore.VectorStore {
	options := vectorstore.NewOptions(opts...)

	if len(options.Location) == 0 || options.VectorSize == 0 {
		panic("missing location or vector size for qdrant vector store")
	}

	s := &qdrantStore{
		options: options,
		client: &http.Client{
			Timeout:   15 * time.Second,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}

	if err := s.configure(context.Background()); err != nil {
		detail := "failed to configure qdrant collection"
		slog.ErrorContext(context.Background(), detail, "error", err)
		panic(detail)
	}

	return s
}
