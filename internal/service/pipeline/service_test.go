package pipeline

import (
	"context"
	"errors"
	"math"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/w-h-a/grounded/answer"
	"github.com/w-h-a/grounded/classifier"
	"github.com/w-h-a/grounded/errs"
	"github.com/w-h-a/grounded/guard"
	"github.com/w-h-a/grounded/internal/service/session"
	"github.com/w-h-a/grounded/marketdata"
	"github.com/w-h-a/grounded/reranker"
	"github.com/w-h-a/grounded/reranker/lexical"
	"github.com/w-h-a/grounded/retriever"
	"github.com/w-h-a/grounded/vectorstore"
	"github.com/w-h-a/grounded/vectorstore/memory"
)

var now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type fakeEmbedder struct {
	calls atomic.Int32
	err   error
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	if strings.Contains(strings.ToLower(text), "bitcoin") {
		return []float32{1, 0}, nil
	}
	return []float32{0, 1}, nil
}

type fakeFetcher struct {
	calls   atomic.Int32
	records map[string]marketdata.Record
	err     error
	block   chan struct{}
	started chan struct{}
	once    sync.Once
}

func (f *fakeFetcher) Fetch(ctx context.Context, endpointId string, params map[string]string) (marketdata.Record, error) {
	f.calls.Add(1)
	if f.block != nil {
		f.once.Do(func() { close(f.started) })
		<-f.block
	}
	if f.err != nil {
		return marketdata.Record{}, f.err
	}
	rec, ok := f.records[endpointId]
	if !ok {
		return marketdata.Record{}, errors.New("no record")
	}
	rec.Params = params
	return rec, nil
}

type fakeGenerator struct {
	calls   atomic.Int32
	reply   string
	prompts []string
	mtx     sync.Mutex
}

func (f *fakeGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	f.calls.Add(1)
	f.mtx.Lock()
	f.prompts = append(f.prompts, prompt)
	f.mtx.Unlock()
	return f.reply, nil
}

type harness struct {
	svc       *Service
	embedder  *fakeEmbedder
	fetcher   *fakeFetcher
	generator *fakeGenerator
}

func (h *harness) externalCalls() int {
	return int(h.embedder.calls.Load() + h.fetcher.calls.Load() + h.generator.calls.Load())
}

func newHarness(t *testing.T, reply string) *harness {
	t.Helper()

	store := memory.NewStore()
	sim := 0.82
	require.NoError(t, store.Upsert(context.Background(),
		vectorstore.KnowledgeChunk{
			Id:               "btc-intro",
			Text:             "Bitcoin is a decentralized digital currency created in 2009.",
			Category:         "bitcoin",
			Embedding:        []float32{float32(sim), float32(math.Sqrt(1 - sim*sim))},
			SourceDocumentId: "bitcoin.md",
		},
	))

	h := &harness{
		embedder:  &fakeEmbedder{},
		fetcher:   &fakeFetcher{records: map[string]marketdata.Record{}},
		generator: &fakeGenerator{reply: reply},
	}

	h.svc = New(
		session.New(func() time.Time { return now }),
		classifier.New(nil),
		h.embedder,
		retriever.New(store),
		reranker.New(lexical.NewScorer(), reranker.WithTopN(5)),
		h.fetcher,
		h.generator,
		WithClock(func() time.Time { return now }),
	)

	return h
}

func btcRecord(age time.Duration) marketdata.Record {
	return marketdata.Record{
		Endpoint:  "getData",
		Data:      map[string]any{"symbols": []any{map[string]any{"symbol": "BTC", "last": 64000.0}}},
		Timestamp: now.Add(-age),
		FetchedAt: now,
		TTL:       time.Minute,
	}
}

func TestAnswer_KnowledgeBase(t *testing.T) {
	h := newHarness(t, "Bitcoin is a decentralized digital currency [1].")

	rsp, err := h.svc.Answer(context.Background(), "What is Bitcoin?", "s1")
	require.NoError(t, err)

	assert.Equal(t, answer.Answer, rsp.Decision)
	require.Len(t, rsp.Citations, 1)
	assert.Equal(t, 1, rsp.Citations[0].Id)
	assert.Equal(t, "KB", rsp.Citations[0].Origin)
	assert.Equal(t, "btc-intro", rsp.Citations[0].Source)
	assert.Greater(t, rsp.Confidence, 0.7)
	assert.Equal(t, "Bitcoin is a decentralized digital currency [1].", rsp.Text)
	assert.Equal(t, string(classifier.Conceptual), rsp.Class)
	assert.Zero(t, h.fetcher.calls.Load())

	require.Len(t, h.generator.prompts, 1)
	assert.Contains(t, h.generator.prompts[0], "[1] (KB) Bitcoin is a decentralized digital currency created in 2009.")
}

func TestAnswer_OutOfScopeMakesNoCalls(t *testing.T) {
	h := newHarness(t, "It is sunny [1].")

	rsp, err := h.svc.Answer(context.Background(), "What's the weather today?", "s1")
	require.NoError(t, err)

	assert.Equal(t, answer.Refuse, rsp.Decision)
	assert.Zero(t, rsp.Confidence)
	assert.Empty(t, rsp.Citations)
	assert.Contains(t, rsp.Reasons, string(guard.OutOfScope))
	assert.Zero(t, h.externalCalls())
}

func TestAnswer_InvestmentAdvice(t *testing.T) {
	h := newHarness(t, "Yes [1].")

	rsp, err := h.svc.Answer(context.Background(), "Should I buy Bitcoin?", "s1")
	require.NoError(t, err)

	assert.Equal(t, answer.Refuse, rsp.Decision)
	assert.Contains(t, rsp.Text, "financial or investment advice")
	assert.Zero(t, h.externalCalls())
}

func TestAnswer_StaleMarketData(t *testing.T) {
	kb := newHarness(t, "Bitcoin is a decentralized digital currency [1].")
	fresh, err := kb.svc.Answer(context.Background(), "What is Bitcoin?", "s1")
	require.NoError(t, err)

	h := newHarness(t, "Bitcoin is trading at $64,000 [1].")
	h.fetcher.records["getData"] = btcRecord(2 * time.Hour)

	rsp, err := h.svc.Answer(context.Background(), "Current BTC price", "s1")
	require.NoError(t, err)

	assert.Equal(t, answer.Caveat, rsp.Decision)
	assert.Contains(t, rsp.Reasons, string(guard.StaleData))
	assert.Less(t, rsp.Confidence, fresh.Confidence)
	assert.True(t, strings.HasPrefix(rsp.Text, "Note: some market data may be out of date"))
	require.Len(t, rsp.Citations, 1)
	assert.Equal(t, "API", rsp.Citations[0].Origin)
	assert.Zero(t, h.embedder.calls.Load())
	assert.Equal(t, int32(1), h.fetcher.calls.Load())
}

func TestAnswer_RealtimeFallsBackToKnowledgeBase(t *testing.T) {
	h := newHarness(t, "Bitcoin is a decentralized digital currency [1].")
	h.fetcher.err = errs.ErrRetrievalUnavailable

	rsp, err := h.svc.Answer(context.Background(), "What is the current price of Bitcoin?", "s1")
	require.NoError(t, err)

	assert.Equal(t, answer.Caveat, rsp.Decision)
	assert.Contains(t, rsp.Reasons, string(guard.RetrievalUnavailable))
	assert.Equal(t, int32(1), h.embedder.calls.Load())
}

func TestAnswer_PartialCitations(t *testing.T) {
	h := newHarness(t, "Bitcoin is a decentralized digital currency [1]. It will replace every bank by next year.")

	rsp, err := h.svc.Answer(context.Background(), "What is Bitcoin?", "s1")
	require.NoError(t, err)

	assert.Equal(t, answer.Caveat, rsp.Decision)
	assert.Equal(t, []string{"It will replace every bank by next year."}, rsp.Flagged)
	assert.Equal(t, "Bitcoin is a decentralized digital currency [1].", rsp.Text)
}

func TestAnswer_NoCitationsRefuses(t *testing.T) {
	h := newHarness(t, "Bitcoin is a decentralized digital currency.")

	rsp, err := h.svc.Answer(context.Background(), "What is Bitcoin?", "s1")
	require.NoError(t, err)

	assert.Equal(t, answer.Refuse, rsp.Decision)
	assert.Contains(t, rsp.Reasons, string(guard.CitationMismatch))
	assert.Empty(t, rsp.Citations)
}

func TestAnswer_InsufficientEvidenceSkipsGeneration(t *testing.T) {
	h := newHarness(t, "x [1].")

	rsp, err := h.svc.Answer(context.Background(), "Explain how Curve pools rebalance", "s1")
	require.NoError(t, err)

	assert.Equal(t, answer.Refuse, rsp.Decision)
	assert.Contains(t, rsp.Reasons, string(guard.InsufficientEvidence))
	assert.Zero(t, h.generator.calls.Load())
}

func TestAnswer_ResolvesPronounAcrossTurns(t *testing.T) {
	h := newHarness(t, "Bitcoin is trading at $64,000 [1].")
	h.fetcher.records["getData"] = btcRecord(10 * time.Second)

	_, err := h.svc.Answer(context.Background(), "What is Bitcoin?", "s1")
	require.NoError(t, err)

	rsp, err := h.svc.Answer(context.Background(), "what is its current price", "s1")
	require.NoError(t, err)

	assert.Equal(t, "what is Bitcoin's current price", rsp.Resolved)
	assert.Equal(t, string(classifier.Realtime), rsp.Class)
	assert.Equal(t, answer.Answer, rsp.Decision)

	history, err := h.svc.sessions.GetSession(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, 4, history.Conversation().Len())
}

func TestAnswer_CancellationSkipsGeneration(t *testing.T) {
	h := newHarness(t, "Bitcoin is trading at $64,000 [1].")
	h.fetcher.records["getData"] = btcRecord(0)
	h.fetcher.block = make(chan struct{})
	h.fetcher.started = make(chan struct{})
	defer close(h.fetcher.block)

	ctx, cancel := context.WithCancel(context.Background())

	go func() {
		<-h.fetcher.started
		cancel()
	}()

	_, err := h.svc.Answer(ctx, "Current BTC price", "s1")

	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, h.generator.calls.Load())
}

func TestAnswer_CacheCorruptionIsFatal(t *testing.T) {
	h := newHarness(t, "x [1].")
	h.fetcher.err = errs.ErrCacheCorruption

	_, err := h.svc.Answer(context.Background(), "Current BTC price", "s1")
	assert.ErrorIs(t, err, errs.ErrCacheCorruption)
}

func TestAnswer_EmptyQuery(t *testing.T) {
	h := newHarness(t, "x")

	_, err := h.svc.Answer(context.Background(), "   ", "s1")
	assert.ErrorIs(t, err, errs.ErrInvalidQuery)
	assert.Zero(t, h.externalCalls())
}

func TestAnswer_ConcurrentSessions(t *testing.T) {
	h := newHarness(t, "Bitcoin is a decentralized digital currency [1].")

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rsp, err := h.svc.Answer(context.Background(), "What is Bitcoin?", "")
			assert.NoError(t, err)
			assert.Equal(t, answer.Answer, rsp.Decision)
		}()
	}
	wg.Wait()

	assert.Len(t, h.svc.sessions.ListSessionIds(context.Background()), 10)
}
