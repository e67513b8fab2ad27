package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/w-h-a/grounded/answer"
	"github.com/w-h-a/grounded/classifier"
	"github.com/w-h-a/grounded/conversation"
	"github.com/w-h-a/grounded/embedder"
	"github.com/w-h-a/grounded/errs"
	"github.com/w-h-a/grounded/evidence"
	"github.com/w-h-a/grounded/generator"
	"github.com/w-h-a/grounded/guard"
	"github.com/w-h-a/grounded/internal/service/session"
	"github.com/w-h-a/grounded/marketdata"
	"github.com/w-h-a/grounded/prompt"
	"github.com/w-h-a/grounded/reranker"
	"github.com/w-h-a/grounded/retriever"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"
)

var tracer = otel.Tracer("github.com/w-h-a/grounded/internal/service/pipeline")

var defaultTopics = []string{"Bitcoin", "Ethereum", "DeFi", "staking", "wallets", "live prices"}

// Service drives one query from reference resolution to a checked answer.
type Service struct {
	options    Options
	sessions   *session.Service
	classifier *classifier.Classifier
	embedder   embedder.Embedder
	retriever  *retriever.Retriever
	reranker   *reranker.Reranker
	fetcher    marketdata.Fetcher
	generator  generator.Generator
}

type gathered struct {
	ranked       []reranker.Result
	retrievalErr error
	records      []marketdata.Record
	fetchErr     error
}

// Answer returns a response for every well-formed query. It errors only for
// an empty query, a cancelled ctx or a corrupted cache.
func (s *Service) Answer(ctx context.Context, query string, sessionId string) (answer.Response, error) {
	query = strings.TrimSpace(query)
	if len(query) == 0 {
		return answer.Response{}, fmt.Errorf("%w: query is required", errs.ErrInvalidQuery)
	}

	ctx, span := tracer.Start(ctx, "pipeline.Answer")
	defer span.End()

	sess, err := s.sessions.CreateSession(ctx, sessionId)
	if err != nil {
		return answer.Response{}, err
	}

	release, err := sess.Acquire(ctx)
	if err != nil {
		return answer.Response{}, err
	}
	defer release()

	conv := sess.Conversation()
	res := conv.Resolve(query)
	plan := s.classifier.Classify(res.Query)

	span.SetAttributes(
		attribute.String("session.id", sess.Id()),
		attribute.String("query.class", string(plan.Class)),
		attribute.Bool("query.resolved", res.Resolved),
	)

	rsp := answer.Response{
		SessionId: sess.Id(),
		Query:     query,
		Class:     string(plan.Class),
	}
	if res.Resolved {
		rsp.Resolved = res.Query
	}

	m := guard.New(append([]guard.Option{guard.WithClock(s.options.Clock)}, s.options.GuardOptions...)...)

	var g gathered

	if m.CheckScope(plan.Scope) != guard.Refuse {
		var err error
		g, err = s.gatherAll(ctx, res.Query, plan)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return answer.Response{}, err
		}

		m.CheckRetrieval(guard.Evidence{
			Ranked:       g.ranked,
			RetrievalErr: g.retrievalErr,
			Records:      g.records,
			FetchErr:     g.fetchErr,
			WantsAPI:     plan.NeedsMarketData(),
		})
		m.CheckAPI()

		items := evidence.Build(m.Relevant(), m.Records(), s.options.MaxContextTokens, s.options.Clock())

		if _, err := s.generate(ctx, m, res.Query, items); err != nil {
			return answer.Response{}, err
		}

		m.CheckCitations()
	}

	report := m.Decide()
	if report.Decision == guard.Refuse {
		rsp.Text = refusal(report, res, g.ranked)
	} else {
		rsp.Text = render(m)
	}

	rsp.Decision = answer.Decision(report.Decision)
	rsp.Confidence = report.Confidence
	rsp.Citations = s.citations(m)
	rsp.Flagged = m.Flagged()
	rsp.Report = &report
	for _, r := range report.Reasons {
		rsp.Reasons = append(rsp.Reasons, string(r))
	}

	now := s.options.Clock()
	conv.Record(conversation.User, res.Query, now)
	conv.Record(conversation.Agent, rsp.Text, now)

	span.SetAttributes(
		attribute.String("answer.decision", string(rsp.Decision)),
		attribute.Float64("answer.confidence", rsp.Confidence),
	)

	slog.InfoContext(ctx, "answered query",
		"session", sess.Id(),
		"class", plan.Class,
		"decision", rsp.Decision,
		"confidence", rsp.Confidence,
		"reasons", rsp.Reasons,
	)

	return rsp, nil
}

// gatherAll runs evidence collection detached from ctx so in-flight calls
// can finish, but stops waiting as soon as ctx is done.
func (s *Service) gatherAll(ctx context.Context, query string, plan classifier.Plan) (gathered, error) {
	type result struct {
		g   gathered
		err error
	}

	done := make(chan result, 1)

	go func() {
		g, err := s.gather(context.WithoutCancel(ctx), query, plan)
		done <- result{g: g, err: err}
	}()

	select {
	case <-ctx.Done():
		slog.WarnContext(ctx, "request abandoned, discarding evidence", "error", ctx.Err())
		return gathered{}, ctx.Err()
	case r := <-done:
		return r.g, r.err
	}
}

func (s *Service) gather(ctx context.Context, query string, plan classifier.Plan) (gathered, error) {
	var (
		g  gathered
		eg errgroup.Group
	)

	if plan.NeedsKnowledgeBase() {
		eg.Go(func() error {
			ranked, err := s.retrieve(ctx, query)
			g.ranked, g.retrievalErr = ranked, err
			return fatal(err)
		})
	}

	if plan.NeedsMarketData() {
		eg.Go(func() error {
			records, err := s.fetch(ctx, plan.Calls)
			g.records, g.fetchErr = records, err
			return fatal(err)
		})
	}

	if err := eg.Wait(); err != nil {
		return gathered{}, err
	}

	if plan.Class == classifier.Realtime && len(g.records) == 0 {
		slog.WarnContext(ctx, "market data unavailable, falling back to knowledge base", "error", g.fetchErr)
		ranked, err := s.retrieve(ctx, query)
		if err := fatal(err); err != nil {
			return gathered{}, err
		}
		g.ranked, g.retrievalErr = ranked, err
	}

	return g, nil
}

func (s *Service) retrieve(ctx context.Context, query string) ([]reranker.Result, error) {
	ctx, span := tracer.Start(ctx, "pipeline.retrieve")
	defer span.End()

	emb, err := s.embedder.Embed(ctx, query)
	if err != nil {
		span.RecordError(err)
		if errors.Is(err, errs.ErrCacheCorruption) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: embedding: %w", errs.ErrRetrievalUnavailable, err)
	}

	results, err := s.retriever.Retrieve(ctx, emb, 2*s.options.TopK, s.options.SimilarityThreshold)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	ranked, err := s.reranker.Rerank(ctx, query, results)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("%w: rerank: %w", errs.ErrRetrievalUnavailable, err)
	}

	span.SetAttributes(attribute.Int("retrieve.candidates", len(results)), attribute.Int("retrieve.ranked", len(ranked)))

	return ranked, nil
}

// fetch calls the planned endpoints concurrently. Records keep plan order;
// the first failure (rate limits first) is reported alongside them.
func (s *Service) fetch(ctx context.Context, calls []classifier.Call) ([]marketdata.Record, error) {
	ctx, span := tracer.Start(ctx, "pipeline.fetch")
	defer span.End()

	var (
		records = make([]*marketdata.Record, len(calls))
		errList = make([]error, len(calls))
		wg      sync.WaitGroup
	)

	for i, call := range calls {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rec, err := s.fetcher.Fetch(ctx, call.Endpoint, call.Params)
			if err != nil {
				slog.WarnContext(ctx, "market data call failed", "endpoint", call.Endpoint, "error", err)
				errList[i] = err
				return
			}
			records[i] = &rec
		}()
	}

	wg.Wait()

	var out []marketdata.Record
	for _, rec := range records {
		if rec != nil {
			out = append(out, *rec)
		}
	}

	var first error
	for _, err := range errList {
		if err == nil {
			continue
		}
		if errors.Is(err, errs.ErrCacheCorruption) {
			return nil, err
		}
		if first == nil || errors.Is(err, errs.ErrRateLimitExceeded) && !errors.Is(first, errs.ErrRateLimitExceeded) {
			first = err
		}
	}

	if first != nil {
		span.RecordError(first)
	}

	span.SetAttributes(attribute.Int("fetch.calls", len(calls)), attribute.Int("fetch.records", len(out)))

	return out, first
}

func (s *Service) generate(ctx context.Context, m *guard.Machine, query string, items []evidence.Item) (guard.State, error) {
	if m.Done() {
		return m.State(), nil
	}

	ctx, span := tracer.Start(ctx, "pipeline.generate")
	defer span.End()

	state, err := m.Generate(ctx, s.generator, query, items)
	if err != nil {
		span.RecordError(err)
		slog.WarnContext(ctx, "request abandoned before generation", "error", err)
	}

	return state, err
}

func render(m *guard.Machine) string {
	text := m.Text()

	if notice := prompt.StaleNotice(m.Items()); len(notice) > 0 {
		text = notice + "\n\n" + text
	}

	return text
}

func refusal(report guard.Report, res conversation.Resolution, ranked []reranker.Result) string {
	switch report.Refusal {
	case guard.OutOfScope:
		if res.Ambiguous {
			return prompt.Ambiguous()
		}
		return prompt.OutOfScope()
	case guard.InvestmentAdvice:
		return prompt.InvestmentAdvice()
	case guard.GenerationFailure:
		return prompt.GenerationFailure()
	case guard.InsufficientEvidence:
		return prompt.InsufficientEvidence(topics(ranked))
	default:
		return prompt.InsufficientEvidence(nil)
	}
}

func (s *Service) citations(m *guard.Machine) []answer.Citation {
	if m.State() != guard.Answer && m.State() != guard.Caveat {
		return nil
	}

	index := evidence.Index(m.Items())

	out := make([]answer.Citation, 0, len(m.Cited()))
	for _, id := range m.Cited() {
		item, ok := index[id]
		if !ok {
			continue
		}
		out = append(out, answer.Citation{
			Id:      id,
			Origin:  string(item.Origin),
			Excerpt: excerpt(item.Text, s.options.ExcerptLength),
			Source:  item.SourceId,
		})
	}

	return out
}

// topics suggests knowledge-base categories near the query, or a default
// list when nothing came close.
func topics(ranked []reranker.Result) []string {
	seen := map[string]struct{}{}
	var out []string
	for _, r := range ranked {
		if len(r.Chunk.Category) == 0 {
			continue
		}
		if _, ok := seen[r.Chunk.Category]; ok {
			continue
		}
		seen[r.Chunk.Category] = struct{}{}
		out = append(out, r.Chunk.Category)
	}

	if len(out) == 0 {
		return defaultTopics
	}

	sort.Strings(out)

	return out
}

func excerpt(text string, n int) string {
	runes := []rune(text)
	if n <= 0 || len(runes) <= n {
		return text
	}
	return strings.TrimSpace(string(runes[:n])) + "..."
}

func fatal(err error) error {
	if errors.Is(err, errs.ErrCacheCorruption) {
		return err
	}
	return nil
}

func New(
	sessions *session.Service,
	cls *classifier.Classifier,
	emb embedder.Embedder,
	ret *retriever.Retriever,
	rr *reranker.Reranker,
	fetcher marketdata.Fetcher,
	gen generator.Generator,
	opts ...Option,
) *Service {
	return &Service{
		options:    NewOptions(opts...),
		sessions:   sessions,
		classifier: cls,
		embedder:   emb,
		retriever:  ret,
		reranker:   rr,
		fetcher:    fetcher,
		generator:  gen,
	}
}
