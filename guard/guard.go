package guard

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/w-h-a/grounded/classifier"
	"github.com/w-h-a/grounded/errs"
	"github.com/w-h-a/grounded/evidence"
	"github.com/w-h-a/grounded/generator"
	"github.com/w-h-a/grounded/marketdata"
	"github.com/w-h-a/grounded/prompt"
	"github.com/w-h-a/grounded/reranker"
)

type State string

const (
	Pending          State = "PENDING"
	ScopeChecked     State = "SCOPE_CHECKED"
	RetrievalChecked State = "RETRIEVAL_CHECKED"
	APIChecked       State = "API_CHECKED"
	Generated        State = "GENERATED"
	CitationChecked  State = "CITATION_CHECKED"
	Answer           State = "ANSWER"
	Caveat           State = "CAVEAT"
	Refuse           State = "REFUSE"
)

func (s State) Terminal() bool {
	return s == Answer || s == Caveat || s == Refuse
}

type Reason string

const (
	OutOfScope           Reason = "out_of_scope"
	InvestmentAdvice     Reason = "investment_advice"
	InsufficientEvidence Reason = "insufficient_evidence"
	RetrievalUnavailable Reason = "retrieval_unavailable"
	RateLimited          Reason = "rate_limited"
	StaleData            Reason = "stale_data"
	IncompleteData       Reason = "incomplete_data"
	GenerationFailure    Reason = "generation_failure"
	CitationMismatch     Reason = "citation_mismatch"
	UncitedClaims        Reason = "uncited_claims"
	Hedged               Reason = "hedged"
	LowConfidence        Reason = "low_confidence"
)

var reasonErrs = map[Reason]error{
	OutOfScope:           errs.ErrScopeRejected,
	InvestmentAdvice:     errs.ErrScopeRejected,
	InsufficientEvidence: errs.ErrInsufficientEvidence,
	RetrievalUnavailable: errs.ErrRetrievalUnavailable,
	RateLimited:          errs.ErrRateLimitExceeded,
	StaleData:            errs.ErrStaleData,
	IncompleteData:       errs.ErrStaleData,
	GenerationFailure:    errs.ErrGenerationFailure,
	CitationMismatch:     errs.ErrCitationMismatch,
	UncitedClaims:        errs.ErrCitationMismatch,
}

// Err maps a reason onto the error taxonomy. Hedging and low confidence
// have no error of their own.
func (r Reason) Err() error {
	return reasonErrs[r]
}

// Report is the guard's verdict for one request.
type Report struct {
	ScopeOK       bool     `json:"scope_ok"`
	RetrievalOK   bool     `json:"retrieval_ok"`
	APIOK         bool     `json:"api_ok"`
	CitationOK    bool     `json:"citation_ok"`
	BestRelevance float64  `json:"best_relevance"`
	Strength      float64  `json:"strength"`
	Freshness     float64  `json:"freshness"`
	Completeness  float64  `json:"citation_completeness"`
	Confidence    float64  `json:"confidence"`
	Decision      State    `json:"decision"`
	Reasons       []Reason `json:"reasons,omitempty"`
	Refusal       Reason   `json:"refusal,omitempty"`
	Path          []State  `json:"path"`
}

func (r Report) Has(reason Reason) bool {
	for _, x := range r.Reasons {
		if x == reason {
			return true
		}
	}
	return false
}

// Err joins the taxonomy errors behind the report's reasons.
func (r Report) Err() error {
	var out []error
	for _, reason := range r.Reasons {
		if err := reason.Err(); err != nil {
			out = append(out, fmt.Errorf("%s: %w", reason, err))
		}
	}
	return errors.Join(out...)
}

// Evidence is what the retrieval stage gathered for the guard to judge.
type Evidence struct {
	Ranked       []reranker.Result
	RetrievalErr error
	Records      []marketdata.Record
	FetchErr     error
	WantsAPI     bool
}

var (
	hedges = regexp.MustCompile(`(?i)\b(i think|i believe|i guess|probably|possibly|perhaps|might be|it seems|i'm not sure|i am not sure|not certain)\b`)

	selfRefusals = regexp.MustCompile(`(?i)(don't|do not) have (enough|sufficient) (verified )?information|cannot answer (that|this)|can't answer (that|this)`)
)

// Machine walks one request through the guard. Each step is valid only
// from the state before it; once a terminal state is reached the remaining
// steps are no-ops.
type Machine struct {
	options  Options
	state    State
	report   Report
	evidence Evidence
	relevant []reranker.Result
	items    []evidence.Item
	raw      string
	text     string
	cited    []int
	flagged  []string
	caveat   bool
}

func (m *Machine) State() State {
	return m.state
}

func (m *Machine) Done() bool {
	return m.state.Terminal()
}

// CheckScope refuses out-of-domain queries and requests for advice before
// anything external is called.
func (m *Machine) CheckScope(scope classifier.Scope) State {
	if !m.step(Pending) {
		return m.state
	}

	if !scope.InScope {
		if scope.Reason == classifier.ReasonInvestmentAdvice {
			return m.refuse(InvestmentAdvice)
		}
		return m.refuse(OutOfScope)
	}

	m.report.ScopeOK = true

	return m.advance(ScopeChecked)
}

// CheckRetrieval requires a knowledge chunk above the relevance floor or,
// for market questions, at least one market record.
func (m *Machine) CheckRetrieval(ev Evidence) State {
	if !m.step(ScopeChecked) {
		return m.state
	}

	m.evidence = ev

	for _, r := range ev.Ranked {
		if r.Relevance > m.report.BestRelevance {
			m.report.BestRelevance = r.Relevance
		}
		if r.Relevance >= m.options.MinRelevance {
			m.relevant = append(m.relevant, r)
		}
	}

	m.report.RetrievalOK = len(m.relevant) > 0
	if !m.report.RetrievalOK {
		m.report.BestRelevance = 0
	}

	if ev.RetrievalErr != nil {
		m.note(RetrievalUnavailable)
	}

	if !m.report.RetrievalOK && !(ev.WantsAPI && len(ev.Records) > 0) {
		if errors.Is(ev.FetchErr, errs.ErrRateLimitExceeded) {
			m.note(RateLimited)
		}
		return m.refuse(InsufficientEvidence)
	}

	return m.advance(RetrievalChecked)
}

// CheckAPI scores the market records. Stale or partial data lowers
// confidence and forces a caveat but never refuses on its own.
func (m *Machine) CheckAPI() State {
	if !m.step(RetrievalChecked) {
		return m.state
	}

	ev := m.evidence
	now := m.options.Clock()

	switch {
	case len(ev.Records) > 0:
		m.report.APIOK = true
		m.report.Freshness = 1
		strength := 1.0

		for _, rec := range ev.Records {
			if f := rec.Freshness(now); f < m.report.Freshness {
				m.report.Freshness = f
			}
			if rec.IsStale(now) {
				m.report.APIOK = false
				m.note(StaleData)
			}
			if !rec.Complete() {
				m.report.APIOK = false
				strength = 0.5
				m.note(IncompleteData)
			}
		}

		m.report.Strength = strength
	case ev.WantsAPI:
		m.report.Freshness = m.options.MissingFreshness
		if errors.Is(ev.FetchErr, errs.ErrRateLimitExceeded) {
			m.note(RateLimited)
		} else {
			m.note(RetrievalUnavailable)
		}
	default:
		m.report.APIOK = true
		m.report.Freshness = 1
	}

	if m.report.BestRelevance > m.report.Strength {
		m.report.Strength = m.report.BestRelevance
	}

	if m.report.Has(StaleData) || m.report.Has(IncompleteData) || (ev.WantsAPI && len(ev.Records) == 0) {
		m.caveat = true
	}

	return m.advance(APIChecked)
}

// Relevant returns the knowledge chunks that cleared the relevance floor.
func (m *Machine) Relevant() []reranker.Result {
	return m.relevant
}

func (m *Machine) Records() []marketdata.Record {
	return m.evidence.Records
}

// Generate asks the generator to answer from items only. It returns an
// error only when ctx is done, in which case no call is made.
func (m *Machine) Generate(ctx context.Context, g generator.Generator, query string, items []evidence.Item) (State, error) {
	if !m.step(APIChecked) {
		return m.state, nil
	}

	if err := ctx.Err(); err != nil {
		return m.state, err
	}

	if len(items) == 0 {
		return m.refuse(InsufficientEvidence), nil
	}

	m.items = items

	text, err := g.Generate(ctx, prompt.Grounded(query, items))
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return m.state, ctxErr
		}
		return m.refuse(GenerationFailure), nil
	}

	m.raw = strings.TrimSpace(text)

	if len(m.raw) == 0 {
		return m.refuse(GenerationFailure), nil
	}

	if selfRefusals.MatchString(m.raw) {
		return m.refuse(InsufficientEvidence), nil
	}

	if hedges.MatchString(m.raw) {
		m.note(Hedged)
		m.caveat = true
	}

	return m.advance(Generated), nil
}

// CheckCitations requires every factual sentence to cite evidence that was
// actually supplied. No valid citation at all refuses; a mix caveats.
func (m *Machine) CheckCitations() State {
	if !m.step(Generated) {
		return m.state
	}

	index := evidence.Index(m.items)
	all := clauses(m.raw)

	var (
		factual int
		valid   int
		cited   = map[int]struct{}{}
		bad     = map[int]bool{}
	)

	for i, c := range all {
		if !c.factual {
			continue
		}
		factual++

		ok := len(c.citations) > 0
		for _, id := range c.citations {
			if _, found := index[id]; !found {
				ok = false
			}
		}

		if !ok {
			bad[i] = true
			m.flagged = append(m.flagged, c.text)
			continue
		}

		valid++
		for _, id := range c.citations {
			cited[id] = struct{}{}
		}
	}

	if factual > 0 {
		m.report.Completeness = float64(valid) / float64(factual)
	}

	for id := range cited {
		m.cited = append(m.cited, id)
	}
	sort.Ints(m.cited)

	if valid == 0 {
		return m.refuse(CitationMismatch)
	}

	m.text = m.raw

	if len(m.flagged) > 0 {
		m.note(UncitedClaims)
		m.caveat = true

		if m.options.StripUncited {
			idx := 0
			m.text = rebuild(all, func(c clause) bool {
				keep := !bad[idx]
				idx++
				return keep
			})
		}
	} else {
		m.report.CitationOK = true
	}

	return m.advance(CitationChecked)
}

// Decide scores confidence and settles the decision. Calling it on a
// refused machine just returns the report.
func (m *Machine) Decide() Report {
	w := m.options.Weights

	if m.state == CitationChecked {
		m.report.Confidence = clamp(
			w.Scope*bool01(m.report.ScopeOK) +
				w.Strength*m.report.Strength +
				w.Freshness*m.report.Freshness +
				w.Citations*m.report.Completeness,
		)

		if m.report.Confidence < m.options.MinConfidence {
			m.note(LowConfidence)
			m.caveat = true
		}

		if m.caveat {
			m.advance(Caveat)
		} else {
			m.advance(Answer)
		}
	}

	m.report.Decision = m.state

	return m.report
}

// Text is the checked answer, with uncited sentences removed when
// stripping is on. Empty unless the decision is ANSWER or CAVEAT.
func (m *Machine) Text() string {
	if m.state != Answer && m.state != Caveat {
		return ""
	}
	return m.text
}

func (m *Machine) Raw() string {
	return m.raw
}

func (m *Machine) Cited() []int {
	return m.cited
}

func (m *Machine) Flagged() []string {
	return m.flagged
}

func (m *Machine) Items() []evidence.Item {
	return m.items
}

func (m *Machine) step(from State) bool {
	if m.state.Terminal() {
		return false
	}
	if m.state != from {
		panic(fmt.Sprintf("guard: step from %s called in state %s", from, m.state))
	}
	return true
}

func (m *Machine) advance(to State) State {
	m.state = to
	m.report.Path = append(m.report.Path, to)
	return to
}

func (m *Machine) refuse(reason Reason) State {
	m.note(reason)
	m.report.Refusal = reason
	m.report.Confidence = 0
	return m.advance(Refuse)
}

func (m *Machine) note(reason Reason) {
	if !m.report.Has(reason) {
		m.report.Reasons = append(m.report.Reasons, reason)
	}
}

func bool01(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func New(opts ...Option) *Machine {
	return &Machine{
		options: NewOptions(opts...),
		state:   Pending,
		report: Report{
			Path: []State{Pending},
		},
	}
}
