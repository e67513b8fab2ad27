package lexical

import (
	"context"
	"regexp"
	"strings"

	"github.com/w-h-a/grounded/reranker"
	"github.com/w-h-a/grounded/retriever"
)

const (
	similarityWeight = 0.5
	coverageWeight   = 0.5
	phraseBonus      = 0.1
)

var (
	words = regexp.MustCompile(`[a-z0-9]+`)

	stopwords = map[string]struct{}{
		"a": {}, "an": {}, "and": {}, "are": {}, "as": {}, "at": {}, "be": {}, "by": {}, "can": {},
		"do": {}, "does": {}, "for": {}, "from": {}, "how": {}, "i": {}, "in": {}, "is": {}, "it": {},
		"its": {}, "me": {}, "of": {}, "on": {}, "or": {}, "s": {}, "tell": {}, "that": {}, "the": {},
		"this": {}, "to": {}, "what": {}, "whats": {}, "when": {}, "where": {}, "which": {}, "who": {},
		"why": {}, "with": {}, "work": {}, "explain": {}, "about": {}, "you": {},
	}
)

type lexicalScorer struct {
	options reranker.Options
}

// Score blends vector similarity with how many of the query's content
// terms appear in the chunk, plus a bonus for an adjacent term pair.
func (s *lexicalScorer) Score(ctx context.Context, query string, candidate retriever.Result) (float64, error) {
	terms := Terms(query)
	if len(terms) == 0 {
		return clamp(candidate.Similarity), nil
	}

	text := strings.ToLower(candidate.Chunk.Text)
	tokens := map[string]struct{}{}
	for _, w := range words.FindAllString(text, -1) {
		tokens[w] = struct{}{}
	}

	matched := 0
	for _, t := range terms {
		if has(tokens, t) {
			matched++
		}
	}

	score := similarityWeight*candidate.Similarity + coverageWeight*float64(matched)/float64(len(terms))

	for i := 0; i+1 < len(terms); i++ {
		if strings.Contains(text, terms[i]+" "+terms[i+1]) {
			score += phraseBonus
			break
		}
	}

	return clamp(score), nil
}

// Terms returns the lower-cased content words of text in order.
func Terms(text string) []string {
	var terms []string
	for _, w := range words.FindAllString(strings.ToLower(text), -1) {
		if _, ok := stopwords[w]; ok {
			continue
		}
		terms = append(terms, w)
	}
	return terms
}

func has(tokens map[string]struct{}, term string) bool {
	if _, ok := tokens[term]; ok {
		return true
	}
	if _, ok := tokens[term+"s"]; ok {
		return true
	}
	if strings.HasSuffix(term, "s") {
		if _, ok := tokens[strings.TrimSuffix(term, "s")]; ok {
			return true
		}
	}
	return false
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

func NewScorer(opts ...reranker.Option) reranker.Scorer {
	return &lexicalScorer{
		options: reranker.NewOptions(opts...),
	}
}
