package evidence

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/w-h-a/grounded/marketdata"
	"github.com/w-h-a/grounded/reranker"
)

type Origin string

const (
	KB  Origin = "KB"
	API Origin = "API"
)

const (
	// charsPerToken approximates the tokenizer of the generation models.
	charsPerToken = 4
	// minTokens is the budget a non-positive maxTokens is raised to.
	minTokens = 1
)

// Item is one citable fact placed in the prompt. For KB items Score is the
// relevance; for API items it is the freshness at build time.
type Item struct {
	CitationId int       `json:"citation_id"`
	Text       string    `json:"text"`
	Origin     Origin    `json:"origin"`
	Score      float64   `json:"score"`
	SourceId   string    `json:"source_id"`
	Category   string    `json:"category,omitempty"`
	Timestamp  time.Time `json:"timestamp,omitempty"`
	Stale      bool      `json:"stale,omitempty"`
	Complete   bool      `json:"complete"`
}

func Tokens(text string) int {
	return (len(text) + charsPerToken - 1) / charsPerToken
}

// Build assembles the evidence block: knowledge chunks by rank, then
// market records newest first, numbered from 1 in that order. It stops at
// the first item that would exceed maxTokens, except that a single
// oversized first item is truncated rather than dropped, so non-empty
// evidence always yields at least one item.
func Build(ranked []reranker.Result, records []marketdata.Record, maxTokens int, now time.Time) []Item {
	candidates := make([]Item, 0, len(ranked)+len(records))

	kb := make([]reranker.Result, len(ranked))
	copy(kb, ranked)
	sort.SliceStable(kb, func(i, j int) bool {
		return kb[i].Rank < kb[j].Rank
	})

	for _, r := range kb {
		candidates = append(candidates, Item{
			Text:     r.Chunk.Text,
			Origin:   KB,
			Score:    r.Relevance,
			SourceId: r.Chunk.Id,
			Category: r.Chunk.Category,
			Complete: true,
		})
	}

	api := make([]marketdata.Record, len(records))
	copy(api, records)
	sort.SliceStable(api, func(i, j int) bool {
		if !api[i].Timestamp.Equal(api[j].Timestamp) {
			return api[i].Timestamp.After(api[j].Timestamp)
		}
		return api[i].Endpoint < api[j].Endpoint
	})

	for _, rec := range api {
		candidates = append(candidates, Item{
			Text:      Render(rec),
			Origin:    API,
			Score:     rec.Freshness(now),
			SourceId:  rec.Endpoint,
			Timestamp: rec.Timestamp,
			Stale:     rec.IsStale(now),
			Complete:  rec.Complete(),
		})
	}

	if len(candidates) == 0 {
		return nil
	}

	if maxTokens < minTokens {
		maxTokens = minTokens
	}

	items := make([]Item, 0, len(candidates))
	used := 0

	for _, item := range candidates {
		cost := Tokens(item.Text)
		if used+cost > maxTokens {
			if len(items) == 0 {
				item.Text = truncate(item.Text, maxTokens*charsPerToken)
				items = append(items, item)
			}
			break
		}
		used += cost
		items = append(items, item)
	}

	for i := range items {
		items[i].CitationId = i + 1
	}

	return items
}

// Render gives a record a stable textual form: endpoint, params, time and
// the data fields in key order.
func Render(rec marketdata.Record) string {
	var sb strings.Builder

	sb.WriteString(rec.Endpoint)

	for _, k := range sortedKeys(rec.Params) {
		fmt.Fprintf(&sb, " %s=%s", k, rec.Params[k])
	}

	fmt.Fprintf(&sb, " (as of %s):", rec.Timestamp.UTC().Format(time.RFC3339))

	keys := make([]string, 0, len(rec.Data))
	for k := range rec.Data {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		fmt.Fprintf(&sb, " %s=%s", k, value(rec.Data[k]))
	}

	return sb.String()
}

// Index maps citation ids to their items.
func Index(items []Item) map[int]Item {
	out := make(map[int]Item, len(items))
	for _, item := range items {
		out[item.CitationId] = item
	}
	return out
}

func truncate(text string, n int) string {
	for n > 0 && !utf8.RuneStart(text[n]) {
		n--
	}
	return text[:n]
}

func value(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(raw)
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
