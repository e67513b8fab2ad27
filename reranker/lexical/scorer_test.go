package lexical

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/w-h-a/grounded/retriever"
	"github.com/w-h-a/grounded/vectorstore"
)

func result(text string, sim float64) retriever.Result {
	return retriever.Result{
		Chunk:      vectorstore.KnowledgeChunk{Id: "c", Text: text},
		Similarity: sim,
		Rank:       1,
	}
}

func TestTerms(t *testing.T) {
	assert.Equal(t, []string{"bitcoin"}, Terms("What is Bitcoin?"))
	assert.Equal(t, []string{"proof", "stake"}, Terms("Explain proof of stake"))
	assert.Empty(t, Terms("what is it"))
}

func TestScore(t *testing.T) {
	s := NewScorer()
	ctx := context.Background()

	tests := []struct {
		name  string
		query string
		text  string
		sim   float64
		want  float64
	}{
		{name: "full coverage", query: "What is Bitcoin?", text: "Bitcoin is a decentralized digital currency.", sim: 0.82, want: 0.91},
		{name: "no coverage", query: "What is Bitcoin?", text: "Ethereum runs smart contracts.", sim: 0.6, want: 0.3},
		{name: "plural", query: "how do wallets work", text: "A wallet stores keys.", sim: 0.5, want: 0.75},
		{name: "phrase bonus", query: "what is proof of stake", text: "In proof stake systems validators lock coins.", sim: 0.8, want: 1},
		{name: "stopwords only", query: "what is it", text: "anything", sim: 0.7, want: 0.7},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			got, err := s.Score(ctx, test.query, result(test.text, test.sim))
			require.NoError(t, err)
			assert.InDelta(t, test.want, got, 1e-9)
		})
	}
}

func TestScore_CatchesFalsePositive(t *testing.T) {
	s := NewScorer()
	ctx := context.Background()

	onTopic, err := s.Score(ctx, "How does staking work?", result("Staking locks tokens to secure a network.", 0.55))
	require.NoError(t, err)
	offTopic, err := s.Score(ctx, "How does staking work?", result("Mining uses proof of work.", 0.7))
	require.NoError(t, err)

	assert.Greater(t, onTopic, offTopic)
}
