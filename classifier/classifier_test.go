package classifier

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScope(t *testing.T) {
	c := New(nil)

	tests := []struct {
		name   string
		query  string
		in     bool
		reason Reason
	}{
		{name: "entity", query: "What is Bitcoin?", in: true},
		{name: "keyword", query: "how do gas fees work", in: true},
		{name: "protocol", query: "Tell me about Uniswap", in: true},
		{name: "weather", query: "What's the weather today?", reason: ReasonOutOfDomain},
		{name: "empty", query: "   ", reason: ReasonOutOfDomain},
		{name: "advice", query: "Should I buy Bitcoin now?", reason: ReasonInvestmentAdvice},
		{name: "prediction", query: "Will ETH go up next week?", reason: ReasonInvestmentAdvice},
		{name: "price target", query: "bitcoin price prediction for 2030", reason: ReasonInvestmentAdvice},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			got := c.Scope(test.query)
			assert.Equal(t, test.in, got.InScope)
			assert.Equal(t, test.reason, got.Reason)
		})
	}
}

func TestClassify(t *testing.T) {
	c := New(nil)

	tests := []struct {
		query string
		class Class
	}{
		{query: "What is Bitcoin?", class: Conceptual},
		{query: "Explain proof of stake", class: Conceptual},
		{query: "What is market cap in crypto?", class: Conceptual},
		{query: "What is the current price of BTC?", class: Realtime},
		{query: "What is Bitcoin's price?", class: Realtime},
		{query: "ETH price", class: Realtime},
		{query: "crypto fear and greed index today", class: Realtime},
		{query: "Show me the RSI for Solana", class: Hybrid},
		{query: "bitcoin price history", class: Hybrid},
		{query: "What's the weather today?", class: OutOfScope},
	}

	for _, test := range tests {
		t.Run(test.query, func(t *testing.T) {
			assert.Equal(t, test.class, c.Classify(test.query).Class)
		})
	}
}

func TestClassify_Calls(t *testing.T) {
	c := New(nil)

	plan := c.Classify("What is the current price of BTC and ETH?")
	require.Equal(t, Realtime, plan.Class)
	require.Len(t, plan.Calls, 1)
	assert.Equal(t, "getData", plan.Calls[0].Endpoint)
	assert.Equal(t, "BTC,ETH", plan.Calls[0].Params["symbol"])
	assert.True(t, plan.NeedsMarketData())
	assert.False(t, plan.NeedsKnowledgeBase())

	plan = c.Classify("bitcoin price history")
	require.Equal(t, Hybrid, plan.Class)
	require.Len(t, plan.Calls, 2)
	assert.Equal(t, "getData", plan.Calls[0].Endpoint)
	assert.Equal(t, "getHistory", plan.Calls[1].Endpoint)
	assert.Equal(t, "30", plan.Calls[1].Params["days"])
	assert.True(t, plan.NeedsKnowledgeBase())

	plan = c.Classify("what are the top crypto prices right now")
	require.Equal(t, Realtime, plan.Class)
	require.Len(t, plan.Calls, 1)
	assert.Equal(t, "getTop", plan.Calls[0].Endpoint)

	plan = c.Classify("What is Bitcoin?")
	assert.Empty(t, plan.Calls)
	assert.Equal(t, []string{"BTC"}, plan.Symbols)
}
