package conversation

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolve_Possessive(t *testing.T) {
	c := New()
	c.Record(User, "What is Bitcoin?", time.Now())

	res := c.Resolve("what is its current price")

	assert.True(t, res.Resolved)
	assert.Equal(t, "what is Bitcoin's current price", res.Query)
	assert.Equal(t, "Bitcoin", res.Referent.Canonical)
}

func TestResolve_Pronoun(t *testing.T) {
	c := New()
	c.Record(User, "tell me about ethereum", time.Now())

	res := c.Resolve("How does it work?")

	assert.True(t, res.Resolved)
	assert.Equal(t, "How does Ethereum work?", res.Query)
}

func TestResolve_TypeReference(t *testing.T) {
	c := New()
	c.Record(User, "Explain Uniswap", time.Now())
	c.Record(User, "What is Solana?", time.Now())

	res := c.Resolve("Who built the protocol?")
	assert.True(t, res.Resolved)
	assert.Equal(t, "Who built Uniswap?", res.Query)

	res = c.Resolve("what is the coin trading at")
	assert.True(t, res.Resolved)
	assert.Equal(t, "what is Solana trading at", res.Query)
}

func TestResolve_LastMentionWins(t *testing.T) {
	c := New()
	c.Record(User, "What is Bitcoin?", time.Now())
	c.Record(User, "What is Ethereum?", time.Now())

	res := c.Resolve("what is its price")
	assert.Equal(t, "what is Ethereum's price", res.Query)
}

func TestResolve_PrefersAssetWithinTurn(t *testing.T) {
	c := New()
	c.Record(User, "How does Bitcoin mining work?", time.Now())

	res := c.Resolve("what is its price")
	assert.True(t, res.Resolved)
	assert.Equal(t, "what is Bitcoin's price", res.Query)
}

func TestRecord_AgentTurnsKeepEntityTable(t *testing.T) {
	c := New()
	c.Record(User, "What is Bitcoin?", time.Now())
	turn := c.Record(Agent, "Bitcoin differs from Ethereum in ...", time.Now())

	assert.Len(t, turn.Entities, 2)
	assert.Equal(t, "what is Bitcoin's price", c.Resolve("what is its price").Query)
}

func TestResolve_Ambiguous(t *testing.T) {
	c := New()
	c.Record(User, "compare bitcoin and ethereum", time.Now())

	res := c.Resolve("what is its price")

	assert.False(t, res.Resolved)
	assert.True(t, res.Ambiguous)
	assert.Equal(t, "what is its price", res.Query)
}

func TestResolve_ExplicitEntityPassesThrough(t *testing.T) {
	asset := New()
	asset.Record(User, "What is Bitcoin?", time.Now())

	protocol := New()
	protocol.Record(User, "Explain Uniswap", time.Now())

	tests := []struct {
		c     *Conversation
		query string
	}{
		{c: asset, query: "is Solana faster than it"},
		{c: asset, query: "What is Ethereum and how does it work?"},
		{c: asset, query: "is Bitcoin older than its forks"},
		{c: protocol, query: "how does it compare to Uniswap"},
		{c: protocol, query: "Is the protocol safer than Aave?"},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			res := tt.c.Resolve(tt.query)
			assert.False(t, res.Resolved)
			assert.Equal(t, tt.query, res.Query)
		})
	}
}

func TestResolve_MixedTypes(t *testing.T) {
	c := New()
	c.Record(User, "What is Bitcoin?", time.Now())

	tests := []struct {
		query string
		want  string
	}{
		{query: "How does it compare to Ethereum?", want: "How does Bitcoin compare to Ethereum?"},
		{query: "Is it used in DeFi?", want: "Is Bitcoin used in DeFi?"},
		{query: "what is its role in mining", want: "what is Bitcoin's role in mining"},
		{query: "Is the coin used on Uniswap?", want: "Is Bitcoin used on Uniswap?"},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			res := c.Resolve(tt.query)
			assert.True(t, res.Resolved)
			assert.Equal(t, tt.want, res.Query)
			assert.Equal(t, "Bitcoin", res.Referent.Canonical)
		})
	}
}

func TestResolve_NoHistory(t *testing.T) {
	c := New()

	res := c.Resolve("what is its price")
	assert.False(t, res.Resolved)
	assert.False(t, res.Ambiguous)
	assert.Equal(t, "what is its price", res.Query)
}

func TestResolve_OutsideWindow(t *testing.T) {
	c := New(WithWindowSize(2))
	c.Record(User, "What is Bitcoin?", time.Now())
	c.Record(User, "hello", time.Now())
	c.Record(User, "thanks", time.Now())

	res := c.Resolve("what is its price")
	assert.False(t, res.Resolved)
}

func TestRecord_Window(t *testing.T) {
	c := New(WithWindowSize(3))

	for i := 1; i <= 5; i++ {
		q := fmt.Sprintf("q%d", i)
		turn := c.Record(User, q, time.Now())
		assert.Equal(t, i, turn.Index)
	}

	history := c.History()
	require.Len(t, history, 3)
	assert.Equal(t, "q3", history[0].Text)
	assert.Equal(t, "q5", history[2].Text)
	assert.Equal(t, 5, history[2].Index)
}

func TestClear(t *testing.T) {
	c := New()
	c.Record(User, "What is Bitcoin?", time.Now())
	c.Clear()

	assert.Equal(t, 0, c.Len())
	assert.False(t, c.Resolve("what is its price").Resolved)

	turn := c.Record(User, "q", time.Now())
	assert.Equal(t, 2, turn.Index)
}

func TestRecord_Concurrent(t *testing.T) {
	c := New()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Record(User, "What is Bitcoin?", time.Now())
			c.Resolve("what is its price")
		}()
	}
	wg.Wait()

	history := c.History()
	require.Len(t, history, 10)
	assert.Equal(t, 50, history[9].Index)
}
