package classifier

import (
	"regexp"
	"strings"

	"github.com/w-h-a/grounded/entity"
)

type Class string

const (
	Conceptual Class = "CONCEPTUAL"
	Realtime   Class = "REALTIME"
	Hybrid     Class = "HYBRID"
	OutOfScope Class = "OUT_OF_SCOPE"
)

type Reason string

const (
	ReasonNone             Reason = ""
	ReasonOutOfDomain      Reason = "out_of_domain"
	ReasonInvestmentAdvice Reason = "investment_advice"
)

type Scope struct {
	InScope bool
	Reason  Reason
}

// Call is one market-data request the query needs.
type Call struct {
	Endpoint string
	Params   map[string]string
}

type Plan struct {
	Class   Class
	Scope   Scope
	Symbols []string
	Calls   []Call
}

func (p Plan) NeedsKnowledgeBase() bool {
	return p.Class == Conceptual || p.Class == Hybrid
}

func (p Plan) NeedsMarketData() bool {
	return p.Class == Realtime || p.Class == Hybrid
}

const maxCalls = 4

var (
	domainTerms = []string{
		"bitcoin", "btc", "ethereum", "eth", "blockchain", "blockchains", "crypto", "cryptos",
		"cryptocurrency", "cryptocurrencies", "defi", "nft", "nfts", "mining", "miner", "miners",
		"staking", "wallet", "wallets", "token", "tokens", "coin", "coins", "altcoin", "altcoins",
		"satoshi", "satoshis", "wei", "gwei", "smart contract", "smart contracts", "dapp", "dapps",
		"dao", "daos", "web3", "metamask", "binance", "coinbase", "kraken", "uniswap", "hodl",
		"stablecoin", "stablecoins", "gas fee", "gas fees", "halving", "proof of work",
		"proof of stake", "layer 2", "rollup", "rollups", "airdrop", "memecoin", "fear and greed",
		"hash rate", "hashrate", "seed phrase", "private key", "cold wallet", "hot wallet",
	}

	conceptualTerms = []string{
		"what is", "what are", "explain", "how does", "how do", "why", "definition",
		"meaning", "tell me about", "describe",
	}

	technicalTerms = []string{
		"rsi", "macd", "moving average", "bollinger", "technical", "indicator", "indicators",
		"analysis", "chart", "trend", "support level", "resistance",
	}

	historicalTerms = []string{
		"history", "historical", "past", "previous", "ago", "yesterday", "last week",
		"last month", "last year", "all time high", "ath",
	}

	liveTerms = []string{
		"current", "currently", "right now", "today", "trading at", "now", "latest", "live",
	}

	priceTerms = []string{
		"price", "prices", "cost", "worth", "value", "how much", "market cap", "volume",
	}

	sentimentTerms = []string{"fear", "greed", "sentiment"}
	trendingTerms  = []string{"trending", "top gainers", "top losers"}
	newsTerms      = []string{"news", "headlines"}
	globalTerms    = []string{"dominance", "global market", "total market"}

	advicePatterns = []*regexp.Regexp{
		regexp.MustCompile(`\bshould i (buy|sell|invest|hold|short)\b`),
		regexp.MustCompile(`\b(good|bad|safe|smart) investment\b`),
		regexp.MustCompile(`\bworth (investing|buying)\b`),
		regexp.MustCompile(`\bprice (prediction|forecast|target)\b`),
		regexp.MustCompile(`\bpredict\b`),
		regexp.MustCompile(`\bwill \w+( \w+)? (go up|go down|rise|fall|moon|crash|pump|dump|reach)\b`),
		regexp.MustCompile(`\b(financial|investment) advice\b`),
		regexp.MustCompile(`\bbest (coin|coins|crypto|token|tokens|cryptocurrency) to buy\b`),
		regexp.MustCompile(`\bwhen (should i|to) (buy|sell)\b`),
	}

	contractions = strings.NewReplacer("what's", "what is", "how's", "how is", "it's", "it is", "’", "'")
	punctuation  = regexp.MustCompile(`[^a-z0-9 ]+`)
)

type Classifier struct {
	entities *entity.Catalog
}

// Scope decides whether a query may be answered at all. It never calls
// out of process.
func (c *Classifier) Scope(query string) Scope {
	text := normalize(query)

	if len(strings.TrimSpace(text)) == 0 {
		return Scope{Reason: ReasonOutOfDomain}
	}

	inDomain := containsAny(text, domainTerms) || len(c.entities.Extract(query)) > 0
	if !inDomain {
		return Scope{Reason: ReasonOutOfDomain}
	}

	for _, p := range advicePatterns {
		if p.MatchString(text) {
			return Scope{Reason: ReasonInvestmentAdvice}
		}
	}

	return Scope{InScope: true}
}

func (c *Classifier) Classify(query string) Plan {
	scope := c.Scope(query)
	if !scope.InScope {
		return Plan{Class: OutOfScope, Scope: scope}
	}

	text := normalize(query)
	symbols := c.entities.Symbols(query)

	conceptual := containsAny(text, conceptualTerms)
	technical := containsAny(text, technicalTerms)
	historical := containsAny(text, historicalTerms)
	live := containsAny(text, liveTerms)
	price := containsAny(text, priceTerms)
	sentiment := containsAny(text, sentimentTerms)
	trending := containsAny(text, trendingTerms)
	news := containsAny(text, newsTerms)
	global := containsAny(text, globalTerms)

	market := live || sentiment || trending || news || global || price && (len(symbols) > 0 || !conceptual)

	plan := Plan{Scope: scope, Symbols: symbols}

	switch {
	case (technical || historical) && (len(symbols) > 0 || market):
		plan.Class = Hybrid
	case market:
		plan.Class = Realtime
	default:
		plan.Class = Conceptual
		return plan
	}

	if technical {
		for _, s := range symbols {
			plan.Calls = append(plan.Calls, Call{Endpoint: "getTechnicalAnalysis", Params: map[string]string{"symbol": s}})
		}
	}

	if historical {
		for _, s := range symbols {
			plan.Calls = append(plan.Calls, Call{Endpoint: "getHistory", Params: map[string]string{"symbol": s, "days": "30"}})
		}
	}

	if sentiment {
		plan.Calls = append(plan.Calls, Call{Endpoint: "getFearGreed", Params: map[string]string{}})
	}

	if trending {
		plan.Calls = append(plan.Calls, Call{Endpoint: "getTrending", Params: map[string]string{}})
	}

	if news {
		plan.Calls = append(plan.Calls, Call{Endpoint: "getNews", Params: map[string]string{}})
	}

	if global {
		plan.Calls = append(plan.Calls, Call{Endpoint: "getGlobalData", Params: map[string]string{}})
	}

	if price || live || len(plan.Calls) == 0 {
		if len(symbols) > 0 {
			plan.Calls = append([]Call{{Endpoint: "getData", Params: map[string]string{"symbol": strings.Join(symbols, ",")}}}, plan.Calls...)
		} else if len(plan.Calls) == 0 {
			plan.Calls = append(plan.Calls, Call{Endpoint: "getTop", Params: map[string]string{"limit": "10"}})
		}
	}

	if len(plan.Calls) > maxCalls {
		plan.Calls = plan.Calls[:maxCalls]
	}

	return plan
}

func normalize(text string) string {
	text = contractions.Replace(strings.ToLower(text))
	text = strings.ReplaceAll(text, "'s", "")
	text = punctuation.ReplaceAllString(text, " ")
	return " " + strings.Join(strings.Fields(text), " ") + " "
}

func containsAny(text string, terms []string) bool {
	for _, term := range terms {
		if strings.Contains(text, " "+term+" ") {
			return true
		}
	}
	return false
}

func New(entities *entity.Catalog) *Classifier {
	if entities == nil {
		entities = entity.DefaultCatalog()
	}
	return &Classifier{
		entities: entities,
	}
}
