package entity

import (
	"regexp"
	"sort"
	"strings"
)

type Type string

const (
	Asset    Type = "asset"
	Protocol Type = "protocol"
	Concept  Type = "concept"
)

type Entry struct {
	Canonical string
	Symbol    string
	Type      Type
	Aliases   []string
}

// Mention is one entity found in a piece of text.
type Mention struct {
	Canonical string
	Symbol    string
	Type      Type
	Offset    int
}

var defaultEntries = []Entry{
	{Canonical: "Bitcoin", Symbol: "BTC", Type: Asset, Aliases: []string{"bitcoin", "bitcoins", "btc"}},
	{Canonical: "Ethereum", Symbol: "ETH", Type: Asset, Aliases: []string{"ethereum", "ether", "eth"}},
	{Canonical: "BNB", Symbol: "BNB", Type: Asset, Aliases: []string{"binance coin", "bnb"}},
	{Canonical: "Cardano", Symbol: "ADA", Type: Asset, Aliases: []string{"cardano", "ada"}},
	{Canonical: "Solana", Symbol: "SOL", Type: Asset, Aliases: []string{"solana", "sol"}},
	{Canonical: "XRP", Symbol: "XRP", Type: Asset, Aliases: []string{"ripple", "xrp"}},
	{Canonical: "Polkadot", Symbol: "DOT", Type: Asset, Aliases: []string{"polkadot", "dot"}},
	{Canonical: "Dogecoin", Symbol: "DOGE", Type: Asset, Aliases: []string{"dogecoin", "doge"}},
	{Canonical: "Polygon", Symbol: "MATIC", Type: Asset, Aliases: []string{"polygon", "matic"}},
	{Canonical: "Avalanche", Symbol: "AVAX", Type: Asset, Aliases: []string{"avalanche", "avax"}},
	{Canonical: "Chainlink", Symbol: "LINK", Type: Asset, Aliases: []string{"chainlink"}},
	{Canonical: "Litecoin", Symbol: "LTC", Type: Asset, Aliases: []string{"litecoin", "ltc"}},
	{Canonical: "Uniswap", Symbol: "UNI", Type: Protocol, Aliases: []string{"uniswap"}},
	{Canonical: "Aave", Symbol: "AAVE", Type: Protocol, Aliases: []string{"aave"}},
	{Canonical: "Lido", Symbol: "LDO", Type: Protocol, Aliases: []string{"lido"}},
	{Canonical: "MakerDAO", Symbol: "MKR", Type: Protocol, Aliases: []string{"makerdao", "maker"}},
	{Canonical: "Compound", Symbol: "COMP", Type: Protocol, Aliases: []string{"compound finance"}},
	{Canonical: "Curve", Symbol: "CRV", Type: Protocol, Aliases: []string{"curve finance", "curve"}},
	{Canonical: "DeFi", Type: Concept, Aliases: []string{"defi", "decentralized finance"}},
	{Canonical: "NFTs", Type: Concept, Aliases: []string{"nft", "nfts", "non-fungible token", "non-fungible tokens"}},
	{Canonical: "blockchain", Type: Concept, Aliases: []string{"blockchain", "blockchains"}},
	{Canonical: "mining", Type: Concept, Aliases: []string{"mining", "proof of work"}},
	{Canonical: "staking", Type: Concept, Aliases: []string{"staking", "proof of stake"}},
	{Canonical: "DAOs", Type: Concept, Aliases: []string{"dao", "daos"}},
}

type alias struct {
	pattern *regexp.Regexp
	entry   Entry
}

// Catalog recognises known entities in free text.
type Catalog struct {
	aliases []alias
}

func NewCatalog(entries ...Entry) *Catalog {
	c := &Catalog{}

	for _, e := range entries {
		for _, a := range e.Aliases {
			c.aliases = append(c.aliases, alias{
				pattern: regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(a) + `\b`),
				entry:   e,
			})
		}
	}

	// longer aliases win when they overlap shorter ones
	sort.SliceStable(c.aliases, func(i, j int) bool {
		return len(c.aliases[i].pattern.String()) > len(c.aliases[j].pattern.String())
	})

	return c
}

func DefaultCatalog() *Catalog {
	return NewCatalog(defaultEntries...)
}

// Extract returns distinct entities in text ordered by first appearance.
func (c *Catalog) Extract(text string) []Mention {
	taken := make([]bool, len(text))
	seen := map[string]int{}
	var mentions []Mention

	for _, a := range c.aliases {
		for _, loc := range a.pattern.FindAllStringIndex(text, -1) {
			if overlaps(taken, loc) {
				continue
			}
			for i := loc[0]; i < loc[1]; i++ {
				taken[i] = true
			}

			if idx, ok := seen[a.entry.Canonical]; ok {
				if loc[0] < mentions[idx].Offset {
					mentions[idx].Offset = loc[0]
				}
				continue
			}

			seen[a.entry.Canonical] = len(mentions)
			mentions = append(mentions, Mention{
				Canonical: a.entry.Canonical,
				Symbol:    a.entry.Symbol,
				Type:      a.entry.Type,
				Offset:    loc[0],
			})
		}
	}

	sort.SliceStable(mentions, func(i, j int) bool {
		return mentions[i].Offset < mentions[j].Offset
	})

	return mentions
}

// Symbols returns the tickers of the assets mentioned in text.
func (c *Catalog) Symbols(text string) []string {
	var symbols []string
	for _, m := range c.Extract(text) {
		if m.Type == Asset && len(m.Symbol) > 0 {
			symbols = append(symbols, m.Symbol)
		}
	}
	return symbols
}

func overlaps(taken []bool, loc []int) bool {
	for i := loc[0]; i < loc[1]; i++ {
		if taken[i] {
			return true
		}
	}
	return false
}

func Normalize(text string) string {
	return strings.Join(strings.Fields(strings.ToLower(text)), " ")
}
