package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/w-h-a/grounded/marketdata"
)

// Duration reads TOML strings such as "60s" or "24h".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

type Config struct {
	RAG          RAG          `toml:"rag"`
	Guard        Guard        `toml:"guard"`
	Conversation Conversation `toml:"conversation"`
	Cache        Cache        `toml:"cache"`
	RateLimit    RateLimit    `toml:"ratelimit"`
	Generator    Generator    `toml:"generator"`
	Embedder     Embedder     `toml:"embedder"`
	VectorStore  VectorStore  `toml:"vectorstore"`
	MarketData   MarketData   `toml:"marketdata"`
	Log          Log          `toml:"log"`
}

type RAG struct {
	SimilarityThreshold float64 `toml:"similarity_threshold"`
	TopK                int     `toml:"top_k"`
	MaxContextTokens    int     `toml:"max_context_tokens"`
	Reranker            string  `toml:"reranker"`
}

type Guard struct {
	MinRelevance  float64 `toml:"min_relevance"`
	MinConfidence float64 `toml:"min_confidence"`
	StripUncited  bool    `toml:"strip_uncited"`
}

type Conversation struct {
	WindowSize int      `toml:"window_size"`
	SessionTTL Duration `toml:"session_ttl"`
}

type Cache struct {
	Provider     string   `toml:"provider"`
	Location     string   `toml:"location"`
	Capacity     int      `toml:"capacity"`
	Prefix       string   `toml:"prefix"`
	EmbeddingTTL Duration `toml:"embedding_ttl"`
}

type RateLimit struct {
	Provider  string   `toml:"provider"`
	Location  string   `toml:"location"`
	Limit     int      `toml:"limit"`
	Window    Duration `toml:"window"`
	WarnRatio float64  `toml:"warn_ratio"`
}

type Generator struct {
	Provider          string  `toml:"provider"`
	ApiKey            string  `toml:"api_key"`
	Model             string  `toml:"model"`
	Temperature       float32 `toml:"temperature"`
	MaxTokens         int     `toml:"max_tokens"`
	RequestsPerMinute int     `toml:"requests_per_minute"`
}

type Embedder struct {
	Provider string `toml:"provider"`
	ApiKey   string `toml:"api_key"`
	Model    string `toml:"model"`
}

type VectorStore struct {
	Provider   string `toml:"provider"`
	Location   string `toml:"location"`
	Collection string `toml:"collection"`
	ApiKey     string `toml:"api_key"`
	VectorSize int    `toml:"vector_size"`
	Distance   string `toml:"distance"`
}

type Retry struct {
	MaxRetries int      `toml:"max_retries"`
	Initial    Duration `toml:"initial"`
	Max        Duration `toml:"max"`
}

type Endpoint struct {
	Id             string   `toml:"id"`
	Path           string   `toml:"path"`
	TTL            Duration `toml:"ttl"`
	Required       []string `toml:"required"`
	TimestampField string   `toml:"timestamp_field"`
}

type MarketData struct {
	Provider      string     `toml:"provider"`
	Location      string     `toml:"location"`
	ApiKey        string     `toml:"api_key"`
	SourceId      string     `toml:"source_id"`
	Timeout       Duration   `toml:"timeout"`
	LastKnownTTL  Duration   `toml:"last_known_ttl"`
	Retry         Retry      `toml:"retry"`
	UtcpProviders []string   `toml:"utcp_providers"`
	Endpoints     []Endpoint `toml:"endpoints"`
}

type Log struct {
	File       string `toml:"file"`
	Level      string `toml:"level"`
	MaxSizeMB  int    `toml:"max_size_mb"`
	MaxAgeDays int    `toml:"max_age_days"`
	MaxBackups int    `toml:"max_backups"`
}

// Catalog applies the configured endpoint overrides to the default catalog.
func (m MarketData) Catalog() marketdata.Catalog {
	catalog := marketdata.DefaultCatalog()

	for _, e := range m.Endpoints {
		ep, ok := catalog.Lookup(e.Id)
		if !ok {
			ep = marketdata.Endpoint{Id: e.Id}
		}
		if len(e.Path) > 0 {
			ep.Path = e.Path
		}
		if e.TTL.Duration > 0 {
			ep.TTL = e.TTL.Duration
		}
		if e.Required != nil {
			ep.Required = e.Required
		}
		if len(e.TimestampField) > 0 {
			ep.TimestampField = e.TimestampField
		}
		catalog = catalog.With(ep)
	}

	return catalog
}

func Default() Config {
	return Config{
		RAG: RAG{
			SimilarityThreshold: 0.5,
			TopK:                5,
			MaxContextTokens:    4000,
			Reranker:            "lexical",
		},
		Guard: Guard{
			MinRelevance:  0.35,
			MinConfidence: 0.6,
			StripUncited:  true,
		},
		Conversation: Conversation{
			WindowSize: 10,
			SessionTTL: Duration{time.Hour},
		},
		Cache: Cache{
			Provider:     "memory",
			Capacity:     1000,
			Prefix:       "grounded:",
			EmbeddingTTL: Duration{7 * 24 * time.Hour},
		},
		RateLimit: RateLimit{
			Provider:  "memory",
			Limit:     100000,
			Window:    Duration{30 * 24 * time.Hour},
			WarnRatio: 0.8,
		},
		Generator: Generator{
			Provider:          "openai",
			Temperature:       0.1,
			MaxTokens:         2048,
			RequestsPerMinute: 60,
		},
		Embedder: Embedder{
			Provider: "openai",
		},
		VectorStore: VectorStore{
			Provider:   "memory",
			Collection: "knowledge_chunks",
			VectorSize: 1536,
			Distance:   "Cosine",
		},
		MarketData: MarketData{
			Provider:     "http",
			Location:     "https://freecryptoapi.com/api/v1",
			SourceId:     "freecryptoapi",
			Timeout:      Duration{30 * time.Second},
			LastKnownTTL: Duration{24 * time.Hour},
			Retry: Retry{
				MaxRetries: 3,
				Initial:    Duration{2 * time.Second},
				Max:        Duration{10 * time.Second},
			},
		},
		Log: Log{
			Level:      "info",
			MaxSizeMB:  50,
			MaxAgeDays: 14,
			MaxBackups: 5,
		},
	}
}

// Load decodes path over the defaults. An empty path yields the defaults.
func Load(path string) (Config, error) {
	cfg := Default()

	if len(path) > 0 {
		md, err := toml.DecodeFile(path, &cfg)
		if err != nil {
			return Config{}, fmt.Errorf("failed to decode %s: %w", path, err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			return Config{}, fmt.Errorf("unknown keys in %s: %v", path, undecoded)
		}
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func (c Config) Validate() error {
	var problems []error

	check := func(ok bool, format string, args ...any) {
		if !ok {
			problems = append(problems, fmt.Errorf(format, args...))
		}
	}

	check(c.RAG.TopK > 0, "rag.top_k must be positive")
	check(c.RAG.MaxContextTokens > 0, "rag.max_context_tokens must be positive")
	check(c.RAG.SimilarityThreshold >= -1 && c.RAG.SimilarityThreshold <= 1, "rag.similarity_threshold must be within [-1, 1]")
	check(oneOf(c.RAG.Reranker, "lexical", "llm"), "rag.reranker %q is not supported", c.RAG.Reranker)
	check(c.Guard.MinRelevance >= 0 && c.Guard.MinRelevance <= 1, "guard.min_relevance must be within [0, 1]")
	check(c.Guard.MinConfidence >= 0 && c.Guard.MinConfidence <= 1, "guard.min_confidence must be within [0, 1]")
	check(c.Conversation.WindowSize > 0, "conversation.window_size must be positive")
	check(c.Conversation.SessionTTL.Duration >= 0, "conversation.session_ttl must not be negative")
	check(oneOf(c.Cache.Provider, "memory", "redis"), "cache.provider %q is not supported", c.Cache.Provider)
	check(c.Cache.Capacity > 0, "cache.capacity must be positive")
	check(oneOf(c.RateLimit.Provider, "memory", "sqlite"), "ratelimit.provider %q is not supported", c.RateLimit.Provider)
	check(c.RateLimit.Limit > 0, "ratelimit.limit must be positive")
	check(c.RateLimit.Window.Duration > 0, "ratelimit.window must be positive")
	check(oneOf(c.Generator.Provider, "openai", "anthropic", "google"), "generator.provider %q is not supported", c.Generator.Provider)
	check(oneOf(c.Embedder.Provider, "openai", "google"), "embedder.provider %q is not supported", c.Embedder.Provider)
	check(oneOf(c.VectorStore.Provider, "memory", "postgres", "qdrant", "chromem"), "vectorstore.provider %q is not supported", c.VectorStore.Provider)
	check(oneOf(c.MarketData.Provider, "http", "utcp"), "marketdata.provider %q is not supported", c.MarketData.Provider)
	check(c.MarketData.Retry.MaxRetries >= 0, "marketdata.retry.max_retries must not be negative")

	for _, e := range c.MarketData.Endpoints {
		check(len(e.Id) > 0, "marketdata.endpoints entries need an id")
	}

	return errors.Join(problems...)
}

func oneOf(v string, allowed ...string) bool {
	for _, a := range allowed {
		if v == a {
			return true
		}
	}
	return false
}
