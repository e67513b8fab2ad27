package main

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/alecthomas/kong"
	"github.com/w-h-a/grounded/config"
	"github.com/w-h-a/grounded/internal/bootstrap"
)

var (
	cfg struct {
		// Config file
		Config string `help:"Path to a TOML config file" default:"" type:"path"`

		// Embedder config
		EmbedderKey string `help:"API Key for the embedder" env:"EMBEDDER_API_KEY" default:""`
		Embedder    string `help:"Model identifier for embedder" default:"text-embedding-3-small"`

		// Generator config
		GeneratorKey string `help:"API Key for the generator" env:"GENERATOR_API_KEY" default:""`
		Generator    string `help:"Model identifier for generator" default:"gpt-4o-mini"`

		// Knowledge base config
		VectorStore string `help:"Location of the knowledge base vector store" default:""`

		// Market data config
		MarketDataKey string `help:"API Key for the market data source" env:"MARKETDATA_API_KEY" default:""`

		// Session config
		SessionId string `help:"Optional fixed session identifier" default:""`
		Verbose   bool   `help:"Print the guard report after every answer" default:"false"`
	}
)

func main() {
	// Parse inputs
	_ = kong.Parse(&cfg)
	ctx := context.Background()

	conf, err := config.Load(cfg.Config)
	if err != nil {
		log.Fatalf("❌ failed to load config: %v", err)
	}

	conf.Embedder.ApiKey = cfg.EmbedderKey
	conf.Embedder.Model = cfg.Embedder
	conf.Generator.ApiKey = cfg.GeneratorKey
	conf.Generator.Model = cfg.Generator
	if len(cfg.MarketDataKey) > 0 {
		conf.MarketData.ApiKey = cfg.MarketDataKey
	}
	if len(cfg.VectorStore) > 0 {
		conf.VectorStore.Location = cfg.VectorStore
	}

	g, err := bootstrap.New(conf)
	if err != nil {
		log.Fatalf("❌ failed to build pipeline: %v", err)
	}
	defer g.Close()

	sessionId, err := g.CreateSession(ctx, cfg.SessionId)
	if err != nil {
		log.Fatalf("❌ failed to start session: %v", err)
	}
	defer g.DeleteSession(ctx, sessionId)

	fmt.Println("Grounded quickstart. Ask a crypto question and press enter.")
	fmt.Printf("✅ Started Session: %s\n", sessionId)

	reader := bufio.NewReader(os.Stdin)

	for {
		fmt.Print("> ")
		input, err := reader.ReadString('\n')
		if err != nil {
			fmt.Println("Goodbye!")
			return
		}
		input = strings.TrimSpace(input)
		if len(input) == 0 {
			fmt.Println("Goodbye!")
			return
		}

		if input == "/usage" {
			usage, err := g.Usage(ctx)
			if err != nil {
				fmt.Println("Error reading usage:", err)
				continue
			}
			fmt.Printf("📊 %s: %d/%d requests (%.1f%%), resets %s\n", usage.SourceId, usage.Used, usage.Limit, usage.PercentageUsed, usage.ResetAt.Format("2006-01-02"))
			continue
		}

		rsp, err := g.Answer(ctx, input, sessionId)
		if err != nil {
			fmt.Println("Error answering:", err)
			continue
		}

		if len(rsp.Resolved) > 0 && rsp.Resolved != rsp.Query {
			fmt.Printf("🔎 Interpreted as: %s\n", rsp.Resolved)
		}

		fmt.Printf("%s\n", rsp.Text)
		fmt.Printf("[%s, confidence %.2f]\n", rsp.Decision, rsp.Confidence)

		for _, c := range rsp.Citations {
			fmt.Printf("  [%d] (%s) %s\n", c.Id, c.Origin, c.Excerpt)
		}

		if len(rsp.Flagged) > 0 {
			fmt.Printf("⚠️  Removed %d uncited statement(s)\n", len(rsp.Flagged))
		}

		if cfg.Verbose && rsp.Report != nil {
			fmt.Printf("  reasons=%v path=%v\n", rsp.Reasons, rsp.Report.Path)
		}

		fmt.Println("---")
	}
}
