package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"
	"github.com/w-h-a/grounded/config"
	"github.com/w-h-a/grounded/internal/bootstrap"
	"github.com/w-h-a/grounded/server"
	mcpserver "github.com/w-h-a/grounded/server/mcp"
)

var (
	cfg struct {
		// Config file
		Config string `help:"Path to a TOML config file" default:"" type:"path"`

		// Secrets
		EmbedderKey   string `help:"API Key for the embedder" env:"EMBEDDER_API_KEY" default:""`
		GeneratorKey  string `help:"API Key for the generator" env:"GENERATOR_API_KEY" default:""`
		MarketDataKey string `help:"API Key for the market data source" env:"MARKETDATA_API_KEY" default:""`
	}
)

func main() {
	// Parse inputs
	_ = kong.Parse(&cfg)

	conf, err := config.Load(cfg.Config)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	if len(cfg.EmbedderKey) > 0 {
		conf.Embedder.ApiKey = cfg.EmbedderKey
	}
	if len(cfg.GeneratorKey) > 0 {
		conf.Generator.ApiKey = cfg.GeneratorKey
	}
	if len(cfg.MarketDataKey) > 0 {
		conf.MarketData.ApiKey = cfg.MarketDataKey
	}

	// stdout carries the protocol
	slog.SetDefault(bootstrap.NewLogger(conf.Log, os.Stderr))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, err := bootstrap.New(conf)
	if err != nil {
		log.Fatalf("failed to build pipeline: %v", err)
	}
	defer g.Close()

	scheduler, err := bootstrap.Schedule(ctx, g)
	if err != nil {
		log.Fatalf("failed to schedule maintenance: %v", err)
	}
	scheduler.Start()
	defer scheduler.Stop()

	srv := mcpserver.NewServer(
		server.WithService(g),
	)

	go func() {
		<-ctx.Done()
		srv.Stop(context.Background())
	}()

	if err := srv.Start(); err != nil {
		slog.Error("mcp server failed", "error", err)
	}
}
