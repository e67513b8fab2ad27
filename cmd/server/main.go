package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/w-h-a/grounded/config"
	"github.com/w-h-a/grounded/internal/bootstrap"
	"github.com/w-h-a/grounded/server"
	httpserver "github.com/w-h-a/grounded/server/http"
)

var (
	cfg struct {
		// Config file
		Config string `help:"Path to a TOML config file" default:"" type:"path"`

		// Server config
		Address         string        `help:"Address for the HTTP server" default:":8080"`
		ShutdownTimeout time.Duration `help:"Time allowed for in-flight requests on shutdown" default:"30s"`

		// Secrets
		EmbedderKey    string `help:"API Key for the embedder" env:"EMBEDDER_API_KEY" default:""`
		GeneratorKey   string `help:"API Key for the generator" env:"GENERATOR_API_KEY" default:""`
		MarketDataKey  string `help:"API Key for the market data source" env:"MARKETDATA_API_KEY" default:""`
		VectorStoreDSN string `help:"Location of the vector store, overriding the config file" env:"VECTORSTORE_LOCATION" default:""`
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
	if len(cfg.VectorStoreDSN) > 0 {
		conf.VectorStore.Location = cfg.VectorStoreDSN
	}

	slog.SetDefault(bootstrap.NewLogger(conf.Log, os.Stderr))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Create the answering pipeline
	g, err := bootstrap.New(conf)
	if err != nil {
		log.Fatalf("failed to build pipeline: %v", err)
	}
	defer g.Close()

	// Background maintenance
	scheduler, err := bootstrap.Schedule(ctx, g)
	if err != nil {
		log.Fatalf("failed to schedule maintenance: %v", err)
	}
	scheduler.Start()
	defer scheduler.Stop()

	// Serve
	srv := httpserver.NewServer(
		server.WithLocation(cfg.Address),
		server.WithService(g),
	)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		if err != nil {
			slog.Error("http server failed", "error", err)
		}
	case <-ctx.Done():
		slog.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := srv.Stop(shutdownCtx); err != nil {
			slog.Error("http server forced to shut down", "error", err)
		}
	}
}
