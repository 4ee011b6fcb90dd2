package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	cfgPkg "github.com/xhad/pagesearch/pkg/config"
	"github.com/xhad/pagesearch/pkg/llm"
	"github.com/xhad/pagesearch/pkg/retrieval"
	"github.com/xhad/pagesearch/server"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("Error loading .env: %v", err)
	}

	var configPath, addr, embedder string
	var warm bool
	flag.StringVar(&configPath, "config", "", "Path to config file")
	flag.StringVar(&addr, "addr", "", "Listen address (default from config or PORT)")
	flag.StringVar(&embedder, "embedder", "", "Embedder backend: hash, ollama or openai")
	flag.BoolVar(&warm, "warm", false, "Load the embedding model before accepting connections")
	flag.Parse()

	cfg, err := cfgPkg.LoadConfig(configPath)
	if err != nil {
		log.Fatal(err)
	}

	// Override config with command line flags if provided
	if addr != "" {
		cfg.Server.Addr = addr
	}
	if embedder != "" {
		cfg.UseEmbedder(embedder)
	}
	if errs := cfg.Validate(); len(errs) > 0 {
		for _, e := range errs {
			log.Printf("config: %v", e)
		}
		log.Fatal("invalid configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	provider := llm.Shared(cfg.Embedder)
	if warm {
		log.Printf("Loading %s embedder", cfg.Embedder.Type)
		if _, err := provider.Embed(ctx, "warm up"); err != nil {
			log.Fatalf("failed to load embedder: %v", err)
		}
	}

	coordinator, err := retrieval.NewCoordinator(provider, retrieval.ConfigFromApp(cfg))
	if err != nil {
		log.Fatal(err)
	}

	srv := server.New(cfg, coordinator, server.WithReadiness(provider.Loaded))
	if err := srv.ListenAndServe(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal(err)
	}
}
