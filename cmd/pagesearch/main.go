package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/gorilla/websocket"
	"github.com/joho/godotenv"
	cfgPkg "github.com/xhad/pagesearch/pkg/config"
	"github.com/xhad/pagesearch/pkg/highlight"
	"github.com/xhad/pagesearch/pkg/llm"
	"github.com/xhad/pagesearch/pkg/protocol"
	"github.com/xhad/pagesearch/pkg/retrieval"
	"github.com/xhad/pagesearch/pkg/scraper"
)

type Config struct {
	ConfigPath string
	PageURL    string
	PageFile   string
	Remote     string
	Embedder   string
	Query      string
	Threshold  float64
	Verbose    bool
}

func main() {
	_ = godotenv.Load()
	config := parseFlags()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, config, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatal(err)
	}
}

func parseFlags() Config {
	var config Config

	flag.StringVar(&config.ConfigPath, "config", "", "Path to config file")
	flag.StringVar(&config.PageURL, "url", "", "Page URL to search")
	flag.StringVar(&config.PageFile, "file", "", "Local HTML file to search")
	flag.StringVar(&config.Remote, "remote", "", "Orchestrator websocket URL (default: run in process)")
	flag.StringVar(&config.Embedder, "embedder", "", "Embedder backend: hash, ollama or openai")
	flag.StringVar(&config.Query, "q", "", "Run a single query and exit")
	flag.Float64Var(&config.Threshold, "threshold", -2, "Minimum similarity score (default from config)")
	flag.BoolVar(&config.Verbose, "v", false, "Log diagnostics to stderr")
	flag.Parse()

	if config.PageURL == "" && flag.NArg() > 0 {
		config.PageURL = flag.Arg(0)
	}
	return config
}

func loadConfig(config Config) (*cfgPkg.Config, error) {
	cfg, err := cfgPkg.LoadConfig(config.ConfigPath)
	if err != nil {
		return nil, err
	}

	// Override config with command line flags if provided
	if config.Embedder != "" {
		cfg.UseEmbedder(config.Embedder)
	}
	if config.Remote != "" {
		cfg.Server.OrchestratorURL = config.Remote
	}
	if config.Threshold >= -1 {
		cfg.Search.Threshold = config.Threshold
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, fmt.Errorf("invalid configuration: %w", errors.Join(validationErrors(errs)...))
	}
	return cfg, nil
}

func validationErrors(errs []cfgPkg.ValidationError) []error {
	out := make([]error, len(errs))
	for i, e := range errs {
		out[i] = e
	}
	return out
}

func loadPage(ctx context.Context, cfg *cfgPkg.Config, config Config) (*scraper.Page, error) {
	if config.PageFile != "" {
		f, err := os.Open(config.PageFile)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		return scraper.Parse("file://"+config.PageFile, f)
	}
	if config.PageURL == "" {
		return nil, errors.New("a page is required: pass -url or -file")
	}

	s, err := scraper.NewWithConfig(scraper.ConfigFromApp(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize scraper: %v", err)
	}
	return s.Fetch(ctx, config.PageURL)
}

// connect returns a protocol client talking to the configured orchestrator,
// or to one started in process over a pipe.
func connect(ctx context.Context, cfg *cfgPkg.Config, logger *log.Logger) (*protocol.Client, error) {
	if cfg.Server.OrchestratorURL != "" {
		conn, _, err := websocket.DefaultDialer.DialContext(ctx, cfg.Server.OrchestratorURL, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to orchestrator: %v", err)
		}
		ch := protocol.NewWebSocketChannel(conn, protocol.WithReadLimit(cfg.Server.MaxMessageBytes))
		return protocol.NewClient(ch, protocol.WithClientLogger(logger)), nil
	}

	coordinatorCfg := retrieval.ConfigFromApp(cfg)
	coordinatorCfg.Logger = logger
	coordinator, err := retrieval.NewCoordinator(llm.Shared(cfg.Embedder), coordinatorCfg)
	if err != nil {
		return nil, err
	}

	callerEnd, orchestratorEnd := protocol.Pipe()
	orchestrator := protocol.NewOrchestrator(coordinator,
		protocol.WithDefaultThreshold(cfg.Search.Threshold),
		protocol.WithOrchestratorLogger(logger),
	)
	go func() {
		if err := orchestrator.Serve(ctx, orchestratorEnd); err != nil && !errors.Is(err, context.Canceled) {
			logger.Printf("orchestrator stopped: %v", err)
		}
	}()
	return protocol.NewClient(callerEnd, protocol.WithClientLogger(logger)), nil
}

func run(ctx context.Context, config Config, in io.Reader, out io.Writer) error {
	logger := log.New(io.Discard, "", 0)
	if config.Verbose {
		logger = log.New(os.Stderr, "pagesearch: ", log.LstdFlags)
	}

	cfg, err := loadConfig(config)
	if err != nil {
		return err
	}

	done := spin("Loading Page Content")
	page, err := loadPage(ctx, cfg, config)
	done()
	if err != nil {
		return fmt.Errorf("failed to load page: %v", err)
	}
	fragments, err := page.Fragments(ctx)
	if err != nil {
		return err
	}
	color.New(color.FgGreen).Fprintf(out, "✓ Loaded %s\n", describePage(page, len(fragments)))

	client, err := connect(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer client.Close()

	status := newStatusLine(spin)
	session := retrieval.NewSession(client, append(retrieval.SessionOptionsFromApp(cfg),
		retrieval.WithLogger(logger),
		retrieval.WithStateListener(status.update),
	)...)
	defer session.Close()

	go func() {
		select {
		case <-client.Disconnected():
			session.Close()
		case <-ctx.Done():
		}
	}()

	n, err := session.BuildIndex(ctx, fragments)
	if err != nil {
		if session.State() == retrieval.Closed {
			color.New(color.FgRed, color.Bold).Fprintln(out, disconnectNotice)
		}
		return fmt.Errorf("failed to index page: %v", err)
	}
	color.New(color.FgGreen).Fprintf(out, "✓ Indexed %d chunks\n", n)

	highlighter := highlight.New(page.Doc, append(highlight.OptionsFromApp(cfg),
		highlight.WithLogger(logger),
		highlight.WithMarkListener(markLogger(logger)),
	)...)
	r := &repl{
		session:      session,
		highlighter:  highlighter,
		previewWords: cfg.UI.PreviewWords,
		in:           in,
		out:          out,
	}

	if config.Query != "" {
		return r.search(ctx, config.Query)
	}
	return r.run(ctx)
}
