package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"web-search-chat/internal/answer"
	"web-search-chat/internal/config"
	"web-search-chat/internal/crawler"
	"web-search-chat/internal/history"
	"web-search-chat/internal/ollama"
	"web-search-chat/internal/retrieval"
	"web-search-chat/internal/searxng"
	"web-search-chat/internal/server"
	"web-search-chat/internal/tavily"
)

func newServeCommand() *cobra.Command {
	var (
		listen      string
		model       string
		ollamaURL   string
		provider    string
		searxngURL  string
		maxResults  int
		timeoutSecs int
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the chat websocket server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			flags := cmd.Flags()
			if flags.Changed("listen") {
				cfg.ListenAddr = listen
			}
			if flags.Changed("model") {
				cfg.ModelName = model
			}
			if flags.Changed("ollama-url") {
				cfg.OllamaURL = ollamaURL
			}
			if flags.Changed("provider") {
				cfg.SearchProvider = provider
			}
			if flags.Changed("searxng-url") {
				cfg.SearXNGURL = searxngURL
			}
			if flags.Changed("max-results") {
				cfg.MaxResults = maxResults
			}
			if flags.Changed("timeout") {
				cfg.OllamaTimeout = time.Duration(timeoutSecs) * time.Second
			}

			if err := cfg.Validate(); err != nil {
				return errors.Wrap(err, "configuration error")
			}
			return runServer(cmd.Context(), cfg)
		},
	}

	defaults := config.NewConfig()
	cmd.Flags().StringVar(&listen, "listen", defaults.ListenAddr, "Address to listen on")
	cmd.Flags().StringVar(&model, "model", defaults.ModelName, "Ollama model name")
	cmd.Flags().StringVar(&ollamaURL, "ollama-url", defaults.OllamaURL, "Ollama API URL")
	cmd.Flags().StringVar(&provider, "provider", defaults.SearchProvider, "Search provider (searxng or tavily)")
	cmd.Flags().StringVar(&searxngURL, "searxng-url", defaults.SearXNGURL, "SearXNG instance URL")
	cmd.Flags().IntVar(&maxResults, "max-results", defaults.MaxResults, "Maximum search results per query")
	cmd.Flags().IntVar(&timeoutSecs, "timeout", int(defaults.OllamaTimeout/time.Second), "Ollama request timeout in seconds")
	return cmd
}

// loadConfig layers defaults, the config file and the environment
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.NewConfig()

	path, _ := cmd.Flags().GetString("config")
	if path != "" {
		if err := cfg.LoadFile(path); err != nil {
			return nil, err
		}
	}
	cfg.ApplyEnv()

	level, _ := cmd.Flags().GetString("log-level")
	if level != "" {
		cfg.LogLevel = level
	}
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		cfg.Verbose = true
	}
	if err := setupLogging(cfg.LogLevel, cfg.Verbose); err != nil {
		return nil, errors.Wrap(err, "log level")
	}
	return cfg, nil
}

func runServer(parent context.Context, cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	ollamaClient := ollama.NewClient(cfg.OllamaURL, cfg.OllamaTimeout)

	// Health checks
	checkCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := ollamaClient.HealthCheck(checkCtx); err != nil {
		log.Error().Msg("make sure Ollama is running: ollama serve")
		return err
	}
	if err := ollamaClient.CheckModel(checkCtx, cfg.ModelName); err != nil {
		return err
	}

	provider, err := buildProvider(checkCtx, cfg)
	if err != nil {
		return err
	}

	webCrawler := crawler.NewCrawler(cfg.CrawlTimeout, cfg.MaxCrawlers, cfg.MaxContentSize, cfg.MaxContentWords, cfg.UserAgent)
	retriever := retrieval.NewRetriever(provider, webCrawler, cfg.MaxResults)
	generator := answer.NewGenerator(ollamaClient, cfg.ModelName)

	srv := server.NewServer(server.Options{
		Addr:           cfg.ListenAddr,
		WSPath:         cfg.WSPath,
		AllowedOrigins: cfg.AllowedOrigins,
	}, history.NewRegistry(), retriever, generator)

	log.Info().
		Str("addr", cfg.ListenAddr).
		Str("path", cfg.WSPath).
		Str("model", cfg.ModelName).
		Str("provider", cfg.SearchProvider).
		Msg("collaborators ready")
	return srv.Run(ctx)
}

// buildProvider returns the configured search provider. An unreachable
// SearXNG instance only warns so the server can start before it.
func buildProvider(ctx context.Context, cfg *config.Config) (retrieval.SearchProvider, error) {
	switch cfg.SearchProvider {
	case config.ProviderTavily:
		return retrieval.Tavily{Client: tavily.NewClient(cfg.TavilyAPIKey, cfg.TavilyDepth, cfg.SearchTimeout)}, nil
	case config.ProviderSearXNG:
		client := searxng.NewClient(cfg.SearXNGURL, cfg.SearchTimeout, cfg.UserAgent)
		if err := client.HealthCheck(ctx); err != nil {
			log.Warn().Err(err).Str("url", cfg.SearXNGURL).Msg("SearXNG check failed, queries will fail until it is reachable")
		}
		return retrieval.SearXNG{Client: client}, nil
	default:
		return nil, errors.Errorf("unknown search provider %q", cfg.SearchProvider)
	}
}
