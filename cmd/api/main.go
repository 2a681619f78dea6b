// API server entry point: wires the provider stack, scorer, regime
// service, backtest job manager and optional integrations from
// configuration, then serves HTTP until interrupted.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/ajitpratap0/stockfunk/internal/alerts"
	"github.com/ajitpratap0/stockfunk/internal/api"
	"github.com/ajitpratap0/stockfunk/internal/backtest"
	"github.com/ajitpratap0/stockfunk/internal/cache"
	"github.com/ajitpratap0/stockfunk/internal/config"
	"github.com/ajitpratap0/stockfunk/internal/db"
	"github.com/ajitpratap0/stockfunk/internal/events"
	"github.com/ajitpratap0/stockfunk/internal/executor"
	"github.com/ajitpratap0/stockfunk/internal/llm"
	"github.com/ajitpratap0/stockfunk/internal/marketdata"
	"github.com/ajitpratap0/stockfunk/internal/regime"
	"github.com/ajitpratap0/stockfunk/internal/risk"
	"github.com/ajitpratap0/stockfunk/internal/scoring"
)

func main() {
	configPath := flag.String("config", "", "Path to config.yaml (optional)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Loading configuration failed")
	}

	format := "json"
	if cfg.App.Environment == "development" {
		format = "console"
	}
	config.InitLogger(cfg.App.LogLevel, format)
	log.Info().Str("version", config.Version).Str("environment", cfg.App.Environment).Msg("Starting StockFunk API")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := config.LoadSecrets(ctx, cfg); err != nil {
		log.Fatal().Err(err).Msg("Resolving secrets failed")
	}

	provider, err := buildProvider(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Building market data provider failed")
	}

	exec := executor.New(nil, executor.Config{
		Timeout:     cfg.Agents.Timeout(),
		MaxAttempts: cfg.Agents.MaxRetries,
	})

	regimes := regime.NewService(provider, regime.Config{
		Benchmark:    cfg.Regime.Benchmark,
		LookbackDays: cfg.Regime.LookbackDays,
		TrendCutoff:  cfg.Regime.TrendCutoff,
		VolLow:       cfg.Regime.VolLow,
		VolHigh:      cfg.Regime.VolHigh,
		TTL:          cfg.Regime.TTL(),
	})

	opts := []scoring.Option{
		scoring.WithCache(cache.New[*scoring.Result](cfg.Cache.MaxSize, cfg.Cache.TTL())),
		scoring.WithRegimeService(regimes),
	}
	if cfg.LLM.Enabled() {
		client := llm.NewClient(llm.ClientConfig{
			Endpoint: cfg.LLM.Endpoint,
			APIKey:   cfg.LLM.APIKey,
			Model:    cfg.LLM.Model,
			Timeout:  time.Duration(cfg.LLM.TimeoutSeconds) * time.Second,
		})
		opts = append(opts, scoring.WithNewsEnricher(llm.NewSentimentEnricher(client)))
		log.Info().Str("provider", cfg.LLM.Provider).Msg("News sentiment enrichment enabled")
	}

	scorer, err := scoring.New(provider, exec, scoring.Config{
		AdaptiveWeights: cfg.Weights.Adaptive,
		StaticWeights:   cfg.Weights.Static(),
	}, opts...)
	if err != nil {
		log.Fatal().Err(err).Msg("Building scorer failed")
	}

	sinks, closers := buildSinks(cfg)
	defer func() {
		for _, closeSink := range closers {
			closeSink()
		}
	}()

	jobs, jobsClose, err := buildJobManager(ctx, cfg, provider, scorer, sinks)
	if err != nil {
		log.Fatal().Err(err).Msg("Building backtest job manager failed")
	}
	defer jobsClose()

	server := api.NewServer(cfg.API, scorer, regimes, jobs)

	serverErrors := make(chan error, 1)
	go func() { serverErrors <- server.Start() }()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		log.Error().Err(err).Msg("Server error")
	case sig := <-sigChan:
		log.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Graceful shutdown failed")
		os.Exit(1)
	}
	if jobs != nil {
		jobs.Wait()
	}
	log.Info().Msg("Server stopped")
}

// buildProvider assembles the provider stack: HTTP vendor client,
// optionally wrapped in the Redis read-through cache.
func buildProvider(cfg *config.Config) (marketdata.Provider, error) {
	base, err := marketdata.NewHTTPProvider(marketdata.HTTPProviderConfig{
		BaseURL:           cfg.Provider.BaseURL,
		APIKey:            cfg.Provider.APIKey,
		Timeout:           time.Duration(cfg.Provider.TimeoutSeconds) * time.Second,
		RequestsPerSecond: float64(cfg.Provider.RatePerSecond),
		Burst:             cfg.Provider.RatePerSecond,
	})
	if err != nil {
		return nil, err
	}
	if cfg.Redis.Addr == "" {
		return base, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	log.Info().Str("addr", cfg.Redis.Addr).Msg("Redis provider cache enabled")
	return marketdata.NewCachedProvider(base, client, cfg.Cache.TTL()), nil
}

// buildSinks wires the optional risk event integrations.
func buildSinks(cfg *config.Config) ([]risk.EventSink, []func()) {
	var sinks []risk.EventSink
	var closers []func()

	if cfg.NATS.URL != "" {
		bus, err := events.Connect(cfg.NATS.URL)
		if err != nil {
			log.Error().Err(err).Msg("NATS unavailable, risk events stay local")
		} else {
			sinks = append(sinks, bus)
			closers = append(closers, bus.Close)
		}
	}
	if cfg.Telegram.BotToken != "" && cfg.Telegram.ChatID != 0 {
		notifier, err := alerts.New(cfg.Telegram.BotToken, cfg.Telegram.ChatID)
		if err != nil {
			log.Error().Err(err).Msg("Telegram unavailable, risk alerts disabled")
		} else {
			sinks = append(sinks, notifier)
			closers = append(closers, notifier.Close)
		}
	}
	return sinks, closers
}

// buildJobManager picks the run store: Postgres when DATABASE_URL is
// set, the capped file store otherwise.
func buildJobManager(ctx context.Context, cfg *config.Config, provider marketdata.Provider, scorer *scoring.Scorer, sinks []risk.EventSink) (*backtest.Manager, func(), error) {
	var store backtest.Store
	closeStore := func() {}

	if cfg.Database.URL != "" {
		migrator, err := db.NewMigrator(cfg.Database.URL, "migrations")
		if err != nil {
			return nil, nil, err
		}
		if err := migrator.Up(ctx); err != nil {
			_ = migrator.Close()
			return nil, nil, err
		}
		_ = migrator.Close()

		conn, err := db.New(ctx, cfg.Database.URL)
		if err != nil {
			return nil, nil, err
		}
		store = db.NewRunStore(conn.Pool())
		closeStore = conn.Close
		log.Info().Msg("Backtest runs persisted in Postgres")
	} else {
		fs, err := backtest.NewFileStore(cfg.Backtest.StoreDir, cfg.Backtest.MaxRuns)
		if err != nil {
			return nil, nil, err
		}
		store = fs
		log.Info().Str("dir", cfg.Backtest.StoreDir).Msg("Backtest runs persisted on disk")
	}

	run := backtest.EngineRunner(provider, scorer, sinks...)
	return backtest.NewManager(store, run), closeStore, nil
}
