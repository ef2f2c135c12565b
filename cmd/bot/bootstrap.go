package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"options-trading-bot/internal/advisor"
	"options-trading-bot/internal/advisor/advisorobs"
	"options-trading-bot/internal/advisor/anthropic"
	"options-trading-bot/internal/engine"
	"options-trading-bot/internal/engine/engineobs"
	"options-trading-bot/internal/interfaces"
	"options-trading-bot/internal/logger"
	"options-trading-bot/internal/marketdata"
	"options-trading-bot/internal/news"
	"options-trading-bot/internal/policy"
	"options-trading-bot/internal/store"
	"options-trading-bot/internal/trace"
	"options-trading-bot/internal/tradelog"
	"options-trading-bot/internal/types"

	"github.com/joho/godotenv"
)

// initializeSystem loads the environment and brings up logging and tracing.
func initializeSystem() error {
	_ = godotenv.Load()

	if err := logger.Init(); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	if err := trace.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize tracer: %v\n", err)
	}
	return nil
}

func loadConfig(ctx context.Context) (*store.Config, error) {
	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = "config.yaml"
	}
	cfg, err := store.LoadConfig(path)
	if err != nil {
		logger.ErrorWithErr(ctx, "Failed to load config", err, "path", path)
		return nil, err
	}
	return cfg, nil
}

// compressOldLogs compresses old tradelog files if retention is configured.
func compressOldLogs(ctx context.Context) {
	if v := os.Getenv("TRADER_LOG_RETENTION_DAYS"); v != "" {
		var n int
		fmt.Sscanf(v, "%d", &n)
		if err := tradelog.CompressOlder(n); err != nil {
			logger.Warn(ctx, "Failed to compress old logs", "error", err)
		}
	}
}

// initializeStore picks the position store. DRY_RUN setups usually run on
// the in-memory store; LIVE wants Postgres so positions survive a restart.
func initializeStore(ctx context.Context, cfg *store.Config) (interfaces.PositionStore, func(), error) {
	if cfg.Database.InMemory {
		logger.Info(ctx, "Using in-memory position store",
			"starting_cash", cfg.Database.StartingCash)
		return store.NewMemoryStore(cfg.Database.StartingCash), func() {}, nil
	}

	pg, err := store.NewPostgresStore(cfg.Database.DSN, cfg.Database.StartingCash)
	if err != nil {
		return nil, nil, fmt.Errorf("connect position store: %w", err)
	}
	logger.Info(ctx, "Connected to Postgres position store")
	return pg, func() { _ = pg.Shutdown() }, nil
}

// initializeMarketData builds the provider for the configured mode and puts
// the caching aggregator in front of it.
func initializeMarketData(ctx context.Context, cfg *store.Config) (interfaces.MarketData, error) {
	var fetcher marketdata.Fetcher
	if cfg.Mode == "LIVE" {
		live, err := marketdata.NewLiveProvider(marketdata.LiveConfig{
			BaseURL:            cfg.MarketData.BaseURL,
			APIKey:             os.Getenv(cfg.MarketData.APIKeyEnv),
			RateLimitPerMinute: cfg.MarketData.RateLimitPerMinute,
			DailyCap:           cfg.MarketData.DailyCap,
			TimeoutSeconds:     cfg.MarketData.TimeoutSeconds,
		})
		if err != nil {
			return nil, fmt.Errorf("market data provider: %w", err)
		}
		logger.Info(ctx, "Using LIVE market data", "base_url", cfg.MarketData.BaseURL)
		fetcher = live
	} else {
		logger.Info(ctx, "Using synthetic market data")
		fetcher = marketdata.NewStaticProvider()
	}

	return marketdata.NewAggregator(fetcher, marketdata.AggregatorConfig{
		CacheTTL:         time.Duration(cfg.MarketData.CacheTTLSeconds) * time.Second,
		StaleCeiling:     10 * time.Minute,
		FetchConcurrency: cfg.MarketData.FetchConcurrency,
	}), nil
}

// initializeCompleter picks the reasoning transport. Without an API key the
// noop completer keeps the bot on its deterministic fallbacks.
func initializeCompleter(ctx context.Context, cfg *store.Config) advisor.Completer {
	if os.Getenv("ANTHROPIC_API_KEY") == "" {
		logger.Warn(ctx, "ANTHROPIC_API_KEY not set - advisory service runs on fallback rotation only")
		return advisor.NoopCompleter{}
	}
	return anthropic.NewClient(anthropic.Config{
		Model:     cfg.Advisor.Model,
		MaxTokens: cfg.Advisor.MaxTokens,
		Timeout:   time.Duration(cfg.Advisor.TimeoutSeconds) * time.Second,
	})
}

// initializeAdvisor wires the advisory client with observability.
func initializeAdvisor(completer advisor.Completer, cfg *store.Config) interfaces.Advisor {
	client := advisor.New(completer, advisor.Config{
		DailyQueryBudget: cfg.Advisor.DailyQueryBudget,
		FallbackUniverse: cfg.Universe.Fallback,
		FallbackCashPct:  cfg.Advisor.FallbackCashPercentage,
		Retry: advisor.RetryPolicy{
			MaxRetries:        cfg.Advisor.MaxRetries,
			BackoffBase:       time.Duration(cfg.Advisor.BackoffBaseMs) * time.Millisecond,
			BackoffCap:        time.Duration(cfg.Advisor.BackoffCapMs) * time.Millisecond,
			RateLimitCooldown: time.Duration(cfg.Advisor.RateLimitCooldownSec) * time.Second,
		},
	})
	return advisorobs.Wrap(client)
}

// initializeNews builds the sentiment service, or nil when disabled.
func initializeNews(completer advisor.Completer, cfg *store.Config) engine.SentimentSource {
	if !cfg.News.Enabled {
		return nil
	}
	return news.NewService(completer, news.Config{
		Enabled:      true,
		MaxHeadlines: cfg.News.MaxHeadlines,
		CacheTTL:     time.Duration(cfg.News.CacheMinutes) * time.Minute,
	})
}

// initializeEngine wires the decision engine with observability.
func initializeEngine(posStore interfaces.PositionStore, market interfaces.MarketData,
	adv interfaces.Advisor, sentiment engine.SentimentSource, cfg *store.Config) interfaces.Engine {
	eng := engine.New(posStore, market, adv, sentiment, engine.Config{
		MaxPositions:       cfg.Risk.MaxPositions,
		MaxDailyPositions:  cfg.Risk.MaxDailyPositions,
		MinCashReserve:     cfg.Risk.MinCashReserve,
		MinDTE:             cfg.Risk.MinDTE,
		MaxDTE:             cfg.Risk.MaxDTE,
		DefaultStopLossPct: cfg.Risk.DefaultStopLossPct,
		Sizing: engine.SizingConfig{
			BaseSizePct:    cfg.Risk.BaseSizePct,
			MaxSizePct:     cfg.Risk.MaxSizePct,
			MinPositionUSD: cfg.Risk.MinPositionUSD,
		},
		Confidence: buildThresholds(cfg),
		Universe:   cfg.Universe.Fallback,
	})
	return engineobs.Wrap(eng)
}

// buildThresholds maps the confidence section onto the gate policy.
func buildThresholds(cfg *store.Config) policy.Thresholds {
	th := policy.Thresholds{
		Floor:           cfg.Confidence.Floor,
		Ceiling:         cfg.Confidence.Ceiling,
		LossBoost:       cfg.Confidence.LossBoost,
		DeepLossBoost:   cfg.Confidence.DeepLossBoost,
		WinReduction:    cfg.Confidence.WinReduction,
		LowWinRateBoost: cfg.Confidence.LowWinRateBoost,
		HighWinRateTrim: cfg.Confidence.HighWinRateTrim,
	}
	if len(cfg.Confidence.Bases) > 0 {
		th.Bases = make(map[types.StrategyType]float64, len(cfg.Confidence.Bases))
		for name, base := range cfg.Confidence.Bases {
			th.Bases[types.StrategyType(name)] = base
		}
	}
	return th
}
