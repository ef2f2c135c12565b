package main

import (
	"context"
	"errors"
	"log"
	"os/signal"
	"syscall"
	"time"

	"options-trading-bot/internal/logger"
	"options-trading-bot/internal/monitor"
	"options-trading-bot/internal/sched"
	"options-trading-bot/internal/trace"
)

func main() {
	if err := initializeSystem(); err != nil {
		log.Fatal(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig(ctx)
	if err != nil {
		log.Fatal(err)
	}
	if cfg.Mode == "DRY_RUN" {
		logger.Warn(ctx, "Running in DRY_RUN mode - no real orders are placed")
	}
	compressOldLogs(ctx)

	posStore, closeStore, err := initializeStore(ctx, cfg)
	if err != nil {
		log.Fatal(err)
	}
	defer closeStore()

	market, err := initializeMarketData(ctx, cfg)
	if err != nil {
		log.Fatal(err)
	}

	completer := initializeCompleter(ctx, cfg)
	adv := initializeAdvisor(completer, cfg)
	sentiment := initializeNews(completer, cfg)
	eng := initializeEngine(posStore, market, adv, sentiment, cfg)

	mon := monitor.New(posStore, market, adv, monitor.Config{
		ExpiryCloseDTE: cfg.Monitor.ExpiryCloseDTE,
		MaxHoldingDays: cfg.Monitor.MaxHoldingDays,
	})

	loc, err := time.LoadLocation(cfg.Sessions.Timezone)
	if err != nil {
		log.Fatal(err)
	}
	scheduler, err := sched.New(eng, mon, market, sched.Config{
		Morning:         cfg.Sessions.Morning,
		Evening:         cfg.Sessions.Evening,
		Location:        loc,
		MonitorInterval: time.Duration(cfg.Monitor.IntervalMinutes) * time.Minute,
		RefreshInterval: time.Duration(cfg.MarketData.RefreshSeconds) * time.Second,
		RefreshSymbols:  cfg.Universe.Fallback,
	})
	if err != nil {
		log.Fatal(err)
	}

	logger.Info(ctx, "Bot started", "mode", cfg.Mode)
	if err := scheduler.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.ErrorWithErr(ctx, "Scheduler exited", err)
	}

	logger.Info(context.Background(), "Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = trace.Shutdown(shutdownCtx)
	_ = logger.Shutdown(shutdownCtx)
}
