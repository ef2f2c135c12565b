// Package sched drives the trading clock: two decision sessions on
// weekdays, plus a monitoring pass every half hour and quote refreshes,
// both during market hours only. Every run carries a deadline shorter than
// its interval and an in-flight guard, so a slow run is skipped over, never
// stacked.
package sched

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"options-trading-bot/internal/interfaces"
	"options-trading-bot/internal/logger"
)

type Config struct {
	Morning         string // HH:MM in Location
	Evening         string // HH:MM in Location
	Location        *time.Location
	MonitorInterval time.Duration
	RefreshInterval time.Duration
	SessionTimeout  time.Duration
	RefreshSymbols  []string
}

type Scheduler struct {
	engine  interfaces.Engine
	monitor interfaces.Monitor
	market  interfaces.MarketData
	cfg     Config

	sessionBusy atomic.Bool
	monitorBusy atomic.Bool
	refreshBusy atomic.Bool

	now func() time.Time
}

func New(engine interfaces.Engine, monitor interfaces.Monitor, market interfaces.MarketData, cfg Config) (*Scheduler, error) {
	if cfg.Location == nil {
		loc, err := time.LoadLocation("America/New_York")
		if err != nil {
			return nil, fmt.Errorf("load market timezone: %w", err)
		}
		cfg.Location = loc
	}
	if cfg.Morning == "" {
		cfg.Morning = "08:00"
	}
	if cfg.Evening == "" {
		cfg.Evening = "17:00"
	}
	for _, hhmm := range []string{cfg.Morning, cfg.Evening} {
		if _, err := time.Parse("15:04", hhmm); err != nil {
			return nil, fmt.Errorf("invalid session time %q: %w", hhmm, err)
		}
	}
	if cfg.MonitorInterval <= 0 {
		cfg.MonitorInterval = 30 * time.Minute
	}
	if cfg.RefreshInterval <= 0 {
		cfg.RefreshInterval = time.Minute
	}
	if cfg.SessionTimeout <= 0 || cfg.SessionTimeout >= 4*time.Hour {
		cfg.SessionTimeout = 10 * time.Minute
	}
	return &Scheduler{
		engine:  engine,
		monitor: monitor,
		market:  market,
		cfg:     cfg,
		now:     time.Now,
	}, nil
}

// Run blocks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	logger.Info(ctx, "Scheduler starting",
		"morning", s.cfg.Morning, "evening", s.cfg.Evening,
		"timezone", s.cfg.Location.String(),
		"monitor_interval", s.cfg.MonitorInterval.String(),
		"refresh_interval", s.cfg.RefreshInterval.String())

	monitorTick := time.NewTicker(s.cfg.MonitorInterval)
	defer monitorTick.Stop()
	refreshTick := time.NewTicker(s.cfg.RefreshInterval)
	defer refreshTick.Stop()

	next, label := s.nextSession(s.now())
	sessionTimer := time.NewTimer(time.Until(next))
	defer sessionTimer.Stop()
	logger.Info(ctx, "Next decision session scheduled",
		"session", label, "at", next.Format(time.RFC3339))

	for {
		select {
		case <-ctx.Done():
			logger.Info(ctx, "Scheduler stopping")
			return ctx.Err()

		case <-sessionTimer.C:
			s.runSession(ctx, label)
			next, label = s.nextSession(s.now())
			sessionTimer.Reset(time.Until(next))
			logger.Info(ctx, "Next decision session scheduled",
				"session", label, "at", next.Format(time.RFC3339))

		case <-monitorTick.C:
			s.runMonitor(ctx)

		case <-refreshTick.C:
			s.runRefresh(ctx)
		}
	}
}

func (s *Scheduler) runSession(ctx context.Context, label string) {
	if !s.sessionBusy.CompareAndSwap(false, true) {
		logger.Warn(ctx, "Previous session still running, skipping", "session", label)
		return
	}
	defer s.sessionBusy.Store(false)

	runCtx, cancel := context.WithTimeout(ctx, s.cfg.SessionTimeout)
	defer cancel()
	if _, err := s.engine.RunSession(runCtx, label); err != nil {
		logger.ErrorWithErr(ctx, "Decision session errored", err, "session", label)
	}
}

func (s *Scheduler) runMonitor(ctx context.Context) {
	// Off-hours ticks would spend market data and advisory budget on
	// positions that cannot move.
	if !s.inMarketHours(s.now()) {
		return
	}
	if !s.monitorBusy.CompareAndSwap(false, true) {
		logger.Warn(ctx, "Previous monitoring pass still running, skipping")
		return
	}
	defer s.monitorBusy.Store(false)

	// Deadline under the interval, so a stuck pass cannot collide with the
	// next tick.
	runCtx, cancel := context.WithTimeout(ctx, deadlineFor(s.cfg.MonitorInterval))
	defer cancel()
	if err := s.monitor.Tick(runCtx); err != nil {
		logger.ErrorWithErr(ctx, "Monitoring pass errored", err)
	}
}

func (s *Scheduler) runRefresh(ctx context.Context) {
	if !s.inMarketHours(s.now()) || len(s.cfg.RefreshSymbols) == 0 {
		return
	}
	if !s.refreshBusy.CompareAndSwap(false, true) {
		return
	}
	defer s.refreshBusy.Store(false)

	runCtx, cancel := context.WithTimeout(ctx, deadlineFor(s.cfg.RefreshInterval))
	defer cancel()
	s.market.Refresh(runCtx, s.cfg.RefreshSymbols)
}

func deadlineFor(interval time.Duration) time.Duration {
	if d := interval - time.Second; d > 0 {
		return d
	}
	return interval
}

// nextSession finds the next weekday session strictly after now.
func (s *Scheduler) nextSession(now time.Time) (time.Time, string) {
	now = now.In(s.cfg.Location)
	for day := 0; ; day++ {
		d := now.AddDate(0, 0, day)
		if d.Weekday() == time.Saturday || d.Weekday() == time.Sunday {
			continue
		}
		for _, c := range []struct{ hhmm, label string }{
			{s.cfg.Morning, "morning"},
			{s.cfg.Evening, "evening"},
		} {
			at, _ := time.ParseInLocation("15:04", c.hhmm, s.cfg.Location)
			t := time.Date(d.Year(), d.Month(), d.Day(), at.Hour(), at.Minute(), 0, 0, s.cfg.Location)
			if t.After(now) {
				return t, c.label
			}
		}
	}
}

// inMarketHours reports whether t is inside regular trading hours,
// 09:30-16:00 on weekdays in the market timezone.
func (s *Scheduler) inMarketHours(t time.Time) bool {
	t = t.In(s.cfg.Location)
	switch t.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}
	mins := t.Hour()*60 + t.Minute()
	return mins >= 9*60+30 && mins < 16*60
}
