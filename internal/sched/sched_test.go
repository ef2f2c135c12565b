package sched

import (
	"context"
	"sync"
	"testing"
	"time"

	"options-trading-bot/internal/types"
)

type slowEngine struct {
	mu    sync.Mutex
	runs  int
	delay time.Duration
}

func (e *slowEngine) RunSession(ctx context.Context, session string) (*types.CycleOutcome, error) {
	e.mu.Lock()
	e.runs++
	e.mu.Unlock()
	if e.delay > 0 {
		select {
		case <-ctx.Done():
		case <-time.After(e.delay):
		}
	}
	return &types.CycleOutcome{Session: session}, nil
}

type countingMonitor struct {
	mu   sync.Mutex
	runs int
}

func (m *countingMonitor) Tick(ctx context.Context) error {
	m.mu.Lock()
	m.runs++
	m.mu.Unlock()
	return nil
}

type noopMarket struct{}

func (noopMarket) Quote(ctx context.Context, symbol string) (*types.Quote, error) { return nil, nil }
func (noopMarket) Chain(ctx context.Context, symbol string) (*types.OptionChain, error) {
	return nil, nil
}
func (noopMarket) Refresh(ctx context.Context, symbols []string) {}

func mustScheduler(t *testing.T, cfg Config) *Scheduler {
	t.Helper()
	s, err := New(&slowEngine{}, &countingMonitor{}, noopMarket{}, cfg)
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestNextSessionSameDay(t *testing.T) {
	s := mustScheduler(t, Config{Location: time.UTC})

	// Tuesday 07:00: morning session the same day.
	now := time.Date(2026, 3, 10, 7, 0, 0, 0, time.UTC)
	next, label := s.nextSession(now)
	if label != "morning" || next.Day() != 10 || next.Hour() != 8 {
		t.Errorf("Expected morning at 08:00 same day, got %s at %v", label, next)
	}

	// Tuesday 09:00: evening session.
	now = time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	next, label = s.nextSession(now)
	if label != "evening" || next.Hour() != 17 {
		t.Errorf("Expected evening at 17:00, got %s at %v", label, next)
	}

	// Tuesday 18:00: morning the next day.
	now = time.Date(2026, 3, 10, 18, 0, 0, 0, time.UTC)
	next, label = s.nextSession(now)
	if label != "morning" || next.Day() != 11 {
		t.Errorf("Expected morning next day, got %s at %v", label, next)
	}
}

func TestNextSessionSkipsWeekend(t *testing.T) {
	s := mustScheduler(t, Config{Location: time.UTC})

	// Friday 18:00: next session is Monday morning.
	now := time.Date(2026, 3, 13, 18, 0, 0, 0, time.UTC)
	next, label := s.nextSession(now)
	if label != "morning" {
		t.Errorf("Expected morning, got %s", label)
	}
	if next.Weekday() != time.Monday || next.Day() != 16 {
		t.Errorf("Expected Monday the 16th, got %v", next)
	}

	// Saturday noon: still Monday morning.
	now = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	next, _ = s.nextSession(now)
	if next.Weekday() != time.Monday {
		t.Errorf("Expected Monday, got %v", next)
	}
}

func TestInMarketHours(t *testing.T) {
	s := mustScheduler(t, Config{Location: time.UTC})
	cases := []struct {
		t    time.Time
		want bool
	}{
		{time.Date(2026, 3, 10, 9, 29, 0, 0, time.UTC), false},
		{time.Date(2026, 3, 10, 9, 30, 0, 0, time.UTC), true},
		{time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC), true},
		{time.Date(2026, 3, 10, 15, 59, 0, 0, time.UTC), true},
		{time.Date(2026, 3, 10, 16, 0, 0, 0, time.UTC), false},
		{time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC), false}, // Saturday
	}
	for _, tc := range cases {
		if got := s.inMarketHours(tc.t); got != tc.want {
			t.Errorf("inMarketHours(%v): expected %v, got %v", tc.t, tc.want, got)
		}
	}
}

func TestSessionOverlapSkipped(t *testing.T) {
	engine := &slowEngine{delay: 200 * time.Millisecond}
	s, err := New(engine, &countingMonitor{}, noopMarket{}, Config{Location: time.UTC})
	if err != nil {
		t.Fatal(err)
	}

	ctx := context.Background()
	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.runSession(ctx, "morning")
		}()
	}
	wg.Wait()

	engine.mu.Lock()
	defer engine.mu.Unlock()
	if engine.runs != 1 {
		t.Errorf("Expected concurrent session triggers to collapse to 1 run, got %d", engine.runs)
	}
}

func TestMonitorOverlapSkipped(t *testing.T) {
	mon := &countingMonitor{}
	s, err := New(&slowEngine{}, mon, noopMarket{}, Config{Location: time.UTC})
	if err != nil {
		t.Fatal(err)
	}
	// Tuesday noon, inside market hours.
	s.now = func() time.Time { return time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC) }

	// Hold the guard and verify the tick is skipped.
	s.monitorBusy.Store(true)
	s.runMonitor(context.Background())
	if mon.runs != 0 {
		t.Errorf("Expected the pass to be skipped while busy, got %d runs", mon.runs)
	}

	s.monitorBusy.Store(false)
	s.runMonitor(context.Background())
	if mon.runs != 1 {
		t.Errorf("Expected one pass after the guard cleared, got %d", mon.runs)
	}
}

func TestMonitorSkippedOffHours(t *testing.T) {
	mon := &countingMonitor{}
	s, err := New(&slowEngine{}, mon, noopMarket{}, Config{Location: time.UTC})
	if err != nil {
		t.Fatal(err)
	}

	offHours := []time.Time{
		time.Date(2026, 3, 15, 3, 0, 0, 0, time.UTC),  // Sunday 03:00
		time.Date(2026, 3, 10, 7, 0, 0, 0, time.UTC),  // Tuesday pre-open
		time.Date(2026, 3, 10, 18, 0, 0, 0, time.UTC), // Tuesday post-close
	}
	for _, at := range offHours {
		s.now = func() time.Time { return at }
		s.runMonitor(context.Background())
	}
	if mon.runs != 0 {
		t.Errorf("Expected no monitoring passes outside market hours, got %d", mon.runs)
	}

	s.now = func() time.Time { return time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC) }
	s.runMonitor(context.Background())
	if mon.runs != 1 {
		t.Errorf("Expected one pass during market hours, got %d", mon.runs)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	s := mustScheduler(t, Config{
		Location:        time.UTC,
		MonitorInterval: 10 * time.Millisecond,
		RefreshInterval: 10 * time.Millisecond,
	})
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != context.Canceled {
			t.Errorf("Expected context.Canceled, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Scheduler did not stop on cancellation")
	}
}

func TestNewRejectsBadSessionTime(t *testing.T) {
	_, err := New(&slowEngine{}, &countingMonitor{}, noopMarket{}, Config{
		Location: time.UTC,
		Morning:  "8am",
	})
	if err == nil {
		t.Fatal("Expected malformed session time to be rejected")
	}
}
