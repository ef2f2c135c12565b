package marketdata

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/sony/gobreaker"

	"options-trading-bot/internal/interfaces"
	"options-trading-bot/internal/logger"
	"options-trading-bot/internal/types"
)

var _ interfaces.MarketData = (*Aggregator)(nil)

type AggregatorConfig struct {
	CacheTTL         time.Duration
	StaleCeiling     time.Duration
	FetchConcurrency int
}

type quoteEntry struct {
	quote     *types.Quote
	err       error
	fetchedAt time.Time
}

type chainEntry struct {
	chain     *types.OptionChain
	err       error
	fetchedAt time.Time
}

// Aggregator is the caching front of the market data layer. Reads are served
// from the TTL cache; misses fetch through a circuit breaker so a failing
// upstream degrades to stale data instead of hammering the provider. Failed
// fetches are cached too, which stops a dead symbol from burning budget
// every cycle.
type Aggregator struct {
	fetcher Fetcher
	cfg     AggregatorConfig
	breaker *gobreaker.CircuitBreaker

	mu     sync.RWMutex
	quotes map[string]*quoteEntry
	chains map[string]*chainEntry

	sem chan struct{}
}

func NewAggregator(fetcher Fetcher, cfg AggregatorConfig) *Aggregator {
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 30 * time.Second
	}
	if cfg.StaleCeiling <= 0 {
		cfg.StaleCeiling = 10 * time.Minute
	}
	if cfg.FetchConcurrency <= 0 {
		cfg.FetchConcurrency = 4
	}
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "marketdata",
		MaxRequests: 2,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})
	return &Aggregator{
		fetcher: fetcher,
		cfg:     cfg,
		breaker: breaker,
		quotes:  make(map[string]*quoteEntry),
		chains:  make(map[string]*chainEntry),
		sem:     make(chan struct{}, cfg.FetchConcurrency),
	}
}

func (a *Aggregator) Quote(ctx context.Context, symbol string) (*types.Quote, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))

	a.mu.RLock()
	entry := a.quotes[symbol]
	a.mu.RUnlock()

	if entry != nil && time.Since(entry.fetchedAt) <= a.cfg.CacheTTL {
		if entry.err != nil {
			return nil, entry.err
		}
		q := *entry.quote
		return &q, nil
	}

	q, err := a.fetchQuote(ctx, symbol)
	if err == nil {
		return q, nil
	}

	// Degrade to the stale value when one exists and is not too old.
	if entry != nil && entry.quote != nil {
		if age := time.Since(entry.fetchedAt); age <= a.cfg.StaleCeiling {
			logger.Warn(ctx, "Serving stale quote after failed refresh",
				"symbol", symbol, "age", age.Round(time.Second).String(), "error", err.Error())
			q := *entry.quote
			return &q, nil
		}
		return nil, newStaleError(symbol, time.Since(entry.fetchedAt))
	}
	return nil, err
}

func (a *Aggregator) Chain(ctx context.Context, symbol string) (*types.OptionChain, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))

	a.mu.RLock()
	entry := a.chains[symbol]
	a.mu.RUnlock()

	if entry != nil && time.Since(entry.fetchedAt) <= a.cfg.CacheTTL {
		if entry.err != nil {
			return nil, entry.err
		}
		return entry.chain, nil
	}

	c, err := a.fetchChain(ctx, symbol)
	if err == nil {
		return c, nil
	}
	if entry != nil && entry.chain != nil {
		if age := time.Since(entry.fetchedAt); age <= a.cfg.StaleCeiling {
			logger.Warn(ctx, "Serving stale chain after failed refresh",
				"symbol", symbol, "age", age.Round(time.Second).String(), "error", err.Error())
			return entry.chain, nil
		}
		return nil, newStaleError(symbol, time.Since(entry.fetchedAt))
	}
	return nil, err
}

// Refresh warms the quote cache for a symbol set with bounded concurrency.
// Per-symbol failures are logged and cached, never propagated; the next
// Quote call for a failed symbol sees the cached error until it expires.
func (a *Aggregator) Refresh(ctx context.Context, symbols []string) {
	var wg sync.WaitGroup
	for _, s := range symbols {
		symbol := strings.ToUpper(strings.TrimSpace(s))
		if symbol == "" {
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			select {
			case a.sem <- struct{}{}:
				defer func() { <-a.sem }()
			case <-ctx.Done():
				return
			}
			if _, err := a.fetchQuote(ctx, symbol); err != nil {
				logger.Debug(ctx, "Quote refresh failed", "symbol", symbol, "error", err.Error())
			}
		}()
	}
	wg.Wait()
}

func (a *Aggregator) fetchQuote(ctx context.Context, symbol string) (*types.Quote, error) {
	res, err := a.breaker.Execute(func() (interface{}, error) {
		return a.fetcher.FetchQuote(ctx, symbol)
	})
	if err != nil {
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			err = newUnavailableError(symbol, "market data circuit open", err)
		}
		// Bad symbols are cached as errors; transient failures are not, so
		// the next call may retry immediately.
		if IsBadSymbol(err) {
			a.mu.Lock()
			a.quotes[symbol] = &quoteEntry{err: err, fetchedAt: time.Now()}
			a.mu.Unlock()
		}
		return nil, err
	}
	q := res.(*types.Quote)
	a.mu.Lock()
	a.quotes[symbol] = &quoteEntry{quote: q, fetchedAt: time.Now()}
	a.mu.Unlock()
	cp := *q
	return &cp, nil
}

func (a *Aggregator) fetchChain(ctx context.Context, symbol string) (*types.OptionChain, error) {
	res, err := a.breaker.Execute(func() (interface{}, error) {
		return a.fetcher.FetchChain(ctx, symbol)
	})
	if err != nil {
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			err = newUnavailableError(symbol, "market data circuit open", err)
		}
		if IsBadSymbol(err) {
			a.mu.Lock()
			a.chains[symbol] = &chainEntry{err: err, fetchedAt: time.Now()}
			a.mu.Unlock()
		}
		return nil, err
	}
	c := res.(*types.OptionChain)
	a.mu.Lock()
	a.chains[symbol] = &chainEntry{chain: c, fetchedAt: time.Now()}
	a.mu.Unlock()
	return c, nil
}
