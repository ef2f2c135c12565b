package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"options-trading-bot/internal/types"
)

// Fetcher is the upstream half of the market data layer: one uncached fetch
// per call. The Aggregator owns caching and fan-out on top of it.
type Fetcher interface {
	FetchQuote(ctx context.Context, symbol string) (*types.Quote, error)
	FetchChain(ctx context.Context, symbol string) (*types.OptionChain, error)
}

type LiveConfig struct {
	BaseURL            string
	APIKey             string
	RateLimitPerMinute int
	DailyCap           int
	TimeoutSeconds     int
	MaxRetries         int
	BackoffBaseMs      int
}

// LiveProvider fetches quotes and option chains from the HTTP data provider.
// It enforces a per-minute rate limit and a daily request budget; when the
// budget is spent every fetch fails with a rate limit error and the caller
// degrades to cached values.
type LiveProvider struct {
	cfg     LiveConfig
	client  *http.Client
	limiter *rate.Limiter

	mu              sync.Mutex
	requestsToday   int
	budgetResetTime time.Time
}

func NewLiveProvider(cfg LiveConfig) (*LiveProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("market data API key is required")
	}
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("market data base URL is required")
	}
	if cfg.RateLimitPerMinute <= 0 {
		cfg.RateLimitPerMinute = 60
	}
	if cfg.DailyCap <= 0 {
		cfg.DailyCap = 500
	}
	if cfg.TimeoutSeconds <= 0 {
		cfg.TimeoutSeconds = 10
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.BackoffBaseMs <= 0 {
		cfg.BackoffBaseMs = 1000
	}
	return &LiveProvider{
		cfg:             cfg,
		client:          &http.Client{Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second},
		limiter:         rate.NewLimiter(rate.Limit(float64(cfg.RateLimitPerMinute)/60), 1),
		budgetResetTime: time.Now().Add(24 * time.Hour),
	}, nil
}

func (p *LiveProvider) FetchQuote(ctx context.Context, symbol string) (*types.Quote, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return nil, newBadSymbolError(symbol, "empty symbol")
	}
	body, err := p.request(ctx, symbol, "quote")
	if err != nil {
		return nil, err
	}
	var q types.Quote
	if err := json.Unmarshal(body, &q); err != nil {
		return nil, newProviderError(symbol, "failed to parse quote", err)
	}
	if q.Symbol == "" {
		return nil, newBadSymbolError(symbol, "no quote data returned")
	}
	if q.Timestamp.IsZero() {
		q.Timestamp = time.Now()
	}
	return &q, nil
}

func (p *LiveProvider) FetchChain(ctx context.Context, symbol string) (*types.OptionChain, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return nil, newBadSymbolError(symbol, "empty symbol")
	}
	body, err := p.request(ctx, symbol, "chain")
	if err != nil {
		return nil, err
	}
	var c types.OptionChain
	if err := json.Unmarshal(body, &c); err != nil {
		return nil, newProviderError(symbol, "failed to parse chain", err)
	}
	if len(c.Legs) == 0 {
		return nil, newBadSymbolError(symbol, "empty option chain")
	}
	return &c, nil
}

// request runs one budgeted, rate limited GET with bounded retries. Retries
// use exponential backoff with jitter; 4xx responses other than 429 are not
// retried.
func (p *LiveProvider) request(ctx context.Context, symbol, endpoint string) ([]byte, error) {
	if !p.spendBudget() {
		return nil, newRateLimitError(symbol, "daily request budget exhausted")
	}
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, newUnavailableError(symbol, "rate limit wait cancelled", err)
	}

	u := fmt.Sprintf("%s/v1/%s?%s", strings.TrimRight(p.cfg.BaseURL, "/"), endpoint,
		url.Values{"symbol": {symbol}, "apikey": {p.cfg.APIKey}}.Encode())

	var lastErr error
	for attempt := 0; attempt < p.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(p.cfg.BackoffBaseMs*(1<<(attempt-1))) * time.Millisecond
			jitter := time.Duration(rand.Int63n(int64(backoff)/4 + 1))
			select {
			case <-ctx.Done():
				return nil, newUnavailableError(symbol, "cancelled during backoff", ctx.Err())
			case <-time.After(backoff + jitter):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return nil, newProviderError(symbol, "failed to build request", err)
		}
		resp, err := p.client.Do(req)
		if err != nil {
			lastErr = newUnavailableError(symbol, "request failed", err)
			continue
		}
		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = newUnavailableError(symbol, "failed to read response", err)
			continue
		}

		switch {
		case resp.StatusCode == http.StatusTooManyRequests:
			lastErr = newRateLimitError(symbol, "provider rate limit")
			continue
		case resp.StatusCode == http.StatusNotFound:
			return nil, newBadSymbolError(symbol, "unknown symbol")
		case resp.StatusCode >= 400 && resp.StatusCode < 500:
			return nil, newProviderError(symbol,
				fmt.Sprintf("HTTP %d: %s", resp.StatusCode, string(body)), nil)
		case resp.StatusCode != http.StatusOK:
			lastErr = newProviderError(symbol,
				fmt.Sprintf("HTTP %d: %s", resp.StatusCode, string(body)), nil)
			continue
		}
		return body, nil
	}
	return nil, lastErr
}

// spendBudget consumes one request from the daily budget, rolling the window
// when a day has passed.
func (p *LiveProvider) spendBudget() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if time.Now().After(p.budgetResetTime) {
		p.requestsToday = 0
		p.budgetResetTime = time.Now().Add(24 * time.Hour)
	}
	if p.requestsToday >= p.cfg.DailyCap {
		return false
	}
	p.requestsToday++
	return true
}

// BudgetStatus reports daily budget usage.
func (p *LiveProvider) BudgetStatus() (used, total int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.requestsToday, p.cfg.DailyCap
}
