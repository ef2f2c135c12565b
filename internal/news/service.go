// Package news supplies headline sentiment for the proposal round. Sentiment
// is scraped and scored per symbol, cached with a TTL, and degraded to
// neutral on any failure; the decision loop never blocks on a news outage.
package news

import (
	"context"
	"sync"
	"time"

	"options-trading-bot/internal/engine"
	"options-trading-bot/internal/logger"
	"options-trading-bot/internal/types"
)

var _ engine.SentimentSource = (*Service)(nil)

// headlineFetcher is what the service needs from the scraper.
type headlineFetcher interface {
	Fetch(ctx context.Context, symbol string, maxArticles int) ([]types.NewsArticle, error)
}

type Config struct {
	Enabled        bool
	MaxHeadlines   int
	CacheTTL       time.Duration
	ScraperTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		Enabled:        true,
		MaxHeadlines:   10,
		CacheTTL:       time.Hour,
		ScraperTimeout: 30 * time.Second,
	}
}

type Service struct {
	fetcher  headlineFetcher
	analyzer *Analyzer
	cache    *sentimentCache
	cfg      Config
}

// NewService builds the sentiment service. completer may be nil; the
// analyzer then scores by keywords only.
func NewService(completer Completer, cfg Config) *Service {
	if cfg.MaxHeadlines <= 0 {
		cfg.MaxHeadlines = 10
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = time.Hour
	}
	if cfg.ScraperTimeout <= 0 {
		cfg.ScraperTimeout = 30 * time.Second
	}
	return &Service{
		fetcher:  NewScraper(cfg.ScraperTimeout),
		analyzer: NewAnalyzer(completer),
		cache:    newSentimentCache(cfg.CacheTTL),
		cfg:      cfg,
	}
}

// Sentiment returns the cached or freshly scraped sentiment for one symbol.
// It never returns an error: any failure degrades to a neutral sentiment
// with zero confidence.
func (s *Service) Sentiment(ctx context.Context, symbol string) types.NewsSentiment {
	if !s.cfg.Enabled {
		return neutral(symbol, "sentiment analysis disabled")
	}
	if cached, ok := s.cache.get(symbol); ok {
		return cached
	}

	articles, err := s.fetcher.Fetch(ctx, symbol, s.cfg.MaxHeadlines)
	if err != nil {
		logger.Warn(ctx, "Headline fetch failed", "symbol", symbol, "error", err.Error())
		return neutral(symbol, "headline fetch failed")
	}
	sentiment := s.analyzer.Analyze(ctx, symbol, articles)
	s.cache.set(symbol, sentiment)
	return sentiment
}

// Snapshot gathers sentiment for the universe and summarizes it for the
// proposal prompt.
func (s *Service) Snapshot(ctx context.Context, symbols []string) (map[string]any, []types.NewsSentiment) {
	if !s.cfg.Enabled || len(symbols) == 0 {
		return nil, nil
	}

	sentiments := make([]types.NewsSentiment, 0, len(symbols))
	totalScore := 0.0
	scored := 0
	for _, symbol := range symbols {
		if ctx.Err() != nil {
			break
		}
		sent := s.Sentiment(ctx, symbol)
		sentiments = append(sentiments, sent)
		if sent.Headlines > 0 {
			totalScore += sent.OverallScore
			scored++
		}
	}
	if scored == 0 {
		return nil, sentiments
	}

	avg := totalScore / float64(scored)
	tone := "neutral"
	switch {
	case avg > 0.15:
		tone = "positive"
	case avg < -0.15:
		tone = "negative"
	}
	summary := map[string]any{
		"news_tone":        tone,
		"news_score":       avg,
		"symbols_covered":  scored,
		"symbols_screened": len(symbols),
	}
	return summary, sentiments
}

// Refresh bypasses the cache for one symbol.
func (s *Service) Refresh(ctx context.Context, symbol string) types.NewsSentiment {
	articles, err := s.fetcher.Fetch(ctx, symbol, s.cfg.MaxHeadlines)
	if err != nil {
		logger.Warn(ctx, "Headline refresh failed", "symbol", symbol, "error", err.Error())
		return neutral(symbol, "headline fetch failed")
	}
	sentiment := s.analyzer.Analyze(ctx, symbol, articles)
	s.cache.set(symbol, sentiment)
	return sentiment
}

// CachedSymbols lists the symbols with a live cache entry.
func (s *Service) CachedSymbols() []string {
	s.cache.mu.RLock()
	defer s.cache.mu.RUnlock()
	symbols := make([]string, 0, len(s.cache.data))
	for symbol := range s.cache.data {
		symbols = append(symbols, symbol)
	}
	return symbols
}

func (s *Service) ClearCache() {
	s.cache.mu.Lock()
	defer s.cache.mu.Unlock()
	s.cache.data = make(map[string]*cacheEntry)
}

func neutral(symbol, why string) types.NewsSentiment {
	return types.NewsSentiment{
		Symbol:           symbol,
		OverallSentiment: "neutral",
		Summary:          why,
		Timestamp:        time.Now().Unix(),
	}
}

type sentimentCache struct {
	mu   sync.RWMutex
	data map[string]*cacheEntry
	ttl  time.Duration
}

type cacheEntry struct {
	sentiment types.NewsSentiment
	stored    time.Time
}

func newSentimentCache(ttl time.Duration) *sentimentCache {
	c := &sentimentCache{
		data: make(map[string]*cacheEntry),
		ttl:  ttl,
	}
	go c.cleanupLoop()
	return c
}

func (c *sentimentCache) cleanupLoop() {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()
	for range ticker.C {
		c.cleanup()
	}
}

func (c *sentimentCache) get(symbol string) (types.NewsSentiment, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.data[symbol]
	if !ok || time.Since(entry.stored) > c.ttl {
		return types.NewsSentiment{}, false
	}
	return entry.sentiment, true
}

func (c *sentimentCache) set(symbol string, sentiment types.NewsSentiment) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[symbol] = &cacheEntry{sentiment: sentiment, stored: time.Now()}
}

func (c *sentimentCache) cleanup() {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := time.Now()
	for symbol, entry := range c.data {
		if now.Sub(entry.stored) > c.ttl {
			delete(c.data, symbol)
		}
	}
}
