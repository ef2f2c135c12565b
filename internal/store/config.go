package store

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Mode string `yaml:"mode"` // DRY_RUN or LIVE

	Database struct {
		DSN          string  `yaml:"dsn"`
		InMemory     bool    `yaml:"in_memory"`
		StartingCash float64 `yaml:"starting_cash"` // seeds a fresh account only
	} `yaml:"database"`

	MarketData struct {
		BaseURL            string `yaml:"base_url"`
		APIKeyEnv          string `yaml:"api_key_env"`
		RateLimitPerMinute int    `yaml:"rate_limit_per_minute"`
		DailyCap           int    `yaml:"daily_cap"`
		CacheTTLSeconds    int    `yaml:"cache_ttl_seconds"`
		RefreshSeconds     int    `yaml:"refresh_seconds"`
		FetchConcurrency   int    `yaml:"fetch_concurrency"`
		TimeoutSeconds     int    `yaml:"timeout_seconds"`
	} `yaml:"market_data"`

	Advisor struct {
		Model                  string `yaml:"model"`
		MaxTokens              int    `yaml:"max_tokens"`
		DailyQueryBudget       int    `yaml:"daily_query_budget"`
		MaxRetries             int    `yaml:"max_retries"`
		BackoffBaseMs          int    `yaml:"backoff_base_ms"`
		BackoffCapMs           int    `yaml:"backoff_cap_ms"`
		RateLimitCooldownSec   int    `yaml:"rate_limit_cooldown_seconds"`
		TimeoutSeconds         int    `yaml:"timeout_seconds"`
		FallbackCashPercentage float64 `yaml:"fallback_cash_percentage"`
	} `yaml:"advisor"`

	Sessions struct {
		Morning  string `yaml:"morning"` // HH:MM, market timezone
		Evening  string `yaml:"evening"`
		Timezone string `yaml:"timezone"`
	} `yaml:"sessions"`

	Monitor struct {
		IntervalMinutes int `yaml:"interval_minutes"`
		MaxHoldingDays  int `yaml:"max_holding_days"`
		ExpiryCloseDTE  int `yaml:"expiry_close_dte"`
	} `yaml:"monitor"`

	Risk struct {
		MinCashReserve     float64 `yaml:"min_cash_reserve"`
		MaxPositions       int     `yaml:"max_positions"`
		MaxDailyPositions  int     `yaml:"max_daily_positions"`
		BaseSizePct        float64 `yaml:"base_size_pct"`
		MaxSizePct         float64 `yaml:"max_size_pct"`
		MinPositionUSD     float64 `yaml:"min_position_usd"`
		DefaultStopLossPct float64 `yaml:"default_stop_loss_pct"`
		MinDTE             int     `yaml:"min_dte"`
		MaxDTE             int     `yaml:"max_dte"`
	} `yaml:"risk"`

	Confidence struct {
		Floor            float64            `yaml:"floor"`
		Ceiling          float64            `yaml:"ceiling"`
		Bases            map[string]float64 `yaml:"bases"`
		LossBoost        float64            `yaml:"loss_boost"`
		DeepLossBoost    float64            `yaml:"deep_loss_boost"`
		WinReduction     float64            `yaml:"win_reduction"`
		LowWinRateBoost  float64            `yaml:"low_win_rate_boost"`
		HighWinRateTrim  float64            `yaml:"high_win_rate_trim"`
	} `yaml:"confidence"`

	Universe struct {
		Fallback []string `yaml:"fallback"`
	} `yaml:"universe"`

	News struct {
		Enabled      bool `yaml:"enabled"`
		MaxHeadlines int  `yaml:"max_headlines"`
		CacheMinutes int  `yaml:"cache_minutes"`
	} `yaml:"news"`
}

func (c *Config) Validate() error {
	if c.Mode != "DRY_RUN" && c.Mode != "LIVE" {
		return fmt.Errorf("invalid mode '%s': must be 'DRY_RUN' or 'LIVE'", c.Mode)
	}
	if !c.Database.InMemory && c.Database.DSN == "" {
		return fmt.Errorf("database.dsn required unless database.in_memory is set")
	}
	if c.Risk.BaseSizePct <= 0 || c.Risk.BaseSizePct > c.Risk.MaxSizePct {
		return fmt.Errorf("risk.base_size_pct must be in (0, max_size_pct], got %.2f", c.Risk.BaseSizePct)
	}
	if c.Risk.MaxSizePct > 25 {
		return fmt.Errorf("risk.max_size_pct should not exceed 25 for safety, got %.2f", c.Risk.MaxSizePct)
	}
	if c.Confidence.Floor >= c.Confidence.Ceiling {
		return fmt.Errorf("confidence.floor %.2f must be below ceiling %.2f", c.Confidence.Floor, c.Confidence.Ceiling)
	}
	if c.Advisor.DailyQueryBudget > 50 {
		return fmt.Errorf("advisor.daily_query_budget %d is unreasonably high", c.Advisor.DailyQueryBudget)
	}
	if _, err := time.LoadLocation(c.Sessions.Timezone); err != nil {
		return fmt.Errorf("invalid sessions.timezone '%s': %w", c.Sessions.Timezone, err)
	}
	for _, hhmm := range []string{c.Sessions.Morning, c.Sessions.Evening} {
		if _, err := time.Parse("15:04", hhmm); err != nil {
			return fmt.Errorf("invalid session time '%s': %w", hhmm, err)
		}
	}
	return nil
}

func LoadConfig(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, err
	}
	c.applyDefaults()
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &c, nil
}

func (c *Config) applyDefaults() {
	if c.Database.StartingCash == 0 {
		c.Database.StartingCash = 100000
	}
	if c.MarketData.RateLimitPerMinute == 0 {
		c.MarketData.RateLimitPerMinute = 60
	}
	if c.MarketData.DailyCap == 0 {
		c.MarketData.DailyCap = 500
	}
	if c.MarketData.CacheTTLSeconds == 0 {
		c.MarketData.CacheTTLSeconds = 30
	}
	if c.MarketData.RefreshSeconds == 0 {
		c.MarketData.RefreshSeconds = 60
	}
	if c.MarketData.FetchConcurrency == 0 {
		c.MarketData.FetchConcurrency = 4
	}
	if c.MarketData.TimeoutSeconds == 0 {
		c.MarketData.TimeoutSeconds = 10
	}
	if c.Advisor.MaxTokens == 0 {
		c.Advisor.MaxTokens = 2000
	}
	if c.Advisor.DailyQueryBudget == 0 {
		c.Advisor.DailyQueryBudget = 10
	}
	if c.Advisor.MaxRetries == 0 {
		c.Advisor.MaxRetries = 2
	}
	if c.Advisor.BackoffBaseMs == 0 {
		c.Advisor.BackoffBaseMs = 1000
	}
	if c.Advisor.BackoffCapMs == 0 {
		c.Advisor.BackoffCapMs = 30000
	}
	if c.Advisor.RateLimitCooldownSec == 0 {
		c.Advisor.RateLimitCooldownSec = 60
	}
	if c.Advisor.TimeoutSeconds == 0 {
		c.Advisor.TimeoutSeconds = 60
	}
	if c.Advisor.FallbackCashPercentage == 0 {
		c.Advisor.FallbackCashPercentage = 75
	}
	if c.Sessions.Morning == "" {
		c.Sessions.Morning = "08:00"
	}
	if c.Sessions.Evening == "" {
		c.Sessions.Evening = "17:00"
	}
	if c.Sessions.Timezone == "" {
		c.Sessions.Timezone = "America/New_York"
	}
	if c.Monitor.IntervalMinutes == 0 {
		c.Monitor.IntervalMinutes = 30
	}
	if c.Monitor.MaxHoldingDays == 0 {
		c.Monitor.MaxHoldingDays = 30
	}
	if c.Monitor.ExpiryCloseDTE == 0 {
		c.Monitor.ExpiryCloseDTE = 7
	}
	if c.Risk.MinCashReserve == 0 {
		c.Risk.MinCashReserve = 10000
	}
	if c.Risk.MaxPositions == 0 {
		c.Risk.MaxPositions = 6
	}
	if c.Risk.MaxDailyPositions == 0 {
		c.Risk.MaxDailyPositions = 3
	}
	if c.Risk.BaseSizePct == 0 {
		c.Risk.BaseSizePct = 2.0
	}
	if c.Risk.MaxSizePct == 0 {
		c.Risk.MaxSizePct = 10.0
	}
	if c.Risk.MinPositionUSD == 0 {
		c.Risk.MinPositionUSD = 500
	}
	if c.Risk.DefaultStopLossPct == 0 {
		c.Risk.DefaultStopLossPct = 50
	}
	if c.Risk.MinDTE == 0 {
		c.Risk.MinDTE = 7
	}
	if c.Risk.MaxDTE == 0 {
		c.Risk.MaxDTE = 60
	}
	if c.Confidence.Floor == 0 {
		c.Confidence.Floor = 0.60
	}
	if c.Confidence.Ceiling == 0 {
		c.Confidence.Ceiling = 0.95
	}
	if c.Confidence.LossBoost == 0 {
		c.Confidence.LossBoost = 0.10
	}
	if c.Confidence.DeepLossBoost == 0 {
		c.Confidence.DeepLossBoost = 0.15
	}
	if c.Confidence.WinReduction == 0 {
		c.Confidence.WinReduction = 0.05
	}
	if c.Confidence.LowWinRateBoost == 0 {
		c.Confidence.LowWinRateBoost = 0.05
	}
	if c.Confidence.HighWinRateTrim == 0 {
		c.Confidence.HighWinRateTrim = 0.03
	}
	if len(c.Universe.Fallback) == 0 {
		c.Universe.Fallback = []string{
			"AAPL", "MSFT", "GOOGL", "AMZN", "NVDA", "META", "TSLA",
			"SPY", "QQQ", "AMD", "NFLX", "JPM",
		}
	}
	if c.News.MaxHeadlines == 0 {
		c.News.MaxHeadlines = 10
	}
	if c.News.CacheMinutes == 0 {
		c.News.CacheMinutes = 60
	}
}
