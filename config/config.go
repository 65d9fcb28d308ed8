package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Marketfeed MarketfeedConfig `yaml:"marketfeed"`
	Logging    LoggingConfig    `yaml:"logging"`
	Symbols    []string         `yaml:"symbols"`
	Exchange   ExchangeConfig   `yaml:"exchange"`
	Stream     StreamConfig     `yaml:"stream"`
	RateLimit  RateLimitConfig  `yaml:"rate_limit"`
	Reorder    ReorderConfig    `yaml:"reorder"`
	Cache      CacheConfig      `yaml:"cache"`
	Server     ServerConfig     `yaml:"server"`
}

type MarketfeedConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
	MaxAge int    `yaml:"max_age"`
}

type ExchangeConfig struct {
	WsURL    string `yaml:"ws_url"`
	RestURL  string `yaml:"rest_url"`
	Category string `yaml:"category"`
}

type StreamConfig struct {
	TopicBatchSize          int `yaml:"topic_batch_size"`
	QueueBuffer             int `yaml:"queue_buffer"`
	DialTimeoutMs           int `yaml:"dial_timeout_ms"`
	AckTimeoutMs            int `yaml:"ack_timeout_ms"`
	PingIntervalMs          int `yaml:"ping_interval_ms"`
	ReachabilityTimeoutMs   int `yaml:"reachability_timeout_ms"`
	ReconnectMinDelayMs     int `yaml:"reconnect_min_delay_ms"`
	ReconnectMaxDelayMs     int `yaml:"reconnect_max_delay_ms"`
	ReconnectMaxAttempts    int `yaml:"reconnect_max_attempts"`
	RapidFailureThresholdMs int `yaml:"rapid_failure_threshold_ms"`
}

type RateLimitConfig struct {
	WindowMs        int            `yaml:"window_ms"`
	MaxRequests     int            `yaml:"max_requests"`
	EndpointDefault int            `yaml:"endpoint_default"`
	Endpoints       map[string]int `yaml:"endpoints"`
}

type ReorderConfig struct {
	WindowMs int `yaml:"window_ms"`
	Capacity int `yaml:"capacity"`
}

type CacheConfig struct {
	RefreshIntervalMs   int              `yaml:"refresh_interval_ms"`
	TradeHistory        int              `yaml:"trade_history"`
	LiquidationWindowMs int              `yaml:"liquidation_window_ms"`
	OpenInterestHistory int              `yaml:"open_interest_history"`
	KlineLimit          int              `yaml:"kline_limit"`
	OrderbookDepth      int              `yaml:"orderbook_depth"`
	Timeframes          TimeframesConfig `yaml:"timeframes"`
	BudgetsMs           BudgetsConfig    `yaml:"budgets_ms"`
}

// TimeframesConfig maps the four cached candle series to exchange interval codes.
type TimeframesConfig struct {
	Fine   string `yaml:"fine"`
	Short  string `yaml:"short"`
	Medium string `yaml:"medium"`
	Long   string `yaml:"long"`
}

// BudgetsConfig holds per-component staleness budgets in milliseconds.
type BudgetsConfig struct {
	Ticker       int64 `yaml:"ticker"`
	Orderbook    int64 `yaml:"orderbook"`
	Trades       int64 `yaml:"trades"`
	KlineFine    int64 `yaml:"kline_fine"`
	KlineShort   int64 `yaml:"kline_short"`
	KlineMedium  int64 `yaml:"kline_medium"`
	KlineLong    int64 `yaml:"kline_long"`
	Funding      int64 `yaml:"funding"`
	OpenInterest int64 `yaml:"open_interest"`
	RiskLimit    int64 `yaml:"risk_limit"`
}

type ServerConfig struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"`
}

func LoadConfig(path string) (*Config, error) {
	// Read configuration file
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Config{}
	if err := yaml.Unmarshal(expandEnv(data), &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyDefaults(&config)

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &config, nil
}

// expandEnv substitutes ${VAR} references in the raw yaml with values from the
// process environment. Unset variables expand to the empty string.
func expandEnv(data []byte) []byte {
	return []byte(os.Expand(string(data), func(key string) string {
		return strings.TrimSpace(os.Getenv(key))
	}))
}

func applyDefaults(cfg *Config) {
	if cfg.Marketfeed.Name == "" {
		cfg.Marketfeed.Name = "marketfeed"
	}
	if cfg.Stream.TopicBatchSize <= 0 {
		cfg.Stream.TopicBatchSize = 8
	}
	if cfg.Stream.QueueBuffer <= 0 {
		cfg.Stream.QueueBuffer = 256
	}
	if cfg.Stream.DialTimeoutMs <= 0 {
		cfg.Stream.DialTimeoutMs = 10000
	}
	if cfg.Stream.AckTimeoutMs <= 0 {
		cfg.Stream.AckTimeoutMs = 3000
	}
	if cfg.Stream.PingIntervalMs <= 0 {
		cfg.Stream.PingIntervalMs = 20000
	}
	if cfg.Stream.ReachabilityTimeoutMs <= 0 {
		cfg.Stream.ReachabilityTimeoutMs = 2000
	}
	if cfg.Stream.ReconnectMinDelayMs <= 0 {
		cfg.Stream.ReconnectMinDelayMs = 1000
	}
	if cfg.Stream.ReconnectMaxDelayMs <= 0 {
		cfg.Stream.ReconnectMaxDelayMs = 60000
	}
	if cfg.Stream.ReconnectMaxAttempts <= 0 {
		cfg.Stream.ReconnectMaxAttempts = 10
	}
	if cfg.Stream.RapidFailureThresholdMs <= 0 {
		cfg.Stream.RapidFailureThresholdMs = 5000
	}
	if cfg.RateLimit.WindowMs <= 0 {
		cfg.RateLimit.WindowMs = 5000
	}
	if cfg.RateLimit.MaxRequests <= 0 {
		cfg.RateLimit.MaxRequests = 100
	}
	if cfg.RateLimit.EndpointDefault <= 0 {
		cfg.RateLimit.EndpointDefault = 10
	}
	if cfg.Reorder.WindowMs <= 0 {
		cfg.Reorder.WindowMs = 2000
	}
	if cfg.Reorder.Capacity <= 0 {
		cfg.Reorder.Capacity = 64
	}
	if cfg.Cache.RefreshIntervalMs <= 0 {
		cfg.Cache.RefreshIntervalMs = 1000
	}
	if cfg.Cache.TradeHistory <= 0 {
		cfg.Cache.TradeHistory = 200
	}
	if cfg.Cache.LiquidationWindowMs <= 0 {
		cfg.Cache.LiquidationWindowMs = 3600000
	}
	if cfg.Cache.OpenInterestHistory <= 0 {
		cfg.Cache.OpenInterestHistory = 500
	}
	if cfg.Cache.KlineLimit <= 0 {
		cfg.Cache.KlineLimit = 200
	}
	if cfg.Cache.OrderbookDepth <= 0 {
		cfg.Cache.OrderbookDepth = 50
	}
	if cfg.Cache.Timeframes.Fine == "" {
		cfg.Cache.Timeframes.Fine = "1"
	}
	if cfg.Cache.Timeframes.Short == "" {
		cfg.Cache.Timeframes.Short = "15"
	}
	if cfg.Cache.Timeframes.Medium == "" {
		cfg.Cache.Timeframes.Medium = "60"
	}
	if cfg.Cache.Timeframes.Long == "" {
		cfg.Cache.Timeframes.Long = "240"
	}
	b := &cfg.Cache.BudgetsMs
	if b.Ticker <= 0 {
		b.Ticker = 60_000
	}
	if b.Orderbook <= 0 {
		b.Orderbook = 30_000
	}
	if b.Trades <= 0 {
		b.Trades = 60_000
	}
	if b.KlineFine <= 0 {
		b.KlineFine = 300_000
	}
	if b.KlineShort <= 0 {
		b.KlineShort = 900_000
	}
	if b.KlineMedium <= 0 {
		b.KlineMedium = 3_600_000
	}
	if b.KlineLong <= 0 {
		b.KlineLong = 14_400_000
	}
	if b.Funding <= 0 {
		b.Funding = 28_800_000
	}
	if b.OpenInterest <= 0 {
		b.OpenInterest = 300_000
	}
	if b.RiskLimit <= 0 {
		b.RiskLimit = 86_400_000
	}
	if cfg.Server.Address == "" {
		cfg.Server.Address = ":8080"
	}
	if cfg.Exchange.Category == "" {
		cfg.Exchange.Category = "linear"
	}
}

func validateConfig(cfg *Config) error {
	if len(cfg.Symbols) == 0 {
		return fmt.Errorf("no symbols configured")
	}
	seen := make(map[string]struct{}, len(cfg.Symbols))
	for i, s := range cfg.Symbols {
		sym := strings.ToUpper(strings.TrimSpace(s))
		if sym == "" {
			return fmt.Errorf("symbols[%d] is empty", i)
		}
		if _, dup := seen[sym]; dup {
			return fmt.Errorf("duplicate symbol %q", sym)
		}
		seen[sym] = struct{}{}
		cfg.Symbols[i] = sym
	}
	if cfg.Exchange.WsURL == "" {
		return fmt.Errorf("exchange.ws_url is required")
	}
	if cfg.Exchange.RestURL == "" {
		return fmt.Errorf("exchange.rest_url is required")
	}
	return nil
}
