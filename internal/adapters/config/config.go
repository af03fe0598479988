package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Query modes for the API server
const (
	QueryModePrecomputed = "precomputed"
	QueryModeLive        = "live"
)

// Scorer names
const (
	ScorerLexicon = "lexicon"
	ScorerOpenAI  = "openai"
)

// Post fetch limits accepted by the ingest job
const (
	MinPostLimit = 25
	MaxPostLimit = 50
)

// Config represents application configuration
type Config struct {
	Database   DatabaseConfig
	Reddit     RedditConfig
	Market     MarketConfig
	Sentiment  SentimentConfig
	API        APIConfig
	Ingest     IngestConfig
	Redis      RedisConfig
	ClickHouse ClickHouseConfig
	Telegram   TelegramConfig
	Logging    LoggingConfig
}

// DatabaseConfig holds the storage location. An empty URL selects the
// embedded SQLite file at SQLitePath.
type DatabaseConfig struct {
	URL          string `envconfig:"DATABASE_URL"`
	SQLitePath   string `envconfig:"SQLITE_PATH" default:"data/market_pulse.db"`
	MaxOpenConns int    `envconfig:"DB_MAX_OPEN_CONNS" default:"25"`
	MaxIdleConns int    `envconfig:"DB_MAX_IDLE_CONNS" default:"5"`
}

// RedditConfig represents social-post fetcher configuration
type RedditConfig struct {
	UserAgent         string `envconfig:"REDDIT_USER_AGENT" default:"market-pulse/1.0"`
	Subreddit         string `envconfig:"REDDIT_SUBREDDIT" default:"wallstreetbets"`
	TimePeriod        string `envconfig:"REDDIT_TIME_PERIOD" default:"day"`
	Sort              string `envconfig:"REDDIT_SORT" default:"hot"`
	Limit             int    `envconfig:"REDDIT_LIMIT" default:"25"`
	RequestsPerMinute int    `envconfig:"REDDIT_REQUESTS_PER_MINUTE" default:"60"`
}

// MarketConfig represents stock data provider configuration
type MarketConfig struct {
	APIKey               string   `envconfig:"ALPHAVANTAGE_API_KEY"`
	RequestsPerMinute    int      `envconfig:"ALPHAVANTAGE_REQUESTS_PER_MINUTE" default:"5"`
	Symbols              []string `envconfig:"STOCK_SYMBOLS" default:"AAPL,MSFT,GOOG,AMZN,TSLA,META,NVDA,SPY,QQQ,AMD"`
	SentimentHistoryDays int      `envconfig:"SENTIMENT_HISTORY_DAYS" default:"7"`
}

// SentimentConfig selects the scorer implementation
type SentimentConfig struct {
	Scorer             string `envconfig:"SCORER" default:"lexicon"`
	OpenAIAPIKey       string `envconfig:"OPENAI_API_KEY"`
	OpenAIModel        string `envconfig:"OPENAI_MODEL" default:"gpt-4o-mini"`
	AggregationEnabled bool   `envconfig:"AGGREGATION_ENABLED" default:"false"`
}

// APIConfig represents query service configuration
type APIConfig struct {
	Port               string        `envconfig:"HTTP_PORT" default:"5000"`
	QueryMode          string        `envconfig:"QUERY_MODE" default:"precomputed"`
	LiveConcurrency    int           `envconfig:"LIVE_CONCURRENCY" default:"4"`
	LiveRequestTimeout time.Duration `envconfig:"LIVE_REQUEST_TIMEOUT" default:"20s"`
	LiveCacheTTL       time.Duration `envconfig:"LIVE_CACHE_TTL" default:"5m"`
}

// IngestConfig controls in-process scheduling of the ingest job
type IngestConfig struct {
	Schedule string        `envconfig:"INGEST_SCHEDULE"`
	Timeout  time.Duration `envconfig:"INGEST_TIMEOUT" default:"10m"`
}

// RedisConfig enables the distributed job lock and the live response cache
type RedisConfig struct {
	Enabled  bool   `envconfig:"REDIS_ENABLED" default:"false"`
	Host     string `envconfig:"REDIS_HOST" default:"localhost"`
	Port     int    `envconfig:"REDIS_PORT" default:"6379"`
	Password string `envconfig:"REDIS_PASSWORD"`
	DB       int    `envconfig:"REDIS_DB" default:"0"`
}

// ClickHouseConfig enables the daily price archive
type ClickHouseConfig struct {
	Enabled bool   `envconfig:"CLICKHOUSE_ENABLED" default:"false"`
	DSN     string `envconfig:"CLICKHOUSE_DSN" default:"clickhouse://localhost:9000/market_pulse"`
}

// TelegramConfig represents failure alert configuration
type TelegramConfig struct {
	BotToken string `envconfig:"TELEGRAM_BOT_TOKEN"`
	ChatID   int64  `envconfig:"TELEGRAM_CHAT_ID"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level string `envconfig:"LOG_LEVEL" default:"info"`
	File  string `envconfig:"LOG_FILE"`
}

// Load reads configuration from environment variables, after loading an
// optional .env file from the working directory.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// Validate checks if configuration is valid
func (c *Config) Validate() error {
	if c.Reddit.Limit < MinPostLimit || c.Reddit.Limit > MaxPostLimit {
		return fmt.Errorf("reddit limit must be between %d and %d", MinPostLimit, MaxPostLimit)
	}
	if c.Reddit.RequestsPerMinute < 1 || c.Market.RequestsPerMinute < 1 {
		return fmt.Errorf("requests per minute must be at least 1")
	}
	if len(c.Market.Symbols) == 0 {
		return fmt.Errorf("at least one stock symbol is required")
	}
	if c.Market.SentimentHistoryDays < 1 {
		return fmt.Errorf("sentiment history days must be positive")
	}

	switch c.API.QueryMode {
	case QueryModePrecomputed, QueryModeLive:
	default:
		return fmt.Errorf("unknown query mode %q", c.API.QueryMode)
	}
	if c.API.LiveConcurrency < 1 {
		return fmt.Errorf("live concurrency must be at least 1")
	}

	switch c.Sentiment.Scorer {
	case ScorerLexicon:
	case ScorerOpenAI:
		if c.Sentiment.OpenAIAPIKey == "" {
			return fmt.Errorf("openai scorer requires OPENAI_API_KEY")
		}
	default:
		return fmt.Errorf("unknown scorer %q", c.Sentiment.Scorer)
	}

	if c.Telegram.BotToken != "" && c.Telegram.ChatID == 0 {
		return fmt.Errorf("telegram chat_id is required when bot token is set")
	}

	return nil
}

// Addr returns redis address as host:port
func (c *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
