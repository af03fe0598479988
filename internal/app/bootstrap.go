// Package app wires configuration, infrastructure and collaborators shared by
// the api and ingest commands.
package app

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/selivandex/market-pulse/internal/adapters/ai"
	"github.com/selivandex/market-pulse/internal/adapters/clickhouse"
	"github.com/selivandex/market-pulse/internal/adapters/config"
	"github.com/selivandex/market-pulse/internal/adapters/database"
	"github.com/selivandex/market-pulse/internal/adapters/news"
	"github.com/selivandex/market-pulse/internal/adapters/price"
	redisAdapter "github.com/selivandex/market-pulse/internal/adapters/redis"
	"github.com/selivandex/market-pulse/internal/adapters/telegram"
	"github.com/selivandex/market-pulse/internal/ingest"
	"github.com/selivandex/market-pulse/internal/sentiment"
	"github.com/selivandex/market-pulse/pkg/logger"
	"github.com/selivandex/market-pulse/pkg/metrics"
)

// ingestLockTTL bounds how long a crashed run can block the next one
const ingestLockTTL = 15 * time.Minute

// Infra holds long-lived connections. Redis and ClickHouse are nil when
// disabled.
type Infra struct {
	DB         *database.DB
	Redis      *redisAdapter.Client
	ClickHouse *clickhouse.Repository
}

// InitConfig loads configuration and initializes logger and metrics
func InitConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if err := logger.Init(cfg.Logging.Level, cfg.Logging.File); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	metrics.Init()
	return cfg, nil
}

// InitInfrastructure opens the database and the optional Redis and
// ClickHouse connections
func InitInfrastructure(ctx context.Context, cfg *config.Config) (*Infra, error) {
	db, err := initDatabase(cfg)
	if err != nil {
		return nil, err
	}
	infra := &Infra{DB: db}

	if cfg.Redis.Enabled {
		redisClient, err := redisAdapter.New(&cfg.Redis)
		if err != nil {
			infra.Close()
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		infra.Redis = redisClient

		logger.Info("redis connection established (redlock)",
			zap.String("host", cfg.Redis.Host),
			zap.Int("port", cfg.Redis.Port),
		)
	}

	if cfg.ClickHouse.Enabled {
		ch, err := clickhouse.Open(ctx, cfg.ClickHouse.DSN)
		if err != nil {
			// the archive is best effort
			logger.Warn("ClickHouse not available, daily price archive disabled", zap.Error(err))
		} else {
			infra.ClickHouse = ch
		}
	}

	return infra, nil
}

func initDatabase(cfg *config.Config) (*database.DB, error) {
	db, err := database.New(&cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := database.RunMigrations(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return db, nil
}

// Close closes all connections, logging failures
func (i *Infra) Close() {
	if i.ClickHouse != nil {
		if err := i.ClickHouse.Close(); err != nil {
			logger.Error("clickhouse close error", zap.Error(err))
		}
	}

	if i.Redis != nil {
		logger.Info("closing redis connection...")
		if err := i.Redis.Close(); err != nil {
			logger.Error("redis close error", zap.Error(err))
		}
	}

	if i.DB != nil {
		logger.Info("closing database connection...")
		if err := i.DB.Close(); err != nil {
			logger.Error("database close error", zap.Error(err))
		}
	}
}

// NewScorer returns the configured sentiment scorer
func NewScorer(cfg *config.Config) sentiment.Scorer {
	if cfg.Sentiment.Scorer == config.ScorerOpenAI {
		logger.Info("using OpenAI sentiment scorer", zap.String("model", cfg.Sentiment.OpenAIModel))
		return ai.NewOpenAIScorer(cfg.Sentiment.OpenAIAPIKey, cfg.Sentiment.OpenAIModel)
	}

	return sentiment.NewAnalyzer()
}

// NewPostFetcher returns the Reddit listing client
func NewPostFetcher(cfg *config.Config) news.PostFetcher {
	return news.NewRedditProvider(cfg.Reddit.UserAgent, cfg.Reddit.RequestsPerMinute)
}

// NewMarketData returns the Alpha Vantage client
func NewMarketData(cfg *config.Config) price.MarketData {
	if cfg.Market.APIKey == "" {
		logger.Warn("ALPHAVANTAGE_API_KEY not set, stock requests will fail")
	}
	return price.NewAlphaVantageProvider(cfg.Market.APIKey, cfg.Market.RequestsPerMinute)
}

// NewIngestJob wires the ingest job with the optional lock, archive,
// notifier and aggregation step
func NewIngestJob(cfg *config.Config, infra *Infra) *ingest.Job {
	history := sentiment.NewRepository(infra.DB.DB())

	opts := []ingest.Option{
		ingest.WithNotifier(newNotifier(cfg)),
	}

	if infra.Redis != nil {
		opts = append(opts, ingest.WithLock(infra.Redis.NewJobLock(ingest.JobName, ingestLockTTL)))
	}
	if infra.ClickHouse != nil {
		opts = append(opts, ingest.WithArchive(infra.ClickHouse))
	}
	if cfg.Sentiment.AggregationEnabled {
		agg := sentiment.NewAggregator(history, cfg.Market.Symbols)
		opts = append(opts, ingest.WithPreCommit(agg.Aggregate))
		logger.Info("daily sentiment aggregation enabled")
	}

	return ingest.NewJob(
		ingest.ConfigFrom(cfg),
		infra.DB,
		NewPostFetcher(cfg),
		NewMarketData(cfg),
		NewScorer(cfg),
		history,
		opts...,
	)
}

func newNotifier(cfg *config.Config) ingest.Notifier {
	if cfg.Telegram.BotToken == "" {
		return telegram.NopNotifier{}
	}

	notifier, err := telegram.NewNotifier(&cfg.Telegram)
	if err != nil {
		logger.Warn("telegram notifier unavailable, failure alerts disabled", zap.Error(err))
		return telegram.NopNotifier{}
	}
	return notifier
}
