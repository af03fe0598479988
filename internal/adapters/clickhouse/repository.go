package clickhouse

import (
	"context"
	"fmt"
	"strings"
	"time"

	_ "github.com/ClickHouse/clickhouse-go/v2"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/selivandex/market-pulse/pkg/logger"
	"github.com/selivandex/market-pulse/pkg/metrics"
	"github.com/selivandex/market-pulse/pkg/models"
)

const createDailyPrices = `
	CREATE TABLE IF NOT EXISTS market_daily_prices (
		date       Date,
		symbol     LowCardinality(String),
		open       Float64,
		high       Float64,
		low        Float64,
		close      Float64,
		volume     Int64,
		run_id     String,
		fetched_at DateTime
	) ENGINE = ReplacingMergeTree(fetched_at)
	ORDER BY (symbol, date)
`

// Repository archives fetched market data in ClickHouse. It implements
// metrics.Writer.
type Repository struct {
	db *sqlx.DB
}

// Open connects to ClickHouse and makes sure the archive table exists
func Open(ctx context.Context, dsn string) (*Repository, error) {
	db, err := sqlx.Open("clickhouse", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open clickhouse: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("clickhouse ping failed: %w", err)
	}

	repo := NewRepository(db)
	if err := repo.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	logger.Info("ClickHouse connection established")
	return repo, nil
}

// NewRepository creates new ClickHouse repository
func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

// EnsureSchema creates the archive table
func (r *Repository) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, createDailyPrices); err != nil {
		return fmt.Errorf("failed to create market_daily_prices: %w", err)
	}
	return nil
}

// SaveDailyPrices archives the bars fetched by one ingest run
func (r *Repository) SaveDailyPrices(ctx context.Context, runID string, prices []models.DailyPrice) error {
	if len(prices) == 0 {
		return nil
	}

	now := time.Now().UTC()
	batch := make([]metrics.Metric, 0, len(prices))
	for _, p := range prices {
		batch = append(batch, metrics.NewDailyPriceMetric(p, runID, now))
	}

	return r.Write(ctx, batch[0].TableName(), batch)
}

// Write inserts a batch of metrics into tableName in one transaction
func (r *Repository) Write(ctx context.Context, tableName string, batch []metrics.Metric) error {
	if len(batch) == 0 {
		return nil
	}

	columns := batch[0].Columns()
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(columns)), ", ")

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}

	stmt, err := tx.PreparexContext(ctx, fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s)",
		tableName, strings.Join(columns, ", "), placeholders,
	))
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, m := range batch {
		if _, err := stmt.ExecContext(ctx, m.Values()...); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to insert into %s: %w", tableName, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	logger.Debug("saved batch to ClickHouse",
		zap.String("table", tableName),
		zap.Int("count", len(batch)),
	)

	return nil
}

// Close closes the connection
func (r *Repository) Close() error {
	return r.db.Close()
}
