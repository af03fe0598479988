package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/selivandex/market-pulse/internal/adapters/config"
	"github.com/selivandex/market-pulse/pkg/logger"
)

// Supported sql driver names
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

func init() {
	// modernc registers as "sqlite", which sqlx does not know about
	sqlx.BindDriver(DriverSQLite, sqlx.QUESTION)
}

// DB wraps the sqlx connection. It is constructed once at startup and
// passed to repositories and the ingest job.
type DB struct {
	conn *sqlx.DB
}

// New opens the configured store: Postgres when a URL is set, the embedded
// SQLite file otherwise.
func New(cfg *config.DatabaseConfig) (*DB, error) {
	driver, dsn, err := ResolveDSN(cfg.URL, cfg.SQLitePath)
	if err != nil {
		return nil, err
	}

	if driver == DriverSQLite {
		if err := ensureSQLiteDirectory(cfg.SQLitePath); err != nil {
			return nil, err
		}
	}

	conn, err := sqlx.Connect(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if driver == DriverSQLite {
		// single writer; a transaction owns the only connection
		conn.SetMaxOpenConns(1)
	} else {
		conn.SetMaxOpenConns(cfg.MaxOpenConns)
		conn.SetMaxIdleConns(cfg.MaxIdleConns)
		conn.SetConnMaxLifetime(5 * time.Minute)
	}

	logger.Info("database connection established",
		zap.String("driver", driver),
		zap.String("location", redact(cfg.URL, cfg.SQLitePath)),
	)

	return &DB{conn: conn}, nil
}

// Close closes database connection
func (db *DB) Close() error {
	if db.conn != nil {
		logger.Info("closing database connection")
		return db.conn.Close()
	}
	return nil
}

// Conn returns underlying *sql.DB connection (for migrations)
func (db *DB) Conn() *sql.DB {
	return db.conn.DB
}

// DB returns sqlx.DB for repositories
func (db *DB) DB() *sqlx.DB {
	return db.conn
}

// DriverName returns the sql driver in use
func (db *DB) DriverName() string {
	return db.conn.DriverName()
}

// BeginTxx starts a new sqlx transaction
func (db *DB) BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error) {
	return db.conn.BeginTxx(ctx, opts)
}

// InTx runs fn inside one transaction. The transaction is committed when fn
// returns nil and rolled back otherwise, including when fn panics.
func (db *DB) InTx(ctx context.Context, fn func(tx *sqlx.Tx) error) (err error) {
	tx, err := db.conn.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			logger.Error("transaction rollback failed", zap.Error(rbErr))
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	return nil
}

// Health checks database health
func (db *DB) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := db.conn.PingContext(ctx); err != nil {
		return fmt.Errorf("database health check failed: %w", err)
	}

	return nil
}

func ensureSQLiteDirectory(path string) error {
	dir := filepath.Dir(path)
	if dir == "" || dir == "." {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create sqlite directory %q: %w", dir, err)
	}
	return nil
}
