package testdb

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/selivandex/market-pulse/internal/adapters/config"
	"github.com/selivandex/market-pulse/internal/adapters/database"
)

// Setup opens a freshly migrated database for one test. By default this is
// an SQLite file under t.TempDir(); TEST_DATABASE_URL switches to Postgres,
// in which case tables are truncated on cleanup.
func Setup(t *testing.T) *database.DB {
	t.Helper()

	cfg := &config.DatabaseConfig{
		URL:          os.Getenv("TEST_DATABASE_URL"),
		SQLitePath:   filepath.Join(t.TempDir(), "test.db"),
		MaxOpenConns: 5,
		MaxIdleConns: 2,
	}

	db, err := database.New(cfg)
	if err != nil {
		t.Fatalf("failed to connect to test database: %v", err)
	}

	if err := database.RunMigrations(db); err != nil {
		_ = db.Close()
		t.Fatalf("failed to migrate test database: %v", err)
	}

	t.Cleanup(func() {
		if db.DriverName() == database.DriverPostgres {
			if _, err := db.DB().Exec(`TRUNCATE comments, posts, sentiment_data, stocks RESTART IDENTITY CASCADE`); err != nil {
				t.Logf("warning: failed to truncate tables: %v", err)
			}
		}
		if err := db.Close(); err != nil {
			t.Logf("warning: failed to close database: %v", err)
		}
	})

	return db
}

// Count returns the number of rows in table
func Count(t *testing.T, db *database.DB, table string) int {
	t.Helper()

	var count int
	if err := db.DB().Get(&count, "SELECT COUNT(*) FROM "+table); err != nil {
		t.Fatalf("failed to count %s: %v", table, err)
	}
	return count
}

// Exec executes SQL against the test database
func Exec(t *testing.T, db *database.DB, query string, args ...interface{}) {
	t.Helper()

	if _, err := db.DB().Exec(db.DB().Rebind(query), args...); err != nil {
		t.Fatalf("failed to execute query: %v\nQuery: %s", err, query)
	}
}
