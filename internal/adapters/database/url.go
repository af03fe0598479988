package database

import (
	"fmt"
	"net/url"
	"strings"
)

const (
	deprecatedPostgresScheme = "postgres://"
	postgresScheme           = "postgresql://"
)

// sqlite pragmas applied on every connection
const sqlitePragmas = "_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"

// NormalizeURL rewrites the deprecated postgres:// scheme (as handed out by
// Heroku-style platforms) to postgresql://.
func NormalizeURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, deprecatedPostgresScheme) {
		return postgresScheme + strings.TrimPrefix(raw, deprecatedPostgresScheme)
	}
	return raw
}

// ResolveDSN picks the driver and DSN for a storage URL. An empty URL
// falls back to the embedded SQLite file.
func ResolveDSN(rawURL, sqlitePath string) (driver, dsn string, err error) {
	normalized := NormalizeURL(rawURL)

	switch {
	case normalized == "":
		if sqlitePath == "" {
			return "", "", fmt.Errorf("no database url and no sqlite path configured")
		}
		return DriverSQLite, sqliteDSN(sqlitePath), nil

	case strings.HasPrefix(normalized, postgresScheme):
		return DriverPostgres, normalized, nil

	case strings.HasPrefix(normalized, "sqlite://"):
		return DriverSQLite, sqliteDSN(strings.TrimPrefix(normalized, "sqlite://")), nil

	case strings.HasPrefix(normalized, "file:"):
		return DriverSQLite, sqliteDSN(strings.TrimPrefix(normalized, "file:")), nil

	default:
		return "", "", fmt.Errorf("unsupported database url scheme in %q", redactURL(normalized))
	}
}

func sqliteDSN(path string) string {
	if idx := strings.Index(path, "?"); idx >= 0 {
		return "file:" + path + "&" + sqlitePragmas
	}
	return "file:" + path + "?" + sqlitePragmas
}

// redact returns a loggable storage location without credentials
func redact(rawURL, sqlitePath string) string {
	if strings.TrimSpace(rawURL) == "" {
		return sqlitePath
	}
	return redactURL(NormalizeURL(rawURL))
}

func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "<unparseable>"
	}
	return u.Redacted()
}
