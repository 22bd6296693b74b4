// Package database opens sqlx connection pools for the configured aliases.
//
// Supported drivers are modernc sqlite ("sqlite"), lib/pq ("postgres") and
// go-sql-driver/mysql ("mysql"). Every helper pings before returning so
// callers fail fast during bootstrap.
package database

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/mesh-intelligence/attic/pkg/types"
)

// sqlitePragmas are applied to every sqlite connection through the DSN so
// that pooled connections all enforce foreign keys.
var sqlitePragmas = []string{
	"_pragma=foreign_keys(1)",
	"_pragma=busy_timeout(5000)",
	"_pragma=journal_mode(WAL)",
}

func withPragmas(dsn string) string {
	if strings.Contains(dsn, "_pragma=") {
		return dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + strings.Join(sqlitePragmas, "&")
}

// Open returns a pool for cfg. An empty driver means sqlite.
func Open(cfg types.DatabaseConfig) (*sqlx.DB, error) {
	driver := cfg.Driver
	if driver == "" {
		driver = types.DriverSQLite
	}

	dsn := cfg.DSN
	maxOpen := cfg.MaxOpenConns
	switch driver {
	case types.DriverSQLite:
		if err := ensureDir(dsn); err != nil {
			return nil, err
		}
		dsn = withPragmas(dsn)
		// One writer at a time; more connections only add SQLITE_BUSY.
		if maxOpen == 0 {
			maxOpen = 1
		}
	case types.DriverPostgres, types.DriverMySQL:
	default:
		return nil, fmt.Errorf("%w: %q", types.ErrDriverUnknown, driver)
	}

	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	if maxOpen > 0 {
		db.SetMaxOpenConns(maxOpen)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s: %w", driver, err)
	}
	return db, nil
}

// OpenAll opens every configured alias. On failure the pools opened so far
// are closed.
func OpenAll(cfgs map[string]types.DatabaseConfig) (map[string]*sqlx.DB, error) {
	dbs := make(map[string]*sqlx.DB, len(cfgs))
	for alias, cfg := range cfgs {
		db, err := Open(cfg)
		if err != nil {
			CloseAll(dbs)
			return nil, fmt.Errorf("database %s: %w", alias, err)
		}
		dbs[alias] = db
	}
	return dbs, nil
}

// CloseAll closes every pool and returns the first error.
func CloseAll(dbs map[string]*sqlx.DB) error {
	var first error
	for _, db := range dbs {
		if err := db.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// ensureDir creates the directory holding a file-backed sqlite database.
func ensureDir(dsn string) error {
	path := strings.TrimPrefix(dsn, "file:")
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	if path == "" || path == ":memory:" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create database dir: %w", err)
	}
	return nil
}
