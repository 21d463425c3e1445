package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/danpires/tally/internal/config"
	_ "modernc.org/sqlite"
)

// CurrentSchemaVersion is the latest schema version.
// Bump this when adding migrations.
const CurrentSchemaVersion = 1

// Init initializes the SQLite database at baseDir/tally.db.
// The baseDir parameter allows tests to use t.TempDir() instead of ~/.tally.
func Init(baseDir string) (*sql.DB, error) {
	if err := os.MkdirAll(baseDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}
	_ = os.Chmod(baseDir, 0700)

	exportsDir := filepath.Join(baseDir, "exports")
	if err := os.MkdirAll(exportsDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create exports directory: %w", err)
	}
	_ = os.Chmod(exportsDir, 0700)

	// Pragmas in the connection string apply to all pooled connections.
	dbPath := filepath.Join(baseDir, "tally.db")
	dsn := dbPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := verifyWALMode(db); err != nil {
		db.Close()
		return nil, err
	}

	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}

	_ = os.Chmod(dbPath, 0600)

	return db, nil
}

// ConfigurePool applies connection pool settings from config.
// Only sets limits if explicitly configured (non-zero values).
func ConfigurePool(db *sql.DB, cfg *config.Config) {
	if cfg == nil {
		return
	}
	if cfg.DBMaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.DBMaxOpenConns)
	}
	if cfg.DBMaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.DBMaxIdleConns)
	}
}

// migrate applies schema migrations based on user_version.
func migrate(db *sql.DB) error {
	version, err := GetUserVersion(db)
	if err != nil {
		return err
	}

	// Migration 0 -> 1: initial schema.
	if version < 1 {
		schema := `
		CREATE TABLE IF NOT EXISTS entries (
		  id               TEXT PRIMARY KEY,
		  owner            TEXT NOT NULL,
		  work_item_id     INTEGER NOT NULL,
		  entry_date       TEXT NOT NULL,
		  duration_minutes INTEGER NOT NULL,
		  comment          TEXT,
		  sync_status      TEXT NOT NULL,
		  clamped_hours    REAL,
		  created_at       INTEGER NOT NULL,
		  last_modified_at INTEGER NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_entries_owner_date
		ON entries(owner, entry_date);

		CREATE INDEX IF NOT EXISTS idx_entries_status_created
		ON entries(sync_status, created_at);

		CREATE TABLE IF NOT EXISTS work_items (
		  id             INTEGER PRIMARY KEY,
		  title          TEXT NOT NULL,
		  item_type      TEXT NOT NULL,
		  completed_work REAL NOT NULL DEFAULT 0,
		  remaining_work REAL NOT NULL DEFAULT 0,
		  last_synced_at INTEGER NOT NULL
		);

		CREATE TABLE IF NOT EXISTS search_cache (
		  query_norm   TEXT NOT NULL,
		  page         INTEGER NOT NULL,
		  results_json TEXT NOT NULL,
		  has_more     INTEGER NOT NULL DEFAULT 0,
		  expires_at   INTEGER NOT NULL,
		  PRIMARY KEY (query_norm, page)
		);

		CREATE TABLE IF NOT EXISTS search_cache_items (
		  query_norm   TEXT NOT NULL,
		  page         INTEGER NOT NULL,
		  work_item_id INTEGER NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_search_cache_items_item
		ON search_cache_items(work_item_id);

		CREATE TABLE IF NOT EXISTS sync_records (
		  entry_id      TEXT PRIMARY KEY,
		  attempts      INTEGER NOT NULL DEFAULT 0,
		  last_error    TEXT,
		  next_retry_at INTEGER NOT NULL DEFAULT 0
		);
		`
		if _, err := db.Exec(schema); err != nil {
			return fmt.Errorf("migration 1 failed: %w", err)
		}
		if err := SetUserVersion(db, 1); err != nil {
			return err
		}
	}

	// Future migrations go here:
	// if version < 2 { ... }

	return nil
}

// verifyWALMode checks that WAL mode is active (set via connection string).
func verifyWALMode(db *sql.DB) error {
	var journalMode string
	if err := db.QueryRow("PRAGMA journal_mode;").Scan(&journalMode); err != nil {
		return fmt.Errorf("failed to verify journal mode: %w", err)
	}
	if journalMode != "wal" {
		return fmt.Errorf("expected WAL mode, got %s", journalMode)
	}
	return nil
}

// GetUserVersion returns the current schema version (user_version pragma).
func GetUserVersion(db *sql.DB) (int, error) {
	var version int
	if err := db.QueryRow("PRAGMA user_version;").Scan(&version); err != nil {
		return 0, fmt.Errorf("failed to get user_version: %w", err)
	}
	return version, nil
}

// SetUserVersion sets the schema version (user_version pragma).
func SetUserVersion(db *sql.DB, version int) error {
	_, err := db.Exec(fmt.Sprintf("PRAGMA user_version=%d", version))
	if err != nil {
		return fmt.Errorf("failed to set user_version: %w", err)
	}
	return nil
}
