// Package store persists sessions, credentials, usage snapshots and
// reminder settings in a single SQLite database.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"webot/internal/logging"

	_ "github.com/mattn/go-sqlite3"
)

// Store wraps the SQLite database. All access goes through the mutex;
// SQLite handles one writer at a time and the bot is not write-heavy.
type Store struct {
	db     *sql.DB
	mu     sync.RWMutex
	dbPath string
}

// New initializes the SQLite database at the given path. Use ":memory:"
// for an ephemeral store in tests.
func New(path string) (*Store, error) {
	timer := logging.StartTimer(logging.CategoryStore, "store.New")
	defer timer.Stop()

	logging.Store("Initializing store at path: %s", path)

	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		logging.StoreDebug("Failed to set sqlite busy_timeout: %v", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		logging.StoreDebug("Failed to set sqlite journal_mode=WAL: %v", err)
	}
	// NORMAL is safe with WAL and much faster than FULL.
	if _, err := db.Exec("PRAGMA synchronous = NORMAL"); err != nil {
		logging.StoreDebug("Failed to set sqlite synchronous=NORMAL: %v", err)
	}

	s := &Store{db: db, dbPath: path}
	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}

	logging.Store("Store initialization complete")
	return s, nil
}

// initialize creates the required tables.
func (s *Store) initialize() error {
	snapshotsTable := `
	CREATE TABLE IF NOT EXISTS snapshots (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		chat_id TEXT NOT NULL,
		day TEXT NOT NULL,
		captured_at TEXT NOT NULL,

		used_gb REAL,
		remaining_gb REAL,
		plan TEXT,
		balance_egp REAL,

		renewal_date TEXT,
		remaining_days INTEGER,
		renew_price_egp REAL,

		router_monthly_egp REAL,
		router_renewal_date TEXT,
		total_renew_egp REAL
	);
	CREATE INDEX IF NOT EXISTS idx_snapshots_chat_day ON snapshots(chat_id, day);
	`

	sessionsTable := `
	CREATE TABLE IF NOT EXISTS sessions (
		chat_id TEXT PRIMARY KEY,
		session_data TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);
	`

	credentialsTable := `
	CREATE TABLE IF NOT EXISTS credentials (
		chat_id TEXT PRIMARY KEY,
		service_number TEXT NOT NULL,
		password TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);
	`

	reminderTable := `
	CREATE TABLE IF NOT EXISTS reminder_settings (
		chat_id TEXT PRIMARY KEY,
		enabled INTEGER NOT NULL DEFAULT 1,
		daily_multiplier REAL NOT NULL DEFAULT 1.6,
		monthly_ratio REAL NOT NULL DEFAULT 1.2,
		updated_at TEXT NOT NULL
	);
	`

	alertLogTable := `
	CREATE TABLE IF NOT EXISTS alert_log (
		chat_id TEXT NOT NULL,
		alert_key TEXT NOT NULL,
		day TEXT NOT NULL,
		sent_at TEXT NOT NULL,
		PRIMARY KEY(chat_id, alert_key, day)
	);
	`

	for _, table := range []string{
		snapshotsTable,
		sessionsTable,
		credentialsTable,
		reminderTable,
		alertLogTable,
	} {
		if _, err := s.db.Exec(table); err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
	}
	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	logging.Store("Closing store database connection")
	return s.db.Close()
}

// DB returns the underlying SQL database connection.
func (s *Store) DB() *sql.DB {
	return s.db
}
