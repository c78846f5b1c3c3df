package database

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// DB is the activity database with its schema applied.
type DB struct {
	*sql.DB
}

// New opens the SQLite database at dbPath and brings its schema up to date.
func New(dbPath string) (*DB, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Set connection pool settings
	db.SetMaxOpenConns(1) // SQLite limitation
	db.SetMaxIdleConns(1)

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to configure database: %w", err)
	}

	if err := runMigrations(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &DB{db}, nil
}

// Version returns the highest applied migration.
func (db *DB) Version() (int, error) {
	return currentVersion(db.DB)
}

type migration struct {
	name string
	stmt string
}

// migrations are applied in slice order; version is index + 1.
var migrations = []migration{
	{"usage records", migrationUsageRecords},
	{"usage indexes", migrationUsageIndexes},
}

func currentVersion(db *sql.DB) (int, error) {
	var version int
	err := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM migrations").Scan(&version)
	return version, err
}

func runMigrations(db *sql.DB) error {
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS migrations (
			version INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			applied_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now'))
		)
	`); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	applied, err := currentVersion(db)
	if err != nil {
		return fmt.Errorf("failed to get current migration version: %w", err)
	}

	for i := applied; i < len(migrations); i++ {
		if err := applyMigration(db, i+1, migrations[i]); err != nil {
			return err
		}
	}
	return nil
}

func applyMigration(db *sql.DB, version int, m migration) (err error) {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("migration %d (%s): begin: %w", version, m.name, err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.Exec(m.stmt); err != nil {
		return fmt.Errorf("migration %d (%s): %w", version, m.name, err)
	}
	if _, err = tx.Exec("INSERT INTO migrations (version, name) VALUES (?, ?)", version, m.name); err != nil {
		return fmt.Errorf("migration %d (%s): record: %w", version, m.name, err)
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("migration %d (%s): commit: %w", version, m.name, err)
	}
	return nil
}

// Timestamps are stored as Unix nanoseconds.
const migrationUsageRecords = `
CREATE TABLE IF NOT EXISTS usage_records (
	id TEXT PRIMARY KEY,
	user_id INTEGER NOT NULL,
	category TEXT NOT NULL,
	start_at INTEGER NOT NULL,
	end_at INTEGER,
	current INTEGER NOT NULL DEFAULT 0,
	login_id TEXT NOT NULL DEFAULT ''
);
`

const migrationUsageIndexes = `
CREATE INDEX IF NOT EXISTS idx_usage_user_start ON usage_records(user_id, start_at);
CREATE INDEX IF NOT EXISTS idx_usage_closed_end ON usage_records(current, end_at);
CREATE INDEX IF NOT EXISTS idx_usage_login ON usage_records(login_id);
`
