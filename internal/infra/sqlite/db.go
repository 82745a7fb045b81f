// Package sqlite is the local persistence layer: ledger, notes, wallets and
// duplicate-review decisions in a single SQLite file under the home directory.
package sqlite

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// FileName is the database file created inside the data directory.
const FileName = "tronledger.db"

// DB wraps the SQLite handle.
type DB struct {
	db   *sql.DB
	path string
}

// Open creates (if needed) and opens the database in dir, then migrates it.
func Open(dir string) (*DB, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	path := filepath.Join(dir, FileName)

	dsn := "file:" + path + "?_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	// SQLite allows one writer; a single connection keeps writes serialized.
	sqlDB.SetMaxOpenConns(1)

	d := &DB{db: sqlDB, path: path}
	if err := d.migrate(); err != nil {
		sqlDB.Close()
		return nil, err
	}
	return d, nil
}

// Path returns the database file location.
func (d *DB) Path() string { return d.path }

// Close releases the database handle.
func (d *DB) Close() error { return d.db.Close() }

func (d *DB) migrate() error {
	for _, stmt := range Migrations() {
		if _, err := d.db.Exec(stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// ─── Schema ─────────────────────────────────────────────────────────────────

// Migrations returns the schema statements.
// Each string is a single SQL statement (SQLite executes one at a time).
func Migrations() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS transactions (
			hash         TEXT PRIMARY KEY,
			amount       TEXT NOT NULL,
			direction    TEXT NOT NULL,
			from_addr    TEXT NOT NULL,
			to_addr      TEXT NOT NULL,
			block_time   INTEGER NOT NULL,
			block_number INTEGER NOT NULL DEFAULT 0,
			wallet       TEXT NOT NULL DEFAULT '',
			status       TEXT NOT NULL DEFAULT 'completed',
			updated_at   TEXT NOT NULL DEFAULT (datetime('now'))
		)`,
		`CREATE INDEX IF NOT EXISTS idx_transactions_time ON transactions(block_time DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_transactions_wallet ON transactions(wallet)`,

		// Notes are kept apart from transfers so a re-fetch never touches them.
		`CREATE TABLE IF NOT EXISTS notes (
			hash       TEXT PRIMARY KEY,
			text       TEXT NOT NULL,
			created_at TEXT NOT NULL DEFAULT (datetime('now'))
		)`,

		`CREATE TABLE IF NOT EXISTS wallets (
			id         TEXT PRIMARY KEY,
			address    TEXT NOT NULL UNIQUE,
			nickname   TEXT NOT NULL,
			balance    TEXT,
			last_sync  INTEGER,
			created_at INTEGER NOT NULL,
			position   INTEGER NOT NULL DEFAULT 0
		)`,

		`CREATE TABLE IF NOT EXISTS duplicate_decisions (
			cluster_id TEXT PRIMARY KEY,
			members    TEXT NOT NULL,
			status     TEXT NOT NULL DEFAULT 'legitimate',
			decided_at INTEGER NOT NULL
		)`,
	}
}
