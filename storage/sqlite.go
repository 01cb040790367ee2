package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS kv (
    key     TEXT PRIMARY KEY,
    value   BLOB NOT NULL,
    version INTEGER NOT NULL
);
`

// SQLite is a file-backed [Backend]. A single local database file is the
// closest server-free analogue of the browser storage the original
// application persisted into.
type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the database file at path and
// prepares the schema. Use ":memory:" for a throwaway database.
func OpenSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	// modernc.org/sqlite serializes access itself, but a single connection
	// avoids SQLITE_BUSY on concurrent transactions.
	db.SetMaxOpenConns(1)
	return NewSQLite(db)
}

// NewSQLite wraps an existing database handle and prepares the schema.
func NewSQLite(db *sql.DB) (*SQLite, error) {
	if _, err := db.Exec(sqliteSchema); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return &SQLite{db: db}, nil
}

// Close releases the underlying database handle.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// Get implements [Backend].
func (s *SQLite) Get(ctx context.Context, key string) ([]byte, error) {
	v, err := s.GetVersioned(ctx, key)
	if err != nil {
		return nil, err
	}
	return v.Value, nil
}

// GetVersioned implements [Backend].
func (s *SQLite) GetVersioned(ctx context.Context, key string) (Versioned, error) {
	var v Versioned
	row := s.db.QueryRowContext(ctx, `SELECT value, version FROM kv WHERE key = ?`, key)
	if err := row.Scan(&v.Value, &v.Version); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Versioned{}, ErrNotFound
		}
		return Versioned{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return v, nil
}

// Set implements [Backend].
func (s *SQLite) Set(ctx context.Context, key string, value []byte) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO kv (key, value, version) VALUES (?, ?, 1)
ON CONFLICT(key) DO UPDATE SET value = excluded.value, version = kv.version + 1`,
		key, value)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// CompareAndSwap implements [Backend]. The version check and write run in
// one transaction.
func (s *SQLite) CompareAndSwap(ctx context.Context, key string, expected uint64, value []byte) (uint64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer func() { _ = tx.Rollback() }()

	var current uint64
	row := tx.QueryRowContext(ctx, `SELECT version FROM kv WHERE key = ?`, key)
	if err := row.Scan(&current); err != nil && !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if current != expected {
		return current, ErrVersionMismatch
	}

	next := current + 1
	_, err = tx.ExecContext(ctx, `
INSERT INTO kv (key, value, version) VALUES (?, ?, ?)
ON CONFLICT(key) DO UPDATE SET value = excluded.value, version = excluded.version`,
		key, value, next)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return next, nil
}

// Delete implements [Backend].
func (s *SQLite) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, key); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}
