package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/vdavid/listbridge/internal/notes"
)

// sqliteSchema mirrors migrations/001_create_notes.up.sql.
const sqliteSchema = `
CREATE TABLE IF NOT EXISTS notes (
    key        TEXT PRIMARY KEY,
    name       TEXT NOT NULL,
    value      TEXT NOT NULL,
    created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now')),
    updated_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now'))
);
`

// SQLiteNotesStore keeps notes in a local SQLite file, for single-machine setups.
type SQLiteNotesStore struct {
	db *sqlx.DB
}

// OpenSQLite opens (or creates) the notes database at path.
func OpenSQLite(path string) (*SQLiteNotesStore, error) {
	db, err := sqlx.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing schema: %w", err)
	}

	return &SQLiteNotesStore{db: db}, nil
}

// Close closes the underlying database.
func (s *SQLiteNotesStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteNotesStore) Get(ctx context.Context, key string, v any) (bool, error) {
	var value string
	err := s.db.GetContext(ctx, &value, `SELECT value FROM notes WHERE key = ?`, notes.HashKey(key))
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("getting note %q: %w", key, err)
	}
	return true, notes.Decode([]byte(value), v)
}

func (s *SQLiteNotesStore) Set(ctx context.Context, key string, v any, force bool) error {
	value, err := notes.Encode(v)
	if err != nil {
		return err
	}

	query := `INSERT INTO notes (key, name, value) VALUES (?, ?, ?) ON CONFLICT (key) DO NOTHING`
	if force {
		query = `INSERT INTO notes (key, name, value) VALUES (?, ?, ?)
			ON CONFLICT (key) DO UPDATE SET
				value = excluded.value,
				updated_at = strftime('%Y-%m-%dT%H:%M:%SZ', 'now')`
	}

	res, err := s.db.ExecContext(ctx, query, notes.HashKey(key), key, string(value))
	if err != nil {
		return fmt.Errorf("setting note %q: %w", key, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking note %q: %w", key, err)
	}
	if n == 0 {
		return notes.ErrNoteExists
	}
	return nil
}

func (s *SQLiteNotesStore) Keys(ctx context.Context) ([]string, error) {
	var keys []string
	if err := s.db.SelectContext(ctx, &keys, `SELECT key FROM notes ORDER BY key`); err != nil {
		return nil, fmt.Errorf("listing notes: %w", err)
	}
	return keys, nil
}
