package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/vdavid/listbridge/internal/notes"
)

// NotesStore keeps notes in the Postgres "notes" table, keyed by notes.HashKey.
type NotesStore struct {
	pool *pgxpool.Pool
}

// NewNotesStore creates a notes.Store on top of the given pool.
func NewNotesStore(pool *pgxpool.Pool) *NotesStore {
	return &NotesStore{pool: pool}
}

// Get loads the note stored under key into v.
func (s *NotesStore) Get(ctx context.Context, key string, v any) (bool, error) {
	var value []byte
	err := s.pool.QueryRow(ctx, `
		SELECT value FROM notes WHERE key = $1
	`, notes.HashKey(key)).Scan(&value)

	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to get note %q: %w", key, err)
	}

	return true, notes.Decode(value, v)
}

// Set stores v under key. Without force, an existing note is kept and notes.ErrNoteExists is returned.
func (s *NotesStore) Set(ctx context.Context, key string, v any, force bool) error {
	value, err := notes.Encode(v)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO notes (key, name, value)
		VALUES ($1, $2, $3)
		ON CONFLICT (key) DO NOTHING
	`
	if force {
		query = `
			INSERT INTO notes (key, name, value)
			VALUES ($1, $2, $3)
			ON CONFLICT (key) DO UPDATE SET
				value = EXCLUDED.value,
				updated_at = now()
		`
	}

	tag, err := s.pool.Exec(ctx, query, notes.HashKey(key), key, value)
	if err != nil {
		return fmt.Errorf("failed to set note %q: %w", key, err)
	}
	if tag.RowsAffected() == 0 {
		return notes.ErrNoteExists
	}

	return nil
}

// Keys returns the hashes of all stored notes.
func (s *NotesStore) Keys(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT key FROM notes ORDER BY key`)
	if err != nil {
		return nil, fmt.Errorf("failed to list notes: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("failed to scan note key: %w", err)
		}
		keys = append(keys, key)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating notes: %w", err)
	}

	return keys, nil
}
