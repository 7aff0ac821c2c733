package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/vdavid/listbridge/internal/config"
)

const (
	applicationName = "listbridge"

	// A sync run does one note lookup or insert at a time.
	maxNoteConns = 2

	noteStatementTimeout = 30 * time.Second
	connectTimeout       = 10 * time.Second
)

// NewConnection opens the pool backing NotesStore and checks that the database answers.
func NewConnection(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	poolConfig, err := notesPoolConfig(cfg)
	if err != nil {
		return nil, err
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return pool, nil
}

// notesPoolConfig sizes the pool for one sequential sync run. Connections carry the
// application name and a statement timeout.
func notesPoolConfig(cfg *config.Config) (*pgxpool.Config, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.GetDatabaseURL())
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}

	poolConfig.MaxConns = maxNoteConns
	poolConfig.MinConns = 0
	poolConfig.MaxConnIdleTime = 5 * time.Minute
	poolConfig.ConnConfig.ConnectTimeout = connectTimeout
	poolConfig.ConnConfig.RuntimeParams["application_name"] = applicationName
	poolConfig.ConnConfig.RuntimeParams["statement_timeout"] = fmt.Sprint(noteStatementTimeout.Milliseconds())

	return poolConfig, nil
}

// CloseConnection closes the given database connection pool.
func CloseConnection(pool *pgxpool.Pool) {
	if pool != nil {
		pool.Close()
	}
}
