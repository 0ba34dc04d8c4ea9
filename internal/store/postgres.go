package store

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrations embed.FS

// PostgresStore persists session state in PostgreSQL.
//
// PostgresStore does not own the pool; Close is a no-op.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore wraps an existing pool.
func NewPostgresStore(pool *pgxpool.Pool) (*PostgresStore, error) {
	if pool == nil {
		return nil, errors.New("store: nil pool")
	}
	return &PostgresStore{pool: pool}, nil
}

// NewPool builds a pgxpool and validates connectivity.
func NewPool(ctx context.Context, databaseURL string, maxConns int) (*pgxpool.Pool, error) {
	pcfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	if maxConns > 0 {
		pcfg.MaxConns = int32(maxConns)
	}

	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, err
	}

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

// Migrate applies the embedded schema migrations.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	db := stdlib.OpenDBFromPool(pool)
	defer db.Close()

	goose.SetBaseFS(migrations)
	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}
	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}

func (s *PostgresStore) SaveTranscript(ctx context.Context, sessionID, text string) error {
	if err := validSession(sessionID); err != nil {
		return err
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO conversation_state (session_id, transcript, updated_at)
		 VALUES ($1, $2, now())
		 ON CONFLICT (session_id) DO UPDATE
		    SET transcript = EXCLUDED.transcript,
		        updated_at = now()`,
		sessionID, text,
	)
	return err
}

func (s *PostgresStore) LoadTranscript(ctx context.Context, sessionID string) (string, error) {
	return s.loadColumn(ctx, sessionID, "transcript")
}

func (s *PostgresStore) SaveSummary(ctx context.Context, sessionID, summary string) error {
	if err := validSession(sessionID); err != nil {
		return err
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO conversation_state (session_id, summary, updated_at)
		 VALUES ($1, $2, now())
		 ON CONFLICT (session_id) DO UPDATE
		    SET summary = EXCLUDED.summary,
		        updated_at = now()`,
		sessionID, summary,
	)
	return err
}

func (s *PostgresStore) LoadSummary(ctx context.Context, sessionID string) (string, error) {
	return s.loadColumn(ctx, sessionID, "summary")
}

func (s *PostgresStore) DeleteSession(ctx context.Context, sessionID string) error {
	if err := validSession(sessionID); err != nil {
		return err
	}
	_, err := s.pool.Exec(ctx, `DELETE FROM conversation_state WHERE session_id = $1`, sessionID)
	return err
}

// Close is a no-op because the pool is owned by the caller.
func (s *PostgresStore) Close() error { return nil }

// column is one of a fixed set of identifiers, never user input.
func (s *PostgresStore) loadColumn(ctx context.Context, sessionID, column string) (string, error) {
	if err := validSession(sessionID); err != nil {
		return "", err
	}
	var v string
	err := s.pool.QueryRow(ctx,
		`SELECT `+column+` FROM conversation_state WHERE session_id = $1`,
		sessionID,
	).Scan(&v)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	return v, err
}
