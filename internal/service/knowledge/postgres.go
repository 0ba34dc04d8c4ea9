package knowledge

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Postgres retrieves passages with full-text search over the guidelines table.
// The pool is owned by the caller.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres wraps an existing pool.
func NewPostgres(pool *pgxpool.Pool) (*Postgres, error) {
	if pool == nil {
		return nil, errors.New("knowledge: nil pool")
	}
	return &Postgres{pool: pool}, nil
}

func (p *Postgres) Retrieve(ctx context.Context, query string, k int) ([]string, error) {
	if k <= 0 {
		k = DefaultTopK
	}
	rows, err := p.pool.Query(ctx,
		`SELECT body
		   FROM guidelines, websearch_to_tsquery('english', $1) q
		  WHERE document @@ q
		  ORDER BY ts_rank(document, q) DESC, id
		  LIMIT $2`,
		query, k,
	)
	if err != nil {
		return nil, fmt.Errorf("query guidelines: %w", err)
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

// SeedIfEmpty inserts passages when the guidelines table has no rows.
// It reports whether anything was inserted.
func (p *Postgres) SeedIfEmpty(ctx context.Context, passages []Passage) (bool, error) {
	var n int64
	if err := p.pool.QueryRow(ctx, `SELECT count(*) FROM guidelines`).Scan(&n); err != nil {
		return false, err
	}
	if n > 0 || len(passages) == 0 {
		return false, nil
	}

	batch := &pgx.Batch{}
	for _, ps := range passages {
		batch.Queue(`INSERT INTO guidelines (title, body) VALUES ($1, $2)`, ps.Title, ps.Body)
	}
	if err := p.pool.SendBatch(ctx, batch).Close(); err != nil {
		return false, fmt.Errorf("seed guidelines: %w", err)
	}
	return true, nil
}
