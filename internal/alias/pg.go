package alias

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PGPersister stores alias mappings in the aliases table.
type PGPersister struct {
	pool *pgxpool.Pool
}

// NewPGPersister creates a Postgres-backed Persister.
func NewPGPersister(pool *pgxpool.Pool) (*PGPersister, error) {
	if pool == nil {
		return nil, fmt.Errorf("database pool is required")
	}
	return &PGPersister{pool: pool}, nil
}

// Insert stores a mapping. An existing (keyword, alias) pair is left
// untouched.
func (p *PGPersister) Insert(ctx context.Context, m Mapping) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO aliases (keyword, alias, language)
		VALUES ($1, $2, $3)
		ON CONFLICT (keyword, alias) DO NOTHING`,
		m.Keyword, m.Alias, m.Language)
	if err != nil {
		return fmt.Errorf("inserting alias: %w", err)
	}
	return nil
}

// Delete removes a mapping.
func (p *PGPersister) Delete(ctx context.Context, keyword, alias string) error {
	_, err := p.pool.Exec(ctx, `
		DELETE FROM aliases WHERE keyword = $1 AND alias = $2`,
		keyword, alias)
	if err != nil {
		return fmt.Errorf("deleting alias: %w", err)
	}
	return nil
}

// List returns every stored mapping.
func (p *PGPersister) List(ctx context.Context) ([]Mapping, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT keyword, alias, language FROM aliases ORDER BY keyword, alias`)
	if err != nil {
		return nil, fmt.Errorf("listing aliases: %w", err)
	}
	defer rows.Close()

	var out []Mapping
	for rows.Next() {
		var m Mapping
		if err := rows.Scan(&m.Keyword, &m.Alias, &m.Language); err != nil {
			return nil, fmt.Errorf("scanning alias row: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating alias rows: %w", err)
	}
	return out, nil
}
