package catalog

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// schema creates the products table and its full-text search index.
const schema = `
CREATE TABLE IF NOT EXISTS products (
    sku         TEXT PRIMARY KEY,
    name        TEXT NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    price_cents INTEGER NOT NULL,
    stock       INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS products_fts_idx ON products
    USING GIN (to_tsvector('english', name || ' ' || description));
`

// PostgresBackend serves catalog searches from a products table with a GIN
// full-text index. All methods are safe for concurrent use.
type PostgresBackend struct {
	pool *pgxpool.Pool
}

// Compile-time interface assertion.
var _ Backend = (*PostgresBackend)(nil)

// NewPostgres connects to the database at dsn and ensures the schema exists.
func NewPostgres(ctx context.Context, dsn string) (*PostgresBackend, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("catalog: connect: %w", err)
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("catalog: ensure schema: %w", err)
	}
	return &PostgresBackend{pool: pool}, nil
}

// Search implements [Backend] using PostgreSQL full-text search ranked by
// ts_rank. The query goes through plainto_tsquery, so caller speech needs no
// operator escaping.
func (p *PostgresBackend) Search(ctx context.Context, query string, limit int) ([]Product, error) {
	const q = `
		SELECT sku, name, price_cents, stock
		FROM   products
		WHERE  to_tsvector('english', name || ' ' || description)
		       @@ plainto_tsquery('english', $1)
		ORDER  BY ts_rank(
		       to_tsvector('english', name || ' ' || description),
		       plainto_tsquery('english', $1)) DESC
		LIMIT  $2`

	rows, err := p.pool.Query(ctx, q, query, limit)
	if err != nil {
		return nil, fmt.Errorf("catalog: query: %w", err)
	}

	products, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Product, error) {
		var pr Product
		err := row.Scan(&pr.SKU, &pr.Name, &pr.PriceCents, &pr.Stock)
		return pr, err
	})
	if err != nil {
		return nil, fmt.Errorf("catalog: scan: %w", err)
	}
	return products, nil
}

// Ping probes database connectivity, for readiness checks.
func (p *PostgresBackend) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

// Close releases the connection pool.
func (p *PostgresBackend) Close() {
	p.pool.Close()
}
