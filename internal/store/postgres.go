package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/vitalsight/harvest-cli/internal/model"
)

// Pool is the subset of pgxpool.Pool the store needs. pgxmock implements
// it, which keeps the postgres tests free of a live database.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Begin(ctx context.Context) (pgx.Tx, error)
	Close()
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool Pool
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: connect")
	}
	return &PostgresStore{pool: pool}, nil
}

// NewPostgresFromPool wraps an existing pool; used by tests.
func NewPostgresFromPool(pool Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS products (
	url                TEXT PRIMARY KEY,
	source             TEXT NOT NULL,
	brand              TEXT NOT NULL,
	title              TEXT NOT NULL,
	price              INTEGER NOT NULL DEFAULT 0,
	unit_price         DOUBLE PRECISION NOT NULL DEFAULT 0,
	total_count        INTEGER NOT NULL DEFAULT 0,
	image_url          TEXT NOT NULL DEFAULT '',
	product_highlights TEXT NOT NULL DEFAULT '',
	updated_at         TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_products_brand ON products(brand);
CREATE INDEX IF NOT EXISTS idx_products_source ON products(source)
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

const postgresUpsert = `
INSERT INTO products (url, source, brand, title, price, unit_price, total_count, image_url, product_highlights, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now())
ON CONFLICT (url) DO UPDATE SET
	source             = EXCLUDED.source,
	brand              = EXCLUDED.brand,
	title              = EXCLUDED.title,
	price              = EXCLUDED.price,
	unit_price         = EXCLUDED.unit_price,
	total_count        = EXCLUDED.total_count,
	image_url          = EXCLUDED.image_url,
	product_highlights = EXCLUDED.product_highlights,
	updated_at         = EXCLUDED.updated_at
`

func (s *PostgresStore) UpsertProducts(ctx context.Context, records []model.ProductRecord) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: begin upsert")
	}
	defer tx.Rollback(ctx)

	for _, r := range records {
		if r.URL == "" {
			continue
		}
		if _, err := tx.Exec(ctx, postgresUpsert,
			r.URL, r.Source, r.Brand, r.Title,
			r.Price, r.UnitPrice, r.TotalCount,
			r.ImageURL, r.ProductHighlights,
		); err != nil {
			return 0, eris.Wrapf(err, "postgres: upsert %s", r.URL)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, eris.Wrap(err, "postgres: commit upsert")
	}
	return len(records), nil
}

func (s *PostgresStore) ListProducts(ctx context.Context, filter ProductFilter) ([]model.ProductRecord, error) {
	query := `SELECT url, source, brand, title, price, unit_price, total_count, image_url, product_highlights
FROM products WHERE 1=1`
	var args []any
	if filter.Brand != "" {
		args = append(args, filter.Brand)
		query += " AND brand = $1"
	}
	if filter.Source != "" {
		args = append(args, filter.Source)
		query += posParam(" AND source = $%d", len(args))
	}
	query += " ORDER BY updated_at DESC, url"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += posParam(" LIMIT $%d", len(args))
		if filter.Offset > 0 {
			args = append(args, filter.Offset)
			query += posParam(" OFFSET $%d", len(args))
		}
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list products")
	}
	defer rows.Close()

	var records []model.ProductRecord
	for rows.Next() {
		var r model.ProductRecord
		if err := rows.Scan(&r.URL, &r.Source, &r.Brand, &r.Title,
			&r.Price, &r.UnitPrice, &r.TotalCount,
			&r.ImageURL, &r.ProductHighlights); err != nil {
			return nil, eris.Wrap(err, "postgres: scan product")
		}
		records = append(records, r)
	}
	return records, eris.Wrap(rows.Err(), "postgres: iterate products")
}

func posParam(format string, n int) string {
	return fmt.Sprintf(format, n)
}

func (s *PostgresStore) CountByBrand(ctx context.Context) (map[string]int, error) {
	rows, err := s.pool.Query(ctx, `SELECT brand, COUNT(*) FROM products GROUP BY brand`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: count by brand")
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var brand string
		var n int
		if err := rows.Scan(&brand, &n); err != nil {
			return nil, eris.Wrap(err, "postgres: scan count")
		}
		counts[brand] = n
	}
	return counts, eris.Wrap(rows.Err(), "postgres: iterate counts")
}
