package store

import (
	"context"
	"database/sql"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/vitalsight/harvest-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS products (
	url                TEXT PRIMARY KEY,
	source             TEXT NOT NULL,
	brand              TEXT NOT NULL,
	title              TEXT NOT NULL,
	price              INTEGER NOT NULL DEFAULT 0,
	unit_price         REAL NOT NULL DEFAULT 0,
	total_count        INTEGER NOT NULL DEFAULT 0,
	image_url          TEXT NOT NULL DEFAULT '',
	product_highlights TEXT NOT NULL DEFAULT '',
	updated_at         DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_products_brand ON products(brand);
CREATE INDEX IF NOT EXISTS idx_products_source ON products(source);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

const sqliteUpsert = `
INSERT INTO products (url, source, brand, title, price, unit_price, total_count, image_url, product_highlights, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, datetime('now'))
ON CONFLICT(url) DO UPDATE SET
	source             = excluded.source,
	brand              = excluded.brand,
	title              = excluded.title,
	price              = excluded.price,
	unit_price         = excluded.unit_price,
	total_count        = excluded.total_count,
	image_url          = excluded.image_url,
	product_highlights = excluded.product_highlights,
	updated_at         = excluded.updated_at
`

func (s *SQLiteStore) UpsertProducts(ctx context.Context, records []model.ProductRecord) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin upsert")
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, sqliteUpsert)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: prepare upsert")
	}
	defer stmt.Close()

	for _, r := range records {
		if r.URL == "" {
			continue
		}
		if _, err := stmt.ExecContext(ctx,
			r.URL, r.Source, r.Brand, r.Title,
			r.Price, r.UnitPrice, r.TotalCount,
			r.ImageURL, r.ProductHighlights,
		); err != nil {
			return 0, eris.Wrapf(err, "sqlite: upsert %s", r.URL)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit upsert")
	}
	return len(records), nil
}

func (s *SQLiteStore) ListProducts(ctx context.Context, filter ProductFilter) ([]model.ProductRecord, error) {
	query := `SELECT url, source, brand, title, price, unit_price, total_count, image_url, product_highlights
FROM products WHERE 1=1`
	var args []any
	if filter.Brand != "" {
		query += " AND brand = ?"
		args = append(args, filter.Brand)
	}
	if filter.Source != "" {
		query += " AND source = ?"
		args = append(args, filter.Source)
	}
	query += " ORDER BY updated_at DESC, url"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
		if filter.Offset > 0 {
			query += " OFFSET ?"
			args = append(args, filter.Offset)
		}
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list products")
	}
	defer rows.Close()

	var records []model.ProductRecord
	for rows.Next() {
		var r model.ProductRecord
		if err := rows.Scan(&r.URL, &r.Source, &r.Brand, &r.Title,
			&r.Price, &r.UnitPrice, &r.TotalCount,
			&r.ImageURL, &r.ProductHighlights); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan product")
		}
		records = append(records, r)
	}
	return records, eris.Wrap(rows.Err(), "sqlite: iterate products")
}

func (s *SQLiteStore) CountByBrand(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT brand, COUNT(*) FROM products GROUP BY brand`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: count by brand")
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var brand string
		var n int
		if err := rows.Scan(&brand, &n); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan count")
		}
		counts[brand] = n
	}
	return counts, eris.Wrap(rows.Err(), "sqlite: iterate counts")
}
