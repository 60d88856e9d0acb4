// Package store persists product records. Records are keyed by URL:
// upserting an existing URL replaces the row.
package store

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/vitalsight/harvest-cli/internal/config"
	"github.com/vitalsight/harvest-cli/internal/model"
)

// ProductFilter narrows ListProducts.
type ProductFilter struct {
	Brand  string
	Source string
	Limit  int
	Offset int
}

// Store is the persistence interface for product records.
type Store interface {
	// UpsertProducts writes records, replacing rows with the same URL.
	// Returns the number of rows written.
	UpsertProducts(ctx context.Context, records []model.ProductRecord) (int, error)

	// ListProducts returns records matching the filter, newest update first.
	ListProducts(ctx context.Context, filter ProductFilter) ([]model.ProductRecord, error)

	// CountByBrand tallies stored products per brand.
	CountByBrand(ctx context.Context) (map[string]int, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// Open builds a Store from config by driver name.
func Open(ctx context.Context, cfg config.StoreConfig) (Store, error) {
	switch cfg.Driver {
	case "", "sqlite":
		return NewSQLite(cfg.Path)
	case "postgres":
		return NewPostgres(ctx, cfg.DatabaseURL)
	default:
		return nil, eris.Errorf("store: unknown driver %q", cfg.Driver)
	}
}
