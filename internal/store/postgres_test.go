package store

import (
	"context"
	"testing"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vitalsight/harvest-cli/internal/model"
)

func newMockStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return NewPostgresFromPool(mock), mock
}

func TestPostgresUpsert(t *testing.T) {
	t.Parallel()

	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO products").
		WithArgs("https://shop.test/products/1", "d2c_hunter", "Vitabox", "魚油 60粒",
			880, 14.67, 60, "https://cdn.test/a.jpg", "高濃度").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	n, err := s.UpsertProducts(context.Background(), []model.ProductRecord{{
		URL:               "https://shop.test/products/1",
		Source:            "d2c_hunter",
		Brand:             "Vitabox",
		Title:             "魚油 60粒",
		Price:             880,
		UnitPrice:         14.67,
		TotalCount:        60,
		ImageURL:          "https://cdn.test/a.jpg",
		ProductHighlights: "高濃度",
	}})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresUpsertEmpty(t *testing.T) {
	t.Parallel()

	s, mock := newMockStore(t)

	n, err := s.UpsertProducts(context.Background(), nil)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresListProducts(t *testing.T) {
	t.Parallel()

	s, mock := newMockStore(t)

	rows := pgxmock.NewRows([]string{
		"url", "source", "brand", "title", "price", "unit_price",
		"total_count", "image_url", "product_highlights",
	}).AddRow("https://shop.test/products/1", "d2c_hunter", "Vitabox", "魚油",
		880, 14.67, 60, "", "")

	mock.ExpectQuery("SELECT url, source, brand, title").
		WithArgs("Vitabox").
		WillReturnRows(rows)

	got, err := s.ListProducts(context.Background(), ProductFilter{Brand: "Vitabox"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Vitabox", got[0].Brand)
	assert.Equal(t, 880, got[0].Price)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresCountByBrand(t *testing.T) {
	t.Parallel()

	s, mock := newMockStore(t)

	mock.ExpectQuery("SELECT brand, COUNT").
		WillReturnRows(pgxmock.NewRows([]string{"brand", "count"}).
			AddRow("Vitabox", 12).
			AddRow("大研生醫", 7))

	counts, err := s.CountByBrand(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"Vitabox": 12, "大研生醫": 7}, counts)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresMigrate(t *testing.T) {
	t.Parallel()

	s, mock := newMockStore(t)

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS products").
		WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, s.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}
