package store

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vitalsight/harvest-cli/internal/config"
	"github.com/vitalsight/harvest-cli/internal/model"
)

func newTestSQLite(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func sampleRecord(url string) model.ProductRecord {
	return model.ProductRecord{
		Source:            "d2c_hunter",
		Brand:             "Vitabox",
		Title:             "高濃度魚油 60粒",
		Price:             880,
		UnitPrice:         14.67,
		TotalCount:        60,
		URL:               url,
		ImageURL:          "https://cdn.test/a.jpg",
		ProductHighlights: "高濃度;檢驗合格",
	}
}

func TestSQLiteRoundTrip(t *testing.T) {
	t.Parallel()

	s := newTestSQLite(t)
	ctx := context.Background()

	var records []model.ProductRecord
	for i := 0; i < 5; i++ {
		records = append(records, sampleRecord(fmt.Sprintf("https://shop.test/products/%d", i)))
	}

	n, err := s.UpsertProducts(ctx, records)
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	got, err := s.ListProducts(ctx, ProductFilter{})
	require.NoError(t, err)
	require.Len(t, got, 5)

	assert.Equal(t, "Vitabox", got[0].Brand)
	assert.Equal(t, 880, got[0].Price)
	assert.InDelta(t, 14.67, got[0].UnitPrice, 0.001)
	assert.Equal(t, "高濃度;檢驗合格", got[0].ProductHighlights)
}

func TestSQLiteUpsertReplacesByURL(t *testing.T) {
	t.Parallel()

	s := newTestSQLite(t)
	ctx := context.Background()

	url := "https://shop.test/products/fish-oil"
	first := sampleRecord(url)
	_, err := s.UpsertProducts(ctx, []model.ProductRecord{first})
	require.NoError(t, err)

	updated := first
	updated.Price = 790
	updated.Title = "高濃度魚油 60粒 (特價)"
	_, err = s.UpsertProducts(ctx, []model.ProductRecord{updated})
	require.NoError(t, err)

	got, err := s.ListProducts(ctx, ProductFilter{})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 790, got[0].Price)
	assert.Equal(t, "高濃度魚油 60粒 (特價)", got[0].Title)
}

func TestSQLiteListFilters(t *testing.T) {
	t.Parallel()

	s := newTestSQLite(t)
	ctx := context.Background()

	a := sampleRecord("https://a.test/products/1")
	b := sampleRecord("https://b.test/products/1")
	b.Brand = "大研生醫"

	_, err := s.UpsertProducts(ctx, []model.ProductRecord{a, b})
	require.NoError(t, err)

	got, err := s.ListProducts(ctx, ProductFilter{Brand: "大研生醫"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "https://b.test/products/1", got[0].URL)

	got, err = s.ListProducts(ctx, ProductFilter{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestSQLiteCountByBrand(t *testing.T) {
	t.Parallel()

	s := newTestSQLite(t)
	ctx := context.Background()

	records := []model.ProductRecord{
		sampleRecord("https://a.test/products/1"),
		sampleRecord("https://a.test/products/2"),
		sampleRecord("https://b.test/products/1"),
	}
	records[2].Brand = "大研生醫"

	_, err := s.UpsertProducts(ctx, records)
	require.NoError(t, err)

	counts, err := s.CountByBrand(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"Vitabox": 2, "大研生醫": 1}, counts)
}

func TestSQLiteSkipsEmptyURL(t *testing.T) {
	t.Parallel()

	s := newTestSQLite(t)
	ctx := context.Background()

	_, err := s.UpsertProducts(ctx, []model.ProductRecord{{Brand: "X"}})
	require.NoError(t, err)

	got, err := s.ListProducts(ctx, ProductFilter{})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestOpenUnknownDriver(t *testing.T) {
	t.Parallel()

	_, err := Open(context.Background(), config.StoreConfig{Driver: "oracle"})
	assert.Error(t, err)
}
