package store

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vitalsight/harvest-cli/internal/model"
)

func TestSnapshotRoundTrip(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "snapshot.csv")
	records := []model.ProductRecord{
		sampleRecord("https://shop.test/products/1"),
		sampleRecord("https://shop.test/products/2"),
	}

	require.NoError(t, WriteSnapshot(path, records))

	got, err := ReadSnapshot(path)
	require.NoError(t, err)
	assert.Equal(t, records, got)
}

func TestSnapshotColumnOrder(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "snapshot.csv")
	require.NoError(t, WriteSnapshot(path, []model.ProductRecord{sampleRecord("https://x.test/products/1")}))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)

	header := strings.SplitN(string(raw), "\n", 2)[0]
	assert.Equal(t,
		"source,brand,title,price,unit_price,total_count,url,image_url,product_highlights",
		strings.TrimSpace(header))
}

func TestSnapshotDedupeKeepLast(t *testing.T) {
	t.Parallel()

	url := "https://shop.test/products/dup"
	first := sampleRecord(url)
	first.Price = 880
	second := sampleRecord(url)
	second.Price = 790

	path := filepath.Join(t.TempDir(), "snapshot.csv")
	require.NoError(t, WriteSnapshot(path, []model.ProductRecord{first, second}))

	got, err := ReadSnapshot(path)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 790, got[0].Price)
}

func TestDedupeByURLPreservesOrder(t *testing.T) {
	t.Parallel()

	a1 := sampleRecord("https://a.test/products/1")
	b := sampleRecord("https://b.test/products/1")
	a2 := sampleRecord("https://a.test/products/1")
	a2.Price = 999

	got := DedupeByURL([]model.ProductRecord{a1, b, a2})
	require.Len(t, got, 2)
	assert.Equal(t, "https://a.test/products/1", got[0].URL)
	assert.Equal(t, 999, got[0].Price)
	assert.Equal(t, "https://b.test/products/1", got[1].URL)
}

func TestTargetsRoundTrip(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "d2c_domains.csv")
	require.NoError(t, os.WriteFile(path, []byte("brand,domain\nVitabox,vitabox.com.tw\n大研生醫,daiken-shop.com.tw\n"), 0o644))

	targets, err := ReadTargets(path)
	require.NoError(t, err)
	assert.Equal(t, []model.Target{
		{Brand: "Vitabox", Domain: "vitabox.com.tw"},
		{Brand: "大研生醫", Domain: "daiken-shop.com.tw"},
	}, targets)
}

func TestURLManifestRoundTrip(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "target_product_urls.csv")
	urls := []model.CandidateURL{
		{Brand: "Vitabox", URL: "https://vitabox.com.tw/products/fish-oil"},
		{Brand: "Vitabox", URL: "https://vitabox.com.tw/products/b-complex"},
	}

	require.NoError(t, WriteURLManifest(path, urls))

	got, err := ReadURLManifest(path)
	require.NoError(t, err)
	assert.Equal(t, urls, got)
}

func TestWriteXLSX(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "products.xlsx")
	require.NoError(t, WriteXLSX(path, []model.ProductRecord{
		sampleRecord("https://shop.test/products/1"),
	}))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Positive(t, info.Size())
}
