package batch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vitalsight/harvest-cli/internal/config"
	"github.com/vitalsight/harvest-cli/internal/extract"
	"github.com/vitalsight/harvest-cli/internal/issues"
	"github.com/vitalsight/harvest-cli/internal/model"
	"github.com/vitalsight/harvest-cli/internal/resilience"
	"github.com/vitalsight/harvest-cli/internal/sitemap"
	"github.com/vitalsight/harvest-cli/internal/store"
)

// fakeDiscoverer serves canned per-brand URL lists.
type fakeDiscoverer struct {
	results map[string]*sitemap.Result
	errs    map[string]error
}

func (f *fakeDiscoverer) Discover(ctx context.Context, target model.Target) (*sitemap.Result, error) {
	if err := f.errs[target.Brand]; err != nil {
		return nil, err
	}
	if res, ok := f.results[target.Brand]; ok {
		return res, nil
	}
	return &sitemap.Result{Brand: target.Brand, Domain: target.Domain}, nil
}

// fakeScanner succeeds or fails per URL.
type fakeScanner struct {
	mu    sync.Mutex
	fail  map[string]error
	calls []string
}

func (f *fakeScanner) Scan(ctx context.Context, brand, url string) (*model.ProductRecord, error) {
	f.mu.Lock()
	f.calls = append(f.calls, url)
	f.mu.Unlock()

	if err, ok := f.fail[url]; ok {
		return nil, err
	}
	return &model.ProductRecord{
		Source: "d2c_hunter",
		Brand:  brand,
		Title:  "魚油 60粒",
		Price:  880,
		URL:    url,
	}, nil
}

func urlsFor(domain string, n int) []string {
	urls := make([]string, n)
	for i := range urls {
		urls[i] = fmt.Sprintf("https://%s/products/p%d", domain, i)
	}
	return urls
}

func testOrchestrator(t *testing.T, d Discoverer, s Scanner, batchCfg config.BatchConfig) (*Orchestrator, store.Store, config.OutputConfig) {
	t.Helper()
	dir := t.TempDir()

	st, err := store.NewSQLite(filepath.Join(dir, "harvest.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	require.NoError(t, st.Migrate(context.Background()))

	out := config.OutputConfig{
		DataDir:      dir,
		ManifestPath: filepath.Join(dir, "target_product_urls.csv"),
		SnapshotCSV:  filepath.Join(dir, "d2c_full_database.csv"),
		ErrorLog:     filepath.Join(dir, "errors.log"),
		IssueDir:     filepath.Join(dir, "issue_tracker"),
	}
	ev := issues.NewEvaluator(config.ExpectConfig{
		MinProducts: map[string]int{"Vitabox": 50},
		SuccessRate: 0.6,
	})

	// Retry backoff in microsecond range keeps failure tests fast.
	if batchCfg.InitialBackoffMs == 0 {
		batchCfg.InitialBackoffMs = 1
		batchCfg.MaxBackoffMs = 1
	}

	return New(d, s, st, ev, batchCfg, out), st, out
}

func TestRunHappyPath(t *testing.T) {
	t.Parallel()

	d := &fakeDiscoverer{results: map[string]*sitemap.Result{
		"Vitabox": {
			Brand:       "Vitabox",
			Domain:      "vitabox.test",
			ParsedURLs:  urlsFor("vitabox.test", 80),
			ProductURLs: urlsFor("vitabox.test", 40),
		},
	}}
	s := &fakeScanner{}

	o, st, out := testOrchestrator(t, d, s, config.BatchConfig{
		Concurrency:  3,
		URLsPerBrand: 30,
		MaxRetries:   2,
	})

	res, err := o.Run(context.Background(), []model.Target{{Brand: "Vitabox", Domain: "vitabox.test"}})
	require.NoError(t, err)

	// 40 product URLs capped to 30.
	assert.Len(t, s.calls, 30)
	assert.Equal(t, 30, res.Records)
	assert.Zero(t, res.PendingURL)

	m := res.Metrics["Vitabox"]
	require.NotNil(t, m)
	assert.Equal(t, 80, m.ParsedURLs)
	assert.Equal(t, 40, m.FilteredURLs)
	assert.Equal(t, 30, m.CappedURLs)
	assert.Equal(t, 30, m.SuccessCount)

	// 80 parsed beats the 50 expectation, success rate 100%: no tickets.
	assert.Empty(t, res.Tickets)

	// Store holds the records; snapshot mirrors them.
	stored, err := st.ListProducts(context.Background(), store.ProductFilter{})
	require.NoError(t, err)
	assert.Len(t, stored, 30)

	snap, err := store.ReadSnapshot(out.SnapshotCSV)
	require.NoError(t, err)
	assert.Len(t, snap, 30)

	manifest, err := store.ReadURLManifest(out.ManifestPath)
	require.NoError(t, err)
	assert.Len(t, manifest, 30)
}

func TestRunScanFailuresRaiseTicketsAndErrorLog(t *testing.T) {
	t.Parallel()

	urls := urlsFor("vitabox.test", 5)
	d := &fakeDiscoverer{results: map[string]*sitemap.Result{
		"Vitabox": {
			Brand:       "Vitabox",
			ParsedURLs:  urlsFor("vitabox.test", 60),
			ProductURLs: urls,
		},
	}}
	s := &fakeScanner{fail: map[string]error{}}
	for _, u := range urls[:4] {
		s.fail[u] = eris.New("selector matched nothing")
	}
	s.fail[urls[4]] = resilience.NewTransientError(eris.New("gateway flap"), 502)

	o, _, out := testOrchestrator(t, d, s, config.BatchConfig{
		Concurrency:  2,
		URLsPerBrand: 30,
		MaxRetries:   1,
	})

	res, err := o.Run(context.Background(), []model.Target{{Brand: "Vitabox", Domain: "vitabox.test"}})
	require.NoError(t, err)

	assert.Zero(t, res.Records)
	m := res.Metrics["Vitabox"]
	assert.Equal(t, 5, m.FailCount)

	// Only the transient failure stays pending for a later retry pass.
	assert.Equal(t, 1, res.PendingURL)

	// Total scan failure raises a P0 scan ticket.
	require.NotEmpty(t, res.Tickets)
	assert.Equal(t, model.SeverityP0, res.Tickets[0].Severity)
	assert.Equal(t, model.StageScan, res.Tickets[0].Stage)

	raw, err := os.ReadFile(out.ErrorLog)
	require.NoError(t, err)
	lines := strings.Count(string(raw), "\n")
	assert.Equal(t, 5, lines)
	assert.Contains(t, string(raw), "stage=scan brand=Vitabox")
	assert.Contains(t, string(raw), "error=selector matched nothing")
}

func TestRunDiscoveryFailureDegrades(t *testing.T) {
	t.Parallel()

	d := &fakeDiscoverer{
		results: map[string]*sitemap.Result{
			"Good": {Brand: "Good", ParsedURLs: urlsFor("good.test", 3), ProductURLs: urlsFor("good.test", 3)},
		},
		errs: map[string]error{"Bad": eris.New("dns failure")},
	}
	s := &fakeScanner{}

	o, _, out := testOrchestrator(t, d, s, config.BatchConfig{
		Concurrency:  2,
		URLsPerBrand: 30,
		MaxRetries:   1,
	})

	res, err := o.Run(context.Background(), []model.Target{
		{Brand: "Bad", Domain: "bad.test"},
		{Brand: "Good", Domain: "good.test"},
	})
	require.NoError(t, err)

	// The good brand still ran.
	assert.Equal(t, 3, res.Records)

	raw, err := os.ReadFile(out.ErrorLog)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "stage=sitemap_discovery brand=Bad")
}

func TestRunSkipsNonProductURLs(t *testing.T) {
	t.Parallel()

	urls := urlsFor("vitabox.test", 3)
	d := &fakeDiscoverer{results: map[string]*sitemap.Result{
		"Vitabox": {Brand: "Vitabox", ParsedURLs: urlsFor("vitabox.test", 60), ProductURLs: urls},
	}}
	s := &fakeScanner{fail: map[string]error{
		urls[1]: extract.ErrNotProduct,
	}}

	o, _, _ := testOrchestrator(t, d, s, config.BatchConfig{
		Concurrency: 2, URLsPerBrand: 30, MaxRetries: 1,
	})

	res, err := o.Run(context.Background(), []model.Target{{Brand: "Vitabox", Domain: "vitabox.test"}})
	require.NoError(t, err)

	// Non-product pages count as neither success nor failure.
	assert.Equal(t, 2, res.Records)
	m := res.Metrics["Vitabox"]
	assert.Equal(t, 2, m.SuccessCount)
	assert.Zero(t, m.FailCount)
}

func TestRunTopBrandsCap(t *testing.T) {
	t.Parallel()

	d := &fakeDiscoverer{results: map[string]*sitemap.Result{}}
	s := &fakeScanner{}

	o, _, _ := testOrchestrator(t, d, s, config.BatchConfig{
		Concurrency: 2, URLsPerBrand: 30, MaxRetries: 1, TopBrands: 2,
	})

	var targets []model.Target
	for i := 0; i < 5; i++ {
		targets = append(targets, model.Target{Brand: fmt.Sprintf("B%d", i), Domain: fmt.Sprintf("b%d.test", i)})
	}

	res, err := o.Run(context.Background(), targets)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Targets)
	assert.Len(t, res.Metrics, 2)
}

func TestRunDeduplicatesAcrossBrands(t *testing.T) {
	t.Parallel()

	shared := "https://mall.test/products/shared"
	d := &fakeDiscoverer{results: map[string]*sitemap.Result{
		"A": {Brand: "A", ParsedURLs: []string{shared}, ProductURLs: []string{shared}},
		"B": {Brand: "B", ParsedURLs: []string{shared}, ProductURLs: []string{shared}},
	}}
	s := &fakeScanner{}

	o, _, out := testOrchestrator(t, d, s, config.BatchConfig{
		Concurrency: 2, URLsPerBrand: 30, MaxRetries: 1,
	})

	_, err := o.Run(context.Background(), []model.Target{
		{Brand: "A", Domain: "mall.test"},
		{Brand: "B", Domain: "mall.test"},
	})
	require.NoError(t, err)

	// The shared URL is scanned once; the last brand to discover it wins
	// the label.
	assert.Equal(t, []string{shared}, s.calls)

	manifest, err := store.ReadURLManifest(out.ManifestPath)
	require.NoError(t, err)
	require.Len(t, manifest, 1)
	assert.Equal(t, "B", manifest[0].Brand)
	assert.Equal(t, shared, manifest[0].URL)
}

func TestErrorLogFormat(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "errors.log")
	l, err := OpenErrorLog(path)
	require.NoError(t, err)

	require.NoError(t, l.Append("scan", "Vitabox", "https://shop.test/products/a", eris.New("timeout")))
	require.NoError(t, l.Close())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	line := strings.TrimSpace(string(raw))
	assert.Regexp(t, `^\[\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}Z\] stage=scan brand=Vitabox url=https://shop\.test/products/a error=timeout$`, line)
}
