// Package scan fetches a single product URL, confirms it is a product
// page, and extracts its fields. One Agent serves all workers; it holds no
// per-URL state.
package scan

import (
	"context"
	"fmt"
	"math/rand/v2"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/vitalsight/harvest-cli/internal/config"
	"github.com/vitalsight/harvest-cli/internal/extract"
	"github.com/vitalsight/harvest-cli/internal/model"
	"github.com/vitalsight/harvest-cli/internal/resilience"
)

// Agent scans product URLs. Safe for concurrent use.
type Agent struct {
	chain     *Chain
	extractor *extract.Extractor
	cfg       config.ScanConfig

	// sleep is swapped in tests so the block backoff does not stall them.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewAgent creates a scan agent over the fetch chain and extractor.
func NewAgent(chain *Chain, extractor *extract.Extractor, cfg config.ScanConfig) *Agent {
	return &Agent{
		chain:     chain,
		extractor: extractor,
		cfg:       cfg,
		sleep:     sleepCtx,
	}
}

// ErrNotProduct is re-exported so callers can skip non-product pages
// without importing the extract package.
var ErrNotProduct = extract.ErrNotProduct

// Scan fetches and extracts one URL under the configured page timeout.
// A blocked fetch gets exactly one local wait-and-reload; a second block
// returns a BlockedError so the orchestrator-level retry can decide. The
// brand label is the discovery-time name and overrides an unresolved
// whitelist match.
func (a *Agent) Scan(ctx context.Context, brand, rawURL string) (*model.ProductRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, a.cfg.PageTimeout())
	defer cancel()

	// Pace requests like a human browsing the catalog.
	if d := a.humanDelay(); d > 0 {
		if err := a.sleep(ctx, d); err != nil {
			return nil, eris.Wrap(err, "scan: request pacing")
		}
	}

	res, err := a.fetchWithReload(ctx, rawURL)
	if err != nil {
		return nil, err
	}

	doc, err := extract.ParseDocument(rawURL, res.HTML)
	if err != nil {
		a.dumpDiagnostics(brand, rawURL, res.HTML)
		return nil, err
	}

	record, err := a.extractor.Extract(ctx, siteOf(rawURL), doc)
	if err != nil {
		if !eris.Is(err, extract.ErrNotProduct) {
			a.dumpDiagnostics(brand, rawURL, res.HTML)
		}
		return nil, err
	}

	record.Source = a.cfg.SourceTag
	if !record.HasBrand() {
		record.Brand = brand
	}

	// A priceless record from a known-fragile source gets its raw HTML
	// kept for manual selector work.
	if record.Price == 0 && a.isFragileSource(siteOf(rawURL)) {
		a.dumpDiagnostics(brand, rawURL, res.HTML)
	}

	zap.L().Info("scanned product",
		zap.String("brand", record.Brand),
		zap.String("url", rawURL),
		zap.String("backend", res.Backend),
		zap.Int("price", record.Price),
	)

	return record, nil
}

// fetchWithReload fetches the URL and, on a detected block, waits once
// locally and reloads before giving up.
func (a *Agent) fetchWithReload(ctx context.Context, rawURL string) (*FetchResult, error) {
	res, err := a.chain.Fetch(ctx, rawURL)
	if err != nil {
		return nil, err
	}

	blocked, kind := DetectBlock(res.StatusCode, res.Headers, res.HTML)
	if !blocked {
		return res, nil
	}

	zap.L().Warn("block detected, reloading once",
		zap.String("url", rawURL),
		zap.String("block_type", string(kind)),
		zap.Int("status", res.StatusCode),
	)

	if err := a.sleep(ctx, a.blockBackoff()); err != nil {
		return nil, eris.Wrap(err, "scan: block backoff")
	}

	res, err = a.chain.Fetch(ctx, rawURL)
	if err != nil {
		return nil, err
	}

	if blocked, kind = DetectBlock(res.StatusCode, res.Headers, res.HTML); blocked {
		return nil, resilience.NewBlockedError(
			eris.Errorf("scan: %s blocked after reload", rawURL),
			res.StatusCode,
			string(kind),
		)
	}
	return res, nil
}

func (a *Agent) isFragileSource(site string) bool {
	for _, s := range a.cfg.FragileSources {
		if strings.EqualFold(s, site) {
			return true
		}
	}
	return false
}

// humanDelay picks a random pause within the configured bounds. Zero when
// pacing is disabled.
func (a *Agent) humanDelay() time.Duration {
	min, max := a.cfg.HumanDelayMinMs, a.cfg.HumanDelayMaxMs
	if min <= 0 || max < min {
		return 0
	}
	ms := min
	if max > min {
		ms += rand.IntN(max - min + 1)
	}
	return time.Duration(ms) * time.Millisecond
}

func (a *Agent) blockBackoff() time.Duration {
	if a.cfg.BlockBackoffSecs <= 0 {
		return 10 * time.Second
	}
	return time.Duration(a.cfg.BlockBackoffSecs) * time.Second
}

// dumpDiagnostics saves the fetched HTML for offline selector debugging.
// Failures here are logged and swallowed; diagnostics never fail a scan.
func (a *Agent) dumpDiagnostics(brand, rawURL, html string) {
	if a.cfg.DiagnosticsDir == "" {
		return
	}
	if err := os.MkdirAll(a.cfg.DiagnosticsDir, 0o755); err != nil {
		zap.L().Debug("diagnostics dir", zap.Error(err))
		return
	}

	name := fmt.Sprintf("%s_%s_%d.html", sanitize(brand), sanitize(siteOf(rawURL)), time.Now().UnixMilli())
	path := filepath.Join(a.cfg.DiagnosticsDir, name)
	if err := os.WriteFile(path, []byte(html), 0o644); err != nil {
		zap.L().Debug("diagnostics write", zap.Error(err))
		return
	}
	zap.L().Debug("diagnostics saved", zap.String("path", path), zap.String("url", rawURL))
}

func siteOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return u.Hostname()
}

func sanitize(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-' || r == '.':
			return r
		default:
			return '_'
		}
	}, s)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
