// Package batch runs the full pipeline: discover product URLs for each
// target brand, scan them concurrently, persist the results, and evaluate
// run health.
package batch

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/vitalsight/harvest-cli/internal/config"
	"github.com/vitalsight/harvest-cli/internal/extract"
	"github.com/vitalsight/harvest-cli/internal/issues"
	"github.com/vitalsight/harvest-cli/internal/model"
	"github.com/vitalsight/harvest-cli/internal/resilience"
	"github.com/vitalsight/harvest-cli/internal/sitemap"
	"github.com/vitalsight/harvest-cli/internal/store"
)

// Discoverer yields candidate URLs for a brand domain.
type Discoverer interface {
	Discover(ctx context.Context, target model.Target) (*sitemap.Result, error)
}

// Scanner extracts one product URL.
type Scanner interface {
	Scan(ctx context.Context, brand, url string) (*model.ProductRecord, error)
}

// Orchestrator wires the pipeline phases together.
type Orchestrator struct {
	discoverer Discoverer
	scanner    Scanner
	store      store.Store
	evaluator  *issues.Evaluator
	cfg        config.BatchConfig
	out        config.OutputConfig
}

// New creates an Orchestrator.
func New(d Discoverer, s Scanner, st store.Store, ev *issues.Evaluator, cfg config.BatchConfig, out config.OutputConfig) *Orchestrator {
	return &Orchestrator{
		discoverer: d,
		scanner:    s,
		store:      st,
		evaluator:  ev,
		cfg:        cfg,
		out:        out,
	}
}

// Run executes one batch over the targets. Per-brand failures degrade the
// run (and raise tickets) rather than aborting it; only store failures and
// context cancellation are fatal.
func (o *Orchestrator) Run(ctx context.Context, targets []model.Target) (*model.RunResult, error) {
	runID := uuid.NewString()
	started := time.Now()

	if top := o.cfg.TopBrands; top > 0 && len(targets) > top {
		targets = targets[:top]
	}

	zap.L().Info("batch run starting",
		zap.String("run_id", runID),
		zap.Int("targets", len(targets)),
		zap.Int("concurrency", o.concurrency()),
	)

	errlog, err := OpenErrorLog(o.out.ErrorLog)
	if err != nil {
		return nil, err
	}
	defer errlog.Close()

	metrics := make(map[string]*model.BrandMetrics, len(targets))
	candidates := o.discoverAll(ctx, targets, metrics, errlog)

	if err := store.WriteURLManifest(o.out.ManifestPath, candidates); err != nil {
		return nil, err
	}

	records, failures := o.scanAll(ctx, candidates, metrics, errlog)

	if _, err := o.store.UpsertProducts(ctx, records); err != nil {
		return nil, err
	}

	// The snapshot always reflects the whole store, not just this run.
	all, err := o.store.ListProducts(ctx, store.ProductFilter{})
	if err != nil {
		return nil, err
	}
	if err := store.WriteSnapshot(o.out.SnapshotCSV, all); err != nil {
		return nil, err
	}

	tickets := o.evaluator.Evaluate(metrics, records)
	if _, err := issues.Persist(o.out.IssueDir, issues.Snapshot{
		RunID:       runID,
		GeneratedAt: time.Now(),
		Metrics:     metrics,
		Tickets:     tickets,
	}); err != nil {
		return nil, err
	}

	result := &model.RunResult{
		RunID:      runID,
		StartedAt:  started,
		FinishedAt: time.Now(),
		Targets:    len(targets),
		PendingURL: len(failures.PendingURLs()),
		Records:    len(records),
		Metrics:    metrics,
		Tickets:    tickets,
	}

	zap.L().Info("batch run finished",
		zap.String("run_id", runID),
		zap.Int("records", result.Records),
		zap.Int("pending_urls", result.PendingURL),
		zap.Int("tickets", len(tickets)),
		zap.Duration("elapsed", result.FinishedAt.Sub(started)),
	)

	return result, nil
}

// discoverAll runs sitemap discovery per brand with retries, caps the URL
// list per brand, and dedupes across brands. A URL found by two brands is
// scanned once; the last discovery wins the brand label.
func (o *Orchestrator) discoverAll(ctx context.Context, targets []model.Target, metrics map[string]*model.BrandMetrics, errlog *ErrorLog) []model.CandidateURL {
	retry := resilience.FromConfig(o.cfg.MaxRetries, o.cfg.InitialBackoffMs, o.cfg.MaxBackoffMs)

	index := make(map[string]int)
	var candidates []model.CandidateURL

	for _, target := range targets {
		m := &model.BrandMetrics{Brand: target.Brand, Domain: target.Domain}
		metrics[target.Brand] = m

		retry.OnRetry = resilience.RetryLogger(string(model.StageDiscovery), target.Brand, target.Domain)
		res, err := resilience.DoVal(ctx, retry, func(ctx context.Context) (*sitemap.Result, error) {
			return o.discoverer.Discover(ctx, target)
		})
		if err != nil {
			zap.L().Error("discovery failed",
				zap.String("brand", target.Brand),
				zap.String("domain", target.Domain),
				zap.Error(err),
			)
			if lerr := errlog.Append(string(model.StageDiscovery), target.Brand, target.Domain, err); lerr != nil {
				zap.L().Warn("error log append failed", zap.Error(lerr))
			}
			continue
		}

		m.ParsedURLs = len(res.ParsedURLs)
		m.FilteredURLs = len(res.ProductURLs)

		cap := o.cfg.CapFor(target.Brand)
		urls := res.ProductURLs
		if len(urls) > cap {
			urls = urls[:cap]
		}
		m.CappedURLs = len(urls)

		for _, u := range urls {
			if i, ok := index[u]; ok {
				candidates[i].Brand = target.Brand
				continue
			}
			index[u] = len(candidates)
			candidates = append(candidates, model.CandidateURL{Brand: target.Brand, URL: u})
		}
	}

	return candidates
}

// scanAll fans candidate URLs out over the worker pool. Each URL gets its
// own retry budget; non-product pages are skipped silently.
func (o *Orchestrator) scanAll(ctx context.Context, candidates []model.CandidateURL, metrics map[string]*model.BrandMetrics, errlog *ErrorLog) ([]model.ProductRecord, *resilience.FailureLog) {
	failures := resilience.NewFailureLog()
	results := make([]*model.ProductRecord, len(candidates))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.concurrency())

	for i, cand := range candidates {
		g.Go(func() error {
			retry := resilience.FromConfig(o.cfg.MaxRetries, o.cfg.InitialBackoffMs, o.cfg.MaxBackoffMs)
			retry.OnRetry = resilience.RetryLogger(string(model.StageScan), cand.Brand, cand.URL)

			rec, err := resilience.DoVal(gctx, retry, func(ctx context.Context) (*model.ProductRecord, error) {
				return o.scanner.Scan(ctx, cand.Brand, cand.URL)
			})
			if err != nil {
				if eris.Is(err, extract.ErrNotProduct) {
					// Listing or editorial page that slipped the filter;
					// neither a success nor a failure.
					return nil
				}
				o.recordFailure(metrics, cand)
				failures.Record(cand.Brand, cand.URL, string(model.StageScan), retry.MaxAttempts, err)
				if lerr := errlog.Append(string(model.StageScan), cand.Brand, cand.URL, err); lerr != nil {
					zap.L().Warn("error log append failed", zap.Error(lerr))
				}
				return nil
			}

			results[i] = rec
			o.recordSuccess(metrics, cand)
			return nil
		})
	}
	// Workers never return errors; Wait only propagates ctx cancellation.
	_ = g.Wait()

	records := make([]model.ProductRecord, 0, len(candidates))
	for _, r := range results {
		if r != nil {
			records = append(records, *r)
		}
	}
	return records, failures
}

func (o *Orchestrator) recordSuccess(metrics map[string]*model.BrandMetrics, cand model.CandidateURL) {
	if m, ok := metrics[cand.Brand]; ok {
		m.AddSuccess()
	}
}

func (o *Orchestrator) recordFailure(metrics map[string]*model.BrandMetrics, cand model.CandidateURL) {
	if m, ok := metrics[cand.Brand]; ok {
		m.AddFail()
	}
}

func (o *Orchestrator) concurrency() int {
	if o.cfg.Concurrency > 0 {
		return o.cfg.Concurrency
	}
	return 3
}
