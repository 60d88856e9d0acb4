package main

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/vitalsight/harvest-cli/internal/batch"
	"github.com/vitalsight/harvest-cli/internal/extract"
	"github.com/vitalsight/harvest-cli/internal/issues"
	"github.com/vitalsight/harvest-cli/internal/scan"
	"github.com/vitalsight/harvest-cli/internal/sitemap"
	"github.com/vitalsight/harvest-cli/internal/store"
	"github.com/vitalsight/harvest-cli/internal/urlfilter"
	anthropicpkg "github.com/vitalsight/harvest-cli/pkg/anthropic"
	"github.com/vitalsight/harvest-cli/pkg/render"
)

// harvestEnv holds the initialized store, discoverer, scan agent, and
// orchestrator needed by the discover/scan/run commands.
type harvestEnv struct {
	Store        store.Store
	Discoverer   *sitemap.Discoverer
	Agent        *scan.Agent
	Orchestrator *batch.Orchestrator

	renderPool *render.SessionPool
}

// Close releases resources held by the environment.
func (e *harvestEnv) Close() {
	if e.renderPool != nil {
		e.renderPool.Close(context.Background())
	}
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

func initStore(ctx context.Context) (store.Store, error) {
	st, err := store.Open(ctx, cfg.Store)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}
	return st, nil
}

// initEnv wires the full pipeline. Callers should defer env.Close().
func initEnv(ctx context.Context) (*harvestEnv, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}

	filter := urlfilter.New(cfg.Filter.IncludeTokens, cfg.Filter.ExcludeTokens, cfg.Filter.RelaxedDomains)
	discoverer := sitemap.New(cfg.Discovery, filter)

	// Rendered fetching first when a render service is configured, plain
	// HTTP as the fallback backend.
	var fetchers []scan.Fetcher
	var pool *render.SessionPool
	if cfg.Render.BaseURL != "" {
		client := render.NewClient(cfg.Render.BaseURL, cfg.Render.Key,
			render.WithTimeout(cfg.Render.RenderTimeout()))
		pool = render.NewSessionPool(client, cfg.Render.SessionMaxUses)
		fetchers = append(fetchers, scan.NewRenderFetcher(pool))
	} else {
		zap.L().Debug("HARVEST_RENDER_BASE_URL not set, rendered fetching disabled")
	}
	fetchers = append(fetchers, scan.NewHTTPFetcher(cfg.Scan.PageTimeout(), cfg.Discovery.UserAgent))
	chain := scan.NewChain(fetchers...)

	var semantic *extract.SemanticExtractor
	if cfg.Anthropic.Key != "" {
		semantic = extract.NewSemanticExtractor(anthropicpkg.NewClient(cfg.Anthropic.Key), cfg.Anthropic)
		zap.L().Info("semantic extraction fallback enabled", zap.String("model", cfg.Anthropic.Model))
	} else {
		zap.L().Debug("HARVEST_ANTHROPIC_KEY not set, semantic extraction disabled")
	}

	extractor, err := extract.New(cfg.Extract, filter, semantic)
	if err != nil {
		_ = st.Close()
		if pool != nil {
			pool.Close(ctx)
		}
		return nil, err
	}

	agent := scan.NewAgent(chain, extractor, cfg.Scan)
	evaluator := issues.NewEvaluator(cfg.Expect)
	orch := batch.New(discoverer, agent, st, evaluator, cfg.Batch, cfg.Output)

	return &harvestEnv{
		Store:        st,
		Discoverer:   discoverer,
		Agent:        agent,
		Orchestrator: orch,
		renderPool:   pool,
	}, nil
}
