package scan

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/vitalsight/harvest-cli/internal/resilience"
	"github.com/vitalsight/harvest-cli/pkg/render"
)

// FetchResult is a fetched page in fetcher-independent form.
type FetchResult struct {
	URL        string
	FinalURL   string
	HTML       string
	StatusCode int
	Headers    map[string]string
	Backend    string
}

// Fetcher retrieves one page.
type Fetcher interface {
	Name() string
	Fetch(ctx context.Context, url string) (*FetchResult, error)
}

// Chain tries fetchers in order until one succeeds. The render backend
// goes first when configured; plain HTTP is the fallback for sites that
// serve complete HTML without JavaScript.
type Chain struct {
	fetchers []Fetcher
}

// NewChain builds a fetch chain.
func NewChain(fetchers ...Fetcher) *Chain {
	return &Chain{fetchers: fetchers}
}

// Fetch runs the chain. The last backend's error is returned when every
// backend fails.
func (c *Chain) Fetch(ctx context.Context, url string) (*FetchResult, error) {
	if len(c.fetchers) == 0 {
		return nil, eris.New("scan: fetch chain is empty")
	}

	var lastErr error
	for _, f := range c.fetchers {
		res, err := f.Fetch(ctx, url)
		if err == nil {
			res.Backend = f.Name()
			return res, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
		zap.L().Debug("fetch backend failed, trying next",
			zap.String("backend", f.Name()),
			zap.String("url", url),
			zap.Error(err),
		)
	}
	return nil, lastErr
}

// RenderFetcher fetches through the rendering-service session pool.
type RenderFetcher struct {
	pool *render.SessionPool
}

// NewRenderFetcher wraps a session pool as a Fetcher.
func NewRenderFetcher(pool *render.SessionPool) *RenderFetcher {
	return &RenderFetcher{pool: pool}
}

func (f *RenderFetcher) Name() string { return "render" }

func (f *RenderFetcher) Fetch(ctx context.Context, url string) (*FetchResult, error) {
	page, err := f.pool.Render(ctx, url)
	if err != nil {
		var apiErr *render.APIError
		if errors.As(err, &apiErr) && resilience.IsTransientHTTPStatus(apiErr.StatusCode) {
			return nil, resilience.NewTransientError(err, apiErr.StatusCode)
		}
		return nil, err
	}
	return &FetchResult{
		URL:        url,
		FinalURL:   page.FinalURL,
		HTML:       page.HTML,
		StatusCode: page.StatusCode,
	}, nil
}

// HTTPFetcher fetches pages with a plain HTTP GET.
type HTTPFetcher struct {
	client    *http.Client
	userAgent string
}

// NewHTTPFetcher creates a direct HTTP fetcher.
func NewHTTPFetcher(timeout time.Duration, userAgent string) *HTTPFetcher {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPFetcher{
		client:    &http.Client{Timeout: timeout},
		userAgent: userAgent,
	}
}

func (f *HTTPFetcher) Name() string { return "http" }

func (f *HTTPFetcher) Fetch(ctx context.Context, url string) (*FetchResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, eris.Wrap(err, "scan: build request")
	}
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}
	req.Header.Set("Accept-Language", "zh-TW,zh;q=0.9,en;q=0.8")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "scan: fetch")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, eris.Wrap(err, "scan: read body")
	}

	headers := make(map[string]string, len(resp.Header))
	for k := range resp.Header {
		headers[k] = resp.Header.Get(k)
	}

	res := &FetchResult{
		URL:        url,
		FinalURL:   resp.Request.URL.String(),
		HTML:       string(body),
		StatusCode: resp.StatusCode,
		Headers:    headers,
	}

	// 5xx is retryable at the orchestrator level. Block statuses (403/429)
	// pass through as a result so the agent can do its local reload.
	if resp.StatusCode >= 500 {
		return nil, resilience.NewTransientError(
			eris.Errorf("scan: fetch %s: status %d", url, resp.StatusCode), resp.StatusCode)
	}

	return res, nil
}
