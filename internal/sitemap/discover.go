// Package sitemap discovers product page URLs for a brand domain by
// walking its sitemap tree. Sitemap indexes are followed breadth-first
// with a visited set, so cyclic or self-referencing indexes terminate.
package sitemap

import (
	"compress/gzip"
	"context"
	"encoding/xml"
	"io"
	"net/http"
	"regexp"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/vitalsight/harvest-cli/internal/config"
	"github.com/vitalsight/harvest-cli/internal/model"
	"github.com/vitalsight/harvest-cli/internal/urlfilter"
)

// xmlnsAttr strips namespace declarations before parsing. Real-world
// sitemaps mix default and prefixed namespaces inconsistently; removing
// them lets one set of element names match everything.
var xmlnsAttr = regexp.MustCompile(`\s+xmlns(:\w+)?="[^"]*"`)

// sitemapRef finds Sitemap: lines in robots.txt.
var sitemapRef = regexp.MustCompile(`(?i)^sitemap:\s*(\S+)`)

// urlset is the leaf sitemap document shape.
type urlset struct {
	XMLName xml.Name `xml:"urlset"`
	URLs    []struct {
		Loc string `xml:"loc"`
	} `xml:"url"`
}

// sitemapindex is the index document shape pointing at child sitemaps.
type sitemapindex struct {
	XMLName  xml.Name `xml:"sitemapindex"`
	Sitemaps []struct {
		Loc string `xml:"loc"`
	} `xml:"sitemap"`
}

// Result summarizes discovery for one brand domain.
type Result struct {
	Brand        string
	Domain       string
	ParsedURLs   []string // every page URL the sitemap tree yielded
	ProductURLs  []string // ParsedURLs that passed the product filter
	SitemapCount int      // sitemap documents fetched
}

// Discoverer walks sitemap trees and filters the URLs they yield.
type Discoverer struct {
	client  *http.Client
	filter  *urlfilter.Filter
	limiter *rate.Limiter
	cfg     config.DiscoveryConfig
}

// New creates a Discoverer. The rate limiter spans all fetches made by this
// instance, including robots.txt probes.
func New(cfg config.DiscoveryConfig, filter *urlfilter.Filter) *Discoverer {
	rps := cfg.RequestsPerSec
	if rps <= 0 {
		rps = 4.0
	}
	return &Discoverer{
		client: &http.Client{Timeout: cfg.FetchTimeout()},
		filter: filter,
		// Small burst so index fan-out does not stall on the first wave.
		limiter: rate.NewLimiter(rate.Limit(rps), 2),
		cfg:     cfg,
	}
}

// Discover walks the sitemap tree for target's domain and returns the page
// URLs it found, both raw and filtered. Roots come from robots.txt when it
// names any, otherwise from the well-known default paths. A domain with no
// reachable sitemap returns an empty result, not an error.
func (d *Discoverer) Discover(ctx context.Context, target model.Target) (*Result, error) {
	base := "https://" + strings.TrimSuffix(target.Domain, "/")

	roots := d.robotsSitemaps(ctx, base)
	if len(roots) == 0 {
		for _, p := range d.defaultPaths() {
			roots = append(roots, base+p)
		}
	}

	res := &Result{Brand: target.Brand, Domain: target.Domain}

	maxSitemaps := d.cfg.MaxSitemaps
	if maxSitemaps <= 0 {
		maxSitemaps = 200
	}

	visited := make(map[string]bool)
	queue := roots
	seen := make(map[string]bool)

	for len(queue) > 0 && res.SitemapCount < maxSitemaps {
		if err := ctx.Err(); err != nil {
			return res, eris.Wrap(err, "sitemap: discover canceled")
		}

		loc := queue[0]
		queue = queue[1:]
		if visited[loc] {
			continue
		}
		visited[loc] = true

		body, err := d.fetch(ctx, loc)
		if err != nil {
			zap.L().Debug("sitemap fetch failed",
				zap.String("brand", target.Brand),
				zap.String("url", loc),
				zap.Error(err),
			)
			continue
		}
		res.SitemapCount++

		pages, children := parseSitemap(body)
		for _, child := range children {
			if !visited[child] {
				queue = append(queue, child)
			}
		}
		for _, page := range pages {
			if !seen[page] {
				seen[page] = true
				res.ParsedURLs = append(res.ParsedURLs, page)
			}
		}
	}

	res.ProductURLs = d.filter.Apply(res.ParsedURLs)

	zap.L().Info("sitemap discovery complete",
		zap.String("brand", target.Brand),
		zap.String("domain", target.Domain),
		zap.Int("sitemaps", res.SitemapCount),
		zap.Int("parsed_urls", len(res.ParsedURLs)),
		zap.Int("product_urls", len(res.ProductURLs)),
	)

	return res, nil
}

// robotsSitemaps returns the sitemap URLs declared in robots.txt, if any.
func (d *Discoverer) robotsSitemaps(ctx context.Context, base string) []string {
	body, err := d.fetch(ctx, base+"/robots.txt")
	if err != nil {
		return nil
	}

	var sitemaps []string
	for _, line := range strings.Split(string(body), "\n") {
		if m := sitemapRef.FindStringSubmatch(strings.TrimSpace(line)); m != nil {
			sitemaps = append(sitemaps, m[1])
		}
	}
	return sitemaps
}

func (d *Discoverer) fetch(ctx context.Context, url string) ([]byte, error) {
	if err := d.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "sitemap: rate wait")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, eris.Wrap(err, "sitemap: build request")
	}
	req.Header.Set("User-Agent", d.cfg.UserAgent)

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "sitemap: fetch")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, eris.Errorf("sitemap: fetch %s: status %d", url, resp.StatusCode)
	}

	reader := io.Reader(resp.Body)
	if strings.HasSuffix(url, ".gz") || resp.Header.Get("Content-Type") == "application/x-gzip" {
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, eris.Wrap(err, "sitemap: gzip reader")
		}
		defer gz.Close()
		reader = gz
	}

	body, err := io.ReadAll(io.LimitReader(reader, 32<<20))
	if err != nil {
		return nil, eris.Wrap(err, "sitemap: read body")
	}
	return body, nil
}

func (d *Discoverer) defaultPaths() []string {
	if len(d.cfg.DefaultSitemaps) > 0 {
		return d.cfg.DefaultSitemaps
	}
	return []string{"/sitemap.xml", "/sitemap_index.xml"}
}

// parseSitemap extracts page URLs and child sitemap URLs from one document.
// It tolerates both index and leaf documents and ignores anything else.
func parseSitemap(body []byte) (pages, children []string) {
	cleaned := xmlnsAttr.ReplaceAll(body, nil)

	var idx sitemapindex
	if err := xml.Unmarshal(cleaned, &idx); err == nil && len(idx.Sitemaps) > 0 {
		for _, s := range idx.Sitemaps {
			if loc := strings.TrimSpace(s.Loc); loc != "" {
				children = append(children, loc)
			}
		}
		return nil, children
	}

	var set urlset
	if err := xml.Unmarshal(cleaned, &set); err == nil {
		for _, u := range set.URLs {
			if loc := strings.TrimSpace(u.Loc); loc != "" {
				pages = append(pages, loc)
			}
		}
	}
	return pages, nil
}
