// Package urlfilter classifies candidate URLs as product detail pages or
// noise. The predicate is pure string work so it can run over tens of
// thousands of sitemap entries without touching the network.
package urlfilter

import (
	"net/url"
	"regexp"
	"strings"
)

// variantSuffix matches long trailing numeric IDs that sitemaps emit for
// per-variant pages (e.g. "...-123456789"). Those duplicate the parent
// product page and get rejected.
var variantSuffix = regexp.MustCompile(`-\d{6,}$`)

// Filter decides whether a URL looks like a product detail page.
type Filter struct {
	include []string
	exclude []string
	relaxed map[string]bool
}

// New builds a Filter. Tokens are matched case-insensitively against the
// lowercased URL. Relaxed domains skip the include-token requirement
// because their product pages carry no recognizable path marker.
func New(include, exclude, relaxedDomains []string) *Filter {
	relaxed := make(map[string]bool, len(relaxedDomains))
	for _, d := range relaxedDomains {
		relaxed[strings.ToLower(strings.TrimSpace(d))] = true
	}
	return &Filter{
		include: lowerAll(include),
		exclude: lowerAll(exclude),
		relaxed: relaxed,
	}
}

// IsProductURL reports whether raw should be scanned as a product page.
func (f *Filter) IsProductURL(raw string) bool {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return false
	}

	// Sitemaps occasionally leak URLs with raw CJK path segments; those
	// pages are editorial content, not product pages.
	for _, r := range raw {
		if r > 127 {
			return false
		}
	}

	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return false
	}

	lowered := strings.ToLower(raw)
	for _, tok := range f.exclude {
		if strings.Contains(lowered, tok) {
			return false
		}
	}

	if variantSuffix.MatchString(strings.ToLower(strings.TrimSuffix(u.Path, "/"))) {
		return false
	}

	if f.relaxed[strings.ToLower(u.Hostname())] {
		return true
	}

	for _, tok := range f.include {
		if strings.Contains(lowered, tok) {
			return true
		}
	}
	return false
}

// Apply filters a slice of URLs, preserving input order.
func (f *Filter) Apply(urls []string) []string {
	kept := make([]string, 0, len(urls))
	for _, u := range urls {
		if f.IsProductURL(u) {
			kept = append(kept, u)
		}
	}
	return kept
}

func lowerAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.ToLower(strings.TrimSpace(s))
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}
