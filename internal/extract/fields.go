package extract

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/text/unicode/norm"

	"github.com/vitalsight/harvest-cli/internal/model"
)

// Title extracts the product title: first h1, then og:title, then the
// document title, then the JSON-LD product name.
func Title(doc *Document) string {
	if t := strings.TrimSpace(doc.Find("h1").First().Text()); t != "" {
		return collapseSpace(t)
	}
	if t := doc.Meta("og:title"); t != "" {
		return collapseSpace(t)
	}
	if t := strings.TrimSpace(doc.Find("title").First().Text()); t != "" {
		return collapseSpace(t)
	}
	for _, node := range doc.ProductNodes() {
		if node.Name != "" {
			return collapseSpace(node.Name)
		}
	}
	return ""
}

// Description collects description-like content: the JSON-LD product
// description, og:description, the description meta tag, and common
// description blocks. Quantity-unit parsing falls back to this text when
// the title carries no count.
func Description(doc *Document) string {
	var parts []string
	for _, node := range doc.ProductNodes() {
		if node.Description != "" {
			parts = append(parts, node.Description)
		}
	}
	if d := doc.Meta("og:description"); d != "" {
		parts = append(parts, d)
	}
	if d := doc.Meta("description"); d != "" {
		parts = append(parts, d)
	}
	doc.Find(".product-description, .description, #description, [itemprop=description]").Each(func(_ int, s *goquery.Selection) {
		if t := strings.TrimSpace(s.Text()); t != "" {
			parts = append(parts, t)
		}
	})
	return collapseSpace(strings.Join(parts, " "))
}

// ImageURL extracts the main product image: og:image, then the JSON-LD
// image, then the first content img on the page.
func ImageURL(doc *Document) string {
	if u := doc.Meta("og:image"); u != "" {
		return u
	}
	for _, node := range doc.ProductNodes() {
		if u := node.imageURL(); u != "" {
			return u
		}
	}
	var first string
	doc.Find("img[src]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		src, _ := s.Attr("src")
		src = strings.TrimSpace(src)
		// Skip tracking pixels and data URIs.
		if src == "" || strings.HasPrefix(src, "data:") {
			return true
		}
		first = src
		return false
	})
	return first
}

// BrandMatcher resolves a brand name from page signals against a
// whitelist. Comparison is case-insensitive after NFKC normalization so
// fullwidth variants in CJK page titles still match.
type BrandMatcher struct {
	brands []string // original casing
	folded []string // normalized for comparison
}

// NewBrandMatcher builds a matcher over the whitelist.
func NewBrandMatcher(whitelist []string) *BrandMatcher {
	m := &BrandMatcher{}
	for _, b := range whitelist {
		b = strings.TrimSpace(b)
		if b == "" {
			continue
		}
		m.brands = append(m.brands, b)
		m.folded = append(m.folded, foldBrand(b))
	}
	return m
}

// Match scans the title, JSON-LD brand, og:site_name, and the URL for a
// whitelisted brand. When nothing matches it returns BrandUnknown; the
// orchestrator overrides that with the discovery label for the domain.
func (m *BrandMatcher) Match(doc *Document, title string) string {
	signals := []string{title}
	for _, node := range doc.ProductNodes() {
		if b := node.brandName(); b != "" {
			signals = append(signals, b)
		}
	}
	if site := doc.Meta("og:site_name"); site != "" {
		signals = append(signals, site)
	}
	signals = append(signals, doc.URL)

	for _, sig := range signals {
		folded := foldBrand(sig)
		for i, fb := range m.folded {
			if strings.Contains(folded, fb) {
				return m.brands[i]
			}
		}
	}
	return model.BrandUnknown
}

func foldBrand(s string) string {
	return strings.ToLower(norm.NFKC.String(s))
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
