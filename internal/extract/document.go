// Package extract pulls structured product fields out of rendered page
// HTML. Each field has an ordered waterfall of strategies; the first
// strategy that yields a valid value wins.
package extract

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"
)

// Document is a parsed product page. It carries both the goquery tree and
// the raw HTML so strategies can pick whichever representation fits.
type Document struct {
	URL  string
	HTML string
	doc  *goquery.Document

	jsonldOnce bool
	jsonld     []productNode
}

// ParseDocument parses page HTML into a Document.
func ParseDocument(url, html string) (*Document, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, eris.Wrap(err, "extract: parse html")
	}
	return &Document{URL: url, HTML: html, doc: doc}, nil
}

// Meta returns the content of the first meta tag whose property or name
// attribute matches key.
func (d *Document) Meta(key string) string {
	var content string
	d.doc.Find("meta").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		prop, _ := s.Attr("property")
		name, _ := s.Attr("name")
		if prop == key || name == key {
			content, _ = s.Attr("content")
			return false
		}
		return true
	})
	return strings.TrimSpace(content)
}

// Find exposes goquery selection on the underlying tree.
func (d *Document) Find(selector string) *goquery.Selection {
	return d.doc.Find(selector)
}

// Text returns the full visible text of the page with scripts and styles
// removed, used by the text-regex strategies.
func (d *Document) Text() string {
	clone := d.doc.Clone()
	clone.Find("script, style, noscript").Remove()
	return clone.Text()
}

// ProductNodes returns the JSON-LD Product nodes found on the page,
// parsing lazily on first call.
func (d *Document) ProductNodes() []productNode {
	if !d.jsonldOnce {
		d.jsonldOnce = true
		d.jsonld = parseProductNodes(d.doc)
	}
	return d.jsonld
}
