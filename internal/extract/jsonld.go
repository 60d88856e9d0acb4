package extract

import (
	"encoding/json"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// productNode is the subset of a JSON-LD Product node the extractor reads.
// Fields use loose types because real-world markup mixes strings and
// numbers freely.
type productNode struct {
	Type        any    `json:"@type"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Image       any    `json:"image"`
	Brand       any    `json:"brand"`
	Offers      any    `json:"offers"`
}

func (n productNode) isProduct() bool {
	switch t := n.Type.(type) {
	case string:
		return strings.EqualFold(t, "Product")
	case []any:
		for _, v := range t {
			if s, ok := v.(string); ok && strings.EqualFold(s, "Product") {
				return true
			}
		}
	}
	return false
}

// price returns the first price found in the node's offers, or "" when the
// offers carry none. Offer shapes seen in the wild: a single object, an
// array of objects, and AggregateOffer with lowPrice.
func (n productNode) price() string {
	offers := n.Offers
	if arr, ok := offers.([]any); ok {
		for _, o := range arr {
			if p := offerPrice(o); p != "" {
				return p
			}
		}
		return ""
	}
	return offerPrice(offers)
}

func offerPrice(offer any) string {
	m, ok := offer.(map[string]any)
	if !ok {
		return ""
	}
	for _, key := range []string{"price", "lowPrice"} {
		switch v := m[key].(type) {
		case string:
			if strings.TrimSpace(v) != "" {
				return strings.TrimSpace(v)
			}
		case float64:
			return trimFloat(v)
		}
	}
	return ""
}

// imageURL returns the first image URL in the node.
func (n productNode) imageURL() string {
	switch img := n.Image.(type) {
	case string:
		return strings.TrimSpace(img)
	case []any:
		for _, v := range img {
			if s, ok := v.(string); ok && strings.TrimSpace(s) != "" {
				return strings.TrimSpace(s)
			}
			if m, ok := v.(map[string]any); ok {
				if u, ok := m["url"].(string); ok {
					return strings.TrimSpace(u)
				}
			}
		}
	case map[string]any:
		if u, ok := img["url"].(string); ok {
			return strings.TrimSpace(u)
		}
	}
	return ""
}

// brandName returns the brand name string when present.
func (n productNode) brandName() string {
	switch b := n.Brand.(type) {
	case string:
		return strings.TrimSpace(b)
	case map[string]any:
		if name, ok := b["name"].(string); ok {
			return strings.TrimSpace(name)
		}
	}
	return ""
}

// parseProductNodes collects every JSON-LD Product node on the page,
// flattening @graph containers and top-level arrays.
func parseProductNodes(doc *goquery.Document) []productNode {
	var nodes []productNode
	doc.Find(`script[type="application/ld+json"]`).Each(func(_ int, s *goquery.Selection) {
		raw := strings.TrimSpace(s.Text())
		if raw == "" {
			return
		}
		for _, candidate := range decodeBlocks(raw) {
			if candidate.isProduct() {
				nodes = append(nodes, candidate)
			}
		}
	})
	return nodes
}

// decodeBlocks handles the three top-level shapes: object, array, and an
// object wrapping a @graph array. Malformed JSON is skipped silently; a
// broken script tag should not kill extraction for the whole page.
func decodeBlocks(raw string) []productNode {
	var out []productNode

	var obj map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &obj); err == nil {
		if graph, ok := obj["@graph"]; ok {
			var nodes []productNode
			if err := json.Unmarshal(graph, &nodes); err == nil {
				return nodes
			}
		}
		var node productNode
		if err := json.Unmarshal([]byte(raw), &node); err == nil {
			out = append(out, node)
		}
		return out
	}

	var arr []productNode
	if err := json.Unmarshal([]byte(raw), &arr); err == nil {
		return arr
	}
	return nil
}
