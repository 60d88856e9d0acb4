package extract

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
)

// Strategy names usable in config strategy-order lists.
const (
	StrategyDOM    = "dom"
	StrategyJSONLD = "jsonld"
	StrategyMeta   = "meta"
	StrategyState  = "state"
	StrategyText   = "text"
)

// DefaultStrategyOrder is the standard price waterfall. Visible DOM price
// outranks structured data because sale prices land in the DOM first and
// JSON-LD frequently lags at the list price.
var DefaultStrategyOrder = []string{StrategyDOM, StrategyJSONLD, StrategyMeta, StrategyState, StrategyText}

// DefaultPriceSelectors are the CSS selectors tried by the DOM strategy, in
// priority order.
var DefaultPriceSelectors = []string{
	".global-price", ".product-price", ".price-sale .price", ".price", ".money",
}

var (
	// currencyAmount matches NT$/＄ amounts in visible text.
	currencyAmount = regexp.MustCompile(`NT\$?\s*([\d,]{2,12})`)

	// priceDigits pulls the numeric amount out of a price string.
	priceDigits = regexp.MustCompile(`([\d,]+(?:\.\d+)?)`)

	// statePrice matches price fields in embedded JSON state blobs.
	statePriceField = regexp.MustCompile(`"(?:price|salePrice|sale_price|variantPrice)"\s*:\s*"?([\d,]+(?:\.\d+)?)"?`)
)

// PriceStrategy extracts a candidate price from a document. ok is false
// when the strategy found nothing usable.
type PriceStrategy interface {
	Name() string
	Price(doc *Document) (price int, ok bool)
}

// PriceWaterfall runs strategies in order and keeps the first in-bounds hit.
type PriceWaterfall struct {
	strategies []PriceStrategy
	min, max   int
}

// NewPriceWaterfall builds a waterfall from strategy names. Unknown names
// are skipped with a warning so a config typo degrades instead of failing.
// Bounds outside (0, ∞) fall back to the 100..200000 TWD window.
func NewPriceWaterfall(order []string, selectors []string, min, max int) *PriceWaterfall {
	if len(order) == 0 {
		order = DefaultStrategyOrder
	}
	if len(selectors) == 0 {
		selectors = DefaultPriceSelectors
	}
	if min <= 0 {
		min = 100
	}
	if max <= 0 {
		max = 200000
	}

	w := &PriceWaterfall{min: min, max: max}
	for _, name := range order {
		switch name {
		case StrategyDOM:
			w.strategies = append(w.strategies, &domPrice{selectors: selectors, min: min, max: max})
		case StrategyJSONLD:
			w.strategies = append(w.strategies, &jsonldPrice{min: min, max: max})
		case StrategyMeta:
			w.strategies = append(w.strategies, &metaPrice{min: min, max: max})
		case StrategyState:
			w.strategies = append(w.strategies, &statePrice{min: min, max: max})
		case StrategyText:
			w.strategies = append(w.strategies, &textPrice{min: min, max: max})
		default:
			zap.L().Warn("unknown price strategy, skipping", zap.String("strategy", name))
		}
	}
	return w
}

// Extract runs the waterfall. The returned source names the winning
// strategy; price 0 with source "" means every strategy missed.
func (w *PriceWaterfall) Extract(doc *Document) (price int, source string) {
	for _, s := range w.strategies {
		if p, ok := s.Price(doc); ok {
			return p, s.Name()
		}
	}
	return 0, ""
}

// domPrice reads visible price elements by CSS selector.
type domPrice struct {
	selectors []string
	min, max  int
}

func (s *domPrice) Name() string { return StrategyDOM }

func (s *domPrice) Price(doc *Document) (int, bool) {
	for _, sel := range s.selectors {
		var found int
		doc.Find(sel).EachWithBreak(func(_ int, el *goquery.Selection) bool {
			if p, ok := parseAmount(el.Text(), s.min, s.max); ok {
				found = p
				return false
			}
			return true
		})
		if found > 0 {
			return found, true
		}
	}
	return 0, false
}

// jsonldPrice reads the offer price from JSON-LD Product nodes.
type jsonldPrice struct {
	min, max int
}

func (s *jsonldPrice) Name() string { return StrategyJSONLD }

func (s *jsonldPrice) Price(doc *Document) (int, bool) {
	for _, node := range doc.ProductNodes() {
		if p, ok := parseAmount(node.price(), s.min, s.max); ok {
			return p, true
		}
	}
	return 0, false
}

// metaPrice reads OpenGraph-style price meta tags.
type metaPrice struct {
	min, max int
}

func (s *metaPrice) Name() string { return StrategyMeta }

func (s *metaPrice) Price(doc *Document) (int, bool) {
	for _, key := range []string{"product:price:amount", "og:price:amount"} {
		if p, ok := parseAmount(doc.Meta(key), s.min, s.max); ok {
			return p, true
		}
	}
	return 0, false
}

// statePrice scans embedded JSON state (Next.js page data, hydration
// blobs) for a price field.
type statePrice struct {
	min, max int
}

func (s *statePrice) Name() string { return StrategyState }

func (s *statePrice) Price(doc *Document) (int, bool) {
	var raw strings.Builder
	doc.Find(`script#__NEXT_DATA__, script[type="application/json"]`).Each(func(_ int, el *goquery.Selection) {
		raw.WriteString(el.Text())
		raw.WriteByte('\n')
	})
	if raw.Len() == 0 {
		return 0, false
	}
	// State blobs often carry both a list and a sale price; the minimum
	// in-bounds candidate is the sale price.
	best := 0
	for _, m := range statePriceField.FindAllStringSubmatch(raw.String(), -1) {
		if p, ok := parseAmount(m[1], s.min, s.max); ok {
			if best == 0 || p < best {
				best = p
			}
		}
	}
	return best, best > 0
}

// textPrice falls back to currency amounts in the visible text. When a
// page shows both a list and a sale price the sale price is the lower one,
// so the minimum in-bounds match wins.
type textPrice struct {
	min, max int
}

func (s *textPrice) Name() string { return StrategyText }

func (s *textPrice) Price(doc *Document) (int, bool) {
	best := 0
	for _, m := range currencyAmount.FindAllStringSubmatch(doc.Text(), -1) {
		if p, ok := parseAmount(m[1], s.min, s.max); ok {
			if best == 0 || p < best {
				best = p
			}
		}
	}
	return best, best > 0
}

// parseAmount extracts a whole-dollar amount from text and validates it
// against the plausibility bounds.
func parseAmount(text string, min, max int) (int, bool) {
	m := priceDigits.FindStringSubmatch(text)
	if m == nil {
		return 0, false
	}
	cleaned := strings.ReplaceAll(m[1], ",", "")
	f, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0, false
	}
	p := int(f)
	if p < min || p > max {
		return 0, false
	}
	return p, true
}

func trimFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
