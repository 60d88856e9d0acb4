package extract

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/vitalsight/harvest-cli/internal/config"
	"github.com/vitalsight/harvest-cli/internal/model"
	"github.com/vitalsight/harvest-cli/internal/urlfilter"
)

// Extractor turns confirmed product pages into product records. Per-site
// waterfall overrides let a source whose DOM prices are unreliable demote
// or drop the dom strategy without touching the global order.
type Extractor struct {
	cfg       config.ExtractConfig
	waterfall *PriceWaterfall
	siteFalls map[string]*PriceWaterfall
	brands    *BrandMatcher
	highlight *Highlighter
	filter    *urlfilter.Filter  // nil drops the URL confirmation signal
	semantic  *SemanticExtractor // nil disables the fallback
}

// New builds an Extractor from config. filter supplies the URL-shape
// confirmation signal and may be nil; semantic may be nil when no API key
// is configured.
func New(cfg config.ExtractConfig, filter *urlfilter.Filter, semantic *SemanticExtractor) (*Extractor, error) {
	highlighter, err := NewHighlighter(cfg.HighlightRulesPath)
	if err != nil {
		return nil, err
	}

	e := &Extractor{
		cfg:       cfg,
		waterfall: NewPriceWaterfall(cfg.StrategyOrder, cfg.PriceSelectors, cfg.PriceMin, cfg.PriceMax),
		siteFalls: make(map[string]*PriceWaterfall),
		brands:    NewBrandMatcher(cfg.BrandWhitelist),
		highlight: highlighter,
		filter:    filter,
		semantic:  semantic,
	}

	for site, order := range cfg.SiteStrategyOrder {
		selectors := cfg.PriceSelectors
		if siteSel, ok := cfg.SiteSelectors[site]; ok {
			selectors = siteSel
		}
		e.siteFalls[site] = NewPriceWaterfall(order, selectors, cfg.PriceMin, cfg.PriceMax)
	}

	return e, nil
}

// ErrNotProduct is returned when a page fails product confirmation. The
// scan agent skips these URLs without recording a failure.
var ErrNotProduct = eris.New("extract: page is not a product")

// Extract builds a product record from a parsed page. site selects a
// per-site waterfall override when one is configured; pass the brand's
// domain. A record with price 0 is still returned when every price
// strategy missed, so the quality metrics can count it.
func (e *Extractor) Extract(ctx context.Context, site string, doc *Document) (*model.ProductRecord, error) {
	title := Title(doc)
	pageText := doc.Text()

	waterfall := e.waterfall
	if wf, ok := e.siteFalls[site]; ok {
		waterfall = wf
	}
	price, priceSource := waterfall.Extract(doc)

	// Confirmation is any of: product metadata, an in-bounds price already
	// resolved, or a product-shaped URL. Rejected pages never reach the
	// semantic fallback.
	if !IsProductPage(doc) && price == 0 && !e.urlConfirms(doc.URL) {
		return nil, ErrNotProduct
	}

	desc := Description(doc)
	units := ParseUnits(title, desc, price)
	highlights := e.highlight.Highlights(title, pageText)

	// Semantic fallback only when deterministic extraction came up short
	// on any field it can supply.
	if e.semantic != nil && (price == 0 || title == "" || units.TotalCount == 0 || len(highlights) == 0) {
		if fields, err := e.semantic.Extract(ctx, doc.URL, pageText); err == nil {
			if title == "" {
				title = fields.Title
			}
			if price == 0 && fields.Price >= e.cfg.PriceMin && fields.Price <= e.cfg.PriceMax {
				price = fields.Price
				priceSource = "semantic"
				units = ParseUnits(title, desc, price)
			}
			if units.TotalCount == 0 && fields.Count > 0 {
				units.TotalCount = fields.Count
				if price > 0 {
					units.UnitPrice = round2(float64(price) / float64(fields.Count))
				}
			}
			if len(highlights) == 0 {
				highlights = fields.Highlights
			}
		} else {
			zap.L().Debug("semantic fallback failed",
				zap.String("url", doc.URL),
				zap.Error(err),
			)
		}
	}

	record := &model.ProductRecord{
		Brand:             e.brands.Match(doc, title),
		Title:             title,
		Price:             price,
		UnitPrice:         units.UnitPrice,
		TotalCount:        units.TotalCount,
		URL:               doc.URL,
		ImageURL:          ImageURL(doc),
		ProductHighlights: model.JoinHighlights(highlights),
	}

	zap.L().Debug("extracted product",
		zap.String("url", doc.URL),
		zap.String("title", title),
		zap.Int("price", price),
		zap.String("price_source", priceSource),
	)

	return record, nil
}

func (e *Extractor) urlConfirms(url string) bool {
	return e.filter != nil && e.filter.IsProductURL(url)
}
