package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustParse(t *testing.T, html string) *Document {
	t.Helper()
	doc, err := ParseDocument("https://shop.test/products/x", html)
	require.NoError(t, err)
	return doc
}

func defaultWaterfall() *PriceWaterfall {
	return NewPriceWaterfall(nil, nil, 100, 200000)
}

func TestDOMPriceBeatsJSONLD(t *testing.T) {
	t.Parallel()

	// Sale price in the DOM, stale list price in structured data.
	doc := mustParse(t, `<html><head>
<script type="application/ld+json">{"@type":"Product","name":"魚油","offers":{"@type":"Offer","price":"400"}}</script>
</head><body><span class="product-price">NT$350</span></body></html>`)

	price, source := defaultWaterfall().Extract(doc)
	assert.Equal(t, 350, price)
	assert.Equal(t, StrategyDOM, source)
}

func TestJSONLDPriceWhenNoDOM(t *testing.T) {
	t.Parallel()

	doc := mustParse(t, `<html><head>
<script type="application/ld+json">{"@type":"Product","offers":{"price":1280}}</script>
</head><body><h1>高濃度魚油</h1></body></html>`)

	price, source := defaultWaterfall().Extract(doc)
	assert.Equal(t, 1280, price)
	assert.Equal(t, StrategyJSONLD, source)
}

func TestJSONLDGraphAndAggregateOffer(t *testing.T) {
	t.Parallel()

	doc := mustParse(t, `<html><head>
<script type="application/ld+json">{"@context":"https://schema.org","@graph":[
  {"@type":"WebSite","name":"shop"},
  {"@type":"Product","name":"B群","offers":{"@type":"AggregateOffer","lowPrice":"680","highPrice":"880"}}
]}</script>
</head><body></body></html>`)

	price, source := defaultWaterfall().Extract(doc)
	assert.Equal(t, 680, price)
	assert.Equal(t, StrategyJSONLD, source)
}

func TestMetaPriceFallback(t *testing.T) {
	t.Parallel()

	doc := mustParse(t, `<html><head>
<meta property="product:price:amount" content="990">
</head><body></body></html>`)

	price, source := defaultWaterfall().Extract(doc)
	assert.Equal(t, 990, price)
	assert.Equal(t, StrategyMeta, source)
}

func TestStatePriceFromNextData(t *testing.T) {
	t.Parallel()

	doc := mustParse(t, `<html><body>
<script id="__NEXT_DATA__" type="application/json">{"props":{"pageProps":{"product":{"price":"1580","name":"葉黃素"}}}}</script>
</body></html>`)

	price, source := defaultWaterfall().Extract(doc)
	assert.Equal(t, 1580, price)
	assert.Equal(t, StrategyState, source)
}

func TestStatePriceTakesMinimum(t *testing.T) {
	t.Parallel()

	// Hydration state carrying both list and sale price: the sale price
	// is the lower one.
	doc := mustParse(t, `<html><body>
<script id="__NEXT_DATA__" type="application/json">{"props":{"product":{"price":"1200","sale_price":"900"}}}</script>
</body></html>`)

	price, source := defaultWaterfall().Extract(doc)
	assert.Equal(t, 900, price)
	assert.Equal(t, StrategyState, source)
}

func TestTextPriceTakesMinimum(t *testing.T) {
	t.Parallel()

	// List price and sale price in plain text: the sale price is lower.
	doc := mustParse(t, `<html><body>
<p>原價 NT$1,200 特價 NT$899</p>
</body></html>`)

	price, source := defaultWaterfall().Extract(doc)
	assert.Equal(t, 899, price)
	assert.Equal(t, StrategyText, source)
}

func TestPriceBoundsRejectOutliers(t *testing.T) {
	t.Parallel()

	// 38 is below the floor (likely a per-unit price), 1500000 above the
	// ceiling (likely a product ID).
	doc := mustParse(t, `<html><body>
<span class="price">NT$38</span>
<p>NT$1,500,000</p>
</body></html>`)

	price, source := defaultWaterfall().Extract(doc)
	assert.Zero(t, price)
	assert.Empty(t, source)
}

func TestCustomStrategyOrder(t *testing.T) {
	t.Parallel()

	// jsonld-first order for a site whose DOM shows per-unit prices.
	w := NewPriceWaterfall([]string{StrategyJSONLD, StrategyDOM}, nil, 100, 200000)
	doc := mustParse(t, `<html><head>
<script type="application/ld+json">{"@type":"Product","offers":{"price":"400"}}</script>
</head><body><span class="price">NT$350</span></body></html>`)

	price, source := w.Extract(doc)
	assert.Equal(t, 400, price)
	assert.Equal(t, StrategyJSONLD, source)
}

func TestUnknownStrategyNameSkipped(t *testing.T) {
	t.Parallel()

	w := NewPriceWaterfall([]string{"bogus", StrategyDOM}, nil, 100, 200000)
	doc := mustParse(t, `<html><body><span class="price">NT$500</span></body></html>`)

	price, source := w.Extract(doc)
	assert.Equal(t, 500, price)
	assert.Equal(t, StrategyDOM, source)
}

func TestParseAmount(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want int
		ok   bool
	}{
		{"NT$1,280", 1280, true},
		{"特價 899 元", 899, true},
		{"1580.00", 1580, true},
		{"no digits here", 0, false},
		{"NT$50", 0, false},      // below floor
		{"NT$999,999", 0, false}, // above ceiling
	}
	for _, tt := range tests {
		got, ok := parseAmount(tt.in, 100, 200000)
		assert.Equal(t, tt.ok, ok, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}
