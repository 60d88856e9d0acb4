package extract

// IsProductPage is the metadata confirmation signal: og:type says product,
// or the page carries a JSON-LD Product node. The Extractor combines it
// with a resolved price and the URL shape before rejecting a page.
func IsProductPage(doc *Document) bool {
	if doc.Meta("og:type") == "product" {
		return true
	}
	return len(doc.ProductNodes()) > 0
}
