package store

import (
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/vitalsight/harvest-cli/internal/model"
)

// xlsxHeader mirrors the CSV snapshot column order.
var xlsxHeader = []string{
	"source", "brand", "title", "price", "unit_price",
	"total_count", "url", "image_url", "product_highlights",
}

// WriteXLSX exports records as a spreadsheet for the research team.
func WriteXLSX(path string, records []model.ProductRecord) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return eris.Wrapf(err, "store: xlsx dir for %s", path)
	}

	file := xlsx.NewFile()
	sheet, err := file.AddSheet("products")
	if err != nil {
		return eris.Wrap(err, "store: xlsx add sheet")
	}

	header := sheet.AddRow()
	for _, col := range xlsxHeader {
		header.AddCell().Value = col
	}

	for _, r := range DedupeByURL(records) {
		row := sheet.AddRow()
		row.AddCell().Value = r.Source
		row.AddCell().Value = r.Brand
		row.AddCell().Value = r.Title
		row.AddCell().SetInt(r.Price)
		row.AddCell().SetFloat(r.UnitPrice)
		row.AddCell().SetInt(r.TotalCount)
		row.AddCell().Value = r.URL
		row.AddCell().Value = r.ImageURL
		row.AddCell().Value = r.ProductHighlights
	}

	if err := file.Save(path); err != nil {
		return eris.Wrapf(err, "store: save xlsx %s", path)
	}
	return nil
}
