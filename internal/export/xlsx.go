// Package export writes persisted deals to spreadsheets.
package export

import (
	"io"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/grocery-etl/internal/model"
)

const (
	DealsSheet = "Deals"
	StatsSheet = "Summary"
)

// DealHeader is the column order of the deals sheet.
var DealHeader = []string{
	"uuid", "store", "product_name", "category",
	"regular_price", "sale_price", "discount_percentage", "unit", "quantity",
	"valid_from", "valid_to", "source_url", "image_url", "description",
}

// WriteXLSX saves deals, and stats when non-nil, to a workbook at path.
func WriteXLSX(path string, deals []model.Deal, stats *model.Stats) error {
	f, err := build(deals, stats)
	if err != nil {
		return err
	}
	if err := f.Save(path); err != nil {
		return eris.Wrapf(err, "export: save %s", path)
	}
	return nil
}

// Write streams the workbook to w.
func Write(w io.Writer, deals []model.Deal, stats *model.Stats) error {
	f, err := build(deals, stats)
	if err != nil {
		return err
	}
	if err := f.Write(w); err != nil {
		return eris.Wrap(err, "export: write workbook")
	}
	return nil
}

func build(deals []model.Deal, stats *model.Stats) (*xlsx.File, error) {
	f := xlsx.NewFile()

	sheet, err := f.AddSheet(DealsSheet)
	if err != nil {
		return nil, eris.Wrap(err, "export: add deals sheet")
	}
	addStrings(sheet.AddRow(), DealHeader...)
	for _, d := range deals {
		writeDeal(sheet.AddRow(), d)
	}

	if stats != nil {
		summary, err := f.AddSheet(StatsSheet)
		if err != nil {
			return nil, eris.Wrap(err, "export: add summary sheet")
		}
		writeStats(summary, stats)
	}
	return f, nil
}

func writeDeal(row *xlsx.Row, d model.Deal) {
	var storeName, categoryName string
	if d.Store != nil {
		storeName = d.Store.Name
	}
	if d.Category != nil {
		categoryName = d.Category.Name
	}

	addStrings(row, d.UUID, storeName, d.ProductName, categoryName)
	addDecimal(row, d.RegularPrice)
	addDecimal(row, d.SalePrice)
	addDecimal(row, d.DiscountPercentage)
	addStrings(row, d.Unit)
	addDecimal(row, d.Quantity)
	addStrings(row,
		d.ValidFrom.Format(model.DateLayout),
		d.ValidTo.Format(model.DateLayout),
		d.SourceURL,
		d.ImageURL,
		d.Description,
	)
}

func writeStats(sheet *xlsx.Sheet, s *model.Stats) {
	pair := func(label string) *xlsx.Row {
		row := sheet.AddRow()
		addStrings(row, label)
		return row
	}
	pair("total_deals").AddCell().SetInt64(s.TotalDeals)
	pair("unique_stores").AddCell().SetInt64(s.UniqueStores)
	pair("unique_categories").AddCell().SetInt64(s.UniqueCategories)
	if s.AvgDiscount != nil {
		addDecimal(pair("avg_discount"), s.AvgDiscount)
	}
	if s.AvgSalePrice != nil {
		addDecimal(pair("avg_sale_price"), s.AvgSalePrice)
	}
	if s.EarliestDeal != nil {
		addStrings(pair("earliest_deal"), s.EarliestDeal.Format(model.DateLayout))
	}
	if s.LatestDeal != nil {
		addStrings(pair("latest_deal"), s.LatestDeal.Format(model.DateLayout))
	}
}

func addStrings(row *xlsx.Row, values ...string) {
	for _, v := range values {
		row.AddCell().SetString(v)
	}
}

// addDecimal writes a numeric cell, or an empty one for an absent value.
func addDecimal(row *xlsx.Row, d *decimal.Decimal) {
	cell := row.AddCell()
	if d == nil {
		cell.SetString("")
		return
	}
	cell.SetFloat(d.InexactFloat64())
}
