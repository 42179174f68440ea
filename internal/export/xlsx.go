// Package export writes the catalog to spreadsheet files.
package export

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/catalog-sync/internal/model"
	"github.com/sells-group/catalog-sync/internal/store"
)

// Sheet names written by WriteXLSX.
const (
	CatalogSheet = "Catalog"
	HistorySheet = "Price History"
)

const defaultPageSize = 500

// CatalogHeader is the first row of the catalog sheet.
var CatalogHeader = []string{
	"ID", "Name", "Series", "Number", "Category", "Variant",
	"Exclusive", "Chase", "Vaulted", "Estimated Value", "Currency",
	"Price Updated", "Source URL", "Image URL", "Data Sources",
}

// HistoryHeader is the first row of the price history sheet.
var HistoryHeader = []string{
	"Item ID", "Item", "Source", "Amount", "Currency", "Condition", "Listing URL", "Observed",
}

// Source is the read side of the store used by the export.
type Source interface {
	ListItems(ctx context.Context, filter store.ItemFilter) ([]model.CatalogItem, error)
	ListObservations(ctx context.Context, itemID string) ([]model.PriceObservation, error)
}

// Options configures WriteXLSX.
type Options struct {
	Series   string // only items of this series when set
	History  bool   // add a price history sheet
	PageSize int
}

// WriteXLSX pages through the catalog and saves it to path. It returns the
// number of items written.
func WriteXLSX(ctx context.Context, src Source, path string, opts Options) (int, error) {
	if opts.PageSize <= 0 {
		opts.PageSize = defaultPageSize
	}

	f := xlsx.NewFile()
	catalog, err := f.AddSheet(CatalogSheet)
	if err != nil {
		return 0, eris.Wrap(err, "xlsx: add catalog sheet")
	}
	addRow(catalog, CatalogHeader)

	var history *xlsx.Sheet
	if opts.History {
		history, err = f.AddSheet(HistorySheet)
		if err != nil {
			return 0, eris.Wrap(err, "xlsx: add history sheet")
		}
		addRow(history, HistoryHeader)
	}

	written := 0
	for offset := 0; ; offset += opts.PageSize {
		if ctx.Err() != nil {
			return written, eris.Wrap(ctx.Err(), "xlsx: context cancelled")
		}
		items, err := src.ListItems(ctx, store.ItemFilter{Series: opts.Series, Limit: opts.PageSize, Offset: offset})
		if err != nil {
			return written, eris.Wrap(err, "xlsx: list items")
		}
		for i := range items {
			addRow(catalog, itemRow(&items[i]))
			written++

			if history == nil {
				continue
			}
			obs, err := src.ListObservations(ctx, items[i].ID)
			if err != nil {
				return written, eris.Wrapf(err, "xlsx: list observations %s", items[i].ID)
			}
			for _, o := range obs {
				addRow(history, observationRow(&items[i], o))
			}
		}
		if len(items) < opts.PageSize {
			break
		}
	}

	if err := f.Save(path); err != nil {
		return written, eris.Wrapf(err, "xlsx: save %s", path)
	}
	return written, nil
}

// ReadSheet returns every row of the named sheet as strings.
func ReadSheet(path, name string) ([][]string, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "xlsx: open file")
	}
	sheet, ok := f.Sheet[name]
	if !ok {
		return nil, eris.Errorf("xlsx: sheet %q not found", name)
	}

	rows := make([][]string, 0, len(sheet.Rows))
	for _, row := range sheet.Rows {
		cells := make([]string, len(row.Cells))
		for j, cell := range row.Cells {
			cells[j] = cell.String()
		}
		rows = append(rows, cells)
	}
	return rows, nil
}

func itemRow(it *model.CatalogItem) []string {
	value, currency, updated := "", "", ""
	if it.EstimatedValue != nil {
		value = strconv.FormatFloat(*it.EstimatedValue, 'f', 2, 64)
		currency = it.ValueCurrency
	}
	if it.PriceUpdatedAt != nil {
		updated = it.PriceUpdatedAt.UTC().Format(time.RFC3339)
	}
	return []string{
		it.ID, it.Name, it.Series, it.NumberValue(), it.Category, it.Variant,
		yesNo(it.IsExclusive), yesNo(it.IsChase), yesNo(it.IsVaulted), value, currency,
		updated, it.SourceURL, it.ImageURL, strings.Join(it.DataSources, ", "),
	}
}

func observationRow(it *model.CatalogItem, o model.PriceObservation) []string {
	return []string{
		it.ID, it.Label(), o.SourceName,
		strconv.FormatFloat(o.Price.Amount, 'f', 2, 64), o.Price.Currency,
		o.Condition, o.ListingURL, o.ObservedAt.UTC().Format(time.RFC3339),
	}
}

func addRow(sheet *xlsx.Sheet, values []string) {
	row := sheet.AddRow()
	for _, v := range values {
		row.AddCell().SetString(v)
	}
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
