// Package exporter writes the committed history as flat files for spreadsheets and notebooks.
package exporter

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/rs/zerolog"
	"github.com/xuri/excelize/v2"

	"github.com/aristath/treasury/internal/history"
)

// Format selects the output file type
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

// ParseFormat validates a format name
func ParseFormat(s string) (Format, error) {
	switch f := Format(s); f {
	case FormatCSV, FormatXLSX:
		return f, nil
	}
	return "", fmt.Errorf("unsupported export format %q (want csv or xlsx)", s)
}

// Table is one exported dataset. Nil cells are written empty.
type Table struct {
	Name   string
	Header []string
	Rows   [][]interface{}
}

// Exporter reads a store and writes its tables
type Exporter struct {
	store history.Store
	log   zerolog.Logger
}

// New creates an exporter
func New(store history.Store, log zerolog.Logger) *Exporter {
	return &Exporter{
		store: store,
		log:   log.With().Str("component", "exporter").Logger(),
	}
}

// Tables builds the holdings, changes, totals and net change datasets
func (e *Exporter) Tables(ctx context.Context) ([]Table, error) {
	entries, err := e.store.History(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}
	totals, err := e.store.Totals(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load totals: %w", err)
	}

	holdings := Table{
		Name: "holdings",
		Header: []string{"period_key", "entity_id", "country", "symbol_exchange", "filings_reference",
			"quantity", "value_metric", "share_metric"},
	}
	changes := Table{
		Name:   "entity_changes",
		Header: []string{"period_key", "entity_id", "quantity", "quantity_change", "value_change"},
	}
	for _, en := range entries {
		holdings.Rows = append(holdings.Rows, []interface{}{
			en.Period.String(), en.EntityID,
			en.Attr("country"), en.Attr("symbol_exchange"), en.Attr("filings_reference"),
			en.Quantity, deref(en.Value), deref(en.Share),
		})
		if en.QuantityChange != nil {
			changes.Rows = append(changes.Rows, []interface{}{
				en.Period.String(), en.EntityID, en.Quantity, *en.QuantityChange, deref(en.ValueChange),
			})
		}
	}

	total := Table{
		Name:   "period_totals",
		Header: []string{"period_key", "entities", "quantity", "share"},
	}
	net := Table{
		Name:   "net_change",
		Header: []string{"period_key", "net_change", "continuing_change"},
	}
	for _, t := range totals {
		total.Rows = append(total.Rows, []interface{}{t.Period.String(), t.Entities, t.Quantity, t.Share})
		if t.NetChange != nil {
			net.Rows = append(net.Rows, []interface{}{t.Period.String(), *t.NetChange, deref(t.ContinuingChange)})
		}
	}

	return []Table{holdings, changes, total, net}, nil
}

// Export writes every table into dir and returns the written paths.
// CSV produces one file per table; XLSX produces a single workbook with one sheet per table.
func (e *Exporter) Export(ctx context.Context, format Format, dir string) ([]string, error) {
	tables, err := e.Tables(ctx)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create export directory: %w", err)
	}

	var paths []string
	switch format {
	case FormatCSV:
		for _, t := range tables {
			path := filepath.Join(dir, t.Name+".csv")
			if err := WriteCSV(path, t); err != nil {
				return nil, err
			}
			paths = append(paths, path)
		}
	case FormatXLSX:
		path := filepath.Join(dir, "treasury_history.xlsx")
		if err := WriteXLSX(path, tables); err != nil {
			return nil, err
		}
		paths = append(paths, path)
	default:
		return nil, fmt.Errorf("unsupported export format %q", format)
	}

	e.log.Info().
		Str("format", string(format)).
		Strs("files", paths).
		Int("holdings", len(tables[0].Rows)).
		Msg("Export completed")

	return paths, nil
}

// WriteCSV writes one table with a header row
func WriteCSV(path string, t Table) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(t.Header); err != nil {
		return fmt.Errorf("failed to write %s header: %w", t.Name, err)
	}
	record := make([]string, len(t.Header))
	for _, row := range t.Rows {
		for i := range record {
			record[i] = ""
			if i < len(row) {
				record[i] = formatCell(row[i])
			}
		}
		if err := w.Write(record); err != nil {
			return fmt.Errorf("failed to write %s row: %w", t.Name, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("failed to flush %s: %w", path, err)
	}
	return nil
}

// WriteXLSX writes every table as a sheet of one workbook
func WriteXLSX(path string, tables []Table) error {
	f := excelize.NewFile()
	defer f.Close()

	for i, t := range tables {
		if i == 0 {
			if err := f.SetSheetName(f.GetSheetName(0), t.Name); err != nil {
				return fmt.Errorf("failed to name sheet %s: %w", t.Name, err)
			}
		} else if _, err := f.NewSheet(t.Name); err != nil {
			return fmt.Errorf("failed to create sheet %s: %w", t.Name, err)
		}

		header := make([]interface{}, len(t.Header))
		for j, h := range t.Header {
			header[j] = h
		}
		if err := f.SetSheetRow(t.Name, "A1", &header); err != nil {
			return fmt.Errorf("failed to write %s header: %w", t.Name, err)
		}
		for r, row := range t.Rows {
			cell, err := excelize.CoordinatesToCellName(1, r+2)
			if err != nil {
				return err
			}
			values := row
			if err := f.SetSheetRow(t.Name, cell, &values); err != nil {
				return fmt.Errorf("failed to write %s row %d: %w", t.Name, r+1, err)
			}
		}
		if err := f.SetPanes(t.Name, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"}); err != nil {
			return fmt.Errorf("failed to freeze %s header: %w", t.Name, err)
		}
	}

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("failed to save %s: %w", path, err)
	}
	return nil
}

func deref(v *float64) interface{} {
	if v == nil {
		return nil
	}
	return *v
}

func formatCell(v interface{}) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case int:
		return strconv.Itoa(x)
	default:
		return fmt.Sprint(x)
	}
}
