// Package export writes report tables as CSV files, an XLSX workbook or
// terminal tables.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"salesrollup/internal/records"
)

// Table is a named, rectangular result. Cells may be nil, string, int,
// int64, float64, decimal.Decimal or time.Time.
type Table struct {
	Name   string
	Header []string
	Rows   [][]any
}

// FormatCell renders one cell as text. nil is the empty string; midnight
// timestamps render as dates.
func FormatCell(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case decimal.Decimal:
		return t.String()
	case time.Time:
		if t.Equal(records.Day(t)) {
			return t.Format(records.DateLayout)
		}
		return t.UTC().Format("2006-01-02 15:04:05")
	case *string:
		if t == nil {
			return ""
		}
		return *t
	default:
		return fmt.Sprint(t)
	}
}

// WriteCSV writes t with its header to path.
func WriteCSV(path string, t Table) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := writeCSV(f, t); err != nil {
		_ = f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}

func writeCSV(w io.Writer, t Table) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(t.Header); err != nil {
		return err
	}
	rec := make([]string, len(t.Header))
	for _, row := range t.Rows {
		rec = rec[:0]
		for _, v := range row {
			rec = append(rec, FormatCell(v))
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteCSVFiles writes each table to dir/<name>.csv and returns the paths.
func WriteCSVFiles(dir string, tables ...Table) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	paths := make([]string, 0, len(tables))
	for _, t := range tables {
		p := filepath.Join(dir, t.Name+".csv")
		if err := WriteCSV(p, t); err != nil {
			return paths, err
		}
		paths = append(paths, p)
	}
	return paths, nil
}

// maxSheetName is Excel's limit on sheet name length.
const maxSheetName = 31

// WriteXLSX writes one sheet per table to path. Money cells are stored as
// numbers, dates as ISO text.
func WriteXLSX(path string, tables ...Table) (err error) {
	f := excelize.NewFile()
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()

	for i, t := range tables {
		name := t.Name
		if len(name) > maxSheetName {
			name = name[:maxSheetName]
		}
		if i == 0 {
			if err := f.SetSheetName("Sheet1", name); err != nil {
				return fmt.Errorf("sheet %s: %w", name, err)
			}
		} else if _, err := f.NewSheet(name); err != nil {
			return fmt.Errorf("sheet %s: %w", name, err)
		}

		header := make([]any, len(t.Header))
		for j, h := range t.Header {
			header[j] = h
		}
		if err := f.SetSheetRow(name, "A1", &header); err != nil {
			return fmt.Errorf("sheet %s header: %w", name, err)
		}
		for r, row := range t.Rows {
			cells := make([]any, len(row))
			for j, v := range row {
				cells[j] = xlsxValue(v)
			}
			cell, err := excelize.CoordinatesToCellName(1, r+2)
			if err != nil {
				return err
			}
			if err := f.SetSheetRow(name, cell, &cells); err != nil {
				return fmt.Errorf("sheet %s row %d: %w", name, r+2, err)
			}
		}
	}

	if len(tables) > 0 {
		if err := f.SaveAs(path); err != nil {
			return fmt.Errorf("save %s: %w", path, err)
		}
	}
	return nil
}

func xlsxValue(v any) any {
	switch t := v.(type) {
	case decimal.Decimal:
		return t.InexactFloat64()
	case time.Time, *string:
		return FormatCell(t)
	default:
		return v
	}
}

// Render prints t to w as a box table ("table"), GitHub markdown
// ("markdown") or CSV ("csv"), followed by a row count for box tables.
func Render(w io.Writer, t Table, format string) error {
	if format == "csv" {
		return writeCSV(w, t)
	}

	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.SetStyle(table.StyleLight)
	if t.Name != "" && format != "markdown" {
		tw.SetTitle(t.Name)
	}

	header := make(table.Row, len(t.Header))
	for i, h := range t.Header {
		header[i] = h
	}
	tw.AppendHeader(header)
	for _, row := range t.Rows {
		r := make(table.Row, len(row))
		for i, v := range row {
			r[i] = FormatCell(v)
		}
		tw.AppendRow(r)
	}

	switch format {
	case "markdown", "md":
		tw.RenderMarkdown()
	default:
		tw.Render()
		_, _ = fmt.Fprintf(w, "(%d rows)\n", len(t.Rows))
	}
	return nil
}
