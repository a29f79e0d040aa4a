package profile

import (
	"context"
	"fmt"
	"os"

	"salesrollup/internal/config"
	"salesrollup/internal/parser/csv"
	"salesrollup/internal/transformer"
)

// Table is the raw CSV: every source column as text, nil for null cells.
type Table struct {
	Columns []string
	Rows    [][]*string
}

// Column returns the values of column i.
func (t *Table) Column(i int) []*string {
	out := make([]*string, len(t.Rows))
	for r, row := range t.Rows {
		out[r] = row[i]
	}
	return out
}

// ReadTable loads every column of the CSV at path without mapping headers.
// Empty cells and null markers (opt "null_values") read as nil. Records the
// parser cannot read are skipped with onErr, matching a warn-and-skip reader.
func ReadTable(ctx context.Context, path string, opt config.Options, onErr func(line int, err error)) (*Table, error) {
	hf, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open source: %w", err)
	}
	header, err := csv.ReadHeader(hf, opt)
	_ = hf.Close()
	if err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open source: %w", err)
	}

	raw := config.Options{}
	for k, v := range opt {
		raw[k] = v
	}
	raw["normalize_headers"] = false

	out := make(chan *transformer.Row, 256)
	errCh := make(chan error, 1)
	go func() {
		defer close(out)
		errCh <- csv.StreamCSVRows(ctx, f, header, raw, out, onErr)
	}()

	t := &Table{Columns: header}
	for r := range out {
		row := make([]*string, len(header))
		for i, v := range r.V {
			if s, ok := v.(string); ok {
				row[i] = &s
			}
		}
		r.Free()
		t.Rows = append(t.Rows, row)
	}
	if err := <-errCh; err != nil {
		return nil, err
	}
	return t, nil
}
