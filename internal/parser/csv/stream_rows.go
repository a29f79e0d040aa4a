package csv

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"golang.org/x/text/encoding/charmap"

	"salesrollup/internal/config"
	"salesrollup/internal/transformer"
	"salesrollup/internal/transformer/builtin"
)

// DecodeReader wraps r with a charset decoder. The sales export is latin-1;
// "utf8" (or empty) passes bytes through.
func DecodeReader(r io.Reader, encoding string) (io.Reader, error) {
	switch strings.ToLower(strings.ReplaceAll(encoding, "-", "")) {
	case "", "utf8":
		return r, nil
	case "latin1", "iso88591":
		return charmap.ISO8859_1.NewDecoder().Reader(r), nil
	case "cp1252", "windows1252":
		return charmap.Windows1252.NewDecoder().Reader(r), nil
	default:
		return nil, fmt.Errorf("csv: unsupported encoding %q", encoding)
	}
}

// NormalizeHeader maps a raw header to its column name: a BOM and edge
// space are stripped, then header_map is consulted, then the name is
// lower-cased with spaces replaced by underscores.
func NormalizeHeader(h string, first bool, hm map[string]string) string {
	if builtin.HasEdgeSpace(h) {
		h = strings.TrimSpace(h)
	}
	if first {
		h = strings.TrimPrefix(h, "\uFEFF")
	}
	if mapped, ok := hm[h]; ok {
		return mapped
	}
	return strings.ReplaceAll(strings.ToLower(h), " ", "_")
}

// ReadHeader returns the raw (unmapped) header of a CSV stream. The reader
// is consumed up to the end of the first record.
func ReadHeader(src io.Reader, opt config.Options) ([]string, error) {
	r, err := DecodeReader(src, opt.String("encoding", ""))
	if err != nil {
		return nil, err
	}
	cr := csv.NewReader(r)
	cr.Comma = opt.Rune("comma", ',')
	cr.LazyQuotes = opt.Bool("lazy_quotes", false)
	cr.FieldsPerRecord = -1
	hdr, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	out := make([]string, len(hdr))
	for i, h := range hdr {
		h = strings.TrimSpace(h)
		if i == 0 {
			h = strings.TrimPrefix(h, "\uFEFF")
		}
		out[i] = h
	}
	return out, nil
}

// StreamCSVRows streams CSV into pooled *transformer.Row objects aligned to the
// target 'columns' order. Target columns absent from the header stay nil.
//
// Options: has_header, comma, trim_space, lazy_quotes, fields_per_record,
// encoding, header_map, null_values and normalize_headers (false keeps the
// raw header names so callers can address every source column).
//
// Cells equal to "" or to any null_values entry are delivered as nil; every
// other cell is a string. Typing happens downstream.
//
// NOTE on cancellation:
// On ctx cancellation we must NOT return in-flight rows to the pool (Drop instead),
// otherwise the parser can reuse them immediately while downstream stages still
// read them.
func StreamCSVRows(
	ctx context.Context,
	src io.ReadCloser,
	columns []string,
	opt config.Options,
	out chan<- *transformer.Row,
	onErr func(line int, err error),
) error {
	defer src.Close()

	var line int

	hasHeader := opt.Bool("has_header", true)
	comma := opt.Rune("comma", ',')
	trim := opt.Bool("trim_space", true)
	hm := opt.StringMap("header_map")
	lazy := opt.Bool("lazy_quotes", false)
	fieldsPer := opt.Int("fields_per_record", 0)
	normalize := opt.Bool("normalize_headers", true)

	nulls := make(map[string]struct{})
	for _, s := range opt.StringSlice("null_values") {
		nulls[s] = struct{}{}
	}

	r, err := DecodeReader(src, opt.String("encoding", ""))
	if err != nil {
		return err
	}

	cr := csv.NewReader(r)
	cr.Comma = comma
	cr.ReuseRecord = true
	cr.LazyQuotes = lazy
	if fieldsPer != 0 {
		cr.FieldsPerRecord = fieldsPer
	} else {
		cr.FieldsPerRecord = -1
	}

	colIx := make([]int, len(columns))
	for i := range colIx {
		colIx[i] = -1
	}

	readRec := func() ([]string, error) {
		line++
		return cr.Read()
	}

	if hasHeader {
		hdr, err := readRec()
		if err != nil {
			if onErr != nil {
				onErr(line, fmt.Errorf("read header: %w", err))
			}
			return err
		}
		srcToIdx := make(map[string]int, len(hdr))
		for i, h := range hdr {
			if normalize {
				h = NormalizeHeader(h, i == 0, hm)
			} else {
				h = strings.TrimPrefix(strings.TrimSpace(h), "\uFEFF")
			}
			if _, dup := srcToIdx[h]; !dup {
				srcToIdx[h] = i
			}
		}
		for t, target := range columns {
			if si, ok := srcToIdx[target]; ok {
				colIx[t] = si
			}
		}
	} else {
		for i := range columns {
			colIx[i] = i
		}
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		rec, err := readRec()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			if onErr != nil {
				onErr(line, fmt.Errorf("csv read: %w", err))
			}
			continue
		}

		row := transformer.GetRow(len(columns))
		row.Line = line

		for t := range columns {
			si := colIx[t]
			if si < 0 || si >= len(rec) {
				row.V[t] = nil
				continue
			}
			v := rec[si]
			if trim && builtin.HasEdgeSpace(v) {
				v = strings.TrimSpace(v)
			}
			if _, isNull := nulls[v]; v == "" || isNull {
				row.V[t] = nil
			} else {
				row.V[t] = v
			}
		}

		select {
		case out <- row:
		case <-ctx.Done():
			// IMPORTANT: do not re-pool on cancellation
			row.Drop()
			return ctx.Err()
		}
	}
}
