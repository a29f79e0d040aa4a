// Package probe samples the head of a sales export and reports what a load
// would see: the delimiter, a coarse type per column, how headers map onto
// transaction columns and whether order lines are unique in the sample.
package probe

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"salesrollup/internal/config"
	"salesrollup/internal/export"
	csvparser "salesrollup/internal/parser/csv"
	"salesrollup/internal/records"
	"salesrollup/internal/storage"
)

// DefaultMaxBytes is how much of the source is sampled.
const DefaultMaxBytes = 256 << 10

// distinctCap bounds per-column distinct tracking.
const distinctCap = 10000

// Options controls a probe.
type Options struct {
	// Parser carries encoding, comma, header_map and null_values. A comma of
	// 0 or an absent one is sniffed from the header line.
	Parser config.Options

	// MaxBytes limits the sample. Defaults to DefaultMaxBytes.
	MaxBytes int
}

// Column describes one source column in the sample.
type Column struct {
	Header   string
	Mapped   string // transaction column, "" when unused by a load
	Type     string // integer, float, timestamp or text
	Nulls    int
	Distinct int // capped at distinctCap
	Example  string
}

// Result is the outcome of a probe.
type Result struct {
	Delimiter rune
	Rows      int // complete data rows in the sample
	Skipped   int // rows with the wrong field count
	Columns   []Column

	// Missing lists transaction columns no header maps to. row_hash is
	// computed and never missing.
	Missing []string

	// DuplicateLines counts sample rows repeating an earlier
	// (order_number, order_line) pair.
	DuplicateLines int
}

// OK reports whether a load would find every transaction column.
func (r Result) OK() bool { return len(r.Missing) == 0 }

// Probe reads up to opt.MaxBytes from src, cuts the sample to the last full
// line and inspects it.
func Probe(src io.Reader, opt Options) (Result, error) {
	maxBytes := opt.MaxBytes
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	dec, err := csvparser.DecodeReader(src, opt.Parser.String("encoding", ""))
	if err != nil {
		return Result{}, err
	}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, io.LimitReader(dec, int64(maxBytes))); err != nil {
		return Result{}, fmt.Errorf("read sample: %w", err)
	}
	sample := buf.Bytes()
	if buf.Len() == maxBytes {
		if i := bytes.LastIndexByte(sample, '\n'); i > 0 {
			sample = sample[:i+1]
		}
	}
	sample = bytes.TrimPrefix(sample, []byte("\uFEFF"))

	delim := opt.Parser.Rune("comma", 0)
	if delim == 0 {
		delim = sniffDelimiter(sample)
	}

	headers, rows, skipped, err := readSample(sample, delim)
	if err != nil {
		return Result{}, err
	}
	res := Result{Delimiter: delim, Rows: len(rows), Skipped: skipped}

	nulls := make(map[string]struct{})
	for _, s := range opt.Parser.StringSlice("null_values") {
		nulls[s] = struct{}{}
	}
	isNull := func(v string) bool {
		_, ok := nulls[v]
		return v == "" || ok
	}

	hm := opt.Parser.StringMap("header_map")
	mapped := make(map[string]int)
	for i, h := range headers {
		c := Column{Header: h, Type: inferType(rows, i, isNull)}
		name := csvparser.NormalizeHeader(h, false, hm)
		if _, dup := mapped[name]; !dup && isTransactionColumn(name) {
			c.Mapped = name
			mapped[name] = i
		}
		c.Nulls, c.Distinct, c.Example = columnStats(rows, i, isNull)
		res.Columns = append(res.Columns, c)
	}

	for _, col := range storage.TransactionColumns {
		if col == "row_hash" {
			continue
		}
		if _, ok := mapped[col]; !ok {
			res.Missing = append(res.Missing, col)
		}
	}

	on, okOn := mapped["order_number"]
	ol, okOl := mapped["order_line"]
	if okOn && okOl {
		seen := make(map[[2]string]struct{}, len(rows))
		for _, r := range rows {
			k := [2]string{r[on], r[ol]}
			if _, dup := seen[k]; dup {
				res.DuplicateLines++
				continue
			}
			seen[k] = struct{}{}
		}
	}
	return res, nil
}

// Table renders one row per source column.
func (r Result) Table() export.Table {
	t := export.Table{
		Name:   "probe",
		Header: []string{"header", "mapped_to", "type", "nulls", "distinct", "example"},
	}
	for _, c := range r.Columns {
		t.Rows = append(t.Rows, []any{c.Header, c.Mapped, c.Type, c.Nulls, c.Distinct, c.Example})
	}
	return t
}

func isTransactionColumn(name string) bool {
	for _, c := range storage.TransactionColumns {
		if c == name && c != "row_hash" {
			return true
		}
	}
	return false
}

// sniffDelimiter picks the candidate occurring most often in the first line.
func sniffDelimiter(sample []byte) rune {
	line := sample
	if i := bytes.IndexByte(sample, '\n'); i >= 0 {
		line = sample[:i]
	}
	best, bestN := ',', 0
	for _, c := range []rune{',', ';', '\t', '|'} {
		if n := bytes.Count(line, []byte(string(c))); n > bestN {
			best, bestN = c, n
		}
	}
	return best
}

// readSample parses the header and every data row. Rows with the wrong field
// count are skipped, as is a final partial record.
func readSample(data []byte, delim rune) (headers []string, rows [][]string, skipped int, err error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil, 0, fmt.Errorf("probe: empty sample")
	}
	r := csv.NewReader(bytes.NewReader(data))
	r.Comma = delim
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	headers, err = r.Read()
	if err != nil {
		return nil, nil, 0, fmt.Errorf("probe: read header: %w", err)
	}
	for i := range headers {
		headers[i] = strings.TrimSpace(headers[i])
	}
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			skipped++
			continue
		}
		if len(rec) != len(headers) {
			skipped++
			continue
		}
		for i := range rec {
			rec[i] = strings.TrimSpace(rec[i])
		}
		rows = append(rows, rec)
	}
	return headers, rows, skipped, nil
}

// inferType prefers the most specific type every non-null value satisfies.
func inferType(rows [][]string, col int, isNull func(string) bool) string {
	allInt, allFloat, allTS := true, true, true
	seen := false
	for _, r := range rows {
		v := r[col]
		if isNull(v) {
			continue
		}
		seen = true
		if allInt {
			if _, err := strconv.ParseInt(v, 10, 64); err != nil {
				allInt = false
			}
		}
		if allFloat {
			if _, err := strconv.ParseFloat(v, 64); err != nil {
				allFloat = false
			}
		}
		if allTS {
			if _, err := records.ParseOrderDate(v); err != nil {
				allTS = false
			}
		}
	}
	switch {
	case !seen:
		return "text"
	case allInt:
		return "integer"
	case allFloat:
		return "float"
	case allTS:
		return "timestamp"
	default:
		return "text"
	}
}

func columnStats(rows [][]string, col int, isNull func(string) bool) (nulls, distinct int, example string) {
	set := make(map[string]struct{})
	for _, r := range rows {
		v := r[col]
		if isNull(v) {
			nulls++
			continue
		}
		if example == "" {
			example = v
		}
		if len(set) < distinctCap {
			set[v] = struct{}{}
		}
	}
	return nulls, len(set), example
}
