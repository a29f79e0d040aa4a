// Package profile summarises every column of the raw sales CSV and draws one
// distribution chart per column.
package profile

import (
	"math"
	"sort"
	"strconv"
	"strings"
)

// NullLabel is how a null category is labelled in charts.
const NullLabel = "NaN"

// ColumnSummary is one row of summary.csv.
type ColumnSummary struct {
	Name        string
	Nulls       int
	Unique      int
	ModalValue  string
	ModalN      int
	Numeric     bool
	UniqueTotal int // distinct values counting null as one value
}

// SummaryHeader is the column order of summary.csv.
var SummaryHeader = []string{"num_nulls", "num_unique_values", "modal_value", "modal_n", "column_name"}

// Row renders s in SummaryHeader order.
func (s ColumnSummary) Row() []any {
	return []any{s.Nulls, s.Unique, s.ModalValue, s.ModalN, s.Name}
}

// valueCount is one distinct value and how often it occurs.
type valueCount struct {
	label string
	num   float64
	null  bool
	n     int
}

// column is an analysed column: its distinct values with counts, in first
// occurrence order.
type column struct {
	name    string
	numeric bool
	nulls   int
	values  []valueCount
	nums    []float64 // non-null values when numeric
}

// analyse counts values. A column is numeric when it has at least one value
// and every non-null value parses as a float; numeric values are keyed by
// their parsed value so "30" and "30.0" are one value.
func analyse(name string, cells []*string) column {
	c := column{name: name, numeric: true}
	nonNull := 0
	for _, v := range cells {
		if v == nil {
			c.nulls++
			continue
		}
		nonNull++
		if c.numeric {
			f, err := strconv.ParseFloat(strings.TrimSpace(*v), 64)
			if err != nil || math.IsNaN(f) {
				c.numeric = false
			} else {
				c.nums = append(c.nums, f)
			}
		}
	}
	if nonNull == 0 {
		c.numeric = false
	}
	if !c.numeric {
		c.nums = nil
	}

	pos := make(map[string]int)
	for _, v := range cells {
		if v == nil {
			continue
		}
		vc := valueCount{label: *v}
		key := *v
		if c.numeric {
			vc.num, _ = strconv.ParseFloat(strings.TrimSpace(*v), 64)
			vc.label = formatNumber(vc.num)
			key = vc.label
		}
		if i, ok := pos[key]; ok {
			c.values[i].n++
			continue
		}
		vc.n = 1
		pos[key] = len(c.values)
		c.values = append(c.values, vc)
	}
	return c
}

// summary computes nulls, distinct count and the mode. Mode ties resolve to
// the smallest value (numeric order for numeric columns).
func (c column) summary() ColumnSummary {
	s := ColumnSummary{
		Name:        c.name,
		Nulls:       c.nulls,
		Unique:      len(c.values),
		Numeric:     c.numeric,
		UniqueTotal: len(c.values),
	}
	if c.nulls > 0 {
		s.UniqueTotal++
	}
	var best *valueCount
	for i := range c.values {
		v := &c.values[i]
		if best == nil || v.n > best.n || (v.n == best.n && c.less(*v, *best)) {
			best = v
		}
	}
	if best != nil {
		s.ModalValue = best.label
		s.ModalN = best.n
	}
	return s
}

func (c column) less(a, b valueCount) bool {
	if c.numeric {
		return a.num < b.num
	}
	return a.label < b.label
}

// counts returns value counts sorted by count descending, ties by value,
// with the null bucket (when any) placed by its count.
func (c column) counts() []valueCount {
	out := append([]valueCount(nil), c.values...)
	if c.nulls > 0 {
		out = append(out, valueCount{label: NullLabel, null: true, n: c.nulls})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].n != out[j].n {
			return out[i].n > out[j].n
		}
		if out[i].null != out[j].null {
			return !out[i].null
		}
		return c.less(out[i], out[j])
	})
	return out
}

// categorical reports whether the column is charted as bars: non-numeric, or
// fewer than threshold distinct values counting null.
func (c column) categorical(threshold int) bool {
	return !c.numeric || c.summary().UniqueTotal < threshold
}

// formatNumber renders integers without a fractional part and other values
// in their shortest form.
func formatNumber(f float64) string {
	if f == math.Trunc(f) && math.Abs(f) < 1e15 {
		return strconv.FormatFloat(f, 'f', 0, 64)
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// Summarise analyses every column of t in header order.
func Summarise(t *Table) []ColumnSummary {
	out := make([]ColumnSummary, len(t.Columns))
	for i, name := range t.Columns {
		out[i] = analyse(name, t.Column(i)).summary()
	}
	return out
}
