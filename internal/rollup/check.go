package rollup

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"salesrollup/internal/records"
)

// ViolationKind classifies a broken rollup invariant.
type ViolationKind string

const (
	ViolationDuplicate ViolationKind = "duplicate"
	ViolationMissing   ViolationKind = "missing"
	ViolationToDate    ViolationKind = "sales_to_date"
	ViolationWindow    ViolationKind = "sales_45d"
)

// Violation is one broken invariant at a rollup cell.
type Violation struct {
	Kind    ViolationKind
	Date    time.Time
	Product string
	Got     decimal.Decimal
	Want    decimal.Decimal
}

func (v Violation) String() string {
	switch v.Kind {
	case ViolationDuplicate, ViolationMissing:
		return fmt.Sprintf("%s row date=%s product=%s", v.Kind, v.Date.Format(records.DateLayout), v.Product)
	default:
		return fmt.Sprintf("%s mismatch date=%s product=%s got=%s want=%s",
			v.Kind, v.Date.Format(records.DateLayout), v.Product, v.Got, v.Want)
	}
}

// Check verifies density, running totals and window sums over a rollup row
// set. dates is the calendar the rollup must cover; when nil, the distinct
// dates present in rows are used. A product that first appears part-way
// through is checked from its first row onward, provided that row starts from
// zero. A first row already carrying earlier sales means leading rows are
// gone, and the product is checked from the first calendar date.
//
// The window check recomputes each sum from point lookups rather than a
// sliding accumulator so it does not share Build's arithmetic.
func Check(rows []records.RollupRow, dates []time.Time) []Violation {
	var out []Violation

	ix := &Index{pos: make(map[Key]int, len(rows))}
	productFirst := make(map[string]time.Time)
	var seenDates []time.Time
	for _, r := range rows {
		if !ix.Append(r) {
			out = append(out, Violation{Kind: ViolationDuplicate, Date: records.Day(r.Date), Product: r.ProductCode})
			continue
		}
		day := records.Day(r.Date)
		seenDates = append(seenDates, day)
		if f, ok := productFirst[r.ProductCode]; !ok || day.Before(f) {
			productFirst[r.ProductCode] = day
		}
	}

	if dates == nil {
		dates = seenDates
	} else {
		dates = append([]time.Time(nil), dates...)
	}
	dates = records.SortDays(dates)

	products := make([]string, 0, len(productFirst))
	for p, first := range productFirst {
		products = append(products, p)
		if len(dates) == 0 || !first.After(dates[0]) {
			continue
		}
		if r, ok := ix.Get(first, p); ok && !startsFresh(r) {
			productFirst[p] = dates[0]
		}
	}
	sort.Strings(products)

	for _, p := range products {
		running := decimal.Zero
		for _, day := range dates {
			if day.Before(productFirst[p]) {
				continue
			}
			r, ok := ix.Get(day, p)
			if !ok {
				out = append(out, Violation{Kind: ViolationMissing, Date: day, Product: p})
				continue
			}
			running = running.Add(r.SalesToday)
			if !r.SalesToDate.Equal(running) {
				out = append(out, Violation{Kind: ViolationToDate, Date: day, Product: p, Got: r.SalesToDate, Want: running})
				// Resync so one bad row reports once.
				running = r.SalesToDate
			}

			window := decimal.Zero
			for back := 0; back < WindowDays; back++ {
				if w, ok := ix.Get(records.AddDays(day, -back), p); ok {
					window = window.Add(w.SalesToday)
				}
			}
			if !r.Sales45d.Equal(window) {
				out = append(out, Violation{Kind: ViolationWindow, Date: day, Product: p, Got: r.Sales45d, Want: window})
			}
		}
	}

	return out
}

// startsFresh reports whether r is a plausible first row: nothing before it
// contributes to its totals.
func startsFresh(r records.RollupRow) bool {
	return r.SalesToDate.Equal(r.SalesToday) && r.Sales45d.Equal(r.SalesToday)
}
