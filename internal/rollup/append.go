package rollup

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"salesrollup/internal/records"
)

// AppendInput is everything needed to compute one new rollup date without
// rescanning history.
type AppendInput struct {
	// Target is the date being appended.
	Target time.Time

	// Products is the full historical product spine, not just today's sellers.
	Products []string

	// Today is the raw sales per product on Target. Missing products sold 0.
	Today map[string]decimal.Decimal

	// Prior holds the persisted rows of the last rollup date, per product.
	// A product with no prior row starts from 0.
	Prior map[string]records.RollupRow

	// Evicted is the persisted sales_today per product that leaves the
	// trailing window when moving from the prior date to Target.
	Evicted map[string]decimal.Decimal
}

// Next computes the rows for in.Target, one per spine product, ordered by
// product code:
//
//	sales_to_date = prior.sales_to_date + today
//	sales_45d     = prior.sales_45d - evicted + today
func Next(in AppendInput) []records.RollupRow {
	products := append([]string(nil), in.Products...)
	sort.Strings(products)

	target := records.Day(in.Target)
	out := make([]records.RollupRow, 0, len(products))
	for i, p := range products {
		if i > 0 && p == products[i-1] {
			continue
		}
		today := in.Today[p]
		prior := in.Prior[p]
		out = append(out, records.RollupRow{
			Date:        target,
			ProductCode: p,
			SalesToday:  today,
			SalesToDate: prior.SalesToDate.Add(today),
			Sales45d:    prior.Sales45d.Sub(in.Evicted[p]).Add(today),
		})
	}
	return out
}

// EvictionRange returns the persisted dates whose sales leave the window when
// the rollup advances from prior to target: [prior-44, target-45].
//
// For consecutive dates this is exactly the single date prior-44. When the
// calendar skips days it widens so the new window is still [target-44,
// target]. ok is false when target does not follow prior.
func EvictionRange(prior, target time.Time) (from, to time.Time, ok bool) {
	from = records.AddDays(prior, -(WindowDays - 1))
	to = records.AddDays(target, -WindowDays)
	if to.Before(from) {
		return time.Time{}, time.Time{}, false
	}
	return from, to, true
}
