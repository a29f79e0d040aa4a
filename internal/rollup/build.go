// Package rollup builds and incrementally extends the dense daily sales
// rollup: one row per (calendar date, product) carrying the day's sales, the
// running total and the trailing 45-day window sum.
//
// The arithmetic lives in pure functions (Build, Next, Check) so it can be
// tested without a database; Engine wires them to a Store.
package rollup

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"salesrollup/internal/records"
)

// WindowDays is the width of the trailing window, in calendar days, ending at
// and including the row's own date.
const WindowDays = 45

// Build produces the dense rollup for the whole observed date range.
//
// The grid is every calendar date between the first and last transaction date
// (inclusive) crossed with every product that appears in txs. Calendar dates
// outside that range are ignored; transaction dates missing from the calendar
// get no row (the calendar must cover the history, see UncoveredDates).
//
// Rows are returned ordered by (date, product_code).
func Build(txs []records.Transaction, calendar []time.Time) ([]records.RollupRow, error) {
	if len(txs) == 0 {
		return nil, ErrNoTransactions
	}

	first, last := txs[0].Day(), txs[0].Day()
	sales := make(map[Key]decimal.Decimal, len(txs))
	productSet := make(map[string]struct{})
	for _, tx := range txs {
		day := tx.Day()
		if day.Before(first) {
			first = day
		}
		if day.After(last) {
			last = day
		}
		productSet[tx.ProductCode] = struct{}{}
		k := KeyOf(day, tx.ProductCode)
		sales[k] = sales[k].Add(tx.Sales)
	}

	products := make([]string, 0, len(productSet))
	for p := range productSet {
		products = append(products, p)
	}
	sort.Strings(products)

	dates := make([]time.Time, 0, len(calendar))
	for _, c := range calendar {
		c = records.Day(c)
		if c.Before(first) || c.After(last) {
			continue
		}
		dates = append(dates, c)
	}
	dates = records.SortDays(dates)

	np := len(products)
	rows := make([]records.RollupRow, len(dates)*np)

	for j, p := range products {
		running := decimal.Zero
		window := decimal.Zero
		lo := 0
		for i, day := range dates {
			today := sales[KeyOf(day, p)]
			running = running.Add(today)
			window = window.Add(today)

			// Range frame: drop every earlier grid date older than day-44.
			floor := records.AddDays(day, -(WindowDays - 1))
			for dates[lo].Before(floor) {
				window = window.Sub(rows[lo*np+j].SalesToday)
				lo++
			}

			rows[i*np+j] = records.RollupRow{
				Date:        day,
				ProductCode: p,
				SalesToday:  today,
				SalesToDate: running,
				Sales45d:    window,
			}
		}
	}

	return rows, nil
}

// UncoveredDates returns the transaction dates that have no calendar row.
// Sales on those dates are silently excluded from Build.
func UncoveredDates(txs []records.Transaction, calendar []time.Time) []time.Time {
	have := make(map[string]struct{}, len(calendar))
	for _, c := range calendar {
		have[records.Day(c).Format(records.DateLayout)] = struct{}{}
	}
	var missing []time.Time
	seen := make(map[string]struct{})
	for _, tx := range txs {
		k := tx.Day().Format(records.DateLayout)
		if _, ok := have[k]; ok {
			continue
		}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		missing = append(missing, tx.Day())
	}
	return records.SortDays(missing)
}

// Until keeps only the transactions dated on or before day. A zero day keeps
// everything.
func Until(txs []records.Transaction, day time.Time) []records.Transaction {
	if day.IsZero() {
		return txs
	}
	day = records.Day(day)
	out := make([]records.Transaction, 0, len(txs))
	for _, tx := range txs {
		if !tx.Day().After(day) {
			out = append(out, tx)
		}
	}
	return out
}
