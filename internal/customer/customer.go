// Package customer computes customer lifetime value and the customer value
// index (CVI) grouped by territory and by product line.
package customer

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"gonum.org/v1/gonum/stat"

	"salesrollup/internal/export"
	"salesrollup/internal/records"
)

// MissingLabel is the group key used for a null territory.
const MissingLabel = "Missing"

// moneyPlaces is the rounding applied to derived money values.
const moneyPlaces = 2

// Lifetime is one customer's order history summary.
type Lifetime struct {
	Customer         string
	FirstOrder       time.Time
	LastOrder        time.Time
	MonthsActive     int // distinct (year, month) pairs with an order
	TotalSales       decimal.Decimal
	AvgSalesPerMonth decimal.Decimal
}

// SalesStats summarises customer totals within one group.
type SalesStats struct {
	Key    string
	Mean   decimal.Decimal
	Median decimal.Decimal
	Count  int
}

// CVIStats summarises CVI values within one group.
type CVIStats struct {
	Key    string
	Mean   float64
	Median float64
	Count  int
}

// Report holds every customer value table.
type Report struct {
	Lifetimes        []Lifetime
	TerritorySummary []SalesStats
	CVIByTerritory   []CVIStats
	CVIByProductLine []CVIStats
}

type yearMonth struct{ year, month int }

// Lifetimes summarises every customer, sorted by total sales descending
// (ties by name).
func Lifetimes(txs []records.Transaction) []Lifetime {
	type acc struct {
		Lifetime
		months map[yearMonth]struct{}
	}
	by := make(map[string]*acc)
	for _, t := range txs {
		a, ok := by[t.CustomerName]
		if !ok {
			a = &acc{
				Lifetime: Lifetime{Customer: t.CustomerName, FirstOrder: t.OrderDate, LastOrder: t.OrderDate},
				months:   make(map[yearMonth]struct{}),
			}
			by[t.CustomerName] = a
		}
		if t.OrderDate.Before(a.FirstOrder) {
			a.FirstOrder = t.OrderDate
		}
		if t.OrderDate.After(a.LastOrder) {
			a.LastOrder = t.OrderDate
		}
		a.months[yearMonth{t.YearID, t.MonthID}] = struct{}{}
		a.TotalSales = a.TotalSales.Add(t.Sales)
	}

	out := make([]Lifetime, 0, len(by))
	for _, a := range by {
		l := a.Lifetime
		l.MonthsActive = len(a.months)
		if l.MonthsActive > 0 {
			l.AvgSalesPerMonth = l.TotalSales.DivRound(decimal.NewFromInt(int64(l.MonthsActive)), moneyPlaces)
		}
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool {
		if c := out[i].TotalSales.Cmp(out[j].TotalSales); c != 0 {
			return c > 0
		}
		return out[i].Customer < out[j].Customer
	})
	return out
}

// Build computes the full report.
func Build(txs []records.Transaction) Report {
	r := Report{Lifetimes: Lifetimes(txs)}

	totals := make(map[string]decimal.Decimal, len(r.Lifetimes))
	for _, l := range r.Lifetimes {
		totals[l.Customer] = l.TotalSales
	}
	cvi := CVI(totals)

	// Customer totals per (customer, territory), then summarised by territory.
	type pair struct{ customer, key string }
	pairTotals := make(map[pair]decimal.Decimal)
	for _, t := range txs {
		p := pair{t.CustomerName, t.TerritoryOr(MissingLabel)}
		pairTotals[p] = pairTotals[p].Add(t.Sales)
	}
	byTerritory := make(map[string][]decimal.Decimal)
	for p, v := range pairTotals {
		byTerritory[p.key] = append(byTerritory[p.key], v)
	}
	for _, k := range sortedKeys(byTerritory) {
		r.TerritorySummary = append(r.TerritorySummary, salesStats(k, byTerritory[k]))
	}

	r.CVIByTerritory = groupCVI(txs, cvi, func(t records.Transaction) string { return t.TerritoryOr(MissingLabel) })
	r.CVIByProductLine = groupCVI(txs, cvi, func(t records.Transaction) string { return t.ProductLine })
	return r
}

// CVI divides each customer's total by the mean customer total. All values
// are 0 when the mean is 0.
func CVI(totals map[string]decimal.Decimal) map[string]float64 {
	out := make(map[string]float64, len(totals))
	if len(totals) == 0 {
		return out
	}
	sum := decimal.Zero
	for _, v := range totals {
		sum = sum.Add(v)
	}
	if sum.IsZero() {
		for k := range totals {
			out[k] = 0
		}
		return out
	}
	mean := sum.Div(decimal.NewFromInt(int64(len(totals))))
	for k, v := range totals {
		out[k] = v.Div(mean).InexactFloat64()
	}
	return out
}

// groupCVI summarises CVI over the distinct (customer, key) pairs.
func groupCVI(txs []records.Transaction, cvi map[string]float64, key func(records.Transaction) string) []CVIStats {
	type pair struct{ customer, key string }
	seen := make(map[pair]struct{})
	groups := make(map[string][]float64)
	for _, t := range txs {
		p := pair{t.CustomerName, key(t)}
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		groups[p.key] = append(groups[p.key], cvi[t.CustomerName])
	}
	out := make([]CVIStats, 0, len(groups))
	for _, k := range sortedKeys(groups) {
		xs := groups[k]
		out = append(out, CVIStats{Key: k, Mean: stat.Mean(xs, nil), Median: medianFloat(xs), Count: len(xs)})
	}
	return out
}

func salesStats(key string, vs []decimal.Decimal) SalesStats {
	sort.Slice(vs, func(i, j int) bool { return vs[i].LessThan(vs[j]) })
	n := len(vs)
	sum := decimal.Sum(decimal.Zero, vs...)
	med := vs[n/2]
	if n%2 == 0 {
		med = vs[n/2-1].Add(vs[n/2]).Div(decimal.NewFromInt(2))
	}
	return SalesStats{
		Key:    key,
		Mean:   sum.DivRound(decimal.NewFromInt(int64(n)), moneyPlaces),
		Median: med.Round(moneyPlaces),
		Count:  n,
	}
}

// medianFloat averages the two middle values for even counts.
func medianFloat(xs []float64) float64 {
	s := append([]float64(nil), xs...)
	sort.Float64s(s)
	n := len(s)
	if n%2 == 1 {
		return s[n/2]
	}
	return (s[n/2-1] + s[n/2]) / 2
}

// sortedKeys orders group keys with MissingLabel last.
func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if (keys[i] == MissingLabel) != (keys[j] == MissingLabel) {
			return keys[j] == MissingLabel
		}
		return keys[i] < keys[j]
	})
	return keys
}

// Tables renders the report as customer_lifetime, territory_summary,
// cvi_by_territory and cvi_by_product.
func (r Report) Tables() []export.Table {
	lt := export.Table{
		Name:   "customer_lifetime",
		Header: []string{"customer_name", "first_order", "last_order", "months_active", "total_sales", "avg_sales_per_month"},
	}
	for _, l := range r.Lifetimes {
		lt.Rows = append(lt.Rows, []any{l.Customer, l.FirstOrder, l.LastOrder, l.MonthsActive, l.TotalSales, l.AvgSalesPerMonth})
	}

	ts := export.Table{Name: "territory_summary", Header: []string{"territory", "mean", "median", "count"}}
	for _, s := range r.TerritorySummary {
		ts.Rows = append(ts.Rows, []any{s.Key, s.Mean, s.Median, s.Count})
	}

	return []export.Table{
		lt,
		ts,
		cviTable("cvi_by_territory", "territory", r.CVIByTerritory),
		cviTable("cvi_by_product", "product_line", r.CVIByProductLine),
	}
}

func cviTable(name, key string, stats []CVIStats) export.Table {
	t := export.Table{Name: name, Header: []string{key, "mean", "median", "count"}}
	for _, s := range stats {
		t.Rows = append(t.Rows, []any{s.Key, s.Mean, s.Median, s.Count})
	}
	return t
}
