// Package reports answers the transaction-level questions asked of the sales
// table: the first product sold each month, products common to the top
// customers, and repeat orders that increased in quantity.
package reports

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"salesrollup/internal/export"
	"salesrollup/internal/records"
)

// DefaultTopCustomers is the number of customers compared by
// CommonTopCustomerProducts.
const DefaultTopCustomers = 2

// FirstProduct is the first product sold in a calendar month.
type FirstProduct struct {
	ProductCode string
	MonthID     int
	YearID      int
}

// Escalation is an order whose quantity exceeds the customer's previous
// order of the same product.
type Escalation struct {
	OrderNumber  int64
	CustomerName string
	ProductCode  string
	OrderDate    time.Time
	Quantity     int64
	PrevQuantity int64
}

// FirstProductPerMonth returns, for every (year, month), the product of the
// earliest order. Cancelled and on-hold orders count. Ties on order date go
// to the earlier input row. Results are ordered by year then month.
func FirstProductPerMonth(txs []records.Transaction) []FirstProduct {
	type ym struct{ year, month int }
	first := make(map[ym]records.Transaction)
	for _, t := range txs {
		k := ym{t.YearID, t.MonthID}
		if cur, ok := first[k]; !ok || t.OrderDate.Before(cur.OrderDate) {
			first[k] = t
		}
	}
	out := make([]FirstProduct, 0, len(first))
	for k, t := range first {
		out = append(out, FirstProduct{ProductCode: t.ProductCode, MonthID: k.month, YearID: k.year})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].YearID != out[j].YearID {
			return out[i].YearID < out[j].YearID
		}
		return out[i].MonthID < out[j].MonthID
	})
	return out
}

// TopCustomers returns the n customers with the highest total sales, ties
// broken by name.
func TopCustomers(txs []records.Transaction, n int) []string {
	totals := make(map[string]decimal.Decimal)
	for _, t := range txs {
		totals[t.CustomerName] = totals[t.CustomerName].Add(t.Sales)
	}
	names := make([]string, 0, len(totals))
	for k := range totals {
		names = append(names, k)
	}
	sort.Slice(names, func(i, j int) bool {
		if c := totals[names[i]].Cmp(totals[names[j]]); c != 0 {
			return c > 0
		}
		return names[i] < names[j]
	})
	if n < len(names) {
		names = names[:n]
	}
	return names
}

// CommonTopCustomerProducts returns the product codes bought by every one of
// the top n customers, sorted. It is empty when n < 1 or there are no
// customers.
func CommonTopCustomerProducts(txs []records.Transaction, n int) []string {
	if n < 1 {
		return nil
	}
	top := TopCustomers(txs, n)
	if len(top) == 0 {
		return nil
	}
	isTop := make(map[string]bool, len(top))
	for _, c := range top {
		isTop[c] = true
	}

	buyers := make(map[string]map[string]struct{})
	for _, t := range txs {
		if !isTop[t.CustomerName] {
			continue
		}
		b, ok := buyers[t.ProductCode]
		if !ok {
			b = make(map[string]struct{})
			buyers[t.ProductCode] = b
		}
		b[t.CustomerName] = struct{}{}
	}

	var out []string
	for p, b := range buyers {
		if len(b) == len(top) {
			out = append(out, p)
		}
	}
	sort.Strings(out)
	return out
}

// QuantityEscalations returns every order whose quantity is greater than the
// immediately preceding order (by order date) of the same customer and
// product. Only the previous order is compared, not every earlier one.
// Results are ordered by order date, then order number.
func QuantityEscalations(txs []records.Transaction) []Escalation {
	type key struct{ customer, product string }
	groups := make(map[key][]records.Transaction)
	for _, t := range txs {
		k := key{t.CustomerName, t.ProductCode}
		groups[k] = append(groups[k], t)
	}

	var out []Escalation
	for _, g := range groups {
		sort.SliceStable(g, func(i, j int) bool { return g[i].OrderDate.Before(g[j].OrderDate) })
		for i := 1; i < len(g); i++ {
			if g[i].Quantity > g[i-1].Quantity {
				out = append(out, Escalation{
					OrderNumber:  g[i].OrderNumber,
					CustomerName: g[i].CustomerName,
					ProductCode:  g[i].ProductCode,
					OrderDate:    g[i].OrderDate,
					Quantity:     g[i].Quantity,
					PrevQuantity: g[i-1].Quantity,
				})
			}
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].OrderDate.Equal(out[j].OrderDate) {
			return out[i].OrderDate.Before(out[j].OrderDate)
		}
		if out[i].OrderNumber != out[j].OrderNumber {
			return out[i].OrderNumber < out[j].OrderNumber
		}
		return out[i].ProductCode < out[j].ProductCode
	})
	return out
}

// Tables runs all three reports and renders them as
// first_product_per_month, common_top_customer_products and
// quantity_escalations.
func Tables(txs []records.Transaction, topN int) []export.Table {
	fp := export.Table{Name: "first_product_per_month", Header: []string{"product_code", "month_id", "year_id"}}
	for _, r := range FirstProductPerMonth(txs) {
		fp.Rows = append(fp.Rows, []any{r.ProductCode, r.MonthID, r.YearID})
	}

	cp := export.Table{Name: "common_top_customer_products", Header: []string{"product_code"}}
	for _, p := range CommonTopCustomerProducts(txs, topN) {
		cp.Rows = append(cp.Rows, []any{p})
	}

	qe := export.Table{
		Name:   "quantity_escalations",
		Header: []string{"order_number", "customer_name", "product_code", "order_date", "qty", "prev_qty"},
	}
	for _, e := range QuantityEscalations(txs) {
		qe.Rows = append(qe.Rows, []any{e.OrderNumber, e.CustomerName, e.ProductCode, e.OrderDate, e.Quantity, e.PrevQuantity})
	}
	return []export.Table{fp, cp, qe}
}
