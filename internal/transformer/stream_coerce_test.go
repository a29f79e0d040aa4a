package transformer

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestCompilePlan_BigIntCoercesToInt64(t *testing.T) {
	p := compilePlan([]string{"order_number"}, CoerceSpec{
		Types: map[string]string{"order_number": "bigint"},
	})

	var dst any
	ok := p.cols[0].coerce(&dst, "10107")
	if !ok {
		t.Fatalf("coerce returned ok=false")
	}
	v, ok := dst.(int64)
	if !ok {
		t.Fatalf("expected int64, got %T (%v)", dst, dst)
	}
	if v != 10107 {
		t.Fatalf("expected 10107, got %d", v)
	}
}

func TestCompilePlan_TextPreservesLeadingZeros(t *testing.T) {
	p := compilePlan([]string{"product_code"}, CoerceSpec{
		Types: map[string]string{"product_code": "text"},
	})

	var dst any
	ok := p.cols[0].coerce(&dst, "000")
	if !ok {
		t.Fatalf("coerce returned ok=false")
	}
	s, ok := dst.(string)
	if !ok {
		t.Fatalf("expected string, got %T (%v)", dst, dst)
	}
	if s != "000" {
		t.Fatalf("expected %q, got %q", "000", s)
	}
}

func TestCompilePlan_MoneyIsExact(t *testing.T) {
	p := compilePlan([]string{"sales"}, CoerceSpec{Types: map[string]string{"sales": "money"}})

	var dst any
	if !p.cols[0].coerce(&dst, "2,765.90") {
		t.Fatalf("coerce returned ok=false")
	}
	d, ok := dst.(decimal.Decimal)
	if !ok || !d.Equal(decimal.RequireFromString("2765.9")) {
		t.Fatalf("expected decimal 2765.9, got %T (%v)", dst, dst)
	}
}

func TestCoerceLoopRows_TypesAndRejects(t *testing.T) {
	columns := []string{"order_number", "order_line", "sales", "order_date", "territory"}
	spec := CoerceSpec{
		Types: map[string]string{
			"order_number": "bigint",
			"order_line":   "int",
			"sales":        "money",
			"order_date":   "timestamp",
		},
		Required: []string{"order_number", "sales"},
	}

	in := make(chan *Row, 3)
	out := make(chan *Row, 3)
	in <- &Row{Line: 2, V: []any{"10107", "2", "2871.00", "2/24/2003 0:00", nil}}
	in <- &Row{Line: 3, V: []any{"x", "2", "1", "2/24/2003 0:00", nil}}
	in <- &Row{Line: 4, V: []any{"10108", "1", nil, "2/24/2003 0:00", "EMEA"}}
	close(in)

	rejected := map[int]string{}
	CoerceLoopRows(context.Background(), columns, in, out, spec, func(line int, reason string) {
		rejected[line] = reason
	})
	close(out)

	var got []*Row
	for r := range out {
		got = append(got, r)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 row through, got %d", len(got))
	}
	r := got[0]
	if r.V[0] != int64(10107) || r.V[1] != 2 {
		t.Fatalf("unexpected ints %#v", r.V)
	}
	if !r.V[2].(decimal.Decimal).Equal(decimal.NewFromInt(2871)) {
		t.Fatalf("unexpected sales %v", r.V[2])
	}
	if !r.V[3].(time.Time).Equal(time.Date(2003, 2, 24, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected date %v", r.V[3])
	}
	if r.V[4] != nil {
		t.Fatalf("optional null should stay nil")
	}
	if _, ok := rejected[3]; !ok {
		t.Fatalf("bad order_number not rejected: %v", rejected)
	}
	if _, ok := rejected[4]; !ok {
		t.Fatalf("missing required sales not rejected: %v", rejected)
	}
}
