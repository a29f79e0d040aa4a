package transformer

import (
	"context"
	"testing"
	"time"

	"salesrollup/internal/records"
	"salesrollup/internal/transformer/builtin"
)

func runHash(t *testing.T, columns []string, spec HashSpec, rows ...*Row) ([]*Row, []int) {
	t.Helper()
	in := make(chan *Row, len(rows))
	out := make(chan *Row, len(rows))
	for _, r := range rows {
		in <- r
	}
	close(in)

	var rejected []int
	HashLoopRows(context.Background(), columns, in, out, spec, func(line int, _ string) {
		rejected = append(rejected, line)
	})
	close(out)

	var got []*Row
	for r := range out {
		got = append(got, r)
	}
	return got, rejected
}

func TestHashLoopRows_WritesDeterministicHexSHA256(t *testing.T) {
	columns := []string{"order_number", "customer_name", "row_hash"}
	spec := HashSpec{
		TargetField: "row_hash",
		Fields:      []string{"order_number", "customer_name"},
		TrimSpace:   true,
		Overwrite:   true,
	}

	got, _ := runHash(t, columns, spec,
		&Row{Line: 1, V: []any{int64(10107), "Land of Toys Inc.", nil}},
		&Row{Line: 2, V: []any{int64(10107), " Land of Toys Inc. ", nil}},
	)
	if len(got) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(got))
	}
	h1, ok := got[0].V[2].(string)
	if !ok {
		t.Fatalf("expected row_hash string, got %T", got[0].V[2])
	}
	if len(h1) != 64 {
		t.Fatalf("expected sha256 hex length 64, got %d (%q)", len(h1), h1)
	}
	if h2 := got[1].V[2].(string); h1 != h2 {
		t.Fatalf("expected deterministic hash; h1=%q h2=%q", h1, h2)
	}
}

func TestHashLoopRows_MatchesTransactionHash(t *testing.T) {
	columns := []string{"row_hash", "order_number", "order_line", "customer_name", "product_code", "order_date"}
	when := time.Date(2003, 2, 24, 0, 0, 0, 0, time.UTC)

	got, _ := runHash(t, columns, TransactionHashSpec(),
		&Row{Line: 2, V: []any{nil, int64(10107), 2, "Land of Toys Inc.", "S10_1678", when}},
	)

	want := builtin.TransactionHash(records.Transaction{
		OrderNumber: 10107, OrderLine: 2, CustomerName: "Land of Toys Inc.", ProductCode: "S10_1678", OrderDate: when,
	})
	if got[0].V[0] != want {
		t.Fatalf("stream hash %v differs from TransactionHash %v", got[0].V[0], want)
	}
}

func TestHashLoopRows_RejectsMissingField(t *testing.T) {
	columns := []string{"a", "row_hash"}
	spec := HashSpec{TargetField: "row_hash", Fields: []string{"a", "b"}}

	got, rejected := runHash(t, columns, spec, &Row{Line: 7, V: []any{"x", nil}})
	if len(got) != 0 {
		t.Fatalf("expected row to be rejected")
	}
	if len(rejected) != 1 || rejected[0] != 7 {
		t.Fatalf("expected line 7 rejected, got %v", rejected)
	}
}

func TestHashLoopRows_KeepsExistingWithoutOverwrite(t *testing.T) {
	columns := []string{"a", "row_hash"}
	spec := HashSpec{TargetField: "row_hash", Fields: []string{"a"}}

	got, _ := runHash(t, columns, spec, &Row{Line: 1, V: []any{"x", "preset"}})
	if got[0].V[1] != "preset" {
		t.Fatalf("expected preset hash kept, got %v", got[0].V[1])
	}
}
