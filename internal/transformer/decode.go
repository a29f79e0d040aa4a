package transformer

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"salesrollup/internal/records"
)

// TransactionDecoder converts coerced, hashed rows into records.Transaction.
type TransactionDecoder struct {
	ix map[string]int
}

// transactionFields must all be present in the decoder's columns.
var transactionFields = []string{
	"row_hash", "order_number", "order_line", "customer_name", "product_code", "order_date",
	"quantity_ordered", "sales", "territory", "product_line", "month_id", "year_id",
}

// NewTransactionDecoder validates that columns carries every transaction field.
func NewTransactionDecoder(columns []string) (*TransactionDecoder, error) {
	ix := make(map[string]int, len(columns))
	for i, c := range columns {
		ix[c] = i
	}
	for _, f := range transactionFields {
		if _, ok := ix[f]; !ok {
			return nil, fmt.Errorf("decode: column %q missing", f)
		}
	}
	return &TransactionDecoder{ix: ix}, nil
}

// Decode copies r into a Transaction. r is not retained, so the caller may
// Free it afterwards.
func (d *TransactionDecoder) Decode(r *Row) (records.Transaction, error) {
	var (
		t   records.Transaction
		err error
	)
	get := func(name string) any { return r.V[d.ix[name]] }

	if t.RowHash, err = asString(get("row_hash"), "row_hash"); err != nil {
		return t, err
	}
	if t.OrderNumber, err = asInt64(get("order_number"), "order_number"); err != nil {
		return t, err
	}
	n, err := asInt64(get("order_line"), "order_line")
	if err != nil {
		return t, err
	}
	t.OrderLine = int(n)
	if t.CustomerName, err = asString(get("customer_name"), "customer_name"); err != nil {
		return t, err
	}
	if t.ProductCode, err = asString(get("product_code"), "product_code"); err != nil {
		return t, err
	}
	ts, ok := get("order_date").(time.Time)
	if !ok {
		return t, fmt.Errorf("decode: order_date is %T", get("order_date"))
	}
	t.OrderDate = ts
	if t.Quantity, err = asInt64(get("quantity_ordered"), "quantity_ordered"); err != nil {
		return t, err
	}
	sales, ok := get("sales").(decimal.Decimal)
	if !ok {
		return t, fmt.Errorf("decode: sales is %T", get("sales"))
	}
	t.Sales = sales
	if v := get("territory"); v != nil {
		s, err := asString(v, "territory")
		if err != nil {
			return t, err
		}
		t.Territory = &s
	}
	if v := get("product_line"); v != nil {
		if t.ProductLine, err = asString(v, "product_line"); err != nil {
			return t, err
		}
	}
	if n, err = asInt64(get("month_id"), "month_id"); err != nil {
		return t, err
	}
	t.MonthID = int(n)
	if n, err = asInt64(get("year_id"), "year_id"); err != nil {
		return t, err
	}
	t.YearID = int(n)
	return t, nil
}

func asString(v any, name string) (string, error) {
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("decode: %s is %T", name, v)
	}
	return s, nil
}

func asInt64(v any, name string) (int64, error) {
	switch n := v.(type) {
	case int64:
		return n, nil
	case int:
		return int64(n), nil
	default:
		return 0, fmt.Errorf("decode: %s is %T", name, v)
	}
}
