package transformer

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"salesrollup/internal/records"
)

// CoerceSpec assigns a type to columns. Supported types: text, int, bigint,
// money, timestamp. Columns without a type pass through as strings.
type CoerceSpec struct {
	Types map[string]string

	// Required columns reject the row when null.
	Required []string
}

// TransactionCoerceSpec types the sales transaction columns.
func TransactionCoerceSpec() CoerceSpec {
	return CoerceSpec{
		Types: map[string]string{
			"order_number":     "bigint",
			"order_line":       "int",
			"quantity_ordered": "bigint",
			"sales":            "money",
			"order_date":       "timestamp",
			"month_id":         "int",
			"year_id":          "int",
			"customer_name":    "text",
			"product_code":     "text",
			"product_line":     "text",
			"territory":        "text",
		},
		Required: []string{
			"order_number", "order_line", "customer_name", "product_code",
			"order_date", "quantity_ordered", "sales", "month_id", "year_id",
		},
	}
}

type coerceFunc func(dst *any, s string) bool

type colPlan struct {
	name     string
	typ      string
	required bool
	coerce   coerceFunc
}

type plan struct {
	cols []colPlan
}

func compilePlan(columns []string, spec CoerceSpec) plan {
	req := make(map[string]bool, len(spec.Required))
	for _, c := range spec.Required {
		req[c] = true
	}
	p := plan{cols: make([]colPlan, len(columns))}
	for i, c := range columns {
		typ := strings.ToLower(spec.Types[c])
		p.cols[i] = colPlan{name: c, typ: typ, required: req[c], coerce: coercerFor(typ)}
	}
	return p
}

func coercerFor(typ string) coerceFunc {
	switch typ {
	case "int":
		return func(dst *any, s string) bool {
			// Tolerate "3.0" from spreadsheet exports.
			s = strings.TrimSuffix(s, ".0")
			n, err := strconv.Atoi(s)
			if err != nil {
				return false
			}
			*dst = n
			return true
		}
	case "bigint":
		return func(dst *any, s string) bool {
			s = strings.TrimSuffix(s, ".0")
			n, err := strconv.ParseInt(s, 10, 64)
			if err != nil {
				return false
			}
			*dst = n
			return true
		}
	case "money":
		return func(dst *any, s string) bool {
			d, err := decimal.NewFromString(strings.ReplaceAll(s, ",", ""))
			if err != nil {
				return false
			}
			*dst = d
			return true
		}
	case "timestamp", "date":
		return func(dst *any, s string) bool {
			t, err := records.ParseOrderDate(s)
			if err != nil {
				return false
			}
			*dst = t
			return true
		}
	default:
		return func(dst *any, s string) bool {
			*dst = s
			return true
		}
	}
}

// apply coerces r in place. It returns a reason when the row must be rejected.
func (p plan) apply(r *Row) string {
	for i := range p.cols {
		c := &p.cols[i]
		v := r.V[i]
		if v == nil {
			if c.required {
				return fmt.Sprintf("coerce: %s is required", c.name)
			}
			continue
		}
		s, ok := v.(string)
		if !ok {
			continue
		}
		if !c.coerce(&r.V[i], s) {
			return fmt.Sprintf("coerce: %s=%q is not a valid %s", c.name, s, c.typ)
		}
	}
	return ""
}

// CoerceLoopRows types every row in place and forwards it. Rows that fail
// coercion are reported through onReject and freed.
func CoerceLoopRows(
	ctx context.Context,
	columns []string,
	in <-chan *Row,
	out chan<- *Row,
	spec CoerceSpec,
	onReject func(line int, reason string),
) {
	p := compilePlan(columns, spec)

	for r := range in {
		select {
		case <-ctx.Done():
			if r != nil {
				r.Drop()
			}
			continue
		default:
		}

		if r == nil {
			continue
		}
		if len(r.V) != len(columns) {
			if onReject != nil {
				onReject(r.Line, fmt.Sprintf("coerce: row has %d values, want %d", len(r.V), len(columns)))
			}
			r.Free()
			continue
		}
		if reason := p.apply(r); reason != "" {
			if onReject != nil {
				onReject(r.Line, reason)
			}
			r.Free()
			continue
		}

		select {
		case out <- r:
		case <-ctx.Done():
			r.Drop()
		}
	}
}
