// Package builtin contains small canonicalisation helpers shared by the
// parser and the transform stages.
package builtin

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"salesrollup/internal/records"
)

// DefaultSeparator is ASCII Unit Separator, which never occurs in CSV text.
const DefaultSeparator = "\x1f"

// TransactionHashFields are the identifying fields of a sales order line, in
// hashing order.
var TransactionHashFields = []string{"order_number", "order_line", "product_code", "customer_name", "order_date"}

// HashOptions controls canonical hashing.
//
// Canonicalization rules:
//   - Values are concatenated in order using Separator.
//   - Missing or nil values are encoded as a single NUL byte (0x00) so missing
//     differs from empty-string.
//   - time.Time values are encoded as RFC3339Nano in UTC.
//   - decimal.Decimal values are encoded without trailing zeros (2871.00 == 2871).
//   - Output is a lowercase hex SHA-256 (length 64).
type HashOptions struct {
	// IncludeFieldNames includes "field=value" in the canonical form.
	// This reduces accidental collisions when many fields are missing/empty.
	IncludeFieldNames bool

	// Separator between components; DefaultSeparator when empty.
	Separator string

	// TrimSpace trims edge whitespace of string values before hashing.
	TrimSpace bool
}

// HashValues hashes values positionally; names label them when
// IncludeFieldNames is set and must have the same length as values.
func HashValues(names []string, values []any, opt HashOptions) string {
	var b strings.Builder
	WriteCanonical(&b, names, values, opt)
	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

// WriteCanonical writes the canonical form HashValues digests.
func WriteCanonical(b *strings.Builder, names []string, values []any, opt HashOptions) {
	sep := opt.Separator
	if sep == "" {
		sep = DefaultSeparator
	}

	// Heuristic: reduce reallocs for common short-ish fields.
	b.Grow(len(values) * 20)

	for i, v := range values {
		if i > 0 {
			b.WriteString(sep)
		}
		if opt.IncludeFieldNames && i < len(names) {
			b.WriteString(names[i])
			b.WriteByte('=')
		}
		AppendCanonicalValue(b, v, opt.TrimSpace)
	}
}

// TransactionHash is the row_hash of a decoded transaction.
func TransactionHash(t records.Transaction) string {
	return HashValues(TransactionHashFields, []any{
		t.OrderNumber,
		t.OrderLine,
		t.ProductCode,
		t.CustomerName,
		t.OrderDate,
	}, HashOptions{IncludeFieldNames: true, TrimSpace: true})
}

// AppendCanonicalValue appends a stable, canonical representation of v.
// It avoids fmt.Sprint for common types to reduce allocations.
func AppendCanonicalValue(b *strings.Builder, v any, trimSpace bool) {
	switch t := v.(type) {
	case nil:
		b.WriteByte('\x00')

	case string:
		if trimSpace && HasEdgeSpace(t) {
			b.WriteString(strings.TrimSpace(t))
		} else {
			b.WriteString(t)
		}

	case *string:
		if t == nil {
			b.WriteByte('\x00')
			return
		}
		AppendCanonicalValue(b, *t, trimSpace)

	case bool:
		b.WriteString(strconv.FormatBool(t))

	case int:
		b.WriteString(strconv.Itoa(t))
	case int32:
		b.WriteString(strconv.FormatInt(int64(t), 10))
	case int64:
		b.WriteString(strconv.FormatInt(t, 10))
	case uint64:
		b.WriteString(strconv.FormatUint(t, 10))

	case float64:
		b.WriteString(strconv.FormatFloat(t, 'g', -1, 64))

	case decimal.Decimal:
		b.WriteString(t.String())

	case time.Time:
		tt := t
		if !tt.IsZero() {
			tt = tt.UTC()
		}
		b.WriteString(tt.Format(time.RFC3339Nano))

	default:
		b.WriteString(fmt.Sprint(t))
	}
}

// HasEdgeSpace reports whether s starts or ends with ASCII whitespace. It is
// a cheap pre-check before strings.TrimSpace in hot loops.
func HasEdgeSpace(s string) bool {
	if s == "" {
		return false
	}
	return isSpace(s[0]) || isSpace(s[len(s)-1])
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '\v' || c == '\f'
}
