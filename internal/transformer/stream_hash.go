package transformer

import (
	"context"
	"fmt"

	"salesrollup/internal/transformer/builtin"
)

// HashSpec describes how to derive a row hash.
type HashSpec struct {
	Fields            []string
	IncludeFieldNames bool
	Overwrite         bool
	Separator         string
	TargetField       string
	TrimSpace         bool
}

// TransactionHashSpec is the row_hash spec for sales transaction rows.
func TransactionHashSpec() HashSpec {
	return HashSpec{
		Fields:            builtin.TransactionHashFields,
		IncludeFieldNames: true,
		Overwrite:         true,
		TargetField:       "row_hash",
		TrimSpace:         true,
	}
}

// HashLoopRows writes a SHA-256 hex digest of spec.Fields into
// spec.TargetField of every row and forwards it. Rows missing a hashed column
// are rejected and freed. When the target column is absent rows pass through
// unchanged.
//
// It must run after coercion so typed values hash canonically; the result
// then equals builtin.TransactionHash of the decoded transaction.
func HashLoopRows(
	ctx context.Context,
	columns []string,
	in <-chan *Row,
	out chan<- *Row,
	spec HashSpec,
	onReject func(line int, reason string),
) {
	targetIdx := indexOf(columns, spec.TargetField)

	fieldIdx := make([]int, len(spec.Fields))
	missing := ""
	for i, name := range spec.Fields {
		fieldIdx[i] = indexOf(columns, name)
		if fieldIdx[i] < 0 && missing == "" {
			missing = name
		}
	}

	opt := builtin.HashOptions{
		IncludeFieldNames: spec.IncludeFieldNames,
		Separator:         spec.Separator,
		TrimSpace:         spec.TrimSpace,
	}
	vals := make([]any, len(fieldIdx))

	for r := range in {
		// On cancellation: drain without re-pooling (prevents reuse races).
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
				onReject(r.Line, fmt.Sprintf("hash: row has %d values, want %d", len(r.V), len(columns)))
			}
			r.Free()
			continue
		}

		if targetIdx >= 0 {
			if missing != "" {
				if onReject != nil {
					onReject(r.Line, fmt.Sprintf("hash: missing field %q", missing))
				}
				r.Free()
				continue
			}
			if spec.Overwrite || r.V[targetIdx] == nil {
				for i, idx := range fieldIdx {
					vals[i] = r.V[idx]
				}
				r.V[targetIdx] = builtin.HashValues(spec.Fields, vals, opt)
			}
		}

		select {
		case out <- r:
		case <-ctx.Done():
			r.Drop()
		}
	}
}

func indexOf(columns []string, name string) int {
	for i, c := range columns {
		if c == name {
			return i
		}
	}
	return -1
}
