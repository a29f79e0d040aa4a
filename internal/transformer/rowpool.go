// Package transformer holds the streaming stages between the CSV parser and
// the loader: typed coercion, row hashing and decoding into transactions.
// Rows travel between stages as pooled *Row values to keep a large file load
// from churning the heap.
package transformer

import "sync"

// Row is a positional record aligned to a stage's column list.
//
// Ownership: one goroutine owns a Row at a time and hands it on through a
// channel. The last stage calls Free once nothing references r.V.
//
// On ctx cancellation stages call Drop instead of Free. A cancelled row may
// still be read by a draining downstream stage, and re-pooling it would let
// the parser overwrite it concurrently.
type Row struct {
	V    []any
	Line int // 1-based CSV record number, 0 when unknown
}

var rowPool sync.Pool

// GetRow returns a zeroed Row of length colCount, reusing a pooled one when
// possible.
func GetRow(colCount int) *Row {
	if v := rowPool.Get(); v != nil {
		r := v.(*Row)
		if cap(r.V) < colCount {
			r.V = make([]any, colCount)
		}
		r.V = r.V[:colCount]
		clear(r.V)
		r.Line = 0
		return r
	}
	return &Row{V: make([]any, colCount)}
}

// Free returns the Row to the pool.
func (r *Row) Free() {
	rowPool.Put(r)
}

// Drop discards the Row without pooling it.
func (r *Row) Drop() {
	r.V = nil
	r.Line = 0
}
