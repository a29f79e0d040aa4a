package rollup

import (
	"time"

	"salesrollup/internal/records"
)

// Key addresses one rollup cell. Date is the civil date in DateLayout form so
// keys compare equal regardless of time.Location.
type Key struct {
	Date    string
	Product string
}

// KeyOf builds the key for a civil date and product.
func KeyOf(day time.Time, product string) Key {
	return Key{Date: records.Day(day).Format(records.DateLayout), Product: product}
}

// Index is an append-only view over rollup rows with O(1) point lookups by
// (date, product).
type Index struct {
	rows []records.RollupRow
	pos  map[Key]int
}

// NewIndex indexes rows. When a key repeats, the first row wins.
func NewIndex(rows []records.RollupRow) *Index {
	ix := &Index{
		rows: make([]records.RollupRow, 0, len(rows)),
		pos:  make(map[Key]int, len(rows)),
	}
	for _, r := range rows {
		ix.Append(r)
	}
	return ix
}

// Append adds r unless its key already exists. It reports whether r was added.
func (ix *Index) Append(r records.RollupRow) bool {
	k := KeyOf(r.Date, r.ProductCode)
	if _, ok := ix.pos[k]; ok {
		return false
	}
	ix.pos[k] = len(ix.rows)
	ix.rows = append(ix.rows, r)
	return true
}

// Get returns the row at (day, product).
func (ix *Index) Get(day time.Time, product string) (records.RollupRow, bool) {
	i, ok := ix.pos[KeyOf(day, product)]
	if !ok {
		return records.RollupRow{}, false
	}
	return ix.rows[i], true
}

// Len is the number of distinct keys.
func (ix *Index) Len() int { return len(ix.rows) }

// Rows returns the indexed rows in insertion order. The slice is shared.
func (ix *Index) Rows() []records.RollupRow { return ix.rows }
