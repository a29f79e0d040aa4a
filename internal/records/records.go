// Package records holds the value types shared by the parser, the storage
// backends and the analysis packages: sales transactions, calendar days and
// persisted rollup rows.
package records

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Transaction is one order line of the sales dataset. It is immutable once
// decoded; analysis code never mutates a Transaction in place.
type Transaction struct {
	OrderNumber  int64
	OrderLine    int
	CustomerName string
	ProductCode  string
	OrderDate    time.Time
	Quantity     int64
	Sales        decimal.Decimal

	// Territory is nil when the source cell was empty or a null marker. The
	// dataset writes "NA" for North American customers, which reads as null.
	Territory   *string
	ProductLine string
	MonthID     int
	YearID      int

	// RowHash is a stable SHA-256 over the identifying fields. It is the
	// dedupe key of the transaction table.
	RowHash string
}

// Day returns the civil date of the order (midnight UTC).
func (t Transaction) Day() time.Time { return Day(t.OrderDate) }

// TerritoryOr returns the territory or fallback when it is missing.
func (t Transaction) TerritoryOr(fallback string) string {
	if t.Territory == nil {
		return fallback
	}
	return *t.Territory
}

// RollupRow is one cell of the dense (date x product) daily rollup.
//
// Persisted columns: date_actual, product_code, total_sales, sales_to_date,
// sales_45d. The composite key is (date_actual, product_code).
type RollupRow struct {
	Date        time.Time
	ProductCode string
	SalesToday  decimal.Decimal
	SalesToDate decimal.Decimal
	Sales45d    decimal.Decimal
}

// Equal reports whether two rows carry the same key and the same amounts.
// Decimal comparison ignores representation (10 == 10.00).
func (r RollupRow) Equal(o RollupRow) bool {
	return r.Date.Equal(o.Date) &&
		r.ProductCode == o.ProductCode &&
		r.SalesToday.Equal(o.SalesToday) &&
		r.SalesToDate.Equal(o.SalesToDate) &&
		r.Sales45d.Equal(o.Sales45d)
}

// RunKind names a rollup operation recorded in the audit table.
type RunKind string

const (
	RunBuild  RunKind = "build"
	RunAppend RunKind = "append"
)

// Run is one audit entry for a rollup build or append.
type Run struct {
	ID          uuid.UUID
	Kind        RunKind
	TargetDate  time.Time
	RowsWritten int64
	StartedAt   time.Time
	FinishedAt  time.Time
}

// NewRun starts an audit entry with a fresh id.
func NewRun(kind RunKind, started time.Time) Run {
	return Run{ID: uuid.New(), Kind: kind, StartedAt: started.UTC()}
}

// RollupBounds describes the persisted rollup: its first and last date, the
// number of distinct dates, rows and products.
type RollupBounds struct {
	Min, Max time.Time
	Dates    int64
	Rows     int64
	Products int64
}

// Empty reports whether the rollup has no rows.
func (b RollupBounds) Empty() bool { return b.Rows == 0 }

// ProductSpan is one product's extent in the persisted rollup.
type ProductSpan struct {
	ProductCode string
	First, Last time.Time
	Rows        int64
}
