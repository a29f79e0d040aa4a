package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"salesrollup/internal/records"
)

// Config is the minimal configuration needed to open a Repository.
//
// Edge cases:
//   - Kind must be non-empty and must match a registered backend kind.
//   - DSN is passed through to the backend factory; validation is backend-specific.
//   - BatchSize <= 0 lets the backend pick its own chunk size.
type Config struct {
	Kind      string
	DSN       string
	BatchSize int
}

// Repository is the relational store behind every command: the transaction
// table, the calendar dimension, the daily rollup and its audit table.
//
// Each backend implements these semantics in its own idiomatic way (Postgres
// ON CONFLICT, a NOT EXISTS guard elsewhere). Every method that writes more
// than one row runs in a single transaction.
type Repository interface {
	// Close releases any backend resources (connections, pools).
	//
	// Callers should treat Close as "call once".
	Close()

	// EnsureSchema creates the four tables when they are missing. It is
	// idempotent.
	EnsureSchema(ctx context.Context) error

	// InsertTransactions inserts transactions whose row_hash is not yet
	// present and returns how many were inserted.
	InsertTransactions(ctx context.Context, txs []records.Transaction) (int64, error)

	// EnsureCalendar inserts every date in [from, to] missing from d_date.
	EnsureCalendar(ctx context.Context, from, to time.Time) (int64, error)

	// LoadTransactions returns every transaction ordered by order_date,
	// order_number, order_line.
	LoadTransactions(ctx context.Context) ([]records.Transaction, error)
	CalendarDates(ctx context.Context, from, to time.Time) ([]time.Time, error)
	NextCalendarDate(ctx context.Context, after time.Time) (time.Time, bool, error)
	ProductCodes(ctx context.Context) ([]string, error)
	MaxOrderDate(ctx context.Context) (time.Time, bool, error)
	SalesByProductOn(ctx context.Context, day time.Time) (map[string]decimal.Decimal, error)

	RollupBounds(ctx context.Context) (records.RollupBounds, error)
	// RollupProductSpans returns the first date, last date and row count of
	// every product in the rollup, ordered by product_code.
	RollupProductSpans(ctx context.Context) ([]records.ProductSpan, error)
	RollupRowsOn(ctx context.Context, day time.Time) ([]records.RollupRow, error)
	RollupSalesBetween(ctx context.Context, from, to time.Time) (map[string]decimal.Decimal, error)
	// RollupRows returns the whole rollup ordered by (date_actual, product_code).
	RollupRows(ctx context.Context) ([]records.RollupRow, error)

	// ReplaceRollup deletes the rollup and inserts rows in one transaction.
	ReplaceRollup(ctx context.Context, rows []records.RollupRow) (int64, error)
	// AppendRollup inserts rows guarded by NOT EXISTS on (date_actual,
	// product_code) in one transaction and returns how many were inserted.
	AppendRollup(ctx context.Context, rows []records.RollupRow) (int64, error)
	RecordRun(ctx context.Context, run records.Run) error
	// Runs returns the most recent audit entries, newest first.
	Runs(ctx context.Context, limit int) ([]records.Run, error)
}

type factory func(ctx context.Context, cfg Config) (Repository, error)

var (
	mu        sync.RWMutex
	factories = map[string]factory{}
)

// Register registers a backend under a kind (e.g. "postgres", "sqlite").
//
// When to use:
//   - Call Register from an init() function in a backend package.
//   - The `kind` string becomes the lookup key used by New.
//
// Panics:
//   - If kind is empty.
//   - If f is nil.
//   - If kind is already registered.
func Register(kind string, f factory) {
	mu.Lock()
	defer mu.Unlock()

	if kind == "" {
		panic("storage: Register called with empty kind")
	}
	if f == nil {
		panic("storage: Register called with nil factory")
	}
	if _, exists := factories[kind]; exists {
		panic(fmt.Sprintf("storage: factory already registered for kind=%q", kind))
	}

	factories[kind] = f
}

// New constructs a Repository using the registered backend factory.
//
// Concurrency:
//   - Safe for concurrent use with Register. New takes a read lock while
//     selecting the factory.
//
// Errors:
//   - Returns an error if cfg.Kind is empty or unsupported.
//   - Returns whatever error the registered factory returns.
func New(ctx context.Context, cfg Config) (Repository, error) {
	if cfg.Kind == "" {
		return nil, fmt.Errorf("storage: missing storage.kind")
	}

	mu.RLock()
	f := factories[cfg.Kind]
	mu.RUnlock()

	if f == nil {
		return nil, fmt.Errorf("unsupported storage.kind=%s (registered: %v)", cfg.Kind, Kinds())
	}
	return f(ctx, cfg)
}

// Kinds lists the registered backend kinds, sorted.
func Kinds() []string {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]string, 0, len(factories))
	for k := range factories {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
