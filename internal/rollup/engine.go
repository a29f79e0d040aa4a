package rollup

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"salesrollup/internal/lock"
	"salesrollup/internal/metrics"
	"salesrollup/internal/records"
)

// Logger is the minimal logging interface used by the engine.
// *log.Logger and *logrus.Logger satisfy it.
type Logger interface {
	Printf(format string, v ...any)
}

// Store is the relational store as seen by the engine. Every method that
// writes runs in a single transaction in the backend.
type Store interface {
	LoadTransactions(ctx context.Context) ([]records.Transaction, error)
	CalendarDates(ctx context.Context, from, to time.Time) ([]time.Time, error)
	NextCalendarDate(ctx context.Context, after time.Time) (time.Time, bool, error)
	ProductCodes(ctx context.Context) ([]string, error)
	MaxOrderDate(ctx context.Context) (time.Time, bool, error)
	SalesByProductOn(ctx context.Context, day time.Time) (map[string]decimal.Decimal, error)

	RollupBounds(ctx context.Context) (records.RollupBounds, error)
	RollupProductSpans(ctx context.Context) ([]records.ProductSpan, error)
	RollupRowsOn(ctx context.Context, day time.Time) ([]records.RollupRow, error)
	RollupSalesBetween(ctx context.Context, from, to time.Time) (map[string]decimal.Decimal, error)
	RollupRows(ctx context.Context) ([]records.RollupRow, error)

	// ReplaceRollup deletes any existing rollup rows and inserts rows.
	ReplaceRollup(ctx context.Context, rows []records.RollupRow) (int64, error)
	// AppendRollup inserts rows whose (date, product) is not yet present and
	// returns how many were inserted.
	AppendRollup(ctx context.Context, rows []records.RollupRow) (int64, error)
	RecordRun(ctx context.Context, run records.Run) error
}

// LockKey is the lock name appends serialise on.
const LockKey = "f_sales_daily_rollup"

// Engine runs batch builds and incremental appends against a Store.
type Engine struct {
	Store  Store
	Logger Logger

	// Locker serialises appends. Nil means lock.Nop.
	Locker lock.Locker

	// Now is a clock seam for run audit timestamps. Nil means time.Now.
	Now func() time.Time
}

// BuildOptions controls a batch build.
type BuildOptions struct {
	// Rebuild replaces an existing rollup instead of failing.
	Rebuild bool
	// Until limits the build to transactions on or before this date.
	Until time.Time
}

// BuildResult summarises a batch build.
type BuildResult struct {
	RunID     string
	From, To  time.Time
	Dates     int
	Products  int
	Rows      int64
	Uncovered []time.Time
}

// AppendResult summarises one incremental append.
type AppendResult struct {
	RunID    string
	Target   time.Time
	Prior    time.Time
	Products int
	Inserted int64
}

func (e *Engine) logf(format string, v ...any) {
	if e.Logger == nil {
		return
	}
	e.Logger.Printf(format, v...)
}

func (e *Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e *Engine) locker() lock.Locker {
	if e.Locker == nil {
		return lock.Nop{}
	}
	return e.Locker
}

func durMS(start time.Time) time.Duration { return time.Since(start).Truncate(time.Millisecond) }

// BuildBatch materialises the dense rollup over the whole transaction history
// in one store transaction.
func (e *Engine) BuildBatch(ctx context.Context, opt BuildOptions) (res BuildResult, err error) {
	if e.Store == nil {
		return res, fmt.Errorf("rollup: Store is required")
	}
	start := time.Now()
	defer func() { metrics.RecordStep("build", start, err) }()

	bounds, err := e.Store.RollupBounds(ctx)
	if err != nil {
		return res, fmt.Errorf("rollup bounds: %w", err)
	}
	if !bounds.Empty() && !opt.Rebuild {
		return res, ErrRollupExists
	}

	txs, err := e.Store.LoadTransactions(ctx)
	if err != nil {
		return res, fmt.Errorf("load transactions: %w", err)
	}
	txs = Until(txs, opt.Until)
	if len(txs) == 0 {
		return res, ErrNoTransactions
	}
	e.logf("stage=load_transactions ok rows=%d duration=%s", len(txs), durMS(start))

	from, to := txs[0].Day(), txs[0].Day()
	for _, tx := range txs {
		if tx.Day().Before(from) {
			from = tx.Day()
		}
		if tx.Day().After(to) {
			to = tx.Day()
		}
	}
	calendar, err := e.Store.CalendarDates(ctx, from, to)
	if err != nil {
		return res, fmt.Errorf("load calendar: %w", err)
	}

	res.Uncovered = UncoveredDates(txs, calendar)
	if len(res.Uncovered) > 0 {
		e.logf("stage=build warn=calendar_gap uncovered_dates=%d first=%s",
			len(res.Uncovered), res.Uncovered[0].Format(records.DateLayout))
	}

	rows, err := Build(txs, calendar)
	if err != nil {
		return res, err
	}

	run := records.NewRun(records.RunBuild, e.now())
	run.TargetDate = to

	writeStart := time.Now()
	n, err := e.Store.ReplaceRollup(ctx, rows)
	if err != nil {
		return res, fmt.Errorf("persist rollup: %w", err)
	}
	e.logf("stage=build_persist ok rows=%d duration=%s", n, durMS(writeStart))
	metrics.RecordRows("rollup_inserted", n)

	run.RowsWritten = n
	run.FinishedAt = e.now().UTC()
	e.recordRun(ctx, "build", run)

	res = BuildResult{
		RunID:     run.ID.String(),
		From:      from,
		To:        to,
		Dates:     len(calendar),
		Products:  distinctProducts(txs),
		Rows:      n,
		Uncovered: res.Uncovered,
	}
	e.logf("stage=build ok run_id=%s from=%s to=%s rows=%d duration=%s",
		res.RunID, from.Format(records.DateLayout), to.Format(records.DateLayout), n, durMS(start))
	return res, nil
}

// AppendNext extends the rollup by exactly one date: the first calendar date
// after the rollup's last date. Re-running it for a date that is already
// materialised inserts nothing.
func (e *Engine) AppendNext(ctx context.Context) (AppendResult, error) {
	res, _, err := e.appendOnce(ctx, time.Time{})
	return res, err
}

// CatchUp calls AppendNext until the rollup reaches until (inclusive). A zero
// until means the latest order date in the store. Each date is committed on
// its own, so a failure leaves every earlier date in place.
func (e *Engine) CatchUp(ctx context.Context, until time.Time) ([]AppendResult, error) {
	if until.IsZero() {
		maxOrder, ok, err := e.Store.MaxOrderDate(ctx)
		if err != nil {
			return nil, fmt.Errorf("max order date: %w", err)
		}
		if !ok {
			return nil, ErrNoTransactions
		}
		until = maxOrder
	}
	until = records.Day(until)

	var out []AppendResult
	for {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		res, advanced, err := e.appendOnce(ctx, until)
		if err != nil {
			return out, err
		}
		if !advanced {
			return out, nil
		}
		out = append(out, res)
	}
}

// appendOnce appends the next date if it is not after limit (zero = no
// limit). advanced is false when limit stops it.
func (e *Engine) appendOnce(ctx context.Context, limit time.Time) (res AppendResult, advanced bool, err error) {
	if e.Store == nil {
		return res, false, fmt.Errorf("rollup: Store is required")
	}
	start := time.Now()
	defer func() {
		if advanced || err != nil {
			metrics.RecordStep("append", start, err)
		}
	}()

	release, err := e.locker().Obtain(ctx, LockKey)
	if err != nil {
		return res, false, err
	}
	defer func() {
		if rerr := release(context.WithoutCancel(ctx)); rerr != nil {
			e.logf("stage=append warn=lock_release err=%v", rerr)
		}
	}()

	bounds, err := e.Store.RollupBounds(ctx)
	if err != nil {
		return res, false, fmt.Errorf("rollup bounds: %w", err)
	}
	if bounds.Empty() {
		return res, false, ErrNoRollup
	}

	if err := e.checkDense(ctx, bounds); err != nil {
		return res, false, err
	}

	prior := records.Day(bounds.Max)
	target, ok, err := e.Store.NextCalendarDate(ctx, prior)
	if err != nil {
		return res, false, fmt.Errorf("next calendar date: %w", err)
	}
	if !ok {
		return res, false, ErrCalendarExhausted
	}
	target = records.Day(target)
	if !limit.IsZero() && target.After(limit) {
		return res, false, nil
	}

	in, err := e.appendInput(ctx, prior, target)
	if err != nil {
		return res, false, err
	}
	rows := Next(in)

	run := records.NewRun(records.RunAppend, e.now())
	run.TargetDate = target

	n, err := e.Store.AppendRollup(ctx, rows)
	if err != nil {
		return res, false, fmt.Errorf("append rollup %s: %w", target.Format(records.DateLayout), err)
	}
	metrics.RecordRows("rollup_inserted", n)

	run.RowsWritten = n
	run.FinishedAt = e.now().UTC()
	e.recordRun(ctx, "append", run)

	res = AppendResult{
		RunID:    run.ID.String(),
		Target:   target,
		Prior:    prior,
		Products: len(rows),
		Inserted: n,
	}
	e.logf("stage=append ok run_id=%s target=%s prior=%s products=%d inserted=%d duration=%s",
		res.RunID, target.Format(records.DateLayout), prior.Format(records.DateLayout), len(rows), n, durMS(start))
	return res, true, nil
}

// appendInput gathers the spine, today's sales, the prior rows and the
// evicted window sales for target.
func (e *Engine) appendInput(ctx context.Context, prior, target time.Time) (AppendInput, error) {
	products, err := e.Store.ProductCodes(ctx)
	if err != nil {
		return AppendInput{}, fmt.Errorf("product spine: %w", err)
	}

	today, err := e.Store.SalesByProductOn(ctx, target)
	if err != nil {
		return AppendInput{}, fmt.Errorf("sales on %s: %w", target.Format(records.DateLayout), err)
	}

	priorRows, err := e.Store.RollupRowsOn(ctx, prior)
	if err != nil {
		return AppendInput{}, fmt.Errorf("rollup rows on %s: %w", prior.Format(records.DateLayout), err)
	}
	priorBy := make(map[string]records.RollupRow, len(priorRows))
	for _, r := range priorRows {
		priorBy[r.ProductCode] = r
	}

	evicted := map[string]decimal.Decimal{}
	if from, to, ok := EvictionRange(prior, target); ok {
		evicted, err = e.Store.RollupSalesBetween(ctx, from, to)
		if err != nil {
			return AppendInput{}, fmt.Errorf("evicted window sales: %w", err)
		}
	}

	return AppendInput{
		Target:   target,
		Products: products,
		Today:    today,
		Prior:    priorBy,
		Evicted:  evicted,
	}, nil
}

// checkDense rejects a rollup that is missing calendar dates between its
// first and last date, or any (date, product) cell from a product's first
// date through the last date.
func (e *Engine) checkDense(ctx context.Context, b records.RollupBounds) error {
	cal, err := e.Store.CalendarDates(ctx, b.Min, b.Max)
	if err != nil {
		return fmt.Errorf("load calendar: %w", err)
	}
	if int64(len(cal)) != b.Dates {
		return fmt.Errorf("%w: %d of %d calendar dates between %s and %s present",
			ErrRollupGaps, b.Dates, len(cal), b.Min.Format(records.DateLayout), b.Max.Format(records.DateLayout))
	}

	spans, err := e.Store.RollupProductSpans(ctx)
	if err != nil {
		return fmt.Errorf("rollup product spans: %w", err)
	}
	for _, s := range spans {
		if !records.Day(s.Last).Equal(records.Day(b.Max)) {
			return fmt.Errorf("%w: product %s ends at %s, rollup ends at %s",
				ErrRollupGaps, s.ProductCode, s.Last.Format(records.DateLayout), b.Max.Format(records.DateLayout))
		}
		first := records.Day(s.First)
		i := sort.Search(len(cal), func(i int) bool { return !cal[i].Before(first) })
		if want := int64(len(cal) - i); s.Rows != want {
			return fmt.Errorf("%w: product %s has %d of %d rows since %s",
				ErrRollupGaps, s.ProductCode, s.Rows, want, first.Format(records.DateLayout))
		}
	}
	return nil
}

// recordRun writes the audit entry for a committed build or append. The
// rollup rows are already durable, so a failure is logged and not returned.
func (e *Engine) recordRun(ctx context.Context, stage string, run records.Run) {
	if err := e.Store.RecordRun(ctx, run); err != nil {
		e.logf("stage=%s warn=record_run run_id=%s err=%v", stage, run.ID, err)
	}
}

// VerifyResult is the outcome of Verify.
type VerifyResult struct {
	Bounds     records.RollupBounds
	Violations []Violation
}

// OK reports whether no invariant was violated.
func (v VerifyResult) OK() bool { return len(v.Violations) == 0 }

// Verify reloads the persisted rollup and checks density against the
// calendar, running totals and window sums.
func (e *Engine) Verify(ctx context.Context) (res VerifyResult, err error) {
	start := time.Now()
	defer func() { metrics.RecordStep("verify", start, err) }()

	res.Bounds, err = e.Store.RollupBounds(ctx)
	if err != nil {
		return res, fmt.Errorf("rollup bounds: %w", err)
	}
	if res.Bounds.Empty() {
		return res, ErrNoRollup
	}
	rows, err := e.Store.RollupRows(ctx)
	if err != nil {
		return res, fmt.Errorf("load rollup: %w", err)
	}
	cal, err := e.Store.CalendarDates(ctx, res.Bounds.Min, res.Bounds.Max)
	if err != nil {
		return res, fmt.Errorf("load calendar: %w", err)
	}
	res.Violations = Check(rows, cal)
	e.logf("stage=verify ok rows=%d violations=%d duration=%s", len(rows), len(res.Violations), durMS(start))
	return res, nil
}

// IsPrecondition reports whether err is one of the engine's precondition
// failures (as opposed to a store failure).
func IsPrecondition(err error) bool {
	return errors.Is(err, ErrNoRollup) ||
		errors.Is(err, ErrRollupExists) ||
		errors.Is(err, ErrRollupGaps) ||
		errors.Is(err, ErrCalendarExhausted) ||
		errors.Is(err, ErrNoTransactions)
}

func distinctProducts(txs []records.Transaction) int {
	set := make(map[string]struct{})
	for _, tx := range txs {
		set[tx.ProductCode] = struct{}{}
	}
	return len(set)
}
