package sqldb

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"salesrollup/internal/records"
	"salesrollup/internal/storage"
)

// Repo implements storage.Repository over a *sql.DB.
type Repo struct {
	db    *sql.DB
	d     Dialect
	batch int
}

// New wraps an open database. batch <= 0 lets the dialect limits decide the
// multi-row insert size.
func New(db *sql.DB, d Dialect, batch int) *Repo {
	return &Repo{db: db, d: d, batch: batch}
}

// Open opens driverName/dsn and validates connectivity via PingContext.
func Open(ctx context.Context, driverName, dsn string, d Dialect, batch int) (*Repo, error) {
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%s: ping: %w", d.Name, err)
	}
	return New(db, d, batch), nil
}

// DB exposes the underlying handle for backend-specific tuning.
func (r *Repo) DB() *sql.DB { return r.db }

func (r *Repo) Close() { _ = r.db.Close() }

func (r *Repo) ph(n int) string { return r.d.Placeholder(n) }

func (r *Repo) q(id string) string { return r.d.Quote(id) }

// EnsureSchema creates every table in storage.Schema when missing.
func (r *Repo) EnsureSchema(ctx context.Context) error {
	for _, t := range storage.Schema() {
		ddl, err := r.d.BuildCreateSQL(t)
		if err != nil {
			return err
		}
		if _, err := r.db.ExecContext(ctx, ddl); err != nil {
			return fmt.Errorf("%s: create table %s: %w", r.d.Name, t.Name, err)
		}
	}
	return nil
}

// InsertTransactions inserts each transaction behind a NOT EXISTS guard on
// row_hash, so duplicates within the batch and across reloads are skipped.
func (r *Repo) InsertTransactions(ctx context.Context, txs []records.Transaction) (int64, error) {
	if len(txs) == 0 {
		return 0, nil
	}
	q := r.d.buildGuardedInsertSQL(storage.TableTransactions, storage.TransactionColumns, []string{"row_hash"})
	return r.guardedInsert(ctx, q, len(txs), func(i int) []any {
		tx := txs[i]
		var territory any
		if tx.Territory != nil {
			territory = *tx.Territory
		}
		return []any{
			tx.RowHash, tx.OrderNumber, int64(tx.OrderLine), tx.CustomerName, tx.ProductCode,
			r.d.Timestamp(tx.OrderDate), tx.Quantity, tx.Sales.String(), territory, tx.ProductLine,
			int64(tx.MonthID), int64(tx.YearID),
			tx.RowHash,
		}
	})
}

// EnsureCalendar inserts every date in [from, to] that d_date lacks.
func (r *Repo) EnsureCalendar(ctx context.Context, from, to time.Time) (int64, error) {
	days := records.DateRange(from, to)
	if len(days) == 0 {
		return 0, nil
	}
	q := r.d.buildGuardedInsertSQL(storage.TableCalendar, []string{"date_actual"}, []string{"date_actual"})
	return r.guardedInsert(ctx, q, len(days), func(i int) []any {
		v := r.d.Day(days[i])
		return []any{v, v}
	})
}

// guardedInsert runs one prepared guarded insert per row inside a single
// transaction and sums the affected rows.
func (r *Repo) guardedInsert(ctx context.Context, q string, n int, args func(i int) []any) (int64, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, q)
	if err != nil {
		return 0, fmt.Errorf("%s: prepare insert: %w", r.d.Name, err)
	}
	defer stmt.Close()

	var total int64
	for i := 0; i < n; i++ {
		res, err := stmt.ExecContext(ctx, args(i)...)
		if err != nil {
			return 0, fmt.Errorf("%s: insert row %d: %w", r.d.Name, i, err)
		}
		if k, err := res.RowsAffected(); err == nil {
			total += k
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return total, nil
}

// LoadTransactions returns every transaction ordered by order_date,
// order_number, order_line.
func (r *Repo) LoadTransactions(ctx context.Context) ([]records.Transaction, error) {
	cols := make([]string, len(storage.TransactionColumns))
	for i, c := range storage.TransactionColumns {
		cols[i] = r.q(c)
		if c == "sales" {
			cols[i] = r.d.text(r.q(c))
		}
	}
	q := fmt.Sprintf("SELECT %s FROM %s ORDER BY %s, %s, %s",
		joinComma(cols), storage.TableTransactions, r.q("order_date"), r.q("order_number"), r.q("order_line"))

	rows, err := r.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []records.Transaction
	for rows.Next() {
		var (
			tx        records.Transaction
			line      int64
			orderDate nullTimestamp
			territory sql.NullString
			month     int64
			year      int64
		)
		if err := rows.Scan(&tx.RowHash, &tx.OrderNumber, &line, &tx.CustomerName, &tx.ProductCode,
			&orderDate, &tx.Quantity, &tx.Sales, &territory, &tx.ProductLine, &month, &year); err != nil {
			return nil, err
		}
		tx.OrderLine = int(line)
		tx.OrderDate = orderDate.Time
		if territory.Valid {
			s := territory.String
			tx.Territory = &s
		}
		tx.MonthID, tx.YearID = int(month), int(year)
		out = append(out, tx)
	}
	return out, rows.Err()
}

func (r *Repo) CalendarDates(ctx context.Context, from, to time.Time) ([]time.Time, error) {
	q := fmt.Sprintf("SELECT %[1]s FROM %[2]s WHERE %[1]s >= %[3]s AND %[1]s <= %[4]s ORDER BY %[1]s",
		r.q("date_actual"), storage.TableCalendar, r.ph(1), r.ph(2))
	rows, err := r.db.QueryContext(ctx, q, r.d.Day(records.Day(from)), r.d.Day(records.Day(to)))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []time.Time
	for rows.Next() {
		var d nullDay
		if err := rows.Scan(&d); err != nil {
			return nil, err
		}
		if d.Valid {
			out = append(out, d.Time)
		}
	}
	return out, rows.Err()
}

func (r *Repo) NextCalendarDate(ctx context.Context, after time.Time) (time.Time, bool, error) {
	q := fmt.Sprintf("SELECT MIN(%[1]s) FROM %[2]s WHERE %[1]s > %[3]s",
		r.q("date_actual"), storage.TableCalendar, r.ph(1))
	var d nullDay
	if err := r.db.QueryRowContext(ctx, q, r.d.Day(records.Day(after))).Scan(&d); err != nil {
		return time.Time{}, false, err
	}
	return d.Time, d.Valid, nil
}

func (r *Repo) ProductCodes(ctx context.Context) ([]string, error) {
	q := fmt.Sprintf("SELECT DISTINCT %[1]s FROM %[2]s ORDER BY %[1]s", r.q("product_code"), storage.TableTransactions)
	rows, err := r.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *Repo) MaxOrderDate(ctx context.Context) (time.Time, bool, error) {
	q := fmt.Sprintf("SELECT MAX(%s) FROM %s", r.q("order_date"), storage.TableTransactions)
	var ts nullTimestamp
	if err := r.db.QueryRowContext(ctx, q).Scan(&ts); err != nil {
		return time.Time{}, false, err
	}
	if !ts.Valid {
		return time.Time{}, false, nil
	}
	return records.Day(ts.Time), true, nil
}

// SalesByProductOn sums sales per product over [day, day+1).
func (r *Repo) SalesByProductOn(ctx context.Context, day time.Time) (map[string]decimal.Decimal, error) {
	day = records.Day(day)
	q := fmt.Sprintf("SELECT %[1]s, %[2]s FROM %[3]s WHERE %[4]s >= %[5]s AND %[4]s < %[6]s",
		r.q("product_code"), r.d.text(r.q("sales")), storage.TableTransactions, r.q("order_date"), r.ph(1), r.ph(2))
	return r.sumByProduct(ctx, q, r.d.Timestamp(day), r.d.Timestamp(records.AddDays(day, 1)))
}

func (r *Repo) sumByProduct(ctx context.Context, q string, args ...any) (map[string]decimal.Decimal, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[string]decimal.Decimal{}
	for rows.Next() {
		var (
			p string
			v decimal.Decimal
		)
		if err := rows.Scan(&p, &v); err != nil {
			return nil, err
		}
		out[p] = out[p].Add(v)
	}
	return out, rows.Err()
}

func (r *Repo) RollupBounds(ctx context.Context) (records.RollupBounds, error) {
	q := fmt.Sprintf("SELECT MIN(%[1]s), MAX(%[1]s), COUNT(DISTINCT %[1]s), COUNT(*), COUNT(DISTINCT %[2]s) FROM %[3]s",
		r.q("date_actual"), r.q("product_code"), storage.TableRollup)
	var (
		b        records.RollupBounds
		min, max nullDay
	)
	if err := r.db.QueryRowContext(ctx, q).Scan(&min, &max, &b.Dates, &b.Rows, &b.Products); err != nil {
		return b, err
	}
	b.Min, b.Max = min.Time, max.Time
	return b, nil
}

func (r *Repo) RollupProductSpans(ctx context.Context) ([]records.ProductSpan, error) {
	q := fmt.Sprintf("SELECT %[1]s, MIN(%[2]s), MAX(%[2]s), COUNT(*) FROM %[3]s GROUP BY %[1]s ORDER BY %[1]s",
		r.q("product_code"), r.q("date_actual"), storage.TableRollup)
	rows, err := r.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []records.ProductSpan
	for rows.Next() {
		var (
			s           records.ProductSpan
			first, last nullDay
		)
		if err := rows.Scan(&s.ProductCode, &first, &last, &s.Rows); err != nil {
			return nil, err
		}
		s.First, s.Last = first.Time, last.Time
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *Repo) rollupSelect() string {
	return fmt.Sprintf("SELECT %s, %s, %s, %s, %s FROM %s",
		r.q("date_actual"), r.q("product_code"),
		r.d.text(r.q("total_sales")), r.d.text(r.q("sales_to_date")), r.d.text(r.q("sales_45d")),
		storage.TableRollup)
}

func (r *Repo) queryRollup(ctx context.Context, q string, args ...any) ([]records.RollupRow, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []records.RollupRow
	for rows.Next() {
		var (
			row records.RollupRow
			d   nullDay
		)
		if err := rows.Scan(&d, &row.ProductCode, &row.SalesToday, &row.SalesToDate, &row.Sales45d); err != nil {
			return nil, err
		}
		row.Date = d.Time
		out = append(out, row)
	}
	return out, rows.Err()
}

func (r *Repo) RollupRowsOn(ctx context.Context, day time.Time) ([]records.RollupRow, error) {
	q := fmt.Sprintf("%s WHERE %s = %s ORDER BY %s",
		r.rollupSelect(), r.q("date_actual"), r.ph(1), r.q("product_code"))
	return r.queryRollup(ctx, q, r.d.Day(records.Day(day)))
}

func (r *Repo) RollupRows(ctx context.Context) ([]records.RollupRow, error) {
	q := fmt.Sprintf("%s ORDER BY %s, %s", r.rollupSelect(), r.q("date_actual"), r.q("product_code"))
	return r.queryRollup(ctx, q)
}

// RollupSalesBetween sums total_sales per product over [from, to].
func (r *Repo) RollupSalesBetween(ctx context.Context, from, to time.Time) (map[string]decimal.Decimal, error) {
	q := fmt.Sprintf("SELECT %[1]s, %[2]s FROM %[3]s WHERE %[4]s >= %[5]s AND %[4]s <= %[6]s",
		r.q("product_code"), r.d.text(r.q("total_sales")), storage.TableRollup, r.q("date_actual"), r.ph(1), r.ph(2))
	return r.sumByProduct(ctx, q, r.d.Day(records.Day(from)), r.d.Day(records.Day(to)))
}

func (r *Repo) rollupArgs(row records.RollupRow) []any {
	return []any{
		r.d.Day(records.Day(row.Date)), row.ProductCode,
		row.SalesToday.String(), row.SalesToDate.String(), row.Sales45d.String(),
	}
}

// ReplaceRollup deletes the rollup and writes rows in chunked multi-row
// inserts, all in one transaction.
func (r *Repo) ReplaceRollup(ctx context.Context, rows []records.RollupRow) (int64, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM "+storage.TableRollup); err != nil {
		return 0, fmt.Errorf("%s: clear rollup: %w", r.d.Name, err)
	}

	ncol := len(storage.RollupColumns)
	chunk := r.d.chunkRows(ncol, r.batch)
	var total int64
	for start := 0; start < len(rows); start += chunk {
		end := start + chunk
		if end > len(rows) {
			end = len(rows)
		}
		args := make([]any, 0, (end-start)*ncol)
		for _, row := range rows[start:end] {
			args = append(args, r.rollupArgs(row)...)
		}
		res, err := tx.ExecContext(ctx, r.d.buildInsertSQL(storage.TableRollup, storage.RollupColumns, end-start), args...)
		if err != nil {
			return 0, fmt.Errorf("%s: insert rollup rows %d-%d: %w", r.d.Name, start, end, err)
		}
		if k, err := res.RowsAffected(); err == nil {
			total += k
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return total, nil
}

// AppendRollup inserts rows behind a NOT EXISTS guard on (date_actual,
// product_code) in one transaction.
func (r *Repo) AppendRollup(ctx context.Context, rows []records.RollupRow) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	q := r.d.buildGuardedInsertSQL(storage.TableRollup, storage.RollupColumns, []string{"date_actual", "product_code"})
	return r.guardedInsert(ctx, q, len(rows), func(i int) []any {
		row := rows[i]
		return append(r.rollupArgs(row), r.d.Day(records.Day(row.Date)), row.ProductCode)
	})
}

func (r *Repo) RecordRun(ctx context.Context, run records.Run) error {
	q := r.d.buildInsertSQL(storage.TableRuns, storage.RunColumns, 1)
	var target any
	if !run.TargetDate.IsZero() {
		target = r.d.Day(records.Day(run.TargetDate))
	}
	_, err := r.db.ExecContext(ctx, q,
		run.ID.String(), string(run.Kind), target, run.RowsWritten,
		r.d.Timestamp(run.StartedAt), r.d.Timestamp(run.FinishedAt))
	if err != nil {
		return fmt.Errorf("%s: record run: %w", r.d.Name, err)
	}
	return nil
}

// Runs returns up to limit audit entries, newest first. limit <= 0 returns
// all of them. Sorting happens client side because row-limit syntax differs
// across dialects.
func (r *Repo) Runs(ctx context.Context, limit int) ([]records.Run, error) {
	cols := make([]string, len(storage.RunColumns))
	for i, c := range storage.RunColumns {
		cols[i] = r.q(c)
	}
	rows, err := r.db.QueryContext(ctx, fmt.Sprintf("SELECT %s FROM %s", joinComma(cols), storage.TableRuns))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []records.Run
	for rows.Next() {
		var (
			run               records.Run
			id, kind          string
			target            nullDay
			started, finished nullTimestamp
		)
		if err := rows.Scan(&id, &kind, &target, &run.RowsWritten, &started, &finished); err != nil {
			return nil, err
		}
		parsed, err := uuid.Parse(id)
		if err != nil {
			return nil, fmt.Errorf("%s: run id %q: %w", r.d.Name, id, err)
		}
		run.ID, run.Kind = parsed, records.RunKind(kind)
		run.TargetDate, run.StartedAt, run.FinishedAt = target.Time, started.Time, finished.Time
		out = append(out, run)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func joinComma(parts []string) string { return strings.Join(parts, ", ") }

var _ storage.Repository = (*Repo)(nil)
