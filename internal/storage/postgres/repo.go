package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"salesrollup/internal/records"
	"salesrollup/internal/storage"
)

/*
Repo implements storage.Repository for Postgres.

It provides:
  - idempotent transaction loads via INSERT ... ON CONFLICT (row_hash) DO NOTHING
  - calendar seeding with generate_series
  - a rollup rebuild via COPY inside one transaction
  - guarded appends batched with pgx.Batch

Money is exchanged as pgtype.Numeric on the way in and as text on the way
out, so no value passes through float64.
*/
type Repo struct {
	pool  *pgxpool.Pool
	batch int
}

// New creates a new Postgres-backed Repo.
func New(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
	pool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}
	batch := cfg.BatchSize
	if batch <= 0 {
		batch = 1000
	}
	return &Repo{pool: pool, batch: batch}, nil
}

// Close closes the connection pool.
func (r *Repo) Close() {
	r.pool.Close()
}

// EnsureSchema creates every table in storage.Schema when missing. It is
// idempotent.
func (r *Repo) EnsureSchema(ctx context.Context) error {
	for _, t := range storage.Schema() {
		ddl, err := buildCreateSQL(t)
		if err != nil {
			return err
		}
		if _, err := r.pool.Exec(ctx, ddl); err != nil {
			return fmt.Errorf("postgres: create table %s: %w", t.Name, err)
		}
	}
	return nil
}

// InsertTransactions inserts transactions in chunks of the configured batch
// size, skipping row hashes that already exist.
func (r *Repo) InsertTransactions(ctx context.Context, txs []records.Transaction) (int64, error) {
	if len(txs) == 0 {
		return 0, nil
	}
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback(ctx)

	var total int64
	for start := 0; start < len(txs); start += r.batch {
		end := start + r.batch
		if end > len(txs) {
			end = len(txs)
		}
		rows := make([][]any, 0, end-start)
		for _, t := range txs[start:end] {
			rows = append(rows, transactionRow(t))
		}
		sql, args := buildInsertSQL(storage.TableTransactions, storage.TransactionColumns, rows, []string{"row_hash"})
		cmd, err := tx.Exec(ctx, sql, args...)
		if err != nil {
			return 0, fmt.Errorf("postgres: insert transactions %d-%d: %w", start, end, err)
		}
		total += cmd.RowsAffected()
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return total, nil
}

func transactionRow(t records.Transaction) []any {
	var territory *string
	if t.Territory != nil {
		s := *t.Territory
		territory = &s
	}
	return []any{
		t.RowHash, t.OrderNumber, int32(t.OrderLine), t.CustomerName, t.ProductCode,
		t.OrderDate.UTC(), t.Quantity, numeric(t.Sales), territory, t.ProductLine,
		int32(t.MonthID), int32(t.YearID),
	}
}

// EnsureCalendar seeds d_date from generate_series.
func (r *Repo) EnsureCalendar(ctx context.Context, from, to time.Time) (int64, error) {
	cmd, err := r.pool.Exec(ctx, ensureCalendarSQL, records.Day(from), records.Day(to))
	if err != nil {
		return 0, fmt.Errorf("postgres: seed calendar: %w", err)
	}
	return cmd.RowsAffected(), nil
}

const ensureCalendarSQL = `INSERT INTO d_date (date_actual)
SELECT g::date FROM generate_series($1::date, $2::date, interval '1 day') AS g
ON CONFLICT (date_actual) DO NOTHING`

func (r *Repo) LoadTransactions(ctx context.Context) ([]records.Transaction, error) {
	rows, err := r.pool.Query(ctx, `SELECT row_hash, order_number, order_line, customer_name, product_code,
       order_date, quantity_ordered, sales::text, territory, product_line, month_id, year_id
FROM sales_data ORDER BY order_date, order_number, order_line`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []records.Transaction
	for rows.Next() {
		var (
			t                 records.Transaction
			line, month, year int32
			sales             string
			territory         *string
		)
		if err := rows.Scan(&t.RowHash, &t.OrderNumber, &line, &t.CustomerName, &t.ProductCode,
			&t.OrderDate, &t.Quantity, &sales, &territory, &t.ProductLine, &month, &year); err != nil {
			return nil, err
		}
		if t.Sales, err = decimal.NewFromString(sales); err != nil {
			return nil, fmt.Errorf("postgres: sales %q: %w", sales, err)
		}
		t.OrderLine, t.MonthID, t.YearID = int(line), int(month), int(year)
		t.OrderDate = t.OrderDate.UTC()
		t.Territory = territory
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *Repo) CalendarDates(ctx context.Context, from, to time.Time) ([]time.Time, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT date_actual FROM d_date WHERE date_actual BETWEEN $1 AND $2 ORDER BY date_actual`,
		records.Day(from), records.Day(to))
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (time.Time, error) {
		var d time.Time
		err := row.Scan(&d)
		return records.Day(d), err
	})
}

func (r *Repo) NextCalendarDate(ctx context.Context, after time.Time) (time.Time, bool, error) {
	var d *time.Time
	err := r.pool.QueryRow(ctx, `SELECT MIN(date_actual) FROM d_date WHERE date_actual > $1`, records.Day(after)).Scan(&d)
	if err != nil || d == nil {
		return time.Time{}, false, err
	}
	return records.Day(*d), true, nil
}

func (r *Repo) ProductCodes(ctx context.Context) ([]string, error) {
	rows, err := r.pool.Query(ctx, `SELECT DISTINCT product_code FROM sales_data ORDER BY product_code`)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

func (r *Repo) MaxOrderDate(ctx context.Context) (time.Time, bool, error) {
	var d *time.Time
	if err := r.pool.QueryRow(ctx, `SELECT MAX(order_date) FROM sales_data`).Scan(&d); err != nil || d == nil {
		return time.Time{}, false, err
	}
	return records.Day(*d), true, nil
}

func (r *Repo) SalesByProductOn(ctx context.Context, day time.Time) (map[string]decimal.Decimal, error) {
	day = records.Day(day)
	return r.sumByProduct(ctx, `SELECT product_code, SUM(sales)::text FROM sales_data
WHERE order_date >= $1 AND order_date < $2 GROUP BY product_code`, day, records.AddDays(day, 1))
}

func (r *Repo) RollupSalesBetween(ctx context.Context, from, to time.Time) (map[string]decimal.Decimal, error) {
	return r.sumByProduct(ctx, `SELECT product_code, SUM(total_sales)::text FROM f_sales_daily_rollup
WHERE date_actual BETWEEN $1 AND $2 GROUP BY product_code`, records.Day(from), records.Day(to))
}

func (r *Repo) sumByProduct(ctx context.Context, sql string, args ...any) (map[string]decimal.Decimal, error) {
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[string]decimal.Decimal{}
	for rows.Next() {
		var p, v string
		if err := rows.Scan(&p, &v); err != nil {
			return nil, err
		}
		d, err := decimal.NewFromString(v)
		if err != nil {
			return nil, fmt.Errorf("postgres: sum for %s: %w", p, err)
		}
		out[p] = d
	}
	return out, rows.Err()
}

func (r *Repo) RollupBounds(ctx context.Context) (records.RollupBounds, error) {
	var (
		b        records.RollupBounds
		min, max *time.Time
	)
	err := r.pool.QueryRow(ctx, `SELECT MIN(date_actual), MAX(date_actual), COUNT(DISTINCT date_actual),
       COUNT(*), COUNT(DISTINCT product_code) FROM f_sales_daily_rollup`).
		Scan(&min, &max, &b.Dates, &b.Rows, &b.Products)
	if err != nil {
		return b, err
	}
	if min != nil && max != nil {
		b.Min, b.Max = records.Day(*min), records.Day(*max)
	}
	return b, nil
}

func (r *Repo) RollupProductSpans(ctx context.Context) ([]records.ProductSpan, error) {
	rows, err := r.pool.Query(ctx, `SELECT product_code, MIN(date_actual), MAX(date_actual), COUNT(*)
FROM f_sales_daily_rollup GROUP BY product_code ORDER BY product_code`)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (records.ProductSpan, error) {
		var s records.ProductSpan
		if err := row.Scan(&s.ProductCode, &s.First, &s.Last, &s.Rows); err != nil {
			return s, err
		}
		s.First, s.Last = records.Day(s.First), records.Day(s.Last)
		return s, nil
	})
}

const rollupSelect = `SELECT date_actual, product_code, total_sales::text, sales_to_date::text, sales_45d::text
FROM f_sales_daily_rollup`

func (r *Repo) RollupRowsOn(ctx context.Context, day time.Time) ([]records.RollupRow, error) {
	return r.queryRollup(ctx, rollupSelect+` WHERE date_actual = $1 ORDER BY product_code`, records.Day(day))
}

func (r *Repo) RollupRows(ctx context.Context) ([]records.RollupRow, error) {
	return r.queryRollup(ctx, rollupSelect+` ORDER BY date_actual, product_code`)
}

func (r *Repo) queryRollup(ctx context.Context, sql string, args ...any) ([]records.RollupRow, error) {
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (records.RollupRow, error) {
		var (
			out                   records.RollupRow
			today, toDate, window string
		)
		if err := row.Scan(&out.Date, &out.ProductCode, &today, &toDate, &window); err != nil {
			return out, err
		}
		out.Date = records.Day(out.Date)
		var err error
		if out.SalesToday, err = decimal.NewFromString(today); err != nil {
			return out, err
		}
		if out.SalesToDate, err = decimal.NewFromString(toDate); err != nil {
			return out, err
		}
		out.Sales45d, err = decimal.NewFromString(window)
		return out, err
	})
}

// ReplaceRollup clears the rollup and bulk loads rows with COPY in one
// transaction.
func (r *Repo) ReplaceRollup(ctx context.Context, rows []records.RollupRow) (int64, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM f_sales_daily_rollup`); err != nil {
		return 0, fmt.Errorf("postgres: clear rollup: %w", err)
	}
	n, err := tx.CopyFrom(ctx,
		pgx.Identifier{storage.TableRollup},
		storage.RollupColumns,
		pgx.CopyFromSlice(len(rows), func(i int) ([]any, error) {
			return rollupRow(rows[i]), nil
		}),
	)
	if err != nil {
		return 0, fmt.Errorf("postgres: copy rollup: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return n, nil
}

func rollupRow(row records.RollupRow) []any {
	return []any{
		records.Day(row.Date), row.ProductCode,
		numeric(row.SalesToday), numeric(row.SalesToDate), numeric(row.Sales45d),
	}
}

// appendRollupSQL inserts one rollup row unless its key exists. The explicit
// casts type the parameters, which INSERT ... SELECT does not infer.
const appendRollupSQL = `INSERT INTO f_sales_daily_rollup (date_actual, product_code, total_sales, sales_to_date, sales_45d)
SELECT $1::date, $2::text, $3::numeric, $4::numeric, $5::numeric
WHERE NOT EXISTS (
  SELECT 1 FROM f_sales_daily_rollup WHERE date_actual = $1::date AND product_code = $2::text
)`

// AppendRollup queues one guarded insert per row in a pgx.Batch and sends
// it inside a transaction.
func (r *Repo) AppendRollup(ctx context.Context, rows []records.RollupRow) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}
	for _, row := range rows {
		batch.Queue(appendRollupSQL, rollupRow(row)...)
	}
	br := tx.SendBatch(ctx, batch)

	var total int64
	for i := range rows {
		cmd, err := br.Exec()
		if err != nil {
			_ = br.Close()
			return 0, fmt.Errorf("postgres: append rollup row %d: %w", i, err)
		}
		total += cmd.RowsAffected()
	}
	if err := br.Close(); err != nil {
		return 0, err
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return total, nil
}

func (r *Repo) RecordRun(ctx context.Context, run records.Run) error {
	var target *time.Time
	if !run.TargetDate.IsZero() {
		d := records.Day(run.TargetDate)
		target = &d
	}
	sql, args := buildInsertSQL(storage.TableRuns, storage.RunColumns, [][]any{{
		run.ID.String(), string(run.Kind), target, run.RowsWritten, run.StartedAt.UTC(), run.FinishedAt.UTC(),
	}}, nil)
	if _, err := r.pool.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("postgres: record run: %w", err)
	}
	return nil
}

func (r *Repo) Runs(ctx context.Context, limit int) ([]records.Run, error) {
	sql := `SELECT run_id, kind, target_date, rows_written, started_at, finished_at FROM rollup_runs ORDER BY started_at DESC`
	var args []any
	if limit > 0 {
		sql += ` LIMIT $1`
		args = append(args, limit)
	}
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (records.Run, error) {
		var (
			run      records.Run
			id, kind string
			target   *time.Time
		)
		if err := row.Scan(&id, &kind, &target, &run.RowsWritten, &run.StartedAt, &run.FinishedAt); err != nil {
			return run, err
		}
		parsed, err := uuid.Parse(id)
		if err != nil {
			return run, err
		}
		run.ID, run.Kind = parsed, records.RunKind(kind)
		if target != nil {
			run.TargetDate = records.Day(*target)
		}
		return run, nil
	})
}

// numeric converts an exact decimal to pgtype.Numeric without going through
// float64.
func numeric(d decimal.Decimal) pgtype.Numeric {
	return pgtype.Numeric{Int: d.Coefficient(), Exp: d.Exponent(), Valid: true}
}

// pgIdent quotes an identifier for Postgres.
func pgIdent(id string) string {
	return `"` + strings.ReplaceAll(id, `"`, `""`) + `"`
}

var _ storage.Repository = (*Repo)(nil)
