// Package ingest streams the sales export into typed transactions and loads them
// into the store together with the calendar dimension.
//
// Pipeline: CSV or JSON parser -> coerce -> row hash -> decode -> batch insert. Each
// stage runs in its own goroutine and hands pooled rows to the next.
package ingest

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"salesrollup/internal/config"
	"salesrollup/internal/metrics"
	"salesrollup/internal/parser/csv"
	"salesrollup/internal/parser/json"
	"salesrollup/internal/records"
	"salesrollup/internal/storage"
	"salesrollup/internal/transformer"
)

// Logger is the minimal logging interface used by the loader.
type Logger interface {
	Printf(format string, v ...any)
}

// Store is the part of the repository the loader writes to.
type Store interface {
	MaxOrderDate(ctx context.Context) (time.Time, bool, error)
	InsertTransactions(ctx context.Context, txs []records.Transaction) (int64, error)
	EnsureCalendar(ctx context.Context, from, to time.Time) (int64, error)
}

// Reject is one source record that could not be decoded.
type Reject struct {
	Line   int
	Reason string
}

// Options controls parsing and loading.
type Options struct {
	// Parser is handed to the parser (format, encoding, comma, header_map, ...).
	Parser config.Options

	// BatchSize is the number of transactions per insert. Defaults to 1000.
	BatchSize int

	// PadDays extends the calendar past the latest order date.
	PadDays int

	// ChannelBuffer sizes the channels between stages. Defaults to 256.
	ChannelBuffer int
}

// Result summarises a load.
type Result struct {
	Read             int64
	Rejected         []Reject
	Inserted         int64
	CalendarFrom     time.Time
	CalendarTo       time.Time
	CalendarInserted int64
}

// Stream parses src and calls fn for every decodable transaction in file
// order. Undecodable records are reported through onReject and skipped. A
// header error or an error from fn stops the stream.
func Stream(
	ctx context.Context,
	src io.ReadCloser,
	opt Options,
	fn func(records.Transaction) error,
	onReject func(Reject),
) error {
	columns := storage.TransactionColumns
	dec, err := transformer.NewTransactionDecoder(columns)
	if err != nil {
		return err
	}

	buf := opt.ChannelBuffer
	if buf <= 0 {
		buf = 256
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var rejMu sync.Mutex
	reject := func(line int, reason string) {
		if onReject == nil {
			return
		}
		rejMu.Lock()
		defer rejMu.Unlock()
		onReject(Reject{Line: line, Reason: reason})
	}

	rawCh := make(chan *transformer.Row, buf)
	coercedCh := make(chan *transformer.Row, buf)
	hashedCh := make(chan *transformer.Row, buf)

	parse := csv.StreamCSVRows
	switch f := opt.Parser.String("format", ""); f {
	case "", "csv":
	case "json":
		parse = json.StreamJSONRows
	default:
		return fmt.Errorf("unsupported input format %q", f)
	}

	parseErrCh := make(chan error, 1)
	go func() {
		defer close(rawCh)
		parseErrCh <- parse(ctx, src, columns, opt.Parser, rawCh, func(line int, err error) {
			reject(line, err.Error())
		})
	}()

	go func() {
		defer close(coercedCh)
		transformer.CoerceLoopRows(ctx, columns, rawCh, coercedCh, transformer.TransactionCoerceSpec(), reject)
	}()

	go func() {
		defer close(hashedCh)
		transformer.HashLoopRows(ctx, columns, coercedCh, hashedCh, transformer.TransactionHashSpec(), reject)
	}()

	var fnErr error
	for r := range hashedCh {
		if fnErr != nil {
			r.Drop()
			continue
		}
		t, err := dec.Decode(r)
		line := r.Line
		r.Free()
		if err != nil {
			reject(line, err.Error())
			continue
		}
		if err := fn(t); err != nil {
			fnErr = err
			cancel()
		}
	}

	parseErr := <-parseErrCh
	if fnErr != nil {
		return fnErr
	}
	if parseErr != nil && parseErr != context.Canceled {
		return fmt.Errorf("parse: %w", parseErr)
	}
	return nil
}

// ReadFile decodes every transaction of the CSV at path.
func ReadFile(ctx context.Context, path string, opt Options) ([]records.Transaction, []Reject, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open source: %w", err)
	}
	var (
		txs     []records.Transaction
		rejects []Reject
	)
	err = Stream(ctx, f, opt, func(t records.Transaction) error {
		txs = append(txs, t)
		return nil
	}, func(r Reject) { rejects = append(rejects, r) })
	if err != nil {
		return nil, rejects, err
	}
	return txs, rejects, nil
}

// Loader writes a CSV into a Store.
type Loader struct {
	Store  Store
	Logger Logger
	Opts   Options
}

func (l *Loader) logf(format string, v ...any) {
	if l.Logger != nil {
		l.Logger.Printf(format, v...)
	}
}

// LoadFile opens path and loads it.
func (l *Loader) LoadFile(ctx context.Context, path string) (Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return Result{}, fmt.Errorf("open source: %w", err)
	}
	return l.Load(ctx, f)
}

// Load inserts the transactions of src in batches (re-loading rows already
// present is a no-op) and then seeds the calendar from the earliest new
// order date, or the previous latest order date when that is earlier, to
// the latest order date plus PadDays. src is closed.
func (l *Loader) Load(ctx context.Context, src io.ReadCloser) (res Result, err error) {
	if l.Store == nil {
		return res, fmt.Errorf("ingest: Store is required")
	}
	start := time.Now()
	defer func() { metrics.RecordStep("load", start, err) }()

	batchSize := l.Opts.BatchSize
	if batchSize <= 0 {
		batchSize = 1000
	}

	prevMax, hadRows, err := l.Store.MaxOrderDate(ctx)
	if err != nil {
		_ = src.Close()
		return res, fmt.Errorf("max order date: %w", err)
	}

	var minDay, maxDay time.Time
	batch := make([]records.Transaction, 0, batchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		n, err := l.Store.InsertTransactions(ctx, batch)
		if err != nil {
			return fmt.Errorf("insert transactions: %w", err)
		}
		res.Inserted += n
		batch = batch[:0]
		return nil
	}

	err = Stream(ctx, src, l.Opts, func(t records.Transaction) error {
		res.Read++
		d := t.Day()
		if minDay.IsZero() || d.Before(minDay) {
			minDay = d
		}
		if d.After(maxDay) {
			maxDay = d
		}
		batch = append(batch, t)
		if len(batch) >= batchSize {
			return flush()
		}
		return nil
	}, func(r Reject) {
		res.Rejected = append(res.Rejected, r)
		l.logf("stage=load reject line=%d reason=%q", r.Line, r.Reason)
	})
	if err == nil {
		err = flush()
	}
	metrics.RecordRows("transactions_read", res.Read)
	metrics.RecordRows("transactions_rejected", int64(len(res.Rejected)))
	metrics.RecordRows("transactions_inserted", res.Inserted)
	if err != nil {
		return res, err
	}

	if res.Read > 0 {
		from := minDay
		if hadRows && records.Day(prevMax).Before(from) {
			from = records.Day(prevMax)
		}
		to := records.AddDays(maxDay, l.Opts.PadDays)
		n, err := l.Store.EnsureCalendar(ctx, from, to)
		if err != nil {
			return res, fmt.Errorf("ensure calendar: %w", err)
		}
		res.CalendarFrom, res.CalendarTo, res.CalendarInserted = from, to, n
		metrics.RecordRows("calendar_inserted", n)
	}

	l.logf("stage=load ok read=%d inserted=%d rejected=%d calendar_from=%s calendar_to=%s calendar_inserted=%d duration=%s",
		res.Read, res.Inserted, len(res.Rejected),
		formatDay(res.CalendarFrom), formatDay(res.CalendarTo), res.CalendarInserted,
		time.Since(start).Truncate(time.Millisecond))
	return res, nil
}

func formatDay(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Format(records.DateLayout)
}
