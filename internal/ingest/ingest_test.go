package ingest

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"salesrollup/internal/config"
	"salesrollup/internal/records"
)

const sampleCSV = `ORDERNUMBER,QUANTITYORDERED,PRICEEACH,ORDERLINENUMBER,SALES,ORDERDATE,STATUS,QTR_ID,MONTH_ID,YEAR_ID,PRODUCTLINE,MSRP,PRODUCTCODE,CUSTOMERNAME,PHONE,TERRITORY
10107,30,95.7,2,2871,2/24/2003 0:00,Shipped,1,2,2003,Motorcycles,95,S10_1678,Land of Toys Inc.,2125557818,NA
10121,34,81.35,5,2765.9,5/7/2003 0:00,Shipped,2,5,2003,Motorcycles,95,S10_1678,Reims Collectables,26.47.1555,EMEA
10134,41,94.74,2,3884.34,7/1/2003 0:00,Shipped,3,7,2003,Motorcycles,95,S10_1678,Lyon Souveniers,+33 1 46 62 7555,EMEA
10145,45,83.26,6,bad,8/25/2003 0:00,Shipped,3,8,2003,Motorcycles,95,S10_1678,Toys4GrownUps.com,6265557265,NA
10159,49,100,14,5205.27,,Shipped,4,10,2003,Motorcycles,95,S10_1678,Corporate Gift Ideas Co.,6505551386,NA
`

func parserOptions() config.Options {
	cfg := config.Config{Input: config.InputConfig{
		Comma:      ",",
		Encoding:   "latin1",
		HeaderMap:  config.DefaultHeaderMap(),
		NullValues: config.DefaultNullValues(),
	}}
	return cfg.ParserOptions()
}

type fakeStore struct {
	rows     map[string]records.Transaction
	batches  []int
	calFrom  time.Time
	calTo    time.Time
	calCalls int
	failOn   int
}

func newFakeStore() *fakeStore { return &fakeStore{rows: map[string]records.Transaction{}} }

func (s *fakeStore) MaxOrderDate(ctx context.Context) (time.Time, bool, error) {
	var max time.Time
	for _, t := range s.rows {
		if t.OrderDate.After(max) {
			max = t.OrderDate
		}
	}
	return max, len(s.rows) > 0, nil
}

func (s *fakeStore) InsertTransactions(ctx context.Context, txs []records.Transaction) (int64, error) {
	s.batches = append(s.batches, len(txs))
	if s.failOn > 0 && len(s.batches) == s.failOn {
		return 0, errors.New("disk full")
	}
	var n int64
	for _, t := range txs {
		if _, ok := s.rows[t.RowHash]; ok {
			continue
		}
		s.rows[t.RowHash] = t
		n++
	}
	return n, nil
}

func (s *fakeStore) EnsureCalendar(ctx context.Context, from, to time.Time) (int64, error) {
	s.calCalls++
	s.calFrom, s.calTo = from, to
	return int64(records.DaysBetween(from, to) + 1), nil
}

func day(s string) time.Time {
	t, err := time.Parse(records.DateLayout, s)
	if err != nil {
		panic(err)
	}
	return t
}

func TestStream_DecodesAndRejects(t *testing.T) {
	var txs []records.Transaction
	var rejects []Reject
	err := Stream(context.Background(), io.NopCloser(strings.NewReader(sampleCSV)), Options{Parser: parserOptions()},
		func(tx records.Transaction) error { txs = append(txs, tx); return nil },
		func(r Reject) { rejects = append(rejects, r) })
	require.NoError(t, err)

	require.Len(t, txs, 3)
	first := txs[0]
	assert.Equal(t, int64(10107), first.OrderNumber)
	assert.Equal(t, 2, first.OrderLine)
	assert.Equal(t, int64(30), first.Quantity)
	assert.Equal(t, "2871", first.Sales.String())
	assert.Equal(t, day("2003-02-24"), first.Day())
	assert.Nil(t, first.Territory, "NA reads as null")
	assert.Equal(t, "Motorcycles", first.ProductLine)
	assert.Equal(t, 2, first.MonthID)
	assert.Equal(t, 2003, first.YearID)
	assert.Len(t, first.RowHash, 64)
	require.NotNil(t, txs[1].Territory)
	assert.Equal(t, "EMEA", *txs[1].Territory)

	lines := []int{}
	for _, r := range rejects {
		lines = append(lines, r.Line)
	}
	assert.ElementsMatch(t, []int{5, 6}, lines)
}

func TestStream_JSONMatchesCSV(t *testing.T) {
	const sampleJSON = `{"exported_at": "2005-06-01", "orders": [
  {"ORDERNUMBER": 10107, "QUANTITYORDERED": 30, "ORDERLINENUMBER": 2, "SALES": 2871, "ORDERDATE": "2/24/2003 0:00",
   "MONTH_ID": 2, "YEAR_ID": 2003, "PRODUCTLINE": "Motorcycles", "PRODUCTCODE": "S10_1678",
   "CUSTOMERNAME": "Land of Toys Inc.", "TERRITORY": "NA"},
  {"ORDERNUMBER": 10121, "QUANTITYORDERED": 34, "ORDERLINENUMBER": 5, "SALES": 2765.9, "ORDERDATE": "5/7/2003 0:00",
   "MONTH_ID": 5, "YEAR_ID": 2003, "PRODUCTLINE": "Motorcycles", "PRODUCTCODE": "S10_1678",
   "CUSTOMERNAME": "Reims Collectables", "TERRITORY": "EMEA"},
  {"ORDERNUMBER": 10145, "SALES": "bad"}
]}`
	collect := func(src string, opt config.Options) ([]records.Transaction, []Reject) {
		var txs []records.Transaction
		var rejects []Reject
		err := Stream(context.Background(), io.NopCloser(strings.NewReader(src)), Options{Parser: opt},
			func(tx records.Transaction) error { txs = append(txs, tx); return nil },
			func(r Reject) { rejects = append(rejects, r) })
		require.NoError(t, err)
		return txs, rejects
	}

	opt := parserOptions()
	opt["format"] = "json"
	fromJSON, rejects := collect(sampleJSON, opt)
	fromCSV, _ := collect(sampleCSV, parserOptions())

	require.Len(t, fromJSON, 2)
	require.Len(t, rejects, 1)
	assert.Equal(t, 3, rejects[0].Line)
	for i := range fromJSON {
		assert.Equal(t, fromCSV[i].RowHash, fromJSON[i].RowHash, "record %d", i)
	}
	assert.Nil(t, fromJSON[0].Territory)
}

func TestStream_UnknownFormat(t *testing.T) {
	opt := parserOptions()
	opt["format"] = "parquet"
	err := Stream(context.Background(), io.NopCloser(strings.NewReader(sampleCSV)), Options{Parser: opt},
		func(records.Transaction) error { return nil }, nil)
	assert.ErrorContains(t, err, "unsupported input format")
}

func TestStream_StopsOnCallbackError(t *testing.T) {
	boom := errors.New("stop")
	calls := 0
	err := Stream(context.Background(), io.NopCloser(strings.NewReader(sampleCSV)), Options{Parser: parserOptions(), ChannelBuffer: 1},
		func(records.Transaction) error { calls++; return boom }, nil)
	require.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls)
}

func TestLoader_LoadIsIdempotentAndSeedsCalendar(t *testing.T) {
	store := newFakeStore()
	var logs bytes.Buffer
	l := &Loader{Store: store, Logger: log.New(&logs, "", 0), Opts: Options{Parser: parserOptions(), BatchSize: 2, PadDays: 10}}

	res, err := l.Load(context.Background(), io.NopCloser(strings.NewReader(sampleCSV)))
	require.NoError(t, err)
	assert.EqualValues(t, 3, res.Read)
	assert.EqualValues(t, 3, res.Inserted)
	assert.Len(t, res.Rejected, 2)
	assert.Equal(t, []int{2, 1}, store.batches)
	assert.Equal(t, day("2003-02-24"), store.calFrom)
	assert.Equal(t, day("2003-07-11"), store.calTo)
	assert.Contains(t, logs.String(), "stage=load reject line=5")
	assert.Contains(t, logs.String(), "stage=load ok read=3 inserted=3 rejected=2")

	res, err = l.Load(context.Background(), io.NopCloser(strings.NewReader(sampleCSV)))
	require.NoError(t, err)
	assert.EqualValues(t, 0, res.Inserted, "reload inserts nothing")
	assert.Len(t, store.rows, 3)
}

func TestLoader_CalendarBridgesFromPreviousMax(t *testing.T) {
	store := newFakeStore()
	store.rows["old"] = records.Transaction{RowHash: "old", OrderDate: day("2003-01-10")}

	l := &Loader{Store: store, Opts: Options{Parser: parserOptions()}}
	_, err := l.Load(context.Background(), io.NopCloser(strings.NewReader(sampleCSV)))
	require.NoError(t, err)
	assert.Equal(t, day("2003-01-10"), store.calFrom)
	assert.Equal(t, day("2003-07-01"), store.calTo)
}

func TestLoader_InsertErrorStops(t *testing.T) {
	store := newFakeStore()
	store.failOn = 1
	l := &Loader{Store: store, Opts: Options{Parser: parserOptions(), BatchSize: 1}}

	_, err := l.Load(context.Background(), io.NopCloser(strings.NewReader(sampleCSV)))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.Zero(t, store.calCalls, "calendar is not seeded after a failed load")
}

func TestLoader_EmptyFileSkipsCalendar(t *testing.T) {
	store := newFakeStore()
	l := &Loader{Store: store, Opts: Options{Parser: parserOptions()}}
	res, err := l.Load(context.Background(), io.NopCloser(strings.NewReader("ORDERNUMBER,SALES\n")))
	require.NoError(t, err)
	assert.Zero(t, res.Read)
	assert.Zero(t, store.calCalls)
}

func TestReadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sales.csv")
	require.NoError(t, os.WriteFile(path, []byte(sampleCSV), 0o644))

	txs, rejects, err := ReadFile(context.Background(), path, Options{Parser: parserOptions()})
	require.NoError(t, err)
	assert.Len(t, txs, 3)
	assert.Len(t, rejects, 2)

	_, _, err = ReadFile(context.Background(), filepath.Join(t.TempDir(), "missing.csv"), Options{})
	assert.Error(t, err)
}
