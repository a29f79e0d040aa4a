package probe

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"salesrollup/internal/config"
)

const header = "ORDERNUMBER,QUANTITYORDERED,ORDERLINENUMBER,SALES,ORDERDATE,STATUS,MONTH_ID,YEAR_ID,PRODUCTLINE,PRODUCTCODE,CUSTOMERNAME,TERRITORY\n"

func parserOpts(comma string) config.Options {
	hm := make(map[string]any)
	for k, v := range config.DefaultHeaderMap() {
		hm[k] = v
	}
	opt := config.Options{
		"header_map":  hm,
		"null_values": config.DefaultNullValues(),
	}
	if comma != "" {
		opt["comma"] = comma
	}
	return opt
}

func column(t *testing.T, r Result, header string) Column {
	t.Helper()
	for _, c := range r.Columns {
		if c.Header == header {
			return c
		}
	}
	t.Fatalf("no column %q", header)
	return Column{}
}

func TestProbe_SalesExport(t *testing.T) {
	src := header +
		"10100,30,3,5151.00,1/6/2003 0:00,Shipped,1,2003,Vintage Cars,S18_1749,Online Diecast Creations Co.,NA\n" +
		"10100,50,2,1903.22,1/6/2003 0:00,Shipped,1,2003,Vintage Cars,S18_2248,Online Diecast Creations Co.,NA\n" +
		"10101,25,4,3763.50,1/9/2003 0:00,Shipped,1,2003,Vintage Cars,S18_1342,\"Blauer See Auto, Co.\",EMEA\n" +
		"10100,22,3,1729.21,1/6/2003 0:00,Shipped,1,2003,Vintage Cars,S18_1749,Online Diecast Creations Co.,NA\n"

	res, err := Probe(strings.NewReader(src), Options{Parser: parserOpts(",")})
	require.NoError(t, err)

	assert.Equal(t, ',', res.Delimiter)
	assert.Equal(t, 4, res.Rows)
	assert.Zero(t, res.Skipped)
	assert.True(t, res.OK(), "missing %v", res.Missing)
	assert.Equal(t, 1, res.DuplicateLines)
	require.Len(t, res.Columns, 12)

	on := column(t, res, "ORDERNUMBER")
	assert.Equal(t, "order_number", on.Mapped)
	assert.Equal(t, "integer", on.Type)
	assert.Equal(t, 2, on.Distinct)
	assert.Equal(t, "10100", on.Example)

	assert.Equal(t, "float", column(t, res, "SALES").Type)
	assert.Equal(t, "timestamp", column(t, res, "ORDERDATE").Type)

	status := column(t, res, "STATUS")
	assert.Empty(t, status.Mapped)
	assert.Equal(t, "text", status.Type)

	terr := column(t, res, "TERRITORY")
	assert.Equal(t, 3, terr.Nulls)
	assert.Equal(t, 1, terr.Distinct)
	assert.Equal(t, "EMEA", terr.Example)

	assert.Equal(t, "Blauer See Auto, Co.", column(t, res, "CUSTOMERNAME").Example)
}

func TestProbe_SniffsDelimiterAndReportsMissing(t *testing.T) {
	src := "ORDERNUMBER;ORDERDATE;SALES\n10100;2003-01-06;12,5\n10101;2003-01-07;7\n"

	res, err := Probe(strings.NewReader(src), Options{Parser: parserOpts("")})
	require.NoError(t, err)

	assert.Equal(t, ';', res.Delimiter)
	assert.Equal(t, 2, res.Rows)
	assert.False(t, res.OK())
	assert.Contains(t, res.Missing, "product_code")
	assert.Contains(t, res.Missing, "order_line")
	assert.NotContains(t, res.Missing, "row_hash")
	assert.NotContains(t, res.Missing, "order_date")
	// Without order_line there is nothing to check for duplicates.
	assert.Zero(t, res.DuplicateLines)

	assert.Equal(t, "timestamp", column(t, res, "ORDERDATE").Type)
	assert.Equal(t, "text", column(t, res, "SALES").Type)
}

func TestProbe_SkipsRaggedRows(t *testing.T) {
	src := "a,b\n1,2\n3\n4,5,6\n7,8\n"
	res, err := Probe(strings.NewReader(src), Options{Parser: parserOpts(",")})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Rows)
	assert.Equal(t, 2, res.Skipped)
}

func TestProbe_CutsSampleAtLastFullLine(t *testing.T) {
	var b bytes.Buffer
	b.WriteString("ORDERNUMBER,SALES\n")
	for i := 0; i < 100; i++ {
		b.WriteString("10100,1.50\n")
	}
	// 18 header bytes + 5 full rows of 11 bytes + 4 bytes of the sixth.
	res, err := Probe(bytes.NewReader(b.Bytes()), Options{Parser: parserOpts(","), MaxBytes: 18 + 5*11 + 4})
	require.NoError(t, err)
	assert.Equal(t, 5, res.Rows)
	assert.Zero(t, res.Skipped)
}

func TestProbe_DecodesLatin1AndStripsBOM(t *testing.T) {
	// A UTF-8 BOM, then a latin-1 row.
	src := []byte("\xef\xbb\xbfCUSTOMERNAME\n")
	res, err := Probe(bytes.NewReader(append(src, []byte("Caf\xe9 Royale\n")...)), Options{Parser: parserOpts(",")})
	require.NoError(t, err)
	c := column(t, res, "CUSTOMERNAME")
	assert.Equal(t, "customer_name", c.Mapped)
	// Without an encoding the bytes pass through undecoded.
	assert.NotEqual(t, "Café Royale", c.Example)

	opt := parserOpts(",")
	opt["encoding"] = "latin1"
	res, err = Probe(strings.NewReader("CUSTOMERNAME\nCaf\xe9 Royale\n"), Options{Parser: opt})
	require.NoError(t, err)
	assert.Equal(t, "Café Royale", column(t, res, "CUSTOMERNAME").Example)
}

func TestProbe_Errors(t *testing.T) {
	_, err := Probe(strings.NewReader("  \n"), Options{Parser: parserOpts(",")})
	assert.ErrorContains(t, err, "empty sample")

	opt := parserOpts(",")
	opt["encoding"] = "ebcdic"
	_, err = Probe(strings.NewReader("a\n1\n"), Options{Parser: opt})
	assert.ErrorContains(t, err, "unsupported encoding")
}

func TestResultTable(t *testing.T) {
	res := Result{Columns: []Column{{Header: "SALES", Mapped: "sales", Type: "float", Nulls: 1, Distinct: 3, Example: "1.50"}}}
	tbl := res.Table()
	assert.Equal(t, "probe", tbl.Name)
	assert.Equal(t, []string{"header", "mapped_to", "type", "nulls", "distinct", "example"}, tbl.Header)
	require.Len(t, tbl.Rows, 1)
	assert.Equal(t, []any{"SALES", "sales", "float", 1, 3, "1.50"}, tbl.Rows[0])
}
