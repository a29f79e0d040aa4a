package export

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func sample() Table {
	terr := "EMEA"
	return Table{
		Name:   "customer_lifetime",
		Header: []string{"customer", "first_order", "total_sales", "territory", "months"},
		Rows: [][]any{
			{"Euro Shopping Channel", time.Date(2003, 1, 31, 0, 0, 0, 0, time.UTC), decimal.RequireFromString("912294.11"), &terr, 26},
			{"Mini Gifts, Ltd.", time.Date(2003, 2, 1, 10, 30, 0, 0, time.UTC), decimal.RequireFromString("654858.06"), nil, int64(20)},
		},
	}
}

func TestFormatCell(t *testing.T) {
	tests := []struct {
		in   any
		want string
	}{
		{nil, ""},
		{"x", "x"},
		{3, "3"},
		{int64(4), "4"},
		{2.5, "2.5"},
		{decimal.RequireFromString("10.50"), "10.5"},
		{time.Date(2003, 1, 31, 0, 0, 0, 0, time.UTC), "2003-01-31"},
		{time.Date(2003, 1, 31, 8, 0, 0, 0, time.UTC), "2003-01-31 08:00:00"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatCell(tt.in))
	}
}

func TestWriteCSVFiles(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	paths, err := WriteCSVFiles(dir, sample())
	require.NoError(t, err)
	require.Len(t, paths, 1)

	b, err := os.ReadFile(paths[0])
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(b)), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "customer,first_order,total_sales,territory,months", lines[0])
	assert.Equal(t, "Euro Shopping Channel,2003-01-31,912294.11,EMEA,26", lines[1])
	assert.Equal(t, `"Mini Gifts, Ltd.",2003-02-01 10:30:00,654858.06,,20`, lines[2])
}

func TestWriteXLSX(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reports.xlsx")
	other := Table{Name: strings.Repeat("x", 40), Header: []string{"a"}, Rows: [][]any{{1}}}
	require.NoError(t, WriteXLSX(path, sample(), other))

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{"customer_lifetime", strings.Repeat("x", 31)}, f.GetSheetList())
	v, err := f.GetCellValue("customer_lifetime", "A2")
	require.NoError(t, err)
	assert.Equal(t, "Euro Shopping Channel", v)
	v, err = f.GetCellValue("customer_lifetime", "B2")
	require.NoError(t, err)
	assert.Equal(t, "2003-01-31", v)
	v, err = f.GetCellValue("customer_lifetime", "C3")
	require.NoError(t, err)
	assert.Equal(t, "654858.06", v)
}

func TestRender(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Render(&buf, sample(), "table"))
	out := buf.String()
	assert.Contains(t, out, "Euro Shopping Channel")
	assert.Contains(t, out, "(2 rows)")

	buf.Reset()
	require.NoError(t, Render(&buf, sample(), "markdown"))
	assert.Contains(t, buf.String(), "| Euro Shopping Channel |")

	buf.Reset()
	require.NoError(t, Render(&buf, sample(), "csv"))
	assert.True(t, strings.HasPrefix(buf.String(), "customer,first_order"))
}
