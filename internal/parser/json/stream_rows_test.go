package json

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"salesrollup/internal/config"
	"salesrollup/internal/transformer"
)

var columns = []string{"order_number", "sales", "customer_name", "territory"}

func options() config.Options {
	return config.Options{
		"header_map": map[string]any{
			"ORDERNUMBER":  "order_number",
			"SALES":        "sales",
			"CUSTOMERNAME": "customer_name",
			"TERRITORY":    "territory",
		},
		"null_values": []any{"NA", "NULL"},
	}
}

type parseErr struct {
	line int
	msg  string
}

// run streams input and collects every row and error callback.
func run(t *testing.T, input string, opt config.Options) ([][]any, []int, []parseErr, error) {
	t.Helper()
	out := make(chan *transformer.Row, 64)
	var errs []parseErr
	err := StreamJSONRows(context.Background(), io.NopCloser(strings.NewReader(input)), columns, opt, out, func(line int, err error) {
		errs = append(errs, parseErr{line, err.Error()})
	})
	close(out)
	var rows [][]any
	var lines []int
	for r := range out {
		rows = append(rows, append([]any(nil), r.V...))
		lines = append(lines, r.Line)
		r.Free()
	}
	return rows, lines, errs, err
}

func TestStreamJSONRows_RootArrayAndTrailingLines(t *testing.T) {
	input := `[
	  {"ORDERNUMBER": 10107, "SALES": 2871.00, "CUSTOMERNAME": " Land of Toys Inc. ", "TERRITORY": "NA"},
	  null,
	  {"ORDERNUMBER": 10121, "SALES": "2765.9", "CUSTOMERNAME": "Reims Collectables", "TERRITORY": "EMEA", "STATUS": "Shipped"}
	]
	{"ORDERNUMBER": 10134, "CUSTOMERNAME": "Lyon Souveniers", "TERRITORY": null}`

	rows, lines, errs, err := run(t, input, options())
	require.NoError(t, err)
	assert.Empty(t, errs)
	assert.Equal(t, []int{1, 2, 3}, lines)
	assert.Equal(t, [][]any{
		{"10107", "2871.00", "Land of Toys Inc.", nil},
		{"10121", "2765.9", "Reims Collectables", "EMEA"},
		{"10134", nil, "Lyon Souveniers", nil},
	}, rows)
}

func TestStreamJSONRows_Envelope(t *testing.T) {
	input := `{"exported_at": "2005-06-01", "count": 2, "orders": [
	  {"order_number": 1, "customer_name": "A"},
	  {"order_number": 2, "customer_name": "B"}
	], "next": {"page": 2}}`

	rows, _, errs, err := run(t, input, options())
	require.NoError(t, err)
	assert.Empty(t, errs)
	assert.Equal(t, [][]any{
		{"1", nil, "A", nil},
		{"2", nil, "B", nil},
	}, rows)
}

func TestStreamJSONRows_SingleObjectAndJSONLines(t *testing.T) {
	input := "{\"ORDERNUMBER\": 1, \"TERRITORY\": \"APAC\", \"extra\": {\"nested\": [1, 2]}}\n" +
		"{\"ORDERNUMBER\": 2}\n"

	rows, lines, _, err := run(t, input, options())
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, lines)
	assert.Equal(t, [][]any{
		{"1", nil, nil, "APAC"},
		{"2", nil, nil, nil},
	}, rows)
}

func TestStreamJSONRows_ExactColumnNameWins(t *testing.T) {
	rows, _, _, err := run(t, `[{"SALES": 1, "sales": 2}]`, options())
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "2", rows[0][1])
}

func TestStreamJSONRows_RejectsNestedValue(t *testing.T) {
	input := `[{"ORDERNUMBER": 1, "SALES": {"amount": 3}}, {"ORDERNUMBER": 2}]`

	rows, _, errs, err := run(t, input, options())
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "2", rows[0][0])
	require.Len(t, errs, 1)
	assert.Equal(t, 1, errs[0].line)
	assert.Contains(t, errs[0].msg, "sales")
}

func TestStreamJSONRows_Errors(t *testing.T) {
	cases := []struct {
		name  string
		input string
		want  string
	}{
		{"scalar root", `42`, "unsupported root token"},
		{"non-object element", `[{"ORDERNUMBER": 1}, "x"]`, "want object"},
		{"truncated", `[{"ORDERNUMBER": 1}, {"ORDERNUMBER"`, "decode array element"},
		{"bad trailing line", "[]\n{oops}", "decode record"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, _, errs, err := run(t, tc.input, options())
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
			assert.Len(t, errs, 1)
		})
	}
}

func TestStreamJSONRows_EmptyInput(t *testing.T) {
	rows, _, errs, err := run(t, "", options())
	require.NoError(t, err)
	assert.Empty(t, rows)
	assert.Empty(t, errs)
}

func TestStreamJSONRows_Latin1(t *testing.T) {
	opt := options()
	opt["encoding"] = "latin1"
	rows, _, _, err := run(t, "[{\"CUSTOMERNAME\": \"Caf\xe9\"}]", opt)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "Café", rows[0][2])
}

func TestStreamJSONRows_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	out := make(chan *transformer.Row)
	err := StreamJSONRows(ctx, io.NopCloser(strings.NewReader(`[{"ORDERNUMBER": 1}]`)), columns, options(), out, nil)
	assert.ErrorIs(t, err, context.Canceled)
}
