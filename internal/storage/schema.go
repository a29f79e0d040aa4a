// The table layout lives here so every backend creates the same tables from
// one description and only maps logical column types to its own dialect.
package storage

// Table names.
const (
	TableTransactions = "sales_data"
	TableCalendar     = "d_date"
	TableRollup       = "f_sales_daily_rollup"
	TableRuns         = "rollup_runs"
)

// ColumnType is a logical column type. Backends map it to a concrete SQL type.
type ColumnType string

const (
	TypeText      ColumnType = "text"
	TypeInt       ColumnType = "int"
	TypeBigInt    ColumnType = "bigint"
	TypeMoney     ColumnType = "money"
	TypeDate      ColumnType = "date"
	TypeTimestamp ColumnType = "timestamp"
)

type TableSpec struct {
	Name       string
	Columns    []ColumnSpec
	PrimaryKey []string
	Unique     [][]string
}

type ColumnSpec struct {
	Name     string
	Type     ColumnType
	Nullable bool
}

// ColumnNames returns the column names in declaration order.
func (t TableSpec) ColumnNames() []string {
	out := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		out[i] = c.Name
	}
	return out
}

// TransactionColumns is the insert column order of sales_data.
var TransactionColumns = []string{
	"row_hash", "order_number", "order_line", "customer_name", "product_code",
	"order_date", "quantity_ordered", "sales", "territory", "product_line",
	"month_id", "year_id",
}

// RollupColumns is the insert column order of f_sales_daily_rollup.
var RollupColumns = []string{"date_actual", "product_code", "total_sales", "sales_to_date", "sales_45d"}

// RunColumns is the insert column order of rollup_runs.
var RunColumns = []string{"run_id", "kind", "target_date", "rows_written", "started_at", "finished_at"}

// Schema returns the tables in creation order.
func Schema() []TableSpec {
	return []TableSpec{
		{
			Name: TableTransactions,
			Columns: []ColumnSpec{
				{Name: "row_hash", Type: TypeText},
				{Name: "order_number", Type: TypeBigInt},
				{Name: "order_line", Type: TypeInt},
				{Name: "customer_name", Type: TypeText},
				{Name: "product_code", Type: TypeText},
				{Name: "order_date", Type: TypeTimestamp},
				{Name: "quantity_ordered", Type: TypeBigInt},
				{Name: "sales", Type: TypeMoney},
				{Name: "territory", Type: TypeText, Nullable: true},
				{Name: "product_line", Type: TypeText},
				{Name: "month_id", Type: TypeInt},
				{Name: "year_id", Type: TypeInt},
			},
			PrimaryKey: []string{"row_hash"},
		},
		{
			Name:       TableCalendar,
			Columns:    []ColumnSpec{{Name: "date_actual", Type: TypeDate}},
			PrimaryKey: []string{"date_actual"},
		},
		{
			Name: TableRollup,
			Columns: []ColumnSpec{
				{Name: "date_actual", Type: TypeDate},
				{Name: "product_code", Type: TypeText},
				{Name: "total_sales", Type: TypeMoney},
				{Name: "sales_to_date", Type: TypeMoney},
				{Name: "sales_45d", Type: TypeMoney},
			},
			PrimaryKey: []string{"date_actual", "product_code"},
		},
		{
			Name: TableRuns,
			Columns: []ColumnSpec{
				{Name: "run_id", Type: TypeText},
				{Name: "kind", Type: TypeText},
				{Name: "target_date", Type: TypeDate},
				{Name: "rows_written", Type: TypeBigInt},
				{Name: "started_at", Type: TypeTimestamp},
				{Name: "finished_at", Type: TypeTimestamp},
			},
			PrimaryKey: []string{"run_id"},
		},
	}
}
