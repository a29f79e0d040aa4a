// Package sqldb implements storage.Repository on database/sql. The SQLite,
// SQL Server, MySQL and DuckDB backends share it and differ only by Dialect.
//
// Money columns are read back as text and summed in Go with decimal, so the
// result does not depend on how a backend stores or aggregates numerics.
package sqldb

import (
	"fmt"
	"strings"
	"time"

	"salesrollup/internal/storage"
)

// Dialect captures the SQL differences between database/sql backends.
type Dialect struct {
	// Name is used in error messages ("sqlite", "mssql", ...).
	Name string

	// Placeholder renders the n-th (1-based) bind parameter.
	Placeholder func(n int) string

	// Quote quotes an identifier.
	Quote func(ident string) string

	// Types maps logical column types to SQL types.
	Types map[storage.ColumnType]string

	// CreateTable wraps a column/constraint body into an idempotent CREATE.
	CreateTable func(table, body string) string

	// Text wraps a column expression so it scans as a string. Nil means the
	// column is already stored as text.
	Text func(expr string) string

	// GuardFrom is placed between the guarded insert's SELECT list and its
	// WHERE, for backends that reject a WHERE without FROM ("FROM DUAL").
	GuardFrom string

	// Day and Timestamp convert bind values for date and timestamp columns.
	Day       func(t time.Time) any
	Timestamp func(t time.Time) any

	// MaxParams bounds the bind parameters of one statement.
	MaxParams int
	// MaxRows bounds the rows of one multi-row VALUES list (0 = no limit).
	MaxRows int
}

// QuestionMark renders "?" for every parameter.
func QuestionMark(int) string { return "?" }

// DoubleQuote quotes an identifier with ANSI double quotes.
func DoubleQuote(id string) string { return `"` + strings.ReplaceAll(id, `"`, `""`) + `"` }

// IfNotExists is the ANSI CREATE TABLE IF NOT EXISTS form.
func IfNotExists(table, body string) string {
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n  %s\n)", table, body)
}

// DayString binds a date as YYYY-MM-DD text.
func DayString(t time.Time) any { return t.UTC().Format("2006-01-02") }

// TimestampString binds a timestamp as fixed-width "YYYY-MM-DD
// HH:MM:SS.ffffff" text, which sorts lexically in time order.
func TimestampString(t time.Time) any { return t.UTC().Format("2006-01-02 15:04:05.000000") }

// UTCTime binds a time.Time in UTC.
func UTCTime(t time.Time) any { return t.UTC() }

func (d Dialect) text(expr string) string {
	if d.Text == nil {
		return expr
	}
	return d.Text(expr)
}

// BuildCreateSQL renders the CREATE statement for t.
func (d Dialect) BuildCreateSQL(t storage.TableSpec) (string, error) {
	if strings.TrimSpace(t.Name) == "" {
		return "", fmt.Errorf("table name is empty")
	}
	parts := make([]string, 0, len(t.Columns)+1+len(t.Unique))
	for _, c := range t.Columns {
		typ, ok := d.Types[c.Type]
		if !ok {
			return "", fmt.Errorf("%s: %s.%s: unsupported column type %q", d.Name, t.Name, c.Name, c.Type)
		}
		col := d.Quote(c.Name) + " " + typ
		if !c.Nullable {
			col += " NOT NULL"
		}
		parts = append(parts, col)
	}
	if len(t.PrimaryKey) > 0 {
		parts = append(parts, fmt.Sprintf("PRIMARY KEY (%s)", d.identList(t.PrimaryKey)))
	}
	for _, u := range t.Unique {
		parts = append(parts, fmt.Sprintf("UNIQUE (%s)", d.identList(u)))
	}
	return d.CreateTable(t.Name, strings.Join(parts, ",\n  ")), nil
}

func (d Dialect) identList(cols []string) string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = d.Quote(c)
	}
	return strings.Join(out, ", ")
}

// placeholders renders n consecutive parameters starting at first.
func (d Dialect) placeholders(first, n int) string {
	var b strings.Builder
	for i := 0; i < n; i++ {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(d.Placeholder(first + i))
	}
	return b.String()
}

// buildGuardedInsertSQL renders a single-row insert that is a no-op when a
// row with the same key already exists:
//
//	INSERT INTO t (c1, ..) SELECT ?, .. WHERE NOT EXISTS (SELECT 1 FROM t WHERE k1 = ? ..)
//
// Arguments are the column values followed by the key values.
func (d Dialect) buildGuardedInsertSQL(table string, columns, key []string) string {
	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(table)
	b.WriteString(" (")
	b.WriteString(d.identList(columns))
	b.WriteString(") SELECT ")
	b.WriteString(d.placeholders(1, len(columns)))
	if d.GuardFrom != "" {
		b.WriteString(" ")
		b.WriteString(d.GuardFrom)
	}
	b.WriteString(" WHERE NOT EXISTS (SELECT 1 FROM ")
	b.WriteString(table)
	b.WriteString(" WHERE ")
	for i, k := range key {
		if i > 0 {
			b.WriteString(" AND ")
		}
		b.WriteString(d.Quote(k))
		b.WriteString(" = ")
		b.WriteString(d.Placeholder(len(columns) + i + 1))
	}
	b.WriteString(")")
	return b.String()
}

// buildInsertSQL renders a multi-row VALUES insert for nrows rows.
func (d Dialect) buildInsertSQL(table string, columns []string, nrows int) string {
	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(table)
	b.WriteString(" (")
	b.WriteString(d.identList(columns))
	b.WriteString(") VALUES ")
	p := 1
	for i := 0; i < nrows; i++ {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString("(")
		b.WriteString(d.placeholders(p, len(columns)))
		b.WriteString(")")
		p += len(columns)
	}
	return b.String()
}

// chunkRows returns how many rows of width cols fit one statement.
func (d Dialect) chunkRows(cols, batch int) int {
	n := batch
	if d.MaxParams > 0 && cols > 0 {
		if lim := d.MaxParams / cols; n <= 0 || lim < n {
			n = lim
		}
	}
	if d.MaxRows > 0 && (n <= 0 || d.MaxRows < n) {
		n = d.MaxRows
	}
	if n <= 0 {
		n = 500
	}
	return n
}
