package postgres

import (
	"fmt"
	"strings"

	"salesrollup/internal/storage"
)

// pgTypes maps logical column types to Postgres types.
var pgTypes = map[storage.ColumnType]string{
	storage.TypeText:      "text",
	storage.TypeInt:       "integer",
	storage.TypeBigInt:    "bigint",
	storage.TypeMoney:     "numeric(18,2)",
	storage.TypeDate:      "date",
	storage.TypeTimestamp: "timestamp",
}

// buildInsertSQL constructs a single INSERT statement and its args for Postgres.
//
// Why this exists:
//   - It is pure and deterministic, so we can unit test correctness (especially
//     ON CONFLICT behavior and placeholder numbering) without a database.
//
// Constraints:
//   - rows must have the same length as columns for every row.
//   - columns must be non-empty.
func buildInsertSQL(table string, columns []string, rows [][]any, dedupeColumns []string) (string, []any) {
	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(table)
	b.WriteString(" (")

	for i, c := range columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(pgIdent(c))
	}
	b.WriteString(") VALUES ")

	args := make([]any, 0, len(rows)*len(columns))
	p := 1
	for i, row := range rows {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString("(")
		for j := range columns {
			if j > 0 {
				b.WriteString(", ")
			}
			b.WriteString(fmt.Sprintf("$%d", p))
			args = append(args, row[j])
			p++
		}
		b.WriteString(")")
	}

	// Duplicate keys inside one batch and across reloads are both skipped.
	if len(dedupeColumns) > 0 {
		b.WriteString(" ON CONFLICT (")
		for i, c := range dedupeColumns {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(pgIdent(c))
		}
		b.WriteString(") DO NOTHING")
	}

	b.WriteString(";")
	return b.String(), args
}

// buildCreateSQL generates CREATE TABLE IF NOT EXISTS for t.
func buildCreateSQL(t storage.TableSpec) (string, error) {
	if strings.TrimSpace(t.Name) == "" {
		return "", fmt.Errorf("buildCreateSQL: table name is empty")
	}

	defs := make([]string, 0, len(t.Columns)+1)
	for _, c := range t.Columns {
		typ, ok := pgTypes[c.Type]
		if !ok {
			return "", fmt.Errorf("buildCreateSQL: %s.%s: unsupported type %q", t.Name, c.Name, c.Type)
		}
		def := pgIdent(c.Name) + " " + typ
		if !c.Nullable {
			def += " NOT NULL"
		}
		defs = append(defs, def)
	}
	if len(t.PrimaryKey) > 0 {
		defs = append(defs, fmt.Sprintf("PRIMARY KEY (%s)", identList(t.PrimaryKey)))
	}
	for _, u := range t.Unique {
		defs = append(defs, fmt.Sprintf("UNIQUE (%s)", identList(u)))
	}

	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n  %s\n);", t.Name, strings.Join(defs, ",\n  ")), nil
}

func identList(cols []string) string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = pgIdent(c)
	}
	return strings.Join(out, ", ")
}
