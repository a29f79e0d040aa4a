package mssql

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/microsoft/go-mssqldb"

	"salesrollup/internal/storage"
	"salesrollup/internal/storage/sqldb"
)

// Dialect is the SQL Server rendition of the shared schema.
//
// SQL Server has no ON CONFLICT; every idempotent insert goes through the
// shared INSERT ... SELECT ... WHERE NOT EXISTS form. Dates and timestamps
// are bound as ISO text, which SQL Server converts implicitly and without
// regional ambiguity.
var Dialect = sqldb.Dialect{
	Name:        "mssql",
	Placeholder: func(n int) string { return "@p" + strconv.Itoa(n) },
	Quote:       bracketIdent,
	Types: map[storage.ColumnType]string{
		storage.TypeText:      "NVARCHAR(200)",
		storage.TypeInt:       "INT",
		storage.TypeBigInt:    "BIGINT",
		storage.TypeMoney:     "DECIMAL(18,2)",
		storage.TypeDate:      "DATE",
		storage.TypeTimestamp: "DATETIME2",
	},
	CreateTable: createIfMissing,
	Text:        func(expr string) string { return "CAST(" + expr + " AS VARCHAR(40))" },
	Day:         sqldb.DayString,
	Timestamp:   isoTimestamp,
	// SQL Server caps a request at 2100 parameters and a VALUES list at 1000 rows.
	MaxParams: 2000,
	MaxRows:   1000,
}

func init() {
	storage.Register("mssql", New)
}

// New opens a SQL Server database using the "sqlserver" driver registered by
// github.com/microsoft/go-mssqldb and validates connectivity via PingContext.
func New(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
	repo, err := sqldb.Open(ctx, "sqlserver", cfg.DSN, Dialect, cfg.BatchSize)
	if err != nil {
		return nil, err
	}
	repo.DB().SetMaxOpenConns(8)
	return repo, nil
}

// bracketIdent returns a bracket-quoted identifier.
//
// Example:
//
//	"dbo.sales_data" -> [dbo].[sales_data]
func bracketIdent(name string) string {
	parts := strings.Split(name, ".")
	for i := range parts {
		parts[i] = "[" + strings.ReplaceAll(strings.TrimSpace(parts[i]), "]", "]]") + "]"
	}
	return strings.Join(parts, ".")
}

// createIfMissing guards CREATE TABLE with OBJECT_ID, since SQL Server has no
// CREATE TABLE IF NOT EXISTS.
func createIfMissing(table, body string) string {
	return fmt.Sprintf("IF OBJECT_ID(N'%s', N'U') IS NULL\nCREATE TABLE %s (\n  %s\n)",
		strings.ReplaceAll(table, "'", "''"), bracketIdent(table), body)
}

// isoTimestamp binds a timestamp as ISO 8601 text; DATETIME2 keeps the
// fractional seconds.
func isoTimestamp(t time.Time) any { return t.UTC().Format("2006-01-02T15:04:05.0000000") }
