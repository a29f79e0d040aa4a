package duckdb

import (
	"context"

	_ "github.com/marcboeker/go-duckdb"

	"salesrollup/internal/storage"
	"salesrollup/internal/storage/sqldb"
)

// Dialect is the DuckDB rendition of the shared schema.
//
// go-duckdb scans DECIMAL columns into its own Decimal type, so money is cast
// to VARCHAR on the way out and parsed with shopspring/decimal.
var Dialect = sqldb.Dialect{
	Name:        "duckdb",
	Placeholder: sqldb.QuestionMark,
	Quote:       sqldb.DoubleQuote,
	Types: map[storage.ColumnType]string{
		storage.TypeText:      "VARCHAR",
		storage.TypeInt:       "INTEGER",
		storage.TypeBigInt:    "BIGINT",
		storage.TypeMoney:     "DECIMAL(18,2)",
		storage.TypeDate:      "DATE",
		storage.TypeTimestamp: "TIMESTAMP",
	},
	CreateTable: sqldb.IfNotExists,
	Text:        func(expr string) string { return "CAST(" + expr + " AS VARCHAR)" },
	Day:         sqldb.UTCTime,
	Timestamp:   sqldb.UTCTime,
	MaxParams:   30000,
}

func init() {
	storage.Register("duckdb", New)
}

// New opens a DuckDB database file. An empty DSN opens an in-memory database.
//
// DuckDB is a single-process engine; one connection keeps an in-memory
// database shared across queries.
func New(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
	repo, err := sqldb.Open(ctx, "duckdb", cfg.DSN, Dialect, cfg.BatchSize)
	if err != nil {
		return nil, err
	}
	repo.DB().SetMaxOpenConns(1)
	return repo, nil
}
