package sqlite

import (
	"context"
	"strings"

	_ "modernc.org/sqlite"

	"salesrollup/internal/storage"
	"salesrollup/internal/storage/sqldb"
)

// Dialect is the SQLite rendition of the shared schema.
//
// SQLite has no native DATE, TIMESTAMPTZ or DECIMAL type. modernc.org/sqlite
// also tries to parse TEXT values of DATE-declared columns into time.Time,
// so every such column is declared TEXT and bound as a sortable string:
//   - dates as YYYY-MM-DD
//   - timestamps as "YYYY-MM-DD HH:MM:SS.ffffff"
//   - money as its exact decimal string
var Dialect = sqldb.Dialect{
	Name:        "sqlite",
	Placeholder: sqldb.QuestionMark,
	Quote:       sqldb.DoubleQuote,
	Types: map[storage.ColumnType]string{
		storage.TypeText:      "TEXT",
		storage.TypeInt:       "INTEGER",
		storage.TypeBigInt:    "INTEGER",
		storage.TypeMoney:     "TEXT",
		storage.TypeDate:      "TEXT",
		storage.TypeTimestamp: "TEXT",
	},
	CreateTable: sqldb.IfNotExists,
	Day:         sqldb.DayString,
	Timestamp:   sqldb.TimestampString,
	MaxParams:   32000,
}

func init() {
	storage.Register("sqlite", New)
}

// New opens a SQLite database. An empty DSN opens a private in-memory
// database.
//
// SQLite allows one writer at a time, and each connection to ":memory:" is a
// separate database, so the pool is pinned to a single connection.
func New(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		dsn = ":memory:"
	}
	repo, err := sqldb.Open(ctx, "sqlite", dsn, Dialect, cfg.BatchSize)
	if err != nil {
		return nil, err
	}
	repo.DB().SetMaxOpenConns(1)
	return repo, nil
}
