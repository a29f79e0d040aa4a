package mysql

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"

	"salesrollup/internal/storage"
	"salesrollup/internal/storage/sqldb"
)

// Dialect is the MySQL rendition of the shared schema.
//
// Key columns cannot be TEXT in MySQL, so text is VARCHAR(255). MySQL rejects
// a WHERE on a FROM-less SELECT, hence the FROM DUAL in guarded inserts.
var Dialect = sqldb.Dialect{
	Name:        "mysql",
	Placeholder: sqldb.QuestionMark,
	Quote:       backtickIdent,
	Types: map[storage.ColumnType]string{
		storage.TypeText:      "VARCHAR(255)",
		storage.TypeInt:       "INT",
		storage.TypeBigInt:    "BIGINT",
		storage.TypeMoney:     "DECIMAL(18,2)",
		storage.TypeDate:      "DATE",
		storage.TypeTimestamp: "DATETIME(6)",
	},
	CreateTable: sqldb.IfNotExists,
	Text:        func(expr string) string { return "CAST(" + expr + " AS CHAR)" },
	GuardFrom:   "FROM DUAL",
	Day:         sqldb.DayString,
	Timestamp:   sqldb.TimestampString,
	// A prepared statement takes at most 65535 placeholders.
	MaxParams: 60000,
}

func init() {
	storage.Register("mysql", New)
}

// New opens a MySQL database. The DSN uses the driver's form, for example
// "etl:secret@tcp(localhost:3306)/sales".
func New(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
	dsn, err := normalizeDSN(cfg.DSN)
	if err != nil {
		return nil, err
	}
	repo, err := sqldb.Open(ctx, "mysql", dsn, Dialect, cfg.BatchSize)
	if err != nil {
		return nil, err
	}
	repo.DB().SetMaxOpenConns(8)
	repo.DB().SetConnMaxLifetime(5 * time.Minute)
	return repo, nil
}

// normalizeDSN makes DATE and DATETIME columns scan as UTC time.Time.
func normalizeDSN(dsn string) (string, error) {
	c, err := mysql.ParseDSN(strings.TrimSpace(dsn))
	if err != nil {
		return "", fmt.Errorf("mysql: parse dsn: %w", err)
	}
	c.ParseTime = true
	c.Loc = time.UTC
	return c.FormatDSN(), nil
}

// backtickIdent quotes each dot-separated part of name.
func backtickIdent(name string) string {
	parts := strings.Split(name, ".")
	for i := range parts {
		parts[i] = "`" + strings.ReplaceAll(strings.TrimSpace(parts[i]), "`", "``") + "`"
	}
	return strings.Join(parts, ".")
}
