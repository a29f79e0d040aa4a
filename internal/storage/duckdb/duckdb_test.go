package duckdb

import (
	"strings"
	"testing"

	"salesrollup/internal/storage"
)

func TestDialect_CoversEveryColumnType(t *testing.T) {
	t.Parallel()

	for _, ts := range storage.Schema() {
		ddl, err := Dialect.BuildCreateSQL(ts)
		if err != nil {
			t.Fatalf("%s: %v", ts.Name, err)
		}
		if !strings.HasPrefix(ddl, "CREATE TABLE IF NOT EXISTS "+ts.Name) {
			t.Fatalf("%s: unexpected ddl %q", ts.Name, ddl)
		}
	}
}

func TestDialect_TextCast(t *testing.T) {
	t.Parallel()

	if got := Dialect.Text(`"sales_45d"`); got != `CAST("sales_45d" AS VARCHAR)` {
		t.Fatalf("Text=%q", got)
	}
}
