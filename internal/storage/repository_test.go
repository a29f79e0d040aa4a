package storage

import (
	"context"
	"strings"
	"testing"
)

type fakeRepo struct {
	Repository
	dsn string
}

func TestNew_UsesRegisteredFactory(t *testing.T) {
	Register("fake-new", func(ctx context.Context, cfg Config) (Repository, error) {
		return &fakeRepo{dsn: cfg.DSN}, nil
	})

	repo, err := New(context.Background(), Config{Kind: "fake-new", DSN: "mem://x"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	f, ok := repo.(*fakeRepo)
	if !ok {
		t.Fatalf("expected *fakeRepo, got %T", repo)
	}
	if f.dsn != "mem://x" {
		t.Fatalf("expected dsn to be passed through, got %q", f.dsn)
	}
}

func TestNew_RejectsEmptyAndUnknownKind(t *testing.T) {
	if _, err := New(context.Background(), Config{}); err == nil {
		t.Fatalf("expected error for empty kind")
	}
	_, err := New(context.Background(), Config{Kind: "nope"})
	if err == nil || !strings.Contains(err.Error(), "unsupported storage.kind=nope") {
		t.Fatalf("expected unsupported kind error, got %v", err)
	}
}

func TestRegister_PanicsOnDuplicate(t *testing.T) {
	f := func(ctx context.Context, cfg Config) (Repository, error) { return nil, nil }
	Register("fake-dup", f)

	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic on duplicate registration")
		}
	}()
	Register("fake-dup", f)
}

func TestKinds_Sorted(t *testing.T) {
	f := func(ctx context.Context, cfg Config) (Repository, error) { return nil, nil }
	Register("zz-kind", f)
	Register("aa-kind", f)

	kinds := Kinds()
	for i := 1; i < len(kinds); i++ {
		if kinds[i-1] > kinds[i] {
			t.Fatalf("kinds not sorted: %v", kinds)
		}
	}
}

func TestSchema_ColumnOrdersMatchTables(t *testing.T) {
	t.Parallel()

	want := map[string][]string{
		TableTransactions: TransactionColumns,
		TableRollup:       RollupColumns,
		TableRuns:         RunColumns,
	}
	for _, ts := range Schema() {
		cols, ok := want[ts.Name]
		if !ok {
			continue
		}
		got := ts.ColumnNames()
		if strings.Join(got, ",") != strings.Join(cols, ",") {
			t.Fatalf("%s: columns %v, want %v", ts.Name, got, cols)
		}
	}
}
