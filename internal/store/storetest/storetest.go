// Package storetest holds behaviour checks shared by every store.Store
// implementation.
package storetest

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"garantias/internal/store"
)

// Table is the table used by the checks. SQL backends must create it with
// the columns a, b and c (text).
const Table = "conformance"

// Run exercises st. The store must start empty.
func Run(t *testing.T, st store.Store) {
	t.Helper()
	ctx := context.Background()

	rows := []store.Row{
		{"a": "1", "b": "x", "c": "p"},
		{"a": "2", "b": "y", "c": "q"},
		{"a": "3", "b": "x", "c": "r"},
	}

	got, err := st.Query(ctx, Table, nil)
	if err != nil {
		t.Fatalf("query empty: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected empty table, got %v", got)
	}

	if err := st.BulkInsert(ctx, Table, rows[:2]); err != nil {
		t.Fatalf("bulk insert: %v", err)
	}
	if err := st.BulkInsert(ctx, Table, rows[2:]); err != nil {
		t.Fatalf("bulk insert second: %v", err)
	}
	got, err = st.Query(ctx, Table, nil)
	if err != nil {
		t.Fatalf("query all: %v", err)
	}
	if diff := cmp.Diff(rows, got); diff != "" {
		t.Fatalf("insertion order not preserved (-want +got):\n%s", diff)
	}

	got, err = st.Query(ctx, Table, []string{"a"}, store.Filter{Column: "b", Value: "x"})
	if err != nil {
		t.Fatalf("query filtered: %v", err)
	}
	want := []store.Row{{"a": "1"}, {"a": "3"}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("projection/filter mismatch (-want +got):\n%s", diff)
	}

	replacement := []store.Row{{"a": "9", "b": "z", "c": "s"}}
	for i := 0; i < 2; i++ {
		if err := st.ReplaceAll(ctx, Table, replacement); err != nil {
			t.Fatalf("replace all #%d: %v", i, err)
		}
		got, err = st.Query(ctx, Table, nil)
		if err != nil {
			t.Fatalf("query after replace: %v", err)
		}
		if diff := cmp.Diff(replacement, got); diff != "" {
			t.Fatalf("replace #%d not idempotent (-want +got):\n%s", i, diff)
		}
	}

	if err := st.ReplaceAll(ctx, Table, nil); err != nil {
		t.Fatalf("replace with empty: %v", err)
	}
	if got, _ = st.Query(ctx, Table, nil); len(got) != 0 {
		t.Fatalf("expected empty after empty replace, got %v", got)
	}

	if err := st.BulkInsert(ctx, Table, rows); err != nil {
		t.Fatalf("bulk insert again: %v", err)
	}
	if err := st.DeleteAll(ctx, Table); err != nil {
		t.Fatalf("delete all: %v", err)
	}
	if got, _ = st.Query(ctx, Table, nil); len(got) != 0 {
		t.Fatalf("expected empty after delete, got %v", got)
	}

	if _, err := st.Query(ctx, "bad-name;", nil); !errors.Is(err, store.ErrInvalidName) {
		t.Fatalf("expected ErrInvalidName, got %v", err)
	}
	if _, err := st.Query(ctx, Table, []string{"A B"}); !errors.Is(err, store.ErrInvalidName) {
		t.Fatalf("expected ErrInvalidName for column, got %v", err)
	}
}
