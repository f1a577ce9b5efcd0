package store_test

import (
	"context"
	"sync"
	"testing"

	"garantias/internal/store"
	"garantias/internal/store/storetest"
)

func TestMemoryStore_Conformance(t *testing.T) {
	storetest.Run(t, store.NewMemory())
}

func TestPebbleStore_Conformance(t *testing.T) {
	st, err := store.OpenPebble(t.TempDir())
	if err != nil {
		t.Fatalf("pebble open: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	storetest.Run(t, st)
}

func TestPebbleStore_TablesDoNotOverlap(t *testing.T) {
	st, err := store.OpenPebble(t.TempDir())
	if err != nil {
		t.Fatalf("pebble open: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	ctx := context.Background()

	if err := st.BulkInsert(ctx, "orders", []store.Row{{"id": "1"}}); err != nil {
		t.Fatalf("insert orders: %v", err)
	}
	if err := st.BulkInsert(ctx, "orders_archive", []store.Row{{"id": "2"}}); err != nil {
		t.Fatalf("insert archive: %v", err)
	}
	if err := st.ReplaceAll(ctx, "orders", nil); err != nil {
		t.Fatalf("replace orders: %v", err)
	}
	got, err := st.Query(ctx, "orders_archive", nil)
	if err != nil {
		t.Fatalf("query archive: %v", err)
	}
	if len(got) != 1 || got[0]["id"] != "2" {
		t.Fatalf("archive table touched by replace: %v", got)
	}
}

func TestPebbleStore_ReopenKeepsRows(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	st, err := store.OpenPebble(dir)
	if err != nil {
		t.Fatalf("pebble open: %v", err)
	}
	if err := st.ReplaceAll(ctx, "orders", []store.Row{{"id": "1"}, {"id": "2"}}); err != nil {
		t.Fatalf("replace: %v", err)
	}
	if err := st.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	st, err = store.OpenPebble(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	if err := st.BulkInsert(ctx, "orders", []store.Row{{"id": "3"}}); err != nil {
		t.Fatalf("insert after reopen: %v", err)
	}
	got, err := st.Query(ctx, "orders", []string{"id"})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(got) != 3 || got[0]["id"] != "1" || got[2]["id"] != "3" {
		t.Fatalf("unexpected rows after reopen: %v", got)
	}
}

func TestMemoryStore_ConcurrentReplaceAndQuery(t *testing.T) {
	s := store.NewMemory()
	ctx := context.Background()
	batchA := []store.Row{{"v": "a"}, {"v": "a"}}
	batchB := []store.Row{{"v": "b"}, {"v": "b"}, {"v": "b"}}

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				batch := batchA
				if j%2 == 1 {
					batch = batchB
				}
				if err := s.ReplaceAll(ctx, "t", batch); err != nil {
					t.Errorf("replace: %v", err)
					return
				}
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				rows, err := s.Query(ctx, "t", nil)
				if err != nil {
					t.Errorf("query: %v", err)
					return
				}
				// a reader must never see a mix of two generations
				if len(rows) != 0 && len(rows) != 2 && len(rows) != 3 {
					t.Errorf("torn read: %d rows", len(rows))
					return
				}
				for _, r := range rows {
					if r["v"] != rows[0]["v"] {
						t.Errorf("mixed generations: %v", rows)
						return
					}
				}
			}
		}()
	}
	wg.Wait()
}
