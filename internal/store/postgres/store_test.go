package postgres

import (
	"context"
	"os"
	"testing"

	"garantias/internal/store/storetest"
)

// openTestStore connects to GARANTIAS_TEST_DATABASE_URL or skips the test.
func openTestStore(t *testing.T) *Store {
	t.Helper()
	url := os.Getenv("GARANTIAS_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("GARANTIAS_TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	s, err := Open(ctx, url)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestOpenRequiresURL(t *testing.T) {
	if _, err := Open(context.Background(), " "); err == nil {
		t.Fatal("expected empty url error")
	}
}

func TestIntegration_Conformance(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	if _, err := s.pool.Exec(ctx, "DROP TABLE IF EXISTS "+storetest.Table); err != nil {
		t.Fatalf("drop: %v", err)
	}
	if err := s.EnsureTable(ctx, storetest.Table, "a", "b", "c"); err != nil {
		t.Fatalf("ensure table: %v", err)
	}
	storetest.Run(t, s)
}
