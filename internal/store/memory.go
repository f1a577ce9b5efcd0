package store

import (
	"context"
	"sync"
)

// MemoryStore is a simple thread-safe table map.
type MemoryStore struct {
	mu     sync.RWMutex
	tables map[string][]Row
}

func NewMemory() *MemoryStore {
	return &MemoryStore{tables: make(map[string][]Row)}
}

func (s *MemoryStore) Query(ctx context.Context, table string, columns []string, filters ...Filter) ([]Row, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := ValidateQuery(table, columns, filters); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Row
	for _, r := range s.tables[table] {
		if Matches(r, filters) {
			out = append(out, Project(r, columns))
		}
	}
	return out, nil
}

func (s *MemoryStore) DeleteAll(ctx context.Context, table string) error {
	if err := ValidateNames(table, nil); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tables, table)
	return nil
}

func (s *MemoryStore) BulkInsert(ctx context.Context, table string, rows []Row) error {
	if err := ValidateNames(table, Columns(rows)); err != nil {
		return err
	}
	cp := copyRows(rows)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tables[table] = append(s.tables[table], cp...)
	return nil
}

// ReplaceAll swaps the table slice under the write lock.
func (s *MemoryStore) ReplaceAll(ctx context.Context, table string, rows []Row) error {
	if err := ValidateNames(table, Columns(rows)); err != nil {
		return err
	}
	cp := copyRows(rows)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tables[table] = cp
	return nil
}

func (s *MemoryStore) Close() error { return nil }

func copyRows(rows []Row) []Row {
	out := make([]Row, len(rows))
	for i, r := range rows {
		out[i] = Project(r, nil)
	}
	return out
}
