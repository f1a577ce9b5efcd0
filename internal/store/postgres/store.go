// Package postgres provides a pgx-backed record store.
package postgres

import (
	"context"
	_ "embed"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"garantias/internal/store"
)

//go:embed schema.sql
var schemaSQL string

// Store persists tables in PostgreSQL. Each table carries a bigserial seq
// column that orders query results; every other column is TEXT.
type Store struct {
	pool *pgxpool.Pool
}

// Open connects to databaseURL and creates the schema if missing.
func Open(ctx context.Context, databaseURL string) (*Store, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, fmt.Errorf("database url is required")
	}
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, store.BackendError("connect", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, store.BackendError("ping", err)
	}
	if _, err := pool.Exec(ctx, schemaSQL); err != nil {
		pool.Close()
		return nil, store.BackendError("create schema", err)
	}
	return &Store{pool: pool}, nil
}

// New wraps an existing pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) Close() error {
	if s != nil && s.pool != nil {
		s.pool.Close()
	}
	return nil
}

// EnsureTable creates a table with a seq column plus the given TEXT columns.
func (s *Store) EnsureTable(ctx context.Context, table string, columns ...string) error {
	if err := store.ValidateNames(table, columns); err != nil {
		return err
	}
	defs := []string{"seq BIGSERIAL PRIMARY KEY"}
	for _, c := range columns {
		defs = append(defs, pgx.Identifier{c}.Sanitize()+" TEXT")
	}
	q := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", pgx.Identifier{table}.Sanitize(), strings.Join(defs, ", "))
	if _, err := s.pool.Exec(ctx, q); err != nil {
		return store.BackendError("create table", err)
	}
	return nil
}

func (s *Store) Query(ctx context.Context, table string, columns []string, filters ...store.Filter) ([]store.Row, error) {
	if err := store.ValidateQuery(table, columns, filters); err != nil {
		return nil, err
	}
	if len(columns) == 0 {
		cols, err := s.tableColumns(ctx, table)
		if err != nil {
			return nil, err
		}
		columns = cols
	}
	quoted := make([]string, len(columns))
	for i, c := range columns {
		quoted[i] = pgx.Identifier{c}.Sanitize()
	}
	q := fmt.Sprintf("SELECT %s FROM %s", strings.Join(quoted, ", "), pgx.Identifier{table}.Sanitize())
	args := make([]any, 0, len(filters))
	if len(filters) > 0 {
		conds := make([]string, len(filters))
		for i, f := range filters {
			args = append(args, f.Value)
			conds[i] = fmt.Sprintf("%s = $%d", pgx.Identifier{f.Column}.Sanitize(), i+1)
		}
		q += " WHERE " + strings.Join(conds, " AND ")
	}
	q += " ORDER BY seq"

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, store.BackendError("query "+table, err)
	}
	defer rows.Close()
	var out []store.Row
	for rows.Next() {
		vals := make([]*string, len(columns))
		ptrs := make([]any, len(columns))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, store.BackendError("scan", err)
		}
		r := make(store.Row, len(columns))
		for i, c := range columns {
			if vals[i] != nil {
				r[c] = *vals[i]
			}
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, store.BackendError("iterate", err)
	}
	return out, nil
}

// tableColumns lists the TEXT columns of table, excluding seq.
func (s *Store) tableColumns(ctx context.Context, table string) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT column_name FROM information_schema.columns
		 WHERE table_schema = current_schema() AND table_name = $1 AND column_name <> 'seq'
		 ORDER BY ordinal_position`, table)
	if err != nil {
		return nil, store.BackendError("list columns", err)
	}
	cols, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, store.BackendError("list columns", err)
	}
	if len(cols) == 0 {
		return nil, store.BackendError("list columns", fmt.Errorf("table %s does not exist", table))
	}
	return cols, nil
}

func (s *Store) DeleteAll(ctx context.Context, table string) error {
	if err := store.ValidateNames(table, nil); err != nil {
		return err
	}
	if _, err := s.pool.Exec(ctx, "DELETE FROM "+pgx.Identifier{table}.Sanitize()); err != nil {
		return store.BackendError("delete "+table, err)
	}
	return nil
}

func (s *Store) BulkInsert(ctx context.Context, table string, rows []store.Row) error {
	return s.inTx(ctx, func(tx pgx.Tx) error {
		return copyRows(ctx, tx, table, rows)
	})
}

// ReplaceAll deletes and copies the new rows inside one transaction.
func (s *Store) ReplaceAll(ctx context.Context, table string, rows []store.Row) error {
	if err := store.ValidateNames(table, nil); err != nil {
		return err
	}
	return s.inTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, "DELETE FROM "+pgx.Identifier{table}.Sanitize()); err != nil {
			return store.BackendError("delete "+table, err)
		}
		return copyRows(ctx, tx, table, rows)
	})
}

func (s *Store) inTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return store.BackendError("begin", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return store.BackendError("commit", err)
	}
	return nil
}

func copyRows(ctx context.Context, tx pgx.Tx, table string, rows []store.Row) error {
	cols := store.Columns(rows)
	if err := store.ValidateNames(table, cols); err != nil {
		return err
	}
	if len(rows) == 0 {
		return nil
	}
	src := pgx.CopyFromSlice(len(rows), func(i int) ([]any, error) {
		vals := make([]any, len(cols))
		for j, c := range cols {
			if v, ok := rows[i][c]; ok {
				vals[j] = v
			}
		}
		return vals, nil
	})
	if _, err := tx.CopyFrom(ctx, pgx.Identifier{table}, cols, src); err != nil {
		return store.BackendError("copy "+table, err)
	}
	return nil
}
