// Package sqlite provides a SQLite-backed record store.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"garantias/internal/store"
	"garantias/internal/store/sqlite/migrations"
)

// Store persists tables in SQLite. Every column is TEXT so decimal values
// keep their exact string form.
type Store struct {
	sqlDB *sql.DB
}

// Open opens a SQLite store and applies the embedded schema.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, store.BackendError("open sqlite db", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, store.BackendError("ping sqlite db", err)
	}
	if err := applyMigrations(sqlDB, migrations.FS); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{sqlDB: sqlDB}, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// EnsureTable creates a TEXT-only table if it does not exist.
func (s *Store) EnsureTable(ctx context.Context, table string, columns ...string) error {
	if err := store.ValidateNames(table, columns); err != nil {
		return err
	}
	if len(columns) == 0 {
		return fmt.Errorf("table %s needs at least one column", table)
	}
	defs := make([]string, len(columns))
	for i, c := range columns {
		defs[i] = quote(c) + " TEXT"
	}
	q := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", quote(table), strings.Join(defs, ", "))
	if _, err := s.sqlDB.ExecContext(ctx, q); err != nil {
		return store.BackendError("create table", err)
	}
	return nil
}

func (s *Store) Query(ctx context.Context, table string, columns []string, filters ...store.Filter) ([]store.Row, error) {
	if err := store.ValidateQuery(table, columns, filters); err != nil {
		return nil, err
	}
	sel := "*"
	if len(columns) > 0 {
		quoted := make([]string, len(columns))
		for i, c := range columns {
			quoted[i] = quote(c)
		}
		sel = strings.Join(quoted, ", ")
	}
	q := fmt.Sprintf("SELECT %s FROM %s", sel, quote(table))
	args := make([]any, 0, len(filters))
	if len(filters) > 0 {
		conds := make([]string, len(filters))
		for i, f := range filters {
			conds[i] = quote(f.Column) + " = ?"
			args = append(args, f.Value)
		}
		q += " WHERE " + strings.Join(conds, " AND ")
	}
	q += " ORDER BY rowid"

	rows, err := s.sqlDB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, store.BackendError("query "+table, err)
	}
	defer rows.Close()
	names, err := rows.Columns()
	if err != nil {
		return nil, store.BackendError("columns", err)
	}
	var out []store.Row
	for rows.Next() {
		vals := make([]sql.NullString, len(names))
		ptrs := make([]any, len(names))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, store.BackendError("scan", err)
		}
		r := make(store.Row, len(names))
		for i, n := range names {
			if vals[i].Valid {
				r[n] = vals[i].String
			}
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, store.BackendError("iterate", err)
	}
	return out, nil
}

func (s *Store) DeleteAll(ctx context.Context, table string) error {
	if err := store.ValidateNames(table, nil); err != nil {
		return err
	}
	if _, err := s.sqlDB.ExecContext(ctx, "DELETE FROM "+quote(table)); err != nil {
		return store.BackendError("delete "+table, err)
	}
	return nil
}

func (s *Store) BulkInsert(ctx context.Context, table string, rows []store.Row) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		return insertRows(ctx, tx, table, rows)
	})
}

// ReplaceAll deletes and re-inserts inside one transaction.
func (s *Store) ReplaceAll(ctx context.Context, table string, rows []store.Row) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if err := store.ValidateNames(table, nil); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+quote(table)); err != nil {
			return store.BackendError("delete "+table, err)
		}
		return insertRows(ctx, tx, table, rows)
	})
}

func (s *Store) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return store.BackendError("begin", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return store.BackendError("commit", err)
	}
	return nil
}

func insertRows(ctx context.Context, tx *sql.Tx, table string, rows []store.Row) error {
	cols := store.Columns(rows)
	if err := store.ValidateNames(table, cols); err != nil {
		return err
	}
	if len(rows) == 0 {
		return nil
	}
	quoted := make([]string, len(cols))
	marks := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = quote(c)
		marks[i] = "?"
	}
	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		quote(table), strings.Join(quoted, ", "), strings.Join(marks, ", ")))
	if err != nil {
		return store.BackendError("prepare insert", err)
	}
	defer stmt.Close()
	args := make([]any, len(cols))
	for n, r := range rows {
		for i, c := range cols {
			if v, ok := r[c]; ok {
				args[i] = v
			} else {
				args[i] = nil
			}
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return store.BackendError(fmt.Sprintf("insert row %d", n), err)
		}
	}
	return nil
}

func quote(ident string) string { return `"` + ident + `"` }

// applyMigrations runs the Up section of each embedded .sql file once,
// recording applied files in schema_migrations.
func applyMigrations(sqlDB *sql.DB, migrationFS fs.FS) error {
	entries, err := fs.ReadDir(migrationFS, ".")
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}
	var files []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)

	if _, err := sqlDB.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (
    name TEXT PRIMARY KEY,
    applied_at INTEGER NOT NULL
)`); err != nil {
		return fmt.Errorf("ensure migration table: %w", err)
	}
	for _, file := range files {
		var n int
		if err := sqlDB.QueryRow(`SELECT COUNT(*) FROM schema_migrations WHERE name = ?`, file).Scan(&n); err != nil {
			return fmt.Errorf("check migration %s: %w", file, err)
		}
		if n > 0 {
			continue
		}
		content, err := fs.ReadFile(migrationFS, file)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", file, err)
		}
		tx, err := sqlDB.Begin()
		if err != nil {
			return fmt.Errorf("begin migration %s: %w", file, err)
		}
		if _, err := tx.Exec(upSection(string(content))); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("exec migration %s: %w", file, err)
		}
		if _, err := tx.Exec(`INSERT INTO schema_migrations (name, applied_at) VALUES (?, ?)`,
			file, time.Now().UTC().UnixMilli()); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("record migration %s: %w", file, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %s: %w", file, err)
		}
	}
	return nil
}

func upSection(content string) string {
	const up, down = "-- +migrate Up", "-- +migrate Down"
	start := strings.Index(content, up)
	if start == -1 {
		return content
	}
	body := content[start+len(up):]
	if end := strings.Index(body, down); end != -1 {
		body = body[:end]
	}
	return body
}
