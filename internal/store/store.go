// Package store defines the record store used by the load step and the API,
// with in-memory and Pebble implementations. SQL backends live in
// subpackages.
package store

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
)

// ErrBackend wraps every failure reported by a backend.
var ErrBackend = errors.New("record store failure")

// ErrInvalidName is returned for table or column names that are not plain
// lower-case identifiers.
var ErrInvalidName = errors.New("invalid table or column name")

// Row is one record keyed by column name.
type Row map[string]string

// Filter is an equality predicate on one column.
type Filter struct {
	Column string
	Value  string
}

// Store is a table-oriented record store. Query returns rows in insertion
// order. ReplaceAll swaps the full content of a table atomically.
type Store interface {
	Query(ctx context.Context, table string, columns []string, filters ...Filter) ([]Row, error)
	DeleteAll(ctx context.Context, table string) error
	BulkInsert(ctx context.Context, table string, rows []Row) error
	ReplaceAll(ctx context.Context, table string, rows []Row) error
	Close() error
}

// BackendError wraps err so that errors.Is(err, ErrBackend) holds.
func BackendError(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", op, ErrBackend, err)
}

var identRe = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// ValidateNames checks a table name and a column list.
func ValidateNames(table string, columns []string) error {
	if !identRe.MatchString(table) {
		return fmt.Errorf("%w: table %q", ErrInvalidName, table)
	}
	for _, c := range columns {
		if !identRe.MatchString(c) {
			return fmt.Errorf("%w: column %q", ErrInvalidName, c)
		}
	}
	return nil
}

// Matches reports whether row satisfies every filter.
func Matches(row Row, filters []Filter) bool {
	for _, f := range filters {
		if row[f.Column] != f.Value {
			return false
		}
	}
	return true
}

// Project copies the requested columns of row. An empty column list copies
// the whole row.
func Project(row Row, columns []string) Row {
	if len(columns) == 0 {
		out := make(Row, len(row))
		for k, v := range row {
			out[k] = v
		}
		return out
	}
	out := make(Row, len(columns))
	for _, c := range columns {
		if v, ok := row[c]; ok {
			out[c] = v
		}
	}
	return out
}

// Columns returns the sorted union of column names across rows.
func Columns(rows []Row) []string {
	seen := map[string]struct{}{}
	for _, r := range rows {
		for k := range r {
			seen[k] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for k := range seen {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func filterColumns(filters []Filter) []string {
	out := make([]string, 0, len(filters))
	for _, f := range filters {
		out = append(out, f.Column)
	}
	return out
}

// ValidateQuery checks every name used by a query.
func ValidateQuery(table string, columns []string, filters []Filter) error {
	if err := ValidateNames(table, columns); err != nil {
		return err
	}
	return ValidateNames(table, filterColumns(filters))
}
