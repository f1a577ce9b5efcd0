package store

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/cockroachdb/pebble"
)

// PebbleStore implements Store using PebbleDB. Keys are
// "<table>\x00<8-byte big-endian seq>" so a prefix scan yields insertion order.
type PebbleStore struct {
	db *pebble.DB
}

func OpenPebble(dir string) (*PebbleStore, error) {
	opts := &pebble.Options{
		MemTableSize:             64 << 20,
		MaxConcurrentCompactions: func() int { return 2 },
		L0CompactionThreshold:    4,
		L0StopWritesThreshold:    12,
	}
	d, err := pebble.Open(filepath.Clean(dir), opts)
	if err != nil {
		return nil, BackendError("pebble open", err)
	}
	return &PebbleStore{db: d}, nil
}

func (p *PebbleStore) Close() error { return p.db.Close() }

func tablePrefix(table string) []byte {
	return append([]byte(table), 0)
}

func tableUpperBound(table string) []byte {
	return append([]byte(table), 1)
}

func rowKey(table string, seq uint64) []byte {
	k := tablePrefix(table)
	return binary.BigEndian.AppendUint64(k, seq)
}

func (p *PebbleStore) iter(table string) (*pebble.Iterator, error) {
	return p.db.NewIter(&pebble.IterOptions{
		LowerBound: tablePrefix(table),
		UpperBound: tableUpperBound(table),
	})
}

func (p *PebbleStore) Query(ctx context.Context, table string, columns []string, filters ...Filter) ([]Row, error) {
	if err := ValidateQuery(table, columns, filters); err != nil {
		return nil, err
	}
	it, err := p.iter(table)
	if err != nil {
		return nil, BackendError("pebble iter", err)
	}
	defer it.Close()
	var out []Row
	for it.First(); it.Valid(); it.Next() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		var r Row
		if err := json.Unmarshal(it.Value(), &r); err != nil {
			return nil, BackendError("pebble decode", fmt.Errorf("key %x: %w", it.Key(), err))
		}
		if Matches(r, filters) {
			out = append(out, Project(r, columns))
		}
	}
	if err := it.Error(); err != nil {
		return nil, BackendError("pebble scan", err)
	}
	return out, nil
}

func (p *PebbleStore) DeleteAll(ctx context.Context, table string) error {
	if err := ValidateNames(table, nil); err != nil {
		return err
	}
	if err := p.db.DeleteRange(tablePrefix(table), tableUpperBound(table), pebble.Sync); err != nil {
		return BackendError("pebble delete range", err)
	}
	return nil
}

// nextSeq returns the sequence after the last key of table.
func (p *PebbleStore) nextSeq(table string) (uint64, error) {
	it, err := p.iter(table)
	if err != nil {
		return 0, err
	}
	defer it.Close()
	if !it.Last() {
		return 0, it.Error()
	}
	k := it.Key()
	return binary.BigEndian.Uint64(k[len(k)-8:]) + 1, nil
}

func (p *PebbleStore) BulkInsert(ctx context.Context, table string, rows []Row) error {
	if err := ValidateNames(table, Columns(rows)); err != nil {
		return err
	}
	seq, err := p.nextSeq(table)
	if err != nil {
		return BackendError("pebble seq", err)
	}
	b := p.db.NewBatch()
	defer b.Close()
	if err := p.setRows(b, table, seq, rows); err != nil {
		return err
	}
	if err := b.Commit(pebble.Sync); err != nil {
		return BackendError("pebble commit", err)
	}
	return nil
}

// ReplaceAll deletes the table range and writes the new rows in a single
// batch, so readers see either the old or the new table.
func (p *PebbleStore) ReplaceAll(ctx context.Context, table string, rows []Row) error {
	if err := ValidateNames(table, Columns(rows)); err != nil {
		return err
	}
	b := p.db.NewBatch()
	defer b.Close()
	if err := b.DeleteRange(tablePrefix(table), tableUpperBound(table), nil); err != nil {
		return BackendError("pebble delete range", err)
	}
	if err := p.setRows(b, table, 0, rows); err != nil {
		return err
	}
	if err := b.Commit(pebble.Sync); err != nil {
		return BackendError("pebble commit", err)
	}
	return nil
}

func (p *PebbleStore) setRows(b *pebble.Batch, table string, seq uint64, rows []Row) error {
	for i, r := range rows {
		val, err := json.Marshal(r)
		if err != nil {
			return fmt.Errorf("encode row %d: %w", i, err)
		}
		if err := b.Set(rowKey(table, seq+uint64(i)), val, nil); err != nil {
			return BackendError("pebble set", err)
		}
	}
	return nil
}
