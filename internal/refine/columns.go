package refine

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"garantias/internal/model"
)

// Layout maps each export column to the file that carries it.
type Layout struct {
	Files map[string]string `yaml:"files"`
}

// DefaultLayout uses the upstream export file names (model.ColumnFile).
func DefaultLayout() Layout {
	files := make(map[string]string, len(model.RequiredColumns))
	for _, c := range model.RequiredColumns {
		files[c] = model.ColumnFile(c)
	}
	return Layout{Files: files}
}

// LoadLayout reads a YAML layout. Columns not listed keep their default file.
func LoadLayout(path string) (Layout, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Layout{}, fmt.Errorf("read layout: %w", err)
	}
	var raw Layout
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return Layout{}, fmt.Errorf("unmarshal layout: %w", err)
	}
	out := DefaultLayout()
	for col, file := range raw.Files {
		if !isRequired(col) {
			return Layout{}, fmt.Errorf("layout: unknown column %q", col)
		}
		if strings.TrimSpace(file) == "" {
			return Layout{}, fmt.Errorf("layout: empty file name for %q", col)
		}
		out.Files[col] = file
	}
	return out, nil
}

func isRequired(col string) bool {
	for _, c := range model.RequiredColumns {
		if c == col {
			return true
		}
	}
	return false
}

// ReadColumnDir reads every column file of the layout from dir concurrently.
// A missing file fails the whole read with ErrMissingColumn.
func ReadColumnDir(ctx context.Context, dir string, layout Layout) (model.RawColumnSet, error) {
	var mu sync.Mutex
	cols := make(model.RawColumnSet, len(model.RequiredColumns))
	for _, col := range model.RequiredColumns {
		if _, ok := layout.Files[col]; !ok {
			return nil, fmt.Errorf("%w: %s has no file in layout", ErrMissingColumn, col)
		}
	}
	g, ctx := errgroup.WithContext(ctx)
	for _, col := range model.RequiredColumns {
		path := filepath.Join(dir, layout.Files[col])
		g.Go(func() error {
			values, err := readColumnFile(ctx, path)
			if err != nil {
				if errors.Is(err, fs.ErrNotExist) {
					return fmt.Errorf("%w: %s (%s)", ErrMissingColumn, col, path)
				}
				return fmt.Errorf("read %s: %w", col, err)
			}
			mu.Lock()
			cols[col] = values
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return cols, nil
}

func readColumnFile(ctx context.Context, path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadColumn(ctx, f)
}

// ReadColumn reads one value per line. The first line is a header and is
// dropped; values are trimmed and blank lines are ignored.
func ReadColumn(ctx context.Context, r io.Reader) ([]string, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 4*1024*1024)
	var out []string
	header := true
	for sc.Scan() {
		if header {
			header = false
			continue
		}
		if len(out)%4096 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		v := strings.TrimSpace(sc.Text())
		if v == "" {
			continue
		}
		out = append(out, v)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("scan: %w", err)
	}
	return out, nil
}
