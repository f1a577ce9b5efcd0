package main

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"garantias/internal/refine"
)

func TestGeneratedColumnsRefine(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, generateColumns(genOptions{count: 400, out: dir, seed: 7, fromYear: 2017, toYear: 2025}))

	require.FileExists(t, filepath.Join(dir, "NOrdem_Osv.txt"))

	cols, err := refine.ReadColumnDir(context.Background(), dir, refine.DefaultLayout())
	require.NoError(t, err)
	require.Equal(t, 400, cols.MinLen())
	require.Equal(t, 400, cols.MaxLen())

	res, err := refine.Refine(cols)
	require.NoError(t, err)
	require.NotEmpty(t, res.Orders)
	require.Equal(t, 400, len(res.Orders)+len(res.Skips))

	counts := res.SkipCounts()
	require.Positive(t, counts[refine.SkipYear])
	require.Positive(t, counts[refine.SkipStatus])
	require.NotEmpty(t, res.Mismatches)
}

func TestGenerateIsDeterministic(t *testing.T) {
	a, b := t.TempDir(), t.TempDir()
	opts := genOptions{count: 50, seed: 3, fromYear: 2020, toYear: 2024}
	opts.out = a
	require.NoError(t, generateColumns(opts))
	opts.out = b
	require.NoError(t, generateColumns(opts))

	ca, err := refine.ReadColumnDir(context.Background(), a, refine.DefaultLayout())
	require.NoError(t, err)
	cb, err := refine.ReadColumnDir(context.Background(), b, refine.DefaultLayout())
	require.NoError(t, err)
	require.Equal(t, ca, cb)
}

func TestGenerateRejectsInvertedYears(t *testing.T) {
	require.Error(t, generateColumns(genOptions{count: 1, out: t.TempDir(), fromYear: 2025, toYear: 2020}))
}

func TestComma(t *testing.T) {
	require.Equal(t, "1500,75", comma(decimal.RequireFromString("1500.75")))
	require.Equal(t, "3,00", comma(decimal.RequireFromString("3")))
}
