package dataset

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"garantias/internal/model"
	"garantias/internal/store"
)

func order(n, mech, group string) model.ServiceOrder {
	return model.ServiceOrder{
		OrderNumber:  n,
		OrderDate:    "10/10/2022",
		Status:       model.StatusG,
		PartsTotal:   decimal.RequireFromString("10.005"),
		ServiceTotal: decimal.RequireFromString("5"),
		GrandTotal:   decimal.RequireFromString("15.005"),
		Mechanic:     mech,
		DefectGroup:  group,
	}
}

var decimalEqual = cmp.Comparer(func(a, b decimal.Decimal) bool { return a.Equal(b) })

func TestReplaceThenLoad_RoundTripsOrders(t *testing.T) {
	st := store.NewMemory()
	ctx := context.Background()
	in := []model.ServiceOrder{order("1", "João", "Vazamentos"), order("2", "", "")}

	require.NoError(t, Replace(ctx, st, in))
	got, err := Load(ctx, st)
	require.NoError(t, err)
	if diff := cmp.Diff(in, got, decimalEqual); diff != "" {
		t.Fatalf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestReplace_IsIdempotent(t *testing.T) {
	st := store.NewMemory()
	ctx := context.Background()
	in := []model.ServiceOrder{order("1", "", ""), order("2", "", "")}
	require.NoError(t, Replace(ctx, st, in))
	require.NoError(t, Replace(ctx, st, in))
	got, err := Load(ctx, st)
	require.NoError(t, err)
	require.Len(t, got, 2)
}

func TestLoad_FilterByStatus(t *testing.T) {
	st := store.NewMemory()
	ctx := context.Background()
	a := order("1", "", "")
	b := order("2", "", "")
	b.Status = model.StatusGU
	require.NoError(t, Replace(ctx, st, []model.ServiceOrder{a, b}))

	got, err := Load(ctx, st, store.Filter{Column: ColStatus, Value: "GU"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, "2", got[0].OrderNumber)
}

func TestLoad_BadDecimalFails(t *testing.T) {
	st := store.NewMemory()
	ctx := context.Background()
	require.NoError(t, st.BulkInsert(ctx, Table, []store.Row{{ColOrderNumber: "1", ColGrandTotal: "1,5"}}))
	_, err := Load(ctx, st)
	require.Error(t, err)
}

type failingStore struct{ store.Store }

func (failingStore) Query(context.Context, string, []string, ...store.Filter) ([]store.Row, error) {
	return nil, store.BackendError("query", errors.New("connection refused"))
}

func TestLoad_BackendErrorIsWrapped(t *testing.T) {
	_, err := Load(context.Background(), failingStore{})
	require.ErrorIs(t, err, store.ErrBackend)
}

func TestDistinct(t *testing.T) {
	st := store.NewMemory()
	ctx := context.Background()
	require.NoError(t, Replace(ctx, st, []model.ServiceOrder{
		order("1", "Ana", "A"),
		order("2", "", "B"),
		order("3", "Ana", ""),
		order("4", "Rui", "A"),
	}))
	mechs, err := Distinct(ctx, st, ColMechanic)
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"Ana", "Rui"}, mechs)

	groups, err := Distinct(ctx, st, ColDefectGroup)
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"A", "B"}, groups)
}

func TestDistinct_EmptyStoreIsEmptyList(t *testing.T) {
	got, err := Distinct(context.Background(), store.NewMemory(), ColMechanic)
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Empty(t, got)
}
