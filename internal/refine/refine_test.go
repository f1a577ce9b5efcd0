package refine

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"garantias/internal/model"
)

type rawRow struct {
	number, date, status, parts, service, total string
}

func columnsOf(rows ...rawRow) model.RawColumnSet {
	cols := model.RawColumnSet{}
	for _, c := range model.RequiredColumns {
		cols[c] = nil
	}
	for _, r := range rows {
		cols[model.ColOrderNumber] = append(cols[model.ColOrderNumber], r.number)
		cols[model.ColOrderDate] = append(cols[model.ColOrderDate], r.date)
		cols[model.ColEngineManufacturer] = append(cols[model.ColEngineManufacturer], "MWM")
		cols[model.ColEngineModel] = append(cols[model.ColEngineModel], "X10")
		cols[model.ColVehicleModel] = append(cols[model.ColVehicleModel], "Cargo 816")
		cols[model.ColDefectDescription] = append(cols[model.ColDefectDescription], "vazamento de oleo")
		cols[model.ColClientName] = append(cols[model.ColClientName], "Transportes Silva")
		cols[model.ColPartsTotal] = append(cols[model.ColPartsTotal], r.parts)
		cols[model.ColServiceTotal] = append(cols[model.ColServiceTotal], r.service)
		cols[model.ColGrandTotal] = append(cols[model.ColGrandTotal], r.total)
		cols[model.ColStatus] = append(cols[model.ColStatus], r.status)
	}
	return cols
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestRefine_YearFilterBoundary(t *testing.T) {
	res, err := Refine(columnsOf(
		rawRow{"1", "31/12/2018", "G", "20,00", "5,00", "15,00"},
		rawRow{"2", "01/01/2019 07:45:00", "G", "20,00", "5,00", "15,00"},
		rawRow{"3", "10/06/2024", "GO", "20,00", "5,00", "15,00"},
	))
	require.NoError(t, err)
	require.Len(t, res.Orders, 2)
	require.Equal(t, "2", res.Orders[0].OrderNumber)
	require.Equal(t, "01/01/2019 07:45:00", res.Orders[0].OrderDate)
	require.Equal(t, "3", res.Orders[1].OrderNumber)
	require.Equal(t, []Skip{{Row: 0, Reason: SkipYear, Detail: "year 2018"}}, res.Skips)
}

func TestRefine_StatusFilter(t *testing.T) {
	res, err := Refine(columnsOf(
		rawRow{"1", "01/01/2020", "G", "2", "1", "2"},
		rawRow{"2", "01/01/2020", "GO", "2", "1", "2"},
		rawRow{"3", "01/01/2020", "GU", "2", "1", "2"},
		rawRow{"4", "01/01/2020", "A", "2", "1", "2"},
		rawRow{"5", "01/01/2020", "", "2", "1", "2"},
		rawRow{"6", "01/01/2020", "go", "2", "1", "2"},
	))
	require.NoError(t, err)
	var got []string
	for _, o := range res.Orders {
		got = append(got, o.OrderNumber)
	}
	require.Equal(t, []string{"1", "2", "3"}, got)
	require.Equal(t, 3, res.SkipCounts()[SkipStatus])
}

func TestRefine_PartsTotalIsHalved(t *testing.T) {
	res, err := Refine(columnsOf(
		rawRow{"1", "05/05/2021", "G", "1234,57", "100,10", "717,385"},
	))
	require.NoError(t, err)
	require.Len(t, res.Orders, 1)
	o := res.Orders[0]
	require.True(t, o.PartsTotal.Equal(dec("617.285")), "parts=%s", o.PartsTotal)
	require.True(t, o.ServiceTotal.Equal(dec("100.1")), "service=%s", o.ServiceTotal)
	require.True(t, o.GrandTotal.Equal(dec("717.385")), "grand=%s", o.GrandTotal)
	require.Empty(t, res.Mismatches)
}

func TestRefine_MismatchIsRecordedButRowKept(t *testing.T) {
	res, err := Refine(columnsOf(
		rawRow{"77", "05/05/2021", "GU", "20,00", "5,00", "30,00"},
	))
	require.NoError(t, err)
	require.Len(t, res.Orders, 1)
	require.Len(t, res.Mismatches, 1)
	mm := res.Mismatches[0]
	require.Equal(t, "77", mm.OrderNumber)
	require.True(t, mm.Computed.Equal(dec("15")))
	require.True(t, mm.Declared.Equal(dec("30")))
	require.True(t, mm.Diff.Equal(dec("15")))
}

func TestRefine_BadRowsDoNotStopLaterRows(t *testing.T) {
	r := New(WithLogger(zaptest.NewLogger(t)))
	res, err := r.Refine(columnsOf(
		rawRow{"1", "not a date", "G", "2", "1", "2"},
		rawRow{"2", "01/01/2022", "G", "abc", "1", "2"},
		rawRow{"3", "01/01/2022", "G", "2", "1,5,0", "2"},
		rawRow{"4", "01/01/2022", "G", "2", "1", ""},
		rawRow{"5", "01/01/2022", "G", "2", "1", "2"},
	))
	require.NoError(t, err)
	require.Len(t, res.Orders, 1)
	require.Equal(t, "5", res.Orders[0].OrderNumber)
	counts := res.SkipCounts()
	require.Equal(t, 1, counts[SkipBadDate])
	require.Equal(t, 3, counts[SkipBadNumber])
	for _, s := range res.Skips {
		require.False(t, s.Reason.IsFilter())
	}
}

func TestRefine_RaggedColumnsTruncate(t *testing.T) {
	cols := columnsOf(
		rawRow{"1", "01/01/2022", "G", "2", "1", "2"},
		rawRow{"2", "01/01/2022", "G", "2", "1", "2"},
		rawRow{"3", "01/01/2022", "G", "2", "1", "2"},
	)
	cols[model.ColStatus] = cols[model.ColStatus][:2]
	cols[model.ColOrderNumber] = append(cols[model.ColOrderNumber], "4", "5")

	res, err := Refine(cols)
	require.NoError(t, err)
	require.Equal(t, 2, res.MinLen)
	require.Equal(t, 5, res.InputRows)
	require.Len(t, res.Orders, 2)
}

func TestRefine_MissingColumnFails(t *testing.T) {
	cols := columnsOf(rawRow{"1", "01/01/2022", "G", "2", "1", "2"})
	delete(cols, model.ColGrandTotal)
	_, err := Refine(cols)
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrMissingColumn))
}

func TestRefine_EmptyInput(t *testing.T) {
	res, err := Refine(columnsOf())
	require.NoError(t, err)
	require.Empty(t, res.Orders)
	require.Empty(t, res.Skips)
}

func TestRefine_CustomMinYear(t *testing.T) {
	res, err := New(WithMinYear(2023)).Refine(columnsOf(
		rawRow{"1", "01/01/2022", "G", "2", "1", "2"},
		rawRow{"2", "01/01/2023", "G", "2", "1", "2"},
	))
	require.NoError(t, err)
	require.Len(t, res.Orders, 1)
	require.Equal(t, "2", res.Orders[0].OrderNumber)
}

func TestParseCommaDecimal(t *testing.T) {
	d, err := ParseCommaDecimal(" 1500,75 ")
	require.NoError(t, err)
	require.True(t, d.Equal(dec("1500.75")))

	_, err = ParseCommaDecimal("1.500,75")
	require.Error(t, err)
	_, err = ParseCommaDecimal("")
	require.Error(t, err)
}

func TestReconcile(t *testing.T) {
	orders := []model.ServiceOrder{
		{OrderNumber: "1", PartsTotal: dec("10"), ServiceTotal: dec("5"), GrandTotal: dec("15")},
		{OrderNumber: "2", PartsTotal: dec("10"), ServiceTotal: dec("5"), GrandTotal: dec("16.5")},
	}
	got := Reconcile(orders)
	require.Len(t, got, 1)
	require.Equal(t, 1, got[0].Row)
	require.Equal(t, "2", got[0].OrderNumber)
	require.True(t, got[0].Diff.Equal(dec("1.5")))
	require.Empty(t, Reconcile(orders[:1]))
}
