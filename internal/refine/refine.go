// Package refine turns raw columnar service-order exports into validated
// ServiceOrder records.
package refine

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"garantias/internal/model"
)

// MinYear is the first order year kept by the pipeline.
const MinYear = 2019

// ErrMissingColumn is returned when a required column is absent from the input.
var ErrMissingColumn = errors.New("required column missing")

// SkipReason classifies why a row was not emitted.
type SkipReason string

const (
	SkipYear      SkipReason = "year"
	SkipStatus    SkipReason = "status"
	SkipBadDate   SkipReason = "bad_date"
	SkipBadNumber SkipReason = "bad_number"
)

// IsFilter reports whether the reason is a business filter rather than a
// parse failure.
func (r SkipReason) IsFilter() bool { return r == SkipYear || r == SkipStatus }

// Skip records one dropped row.
type Skip struct {
	Row    int        `json:"row"`
	Reason SkipReason `json:"reason"`
	Detail string     `json:"detail,omitempty"`
}

// Mismatch records a retained row where parts+service differs from the
// declared grand total.
type Mismatch struct {
	Row         int             `json:"row"`
	OrderNumber string          `json:"orderNumber"`
	Computed    decimal.Decimal `json:"computed"`
	Declared    decimal.Decimal `json:"declared"`
	Diff        decimal.Decimal `json:"diff"`
}

// Result is the outcome of one refinement run.
type Result struct {
	Orders     []model.ServiceOrder
	Skips      []Skip
	Mismatches []Mismatch
	InputRows  int // longest column
	MinLen     int // rows actually examined
}

// SkipCounts returns the number of skipped rows per reason.
func (r Result) SkipCounts() map[SkipReason]int {
	out := make(map[SkipReason]int)
	for _, s := range r.Skips {
		out[s.Reason]++
	}
	return out
}

// Refiner applies the row filters and numeric normalization.
type Refiner struct {
	log     *zap.Logger
	minYear int
}

// Option configures a Refiner.
type Option func(*Refiner)

// WithLogger sets the logger used for skip and mismatch events.
func WithLogger(l *zap.Logger) Option {
	return func(r *Refiner) {
		if l != nil {
			r.log = l
		}
	}
}

// WithMinYear overrides MinYear.
func WithMinYear(y int) Option {
	return func(r *Refiner) { r.minYear = y }
}

func New(opts ...Option) *Refiner {
	r := &Refiner{log: zap.NewNop(), minYear: MinYear}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Refine runs the pipeline with default options.
func Refine(cols model.RawColumnSet) (Result, error) {
	return New().Refine(cols)
}

var two = decimal.NewFromInt(2)

// Refine processes rows 0..MinLen-1 in order. Row-level problems are recorded
// in the result; only a missing column fails the call.
func (r *Refiner) Refine(cols model.RawColumnSet) (Result, error) {
	if missing := cols.Missing(); len(missing) > 0 {
		return Result{}, fmt.Errorf("%w: %s", ErrMissingColumn, strings.Join(missing, ", "))
	}
	res := Result{InputRows: cols.MaxLen(), MinLen: cols.MinLen()}
	if res.MinLen < res.InputRows {
		r.log.Warn("ragged input, truncating to shortest column",
			zap.Int("min_len", res.MinLen), zap.Int("max_len", res.InputRows))
	}
	for i := 0; i < res.MinLen; i++ {
		ord, mm, skip := r.refineRow(cols, i)
		if skip != nil {
			r.log.Debug("row skipped",
				zap.Int("row", skip.Row), zap.String("reason", string(skip.Reason)), zap.String("detail", skip.Detail))
			res.Skips = append(res.Skips, *skip)
			continue
		}
		if mm != nil {
			r.log.Warn("total mismatch",
				zap.Int("row", mm.Row),
				zap.String("order", mm.OrderNumber),
				zap.String("computed", mm.Computed.String()),
				zap.String("declared", mm.Declared.String()))
			res.Mismatches = append(res.Mismatches, *mm)
		}
		res.Orders = append(res.Orders, ord)
	}
	return res, nil
}

func (r *Refiner) refineRow(cols model.RawColumnSet, i int) (model.ServiceOrder, *Mismatch, *Skip) {
	date := cols[model.ColOrderDate][i]
	year, err := model.OrderYear(date)
	if err != nil {
		return model.ServiceOrder{}, nil, &Skip{Row: i, Reason: SkipBadDate, Detail: err.Error()}
	}
	if year < r.minYear {
		return model.ServiceOrder{}, nil, &Skip{Row: i, Reason: SkipYear, Detail: fmt.Sprintf("year %d", year)}
	}

	rawStatus := cols[model.ColStatus][i]
	status, ok := model.ParseStatus(rawStatus)
	if !ok {
		return model.ServiceOrder{}, nil, &Skip{Row: i, Reason: SkipStatus, Detail: fmt.Sprintf("status %q", rawStatus)}
	}

	parts, err := ParseCommaDecimal(cols[model.ColPartsTotal][i])
	if err != nil {
		return model.ServiceOrder{}, nil, numberSkip(i, model.ColPartsTotal, err)
	}
	parts = parts.Div(two)
	service, err := ParseCommaDecimal(cols[model.ColServiceTotal][i])
	if err != nil {
		return model.ServiceOrder{}, nil, numberSkip(i, model.ColServiceTotal, err)
	}
	grand, err := ParseCommaDecimal(cols[model.ColGrandTotal][i])
	if err != nil {
		return model.ServiceOrder{}, nil, numberSkip(i, model.ColGrandTotal, err)
	}

	ord := model.ServiceOrder{
		OrderNumber:        cols[model.ColOrderNumber][i],
		OrderDate:          date,
		EngineManufacturer: cols[model.ColEngineManufacturer][i],
		EngineModel:        cols[model.ColEngineModel][i],
		VehicleModel:       cols[model.ColVehicleModel][i],
		DefectDescription:  cols[model.ColDefectDescription][i],
		ClientName:         cols[model.ColClientName][i],
		PartsTotal:         parts,
		ServiceTotal:       service,
		GrandTotal:         grand,
		Status:             status,
	}

	return ord, checkTotals(i, ord), nil
}

func checkTotals(row int, o model.ServiceOrder) *Mismatch {
	computed := o.PartsTotal.Add(o.ServiceTotal)
	if computed.Equal(o.GrandTotal) {
		return nil
	}
	return &Mismatch{
		Row:         row,
		OrderNumber: o.OrderNumber,
		Computed:    computed,
		Declared:    o.GrandTotal,
		Diff:        o.GrandTotal.Sub(computed),
	}
}

// Reconcile re-checks already refined orders. Row is the index in orders.
func Reconcile(orders []model.ServiceOrder) []Mismatch {
	var out []Mismatch
	for i, o := range orders {
		if mm := checkTotals(i, o); mm != nil {
			out = append(out, *mm)
		}
	}
	return out
}

func numberSkip(row int, column string, err error) *Skip {
	return &Skip{Row: row, Reason: SkipBadNumber, Detail: fmt.Sprintf("%s: %v", column, err)}
}

// ParseCommaDecimal parses a value that uses comma as decimal separator.
func ParseCommaDecimal(s string) (decimal.Decimal, error) {
	v := strings.ReplaceAll(strings.TrimSpace(s), ",", ".")
	if v == "" {
		return decimal.Decimal{}, fmt.Errorf("empty value")
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("parse %q: %w", s, err)
	}
	return d, nil
}
