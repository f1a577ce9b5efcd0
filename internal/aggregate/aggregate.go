// Package aggregate computes dashboard statistics and chart series over a
// full set of service orders. Every function is pure: the result depends only
// on its arguments.
package aggregate

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"garantias/internal/model"
)

const (
	// UnclassifiedGroup labels orders without a defect group.
	UnclassifiedGroup = "Não Classificado"
	// DefaultStatus labels orders without a status.
	DefaultStatus = "Processado"
	// Periods is the length of the orders-over-time series.
	Periods = 6
)

// Stats is the dashboard summary.
type Stats struct {
	TotalOrders      int
	TotalParts       decimal.Decimal
	TotalService     decimal.Decimal
	TotalGeneral     decimal.Decimal
	TotalMechanics   int
	TotalDefectTypes int
}

type GroupCount struct {
	Group string
	Count int
}

type StatusCount struct {
	Status string
	Count  int
}

// Period is one month of the orders-over-time series.
type Period struct {
	Label string
	Year  int
	Month time.Month
	Count int
	Value decimal.Decimal
}

type Charts struct {
	DefectsByGroup     []GroupCount
	StatusDistribution []StatusCount
	OrdersOverTime     []Period
}

// ComputeStats sums exactly and rounds each total to 2 places once.
func ComputeStats(orders []model.ServiceOrder) Stats {
	parts, service, general := decimal.Zero, decimal.Zero, decimal.Zero
	for _, o := range orders {
		parts = parts.Add(o.PartsTotal)
		service = service.Add(o.ServiceTotal)
		general = general.Add(o.GrandTotal)
	}
	return Stats{
		TotalOrders:      len(orders),
		TotalParts:       parts.Round(2),
		TotalService:     service.Round(2),
		TotalGeneral:     general.Round(2),
		TotalMechanics:   len(DistinctMechanics(orders)),
		TotalDefectTypes: len(DistinctDefectGroups(orders)),
	}
}

// ComputeCharts builds the group-by views and the monthly series for the six
// months ending at now.
func ComputeCharts(orders []model.ServiceOrder, now time.Time) Charts {
	return Charts{
		DefectsByGroup:     DefectsByGroup(orders),
		StatusDistribution: StatusDistribution(orders),
		OrdersOverTime:     OrdersOverTime(orders, now),
	}
}

// DefectsByGroup counts orders per defect group in first-occurrence order.
func DefectsByGroup(orders []model.ServiceOrder) []GroupCount {
	idx := map[string]int{}
	out := []GroupCount{}
	for _, o := range orders {
		g := o.DefectGroup
		if g == "" {
			g = UnclassifiedGroup
		}
		i, ok := idx[g]
		if !ok {
			i = len(out)
			idx[g] = i
			out = append(out, GroupCount{Group: g})
		}
		out[i].Count++
	}
	return out
}

// StatusDistribution counts orders per status in first-occurrence order.
func StatusDistribution(orders []model.ServiceOrder) []StatusCount {
	idx := map[string]int{}
	out := []StatusCount{}
	for _, o := range orders {
		s := string(o.Status)
		if s == "" {
			s = DefaultStatus
		}
		i, ok := idx[s]
		if !ok {
			i = len(out)
			idx[s] = i
			out = append(out, StatusCount{Status: s})
		}
		out[i].Count++
	}
	return out
}

var monthAbbrev = [...]string{"jan.", "fev.", "mar.", "abr.", "mai.", "jun.", "jul.", "ago.", "set.", "out.", "nov.", "dez."}

// PeriodLabel formats a month like "fev./2025".
func PeriodLabel(year int, month time.Month) string {
	return fmt.Sprintf("%s/%d", monthAbbrev[month-1], year)
}

// OrdersOverTime buckets orders by the month of their order date. The series
// always has Periods entries, oldest first, ending at the month of now.
// Orders with an unparseable date or outside the window are not counted.
func OrdersOverTime(orders []model.ServiceOrder, now time.Time) []Period {
	first := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, -(Periods - 1), 0)
	out := make([]Period, Periods)
	for i := range out {
		m := first.AddDate(0, i, 0)
		out[i] = Period{Label: PeriodLabel(m.Year(), m.Month()), Year: m.Year(), Month: m.Month(), Value: decimal.Zero}
	}
	for _, o := range orders {
		y, m, err := model.OrderMonth(o.OrderDate)
		if err != nil {
			continue
		}
		i := (y-first.Year())*12 + m - int(first.Month())
		if i < 0 || i >= Periods {
			continue
		}
		out[i].Count++
		out[i].Value = out[i].Value.Add(o.GrandTotal)
	}
	for i := range out {
		out[i].Value = out[i].Value.Round(2)
	}
	return out
}

// FilterMonth keeps the orders whose date falls in year/month.
func FilterMonth(orders []model.ServiceOrder, year int, month time.Month) []model.ServiceOrder {
	var out []model.ServiceOrder
	for _, o := range orders {
		y, m, err := model.OrderMonth(o.OrderDate)
		if err != nil {
			continue
		}
		if y == year && time.Month(m) == month {
			out = append(out, o)
		}
	}
	return out
}

// DistinctMechanics returns the distinct non-empty mechanics.
func DistinctMechanics(orders []model.ServiceOrder) []string {
	return distinct(orders, func(o model.ServiceOrder) string { return o.Mechanic })
}

// DistinctDefectGroups returns the distinct non-empty defect groups.
func DistinctDefectGroups(orders []model.ServiceOrder) []string {
	return distinct(orders, func(o model.ServiceOrder) string { return o.DefectGroup })
}

func distinct(orders []model.ServiceOrder, field func(model.ServiceOrder) string) []string {
	seen := map[string]struct{}{}
	out := []string{}
	for _, o := range orders {
		v := field(o)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
