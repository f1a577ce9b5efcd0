// Package dataset maps service orders to record store rows.
package dataset

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"garantias/internal/model"
	"garantias/internal/store"
)

// Table holds the refined service orders.
const Table = "ordens_servico"

const (
	ColOrderNumber        = "numero_ordem"
	ColOrderDate          = "data_ordem"
	ColEngineManufacturer = "fabricante_motor"
	ColEngineModel        = "modelo_motor"
	ColVehicleModel       = "modelo_veiculo_motor"
	ColDefectDescription  = "defeito_texto_bruto"
	ColClientName         = "cliente"
	ColPartsTotal         = "total_pecas"
	ColServiceTotal       = "total_servico"
	ColGrandTotal         = "total_geral"
	ColStatus             = "status"
	ColMechanic           = "mecanico_responsavel"
	ColDefectGroup        = "defeito_grupo"
)

// ToRow converts an order to a store row. Empty optional attributes are
// omitted.
func ToRow(o model.ServiceOrder) store.Row {
	r := store.Row{
		ColOrderNumber:        o.OrderNumber,
		ColOrderDate:          o.OrderDate,
		ColEngineManufacturer: o.EngineManufacturer,
		ColEngineModel:        o.EngineModel,
		ColVehicleModel:       o.VehicleModel,
		ColDefectDescription:  o.DefectDescription,
		ColClientName:         o.ClientName,
		ColPartsTotal:         o.PartsTotal.String(),
		ColServiceTotal:       o.ServiceTotal.String(),
		ColGrandTotal:         o.GrandTotal.String(),
		ColStatus:             string(o.Status),
	}
	if o.Mechanic != "" {
		r[ColMechanic] = o.Mechanic
	}
	if o.DefectGroup != "" {
		r[ColDefectGroup] = o.DefectGroup
	}
	return r
}

// FromRow converts a store row back to an order. Missing totals read as
// zero; a present but unparseable total is an error. Status is taken as is.
func FromRow(r store.Row) (model.ServiceOrder, error) {
	o := model.ServiceOrder{
		OrderNumber:        r[ColOrderNumber],
		OrderDate:          r[ColOrderDate],
		EngineManufacturer: r[ColEngineManufacturer],
		EngineModel:        r[ColEngineModel],
		VehicleModel:       r[ColVehicleModel],
		DefectDescription:  r[ColDefectDescription],
		ClientName:         r[ColClientName],
		Status:             model.Status(r[ColStatus]),
		Mechanic:           r[ColMechanic],
		DefectGroup:        r[ColDefectGroup],
	}
	var err error
	if o.PartsTotal, err = decimalField(r, ColPartsTotal); err != nil {
		return model.ServiceOrder{}, err
	}
	if o.ServiceTotal, err = decimalField(r, ColServiceTotal); err != nil {
		return model.ServiceOrder{}, err
	}
	if o.GrandTotal, err = decimalField(r, ColGrandTotal); err != nil {
		return model.ServiceOrder{}, err
	}
	return o, nil
}

func decimalField(r store.Row, col string) (decimal.Decimal, error) {
	v, ok := r[col]
	if !ok || v == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%s=%q: %w", col, v, err)
	}
	return d, nil
}

// Load reads every order, optionally filtered.
func Load(ctx context.Context, st store.Store, filters ...store.Filter) ([]model.ServiceOrder, error) {
	rows, err := st.Query(ctx, Table, nil, filters...)
	if err != nil {
		return nil, fmt.Errorf("load orders: %w", err)
	}
	out := make([]model.ServiceOrder, 0, len(rows))
	for i, r := range rows {
		o, err := FromRow(r)
		if err != nil {
			return nil, fmt.Errorf("decode order %d: %w", i, err)
		}
		out = append(out, o)
	}
	return out, nil
}

// Replace swaps the stored orders for orders.
func Replace(ctx context.Context, st store.Store, orders []model.ServiceOrder) error {
	rows := make([]store.Row, len(orders))
	for i, o := range orders {
		rows[i] = ToRow(o)
	}
	if err := st.ReplaceAll(ctx, Table, rows); err != nil {
		return fmt.Errorf("replace orders: %w", err)
	}
	return nil
}

// Distinct returns the distinct non-empty values of one column, in first
// seen order.
func Distinct(ctx context.Context, st store.Store, column string) ([]string, error) {
	rows, err := st.Query(ctx, Table, []string{column})
	if err != nil {
		return nil, fmt.Errorf("distinct %s: %w", column, err)
	}
	seen := make(map[string]struct{})
	out := []string{}
	for _, r := range rows {
		v := r[column]
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out, nil
}
