package refine

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"

	"garantias/internal/model"
)

// ErrBadHeader is returned when a refined CSV does not carry the expected header.
var ErrBadHeader = errors.New("unexpected refined csv header")

// WriteCSV writes orders in the refined CSV format: the fixed header of
// model.RequiredColumns followed by one row per order.
func WriteCSV(w io.Writer, orders []model.ServiceOrder) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(model.RequiredColumns); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for i, o := range orders {
		rec := []string{
			o.OrderNumber,
			o.OrderDate,
			o.EngineManufacturer,
			o.EngineModel,
			o.VehicleModel,
			o.DefectDescription,
			o.ClientName,
			o.PartsTotal.String(),
			o.ServiceTotal.String(),
			o.GrandTotal.String(),
			string(o.Status),
		}
		if err := cw.Write(rec); err != nil {
			return fmt.Errorf("write row %d: %w", i, err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush: %w", err)
	}
	return nil
}

// ReadCSV parses a refined CSV. Totals are read with the period separator
// written by WriteCSV; rows with an unknown status are rejected.
func ReadCSV(r io.Reader) ([]model.ServiceOrder, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = len(model.RequiredColumns)
	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: empty file", ErrBadHeader)
		}
		return nil, fmt.Errorf("read header: %w", err)
	}
	for i, name := range model.RequiredColumns {
		if header[i] != name {
			return nil, fmt.Errorf("%w: column %d is %q, want %q", ErrBadHeader, i, header[i], name)
		}
	}

	var out []model.ServiceOrder
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read line %d: %w", line, err)
		}
		o, err := orderFromRecord(rec)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		out = append(out, o)
	}
	return out, nil
}

func orderFromRecord(rec []string) (model.ServiceOrder, error) {
	parts, err := ParseCommaDecimal(rec[7])
	if err != nil {
		return model.ServiceOrder{}, fmt.Errorf("%s: %w", model.ColPartsTotal, err)
	}
	service, err := ParseCommaDecimal(rec[8])
	if err != nil {
		return model.ServiceOrder{}, fmt.Errorf("%s: %w", model.ColServiceTotal, err)
	}
	grand, err := ParseCommaDecimal(rec[9])
	if err != nil {
		return model.ServiceOrder{}, fmt.Errorf("%s: %w", model.ColGrandTotal, err)
	}
	status, ok := model.ParseStatus(rec[10])
	if !ok {
		return model.ServiceOrder{}, fmt.Errorf("%s: unknown status %q", model.ColStatus, rec[10])
	}
	return model.ServiceOrder{
		OrderNumber:        rec[0],
		OrderDate:          rec[1],
		EngineManufacturer: rec[2],
		EngineModel:        rec[3],
		VehicleModel:       rec[4],
		DefectDescription:  rec[5],
		ClientName:         rec[6],
		PartsTotal:         parts,
		ServiceTotal:       service,
		GrandTotal:         grand,
		Status:             status,
	}, nil
}
