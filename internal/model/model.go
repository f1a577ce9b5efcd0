package model

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// Upstream export column names. Each one is a separate file in the raw export.
const (
	ColOrderNumber        = "NOrdem_OSv"
	ColOrderDate          = "Data_OSv"
	ColEngineManufacturer = "Fabricante_Mot"
	ColEngineModel        = "Descricao_Mot"
	ColVehicleModel       = "ModeloVei_Osv"
	ColDefectDescription  = "ObsCorpo_OSv"
	ColClientName         = "RazaoSocial_Cli"
	ColPartsTotal         = "TotalProd_OSv"
	ColServiceTotal       = "TotalServ_OSv"
	ColGrandTotal         = "Total_OSv"
	ColStatus             = "Status_OSv"
)

// RequiredColumns lists the export columns in their canonical order. The
// refined CSV header uses the same order.
var RequiredColumns = []string{
	ColOrderNumber,
	ColOrderDate,
	ColEngineManufacturer,
	ColEngineModel,
	ColVehicleModel,
	ColDefectDescription,
	ColClientName,
	ColPartsTotal,
	ColServiceTotal,
	ColGrandTotal,
	ColStatus,
}

// ColumnFile returns the file name the upstream export uses for col. The
// order-number file is spelled NOrdem_Osv.txt even though its header is
// NOrdem_OSv.
func ColumnFile(col string) string {
	if col == ColOrderNumber {
		return "NOrdem_Osv.txt"
	}
	return col + ".txt"
}

// RawColumnSet holds one value sequence per export column, aligned by row index.
// Sequences may have different lengths.
type RawColumnSet map[string][]string

// Missing returns the required columns that are absent from the set.
func (c RawColumnSet) Missing() []string {
	var out []string
	for _, name := range RequiredColumns {
		if _, ok := c[name]; !ok {
			out = append(out, name)
		}
	}
	return out
}

// MinLen returns the length of the shortest required column.
func (c RawColumnSet) MinLen() int {
	minLen := -1
	for _, name := range RequiredColumns {
		n := len(c[name])
		if minLen < 0 || n < minLen {
			minLen = n
		}
	}
	if minLen < 0 {
		return 0
	}
	return minLen
}

// MaxLen returns the length of the longest required column.
func (c RawColumnSet) MaxLen() int {
	maxLen := 0
	for _, name := range RequiredColumns {
		if n := len(c[name]); n > maxLen {
			maxLen = n
		}
	}
	return maxLen
}

// Status is the warranty status code of a service order.
type Status string

const (
	StatusG  Status = "G"
	StatusGO Status = "GO"
	StatusGU Status = "GU"
)

// ParseStatus accepts exactly G, GO and GU.
func ParseStatus(s string) (Status, bool) {
	switch Status(s) {
	case StatusG, StatusGO, StatusGU:
		return Status(s), true
	}
	return "", false
}

// ServiceOrder is one refined service order.
type ServiceOrder struct {
	OrderNumber        string          `json:"numero_ordem"`
	OrderDate          string          `json:"data_ordem"`
	EngineManufacturer string          `json:"fabricante_motor"`
	EngineModel        string          `json:"modelo_motor"`
	VehicleModel       string          `json:"modelo_veiculo_motor"`
	DefectDescription  string          `json:"defeito_texto_bruto"`
	ClientName         string          `json:"cliente"`
	PartsTotal         decimal.Decimal `json:"total_pecas"`
	ServiceTotal       decimal.Decimal `json:"total_servico"`
	GrandTotal         decimal.Decimal `json:"total_geral"`
	Status             Status          `json:"status"`

	// Optional attributes assigned outside the export. Empty means absent.
	Mechanic    string `json:"mecanico_responsavel,omitempty"`
	DefectGroup string `json:"defeito_grupo,omitempty"`
}

// OrderYear returns the year of a DD/MM/YYYY[ time] date. Only the year part
// is validated.
func OrderYear(date string) (int, error) {
	parts, err := dateParts(date)
	if err != nil {
		return 0, err
	}
	year, err := strconv.Atoi(parts[2])
	if err != nil {
		return 0, fmt.Errorf("bad year in %q: %w", date, err)
	}
	return year, nil
}

// OrderMonth returns year and month of a DD/MM/YYYY[ time] date.
func OrderMonth(date string) (int, int, error) {
	parts, err := dateParts(date)
	if err != nil {
		return 0, 0, err
	}
	month, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, 0, fmt.Errorf("bad month in %q: %w", date, err)
	}
	if month < 1 || month > 12 {
		return 0, 0, fmt.Errorf("month out of range in %q", date)
	}
	year, err := strconv.Atoi(parts[2])
	if err != nil {
		return 0, 0, fmt.Errorf("bad year in %q: %w", date, err)
	}
	return year, month, nil
}

func dateParts(date string) ([]string, error) {
	fields := strings.Fields(date)
	if len(fields) == 0 {
		return nil, fmt.Errorf("empty date")
	}
	parts := strings.Split(fields[0], "/")
	if len(parts) < 3 {
		return nil, fmt.Errorf("date %q is not DD/MM/YYYY", date)
	}
	return parts, nil
}
