package api

import (
	"encoding/json"

	"github.com/shopspring/decimal"

	"garantias/internal/aggregate"
	"garantias/internal/model"
)

// Money values are JSON numbers with exactly two decimals.
func money(d decimal.Decimal) json.Number { return json.Number(d.StringFixed(2)) }

type statsJSON struct {
	TotalOS            int         `json:"totalOS"`
	TotalPecas         json.Number `json:"totalPecas"`
	TotalServicos      json.Number `json:"totalServicos"`
	TotalGeral         json.Number `json:"totalGeral"`
	TotalMecanicos     int         `json:"totalMecanicos"`
	TotalTiposDefeitos int         `json:"totalTiposDefeitos"`
}

func statsDTO(s aggregate.Stats) statsJSON {
	return statsJSON{
		TotalOS:            s.TotalOrders,
		TotalPecas:         money(s.TotalParts),
		TotalServicos:      money(s.TotalService),
		TotalGeral:         money(s.TotalGeneral),
		TotalMecanicos:     s.TotalMechanics,
		TotalTiposDefeitos: s.TotalDefectTypes,
	}
}

type groupJSON struct {
	Grupo      string `json:"grupo"`
	Quantidade int    `json:"quantidade"`
}

type statusJSON struct {
	Status     string `json:"status"`
	Quantidade int    `json:"quantidade"`
}

type periodJSON struct {
	Periodo    string      `json:"periodo"`
	Quantidade int         `json:"quantidade"`
	Valor      json.Number `json:"valor"`
}

type chartsJSON struct {
	DefeitosPorGrupo   []groupJSON  `json:"defeitosPorGrupo"`
	StatusDistribuicao []statusJSON `json:"statusDistribuicao"`
	OrdensTemporais    []periodJSON `json:"ordensTemporais"`
}

func chartsDTO(c aggregate.Charts) chartsJSON {
	out := chartsJSON{
		DefeitosPorGrupo:   make([]groupJSON, len(c.DefectsByGroup)),
		StatusDistribuicao: make([]statusJSON, len(c.StatusDistribution)),
		OrdensTemporais:    make([]periodJSON, len(c.OrdersOverTime)),
	}
	for i, g := range c.DefectsByGroup {
		out.DefeitosPorGrupo[i] = groupJSON{Grupo: g.Group, Quantidade: g.Count}
	}
	for i, s := range c.StatusDistribution {
		out.StatusDistribuicao[i] = statusJSON{Status: s.Status, Quantidade: s.Count}
	}
	for i, p := range c.OrdersOverTime {
		out.OrdensTemporais[i] = periodJSON{Periodo: p.Label, Quantidade: p.Count, Valor: money(p.Value)}
	}
	return out
}

// orderJSON keeps the stored precision of each total.
type orderJSON struct {
	NumeroOrdem         string      `json:"numero_ordem"`
	DataOrdem           string      `json:"data_ordem"`
	FabricanteMotor     string      `json:"fabricante_motor"`
	ModeloMotor         string      `json:"modelo_motor"`
	ModeloVeiculo       string      `json:"modelo_veiculo_motor"`
	DefeitoTextoBruto   string      `json:"defeito_texto_bruto"`
	Cliente             string      `json:"cliente"`
	TotalPecas          json.Number `json:"total_pecas"`
	TotalServico        json.Number `json:"total_servico"`
	TotalGeral          json.Number `json:"total_geral"`
	Status              string      `json:"status"`
	MecanicoResponsavel string      `json:"mecanico_responsavel,omitempty"`
	DefeitoGrupo        string      `json:"defeito_grupo,omitempty"`
}

func orderDTO(o model.ServiceOrder) orderJSON {
	return orderJSON{
		NumeroOrdem:         o.OrderNumber,
		DataOrdem:           o.OrderDate,
		FabricanteMotor:     o.EngineManufacturer,
		ModeloMotor:         o.EngineModel,
		ModeloVeiculo:       o.VehicleModel,
		DefeitoTextoBruto:   o.DefectDescription,
		Cliente:             o.ClientName,
		TotalPecas:          json.Number(o.PartsTotal.String()),
		TotalServico:        json.Number(o.ServiceTotal.String()),
		TotalGeral:          json.Number(o.GrandTotal.String()),
		Status:              string(o.Status),
		MecanicoResponsavel: o.Mechanic,
		DefeitoGrupo:        o.DefectGroup,
	}
}
