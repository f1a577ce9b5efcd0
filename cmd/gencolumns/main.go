package main

import (
	"bufio"
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"garantias/internal/model"
)

type genOptions struct {
	count    int
	out      string
	seed     uint64
	fromYear int
	toYear   int
}

func main() {
	var opts genOptions
	cmd := &cobra.Command{
		Use:   "gencolumns",
		Short: "Write synthetic service-order column files",
		Long: `Writes one text file per source column (header line, then one value per
row), in the layout read by "garantias refine --columns". Some rows carry
old years, non-warranty statuses, unparseable totals or totals that do not
reconcile, so every refinement path is exercised.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := zap.NewProduction()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()
			if err := generateColumns(opts); err != nil {
				return fmt.Errorf("generation failed: %w", err)
			}
			logger.Info("generated columns", zap.Int("rows", opts.count), zap.String("dir", opts.out))
			return nil
		},
	}
	cmd.Flags().IntVar(&opts.count, "count", 100, "number of rows to generate")
	cmd.Flags().StringVar(&opts.out, "out", "columns", "output directory")
	cmd.Flags().Uint64Var(&opts.seed, "seed", 1, "random seed")
	cmd.Flags().IntVar(&opts.fromYear, "from-year", 2017, "earliest order year")
	cmd.Flags().IntVar(&opts.toYear, "to-year", 2025, "latest order year")
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var (
	manufacturers = []string{"MWM", "Cummins", "Mercedes-Benz", "Scania"}
	engines       = []string{"X10", "ISF 2.8", "OM 924", "DC13"}
	vehicles      = []string{"Cargo 816", "Accelo 1016", "Constellation 24.280", "P 360"}
	defects       = []string{"vazamento de oleo", "superaquecimento", "ruido no motor", "falha na injecao", "quebra de correia"}
	clients       = []string{"Transportes Silva", "Logistica Norte", "Rodoviario Sul", "Expresso Central"}
	statuses      = []string{"G", "G", "GO", "GU", "GU", "C", "P"}
)

func generateColumns(o genOptions) error {
	if o.toYear < o.fromYear {
		return fmt.Errorf("to-year %d before from-year %d", o.toYear, o.fromYear)
	}
	r := rand.New(rand.NewPCG(o.seed, o.seed^0x9e3779b97f4a7c15))
	cols := make(map[string][]string, len(model.RequiredColumns))
	for i := 0; i < o.count; i++ {
		year := o.fromYear + r.IntN(o.toYear-o.fromYear+1)
		date := fmt.Sprintf("%02d/%02d/%d", 1+r.IntN(28), 1+r.IntN(12), year)

		parts := decimal.New(int64(1000+r.IntN(500000)), -2)
		service := decimal.New(int64(r.IntN(200000)), -2)
		total := parts.Add(service)
		rawParts := comma(parts.Mul(decimal.NewFromInt(2)))
		switch r.IntN(20) {
		case 0:
			total = total.Add(decimal.New(int64(1+r.IntN(999)), -2))
		case 1:
			rawParts = "n/d"
		}

		cols[model.ColOrderNumber] = append(cols[model.ColOrderNumber], fmt.Sprintf("%d", 100000+i))
		cols[model.ColOrderDate] = append(cols[model.ColOrderDate], date)
		cols[model.ColEngineManufacturer] = append(cols[model.ColEngineManufacturer], pick(r, manufacturers))
		cols[model.ColEngineModel] = append(cols[model.ColEngineModel], pick(r, engines))
		cols[model.ColVehicleModel] = append(cols[model.ColVehicleModel], pick(r, vehicles))
		cols[model.ColDefectDescription] = append(cols[model.ColDefectDescription], pick(r, defects))
		cols[model.ColClientName] = append(cols[model.ColClientName], pick(r, clients))
		cols[model.ColPartsTotal] = append(cols[model.ColPartsTotal], rawParts)
		cols[model.ColServiceTotal] = append(cols[model.ColServiceTotal], comma(service))
		cols[model.ColGrandTotal] = append(cols[model.ColGrandTotal], comma(total))
		cols[model.ColStatus] = append(cols[model.ColStatus], pick(r, statuses))
	}

	if err := os.MkdirAll(o.out, 0o755); err != nil {
		return fmt.Errorf("mkdir: %w", err)
	}
	for _, name := range model.RequiredColumns {
		if err := writeColumn(filepath.Join(o.out, model.ColumnFile(name)), name, cols[name]); err != nil {
			return err
		}
	}
	return nil
}

func writeColumn(path, header string, values []string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	w := bufio.NewWriter(f)
	fmt.Fprintln(w, header)
	for _, v := range values {
		fmt.Fprintln(w, v)
	}
	if err := w.Flush(); err != nil {
		_ = f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}

func comma(d decimal.Decimal) string {
	return strings.Replace(d.StringFixed(2), ".", ",", 1)
}

func pick(r *rand.Rand, xs []string) string { return xs[r.IntN(len(xs))] }
