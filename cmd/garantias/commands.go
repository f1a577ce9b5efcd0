package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"garantias/internal/api"
	"garantias/internal/model"
	"garantias/internal/publish"
	"garantias/internal/refine"
	"garantias/internal/report"
	"garantias/internal/store"
)

type columnFlags struct {
	dir     string
	layout  string
	minYear int
}

func (c *columnFlags) register(cmd *cobra.Command, required bool) {
	cmd.Flags().StringVar(&c.dir, "columns", "", "directory holding one text file per column")
	cmd.Flags().StringVar(&c.layout, "layout", "", "YAML file mapping column names to file names")
	cmd.Flags().IntVar(&c.minYear, "min-year", 0, "first order year kept (default from GARANTIAS_MIN_YEAR)")
	if required {
		_ = cmd.MarkFlagRequired("columns")
	}
}

// refineColumns reads and refines the column directory and records refinement
// metrics.
func (a *app) refineColumns(ctx context.Context, c columnFlags) (refine.Result, error) {
	minYear := a.cfg.MinYear
	if c.minYear != 0 {
		minYear = c.minYear
	}
	cols, err := readColumns(ctx, c.dir, c.layout)
	if err != nil {
		return refine.Result{}, err
	}
	res, err := a.refiner(minYear).Refine(cols)
	if err != nil {
		return refine.Result{}, err
	}
	a.metrics.ObserveRefine(res)
	a.log.Info("refined",
		zap.String("columns", c.dir),
		zap.Int("examined", res.MinLen),
		zap.Int("retained", len(res.Orders)),
		zap.Int("skipped", len(res.Skips)),
		zap.Int("mismatches", len(res.Mismatches)))
	return res, nil
}

func newRefineCmd(a *app) *cobra.Command {
	var cf columnFlags
	var out string
	cmd := &cobra.Command{
		Use:   "refine",
		Short: "Refine column files into a CSV of validated service orders",
		Long: `Reads one text file per source column, keeps rows from the configured
year onwards with status G, GO or GU, normalizes the totals and writes the
result as CSV. The reconciliation report goes to the configured report sink.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			res, err := a.refineColumns(ctx, cf)
			if err != nil {
				return err
			}
			if err := writeCSVFile(out, res.Orders); err != nil {
				return err
			}
			rep := report.New(cf.dir, res)
			s, err := a.openSinks()
			if err != nil {
				return err
			}
			defer s.Close()
			if s.reports != nil {
				if err := s.reports.PublishLatest(ctx, rep); err != nil {
					return fmt.Errorf("publish report: %w", err)
				}
			}
			a.log.Info("csv written", zap.String("path", out), zap.String("run", rep.RunID))
			return nil
		},
	}
	cf.register(cmd, true)
	cmd.Flags().StringVar(&out, "out", "refined.csv", "output CSV path")
	return cmd
}

func newLoadCmd(a *app) *cobra.Command {
	var csvPath string
	cmd := &cobra.Command{
		Use:   "load",
		Short: "Replace the stored service orders with the contents of a refined CSV",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			orders, err := readCSVFile(csvPath)
			if err != nil {
				return err
			}
			res := refine.Result{
				Orders:     orders,
				Mismatches: refine.Reconcile(orders),
				InputRows:  len(orders),
				MinLen:     len(orders),
			}
			return a.withStore(ctx, func(st store.Store) error {
				_, err := a.load(ctx, st, csvPath, res)
				return err
			})
		},
	}
	cmd.Flags().StringVar(&csvPath, "csv", "", "refined CSV produced by the refine command")
	_ = cmd.MarkFlagRequired("csv")
	return cmd
}

func newIngestCmd(a *app) *cobra.Command {
	var cf columnFlags
	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Refine column files and load the result in one step",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			res, err := a.refineColumns(ctx, cf)
			if err != nil {
				return err
			}
			return a.withStore(ctx, func(st store.Store) error {
				_, err := a.load(ctx, st, cf.dir, res)
				return err
			})
		},
	}
	cf.register(cmd, true)
	return cmd
}

func newServeCmd(a *app) *cobra.Command {
	var cf columnFlags
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the dashboard HTTP API",
		Long: `Serves the dashboard API over the configured record store. With --columns
the directory is ingested before the listener starts, which makes the
memory backend usable on its own.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if addr == "" {
				addr = a.cfg.HTTPAddr
			}
			return a.withStore(ctx, func(st store.Store) error {
				if cf.dir != "" {
					res, err := a.refineColumns(ctx, cf)
					if err != nil {
						return err
					}
					if _, err := a.load(ctx, st, cf.dir, res); err != nil {
						return err
					}
				}
				srv := api.New(st,
					api.WithLogger(a.log.Named("api")),
					api.WithMetrics(a.metrics),
					api.WithReports(a.reportReader()),
				)
				return srv.ListenAndServe(ctx, addr)
			})
		},
	}
	cf.register(cmd, false)
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from GARANTIAS_HTTP_ADDR)")
	return cmd
}

func newPublishCmd(a *app) *cobra.Command {
	var csvPath, topic, txID string
	cmd := &cobra.Command{
		Use:   "publish",
		Short: "Export a refined CSV to Kafka in one transaction",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if a.cfg.KafkaBootstrap == "" {
				return errors.New("publish requires --kafka-bootstrap or GARANTIAS_KAFKA_BOOTSTRAP")
			}
			if topic == "" {
				topic = a.cfg.TopicOrders
			}
			if txID == "" {
				txID = a.cfg.ExportTxID
			}
			orders, err := readCSVFile(csvPath)
			if err != nil {
				return err
			}
			exp, err := publish.NewExporter(ctx, a.cfg.KafkaBootstrap, topic, txID,
				publish.WithLogger(a.log.Named("publish")),
				publish.WithMetrics(a.metrics))
			if err != nil {
				return err
			}
			defer exp.Close()
			_, err = exp.Export(ctx, uuid.NewString(), orders)
			return err
		},
	}
	cmd.Flags().StringVar(&csvPath, "csv", "", "refined CSV to export")
	cmd.Flags().StringVar(&topic, "topic", "", "destination topic (default from GARANTIAS_TOPIC_ORDERS)")
	cmd.Flags().StringVar(&txID, "tx-id", "", "transactional id (default from GARANTIAS_EXPORT_TX_ID)")
	_ = cmd.MarkFlagRequired("csv")
	return cmd
}

// withStore opens the configured store for the duration of fn.
func (a *app) withStore(ctx context.Context, fn func(store.Store) error) error {
	st, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	a.log.Debug("store opened", zap.String("backend", a.cfg.StoreBackend))
	defer func() {
		if err := st.Close(); err != nil {
			a.log.Warn("close store", zap.Error(err))
		}
	}()
	return fn(st)
}

func writeCSVFile(path string, orders []model.ServiceOrder) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create csv: %w", err)
	}
	if err := refine.WriteCSV(f, orders); err != nil {
		_ = f.Close()
		return fmt.Errorf("write csv: %w", err)
	}
	return f.Close()
}

func readCSVFile(path string) ([]model.ServiceOrder, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open csv: %w", err)
	}
	defer f.Close()
	orders, err := refine.ReadCSV(f)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return orders, nil
}
