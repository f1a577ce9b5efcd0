package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"garantias/internal/config"
	"garantias/internal/metrics"
)

// app is the state shared by every subcommand once the root pre-run has
// loaded configuration and built the logger.
type app struct {
	cfg     config.Config
	log     *zap.Logger
	metrics *metrics.Registry
	verbose bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "garantias:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	a := &app{log: zap.NewNop(), metrics: metrics.NewRegistry()}
	var ov overrides

	root := &cobra.Command{
		Use:   "garantias",
		Short: "Warranty service-order refinement, loading and dashboard API",
		Long: `garantias refines columnar service-order exports into validated records,
loads them into a record store with an atomic full replace, and serves
dashboard statistics over HTTP.

Configuration comes from GARANTIAS_* environment variables; flags override.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ov.resolve(cmd.Flags().Changed)
			if err != nil {
				return err
			}
			a.cfg = cfg

			zc := zap.NewProductionConfig()
			if a.verbose || cfg.Verbose {
				zc.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
			}
			logger, err := zc.Build()
			if err != nil {
				return fmt.Errorf("failed to initialize logger: %w", err)
			}
			a.log = logger
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			_ = a.log.Sync()
		},
	}

	pf := root.PersistentFlags()
	pf.BoolVarP(&a.verbose, "verbose", "v", false, "enable debug logging")
	ov.register(pf.StringVar)

	root.AddCommand(
		newRefineCmd(a),
		newLoadCmd(a),
		newIngestCmd(a),
		newServeCmd(a),
		newPublishCmd(a),
	)
	return root
}

// overrides are persistent flags that replace config fields when set.
type overrides struct {
	store, pebbleDir, sqlitePath, databaseURL string
	kafka, reportSink, loadlogSink            string
	reportDir, loadlogDir                     string
}

func (o *overrides) register(str func(p *string, name, value, usage string)) {
	str(&o.store, "store", "", "record store backend: memory|pebble|sqlite|postgres")
	str(&o.pebbleDir, "pebble-dir", "", "pebble data directory")
	str(&o.sqlitePath, "sqlite-path", "", "sqlite database file")
	str(&o.databaseURL, "database-url", "", "postgres connection url")
	str(&o.kafka, "kafka-bootstrap", "", "kafka bootstrap servers, e.g. localhost:9092")
	str(&o.reportSink, "report-sink", "", "reconciliation report sink: file|kafka|both|none")
	str(&o.loadlogSink, "loadlog-sink", "", "load event sink: file|kafka|both|none")
	str(&o.reportDir, "report-dir", "", "reconciliation report directory")
	str(&o.loadlogDir, "loadlog-dir", "", "load event directory")
}

// resolve reads the environment, applies the changed flags and validates
// the merged result.
func (o *overrides) resolve(changed func(string) bool) (config.Config, error) {
	cfg, err := config.Parse()
	if err != nil {
		return config.Config{}, err
	}
	o.apply(changed, &cfg)
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func (o *overrides) apply(changed func(string) bool, cfg *config.Config) {
	for _, f := range []struct {
		name string
		val  string
		dst  *string
	}{
		{"store", o.store, &cfg.StoreBackend},
		{"pebble-dir", o.pebbleDir, &cfg.PebbleDir},
		{"sqlite-path", o.sqlitePath, &cfg.SQLitePath},
		{"database-url", o.databaseURL, &cfg.PostgresURL},
		{"kafka-bootstrap", o.kafka, &cfg.KafkaBootstrap},
		{"report-sink", o.reportSink, &cfg.ReportSink},
		{"loadlog-sink", o.loadlogSink, &cfg.LoadLogSink},
		{"report-dir", o.reportDir, &cfg.ReportDir},
		{"loadlog-dir", o.loadlogDir, &cfg.LoadLogDir},
	} {
		if changed(f.name) {
			*f.dst = f.val
		}
	}
}
