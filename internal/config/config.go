// Package config holds process configuration read from GARANTIAS_*
// environment variables. Command-line flags override individual fields.
package config

import (
	"errors"
	"fmt"

	"github.com/caarlos0/env/v11"
)

// Store backends.
const (
	BackendMemory   = "memory"
	BackendPebble   = "pebble"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
)

// Sink modes for reports and load events.
const (
	SinkFile  = "file"
	SinkKafka = "kafka"
	SinkBoth  = "both"
	SinkNone  = "none"
)

type Config struct {
	StoreBackend string `env:"GARANTIAS_STORE_BACKEND" envDefault:"sqlite"`
	PebbleDir    string `env:"GARANTIAS_PEBBLE_DIR" envDefault:"./data/pebble"`
	SQLitePath   string `env:"GARANTIAS_SQLITE_PATH" envDefault:"./data/garantias.db"`
	PostgresURL  string `env:"GARANTIAS_DATABASE_URL"`

	HTTPAddr string `env:"GARANTIAS_HTTP_ADDR" envDefault:":3001"`

	KafkaBootstrap string `env:"GARANTIAS_KAFKA_BOOTSTRAP"`
	ReportSink     string `env:"GARANTIAS_REPORT_SINK" envDefault:"file"`
	LoadLogSink    string `env:"GARANTIAS_LOADLOG_SINK" envDefault:"file"`
	ReportDir      string `env:"GARANTIAS_REPORT_DIR" envDefault:"./reports"`
	LoadLogDir     string `env:"GARANTIAS_LOADLOG_DIR" envDefault:"./loadlog"`
	TopicReports   string `env:"GARANTIAS_TOPIC_REPORTS" envDefault:"garantias.reports"`
	TopicLoadLog   string `env:"GARANTIAS_TOPIC_LOADLOG" envDefault:"garantias.loadlog"`
	TopicOrders    string `env:"GARANTIAS_TOPIC_ORDERS" envDefault:"garantias.ordens"`
	ExportTxID     string `env:"GARANTIAS_EXPORT_TX_ID" envDefault:"garantias-export"`

	MinYear int  `env:"GARANTIAS_MIN_YEAR" envDefault:"2019"`
	Verbose bool `env:"GARANTIAS_VERBOSE"`
}

// Parse reads the environment into a Config without validating it, so that
// flag overrides can be applied before Validate runs.
func Parse() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

// Load parses the environment into a Config and validates it.
func Load() (Config, error) {
	cfg, err := Parse()
	if err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks enumerated fields and backend prerequisites.
func (c Config) Validate() error {
	switch c.StoreBackend {
	case BackendMemory, BackendPebble, BackendSQLite:
	case BackendPostgres:
		if c.PostgresURL == "" {
			return errors.New("postgres backend requires GARANTIAS_DATABASE_URL")
		}
	default:
		return fmt.Errorf("unknown store backend %q", c.StoreBackend)
	}
	for name, sink := range map[string]string{"report sink": c.ReportSink, "loadlog sink": c.LoadLogSink} {
		switch sink {
		case SinkFile, SinkNone:
		case SinkKafka, SinkBoth:
			if c.KafkaBootstrap == "" {
				return fmt.Errorf("%s %q requires GARANTIAS_KAFKA_BOOTSTRAP", name, sink)
			}
		default:
			return fmt.Errorf("unknown %s %q", name, sink)
		}
	}
	return nil
}

// WantsFile reports whether sink includes the filesystem.
func WantsFile(sink string) bool { return sink == SinkFile || sink == SinkBoth }

// WantsKafka reports whether sink includes Kafka.
func WantsKafka(sink string) bool { return sink == SinkKafka || sink == SinkBoth }
