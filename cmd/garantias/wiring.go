package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"garantias/internal/config"
	"garantias/internal/dataset"
	"garantias/internal/loadlog"
	"garantias/internal/model"
	"garantias/internal/refine"
	"garantias/internal/report"
	"garantias/internal/store"
	"garantias/internal/store/postgres"
	"garantias/internal/store/sqlite"
)

const reportKey = "garantias-report-latest"

func (a *app) openStore(ctx context.Context) (store.Store, error) {
	switch a.cfg.StoreBackend {
	case config.BackendMemory:
		return store.NewMemory(), nil
	case config.BackendPebble:
		ps, err := store.OpenPebble(a.cfg.PebbleDir)
		if err != nil {
			return nil, fmt.Errorf("init pebble: %w", err)
		}
		return ps, nil
	case config.BackendSQLite:
		if err := os.MkdirAll(filepath.Dir(a.cfg.SQLitePath), 0o755); err != nil {
			return nil, fmt.Errorf("mkdir: %w", err)
		}
		ss, err := sqlite.Open(a.cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("init sqlite: %w", err)
		}
		return ss, nil
	case config.BackendPostgres:
		pg, err := postgres.Open(ctx, a.cfg.PostgresURL)
		if err != nil {
			return nil, fmt.Errorf("init postgres: %w", err)
		}
		return pg, nil
	}
	return nil, fmt.Errorf("unknown store backend %q", a.cfg.StoreBackend)
}

// sinks holds the report publisher and load event writer of one run. Either
// may be nil when its sink is "none".
type sinks struct {
	reports report.Publisher
	events  loadlog.Writer
	closers []io.Closer
}

func (s *sinks) Close() error {
	var errs []error
	for _, c := range s.closers {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}

func (a *app) openSinks() (*sinks, error) {
	s := &sinks{}

	var pubs []report.Publisher
	if config.WantsFile(a.cfg.ReportSink) {
		pubs = append(pubs, report.NewFilesystemStore(a.cfg.ReportDir))
	}
	if config.WantsKafka(a.cfg.ReportSink) {
		kp := report.NewKafkaPublisher(a.cfg.KafkaBootstrap, a.cfg.TopicReports, reportKey)
		pubs = append(pubs, kp)
		s.closers = append(s.closers, kp)
	}
	switch len(pubs) {
	case 0:
	case 1:
		s.reports = pubs[0]
	default:
		s.reports = report.MultiPublisher(pubs...)
	}

	var writers []loadlog.Writer
	if config.WantsFile(a.cfg.LoadLogSink) {
		fw, err := loadlog.NewFileWriter(a.cfg.LoadLogDir, "loadlog.jsonl")
		if err != nil {
			_ = s.Close()
			return nil, fmt.Errorf("init loadlog file: %w", err)
		}
		writers = append(writers, fw)
	}
	if config.WantsKafka(a.cfg.LoadLogSink) {
		kw := loadlog.NewKafkaWriter(a.cfg.KafkaBootstrap, a.cfg.TopicLoadLog)
		writers = append(writers, kw)
		s.closers = append(s.closers, kw)
	}
	switch len(writers) {
	case 0:
	case 1:
		s.events = writers[0]
	default:
		s.events = loadlog.NewMultiWriter(writers...)
	}
	return s, nil
}

// reportReader returns the reader backing GET /api/reconciliacao. The
// filesystem is preferred when reports go to both sinks; nil means reports
// are not kept.
func (a *app) reportReader() report.Reader {
	switch {
	case config.WantsFile(a.cfg.ReportSink):
		return report.NewFilesystemStore(a.cfg.ReportDir)
	case config.WantsKafka(a.cfg.ReportSink):
		return report.NewKafkaReader(a.cfg.KafkaBootstrap, a.cfg.TopicReports, reportKey)
	}
	return nil
}

func (a *app) refiner(minYear int) *refine.Refiner {
	return refine.New(refine.WithLogger(a.log.Named("refine")), refine.WithMinYear(minYear))
}

// load replaces the stored orders with res.Orders, then publishes the
// reconciliation report and the load events. A failed replace leaves the
// previous record set in place and publishes nothing.
func (a *app) load(ctx context.Context, st store.Store, source string, res refine.Result) (report.Report, error) {
	rep := report.New(source, res)
	log := a.log.With(zap.String("run", rep.RunID), zap.String("source", source))

	t0 := time.Now()
	if err := dataset.Replace(ctx, st, res.Orders); err != nil {
		a.metrics.LoadFailures.Inc()
		return rep, err
	}
	a.metrics.LoadDurationSec.Observe(time.Since(t0).Seconds())
	a.metrics.LastLoadRows.Set(float64(len(res.Orders)))
	a.metrics.LastLoadUnix.Set(float64(rep.CreatedAtEpochSecond))
	log.Info("record set replaced",
		zap.Int("rows", len(res.Orders)),
		zap.Int("skipped", len(res.Skips)),
		zap.Int("mismatches", len(res.Mismatches)),
		zap.Duration("took", time.Since(t0)))

	s, err := a.openSinks()
	if err != nil {
		return rep, err
	}
	defer s.Close()
	if s.reports != nil {
		if err := s.reports.PublishLatest(ctx, rep); err != nil {
			return rep, fmt.Errorf("publish report: %w", err)
		}
	}
	if s.events != nil {
		if err := loadlog.AppendAll(ctx, s.events, loadlog.Events(rep.RunID, res, rep.CreatedAtEpochSecond)); err != nil {
			return rep, fmt.Errorf("append load events: %w", err)
		}
	}
	return rep, nil
}

// readColumns reads a column directory through the optional layout file.
func readColumns(ctx context.Context, dir, layoutPath string) (model.RawColumnSet, error) {
	layout := refine.DefaultLayout()
	if layoutPath != "" {
		l, err := refine.LoadLayout(layoutPath)
		if err != nil {
			return nil, err
		}
		layout = l
	}
	return refine.ReadColumnDir(ctx, dir, layout)
}
