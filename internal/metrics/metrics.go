package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"garantias/internal/refine"
)

type Registry struct {
	reg *prometheus.Registry

	// Refinement
	RowsRead     prometheus.Counter
	RowsRetained prometheus.Counter
	RowsSkipped  *prometheus.CounterVec
	Mismatches   prometheus.Counter

	// Load
	LoadDurationSec prometheus.Histogram
	LastLoadRows    prometheus.Gauge
	LastLoadUnix    prometheus.Gauge
	LoadFailures    prometheus.Counter

	// Export
	TxProduced   prometheus.Counter
	TxAborted    prometheus.Counter
	TxLatencySec prometheus.Histogram

	// API
	APIRequests *prometheus.CounterVec
	APIErrors   *prometheus.CounterVec
}

func NewRegistry() *Registry {
	r := prometheus.NewRegistry()
	rowsRead := prometheus.NewCounter(prometheus.CounterOpts{Name: "garantias_refine_rows_read_total"})
	rowsRetained := prometheus.NewCounter(prometheus.CounterOpts{Name: "garantias_refine_rows_retained_total"})
	rowsSkipped := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "garantias_refine_rows_skipped_total"}, []string{"reason"})
	mismatches := prometheus.NewCounter(prometheus.CounterOpts{Name: "garantias_refine_total_mismatches_total"})

	loadDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "garantias_load_duration_seconds",
		Buckets: prometheus.DefBuckets,
	})
	lastRows := prometheus.NewGauge(prometheus.GaugeOpts{Name: "garantias_last_load_rows"})
	lastUnix := prometheus.NewGauge(prometheus.GaugeOpts{Name: "garantias_last_load_timestamp_seconds"})
	loadFailures := prometheus.NewCounter(prometheus.CounterOpts{Name: "garantias_load_failures_total"})

	txProduced := prometheus.NewCounter(prometheus.CounterOpts{Name: "garantias_export_tx_produced_total"})
	txAborted := prometheus.NewCounter(prometheus.CounterOpts{Name: "garantias_export_tx_aborted_total"})
	txLatency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "garantias_export_tx_latency_seconds",
		Buckets: prometheus.DefBuckets,
	})

	apiRequests := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "garantias_api_requests_total"}, []string{"route"})
	apiErrors := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "garantias_api_errors_total"}, []string{"route", "code"})

	r.MustRegister(rowsRead, rowsRetained, rowsSkipped, mismatches,
		loadDuration, lastRows, lastUnix, loadFailures,
		txProduced, txAborted, txLatency,
		apiRequests, apiErrors)
	return &Registry{
		reg:             r,
		RowsRead:        rowsRead,
		RowsRetained:    rowsRetained,
		RowsSkipped:     rowsSkipped,
		Mismatches:      mismatches,
		LoadDurationSec: loadDuration,
		LastLoadRows:    lastRows,
		LastLoadUnix:    lastUnix,
		LoadFailures:    loadFailures,
		TxProduced:      txProduced,
		TxAborted:       txAborted,
		TxLatencySec:    txLatency,
		APIRequests:     apiRequests,
		APIErrors:       apiErrors,
	}
}

// ObserveRefine records the counts of one refinement run.
func (r *Registry) ObserveRefine(res refine.Result) {
	r.RowsRead.Add(float64(res.MinLen))
	r.RowsRetained.Add(float64(len(res.Orders)))
	for reason, n := range res.SkipCounts() {
		r.RowsSkipped.WithLabelValues(string(reason)).Add(float64(n))
	}
	r.Mismatches.Add(float64(len(res.Mismatches)))
}

func (r *Registry) Gatherer() prometheus.Gatherer { return r.reg }

func (r *Registry) Handler() http.Handler { return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{}) }
