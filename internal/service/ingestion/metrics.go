package ingestion

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"bronze-ingest/internal/domain"
)

// Metrics holds the Prometheus collectors of the pipeline. A nil *Metrics
// records nothing.
type Metrics struct {
	runs             *prometheus.CounterVec
	manifestWarnings *prometheus.CounterVec
	rowsNormalized   *prometheus.GaugeVec
	rowsWritten      *prometheus.GaugeVec
	stageDuration    *prometheus.HistogramVec
}

// NewMetrics creates the pipeline collectors and registers them on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bronze",
			Name:      "table_runs_total",
			Help:      "Finished table runs by table, status and error kind.",
		}, []string{"table", "status", "error_kind"}),
		manifestWarnings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bronze",
			Name:      "manifest_warnings_total",
			Help:      "Merges whose manifest could not be regenerated.",
		}, []string{"table"}),
		rowsNormalized: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "bronze",
			Name:      "rows_normalized",
			Help:      "Rows produced by the last normalization of a table.",
		}, []string{"table"}),
		rowsWritten: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "bronze",
			Name:      "rows_written",
			Help:      "Destination row count after the last write of a table.",
		}, []string{"table"}),
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "bronze",
			Name:      "stage_duration_seconds",
			Help:      "Duration of pipeline stages.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 4, 8),
		}, []string{"stage"}),
	}
	reg.MustRegister(m.runs, m.manifestWarnings, m.rowsNormalized, m.rowsWritten, m.stageDuration)
	return m
}

func (m *Metrics) observeStage(stage domain.Stage, d time.Duration) {
	if m == nil {
		return
	}
	m.stageDuration.WithLabelValues(string(stage)).Observe(d.Seconds())
}

func (m *Metrics) observeRun(run *domain.TableRun) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(run.Table, string(run.Status), domain.ErrorKind(run.Err)).Inc()
	if run.Warning != nil {
		m.manifestWarnings.WithLabelValues(run.Table).Inc()
	}
}

func (m *Metrics) setRowsNormalized(table string, n int64) {
	if m == nil {
		return
	}
	m.rowsNormalized.WithLabelValues(table).Set(float64(n))
}

func (m *Metrics) setRowsWritten(table string, n int64) {
	if m == nil {
		return
	}
	m.rowsWritten.WithLabelValues(table).Set(float64(n))
}
