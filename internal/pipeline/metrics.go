package pipeline

import (
	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "consolidator"

// Metrics are the pipeline counters. They are registered on the registry the
// caller supplies, so tests and the query service can each own one.
type Metrics struct {
	FilesRead       prometheus.Counter
	FilesSkipped    prometheus.Counter
	Rows            prometheus.Counter
	Events          prometheus.Counter
	DroppedRows     prometheus.Counter
	Inconsistencies *prometheus.CounterVec
	FieldErrors     *prometheus.CounterVec
	StageDuration   *prometheus.HistogramVec
}

// NewMetrics creates the pipeline metrics and registers them on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		FilesRead: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "files_read_total",
			Help:      "Source files read successfully.",
		}),
		FilesSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "files_skipped_total",
			Help:      "Source files skipped after an open or read error.",
		}),
		Rows: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "rows_total",
			Help:      "Data rows read from source files.",
		}),
		Events: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "events_total",
			Help:      "Rows classified as claims/events expenses.",
		}),
		DroppedRows: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "dropped_rows_total",
			Help:      "Event rows dropped for an unparseable amount.",
		}),
		Inconsistencies: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "inconsistencies_total",
			Help:      "Distinct inconsistencies found while consolidating.",
		}, []string{"kind"}),
		FieldErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "field_errors_total",
			Help:      "Field validation failures.",
		}, []string{"kind"}),
		StageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "stage_duration_seconds",
			Help:      "Duration of each pipeline stage.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"stage"}),
	}

	reg.MustRegister(
		m.FilesRead,
		m.FilesSkipped,
		m.Rows,
		m.Events,
		m.DroppedRows,
		m.Inconsistencies,
		m.FieldErrors,
		m.StageDuration,
	)
	return m
}

func (m *Metrics) observeFile(r FileResult) {
	if r.Skipped() {
		m.FilesSkipped.Inc()
		return
	}
	m.FilesRead.Inc()
	m.Rows.Add(float64(r.Rows))
	m.Events.Add(float64(len(r.Events)))
	m.DroppedRows.Add(float64(r.Dropped))
}
