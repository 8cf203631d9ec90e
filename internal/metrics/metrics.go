package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Namespace for all warehouse metrics
const namespace = "warehouse"

// Registry is the global Prometheus registry for all metrics
var Registry = prometheus.NewRegistry()

// AppInfo exposes build information as labels (value is always 1)
var AppInfo = promauto.With(Registry).NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "app_info",
		Help:      "Application build information (always set to 1, info in labels)",
	},
	[]string{"version", "commit", "build_date"},
)

// IngestBatchesTotal counts ingestion batches by terminal status
var IngestBatchesTotal = promauto.With(Registry).NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "ingest_batches_total",
		Help:      "Total number of ingestion batches by terminal status (succeeded|failed|rejected)",
	},
	[]string{"status"},
)

// IngestRowsTotal counts rows accepted into the warehouse
var IngestRowsTotal = promauto.With(Registry).NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "ingest_rows_total",
		Help:      "Total number of run rows promoted into the warehouse",
	},
)

// IngestDuration records end-to-end batch promotion latency
var IngestDuration = promauto.With(Registry).NewHistogram(
	prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "ingest_duration_seconds",
		Help:      "End-to-end batch promotion duration in seconds",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
	},
)

// BackfillRunsTotal counts dimension backfill runs by outcome
var BackfillRunsTotal = promauto.With(Registry).NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "backfill_runs_total",
		Help:      "Total number of dimension backfill runs by outcome (succeeded|failed)",
	},
	[]string{"status"},
)

// BackfillDuration records dimension backfill latency
var BackfillDuration = promauto.With(Registry).NewHistogram(
	prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "backfill_duration_seconds",
		Help:      "Dimension backfill duration in seconds",
		Buckets:   []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120},
	},
)

// Init registers the runtime collectors and sets build information.
func Init(version, commit, buildDate string) {
	Registry.MustRegister(collectors.NewGoCollector())
	Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	AppInfo.WithLabelValues(version, commit, buildDate).Set(1)
}
