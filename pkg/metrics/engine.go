package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Engine metrics.
var (
	SearchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "search_duration_seconds",
			Help:      "Search duration in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"mode"}, // "scan" / "index"
	)

	SearchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "searches_total",
			Help:      "Total number of searches",
		},
		[]string{"mode", "status"},
	)

	IndexBuildsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "index_builds_total",
			Help:      "Total number of full-text index builds",
		},
		[]string{"status"},
	)

	ExportedPlacemarksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "export_placemarks_total",
			Help:      "Rows considered by geo exports",
		},
		[]string{"result"}, // "exported" / "skipped"
	)

	DatabaseSwitchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "database_switches_total",
			Help:      "Total number of database switch attempts",
		},
		[]string{"status"},
	)

	ActiveTables = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_tables",
			Help:      "Number of tables in the active database",
		},
	)
)

func init() {
	prometheus.MustRegister(SearchDuration, SearchesTotal, IndexBuildsTotal,
		ExportedPlacemarksTotal, DatabaseSwitchesTotal, ActiveTables)
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// ObserveSearch records one search.
func ObserveSearch(mode string, took time.Duration, err error) {
	SearchesTotal.WithLabelValues(mode, status(err)).Inc()
	if err == nil {
		SearchDuration.WithLabelValues(mode).Observe(took.Seconds())
	}
}

// ObserveIndexBuild records one index build.
func ObserveIndexBuild(err error) {
	IndexBuildsTotal.WithLabelValues(status(err)).Inc()
}

// ObserveExport records the outcome of one export.
func ObserveExport(exported, skipped int) {
	ExportedPlacemarksTotal.WithLabelValues("exported").Add(float64(exported))
	ExportedPlacemarksTotal.WithLabelValues("skipped").Add(float64(skipped))
}

// ObserveSwitch records a database switch attempt and the table count of the
// database now active.
func ObserveSwitch(tables int, err error) {
	DatabaseSwitchesTotal.WithLabelValues(status(err)).Inc()
	if err == nil {
		ActiveTables.Set(float64(tables))
	}
}
