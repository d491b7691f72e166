package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Analytics service metrics for production monitoring
var (
	// Run metrics
	RunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "enrolytics_runs_total",
			Help: "Total number of analysis runs",
		},
		[]string{"status"}, // status: success/failed
	)

	RunDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "enrolytics_run_duration_seconds",
			Help:    "End-to-end analysis run duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~20s
		},
	)

	StageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "enrolytics_stage_duration_seconds",
			Help:    "Per-stage analysis duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~2s
		},
		[]string{"stage"}, // stage: validate/extract/detect/cluster/score/select
	)

	ActiveRuns = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "enrolytics_active_runs",
			Help: "Number of analysis runs currently executing",
		},
	)

	// Result metrics
	AnomalyFlags = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "enrolytics_anomaly_flags_total",
			Help: "Total number of anomalous flags raised",
		},
		[]string{"feature"},
	)

	RegionsClustered = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "enrolytics_regions_clustered",
			Help: "Regions assigned to a cluster in the latest run",
		},
	)

	// Ingest metrics
	RecordsIngested = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "enrolytics_records_ingested_total",
			Help: "Total number of records loaded from datasets",
		},
	)

	DataQualityIssues = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "enrolytics_data_quality_issues_total",
			Help: "Total number of rows repaired or dropped during cleaning",
		},
		[]string{"kind"}, // kind: bad_date/missing_region/bad_value/duplicate/capped_value
	)

	// Store metrics
	RunsPersisted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "enrolytics_runs_persisted_total",
			Help: "Total number of run results written to the store",
		},
	)

	// Config metrics
	ConfigReloads = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "enrolytics_config_reloads_total",
			Help: "Total number of configuration reload attempts",
		},
		[]string{"status"}, // status: applied/rejected
	)
)
