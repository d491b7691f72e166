package models

import "time"

// Package models defines the core data types shared across enrolytics.
//
// The canonical table, derived feature vectors, anomaly flags, cluster
// assignments, risk scores, and the aggregated AnalysisResult all live
// here so that the analytics stages, the store, and the report writer
// agree on one shape.

// Canonical metric roles. The ingest layer resolves arbitrary source
// column names onto these; the analytics core never sees anything else.
const (
	MetricEnrolments = "enrolments"
	MetricUpdates    = "updates"
	MetricRejections = "rejections"
	MetricAge0to18   = "age_0_18"
	MetricAge19to40  = "age_19_40"
	MetricAge41to60  = "age_41_60"
	MetricAge60Plus  = "age_60_plus"
)

// Derived feature names produced by the feature extractor.
const (
	FeatureRejectionRate = "rejection_rate"
	FeatureGrowthRate    = "growth_rate"
	FeatureVolumeZScore  = "volume_zscore"
	FeatureUpdateRatio   = "update_ratio"
)

// Reasons a feature is marked missing rather than computed.
const (
	MissingFirstPeriod         = "first_period"
	MissingPreviousZero        = "previous_period_zero"
	MissingInsufficientHistory = "insufficient_history"
	MissingZeroSpread          = "zero_spread"
	MissingMetricAbsent        = "metric_absent"
)

// Data-quality conditions attached to a feature that was still computed.
const (
	QualityZeroDenominator = "zero_denominator"
)

// Record is one canonical observation: a region's aggregated metrics for
// one period. Metric presence is explicit: a key absent from Metrics is
// a missing value, which is distinct from a stored zero.
type Record struct {
	Region  string             `json:"region"`
	Period  string             `json:"period"` // YYYY-MM
	Metrics map[string]float64 `json:"metrics"`
}

// Metric returns the named metric and whether it is present.
func (r Record) Metric(name string) (float64, bool) {
	v, ok := r.Metrics[name]
	return v, ok
}

// FeatureVector holds the derived features for one (region, period).
// Features only contains values that were actually computable; Missing
// records why each absent feature could not be computed, and Quality
// records conditions (like a zero denominator) on features that were
// computed anyway.
type FeatureVector struct {
	Region   string             `json:"region"`
	Period   string             `json:"period"`
	Features map[string]float64 `json:"features"`
	Missing  map[string]string  `json:"missing,omitempty"`
	Quality  map[string]string  `json:"quality,omitempty"`
}

// Feature returns the named feature and whether it was computed.
func (v FeatureVector) Feature(name string) (float64, bool) {
	f, ok := v.Features[name]
	return f, ok
}

// EvalStatus is the three-valued outcome of an anomaly evaluation.
// NotEvaluated (insufficient baseline) must never be conflated with
// Normal.
type EvalStatus string

const (
	EvalNotEvaluated EvalStatus = "not_evaluated"
	EvalNormal       EvalStatus = "normal"
	EvalAnomalous    EvalStatus = "anomalous"
)

// AnomalyFlag is the detector's verdict for one (region, period,
// feature) triple. Severity is the deviation in spread units; it is 0
// unless Status is EvalAnomalous, and always finite.
type AnomalyFlag struct {
	Region   string     `json:"region"`
	Period   string     `json:"period"`
	Feature  string     `json:"feature"`
	Status   EvalStatus `json:"status"`
	Value    float64    `json:"value"`
	Baseline float64    `json:"baseline"`
	Spread   float64    `json:"spread"`
	Severity float64    `json:"severity"`
}

// ClusterUnclustered marks a region excluded from clustering because of
// missing standardized features.
const ClusterUnclustered = -1

// ClusterAssignment maps a region to its cluster and records the
// Euclidean distance to the cluster centroid in standardized feature
// space. Excluded regions carry ClusterUnclustered and the features
// that were missing.
type ClusterAssignment struct {
	Region          string   `json:"region"`
	Cluster         int      `json:"cluster"`
	Distance        float64  `json:"distance"`
	MissingFeatures []string `json:"missing_features,omitempty"`
}

// Clustered reports whether the region was assigned to a real cluster.
func (a ClusterAssignment) Clustered() bool { return a.Cluster != ClusterUnclustered }

// RiskComponent names one contribution to a region's risk score.
type RiskComponent string

const (
	ComponentAnomaly RiskComponent = "anomaly"
	ComponentCluster RiskComponent = "cluster_outlier"
	ComponentTrend   RiskComponent = "trend"
)

// RiskLevel buckets a total risk score for operational triage.
type RiskLevel string

const (
	RiskCritical RiskLevel = "CRITICAL"
	RiskHigh     RiskLevel = "HIGH"
	RiskMedium   RiskLevel = "MEDIUM"
	RiskLow      RiskLevel = "LOW"
	RiskVeryLow  RiskLevel = "VERY_LOW"
)

// RiskLevelFor buckets a total score in [0,100].
func RiskLevelFor(total float64) RiskLevel {
	switch {
	case total >= 80:
		return RiskCritical
	case total >= 60:
		return RiskHigh
	case total >= 40:
		return RiskMedium
	case total >= 20:
		return RiskLow
	default:
		return RiskVeryLow
	}
}

// RiskScore is a region's bounded risk score plus the retained
// decomposition. Invariant: Total equals 100 * sum over components of
// Components[c]*Weights[c], and the effective Weights sum to 1. A
// component a region could not be evaluated on (an unclustered region's
// cluster component) is absent from both maps, with its weight
// redistributed proportionally over the rest.
type RiskScore struct {
	Region     string                    `json:"region"`
	Total      float64                   `json:"total"` // 0..100
	Level      RiskLevel                 `json:"level"`
	Components map[RiskComponent]float64 `json:"components"` // each 0..1
	Weights    map[RiskComponent]float64 `json:"weights"`    // effective, sum 1
}

// FindingCategory names one of the insight selector's ranked lists.
type FindingCategory string

const (
	FindingAnomaly        FindingCategory = "anomaly"
	FindingHighRisk       FindingCategory = "high_risk"
	FindingClusterOutlier FindingCategory = "cluster_outlier"
)

// Finding is one structured, ranked insight item. It carries numbers
// only; phrasing belongs to external narrative consumers.
type Finding struct {
	Category FindingCategory    `json:"category"`
	Region   string             `json:"region"`
	Period   string             `json:"period,omitempty"`
	Feature  string             `json:"feature,omitempty"`
	Score    float64            `json:"score"`
	Rank     int                `json:"rank"` // 1-based within category
	Detail   map[string]float64 `json:"detail,omitempty"`
}

// RunMeta identifies and times one pipeline run.
type RunMeta struct {
	RunID          string                   `json:"run_id"`
	StartedAt      time.Time                `json:"started_at"`
	FinishedAt     time.Time                `json:"finished_at"`
	RecordCount    int                      `json:"record_count"`
	RegionCount    int                      `json:"region_count"`
	PeriodCount    int                      `json:"period_count"`
	StageDurations map[string]time.Duration `json:"stage_durations"`
	Config         map[string]any           `json:"config"`
}

// AnalysisResult aggregates everything one run produced. It is immutable
// once returned; a new run builds a new result from scratch.
type AnalysisResult struct {
	Meta     RunMeta             `json:"meta"`
	Features []FeatureVector     `json:"features"`
	Flags    []AnomalyFlag       `json:"flags"`
	Clusters []ClusterAssignment `json:"clusters"`
	Scores   []RiskScore         `json:"scores"`
	Findings []Finding           `json:"findings"`
}
