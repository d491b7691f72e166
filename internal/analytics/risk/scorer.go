package risk

import (
	"context"

	"github.com/enrolytics/enrolytics/internal/models"
)

// Package risk combines anomaly, clustering, and trend signals into one
// bounded, decomposable score per region.
//
// Responsibilities:
//   - Compute three per-region component signals on [0,1]:
//     anomaly pressure, cluster outlierness, and recent trend
//   - Combine them via a documented weighted sum into a total on
//     [0,100], retaining the components and effective weights so the
//     total is auditable
//   - Redistribute the cluster weight proportionally when a region was
//     excluded from clustering, never silently zeroing the component
//   - Bucket each total into a RiskLevel for operational triage
//
// Components:
//
//   anomaly — density x mean severity of the region's anomalous flags,
//   where density is anomalous count over the region's evaluated flag
//   count (normalizing by the region's own data volume), rescaled to
//   [0,1] against the run's maximum.
//
//   cluster_outlier — the region's centroid distance over its cluster's
//   typical distance (mean + 2 stddev of member distances), clamped to
//   [0,1]. A cluster whose members all sit on the centroid contributes
//   0.
//
//   trend — |latest growth_rate| plus any rising rejection_rate slope
//   across the window, rescaled to [0,1] against the run's maximum.
//
// Combination Rule:
//   total = 100 * sum(component[c] * weight[c]) with weights normalized
//   over the components the region actually has. Weights need not sum
//   to 1 in config; normalization happens here.
//
// Integration Points:
//   - Anomaly Detector / Clustering Engine: provide the inputs
//   - Insight Selector: ranks regions by the totals produced here
//   - Results Store / Report Writer: persist the decomposition

// Default component weights, applied when config carries none.
const (
	DefaultAnomalyWeight = 0.5
	DefaultClusterWeight = 0.25
	DefaultTrendWeight   = 0.25
)

// Scorer produces one RiskScore per region.
type Scorer interface {
	// Score combines the three signals for every region present in
	// vectors. Scores are ordered by region id ascending.
	Score(ctx context.Context, vectors []models.FeatureVector, flags []models.AnomalyFlag, clusters []models.ClusterAssignment) ([]models.RiskScore, error)
}

// Config controls scoring.
type Config struct {
	// Weights maps component name to a non-negative weight. Empty
	// selects the defaults; weights need not sum to 1.
	Weights map[models.RiskComponent]float64
}

// Summary aggregates a run's scores for reporting.
type Summary struct {
	Regions       int                      `json:"regions"`
	ByLevel       map[models.RiskLevel]int `json:"by_level"`
	HighestRegion string                   `json:"highest_region"`
	HighestScore  float64                  `json:"highest_score"`
	MeanScore     float64                  `json:"mean_score"`
}

// Summarize folds scores into a Summary. Ties for the highest score go
// to the lexicographically smaller region.
func Summarize(scores []models.RiskScore) Summary {
	s := Summary{ByLevel: make(map[models.RiskLevel]int)}
	sum := 0.0
	for _, sc := range scores {
		s.Regions++
		s.ByLevel[sc.Level]++
		sum += sc.Total
		if sc.Total > s.HighestScore ||
			(sc.Total == s.HighestScore && (s.HighestRegion == "" || sc.Region < s.HighestRegion)) {
			s.HighestScore = sc.Total
			s.HighestRegion = sc.Region
		}
	}
	if s.Regions > 0 {
		s.MeanScore = sum / float64(s.Regions)
	}
	return s
}

// The concrete implementation is in scorer_impl.go.
