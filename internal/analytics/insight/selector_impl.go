package insight

import (
	"context"
	"math"
	"sort"

	"github.com/enrolytics/enrolytics/internal/models"
)

const defaultTopN = 5

// selectorImpl is the concrete Selector.
type selectorImpl struct {
	cfg Config
}

// NewSelector creates an insight selector.
func NewSelector(cfg Config) Selector {
	if cfg.TopN < 1 {
		cfg.TopN = defaultTopN
	}
	return &selectorImpl{cfg: cfg}
}

// Select ranks the three finding categories.
func (s *selectorImpl) Select(ctx context.Context, flags []models.AnomalyFlag, clusters []models.ClusterAssignment, scores []models.RiskScore) ([]models.Finding, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var findings []models.Finding
	findings = append(findings, s.topAnomalies(flags)...)
	findings = append(findings, s.topRisks(scores)...)
	findings = append(findings, s.clusterOutliers(clusters)...)
	return findings, nil
}

// topAnomalies ranks anomalous flags by severity.
func (s *selectorImpl) topAnomalies(flags []models.AnomalyFlag) []models.Finding {
	var candidates []models.Finding
	for _, f := range flags {
		if f.Status != models.EvalAnomalous {
			continue
		}
		candidates = append(candidates, models.Finding{
			Category: models.FindingAnomaly,
			Region:   f.Region,
			Period:   f.Period,
			Feature:  f.Feature,
			Score:    f.Severity,
			Detail: map[string]float64{
				"value":    f.Value,
				"baseline": f.Baseline,
				"spread":   f.Spread,
			},
		})
	}
	return rank(candidates, s.cfg.TopN)
}

// topRisks ranks regions by total risk score.
func (s *selectorImpl) topRisks(scores []models.RiskScore) []models.Finding {
	candidates := make([]models.Finding, 0, len(scores))
	for _, sc := range scores {
		detail := make(map[string]float64, len(sc.Components))
		for c, v := range sc.Components {
			detail[string(c)] = v
		}
		candidates = append(candidates, models.Finding{
			Category: models.FindingHighRisk,
			Region:   sc.Region,
			Score:    sc.Total,
			Detail:   detail,
		})
	}
	return rank(candidates, s.cfg.TopN)
}

// clusterOutliers surfaces regions whose centroid distance exceeds
// their cluster's mean + 2 stddev, scored by the ratio beyond it.
func (s *selectorImpl) clusterOutliers(clusters []models.ClusterAssignment) []models.Finding {
	distances := make(map[int][]float64)
	for _, a := range clusters {
		if a.Clustered() {
			distances[a.Cluster] = append(distances[a.Cluster], a.Distance)
		}
	}
	thresholds := make(map[int]float64, len(distances))
	for id, ds := range distances {
		mean, stdDev := meanStdDev(ds)
		thresholds[id] = mean + 2*stdDev
	}

	var candidates []models.Finding
	for _, a := range clusters {
		if !a.Clustered() {
			continue
		}
		threshold := thresholds[a.Cluster]
		if threshold == 0 || a.Distance <= threshold {
			continue
		}
		candidates = append(candidates, models.Finding{
			Category: models.FindingClusterOutlier,
			Region:   a.Region,
			Score:    a.Distance / threshold,
			Detail: map[string]float64{
				"cluster":   float64(a.Cluster),
				"distance":  a.Distance,
				"threshold": threshold,
			},
		})
	}
	return rank(candidates, s.cfg.TopN)
}

// ─── Helpers ──────────────────────────────────────────────────────────────────

// rank orders candidates by score descending with deterministic
// tie-breaking (region, then period, then feature ascending), truncates
// to n, and assigns 1-based ranks.
func rank(candidates []models.Finding, n int) []models.Finding {
	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.Region != b.Region {
			return a.Region < b.Region
		}
		if a.Period != b.Period {
			return a.Period < b.Period
		}
		return a.Feature < b.Feature
	})
	if len(candidates) > n {
		candidates = candidates[:n]
	}
	for i := range candidates {
		candidates[i].Rank = i + 1
	}
	return candidates
}

// meanStdDev returns the mean and population standard deviation.
func meanStdDev(values []float64) (float64, float64) {
	if len(values) == 0 {
		return 0, 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	mean := sum / float64(len(values))

	variance := 0.0
	for _, v := range values {
		variance += (v - mean) * (v - mean)
	}
	variance /= float64(len(values))
	return mean, math.Sqrt(variance)
}
