package risk

import (
	"context"
	"math"
	"sort"

	"github.com/enrolytics/enrolytics/internal/models"
)

// scorerImpl is the concrete Scorer.
type scorerImpl struct {
	weights map[models.RiskComponent]float64
}

// NewScorer creates a risk scorer. Configured weights are merged over
// the defaults per component; negative weights are treated as 0.
func NewScorer(cfg Config) Scorer {
	weights := map[models.RiskComponent]float64{
		models.ComponentAnomaly: DefaultAnomalyWeight,
		models.ComponentCluster: DefaultClusterWeight,
		models.ComponentTrend:   DefaultTrendWeight,
	}
	for c, w := range cfg.Weights {
		if w < 0 {
			w = 0
		}
		weights[c] = w
	}
	return &scorerImpl{weights: weights}
}

// flagStats accumulates one region's anomaly evaluation outcomes.
type flagStats struct {
	evaluated   int
	anomalous   int
	severitySum float64
}

// Score combines anomaly, cluster, and trend components per region.
func (s *scorerImpl) Score(ctx context.Context, vectors []models.FeatureVector, flags []models.AnomalyFlag, clusters []models.ClusterAssignment) ([]models.RiskScore, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, nil
	}

	byRegion := groupVectors(vectors)
	regions := sortedRegions(byRegion)

	anomalyComp := s.anomalyComponents(regions, flags)
	clusterComp := s.clusterComponents(clusters)
	trendComp := s.trendComponents(regions, byRegion)

	scores := make([]models.RiskScore, 0, len(regions))
	for _, region := range regions {
		components := map[models.RiskComponent]float64{
			models.ComponentAnomaly: anomalyComp[region],
			models.ComponentTrend:   trendComp[region],
		}
		if c, ok := clusterComp[region]; ok {
			components[models.ComponentCluster] = c
		}

		weights := normalizeWeights(s.weights, components)

		total := 0.0
		for c, v := range components {
			total += v * weights[c]
		}
		total = clamp01(total) * 100

		scores = append(scores, models.RiskScore{
			Region:     region,
			Total:      total,
			Level:      models.RiskLevelFor(total),
			Components: components,
			Weights:    weights,
		})
	}
	return scores, nil
}

// anomalyComponents computes density x mean severity per region,
// rescaled against the run maximum.
func (s *scorerImpl) anomalyComponents(regions []string, flags []models.AnomalyFlag) map[string]float64 {
	stats := make(map[string]*flagStats)
	for _, f := range flags {
		st := stats[f.Region]
		if st == nil {
			st = &flagStats{}
			stats[f.Region] = st
		}
		if f.Status == models.EvalNotEvaluated {
			continue
		}
		st.evaluated++
		if f.Status == models.EvalAnomalous {
			st.anomalous++
			st.severitySum += f.Severity
		}
	}

	raw := make(map[string]float64, len(regions))
	for _, region := range regions {
		st := stats[region]
		if st == nil || st.evaluated == 0 || st.anomalous == 0 {
			raw[region] = 0
			continue
		}
		density := float64(st.anomalous) / float64(st.evaluated)
		meanSeverity := st.severitySum / float64(st.anomalous)
		raw[region] = density * meanSeverity
	}
	maxNormalize(raw)
	return raw
}

// clusterComponents computes distance over the cluster's typical
// distance (mean + 2 stddev of member distances), clamped to [0,1].
// Unclustered regions are absent from the returned map.
func (s *scorerImpl) clusterComponents(clusters []models.ClusterAssignment) map[string]float64 {
	distances := make(map[int][]float64)
	for _, a := range clusters {
		if a.Clustered() {
			distances[a.Cluster] = append(distances[a.Cluster], a.Distance)
		}
	}

	typical := make(map[int]float64, len(distances))
	for id, ds := range distances {
		mean, stdDev := meanStdDev(ds)
		typical[id] = mean + 2*stdDev
	}

	comp := make(map[string]float64)
	for _, a := range clusters {
		if !a.Clustered() {
			continue
		}
		t := typical[a.Cluster]
		if t == 0 {
			comp[a.Region] = 0
			continue
		}
		comp[a.Region] = clamp01(a.Distance / t)
	}
	return comp
}

// trendComponents computes |latest growth| plus any rising rejection
// slope per region, rescaled against the run maximum.
func (s *scorerImpl) trendComponents(regions []string, byRegion map[string][]models.FeatureVector) map[string]float64 {
	raw := make(map[string]float64, len(regions))
	for _, region := range regions {
		vs := byRegion[region]

		latestGrowth := 0.0
		for i := len(vs) - 1; i >= 0; i-- {
			if g, ok := vs[i].Feature(models.FeatureGrowthRate); ok {
				latestGrowth = math.Abs(g)
				break
			}
		}

		var rejections []float64
		for _, fv := range vs {
			if r, ok := fv.Feature(models.FeatureRejectionRate); ok {
				rejections = append(rejections, r)
			}
		}
		rejectionRise := 0.0
		if len(rejections) >= 2 {
			rise := linearSlope(rejections) * float64(len(rejections)-1)
			rejectionRise = math.Max(0, rise)
		}

		raw[region] = latestGrowth + rejectionRise
	}
	maxNormalize(raw)
	return raw
}

// ─── Helpers ──────────────────────────────────────────────────────────────────

// groupVectors indexes vectors by region, periods ascending.
func groupVectors(vectors []models.FeatureVector) map[string][]models.FeatureVector {
	byRegion := make(map[string][]models.FeatureVector)
	for _, fv := range vectors {
		byRegion[fv.Region] = append(byRegion[fv.Region], fv)
	}
	for _, vs := range byRegion {
		sort.Slice(vs, func(i, j int) bool { return vs[i].Period < vs[j].Period })
	}
	return byRegion
}

func sortedRegions(byRegion map[string][]models.FeatureVector) []string {
	regions := make([]string, 0, len(byRegion))
	for region := range byRegion {
		regions = append(regions, region)
	}
	sort.Strings(regions)
	return regions
}

// normalizeWeights renormalizes the configured weights over the
// components a region actually has, so an absent component's weight
// redistributes proportionally.
func normalizeWeights(weights map[models.RiskComponent]float64, components map[models.RiskComponent]float64) map[models.RiskComponent]float64 {
	total := 0.0
	for c := range components {
		total += weights[c]
	}
	out := make(map[models.RiskComponent]float64, len(components))
	if total == 0 {
		return out
	}
	for c := range components {
		out[c] = weights[c] / total
	}
	return out
}

// maxNormalize rescales non-negative values in place against their
// maximum. An all-zero map stays zero.
func maxNormalize(values map[string]float64) {
	max := 0.0
	for _, v := range values {
		if v > max {
			max = v
		}
	}
	if max == 0 {
		return
	}
	for k, v := range values {
		values[k] = v / max
	}
}

// linearSlope is the least-squares slope of values over their indices.
func linearSlope(values []float64) float64 {
	n := float64(len(values))
	if n < 2 {
		return 0
	}
	var sumX, sumY, sumXY, sumXX float64
	for i, y := range values {
		x := float64(i)
		sumX += x
		sumY += y
		sumXY += x * y
		sumXX += x * x
	}
	denom := n*sumXX - sumX*sumX
	if denom == 0 {
		return 0
	}
	return (n*sumXY - sumX*sumY) / denom
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

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
