package risk

import (
	"context"
	"math"
	"testing"

	"github.com/enrolytics/enrolytics/internal/models"
)

func flag(region string, status models.EvalStatus, severity float64) models.AnomalyFlag {
	return models.AnomalyFlag{
		Region:   region,
		Period:   "2023-01",
		Feature:  models.FeatureRejectionRate,
		Status:   status,
		Severity: severity,
	}
}

func steadyVectors(region string, periods int) []models.FeatureVector {
	vectors := make([]models.FeatureVector, periods)
	for i := range vectors {
		vectors[i] = models.FeatureVector{
			Region:   region,
			Period:   "2023-0" + string(rune('1'+i)),
			Features: map[string]float64{models.FeatureRejectionRate: 0.1},
		}
	}
	return vectors
}

func scoreFor(t *testing.T, scores []models.RiskScore, region string) models.RiskScore {
	t.Helper()
	for _, s := range scores {
		if s.Region == region {
			return s
		}
	}
	t.Fatalf("No score for %s", region)
	return models.RiskScore{}
}

func TestScore_ComponentsAndBounds(t *testing.T) {
	scorer := NewScorer(Config{})

	vectors := append(steadyVectors("A", 2), steadyVectors("B", 2)...)

	// A: 2 of 4 evaluated flags anomalous with severities 4 and 6
	flags := []models.AnomalyFlag{
		flag("A", models.EvalNormal, 0),
		flag("A", models.EvalNormal, 0),
		flag("A", models.EvalAnomalous, 4),
		flag("A", models.EvalAnomalous, 6),
		flag("B", models.EvalNormal, 0),
		flag("B", models.EvalNormal, 0),
	}
	clusters := []models.ClusterAssignment{
		{Region: "A", Cluster: 0, Distance: 1},
		{Region: "B", Cluster: 0, Distance: 1},
	}

	scores, err := scorer.Score(context.Background(), vectors, flags, clusters)
	if err != nil {
		t.Fatalf("Score() error: %v", err)
	}
	if len(scores) != 2 {
		t.Fatalf("Expected 2 scores, got %d", len(scores))
	}

	for _, s := range scores {
		if s.Total < 0 || s.Total > 100 {
			t.Errorf("Region %s: total %f out of [0,100]", s.Region, s.Total)
		}

		weightSum := 0.0
		reconstructed := 0.0
		for c, v := range s.Components {
			if v < 0 || v > 1 {
				t.Errorf("Region %s: component %s = %f out of [0,1]", s.Region, c, v)
			}
			weightSum += s.Weights[c]
			reconstructed += v * s.Weights[c]
		}
		if math.Abs(weightSum-1) > 1e-9 {
			t.Errorf("Region %s: effective weights sum to %f", s.Region, weightSum)
		}
		if math.Abs(s.Total-reconstructed*100) > 1e-9 {
			t.Errorf("Region %s: total %f does not match components (%f)", s.Region, s.Total, reconstructed*100)
		}
		if s.Level != models.RiskLevelFor(s.Total) {
			t.Errorf("Region %s: level %s does not match total %f", s.Region, s.Level, s.Total)
		}
	}

	// A has density 0.5 and mean severity 5, rescaled to the run max of 1;
	// both regions sit exactly at their shared cluster's typical distance.
	a := scoreFor(t, scores, "A")
	if math.Abs(a.Components[models.ComponentAnomaly]-1) > 1e-9 {
		t.Errorf("Expected anomaly component 1 for A, got %f", a.Components[models.ComponentAnomaly])
	}
	if math.Abs(a.Total-75) > 1e-9 {
		t.Errorf("Expected total 75 for A, got %f", a.Total)
	}
	if a.Level != models.RiskHigh {
		t.Errorf("Expected HIGH for A, got %s", a.Level)
	}

	b := scoreFor(t, scores, "B")
	if b.Components[models.ComponentAnomaly] != 0 {
		t.Errorf("Expected anomaly component 0 for B, got %f", b.Components[models.ComponentAnomaly])
	}
	if math.Abs(b.Total-25) > 1e-9 {
		t.Errorf("Expected total 25 for B, got %f", b.Total)
	}
}

func TestScore_WeightRedistribution(t *testing.T) {
	scorer := NewScorer(Config{})

	vectors := append(append(steadyVectors("A", 2), steadyVectors("B", 2)...), steadyVectors("C", 2)...)
	clusters := []models.ClusterAssignment{
		{Region: "A", Cluster: 0, Distance: 1},
		{Region: "B", Cluster: 0, Distance: 1},
		{Region: "C", Cluster: models.ClusterUnclustered, MissingFeatures: []string{"growth_rate"}},
	}

	scores, err := scorer.Score(context.Background(), vectors, nil, clusters)
	if err != nil {
		t.Fatalf("Score() error: %v", err)
	}

	c := scoreFor(t, scores, "C")
	if _, present := c.Components[models.ComponentCluster]; present {
		t.Error("Unclustered region carries a cluster component")
	}
	if _, present := c.Weights[models.ComponentCluster]; present {
		t.Error("Unclustered region carries a cluster weight")
	}

	// The 0.25 cluster weight redistributes proportionally over 0.5 and
	// 0.25, giving 2/3 and 1/3.
	if math.Abs(c.Weights[models.ComponentAnomaly]-2.0/3.0) > 1e-9 {
		t.Errorf("Expected anomaly weight 2/3, got %f", c.Weights[models.ComponentAnomaly])
	}
	if math.Abs(c.Weights[models.ComponentTrend]-1.0/3.0) > 1e-9 {
		t.Errorf("Expected trend weight 1/3, got %f", c.Weights[models.ComponentTrend])
	}

	a := scoreFor(t, scores, "A")
	if math.Abs(a.Weights[models.ComponentAnomaly]-0.5) > 1e-9 ||
		math.Abs(a.Weights[models.ComponentCluster]-0.25) > 1e-9 ||
		math.Abs(a.Weights[models.ComponentTrend]-0.25) > 1e-9 {
		t.Errorf("Expected default weights 0.5/0.25/0.25 for A, got %v", a.Weights)
	}
}

func TestScore_CustomWeights(t *testing.T) {
	scorer := NewScorer(Config{Weights: map[models.RiskComponent]float64{
		models.ComponentAnomaly: -5, // negative is treated as 0
		models.ComponentCluster: 1,
		models.ComponentTrend:   1,
	}})

	vectors := steadyVectors("A", 2)
	clusters := []models.ClusterAssignment{{Region: "A", Cluster: 0, Distance: 1}}
	flags := []models.AnomalyFlag{flag("A", models.EvalAnomalous, 10)}

	scores, err := scorer.Score(context.Background(), vectors, flags, clusters)
	if err != nil {
		t.Fatalf("Score() error: %v", err)
	}

	a := scoreFor(t, scores, "A")
	if a.Weights[models.ComponentAnomaly] != 0 {
		t.Errorf("Expected anomaly weight 0, got %f", a.Weights[models.ComponentAnomaly])
	}
	if math.Abs(a.Weights[models.ComponentCluster]-0.5) > 1e-9 {
		t.Errorf("Expected cluster weight 0.5, got %f", a.Weights[models.ComponentCluster])
	}

	// The anomaly signal is present but weightless.
	if a.Components[models.ComponentAnomaly] != 1 {
		t.Errorf("Expected anomaly component 1, got %f", a.Components[models.ComponentAnomaly])
	}
	want := 100 * (a.Components[models.ComponentCluster]*0.5 + a.Components[models.ComponentTrend]*0.5)
	if math.Abs(a.Total-want) > 1e-9 {
		t.Errorf("Expected total %f, got %f", want, a.Total)
	}
}

func TestScore_TightClusterContributesZero(t *testing.T) {
	scorer := NewScorer(Config{})

	vectors := append(steadyVectors("A", 2), steadyVectors("B", 2)...)
	clusters := []models.ClusterAssignment{
		{Region: "A", Cluster: 0, Distance: 0},
		{Region: "B", Cluster: 0, Distance: 0},
	}

	scores, err := scorer.Score(context.Background(), vectors, nil, clusters)
	if err != nil {
		t.Fatalf("Score() error: %v", err)
	}

	for _, s := range scores {
		if s.Components[models.ComponentCluster] != 0 {
			t.Errorf("Region %s: members on the centroid should contribute 0, got %f",
				s.Region, s.Components[models.ComponentCluster])
		}
	}
}

func TestScore_TrendComponent(t *testing.T) {
	scorer := NewScorer(Config{})

	vectors := []models.FeatureVector{
		{Region: "A", Period: "2023-01", Features: map[string]float64{models.FeatureRejectionRate: 0.1}},
		{Region: "A", Period: "2023-02", Features: map[string]float64{
			models.FeatureRejectionRate: 0.1,
			models.FeatureGrowthRate:    0.5,
		}},
		{Region: "B", Period: "2023-01", Features: map[string]float64{models.FeatureRejectionRate: 0.1}},
		{Region: "B", Period: "2023-02", Features: map[string]float64{
			models.FeatureRejectionRate: 0.2,
			models.FeatureGrowthRate:    0.1,
		}},
	}

	scores, err := scorer.Score(context.Background(), vectors, nil, nil)
	if err != nil {
		t.Fatalf("Score() error: %v", err)
	}

	// A: |growth| 0.5. B: |growth| 0.1 plus rejection rise 0.1 = 0.2.
	// Rescaled against the run max: A = 1.0, B = 0.4.
	a := scoreFor(t, scores, "A")
	if math.Abs(a.Components[models.ComponentTrend]-1.0) > 1e-9 {
		t.Errorf("Expected trend component 1.0 for A, got %f", a.Components[models.ComponentTrend])
	}
	b := scoreFor(t, scores, "B")
	if math.Abs(b.Components[models.ComponentTrend]-0.4) > 1e-9 {
		t.Errorf("Expected trend component 0.4 for B, got %f", b.Components[models.ComponentTrend])
	}

	// Without cluster assignments the cluster component is absent and the
	// anomaly and trend weights carry everything.
	if _, present := a.Components[models.ComponentCluster]; present {
		t.Error("Cluster component present without any assignments")
	}
	if math.Abs(a.Weights[models.ComponentAnomaly]-2.0/3.0) > 1e-9 {
		t.Errorf("Expected redistributed anomaly weight 2/3, got %f", a.Weights[models.ComponentAnomaly])
	}
}

func TestScore_EmptyVectors(t *testing.T) {
	scorer := NewScorer(Config{})

	scores, err := scorer.Score(context.Background(), nil, nil, nil)
	if err != nil {
		t.Fatalf("Score() error: %v", err)
	}
	if len(scores) != 0 {
		t.Errorf("Expected no scores, got %d", len(scores))
	}
}

func TestSummarize(t *testing.T) {
	scores := []models.RiskScore{
		{Region: "Y", Total: 85, Level: models.RiskCritical},
		{Region: "X", Total: 85, Level: models.RiskCritical},
		{Region: "Z", Total: 10, Level: models.RiskVeryLow},
	}

	s := Summarize(scores)

	if s.Regions != 3 {
		t.Errorf("Expected 3 regions, got %d", s.Regions)
	}
	if s.ByLevel[models.RiskCritical] != 2 || s.ByLevel[models.RiskVeryLow] != 1 {
		t.Errorf("Unexpected level counts: %v", s.ByLevel)
	}
	if s.HighestScore != 85 {
		t.Errorf("Expected highest score 85, got %f", s.HighestScore)
	}
	// Ties go to the lexicographically smaller region.
	if s.HighestRegion != "X" {
		t.Errorf("Expected highest region X, got %s", s.HighestRegion)
	}
	if math.Abs(s.MeanScore-60) > 1e-9 {
		t.Errorf("Expected mean 60, got %f", s.MeanScore)
	}
}

func TestSummarize_Empty(t *testing.T) {
	s := Summarize(nil)
	if s.Regions != 0 || s.MeanScore != 0 || s.HighestRegion != "" {
		t.Errorf("Expected zero summary, got %+v", s)
	}
}
