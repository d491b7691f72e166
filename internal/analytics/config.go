package analytics

import (
	"github.com/enrolytics/enrolytics/internal/analytics/anomaly"
	"github.com/enrolytics/enrolytics/internal/analytics/cluster"
	"github.com/enrolytics/enrolytics/internal/models"
)

// Config is the single immutable configuration value for one pipeline.
// It is passed at construction and never mutated afterward, so
// concurrent pipelines with different configurations cannot interfere.
type Config struct {
	// BaselineMethod is anomaly.BaselineParametric or
	// anomaly.BaselineRobust.
	BaselineMethod string
	// Threshold is the anomaly flag distance in spread units; zero
	// selects the method default (3.0 parametric, 1.5 robust).
	Threshold float64
	// MinHistory is the minimum prior-period count before a record is
	// evaluated and before volume_zscore is computed; at least 2.
	MinHistory int

	// K is the cluster count, at least 1, or cluster.KAuto.
	K int
	// MaxIterations bounds k-means iterations.
	MaxIterations int
	// Seed drives all clustering randomness.
	Seed int64
	// Window is cluster.WindowFull or cluster.WindowLatest.
	Window string

	// Weights are the risk component weights; empty selects defaults.
	// They need not sum to 1.
	Weights map[models.RiskComponent]float64

	// TopN bounds each insight category.
	TopN int
}

// DefaultConfig returns the configuration used when the caller supplies
// nothing: parametric baselines at 3 spread units, auto cluster count
// at seed 42 over the full window, default risk weights, five findings
// per category.
func DefaultConfig() Config {
	return Config{
		BaselineMethod: anomaly.BaselineParametric,
		Threshold:      anomaly.DefaultParametricThreshold,
		MinHistory:     3,
		K:              cluster.KAuto,
		MaxIterations:  300,
		Seed:           42,
		Window:         cluster.WindowFull,
		TopN:           5,
	}
}

// echo flattens the config into run metadata for auditability.
func (c Config) echo() map[string]any {
	weights := make(map[string]float64, len(c.Weights))
	for comp, w := range c.Weights {
		weights[string(comp)] = w
	}
	return map[string]any{
		"baseline_method": c.BaselineMethod,
		"threshold":       c.Threshold,
		"min_history":     c.MinHistory,
		"k":               c.K,
		"max_iterations":  c.MaxIterations,
		"seed":            c.Seed,
		"window":          c.Window,
		"weights":         weights,
		"top_n":           c.TopN,
	}
}
