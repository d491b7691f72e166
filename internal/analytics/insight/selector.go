package insight

import (
	"context"

	"github.com/enrolytics/enrolytics/internal/models"
)

// Package insight ranks the salient findings of a run into a bounded
// list for external narrative consumers.
//
// Responsibilities:
//   - Select the top-N highest-severity anomalies, top-N highest-risk
//     regions, and notable cluster outliers
//   - Rank deterministically: stable sort by score descending, ties
//     broken by the lexicographically smaller region id, then period,
//     then feature
//   - Emit structured Findings only; phrasing is an external concern
//
// Categories:
//   - anomaly: anomalous flags ranked by severity
//   - high_risk: regions ranked by total risk score
//   - cluster_outlier: clustered regions whose centroid distance
//     exceeds their cluster's mean + 2 stddev, ranked by how far
//     beyond that threshold they sit
//
// The selector is a pure function of its inputs: no side effects, no
// state between calls.

// Selector produces the ranked findings of one run.
type Selector interface {
	// Select returns findings grouped by category (anomaly, high_risk,
	// cluster_outlier), each ranked 1..TopN.
	Select(ctx context.Context, flags []models.AnomalyFlag, clusters []models.ClusterAssignment, scores []models.RiskScore) ([]models.Finding, error)
}

// Config controls selection.
type Config struct {
	// TopN bounds each category's list; at least 1.
	TopN int
}

// The concrete implementation is in selector_impl.go.
