package cluster

import (
	"context"

	"github.com/enrolytics/enrolytics/internal/models"
)

// Package cluster partitions regions into behaviorally similar groups
// with seeded k-means over standardized features.
//
// Responsibilities:
//   - Aggregate each region's feature vectors into one point per region
//     (full-window mean by default, or the latest period's vector)
//   - Standardize every feature to zero mean and unit variance across
//     regions so differently scaled features contribute comparably
//   - Partition regions with k-means, either at a fixed k or selecting
//     k by mean silhouette score over a small candidate range
//   - Exclude regions missing any standardized feature and report them
//     as unclustered rather than imputing silently
//   - Report each region's Euclidean distance to its centroid as the
//     within-cluster outlier signal
//
// Determinism:
//   - All randomness flows from one seeded rand.Source: centroid
//     initialization (k-means++ style), empty-cluster re-seeding, and
//     nothing else. Same table + same seed + same k gives bit-for-bit
//     identical assignments across runs. Auto-k runs every candidate k
//     from a fresh source with the same seed, so the selected k's
//     assignments equal the evaluated ones.
//
// Degenerate Inputs:
//   - A feature with zero variance across regions standardizes to 0 for
//     everyone; it cannot separate regions and never divides by zero.
//   - k is capped at the number of clusterable regions.
//   - A centroid that loses all members is re-seeded to the point
//     farthest from its former position.
//
// Integration Points:
//   - Feature Extractor: provides the matrix aggregated here
//   - Risk Scorer: turns centroid distances into the cluster-outlier
//     component
//   - Insight Selector: surfaces notable cluster outliers
//   - Pipeline: runs clustering concurrently with anomaly detection

// KAuto selects the cluster count by silhouette score over candidates
// k = 2..min(8, regions-1).
const KAuto = 0

// Aggregation windows.
const (
	WindowFull   = "full"   // mean of each feature over the region's periods
	WindowLatest = "latest" // the region's final period only
)

// Engine clusters regions over their aggregated feature vectors.
type Engine interface {
	// Cluster returns one assignment per region, ordered by region id
	// ascending. Regions missing any standardized feature carry
	// models.ClusterUnclustered and the missing feature names.
	Cluster(ctx context.Context, vectors []models.FeatureVector) ([]models.ClusterAssignment, error)
}

// Config controls clustering.
type Config struct {
	// K is the cluster count, at least 1, or KAuto.
	K int
	// MaxIterations bounds Lloyd iterations; zero selects the default.
	MaxIterations int
	// Seed drives all randomness for reproducibility.
	Seed int64
	// Window is WindowFull or WindowLatest.
	Window string
}

// The concrete implementation is in engine_impl.go.
