package anomaly

import (
	"context"

	"github.com/enrolytics/enrolytics/internal/models"
)

// Package anomaly flags feature values that deviate statistically from
// their region's own baseline, using classical statistics.
//
// Responsibilities:
//   - Evaluate every (region, period, feature) triple independently
//   - Build per-region, per-feature baselines from the periods observed
//     before the one being judged (expanding window)
//   - Support a parametric baseline (mean/stddev) and a robust one
//     (median/IQR) that resists contamination by the anomalies
//     themselves
//   - Report "not evaluated" distinctly from "evaluated, normal" when a
//     record has too little prior history
//   - Special-case zero-spread baselines instead of dividing by zero
//   - Fan per-region evaluation out across workers
//
// Philosophy: Classical Statistics, NOT Machine Learning
//   - Deterministic and reproducible: identical input and configuration
//     always produce identical flag decisions
//   - Fully interpretable: every flag carries the baseline center,
//     spread, and deviation that produced it
//   - No training phase; the baseline is the region's own history
//
// Detection Methods:
//
//   1. Parametric (default threshold 3.0)
//      - baseline: mean and population stddev of prior values
//      - anomalous when |value - mean| / stddev > threshold
//
//   2. Robust (default threshold 1.5)
//      - baseline: median and interquartile range of prior values
//      - anomalous when value < q1 - t*IQR or value > q3 + t*IQR
//      - preferred when history already contains outliers
//
// Zero Spread:
//   - All prior values identical makes any deviation technically
//     infinite. Only exact non-matches (beyond epsilon) are flagged,
//     with a finite severity of threshold + |deviation|; matches are
//     normal. No division happens.
//
// Evaluation Gate:
//   - A record needs at least MinHistory prior periods carrying the
//     feature before it is judged. Below that it is EvalNotEvaluated,
//     which downstream consumers must never read as normal.
//
// Integration Points:
//   - Feature Extractor: produces the matrix evaluated here
//   - Risk Scorer: aggregates flags into per-region severity
//   - Insight Selector: ranks the highest-severity flags
//   - Pipeline: runs detection concurrently with clustering

// Baseline methods.
const (
	BaselineParametric = "parametric"
	BaselineRobust     = "robust"
)

// Default thresholds per baseline method, in spread units.
const (
	DefaultParametricThreshold = 3.0
	DefaultRobustThreshold     = 1.5
)

// Detector evaluates a feature matrix and returns one AnomalyFlag per
// (region, period, feature) triple that carries a value.
type Detector interface {
	// Detect evaluates all vectors. Flags are ordered by region, then
	// feature, then period ascending. Periods whose vector does not
	// carry a feature produce no flag for it; the vector's Missing map
	// already records why.
	Detect(ctx context.Context, vectors []models.FeatureVector) ([]models.AnomalyFlag, error)
}

// Config controls detection.
type Config struct {
	// BaselineMethod is BaselineParametric or BaselineRobust.
	BaselineMethod string
	// Threshold is the flag distance in spread units; must be > 0.
	// Zero selects the method's default.
	Threshold float64
	// MinHistory is the minimum number of prior periods carrying the
	// feature before a record is evaluated; at least 2.
	MinHistory int
}

// The concrete implementation is in detector_impl.go.
