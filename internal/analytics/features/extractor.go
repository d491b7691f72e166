package features

import (
	"context"

	"github.com/enrolytics/enrolytics/internal/models"
)

// Package features derives per-region, per-period numeric feature
// vectors from canonical enrolment records.
//
// Responsibilities:
//   - Compute rate, delta, and ratio features per (region, period)
//   - Distinguish missing values from legitimate zeros, always
//   - Mark features uncomputable from insufficient samples as missing,
//     never fabricate them
//   - Surface absent required metrics as DataQualityError with the
//     offending region/period/field identified
//   - Fan per-region work out across workers (regions are independent)
//
// Features Computed:
//
//  1. rejection_rate = rejections / enrolments
//     - 0 when enrolments = 0, with a zero_denominator quality flag
//       (a data condition, not a division fault)
//
//  2. growth_rate = (current - previous) / previous enrolments
//     - missing for a region's first observed period
//     - missing when the previous period's enrolments are 0
//
//  3. volume_zscore = (enrolments - mean) / stddev over the region's
//     own history
//     - missing when the region has fewer than MinHistory periods
//     - missing when the region's history has zero spread
//
//  4. update_ratio = updates / enrolments
//     - same zero-denominator handling as rejection_rate
//     - missing when the updates metric is absent from the record
//
// Missing vs Zero:
//   - A metric absent from a Record is missing data; a stored 0 is a
//     real observation. The two never collapse into each other.
//   - Enrolments and rejections are required: an absent value aborts
//     the run with DataQualityError. Updates are optional: absence
//     marks update_ratio missing and the run continues.
//
// Integration Points:
//   - Ingest: produces the canonical records consumed here
//   - Anomaly Detector: evaluates the returned feature matrix
//   - Clustering Engine: clusters regions over the same matrix
//   - Pipeline: invokes extraction as the first analysis stage

// Extractor derives feature vectors from a canonical table.
type Extractor interface {
	// Extract returns one FeatureVector per (region, period), ordered by
	// region then period ascending. The input table is read-only; the
	// returned vectors are immutable once produced.
	Extract(ctx context.Context, records []models.Record) ([]models.FeatureVector, error)
}

// Config controls feature extraction.
type Config struct {
	// MinHistory is the minimum number of observed periods a region
	// needs before volume_zscore is computed from its history.
	MinHistory int
}

// The concrete implementation is in extractor_impl.go.
