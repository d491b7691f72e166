package features

import (
	"context"
	"fmt"
	"math"
	"runtime"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/enrolytics/enrolytics/internal/models"
)

// extractorImpl is the concrete Extractor.
type extractorImpl struct {
	cfg Config
}

// NewExtractor creates a feature extractor.
func NewExtractor(cfg Config) Extractor {
	if cfg.MinHistory < 2 {
		cfg.MinHistory = 2
	}
	return &extractorImpl{cfg: cfg}
}

// regionSeries is one region's records ordered by period ascending.
type regionSeries struct {
	region  string
	records []models.Record
}

// Extract derives one FeatureVector per (region, period).
func (e *extractorImpl) Extract(ctx context.Context, records []models.Record) ([]models.FeatureVector, error) {
	if len(records) == 0 {
		return nil, models.ErrNoRecords
	}

	series := groupByRegion(records)

	// One output slot per region; workers write only their own slot.
	out := make([][]models.FeatureVector, len(series))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, s := range series {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			vectors, err := e.extractRegion(s)
			if err != nil {
				return err
			}
			out[i] = vectors
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("extract features: %w", err)
	}

	flat := make([]models.FeatureVector, 0, len(records))
	for _, vectors := range out {
		flat = append(flat, vectors...)
	}
	return flat, nil
}

// extractRegion computes the full feature set for one region's series.
func (e *extractorImpl) extractRegion(s regionSeries) ([]models.FeatureVector, error) {
	n := len(s.records)

	// Region history of enrolment volumes, needed for growth and z-score.
	volumes := make([]float64, n)
	for i, rec := range s.records {
		v, ok := rec.Metric(models.MetricEnrolments)
		if !ok {
			return nil, &models.DataQualityError{
				Region: rec.Region, Period: rec.Period,
				Field: models.MetricEnrolments, Reason: "required metric absent",
			}
		}
		volumes[i] = v
	}
	histMean, histStdDev := meanStdDev(volumes)

	vectors := make([]models.FeatureVector, n)
	for i, rec := range s.records {
		fv := models.FeatureVector{
			Region:   rec.Region,
			Period:   rec.Period,
			Features: make(map[string]float64, 4),
			Missing:  make(map[string]string),
			Quality:  make(map[string]string),
		}

		enrolments := volumes[i]

		rejections, ok := rec.Metric(models.MetricRejections)
		if !ok {
			return nil, &models.DataQualityError{
				Region: rec.Region, Period: rec.Period,
				Field: models.MetricRejections, Reason: "required metric absent",
			}
		}
		fv.Features[models.FeatureRejectionRate] = safeRatio(rejections, enrolments)
		if enrolments == 0 {
			fv.Quality[models.FeatureRejectionRate] = models.QualityZeroDenominator
		}

		if updates, ok := rec.Metric(models.MetricUpdates); ok {
			fv.Features[models.FeatureUpdateRatio] = safeRatio(updates, enrolments)
			if enrolments == 0 {
				fv.Quality[models.FeatureUpdateRatio] = models.QualityZeroDenominator
			}
		} else {
			fv.Missing[models.FeatureUpdateRatio] = models.MissingMetricAbsent
		}

		switch {
		case i == 0:
			fv.Missing[models.FeatureGrowthRate] = models.MissingFirstPeriod
		case volumes[i-1] == 0:
			fv.Missing[models.FeatureGrowthRate] = models.MissingPreviousZero
		default:
			fv.Features[models.FeatureGrowthRate] = (enrolments - volumes[i-1]) / volumes[i-1]
		}

		switch {
		case n < e.cfg.MinHistory:
			fv.Missing[models.FeatureVolumeZScore] = models.MissingInsufficientHistory
		case histStdDev == 0:
			fv.Missing[models.FeatureVolumeZScore] = models.MissingZeroSpread
		default:
			fv.Features[models.FeatureVolumeZScore] = (enrolments - histMean) / histStdDev
		}

		vectors[i] = fv
	}
	return vectors, nil
}

// ─── Helpers ──────────────────────────────────────────────────────────────────

// groupByRegion splits records into per-region series, regions sorted
// lexicographically and periods ascending within each, so output order
// is deterministic.
func groupByRegion(records []models.Record) []regionSeries {
	byRegion := make(map[string][]models.Record)
	for _, rec := range records {
		byRegion[rec.Region] = append(byRegion[rec.Region], rec)
	}

	regions := make([]string, 0, len(byRegion))
	for region := range byRegion {
		regions = append(regions, region)
	}
	sort.Strings(regions)

	series := make([]regionSeries, 0, len(regions))
	for _, region := range regions {
		recs := byRegion[region]
		sort.Slice(recs, func(i, j int) bool { return recs[i].Period < recs[j].Period })
		series = append(series, regionSeries{region: region, records: recs})
	}
	return series
}

// safeRatio returns num/den, or 0 when den is 0. Callers flag the
// zero-denominator case separately.
func safeRatio(num, den float64) float64 {
	if den == 0 {
		return 0
	}
	return num / den
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
