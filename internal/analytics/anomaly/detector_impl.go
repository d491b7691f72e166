package anomaly

import (
	"context"
	"fmt"
	"math"
	"runtime"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/enrolytics/enrolytics/internal/models"
)

// exactMatchEpsilon bounds what still counts as "equal to the baseline
// center" when the baseline has zero spread.
const exactMatchEpsilon = 1e-9

// baselineEntry stores the statistics of one expanding-window baseline.
type baselineEntry struct {
	mean   float64
	stdDev float64
	median float64
	q1     float64
	q3     float64
	iqr    float64
	count  int
}

// detectorImpl is the concrete Detector.
type detectorImpl struct {
	cfg Config
}

// NewDetector creates an anomaly detector. Invalid config fields fall
// back to defaults (parametric, method default threshold, MinHistory 2).
func NewDetector(cfg Config) Detector {
	if cfg.BaselineMethod != BaselineRobust {
		cfg.BaselineMethod = BaselineParametric
	}
	if cfg.Threshold <= 0 {
		if cfg.BaselineMethod == BaselineRobust {
			cfg.Threshold = DefaultRobustThreshold
		} else {
			cfg.Threshold = DefaultParametricThreshold
		}
	}
	if cfg.MinHistory < 2 {
		cfg.MinHistory = 2
	}
	return &detectorImpl{cfg: cfg}
}

// regionVectors is one region's vectors ordered by period ascending.
type regionVectors struct {
	region  string
	vectors []models.FeatureVector
}

// Detect evaluates every carried (region, period, feature) triple.
func (d *detectorImpl) Detect(ctx context.Context, vectors []models.FeatureVector) ([]models.AnomalyFlag, error) {
	if len(vectors) == 0 {
		return nil, nil
	}

	groups := groupVectors(vectors)

	out := make([][]models.AnomalyFlag, len(groups))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, rv := range groups {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			out[i] = d.detectRegion(rv)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("detect anomalies: %w", err)
	}

	var flags []models.AnomalyFlag
	for _, fs := range out {
		flags = append(flags, fs...)
	}
	return flags, nil
}

// detectRegion evaluates one region, feature by feature.
func (d *detectorImpl) detectRegion(rv regionVectors) []models.AnomalyFlag {
	var flags []models.AnomalyFlag
	for _, feature := range regionFeatures(rv.vectors) {
		// Prior observed values form the expanding baseline window.
		var history []float64
		for _, fv := range rv.vectors {
			value, ok := fv.Feature(feature)
			if !ok {
				continue
			}
			flags = append(flags, d.evaluate(rv.region, fv.Period, feature, value, history))
			history = append(history, value)
		}
	}
	return flags
}

// evaluate judges one value against the baseline built from the values
// observed before it.
func (d *detectorImpl) evaluate(region, period, feature string, value float64, history []float64) models.AnomalyFlag {
	flag := models.AnomalyFlag{
		Region:  region,
		Period:  period,
		Feature: feature,
		Value:   value,
	}

	if len(history) < d.cfg.MinHistory {
		flag.Status = models.EvalNotEvaluated
		return flag
	}

	bl := computeBaseline(history)

	if d.cfg.BaselineMethod == BaselineRobust {
		return d.evaluateRobust(flag, value, bl)
	}
	return d.evaluateParametric(flag, value, bl)
}

func (d *detectorImpl) evaluateParametric(flag models.AnomalyFlag, value float64, bl baselineEntry) models.AnomalyFlag {
	flag.Baseline = bl.mean
	flag.Spread = bl.stdDev

	if bl.stdDev == 0 {
		return zeroSpreadVerdict(flag, value, bl.mean, d.cfg.Threshold)
	}

	z := math.Abs(value-bl.mean) / bl.stdDev
	if z > d.cfg.Threshold {
		flag.Status = models.EvalAnomalous
		flag.Severity = z
	} else {
		flag.Status = models.EvalNormal
	}
	return flag
}

func (d *detectorImpl) evaluateRobust(flag models.AnomalyFlag, value float64, bl baselineEntry) models.AnomalyFlag {
	flag.Baseline = bl.median
	flag.Spread = bl.iqr

	if bl.iqr == 0 {
		return zeroSpreadVerdict(flag, value, bl.median, d.cfg.Threshold)
	}

	lower := bl.q1 - d.cfg.Threshold*bl.iqr
	upper := bl.q3 + d.cfg.Threshold*bl.iqr
	if value < lower || value > upper {
		flag.Status = models.EvalAnomalous
		flag.Severity = math.Abs(value-bl.median) / bl.iqr
	} else {
		flag.Status = models.EvalNormal
	}
	return flag
}

// zeroSpreadVerdict handles the all-prior-values-identical case: exact
// matches are normal, anything else is anomalous with a finite severity.
func zeroSpreadVerdict(flag models.AnomalyFlag, value, center, threshold float64) models.AnomalyFlag {
	deviation := math.Abs(value - center)
	if deviation <= exactMatchEpsilon {
		flag.Status = models.EvalNormal
		return flag
	}
	flag.Status = models.EvalAnomalous
	flag.Severity = threshold + deviation
	return flag
}

// ─── Helpers ──────────────────────────────────────────────────────────────────

// groupVectors splits vectors into per-region groups, regions sorted
// lexicographically and periods ascending within each.
func groupVectors(vectors []models.FeatureVector) []regionVectors {
	byRegion := make(map[string][]models.FeatureVector)
	for _, fv := range vectors {
		byRegion[fv.Region] = append(byRegion[fv.Region], fv)
	}

	regions := make([]string, 0, len(byRegion))
	for region := range byRegion {
		regions = append(regions, region)
	}
	sort.Strings(regions)

	groups := make([]regionVectors, 0, len(regions))
	for _, region := range regions {
		vs := byRegion[region]
		sort.Slice(vs, func(i, j int) bool { return vs[i].Period < vs[j].Period })
		groups = append(groups, regionVectors{region: region, vectors: vs})
	}
	return groups
}

// regionFeatures returns the sorted set of feature names carried by any
// of the region's vectors.
func regionFeatures(vectors []models.FeatureVector) []string {
	seen := make(map[string]struct{})
	for _, fv := range vectors {
		for name := range fv.Features {
			seen[name] = struct{}{}
		}
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// computeBaseline derives mean/stddev and median/quartiles from the
// window values.
func computeBaseline(values []float64) baselineEntry {
	if len(values) == 0 {
		return baselineEntry{}
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

	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	q1 := quartile(sorted, 25)
	median := quartile(sorted, 50)
	q3 := quartile(sorted, 75)

	return baselineEntry{
		mean:   mean,
		stdDev: math.Sqrt(variance),
		median: median,
		q1:     q1,
		q3:     q3,
		iqr:    q3 - q1,
		count:  len(values),
	}
}

// quartile interpolates the p-th percentile of a sorted slice.
func quartile(sorted []float64, p int) float64 {
	if len(sorted) == 0 {
		return 0
	}
	rank := float64(p) / 100.0 * float64(len(sorted)-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	if lo == hi || hi >= len(sorted) {
		return sorted[lo]
	}
	w := rank - float64(lo)
	return sorted[lo]*(1-w) + sorted[hi]*w
}
