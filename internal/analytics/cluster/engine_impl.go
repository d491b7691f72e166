package cluster

import (
	"context"
	"math"
	"math/rand"
	"sort"

	"github.com/enrolytics/enrolytics/internal/models"
)

const defaultMaxIterations = 300

// engineImpl is the concrete Engine.
type engineImpl struct {
	cfg Config
}

// NewEngine creates a clustering engine. Invalid config fields fall
// back to defaults (auto k, 300 iterations, full window).
func NewEngine(cfg Config) Engine {
	if cfg.K < 0 {
		cfg.K = KAuto
	}
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = defaultMaxIterations
	}
	if cfg.Window != WindowLatest {
		cfg.Window = WindowFull
	}
	return &engineImpl{cfg: cfg}
}

// regionPoint is one region's aggregated feature point. A region with
// any feature in missing cannot be clustered.
type regionPoint struct {
	region  string
	point   []float64
	missing []string
}

// Cluster partitions regions over their aggregated, standardized
// feature points.
func (e *engineImpl) Cluster(ctx context.Context, vectors []models.FeatureVector) ([]models.ClusterAssignment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, nil
	}

	points := e.aggregate(vectors)

	var included []regionPoint
	var excluded []regionPoint
	for _, rp := range points {
		if len(rp.missing) == 0 {
			included = append(included, rp)
		} else {
			excluded = append(excluded, rp)
		}
	}

	assignments := make([]models.ClusterAssignment, 0, len(points))
	for _, rp := range excluded {
		assignments = append(assignments, models.ClusterAssignment{
			Region:          rp.region,
			Cluster:         models.ClusterUnclustered,
			MissingFeatures: rp.missing,
		})
	}

	if len(included) > 0 {
		matrix := make([][]float64, len(included))
		for i, rp := range included {
			matrix[i] = rp.point
		}
		standardize(matrix)

		k := e.cfg.K
		if k == KAuto {
			var err error
			k, err = e.selectK(ctx, matrix)
			if err != nil {
				return nil, err
			}
		}
		if k > len(included) {
			k = len(included)
		}

		labels, centroids := e.runKMeans(matrix, k)
		for i, rp := range included {
			assignments = append(assignments, models.ClusterAssignment{
				Region:   rp.region,
				Cluster:  labels[i],
				Distance: euclidean(matrix[i], centroids[labels[i]]),
			})
		}
	}

	sort.Slice(assignments, func(i, j int) bool { return assignments[i].Region < assignments[j].Region })
	return assignments, nil
}

// aggregate folds each region's vectors into one point over the global
// feature set, regions sorted lexicographically.
func (e *engineImpl) aggregate(vectors []models.FeatureVector) []regionPoint {
	featureSet := make(map[string]struct{})
	byRegion := make(map[string][]models.FeatureVector)
	for _, fv := range vectors {
		for name := range fv.Features {
			featureSet[name] = struct{}{}
		}
		byRegion[fv.Region] = append(byRegion[fv.Region], fv)
	}

	features := make([]string, 0, len(featureSet))
	for name := range featureSet {
		features = append(features, name)
	}
	sort.Strings(features)

	regions := make([]string, 0, len(byRegion))
	for region := range byRegion {
		regions = append(regions, region)
	}
	sort.Strings(regions)

	points := make([]regionPoint, 0, len(regions))
	for _, region := range regions {
		vs := byRegion[region]
		sort.Slice(vs, func(i, j int) bool { return vs[i].Period < vs[j].Period })

		rp := regionPoint{region: region, point: make([]float64, len(features))}
		for fi, feature := range features {
			value, ok := e.windowValue(vs, feature)
			if !ok {
				rp.missing = append(rp.missing, feature)
				continue
			}
			rp.point[fi] = value
		}
		points = append(points, rp)
	}
	return points
}

// windowValue extracts one feature value for a region per the
// configured window: the mean of all carried values, or the final
// period's value.
func (e *engineImpl) windowValue(vs []models.FeatureVector, feature string) (float64, bool) {
	if e.cfg.Window == WindowLatest {
		return vs[len(vs)-1].Feature(feature)
	}
	sum, n := 0.0, 0
	for _, fv := range vs {
		if v, ok := fv.Feature(feature); ok {
			sum += v
			n++
		}
	}
	if n == 0 {
		return 0, false
	}
	return sum / float64(n), true
}

// selectK picks the candidate k with the best mean silhouette score,
// ties resolved toward the smaller k. Fewer than three points cannot be
// validated and collapse to one cluster.
func (e *engineImpl) selectK(ctx context.Context, matrix [][]float64) (int, error) {
	n := len(matrix)
	if n < 3 {
		return 1, nil
	}
	hi := 8
	if n-1 < hi {
		hi = n - 1
	}

	bestK, bestScore := 1, math.Inf(-1)
	for k := 2; k <= hi; k++ {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		labels, _ := e.runKMeans(matrix, k)
		if score := meanSilhouette(matrix, labels, k); score > bestScore {
			bestK, bestScore = k, score
		}
	}
	return bestK, nil
}

// runKMeans runs seeded k-means++ initialization plus Lloyd iterations.
// Every call draws from a fresh source with the configured seed, so
// candidate evaluation and the final run produce identical labels.
func (e *engineImpl) runKMeans(matrix [][]float64, k int) ([]int, [][]float64) {
	rng := rand.New(rand.NewSource(e.cfg.Seed))
	centroids := seedCentroids(matrix, k, rng)

	labels := make([]int, len(matrix))
	for i := range labels {
		labels[i] = -1
	}

	for iter := 0; iter < e.cfg.MaxIterations; iter++ {
		next := make([]int, len(matrix))
		for i, p := range matrix {
			next[i] = nearestCentroid(p, centroids)
		}
		if equalLabels(labels, next) {
			break
		}
		labels = next
		recomputeCentroids(matrix, labels, centroids)
	}
	return labels, centroids
}

// ─── Helpers ──────────────────────────────────────────────────────────────────

// seedCentroids picks k initial centroids k-means++ style: the first
// uniformly, the rest weighted by squared distance to the nearest
// already chosen centroid.
func seedCentroids(matrix [][]float64, k int, rng *rand.Rand) [][]float64 {
	centroids := make([][]float64, 0, k)
	centroids = append(centroids, clonePoint(matrix[rng.Intn(len(matrix))]))

	for len(centroids) < k {
		weights := make([]float64, len(matrix))
		total := 0.0
		for i, p := range matrix {
			d := math.Inf(1)
			for _, c := range centroids {
				if dd := squaredDistance(p, c); dd < d {
					d = dd
				}
			}
			weights[i] = d
			total += d
		}

		idx := 0
		if total == 0 {
			// All remaining points coincide with chosen centroids.
			idx = rng.Intn(len(matrix))
		} else {
			r := rng.Float64() * total
			acc := 0.0
			for i, w := range weights {
				acc += w
				if r <= acc {
					idx = i
					break
				}
			}
		}
		centroids = append(centroids, clonePoint(matrix[idx]))
	}
	return centroids
}

// nearestCentroid returns the index of the closest centroid, ties going
// to the lower index.
func nearestCentroid(p []float64, centroids [][]float64) int {
	best, bestDist := 0, math.Inf(1)
	for c, centroid := range centroids {
		if d := squaredDistance(p, centroid); d < bestDist {
			best, bestDist = c, d
		}
	}
	return best
}

// recomputeCentroids replaces each centroid with the mean of its
// members. A centroid with no members is re-seeded to the point
// farthest from its former position.
func recomputeCentroids(matrix [][]float64, labels []int, centroids [][]float64) {
	dims := len(centroids[0])
	counts := make([]int, len(centroids))
	sums := make([][]float64, len(centroids))
	for c := range sums {
		sums[c] = make([]float64, dims)
	}
	for i, label := range labels {
		counts[label]++
		for d, v := range matrix[i] {
			sums[label][d] += v
		}
	}
	for c := range centroids {
		if counts[c] == 0 {
			far, farDist := 0, -1.0
			for i, p := range matrix {
				if d := squaredDistance(p, centroids[c]); d > farDist {
					far, farDist = i, d
				}
			}
			centroids[c] = clonePoint(matrix[far])
			continue
		}
		for d := 0; d < dims; d++ {
			centroids[c][d] = sums[c][d] / float64(counts[c])
		}
	}
}

// meanSilhouette computes the mean silhouette coefficient over all
// points. Singleton clusters contribute 0 by convention.
func meanSilhouette(matrix [][]float64, labels []int, k int) float64 {
	members := make([][]int, k)
	for i, label := range labels {
		members[label] = append(members[label], i)
	}

	total := 0.0
	for i, p := range matrix {
		own := members[labels[i]]
		if len(own) <= 1 {
			continue // s_i = 0
		}

		a := 0.0
		for _, j := range own {
			if j != i {
				a += euclidean(p, matrix[j])
			}
		}
		a /= float64(len(own) - 1)

		b := math.Inf(1)
		for c := 0; c < k; c++ {
			if c == labels[i] || len(members[c]) == 0 {
				continue
			}
			d := 0.0
			for _, j := range members[c] {
				d += euclidean(p, matrix[j])
			}
			d /= float64(len(members[c]))
			if d < b {
				b = d
			}
		}
		if math.IsInf(b, 1) {
			continue // no other populated cluster
		}

		if m := math.Max(a, b); m > 0 {
			total += (b - a) / m
		}
	}
	return total / float64(len(matrix))
}

// standardize rescales each feature column to zero mean and unit
// variance in place. A zero-variance column becomes all zeros.
func standardize(matrix [][]float64) {
	if len(matrix) == 0 {
		return
	}
	dims := len(matrix[0])
	for d := 0; d < dims; d++ {
		sum := 0.0
		for _, p := range matrix {
			sum += p[d]
		}
		mean := sum / float64(len(matrix))

		variance := 0.0
		for _, p := range matrix {
			variance += (p[d] - mean) * (p[d] - mean)
		}
		variance /= float64(len(matrix))
		stdDev := math.Sqrt(variance)

		for _, p := range matrix {
			if stdDev == 0 {
				p[d] = 0
			} else {
				p[d] = (p[d] - mean) / stdDev
			}
		}
	}
}

func squaredDistance(a, b []float64) float64 {
	sum := 0.0
	for i := range a {
		diff := a[i] - b[i]
		sum += diff * diff
	}
	return sum
}

func euclidean(a, b []float64) float64 {
	return math.Sqrt(squaredDistance(a, b))
}

func clonePoint(p []float64) []float64 {
	out := make([]float64, len(p))
	copy(out, p)
	return out
}

func equalLabels(a, b []int) bool {
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
