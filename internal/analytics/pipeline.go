package analytics

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/atomic"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/enrolytics/enrolytics/internal/analytics/anomaly"
	"github.com/enrolytics/enrolytics/internal/analytics/cluster"
	"github.com/enrolytics/enrolytics/internal/analytics/features"
	"github.com/enrolytics/enrolytics/internal/analytics/insight"
	"github.com/enrolytics/enrolytics/internal/analytics/risk"
	"github.com/enrolytics/enrolytics/internal/metrics"
	"github.com/enrolytics/enrolytics/internal/models"
)

// ErrRunInProgress is returned by Run when another run is already
// executing on the same Pipeline value.
var ErrRunInProgress = errors.New("analysis run already in progress")

// Pipeline orchestrates one full analysis pass over a cleaned record
// table:
//
//	validate -> extract -> (detect || cluster) -> score -> select
//
// Feature extraction fans out per region, and anomaly detection runs
// concurrently with clustering since both consume only the feature
// vectors. A Pipeline value is safe for concurrent use but admits one
// run at a time; overlapping Run calls fail fast with ErrRunInProgress
// rather than queue. Results are immutable once returned.
type Pipeline struct {
	cfg    Config
	log    *zap.Logger
	runSeq *atomic.Int64
	active *atomic.Bool

	extractor features.Extractor
	detector  anomaly.Detector
	clusterer cluster.Engine
	scorer    risk.Scorer
	selector  insight.Selector
}

// NewPipeline wires the five analysis stages from a single Config.
// A nil logger disables logging.
func NewPipeline(cfg Config, log *zap.Logger) *Pipeline {
	if log == nil {
		log = zap.NewNop()
	}
	return &Pipeline{
		cfg:    cfg,
		log:    log.Named("pipeline"),
		runSeq: atomic.NewInt64(0),
		active: atomic.NewBool(false),
		extractor: features.NewExtractor(features.Config{
			MinHistory: cfg.MinHistory,
		}),
		detector: anomaly.NewDetector(anomaly.Config{
			BaselineMethod: cfg.BaselineMethod,
			Threshold:      cfg.Threshold,
			MinHistory:     cfg.MinHistory,
		}),
		clusterer: cluster.NewEngine(cluster.Config{
			K:             cfg.K,
			MaxIterations: cfg.MaxIterations,
			Seed:          cfg.Seed,
			Window:        cfg.Window,
		}),
		scorer: risk.NewScorer(risk.Config{
			Weights: cfg.Weights,
		}),
		selector: insight.NewSelector(insight.Config{
			TopN: cfg.TopN,
		}),
	}
}

// Config returns the configuration the pipeline was built with.
func (p *Pipeline) Config() Config { return p.cfg }

// Run executes one analysis pass over records and returns the
// assembled result. The input is validated first: an empty table
// returns models.ErrNoRecords, duplicate (region, period) rows and
// negative counts return a *models.DataQualityError. Cancelling ctx
// aborts the run between stages and inside the parallel ones.
func (p *Pipeline) Run(ctx context.Context, records []models.Record) (*models.AnalysisResult, error) {
	if !p.active.CompareAndSwap(false, true) {
		return nil, ErrRunInProgress
	}
	defer p.active.Store(false)

	metrics.ActiveRuns.Inc()
	defer metrics.ActiveRuns.Dec()

	started := time.Now()
	meta := models.RunMeta{
		RunID:          uuid.NewString(),
		StartedAt:      started,
		RecordCount:    len(records),
		StageDurations: make(map[string]time.Duration, 6),
		Config:         p.cfg.echo(),
	}
	log := p.log.With(
		zap.String("run_id", meta.RunID),
		zap.Int64("run_seq", p.runSeq.Inc()),
	)
	log.Info("analysis run started", zap.Int("records", len(records)))

	fail := func(err error) (*models.AnalysisResult, error) {
		metrics.RunsTotal.WithLabelValues("failed").Inc()
		log.Error("analysis run failed", zap.Error(err))
		return nil, err
	}

	stage := func(name string, took time.Duration) {
		meta.StageDurations[name] = took
		metrics.StageDuration.WithLabelValues(name).Observe(took.Seconds())
		log.Debug("stage complete", zap.String("stage", name), zap.Duration("took", took))
	}

	t := time.Now()
	if err := validateRecords(records); err != nil {
		return fail(fmt.Errorf("validate records: %w", err))
	}
	stage("validate", time.Since(t))

	t = time.Now()
	vectors, err := p.extractor.Extract(ctx, records)
	if err != nil {
		return fail(err)
	}
	stage("extract", time.Since(t))

	if err := ctx.Err(); err != nil {
		return fail(err)
	}

	// Detection and clustering both read only the feature vectors, so
	// they run side by side. Durations are recorded after Wait so the
	// goroutines never touch the shared meta.
	var (
		flags       []models.AnomalyFlag
		assignment  []models.ClusterAssignment
		detectTook  time.Duration
		clusterTook time.Duration
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		t := time.Now()
		var err error
		flags, err = p.detector.Detect(gctx, vectors)
		detectTook = time.Since(t)
		return err
	})
	g.Go(func() error {
		t := time.Now()
		var err error
		assignment, err = p.clusterer.Cluster(gctx, vectors)
		clusterTook = time.Since(t)
		return err
	})
	if err := g.Wait(); err != nil {
		return fail(err)
	}
	stage("detect", detectTook)
	stage("cluster", clusterTook)

	if err := ctx.Err(); err != nil {
		return fail(err)
	}

	t = time.Now()
	scores, err := p.scorer.Score(ctx, vectors, flags, assignment)
	if err != nil {
		return fail(err)
	}
	stage("score", time.Since(t))

	t = time.Now()
	findings, err := p.selector.Select(ctx, flags, assignment, scores)
	if err != nil {
		return fail(err)
	}
	stage("select", time.Since(t))

	meta.FinishedAt = time.Now()
	meta.RegionCount, meta.PeriodCount = tableShape(records)
	result := &models.AnalysisResult{
		Meta:     meta,
		Features: vectors,
		Flags:    flags,
		Clusters: assignment,
		Scores:   scores,
		Findings: findings,
	}

	observeRun(result, time.Since(started))
	log.Info("analysis run complete",
		zap.Int("regions", meta.RegionCount),
		zap.Int("periods", meta.PeriodCount),
		zap.Int("flags", len(flags)),
		zap.Int("findings", len(findings)),
		zap.Duration("took", time.Since(started)),
	)
	return result, nil
}

// ─── Internal ────────────────────────────────────────────────────────────────

// validateRecords rejects inputs the stages cannot interpret: empty
// tables, duplicate (region, period) rows and negative counts.
func validateRecords(records []models.Record) error {
	if len(records) == 0 {
		return models.ErrNoRecords
	}
	seen := make(map[string]struct{}, len(records))
	for _, rec := range records {
		key := rec.Region + "\x00" + rec.Period
		if _, dup := seen[key]; dup {
			return &models.DataQualityError{
				Region: rec.Region,
				Period: rec.Period,
				Field:  "period",
				Reason: "duplicate record for region and period",
			}
		}
		seen[key] = struct{}{}
		for name, value := range rec.Metrics {
			if value < 0 {
				return &models.DataQualityError{
					Region: rec.Region,
					Period: rec.Period,
					Field:  name,
					Reason: "negative count",
				}
			}
		}
	}
	return nil
}

func tableShape(records []models.Record) (regions, periods int) {
	rset := make(map[string]struct{})
	pset := make(map[string]struct{})
	for _, rec := range records {
		rset[rec.Region] = struct{}{}
		pset[rec.Period] = struct{}{}
	}
	return len(rset), len(pset)
}

func observeRun(result *models.AnalysisResult, took time.Duration) {
	metrics.RunsTotal.WithLabelValues("success").Inc()
	metrics.RunDuration.Observe(took.Seconds())
	clustered := 0
	for _, a := range result.Clusters {
		if a.Clustered() {
			clustered++
		}
	}
	metrics.RegionsClustered.Set(float64(clustered))
	for _, f := range result.Flags {
		if f.Status == models.EvalAnomalous {
			metrics.AnomalyFlags.WithLabelValues(f.Feature).Inc()
		}
	}
}
