package analytics

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"testing"

	"go.uber.org/zap"

	"github.com/enrolytics/enrolytics/internal/analytics/features"
	"github.com/enrolytics/enrolytics/internal/models"
)

// testTable builds four regions over eight months with steady volumes
// and a 10x spike in Delhi's final month.
func testTable() []models.Record {
	bases := []struct {
		region string
		volume float64
	}{
		{"Assam", 800},
		{"Bihar", 2000},
		{"Delhi", 500},
		{"Kerala", 1200},
	}

	var records []models.Record
	for _, b := range bases {
		for m := 1; m <= 8; m++ {
			volume := b.volume
			if b.region == "Delhi" && m == 8 {
				volume *= 10
			}
			records = append(records, models.Record{
				Region: b.region,
				Period: fmt.Sprintf("2023-%02d", m),
				Metrics: map[string]float64{
					models.MetricEnrolments: volume,
					models.MetricRejections: volume * 0.02,
					models.MetricUpdates:    volume * 0.3,
				},
			})
		}
	}
	return records
}

func TestPipelineRun_EndToEnd(t *testing.T) {
	p := NewPipeline(DefaultConfig(), zap.NewNop())
	records := testTable()

	result, err := p.Run(context.Background(), records)
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}

	if result.Meta.RunID == "" {
		t.Error("Expected a run id")
	}
	if result.Meta.RecordCount != len(records) {
		t.Errorf("Expected record count %d, got %d", len(records), result.Meta.RecordCount)
	}
	if result.Meta.RegionCount != 4 || result.Meta.PeriodCount != 8 {
		t.Errorf("Expected 4 regions over 8 periods, got %d over %d",
			result.Meta.RegionCount, result.Meta.PeriodCount)
	}
	if !result.Meta.FinishedAt.After(result.Meta.StartedAt) {
		t.Error("Expected FinishedAt after StartedAt")
	}

	if len(result.Features) != len(records) {
		t.Errorf("Expected one feature vector per record, got %d", len(result.Features))
	}
	if len(result.Clusters) != 4 {
		t.Errorf("Expected one cluster assignment per region, got %d", len(result.Clusters))
	}
	if len(result.Scores) != 4 {
		t.Errorf("Expected one risk score per region, got %d", len(result.Scores))
	}

	// The Delhi spike has to surface as an anomalous flag
	spikeFlagged := false
	for _, f := range result.Flags {
		if f.Region == "Delhi" && f.Period == "2023-08" && f.Status == models.EvalAnomalous {
			spikeFlagged = true
			break
		}
	}
	if !spikeFlagged {
		t.Error("Expected the Delhi 2023-08 spike to be flagged anomalous")
	}

	// All six stages report a duration
	for _, name := range []string{"validate", "extract", "detect", "cluster", "score", "select"} {
		if _, ok := result.Meta.StageDurations[name]; !ok {
			t.Errorf("Expected a duration for stage %q", name)
		}
	}

	// The run metadata echoes the configuration that produced it
	if result.Meta.Config["baseline_method"] != DefaultConfig().BaselineMethod {
		t.Errorf("Expected config echo in metadata, got %v", result.Meta.Config)
	}
}

func TestPipelineRun_Deterministic(t *testing.T) {
	p := NewPipeline(DefaultConfig(), nil)
	records := testTable()

	first, err := p.Run(context.Background(), records)
	if err != nil {
		t.Fatalf("First Run() error: %v", err)
	}
	second, err := p.Run(context.Background(), records)
	if err != nil {
		t.Fatalf("Second Run() error: %v", err)
	}

	if first.Meta.RunID == second.Meta.RunID {
		t.Error("Expected distinct run ids")
	}
	if !reflect.DeepEqual(first.Features, second.Features) {
		t.Error("Feature vectors differ between identical runs")
	}
	if !reflect.DeepEqual(first.Flags, second.Flags) {
		t.Error("Anomaly flags differ between identical runs")
	}
	if !reflect.DeepEqual(first.Clusters, second.Clusters) {
		t.Error("Cluster assignments differ between identical runs")
	}
	if !reflect.DeepEqual(first.Scores, second.Scores) {
		t.Error("Risk scores differ between identical runs")
	}
	if !reflect.DeepEqual(first.Findings, second.Findings) {
		t.Error("Findings differ between identical runs")
	}
}

func TestPipelineRun_EmptyInput(t *testing.T) {
	p := NewPipeline(DefaultConfig(), nil)

	_, err := p.Run(context.Background(), nil)
	if !errors.Is(err, models.ErrNoRecords) {
		t.Errorf("Expected ErrNoRecords, got %v", err)
	}
}

func TestPipelineRun_DuplicateRecords(t *testing.T) {
	p := NewPipeline(DefaultConfig(), nil)

	records := []models.Record{
		{Region: "Goa", Period: "2023-01", Metrics: map[string]float64{models.MetricEnrolments: 10, models.MetricRejections: 0}},
		{Region: "Goa", Period: "2023-01", Metrics: map[string]float64{models.MetricEnrolments: 20, models.MetricRejections: 0}},
	}

	_, err := p.Run(context.Background(), records)
	var dqErr *models.DataQualityError
	if !errors.As(err, &dqErr) {
		t.Fatalf("Expected DataQualityError, got %T: %v", err, err)
	}
	if dqErr.Region != "Goa" || dqErr.Period != "2023-01" {
		t.Errorf("Expected duplicate located at Goa 2023-01, got %s %s", dqErr.Region, dqErr.Period)
	}
}

func TestPipelineRun_NegativeCount(t *testing.T) {
	p := NewPipeline(DefaultConfig(), nil)

	records := []models.Record{
		{Region: "Goa", Period: "2023-01", Metrics: map[string]float64{models.MetricEnrolments: -5, models.MetricRejections: 0}},
	}

	_, err := p.Run(context.Background(), records)
	var dqErr *models.DataQualityError
	if !errors.As(err, &dqErr) {
		t.Fatalf("Expected DataQualityError, got %T: %v", err, err)
	}
	if dqErr.Field != models.MetricEnrolments {
		t.Errorf("Expected field %q, got %q", models.MetricEnrolments, dqErr.Field)
	}
}

// gateExtractor blocks Extract until released so a test can hold a run
// open.
type gateExtractor struct {
	started chan struct{}
	release chan struct{}
	inner   features.Extractor
}

func (g *gateExtractor) Extract(ctx context.Context, records []models.Record) ([]models.FeatureVector, error) {
	close(g.started)
	<-g.release
	return g.inner.Extract(ctx, records)
}

func TestPipelineRun_SingleRunAtATime(t *testing.T) {
	p := NewPipeline(DefaultConfig(), nil)
	gate := &gateExtractor{
		started: make(chan struct{}),
		release: make(chan struct{}),
		inner:   p.extractor,
	}
	p.extractor = gate

	records := testTable()
	done := make(chan error, 1)
	go func() {
		_, err := p.Run(context.Background(), records)
		done <- err
	}()

	// Second run attempted while the first is mid-flight
	<-gate.started
	_, err := p.Run(context.Background(), records)
	if !errors.Is(err, ErrRunInProgress) {
		t.Errorf("Expected ErrRunInProgress, got %v", err)
	}

	close(gate.release)
	if err := <-done; err != nil {
		t.Fatalf("First run failed: %v", err)
	}

	// The guard releases once the run finishes
	gate.started = make(chan struct{})
	gate.release = make(chan struct{})
	close(gate.release)
	if _, err := p.Run(context.Background(), records); err != nil {
		t.Errorf("Run after completion failed: %v", err)
	}
}

func TestPipelineRun_CancelledContext(t *testing.T) {
	p := NewPipeline(DefaultConfig(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := p.Run(ctx, testTable())
	if err == nil {
		t.Fatal("Expected error for cancelled context")
	}
	if result != nil {
		t.Error("Expected no partial result on cancellation")
	}

	// A cancelled run must not leave the guard held
	if _, err := p.Run(context.Background(), testTable()); err != nil {
		t.Errorf("Run after cancellation failed: %v", err)
	}
}

func TestValidateRecords(t *testing.T) {
	if err := validateRecords(nil); !errors.Is(err, models.ErrNoRecords) {
		t.Errorf("Expected ErrNoRecords for empty table, got %v", err)
	}

	ok := []models.Record{
		{Region: "A", Period: "2023-01", Metrics: map[string]float64{models.MetricEnrolments: 1}},
		{Region: "A", Period: "2023-02", Metrics: map[string]float64{models.MetricEnrolments: 2}},
		{Region: "B", Period: "2023-01", Metrics: map[string]float64{models.MetricEnrolments: 3}},
	}
	if err := validateRecords(ok); err != nil {
		t.Errorf("Expected clean table to validate, got %v", err)
	}
}
