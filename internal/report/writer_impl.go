package report

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/enrolytics/enrolytics/internal/analytics/risk"
	"github.com/enrolytics/enrolytics/internal/models"
)

// writerImpl renders results under a base directory on local disk.
type writerImpl struct {
	dir string
	log *zap.Logger
}

// NewWriter creates a Writer that renders runs under dir.
func NewWriter(dir string, log *zap.Logger) Writer {
	if dir == "" {
		dir = "reports"
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &writerImpl{dir: dir, log: log.Named("report")}
}

// Write renders result into a fresh per-run directory and returns its
// path.
func (w *writerImpl) Write(ctx context.Context, result *models.AnalysisResult) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	runDir := filepath.Join(w.dir, runDirName(result.Meta))
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return "", fmt.Errorf("create report dir: %w", err)
	}

	if err := w.writeRiskScores(runDir, result.Scores); err != nil {
		return "", err
	}
	if err := w.writeAnomalyFlags(runDir, result.Flags); err != nil {
		return "", err
	}
	if err := w.writeClusters(runDir, result.Clusters); err != nil {
		return "", err
	}
	if err := w.writeInsights(runDir, result); err != nil {
		return "", err
	}

	w.log.Info("report written",
		zap.String("dir", runDir),
		zap.Int("scores", len(result.Scores)),
		zap.Int("flags", len(result.Flags)),
		zap.Int("findings", len(result.Findings)))
	return runDir, nil
}

// riskComponents fixes the column order of the per-component fields.
var riskComponents = []models.RiskComponent{
	models.ComponentAnomaly, models.ComponentCluster, models.ComponentTrend,
}

func (w *writerImpl) writeRiskScores(dir string, scores []models.RiskScore) error {
	header := []string{"region", "total", "level"}
	for _, c := range riskComponents {
		header = append(header, "component_"+string(c), "weight_"+string(c))
	}

	rows := make([][]string, 0, len(scores))
	for _, s := range scores {
		row := []string{s.Region, formatFloat(s.Total), string(s.Level)}
		for _, c := range riskComponents {
			// Absent components stay blank; blank and zero must
			// remain distinguishable to consumers.
			if v, ok := s.Components[c]; ok {
				row = append(row, formatFloat(v), formatFloat(s.Weights[c]))
			} else {
				row = append(row, "", "")
			}
		}
		rows = append(rows, row)
	}
	return writeCSV(filepath.Join(dir, "risk_scores.csv"), header, rows)
}

func (w *writerImpl) writeAnomalyFlags(dir string, flags []models.AnomalyFlag) error {
	header := []string{"region", "period", "feature", "status", "value", "baseline", "spread", "severity"}
	rows := make([][]string, 0, len(flags))
	for _, f := range flags {
		rows = append(rows, []string{
			f.Region, f.Period, f.Feature, string(f.Status),
			formatFloat(f.Value), formatFloat(f.Baseline),
			formatFloat(f.Spread), formatFloat(f.Severity),
		})
	}
	return writeCSV(filepath.Join(dir, "anomaly_flags.csv"), header, rows)
}

func (w *writerImpl) writeClusters(dir string, clusters []models.ClusterAssignment) error {
	header := []string{"region", "cluster", "distance", "missing_features"}
	rows := make([][]string, 0, len(clusters))
	for _, c := range clusters {
		rows = append(rows, []string{
			c.Region, strconv.Itoa(c.Cluster), formatFloat(c.Distance),
			strings.Join(c.MissingFeatures, "|"),
		})
	}
	return writeCSV(filepath.Join(dir, "clusters.csv"), header, rows)
}

// insightsDoc is the shape of insights.json. Stage durations are
// flattened to milliseconds so consumers never parse nanosecond ints.
type insightsDoc struct {
	RunID          string             `json:"run_id"`
	StartedAt      time.Time          `json:"started_at"`
	FinishedAt     time.Time          `json:"finished_at"`
	RecordCount    int                `json:"record_count"`
	RegionCount    int                `json:"region_count"`
	PeriodCount    int                `json:"period_count"`
	StageDurations map[string]float64 `json:"stage_durations_ms"`
	Config         map[string]any     `json:"config"`
	Summary        risk.Summary       `json:"summary"`
	Findings       []models.Finding   `json:"findings"`
}

func (w *writerImpl) writeInsights(dir string, result *models.AnalysisResult) error {
	durations := make(map[string]float64, len(result.Meta.StageDurations))
	for stage, d := range result.Meta.StageDurations {
		durations[stage] = float64(d) / float64(time.Millisecond)
	}
	findings := result.Findings
	if findings == nil {
		findings = []models.Finding{}
	}

	doc := insightsDoc{
		RunID:          result.Meta.RunID,
		StartedAt:      result.Meta.StartedAt,
		FinishedAt:     result.Meta.FinishedAt,
		RecordCount:    result.Meta.RecordCount,
		RegionCount:    result.Meta.RegionCount,
		PeriodCount:    result.Meta.PeriodCount,
		StageDurations: durations,
		Config:         result.Meta.Config,
		Summary:        risk.Summarize(result.Scores),
		Findings:       findings,
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal insights: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "insights.json"), data, 0o644); err != nil {
		return fmt.Errorf("write insights: %w", err)
	}
	return nil
}

// ─── Helpers ──────────────────────────────────────────────────────────────────

// runDirName builds a sortable directory name from the run's start
// time and a short form of its id.
func runDirName(meta models.RunMeta) string {
	id := meta.RunID
	if len(id) > 8 {
		id = id[:8]
	}
	return meta.StartedAt.UTC().Format("20060102_150405") + "_" + id
}

func writeCSV(path string, header []string, rows [][]string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", filepath.Base(path), err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		return fmt.Errorf("write %s header: %w", filepath.Base(path), err)
	}
	if err := w.WriteAll(rows); err != nil {
		return fmt.Errorf("write %s rows: %w", filepath.Base(path), err)
	}
	return nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
