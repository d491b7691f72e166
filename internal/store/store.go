package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/enrolytics/enrolytics/internal/models"
)

// Store is the main persistence interface for analysis run history.
type Store interface {
	RunStore
	HistoryStore

	// Close releases database resources.
	Close() error

	// Ping verifies the connection is alive.
	Ping(ctx context.Context) error
}

// ─── Run store ────────────────────────────────────────────────────────────────

// RunRecord is the DB representation of one completed analysis run.
// Nested JSON blobs keep the schema stable while configs evolve.
type RunRecord struct {
	ID          string    `json:"id"`
	StartedAt   time.Time `json:"started_at"`
	FinishedAt  time.Time `json:"finished_at"`
	RecordCount int       `json:"record_count"`
	RegionCount int       `json:"region_count"`
	PeriodCount int       `json:"period_count"`
	Config      string    `json:"config"`    // JSON blob
	Durations   string    `json:"durations"` // JSON blob, stage -> milliseconds

	Scores   []ScoreRecord   `json:"scores"`
	Flags    []FlagRecord    `json:"flags"`
	Clusters []ClusterRecord `json:"clusters"`
	Findings []FindingRecord `json:"findings"`
}

// ScoreRecord is a persisted per-region risk score.
type ScoreRecord struct {
	ID         int64   `json:"id"`
	RunID      string  `json:"run_id"`
	Region     string  `json:"region"`
	Total      float64 `json:"total"`
	Level      string  `json:"level"`
	Components string  `json:"components"` // JSON blob
	Weights    string  `json:"weights"`    // JSON blob
}

// FlagRecord is a persisted anomalous flag. Normal and not-evaluated
// flags stay in the run report; only anomalous ones are kept here.
type FlagRecord struct {
	ID       int64   `json:"id"`
	RunID    string  `json:"run_id"`
	Region   string  `json:"region"`
	Period   string  `json:"period"`
	Feature  string  `json:"feature"`
	Value    float64 `json:"value"`
	Baseline float64 `json:"baseline"`
	Spread   float64 `json:"spread"`
	Severity float64 `json:"severity"`
}

// ClusterRecord is a persisted per-region cluster assignment.
type ClusterRecord struct {
	ID              int64   `json:"id"`
	RunID           string  `json:"run_id"`
	Region          string  `json:"region"`
	Cluster         int     `json:"cluster"`
	Distance        float64 `json:"distance"`
	MissingFeatures string  `json:"missing_features"` // JSON array
}

// FindingRecord is a persisted ranked insight finding.
type FindingRecord struct {
	ID       int64   `json:"id"`
	RunID    string  `json:"run_id"`
	Category string  `json:"category"`
	Region   string  `json:"region"`
	Period   string  `json:"period"`
	Feature  string  `json:"feature"`
	Score    float64 `json:"score"`
	Rank     int     `json:"rank"`
	Detail   string  `json:"detail"` // JSON blob
}

// RunStore persists analysis runs and their derived outputs.
type RunStore interface {
	// SaveRun creates or replaces a run record and its child rows.
	SaveRun(ctx context.Context, rec *RunRecord) error

	// GetRun retrieves a run with all child rows by ID.
	GetRun(ctx context.Context, id string) (*RunRecord, error)

	// ListRuns returns run headers (no child rows), newest first.
	ListRuns(ctx context.Context, limit, offset int) ([]*RunRecord, error)

	// LatestRun returns the most recent run with all child rows.
	LatestRun(ctx context.Context) (*RunRecord, error)

	// DeleteRun removes a run and its child rows.
	DeleteRun(ctx context.Context, id string) error

	// PruneRuns deletes all but the newest keep runs and reports how
	// many were removed. keep <= 0 is a no-op.
	PruneRuns(ctx context.Context, keep int) (int, error)
}

// ─── History store ────────────────────────────────────────────────────────────

// RiskPoint is one region's score in one past run.
type RiskPoint struct {
	RunID     string    `json:"run_id"`
	StartedAt time.Time `json:"started_at"`
	Total     float64   `json:"total"`
	Level     string    `json:"level"`
}

// HistoryStore answers cross-run questions about stored results.
type HistoryStore interface {
	// RiskHistory returns a region's scores across runs, newest first.
	RiskHistory(ctx context.Context, region string, limit int) ([]*RiskPoint, error)

	// FlagSummary returns anomalous flag counts grouped by feature for
	// runs started within the window.
	FlagSummary(ctx context.Context, from, to time.Time) (map[string]int, error)
}

// ─── Conversion ───────────────────────────────────────────────────────────────

// NewRunRecord flattens an analysis result into its DB representation.
func NewRunRecord(result *models.AnalysisResult) (*RunRecord, error) {
	cfgJSON, err := json.Marshal(result.Meta.Config)
	if err != nil {
		return nil, fmt.Errorf("marshal run config: %w", err)
	}
	durations := make(map[string]int64, len(result.Meta.StageDurations))
	for stage, d := range result.Meta.StageDurations {
		durations[stage] = d.Milliseconds()
	}
	durJSON, err := json.Marshal(durations)
	if err != nil {
		return nil, fmt.Errorf("marshal stage durations: %w", err)
	}

	rec := &RunRecord{
		ID:          result.Meta.RunID,
		StartedAt:   result.Meta.StartedAt,
		FinishedAt:  result.Meta.FinishedAt,
		RecordCount: result.Meta.RecordCount,
		RegionCount: result.Meta.RegionCount,
		PeriodCount: result.Meta.PeriodCount,
		Config:      string(cfgJSON),
		Durations:   string(durJSON),
	}

	for _, s := range result.Scores {
		compJSON, err := json.Marshal(s.Components)
		if err != nil {
			return nil, fmt.Errorf("marshal components for %s: %w", s.Region, err)
		}
		weightJSON, err := json.Marshal(s.Weights)
		if err != nil {
			return nil, fmt.Errorf("marshal weights for %s: %w", s.Region, err)
		}
		rec.Scores = append(rec.Scores, ScoreRecord{
			RunID:      rec.ID,
			Region:     s.Region,
			Total:      s.Total,
			Level:      string(s.Level),
			Components: string(compJSON),
			Weights:    string(weightJSON),
		})
	}

	for _, f := range result.Flags {
		if f.Status != models.EvalAnomalous {
			continue
		}
		rec.Flags = append(rec.Flags, FlagRecord{
			RunID:    rec.ID,
			Region:   f.Region,
			Period:   f.Period,
			Feature:  f.Feature,
			Value:    f.Value,
			Baseline: f.Baseline,
			Spread:   f.Spread,
			Severity: f.Severity,
		})
	}

	for _, c := range result.Clusters {
		missingJSON, err := json.Marshal(c.MissingFeatures)
		if err != nil {
			return nil, fmt.Errorf("marshal missing features for %s: %w", c.Region, err)
		}
		rec.Clusters = append(rec.Clusters, ClusterRecord{
			RunID:           rec.ID,
			Region:          c.Region,
			Cluster:         c.Cluster,
			Distance:        c.Distance,
			MissingFeatures: string(missingJSON),
		})
	}

	for _, fd := range result.Findings {
		detailJSON, err := json.Marshal(fd.Detail)
		if err != nil {
			return nil, fmt.Errorf("marshal finding detail for %s: %w", fd.Region, err)
		}
		rec.Findings = append(rec.Findings, FindingRecord{
			RunID:    rec.ID,
			Category: string(fd.Category),
			Region:   fd.Region,
			Period:   fd.Period,
			Feature:  fd.Feature,
			Score:    fd.Score,
			Rank:     fd.Rank,
			Detail:   string(detailJSON),
		})
	}

	return rec, nil
}
