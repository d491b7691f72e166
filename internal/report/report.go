package report

import (
	"context"

	"github.com/enrolytics/enrolytics/internal/models"
)

// Package report renders a finished analysis run into flat files that
// spreadsheets, notebooks, and downstream renderers can consume
// without importing this module.
//
// Responsibilities:
//   - Write one directory per run under a configured base directory
//   - Emit risk_scores.csv, anomaly_flags.csv, and clusters.csv with
//     stable column orders
//   - Emit insights.json carrying run metadata, the risk summary, and
//     the ranked findings
//
// Philosophy:
//   - Structured fields only. Phrasing findings into prose is the job
//     of narrative consumers, not this package.
//   - A report is a snapshot. Files are written once per run and never
//     amended; re-running writes a new directory.
//
// Integration Points:
//   - analytics.Pipeline produces the AnalysisResult rendered here
//   - audit.Logger records report-written events in the CLI
type Writer interface {
	// Write renders result into a fresh per-run directory under the
	// writer's base dir and returns that directory's path.
	Write(ctx context.Context, result *models.AnalysisResult) (string, error)
}

// The concrete implementation is in writer_impl.go.
