package ingest

import (
	"context"

	"github.com/enrolytics/enrolytics/internal/models"
)

// Package ingest turns arbitrary enrolment CSV exports into the
// canonical record table the analytics pipeline consumes.
//
// Responsibilities:
//   - Load CSV files tolerantly (UTF-8 BOM, Windows-1252 fallback,
//     ragged rows)
//   - Detect which source column carries which canonical role by
//     header pattern matching, with value-based fallbacks
//   - Clean rows: parse dates, normalise region names, drop rows the
//     pipeline cannot use, cap implausible counts
//   - Aggregate daily rows into per-region monthly records
//   - Generate deterministic synthetic datasets for demos and tests
//
// Philosophy:
//   - Repair what is safely repairable, drop what is not, and count
//     both. The CleanReport makes every repair visible; nothing is
//     silently invented. A dataset missing a required column fails
//     schema detection outright instead of being padded with
//     placeholder values.
//   - Missing stays missing. An absent optional metric is never
//     written as zero into a record.
//
// Integration Points:
//   - analytics.Pipeline consumes the []models.Record output
//   - audit.Logger records dataset load events
//   - metrics counts ingested records and per-kind quality issues
type Processor interface {
	// Process loads, detects, cleans and aggregates one dataset file.
	Process(ctx context.Context, path string) (*Result, error)
}

// Result is everything one ingest pass produced.
type Result struct {
	Records []models.Record `json:"records"`
	Schema  *Schema         `json:"schema"`
	Report  *CleanReport    `json:"report"`
}

// Config controls ingest behavior.
type Config struct {
	// SampleRows bounds how many rows schema detection inspects.
	// Zero means the default of 100.
	SampleRows int

	// MaxCount caps count metrics; larger values are clamped.
	// Zero means the default of 1,000,000.
	MaxCount float64
}

// The concrete implementation is in processor_impl.go.
