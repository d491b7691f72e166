package ingest

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/enrolytics/enrolytics/internal/metrics"
	"github.com/enrolytics/enrolytics/internal/models"
)

// processorImpl is the file-based Processor implementation.
type processorImpl struct {
	cfg Config
	log *zap.Logger
}

// NewProcessor creates a Processor with the given configuration.
func NewProcessor(cfg Config, log *zap.Logger) Processor {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.SampleRows <= 0 {
		cfg.SampleRows = 100
	}
	if cfg.MaxCount <= 0 {
		cfg.MaxCount = 1_000_000
	}
	return &processorImpl{cfg: cfg, log: log.Named("ingest")}
}

// Process loads, detects, cleans and aggregates one dataset file.
func (p *processorImpl) Process(ctx context.Context, path string) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	raw, err := loadCSV(path)
	if err != nil {
		return nil, fmt.Errorf("load dataset: %w", err)
	}

	sample := raw.Rows
	if len(sample) > p.cfg.SampleRows {
		sample = sample[:p.cfg.SampleRows]
	}
	schema := DetectSchema(raw.Headers, sample)
	if err := schema.Require(RoleDate, RoleRegion, RoleEnrolments, RoleRejections); err != nil {
		return nil, err
	}
	p.log.Debug("schema detected",
		zap.String("path", path),
		zap.Int("mapped", len(schema.Columns)),
		zap.Strings("unmapped", schema.Unmapped))

	records, report := cleanTable(raw, schema, p.cfg, time.Now().UTC())
	if len(records) == 0 {
		return nil, fmt.Errorf("clean %q: %w", path, models.ErrNoRecords)
	}

	metrics.RecordsIngested.Add(float64(report.RowsKept))
	for kind, n := range report.Issues() {
		if n > 0 {
			metrics.DataQualityIssues.WithLabelValues(kind).Add(float64(n))
		}
	}

	p.log.Info("dataset processed",
		zap.String("path", path),
		zap.Int("rows_in", report.RowsIn),
		zap.Int("rows_kept", report.RowsKept),
		zap.Int("rows_dropped", report.Dropped()),
		zap.Int("records", report.Records))

	return &Result{Records: records, Schema: schema, Report: report}, nil
}
