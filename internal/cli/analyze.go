package cli

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/enrolytics/enrolytics/internal/analytics"
	"github.com/enrolytics/enrolytics/internal/analytics/risk"
	"github.com/enrolytics/enrolytics/internal/audit"
	"github.com/enrolytics/enrolytics/internal/ingest"
	"github.com/enrolytics/enrolytics/internal/metrics"
	"github.com/enrolytics/enrolytics/internal/models"
	"github.com/enrolytics/enrolytics/internal/report"
	"github.com/enrolytics/enrolytics/internal/store"
)

func newAnalyzeCmd(a *app) *cobra.Command {
	var (
		dataset   string
		reportDir string
		noStore   bool
	)

	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Ingest a dataset, run the analysis pipeline, and write reports",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := a.commandContext(cmd.Context())
			defer cancel()
			if err := a.setup(ctx); err != nil {
				return err
			}
			defer a.close()
			return a.runAnalyze(ctx, cmd, dataset, reportDir, noStore)
		},
	}

	cmd.Flags().StringVarP(&dataset, "dataset", "d", "", "input CSV path (overrides the configured dataset)")
	cmd.Flags().StringVar(&reportDir, "report-dir", "", "report output base directory (overrides configuration)")
	cmd.Flags().BoolVar(&noStore, "no-store", false, "do not persist the run to the results database")
	return cmd
}

func (a *app) runAnalyze(ctx context.Context, cmd *cobra.Command, dataset, reportDir string, noStore bool) error {
	ctx = audit.WithCorrelationID(ctx, audit.GenerateCorrelationID())

	if dataset == "" {
		dataset = a.cfg.Dataset.Path
	}
	if dataset == "" {
		return fmt.Errorf("no dataset configured; pass --dataset or set dataset.path (or run 'enrolytics sample' first)")
	}
	if reportDir == "" {
		reportDir = a.cfg.Report.Dir
	}

	stopMetrics := a.startMetricsListener()
	defer stopMetrics()

	processor := ingest.NewProcessor(ingest.Config{}, a.log)
	res, err := processor.Process(ctx, dataset)
	if err != nil {
		return fmt.Errorf("ingest %s: %w", dataset, err)
	}
	_ = a.audit.LogDatasetLoaded(ctx, dataset, len(res.Records))
	fmt.Fprintf(cmd.OutOrStdout(), "Ingested %s: %d rows read, %d kept, %d monthly records\n",
		dataset, res.Report.RowsIn, res.Report.RowsKept, res.Report.Records)

	pipeline := analytics.NewPipeline(a.analyticsConfig(), a.log)
	_ = a.audit.LogRunStarted(ctx, len(res.Records))

	result, err := pipeline.Run(ctx, res.Records)
	if err != nil {
		_ = a.audit.LogRunFailed(ctx, "", err)
		return fmt.Errorf("analysis failed: %w", err)
	}
	_ = a.audit.LogRunCompleted(ctx, result.Meta.RunID, result.Meta.FinishedAt.Sub(result.Meta.StartedAt))

	writer := report.NewWriter(reportDir, a.log)
	runDir, err := writer.Write(ctx, result)
	if err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	_ = a.audit.LogReportWritten(ctx, result.Meta.RunID, runDir)

	if !noStore && a.cfg.Database.Path != "" {
		if err := a.persistRun(ctx, result); err != nil {
			return err
		}
	}

	a.printSummary(cmd.OutOrStdout(), result, runDir)
	return nil
}

func (a *app) persistRun(ctx context.Context, result *models.AnalysisResult) error {
	st, err := a.openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	rec, err := store.NewRunRecord(result)
	if err != nil {
		return fmt.Errorf("encode run: %w", err)
	}
	if err := st.SaveRun(ctx, rec); err != nil {
		return fmt.Errorf("persist run: %w", err)
	}
	metrics.RunsPersisted.Inc()

	if keep := a.cfg.Database.RetainRuns; keep > 0 {
		pruned, err := st.PruneRuns(ctx, keep)
		if err != nil {
			a.log.Warn("prune runs", zap.Error(err))
		} else if pruned > 0 {
			a.log.Info("pruned old runs", zap.Int("pruned", pruned), zap.Int("kept", keep))
		}
	}
	return nil
}

func (a *app) printSummary(w io.Writer, result *models.AnalysisResult, runDir string) {
	meta := result.Meta

	anomalous, evaluated := 0, 0
	for _, f := range result.Flags {
		switch f.Status {
		case models.EvalAnomalous:
			anomalous++
			evaluated++
		case models.EvalNormal:
			evaluated++
		}
	}
	clustered, excluded := 0, 0
	for _, c := range result.Clusters {
		if c.Clustered() {
			clustered++
		} else {
			excluded++
		}
	}
	summary := risk.Summarize(result.Scores)

	fmt.Fprintf(w, "\nRun %s finished in %s\n",
		shortID(meta.RunID), meta.FinishedAt.Sub(meta.StartedAt).Round(time.Millisecond))
	fmt.Fprintf(w, "  records:  %d (%d regions, %d periods)\n",
		meta.RecordCount, meta.RegionCount, meta.PeriodCount)
	fmt.Fprintf(w, "  flags:    %d anomalous of %d evaluated\n", anomalous, evaluated)
	fmt.Fprintf(w, "  clusters: %d regions clustered, %d excluded\n", clustered, excluded)
	fmt.Fprintf(w, "  risk:     %s\n", levelLine(summary))

	if len(result.Findings) > 0 {
		fmt.Fprintln(w, "Findings:")
		for _, f := range result.Findings {
			fmt.Fprintln(w, "  "+findingLine(f))
		}
	}
	fmt.Fprintf(w, "Report: %s\n", runDir)
}

// ─── Helpers ──────────────────────────────────────────────────────────────────

func levelLine(s risk.Summary) string {
	order := []models.RiskLevel{
		models.RiskCritical, models.RiskHigh, models.RiskMedium,
		models.RiskLow, models.RiskVeryLow,
	}
	parts := make([]string, 0, len(order))
	for _, lvl := range order {
		if n := s.ByLevel[lvl]; n > 0 {
			parts = append(parts, fmt.Sprintf("%d %s", n, lvl))
		}
	}
	if len(parts) == 0 {
		return "no regions scored"
	}
	return strings.Join(parts, ", ")
}

func findingLine(f models.Finding) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d. [%s] %s", f.Rank, f.Category, f.Region)
	if f.Period != "" {
		b.WriteString(" " + f.Period)
	}
	if f.Feature != "" {
		b.WriteString(" " + f.Feature)
	}
	fmt.Fprintf(&b, "  score %.2f", f.Score)
	return b.String()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
