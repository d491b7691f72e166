package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/enrolytics/enrolytics/internal/audit"
	"github.com/enrolytics/enrolytics/internal/ingest"
)

func newSampleCmd(a *app) *cobra.Command {
	var (
		out   string
		start string
		days  int
		seed  int64
	)

	cmd := &cobra.Command{
		Use:   "sample",
		Short: "Generate a deterministic synthetic enrolment dataset",
		Long: "sample writes a daily enrolment CSV with regional base rates, weekend and\n" +
			"quarterly seasonality, and planted anomalies. The same seed always produces\n" +
			"the same file, so demo runs are reproducible.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := a.commandContext(cmd.Context())
			defer cancel()
			if err := a.setup(ctx); err != nil {
				return err
			}
			defer a.close()
			ctx = audit.WithCorrelationID(ctx, audit.GenerateCorrelationID())

			cfg := ingest.SampleConfig{Days: days, Seed: seed}
			if start != "" {
				t, err := time.Parse("2006-01-02", start)
				if err != nil {
					return fmt.Errorf("invalid --start %q: %w", start, err)
				}
				cfg.Start = t
			}

			rows, err := ingest.WriteSampleCSV(out, cfg)
			if err != nil {
				return fmt.Errorf("generate sample: %w", err)
			}
			_ = a.audit.LogDatasetGenerated(ctx, out, rows)

			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d rows to %s\n", rows, out)
			fmt.Fprintf(cmd.OutOrStdout(), "Next: enrolytics analyze --dataset %s\n", out)
			return nil
		},
	}

	cmd.Flags().StringVarP(&out, "out", "o", "data/sample.csv", "output CSV path")
	cmd.Flags().StringVar(&start, "start", "", "first day as YYYY-MM-DD (default 2023-01-01)")
	cmd.Flags().IntVar(&days, "days", 0, "number of days to generate (default 365)")
	cmd.Flags().Int64Var(&seed, "seed", 0, "RNG seed (default 42)")
	return cmd
}
