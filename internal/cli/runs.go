package cli

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"
)

func newRunsCmd(a *app) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List persisted analysis runs, newest first",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := a.commandContext(cmd.Context())
			defer cancel()
			if err := a.setup(ctx); err != nil {
				return err
			}
			defer a.close()

			st, err := a.openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			runs, err := st.ListRuns(ctx, limit, 0)
			if err != nil {
				return fmt.Errorf("list runs: %w", err)
			}
			if len(runs) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No runs persisted yet. Run 'enrolytics analyze' first.")
				return nil
			}

			rows := make([][]string, 0, len(runs))
			for _, r := range runs {
				rows = append(rows, []string{
					shortID(r.ID),
					r.StartedAt.Local().Format("2006-01-02 15:04:05"),
					r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond).String(),
					strconv.Itoa(r.RecordCount),
					strconv.Itoa(r.RegionCount),
					strconv.Itoa(r.PeriodCount),
				})
			}
			printTable(cmd.OutOrStdout(), []string{"RUN", "STARTED", "TOOK", "RECORDS", "REGIONS", "PERIODS"}, rows)
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of runs to list")
	return cmd
}
