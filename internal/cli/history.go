package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newHistoryCmd(a *app) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history <region>",
		Short: "Show one region's risk score across past runs",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
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

			region := args[0]
			points, err := st.RiskHistory(ctx, region, limit)
			if err != nil {
				return fmt.Errorf("risk history: %w", err)
			}
			if len(points) == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "No persisted scores for region %q.\n", region)
				return nil
			}

			rows := make([][]string, 0, len(points))
			for _, p := range points {
				rows = append(rows, []string{
					shortID(p.RunID),
					p.StartedAt.Local().Format("2006-01-02 15:04:05"),
					fmt.Sprintf("%.1f", p.Total),
					p.Level,
				})
			}
			printTable(cmd.OutOrStdout(), []string{"RUN", "STARTED", "SCORE", "LEVEL"}, rows)
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 30, "maximum number of runs to include")
	return cmd
}
