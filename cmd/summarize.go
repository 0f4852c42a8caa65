package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// newSummarizeCmd creates the 'summarize' subcommand, which rebuilds the
// daily price summary table from the history layer.
func newSummarizeCmd() *cobra.Command {
	var days int

	cmd := &cobra.Command{
		Use:   "summarize",
		Short: "Rebuild daily price summaries",
		Long: `Recomputes per-day min/max/avg price aggregates from the price history
table. Rebuilding is idempotent; existing summary rows for the covered days
are replaced.`,

		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			logger := appInstance.Logger()

			since := time.Now().UTC().AddDate(0, 0, -days)
			rows, err := appInstance.Store().RebuildDailySummary(cmd.Context(), since)
			if err != nil {
				return fmt.Errorf("rebuild daily summary: %w", err)
			}

			logger.Info("daily summaries rebuilt",
				zap.Int("days", days), zap.Int64("rows", rows))
			fmt.Fprintf(cmd.OutOrStdout(), "Rebuilt %d summary rows covering the last %d days\n", rows, days)
			return nil
		},
	}

	cmd.Flags().IntVar(&days, "days", 30, "how many days back to rebuild")

	return cmd
}
