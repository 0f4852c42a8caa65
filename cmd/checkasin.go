package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"pricetracker/internal/clock/system"
	"pricetracker/internal/scrape"
)

// newCheckASINCmd creates the 'check-asin' subcommand, which probes product
// identifiers before they are added to the scrape list.
func newCheckASINCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check-asin ASIN [ASIN...]",
		Short: "Probe product identifiers against the marketplace",
		Args:  cobra.MinimumNArgs(1),

		RunE: func(cmd *cobra.Command, args []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			cfg := appInstance.Config()

			client := scrape.NewClient(scrape.Config{
				Timeout:    cfg.Scrape.ScrapeTimeout(),
				MaxRetries: 0,
			}, nil, nil, system.New(), appInstance.Logger())

			out := cmd.OutOrStdout()
			unclear := 0
			for _, asin := range args {
				result := client.CheckASIN(cmd.Context(), asin)
				switch {
				case result.Unclear:
					unclear++
					fmt.Fprintf(out, "? %s  %s\n", result.ASIN, result.Note)
				case result.Valid:
					fmt.Fprintf(out, "+ %s  %s\n", result.ASIN, result.Note)
				default:
					fmt.Fprintf(out, "- %s  %s\n", result.ASIN, result.Note)
				}
			}
			if unclear == len(args) {
				return fmt.Errorf("no probe produced a clear verdict")
			}
			return nil
		},
	}
}
