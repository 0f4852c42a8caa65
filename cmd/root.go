// Package cmd defines and implements the CLI commands for the pricetracker
// executable.
package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"pricetracker/internal/app"
	"pricetracker/internal/blob"
	"pricetracker/internal/config"
	"pricetracker/internal/notify"
	"pricetracker/internal/storage/postgres"
)

var cfgFile string

// appKeyType is the key for storing the App in the command context.
type appKeyType string

const appKey appKeyType = "app"

// App is the application surface commands use. An interface so tests can
// inject a mock container.
type App interface {
	Close()
	Config() config.Config
	Logger() *zap.Logger
	Store() *postgres.Store
	Publisher() notify.Publisher
	Archive() blob.Provider
}

// newApp is the application factory. A variable so tests can replace it.
var newApp = func(ctx context.Context) (App, error) {
	return app.New(ctx, cfgFile)
}

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pricetracker",
		Short: "Scrapes Amazon product listings into a layered price store",
		Long: `pricetracker runs a batch ETL pipeline over scraped Amazon product
listings: raw records are normalized, validated, quality-gated and loaded
into a raw/clean/history layered Postgres store, ready for dashboards.`,

		SilenceUsage: true,

		// Build and inject the application after flags/config are parsed
		// but before the subcommand runs.
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := newApp(cmd.Context())
			if err != nil {
				return fmt.Errorf("initialize application services: %w", err)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, appInstance))
			return nil
		},

		// Release the store connection and flush logs deterministically.
		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if appInstance, ok := cmd.Context().Value(appKey).(App); ok && appInstance != nil {
				appInstance.Close()
			}
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file path")

	cmd.AddCommand(newRunCmd())
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newSummarizeCmd())
	cmd.AddCommand(newCheckASINCmd())

	return cmd
}

func resolveApp(ctx context.Context) (App, error) {
	appInstance, ok := ctx.Value(appKey).(App)
	if !ok || appInstance == nil {
		return nil, fmt.Errorf("application services not initialized")
	}
	return appInstance, nil
}

// Execute is the main entry point. The process exit status reflects the
// command outcome: for `run`, failure means no records were loaded.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
