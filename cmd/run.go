package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"pricetracker/internal/clock/system"
	"pricetracker/internal/extract"
	"pricetracker/internal/id/uuid"
	"pricetracker/internal/notify"
	"pricetracker/internal/pipeline"
	"pricetracker/internal/scrape"
)

// newRunCmd creates the 'run' subcommand, which executes one ETL pipeline
// pass: extract, transform, validate, quality gate, load.
func newRunCmd() *cobra.Command {
	var (
		productsFlag string
		liveFlag     bool
		inputFlag    string
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Execute one pipeline run",
		Long: `Runs the ETL pipeline once. By default raw records are read from the
scraper output file; with --live the listed products are fetched directly.
The exit status is non-zero unless at least one record was loaded.`,

		RunE: func(cmd *cobra.Command, _ []string) error {
			return runPipeline(cmd, productsFlag, liveFlag, inputFlag)
		},
	}

	cmd.Flags().StringVar(&productsFlag, "products", "", "comma-separated product IDs (required with --live)")
	cmd.Flags().BoolVar(&liveFlag, "live", false, "fetch product pages live instead of reading the input file")
	cmd.Flags().StringVar(&inputFlag, "input", "", "scraper output file (overrides pipeline.input_file)")

	return cmd
}

func runPipeline(cmd *cobra.Command, productsFlag string, live bool, input string) error {
	appInstance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	cfg := appInstance.Config()
	logger := appInstance.Logger()
	clock := system.New()
	ids := uuid.NewGenerator()

	source, err := buildSource(appInstance, productsFlag, live, input, clock)
	if err != nil {
		return err
	}

	runner := pipeline.NewRunner(
		cfg.Pipeline.Name,
		source,
		pipeline.NewValidator(pipeline.ValidatorConfig{
			PriceCeiling:   cfg.Pipeline.PriceCeiling,
			TitleMinLength: cfg.Pipeline.TitleMinLength,
		}),
		pipeline.NewQualityGate(cfg.Pipeline.SpikeThreshold),
		pipeline.NewLoader(appInstance.Store(), ids, clock, logger),
		appInstance.Store(),
		notify.NewNotifier(appInstance.Publisher()),
		ids,
		clock,
		logger,
	)

	report, runErr := runner.Run(cmd.Context())
	printSummary(cmd, report)

	if runErr != nil {
		return runErr
	}
	if !report.Succeeded() {
		return fmt.Errorf("run %s finished without loading any records", report.RunID)
	}
	logger.Info("run complete",
		zap.String("run_id", report.RunID),
		zap.Int("loaded", report.Loaded),
		zap.Duration("duration", report.Duration()))
	return nil
}

func buildSource(appInstance App, productsFlag string, live bool, input string, clock *system.Clock) (pipeline.Source, error) {
	cfg := appInstance.Config()
	logger := appInstance.Logger()

	if !live {
		path := input
		if path == "" {
			path = cfg.Pipeline.InputFile
		}
		return extract.NewFileSource(path, clock, logger), nil
	}

	asins := splitProducts(productsFlag)
	if len(asins) == 0 {
		return nil, fmt.Errorf("--live requires --products")
	}

	var renderer scrape.Renderer
	if cfg.Scrape.RenderFallback {
		renderer = scrape.NewChromedpRenderer("",
			cfg.Scrape.RenderTimeout(), clock, logger)
	}
	client := scrape.NewClient(scrape.Config{
		Timeout:        cfg.Scrape.ScrapeTimeout(),
		MaxRetries:     cfg.Scrape.MaxRetries,
		ArchivePages:   cfg.Scrape.ArchivePages,
		ArchivePrefix:  cfg.Archive.Prefix,
		RenderFallback: cfg.Scrape.RenderFallback,
	}, renderer, appInstance.Archive(), clock, logger)

	return extract.NewLiveSource(asins, client, cfg.Scrape.Delay(), clock, logger), nil
}

func splitProducts(flag string) []string {
	if strings.TrimSpace(flag) == "" {
		return nil
	}
	parts := strings.Split(flag, ",")
	asins := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			asins = append(asins, trimmed)
		}
	}
	return asins
}

func printSummary(cmd *cobra.Command, report pipeline.RunReport) {
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, strings.Repeat("=", 50))
	fmt.Fprintln(out, "PIPELINE SUMMARY")
	fmt.Fprintln(out, strings.Repeat("=", 50))
	fmt.Fprintf(out, "Run:         %s\n", report.RunID)
	fmt.Fprintf(out, "Final stage: %s\n", report.FinalStage)
	fmt.Fprintf(out, "Extracted:   %d\n", report.Extracted)
	fmt.Fprintf(out, "Transformed: %d\n", report.Transformed)
	fmt.Fprintf(out, "Validated:   %d\n", report.Validated)
	fmt.Fprintf(out, "Quality OK:  %d\n", report.QualityOK)
	fmt.Fprintf(out, "Loaded:      %d\n", report.Loaded)
	fmt.Fprintf(out, "Runtime:     %.1fs\n", report.Duration().Seconds())
	if len(report.Failures) > 0 {
		fmt.Fprintln(out, "Failures:")
		for _, f := range report.Failures {
			fmt.Fprintf(out, "  - %s\n", f)
		}
	}
}
