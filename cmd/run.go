package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/brensch/climatepart/internal/app"
	"github.com/brensch/climatepart/internal/logging"
	"github.com/brensch/climatepart/internal/pipeline"
)

var (
	runTUI        bool
	runSkipUpload bool
	runYear       int
)

const tuiLogFile = "climatepart.log"

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the fetch, join, partition and publish workflow once",
	Long: `Performs the complete pipeline:
1. Fetches daily data for input_year-2 .. input_year, keeping rows of the requested year that
   carry a max temperature. A failed year is logged and skipped.
2. Joins the observations with the station file on Climate ID.
3. Writes the joined CSV and parquet artifacts.
4. Partitions by station then year and uploads <station>/<year>/<year>.csv to the bucket.
5. Writes one workbook sheet per partition.
Use --skip-upload to write partition files locally without uploading.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := getLogger()
		cfg := getConfig()
		if cmd.Flags().Changed("year") {
			cfg.InputYear = runYear
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid --year: %w", err)
			}
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		deps := pipeline.Deps{Fetcher: pipeline.NewFetcher(cfg, logger), DB: getDB()}
		switch {
		case runSkipUpload:
			logger.Info("Upload skipped, partition files are written locally only.")
		case !cfg.UploadConfigured():
			logger.Warn("No bucket or region configured, partition files are written locally only.")
		default:
			uploader, err := pipeline.NewUploader(cfg)
			if err != nil {
				return fmt.Errorf("create uploader: %w", err)
			}
			deps.Uploader = uploader
		}

		var res pipeline.Result
		var err error
		if runTUI {
			// The progress view owns the terminal, so console logs go to a file instead.
			if logOutput == "" || logOutput == "stderr" || logOutput == "stdout" {
				fileLogger, closer, lerr := logging.New(logging.Options{Format: logFormat, Level: logLevel, Output: tuiLogFile})
				if lerr != nil {
					return lerr
				}
				defer closer.Close()
				logger = fileLogger
				deps.Fetcher = pipeline.NewFetcher(cfg, logger)
			}
			res, err = app.Start(ctx, "climatepart", func(ctx context.Context, events chan<- pipeline.Event) (pipeline.Result, error) {
				return pipeline.Run(ctx, cfg, deps, logger, events)
			})
		} else {
			res, err = pipeline.Run(ctx, cfg, deps, logger, nil)
		}

		fmt.Fprintln(cmd.OutOrStdout(), app.RenderSummary(res, err))
		if err != nil {
			return fmt.Errorf("run failed: %w", err)
		}
		if err := res.Err(); err != nil {
			return fmt.Errorf("run finished with failures: %w", err)
		}
		return nil
	},
}

func init() {
	runCmd.Flags().BoolVar(&runTUI, "tui", false, "Show an interactive progress view instead of log lines only")
	runCmd.Flags().BoolVar(&runSkipUpload, "skip-upload", false, "Write partition files locally without uploading them")
	runCmd.Flags().IntVarP(&runYear, "year", "y", 0, "Override input_year from the configuration")
}
