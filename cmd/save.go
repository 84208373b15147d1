package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/brensch/climatepart/internal/saver"
)

var saveDir string

var saveCmd = &cobra.Command{
	Use:   "save",
	Short: "Export the state database tables to parquet files",
	Long: `Saves each table of the DuckDB state database, such as the run event log, into a separate
parquet file under --dir (default <output_dir>/state).`,
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := getLogger()
		dir := saveDir
		if dir == "" {
			dir = filepath.Join(getConfig().OutputDir, "state")
		}
		logger.Info("Starting table save process...", slog.String("output_dir", dir))

		saved, err := saver.SaveTablesToParquet(context.Background(), getDB(), dir, logger)
		for _, p := range saved {
			fmt.Fprintln(cmd.OutOrStdout(), p)
		}
		if err != nil {
			return fmt.Errorf("save failed: %w", err)
		}
		return nil
	},
}

func init() {
	saveCmd.Flags().StringVar(&saveDir, "dir", "", "Directory for the exported parquet files")
}
