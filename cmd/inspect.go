package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/brensch/climatepart/internal/inspector"
)

var inspectPath string

var inspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "Summarise the joined parquet artifact using DuckDB",
	Long: `Reads the joined parquet artifact (joined_parquet_path, or --file) through DuckDB and prints
its schema plus row count and max temperature range per station and year.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := getLogger()
		path := getConfig().JoinedParquetPath
		if inspectPath != "" {
			path = inspectPath
		}
		if path == "" {
			return fmt.Errorf("no parquet path configured (set joined_parquet_path or --file)")
		}

		if _, err := inspector.Inspect(context.Background(), getDB(), path, cmd.OutOrStdout(), logger); err != nil {
			return fmt.Errorf("inspection failed: %w", err)
		}
		return nil
	},
}

func init() {
	inspectCmd.Flags().StringVarP(&inspectPath, "file", "f", "", "Parquet file to inspect instead of joined_parquet_path")
}
