package cmd

import (
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/brensch/climatepart/internal/config"
	"github.com/brensch/climatepart/internal/db"
	"github.com/brensch/climatepart/internal/logging"
)

// skipConfig marks commands that only need the state database.
const skipConfig = "skip-config"

var (
	cfgFile   string
	dbPath    string
	logFormat string
	logLevel  string
	logOutput string

	// Populated in PersistentPreRunE.
	rootLogger *slog.Logger
	logCloser  io.Closer
	dbConn     *sql.DB
	appConfig  config.Config
)

var rootCmd = &cobra.Command{
	Use:   "climatepart",
	Short: "Fetch station weather for three years, join station metadata and publish partitions.",
	Long: `climatepart downloads daily observations for one station over the input year and the
two years before it, joins them with the local station inventory, and publishes one CSV per
(station, year) to S3 plus a workbook with one sheet per partition.

Every run is recorded in a DuckDB event log that 'state' displays.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		logger, closer, err := logging.New(logging.Options{Format: logFormat, Level: logLevel, Output: logOutput})
		if err != nil {
			return err
		}
		rootLogger, logCloser = logger, closer
		slog.SetDefault(rootLogger)
		rootLogger.Debug("Logger initialized", "level", logLevel, "format", logFormat, "output", logOutput)

		path := dbPath
		if cmd.Annotations[skipConfig] == "" {
			appConfig, err = config.Load(cfgFile)
			if err != nil {
				return err
			}
			rootLogger.Debug("Configuration loaded", slog.Any("config", appConfig))
			if !cmd.Flags().Changed("db-path") {
				path = appConfig.DbPath
			}
		}

		dsn := ""
		if path != ":memory:" {
			if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
				return fmt.Errorf("failed to create database directory for %s: %w", path, err)
			}
			dsn = path
		}
		dbConn, err = db.Open(dsn)
		if err != nil {
			return err
		}
		rootLogger.Debug("DuckDB state database ready.", "path", path)
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if dbConn != nil {
			if err := dbConn.Close(); err != nil {
				rootLogger.Error("Failed to close DuckDB connection cleanly", "error", err)
			}
		}
		if logCloser != nil {
			return logCloser.Close()
		}
		return nil
	},
}

// Execute adds all child commands to the root command and runs it. Called once by main.main().
func Execute() {
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(inspectCmd)
	rootCmd.AddCommand(stateCmd)
	rootCmd.AddCommand(saveCmd)

	if err := rootCmd.Execute(); err != nil {
		if rootLogger != nil {
			rootLogger.Error("Command execution failed", "error", err)
		} else {
			fmt.Fprintf(os.Stderr, "Command execution failed: %v\n", err)
		}
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", config.DefaultConfigPath, "Path to the JSON configuration document")
	rootCmd.PersistentFlags().StringVarP(&dbPath, "db-path", "d", config.DefaultDbPath, "Path to DuckDB state database file (:memory: for in-memory); overrides db_path")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "Log output format (text or json)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logOutput, "log-output", "stderr", "Log output destination (stderr, stdout, or file path)")
	rootCmd.Version = "0.1.0"
}

func getLogger() *slog.Logger {
	if rootLogger == nil {
		return logging.Discard()
	}
	return rootLogger
}

func getDB() *sql.DB {
	return dbConn
}

func getConfig() config.Config {
	return appConfig
}
