package cmd

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/brensch/climatepart/internal/db"
)

var stateLimit int
var stateFilterEvent string
var stateFailures bool

var stages = []string{db.StageRun, db.StageFetch, db.StageStations, db.StageJoin, db.StagePartition, db.StageArtifact, db.StageUpload, db.StageWorkbook}

var stateCmd = &cobra.Command{
	Use:   "state [stage]",
	Short: "View the run event log",
	Long: `Queries the DuckDB event log and displays run history, newest first.
Specify a stage (` + strings.Join(stages, ", ") + `) to filter by stage.
Use --failures to list the subjects that failed in the most recent run.`,
	Args:        cobra.MaximumNArgs(1),
	Annotations: map[string]string{skipConfig: "true"},
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := getLogger()
		dbConn := getDB()
		ctx := context.Background()

		stageFilter := ""
		if len(args) > 0 {
			stageFilter = strings.ToLower(args[0])
			if !slices.Contains(stages, stageFilter) {
				return fmt.Errorf("invalid stage filter: %s (use one of %s)", args[0], strings.Join(stages, ", "))
			}
		}

		if stateFailures {
			runID, found, err := db.LatestRunID(ctx, dbConn)
			if err != nil {
				return err
			}
			if !found {
				fmt.Fprintln(cmd.OutOrStdout(), "No runs recorded.")
				return nil
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Failures in run %s:\n", runID)
			total := 0
			for _, stage := range stages {
				if stageFilter != "" && stage != stageFilter {
					continue
				}
				failed, err := db.SubjectsWithEvent(ctx, dbConn, runID, stage, db.EventError)
				if err != nil {
					return err
				}
				subjects := make([]string, 0, len(failed))
				for s := range failed {
					subjects = append(subjects, s)
				}
				slices.Sort(subjects)
				for _, s := range subjects {
					fmt.Fprintf(out, "  %-9s %s: %s\n", stage, s, failed[s])
				}
				total += len(subjects)
			}
			fmt.Fprintf(out, "%d failures.\n", total)
			return nil
		}

		logger.Debug("Querying database event log", "stage_filter", stageFilter, "event_filter", stateFilterEvent, "limit", stateLimit)
		if err := db.DisplayHistory(ctx, cmd.OutOrStdout(), dbConn, stageFilter, stateFilterEvent, stateLimit); err != nil {
			logger.Error("Failed to display state history", "error", err)
			return err
		}
		return nil
	},
}

func init() {
	stateCmd.Flags().IntVarP(&stateLimit, "limit", "n", 50, "Limit the number of log records displayed")
	stateCmd.Flags().StringVarP(&stateFilterEvent, "event", "e", "", "Filter records by event type (start, end, error, skip)")
	stateCmd.Flags().BoolVar(&stateFailures, "failures", false, "List failed subjects of the most recent run")
}
