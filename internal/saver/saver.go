// Package saver exports the tables of the state database to parquet files.
package saver

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	_ "github.com/marcboeker/go-duckdb"
)

// SaveTablesToParquet writes every table in conn to <outputDir>/<table>.parquet and returns the
// paths written, sorted.
func SaveTablesToParquet(ctx context.Context, conn *sql.DB, outputDir string, logger *slog.Logger) ([]string, error) {
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory '%s': %w", outputDir, err)
	}

	rows, err := conn.QueryContext(ctx, `PRAGMA show_tables;`)
	if err != nil {
		return nil, fmt.Errorf("failed to query tables: %w", err)
	}
	var tableNames []string
	for rows.Next() {
		var tableName string
		if err := rows.Scan(&tableName); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan table name: %w", err)
		}
		tableNames = append(tableNames, tableName)
	}
	if err = rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("error iterating tables: %w", err)
	}
	rows.Close()

	if len(tableNames) == 0 {
		logger.Info("No tables found in the database to save.")
		return nil, nil
	}
	logger.Info("Found tables to save.", slog.Int("count", len(tableNames)))

	var wg sync.WaitGroup
	var mu sync.Mutex
	var saved []string
	var saveErrors error
	for _, tableName := range tableNames {
		if ctx.Err() != nil {
			logger.Warn("Context cancelled before saving all tables.", "error", ctx.Err())
			saveErrors = errors.Join(saveErrors, ctx.Err())
			break
		}
		wg.Add(1)
		go func(tn string) {
			defer wg.Done()
			l := logger.With(slog.String("table", tn))
			out, err := saveTable(ctx, conn, tn, outputDir)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				l.Error("Failed to save table.", "error", err)
				saveErrors = errors.Join(saveErrors, err)
				return
			}
			l.Info("Table saved.", slog.String("path", out))
			saved = append(saved, out)
		}(tableName)
	}
	wg.Wait()
	sort.Strings(saved)
	return saved, saveErrors
}

func saveTable(ctx context.Context, conn *sql.DB, table, outputDir string) (string, error) {
	safeFilename := strings.NewReplacer(`"`, "", "/", "_", `\`, "_").Replace(table)
	outputFilePath := filepath.Join(outputDir, safeFilename+".parquet")
	duckdbFilePath := strings.ReplaceAll(outputFilePath, `\`, `/`)

	quotedTableName := fmt.Sprintf(`"%s"`, strings.ReplaceAll(table, `"`, `""`))
	copySQL := fmt.Sprintf(`COPY %s TO '%s' (FORMAT PARQUET);`, quotedTableName, strings.ReplaceAll(duckdbFilePath, "'", "''"))
	if _, err := conn.ExecContext(ctx, copySQL); err != nil {
		return "", fmt.Errorf("copy table %s to %s: %w", table, outputFilePath, err)
	}
	return outputFilePath, nil
}
