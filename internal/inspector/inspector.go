// Package inspector summarises the joined parquet artifact with DuckDB.
package inspector

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	_ "github.com/marcboeker/go-duckdb"
)

// GroupStats is the max-temperature summary of one (station, year) group.
type GroupStats struct {
	Station string
	Year    sql.NullInt64
	Rows    int64
	Min     sql.NullFloat64
	Max     sql.NullFloat64
	Mean    sql.NullFloat64
}

// Report is everything Inspect found in the file.
type Report struct {
	Path      string
	Schema    string
	Columns   []string
	TotalRows int64
	Groups    []GroupStats
}

const (
	stationColumn = "station_name"
	yearColumn    = "year"
	tempColumn    = "max_temp_c"
)

// Inspect reads the parquet file at path through conn, writes the schema and per-group
// statistics to w and returns them.
func Inspect(ctx context.Context, conn *sql.DB, path string, w io.Writer, logger *slog.Logger) (Report, error) {
	rep := Report{Path: path}
	l := logger.With(slog.String("path", path))
	if _, err := os.Stat(path); err != nil {
		return rep, fmt.Errorf("parquet file %s: %w", path, err)
	}

	l.Debug("Loading parquet extension.")
	if _, err := conn.ExecContext(ctx, `LOAD parquet;`); err != nil {
		l.Warn("Failed load parquet extension.", "error", err)
	}

	schema, columns, err := getSchemaAndColumns(ctx, conn, path)
	if err != nil {
		return rep, err
	}
	rep.Schema, rep.Columns = schema, columns
	for _, want := range []string{stationColumn, yearColumn, tempColumn} {
		if !containsFold(columns, want) {
			return rep, fmt.Errorf("parquet file %s lacks column %q", path, want)
		}
	}

	source := fmt.Sprintf("read_parquet('%s')", escapePath(path))
	statsSQL := fmt.Sprintf(`
        SELECT %[1]s, %[2]s, COUNT(*), MIN(%[3]s), MAX(%[3]s), AVG(%[3]s)
        FROM %[4]s
        GROUP BY %[1]s, %[2]s
        ORDER BY %[1]s, %[2]s;`, stationColumn, yearColumn, tempColumn, source)
	l.Debug("Executing stats query", slog.String("sql", statsSQL))

	rows, err := conn.QueryContext(ctx, statsSQL)
	if err != nil {
		return rep, fmt.Errorf("query statistics for %s: %w", path, err)
	}
	defer rows.Close()

	var scanErrors error
	for rows.Next() {
		var g GroupStats
		var station sql.NullString
		if err := rows.Scan(&station, &g.Year, &g.Rows, &g.Min, &g.Max, &g.Mean); err != nil {
			scanErrors = errors.Join(scanErrors, fmt.Errorf("scan statistics row: %w", err))
			continue
		}
		g.Station = station.String
		rep.TotalRows += g.Rows
		rep.Groups = append(rep.Groups, g)
	}
	if err := rows.Err(); err != nil {
		return rep, errors.Join(scanErrors, fmt.Errorf("iterate statistics: %w", err))
	}
	l.Info("Statistics gathered.", slog.Int64("total_rows", rep.TotalRows), slog.Int("groups", len(rep.Groups)))

	rep.Print(w)
	return rep, scanErrors
}

// Print writes the report as fixed-width text.
func (r Report) Print(w io.Writer) {
	fmt.Fprintf(w, "\n--- Parquet Summary: %s ---\n", r.Path)
	fmt.Fprintln(w, "\n  Schema:")
	for _, line := range strings.Split(r.Schema, "\n") {
		fmt.Fprintf(w, "  %s\n", line)
	}
	fmt.Fprintln(w, "\n--- Max Temperature By Station And Year ---")
	fmt.Fprintf(w, "%-40s | %-6s | %-8s | %-8s | %-8s | %s\n", "Station", "Year", "Rows", "Min", "Max", "Mean")
	fmt.Fprintln(w, strings.Repeat("-", 100))
	for _, g := range r.Groups {
		year := "N/A"
		if g.Year.Valid {
			year = fmt.Sprintf("%d", g.Year.Int64)
		}
		fmt.Fprintf(w, "%-40s | %-6s | %-8d | %-8s | %-8s | %s\n", g.Station, year, g.Rows, formatTemp(g.Min), formatTemp(g.Max), formatTemp(g.Mean))
	}
	fmt.Fprintln(w, strings.Repeat("-", 100))
	fmt.Fprintf(w, "Total rows: %d\n", r.TotalRows)
}

func formatTemp(v sql.NullFloat64) string {
	if !v.Valid {
		return "N/A"
	}
	return fmt.Sprintf("%.1f", v.Float64)
}

func escapePath(p string) string {
	return strings.ReplaceAll(strings.ReplaceAll(p, `\`, `/`), "'", "''")
}

func containsFold(list []string, s string) bool {
	for _, v := range list {
		if strings.EqualFold(v, s) {
			return true
		}
	}
	return false
}

func getSchemaAndColumns(ctx context.Context, conn *sql.DB, filePath string) (schemaString string, columnNames []string, err error) {
	describeSQL := fmt.Sprintf("DESCRIBE SELECT * FROM read_parquet('%s');", escapePath(filePath))
	schemaRows, err := conn.QueryContext(ctx, describeSQL)
	if err != nil {
		return "", nil, fmt.Errorf("query schema for %s: %w", filePath, err)
	}
	defer schemaRows.Close()

	var schemaBuilder strings.Builder
	schemaBuilder.WriteString(fmt.Sprintf("%-30s | %-20s | %s\n", "Column Name", "Column Type", "Null"))
	schemaBuilder.WriteString(strings.Repeat("-", 60) + "\n")
	for schemaRows.Next() {
		var colName, colType, nullVal, keyVal, defaultVal, extraVal sql.NullString
		if scanErr := schemaRows.Scan(&colName, &colType, &nullVal, &keyVal, &defaultVal, &extraVal); scanErr != nil {
			return "", nil, fmt.Errorf("scan schema row for %s: %w", filePath, scanErr)
		}
		schemaBuilder.WriteString(fmt.Sprintf("%-30s | %-20s | %s\n", colName.String, colType.String, nullVal.String))
		if colName.Valid {
			columnNames = append(columnNames, colName.String)
		}
	}
	if err = schemaRows.Err(); err != nil {
		return "", nil, fmt.Errorf("iterate schema rows for %s: %w", filePath, err)
	}
	if len(columnNames) == 0 {
		return "", nil, fmt.Errorf("parquet file %s has no columns", filePath)
	}
	return strings.TrimRight(schemaBuilder.String(), "\n"), columnNames, nil
}
