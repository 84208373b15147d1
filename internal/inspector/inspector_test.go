package inspector

import (
	"bytes"
	"context"
	"database/sql"
	"path/filepath"
	"strings"
	"testing"

	_ "github.com/marcboeker/go-duckdb"

	"github.com/brensch/climatepart/internal/artifact"
	"github.com/brensch/climatepart/internal/logging"
	"github.com/brensch/climatepart/internal/table"
)

func openDuckDB(t *testing.T) *sql.DB {
	t.Helper()
	conn, err := sql.Open("duckdb", "")
	if err != nil {
		t.Fatalf("open duckdb: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestInspect_GroupsByStationAndYear(t *testing.T) {
	fields := []string{table.ColStationName, table.ColYear, table.ColMaxTemp}
	records := []table.Record{
		{table.ColStationName: "B TOWN", table.ColYear: "2023", table.ColMaxTemp: "4"},
		{table.ColStationName: "A TOWN", table.ColYear: "2023", table.ColMaxTemp: "1"},
		{table.ColStationName: "A TOWN", table.ColYear: "2023", table.ColMaxTemp: "3"},
		{table.ColStationName: "A TOWN", table.ColYear: "2022", table.ColMaxTemp: "-5"},
	}
	path := filepath.Join(t.TempDir(), "joined.parquet")
	if _, err := artifact.WriteParquet(path, fields, records, logging.Discard()); err != nil {
		t.Fatalf("WriteParquet() error = %v", err)
	}

	var buf bytes.Buffer
	rep, err := Inspect(context.Background(), openDuckDB(t), path, &buf, logging.Discard())
	if err != nil {
		t.Fatalf("Inspect() error = %v", err)
	}
	if rep.TotalRows != 4 || len(rep.Groups) != 3 {
		t.Fatalf("TotalRows=%d groups=%d, want 4 and 3", rep.TotalRows, len(rep.Groups))
	}
	first := rep.Groups[0]
	if first.Station != "A TOWN" || first.Year.Int64 != 2022 || first.Rows != 1 {
		t.Errorf("first group = %+v, want A TOWN 2022 with 1 row", first)
	}
	second := rep.Groups[1]
	if second.Rows != 2 || second.Min.Float64 != 1 || second.Max.Float64 != 3 || second.Mean.Float64 != 2 {
		t.Errorf("second group = %+v, want 2 rows min 1 max 3 mean 2", second)
	}
	if !strings.Contains(buf.String(), "Total rows: 4") {
		t.Errorf("output missing total:\n%s", buf.String())
	}
}

func TestInspect_MissingFile(t *testing.T) {
	_, err := Inspect(context.Background(), openDuckDB(t), filepath.Join(t.TempDir(), "nope.parquet"), &bytes.Buffer{}, logging.Discard())
	if err == nil {
		t.Fatal("Inspect() error = nil, want error for missing file")
	}
}

func TestInspect_MissingColumn(t *testing.T) {
	path := filepath.Join(t.TempDir(), "other.parquet")
	if _, err := artifact.WriteParquet(path, []string{"Province"}, []table.Record{{"Province": "ON"}}, logging.Discard()); err != nil {
		t.Fatalf("WriteParquet() error = %v", err)
	}
	_, err := Inspect(context.Background(), openDuckDB(t), path, &bytes.Buffer{}, logging.Discard())
	if err == nil || !strings.Contains(err.Error(), "station_name") {
		t.Fatalf("Inspect() error = %v, want missing station_name", err)
	}
}
