package artifact

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	_ "github.com/marcboeker/go-duckdb"

	"github.com/brensch/climatepart/internal/logging"
	"github.com/brensch/climatepart/internal/table"
)

var fields = []string{table.ColStationName, table.ColClimateID, table.ColYear, table.ColMaxTemp, "Province", "Elevation (m)"}

var records = []table.Record{
	{table.ColStationName: "TORONTO CITY", table.ColClimateID: "6158355", table.ColYear: "2023", table.ColMaxTemp: "5.1", "Province": "ONTARIO", "Elevation (m)": "112.5"},
	{table.ColStationName: "TORONTO CITY", table.ColClimateID: "6158355", table.ColYear: "2023", table.ColMaxTemp: "-2.4", "Province": "ONTARIO", "Elevation (m)": ""},
	{table.ColStationName: "OTTAWA CDA", table.ColClimateID: "6105976", table.ColYear: "2022", table.ColMaxTemp: "n/a", "Province": "", "Elevation (m)": "79"},
}

func TestColumnName(t *testing.T) {
	tests := map[string]string{
		"Max Temp (°C)":  "max_temp_c",
		"Longitude (x)":  "longitude_x",
		"Date/Time":      "date_time",
		"Climate ID":     "climate_id",
		"HLY First Year": "hly_first_year",
		"°":              "column",
	}
	for in, want := range tests {
		if got := ColumnName(in); got != want {
			t.Errorf("ColumnName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestSchema_DeduplicatesNames(t *testing.T) {
	cols := Schema([]string{"Max Temp", "max-temp", "Year"})
	got := []string{cols[0].Name, cols[1].Name, cols[2].Name}
	want := []string{"max_temp", "max_temp_2", "year"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("names = %v, want %v", got, want)
	}
	if cols[2].kind != typeInt {
		t.Errorf("Year kind = %v, want int", cols[2].kind)
	}
}

func TestWriteCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "joined.csv")
	if err := WriteCSV(path, fields, records[:1]); err != nil {
		t.Fatalf("WriteCSV() error = %v", err)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	want := "Station Name,Climate ID,Year,Max Temp (°C),Province,Elevation (m)\nTORONTO CITY,6158355,2023,5.1,ONTARIO,112.5\n"
	if string(b) != want {
		t.Errorf("file = %q, want %q", b, want)
	}
}

func TestWriteParquet_ReadableByDuckDB(t *testing.T) {
	path := filepath.Join(t.TempDir(), "joined.parquet")
	rows, err := WriteParquet(path, fields, records, logging.Discard())
	if err != nil {
		t.Fatalf("WriteParquet() error = %v", err)
	}
	if rows != len(records) {
		t.Errorf("rows = %d, want %d", rows, len(records))
	}

	db, err := sql.Open("duckdb", "")
	if err != nil {
		t.Fatalf("open duckdb: %v", err)
	}
	defer db.Close()

	var count, nullTemps, nullElev int
	var maxTemp float64
	q := `SELECT COUNT(*), COUNT(*) - COUNT(max_temp_c), COUNT(*) - COUNT(elevation_m), MAX(max_temp_c) FROM read_parquet('` + path + `')`
	if err := db.QueryRowContext(context.Background(), q).Scan(&count, &nullTemps, &nullElev, &maxTemp); err != nil {
		t.Fatalf("query parquet: %v", err)
	}
	if count != 3 || nullTemps != 1 || nullElev != 1 || maxTemp != 5.1 {
		t.Errorf("count=%d nullTemps=%d nullElev=%d maxTemp=%v, want 3 1 1 5.1", count, nullTemps, nullElev, maxTemp)
	}
}
