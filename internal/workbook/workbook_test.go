package workbook

import (
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"

	"github.com/brensch/climatepart/internal/logging"
	"github.com/brensch/climatepart/internal/partition"
	"github.com/brensch/climatepart/internal/table"
)

var fields = []string{table.ColStationName, table.ColYear, table.ColMaxTemp, "Province"}

func TestNamer(t *testing.T) {
	n := NewNamer()
	tests := []struct {
		key  partition.Key
		want string
	}{
		{key: partition.Key{Station: "TORONTO CITY", Year: "2023"}, want: "TORONTO CITY-2023"},
		{key: partition.Key{Station: "OTTAWA CDA", Year: "2023"}, want: "OTTAWA CDA-2023"},
		{key: partition.Key{Station: "A/B:C", Year: "2022"}, want: "A_B_C-2022"},
		{key: partition.Key{Station: "toronto city", Year: "2023"}, want: "toronto city-2023~2"},
		{key: partition.Key{Station: "VANCOUVER INTERNATIONAL AIRPORT", Year: "2021"}, want: "VANCOUVER INTERNATIONAL AI-2021"},
		{key: partition.Key{Station: "VANCOUVER INTERNATIONAL AIRPORT EAST", Year: "2021"}, want: "VANCOUVER INTERNATIONAL -2021~2"},
	}
	for _, tt := range tests {
		got := n.Name(tt.key)
		if got != tt.want {
			t.Errorf("Name(%v) = %q, want %q", tt.key, got, tt.want)
		}
		if utf8.RuneCountInString(got) > maxSheetName {
			t.Errorf("Name(%v) = %q exceeds %d characters", tt.key, got, maxSheetName)
		}
	}
}

func TestWrite_OneSheetPerPartition(t *testing.T) {
	pt := partition.Build([]table.Record{
		{table.ColStationName: "TOWN A", table.ColYear: "2022", table.ColMaxTemp: "1", "Province": "ON"},
		{table.ColStationName: "TOWN A", table.ColYear: "2023", table.ColMaxTemp: "2", "Province": "ON"},
		{table.ColStationName: "TOWN B", table.ColYear: "2023", table.ColMaxTemp: "3", "Province": "QC"},
		{table.ColStationName: "TOWN A", table.ColYear: "2022", table.ColMaxTemp: "4", "Province": "ON"},
	})
	path := filepath.Join(t.TempDir(), "out", "report.xlsx")

	sum, err := Write(path, fields, pt, logging.Discard())
	if err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if len(sum.Sheets) != 3 {
		t.Fatalf("sheets = %d, want 3", len(sum.Sheets))
	}

	f, err := excelize.OpenFile(path)
	if err != nil {
		t.Fatalf("OpenFile() error = %v", err)
	}
	defer f.Close()

	want := []string{"TOWN A-2022", "TOWN A-2023", "TOWN B-2023"}
	if got := f.GetSheetList(); !reflect.DeepEqual(got, want) {
		t.Errorf("GetSheetList() = %v, want %v (default sheet removed, no collisions)", got, want)
	}

	rows, err := f.GetRows("TOWN A-2022")
	if err != nil {
		t.Fatalf("GetRows() error = %v", err)
	}
	wantRows := [][]string{fields, {"TOWN A", "2022", "1", "ON"}, {"TOWN A", "2022", "4", "ON"}}
	if !reflect.DeepEqual(rows, wantRows) {
		t.Errorf("rows = %v, want %v", rows, wantRows)
	}
}

func TestWrite_EmptyPartitionTable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.xlsx")
	sum, err := Write(path, fields, partition.Build(nil), logging.Discard())
	if err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if len(sum.Sheets) != 0 {
		t.Errorf("sheets = %v, want none", sum.Sheets)
	}

	f, err := excelize.OpenFile(path)
	if err != nil {
		t.Fatalf("OpenFile() error = %v", err)
	}
	defer f.Close()
	if got := f.GetSheetList(); !reflect.DeepEqual(got, []string{"empty"}) {
		t.Errorf("GetSheetList() = %v", got)
	}
	rows, _ := f.GetRows("empty")
	if len(rows) != 1 || strings.Join(rows[0], ",") != strings.Join(fields, ",") {
		t.Errorf("rows = %v, want header only", rows)
	}
}
