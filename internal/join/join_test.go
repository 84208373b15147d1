package join

import (
	"reflect"
	"testing"

	"github.com/brensch/climatepart/internal/stations"
	"github.com/brensch/climatepart/internal/table"
)

func weatherRecord(id, station, year, temp string) table.Record {
	rec := table.Record{}
	for _, c := range WeatherColumns {
		rec[c] = ""
	}
	rec[table.ColClimateID] = id
	rec[table.ColStationName] = station
	rec[table.ColYear] = year
	rec[table.ColMaxTemp] = temp
	rec["Ignored Column"] = "x"
	return rec
}

func stationRecord(id, province, elevation string) table.Record {
	rec := table.Record{"Name": "n/a", table.ColClimateID: id}
	for _, c := range StationColumns {
		rec[c] = ""
	}
	rec["Province"] = province
	rec["Elevation (m)"] = elevation
	return rec
}

func TestJoin_SingleMatch(t *testing.T) {
	weather := []table.Record{weatherRecord("C1", "Town A", "2023", "5")}
	idx := stations.NewIndex([]table.Record{stationRecord("C1", "ON", "100")})

	out, stats := Join(weather, idx)
	if len(out) != 1 {
		t.Fatalf("len(out) = %d, want 1", len(out))
	}
	got := out[0]
	if got["Province"] != "ON" || got[table.ColMaxTemp] != "5" || got[table.ColStationName] != "Town A" {
		t.Errorf("joined record = %v", got)
	}
	if len(got) != len(Fieldnames()) {
		t.Errorf("joined record has %d columns, want %d", len(got), len(Fieldnames()))
	}
	if _, ok := got["Ignored Column"]; ok {
		t.Error("unprojected weather column leaked into joined record")
	}
	if _, ok := got["Name"]; ok {
		t.Error("unprojected station column leaked into joined record")
	}
	if stats.Joined != 1 || stats.Unmatched != 0 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestJoin_DropsUnmatched(t *testing.T) {
	weather := []table.Record{
		weatherRecord("C9", "Nowhere", "2023", "1"),
		weatherRecord("C1", "Town A", "2023", "2"),
		weatherRecord("C9", "Nowhere", "2023", "3"),
	}
	idx := stations.NewIndex([]table.Record{stationRecord("C1", "ON", "100")})

	out, stats := Join(weather, idx)
	if len(out) != 1 || out[0][table.ColMaxTemp] != "2" {
		t.Fatalf("out = %v, want only the C1 record", out)
	}
	if stats.Unmatched != 2 || !reflect.DeepEqual(stats.UnmatchedIDs, []string{"C9"}) {
		t.Errorf("stats = %+v", stats)
	}
}

func TestJoin_FirstStationMatchWins(t *testing.T) {
	weather := []table.Record{weatherRecord("C1", "Town A", "2023", "5")}
	idx := stations.NewIndex([]table.Record{
		stationRecord("C1", "ON", "100"),
		stationRecord("C1", "QC", "200"),
	})

	out, _ := Join(weather, idx)
	if len(out) != 1 {
		t.Fatalf("len(out) = %d, want 1 (no fan-out)", len(out))
	}
	if out[0]["Province"] != "ON" || out[0]["Elevation (m)"] != "100" {
		t.Errorf("joined with %v, want the first station row", out[0])
	}
}

func TestJoin_StationColumnsMatchSource(t *testing.T) {
	st := stationRecord("C2", "BC", "5")
	st["WMO ID"] = "71234"
	st["DLY First Year"] = "1990"
	idx := stations.NewIndex([]table.Record{stationRecord("C1", "ON", "1"), st})
	weather := []table.Record{weatherRecord("C2", "Town B", "2022", "9"), weatherRecord("C1", "Town A", "2022", "8")}

	out, _ := Join(weather, idx)
	for _, rec := range out {
		src, _ := idx.Lookup(rec[table.ColClimateID])
		for _, c := range StationColumns {
			if rec[c] != src[c] {
				t.Errorf("record %s column %q = %q, want %q", rec[table.ColClimateID], c, rec[c], src[c])
			}
		}
	}
	if out[0][table.ColClimateID] != "C2" || out[1][table.ColClimateID] != "C1" {
		t.Errorf("join did not preserve weather order")
	}
}

func TestJoin_Empty(t *testing.T) {
	out, stats := Join(nil, stations.NewIndex(nil))
	if len(out) != 0 || stats.Input != 0 {
		t.Errorf("Join(nil) = %v, %+v", out, stats)
	}
}

func TestFieldnames(t *testing.T) {
	f := Fieldnames()
	if len(f) != len(WeatherColumns)+len(StationColumns) {
		t.Fatalf("len = %d", len(f))
	}
	if f[0] != "Longitude (x)" || f[len(WeatherColumns)] != "Province" || f[len(f)-1] != "MLY Last Year" {
		t.Errorf("Fieldnames() order = %v", f)
	}
	f[0] = "mutated"
	if WeatherColumns[0] == "mutated" {
		t.Error("Fieldnames() aliases WeatherColumns")
	}
}
