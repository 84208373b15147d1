// Package partition groups joined records by station name, then by year.
package partition

import "github.com/brensch/climatepart/internal/table"

// Key identifies one partition.
type Key struct {
	Station string
	Year    string
}

// Partition is one (station, year) group.
type Partition struct {
	Key     Key
	Records []table.Record
}

type stationYears struct {
	years  []string
	byYear map[string][]table.Record
}

// Table is an insertion-ordered station -> year -> records mapping. Records are only ever appended.
type Table struct {
	stations  []string
	byStation map[string]*stationYears
	n         int
}

// New returns an empty Table.
func New() *Table {
	return &Table{byStation: make(map[string]*stationYears)}
}

// Build partitions records in order.
func Build(records []table.Record) *Table {
	t := New()
	for _, rec := range records {
		t.Add(rec)
	}
	return t
}

// Add appends rec to its (Station Name, Year) partition, creating levels on first sight.
func (t *Table) Add(rec table.Record) {
	station, year := rec[table.ColStationName], rec[table.ColYear]
	sy, ok := t.byStation[station]
	if !ok {
		sy = &stationYears{byYear: make(map[string][]table.Record)}
		t.byStation[station] = sy
		t.stations = append(t.stations, station)
	}
	if _, ok := sy.byYear[year]; !ok {
		sy.years = append(sy.years, year)
	}
	sy.byYear[year] = append(sy.byYear[year], rec)
	t.n++
}

// Stations lists station names in first-seen order.
func (t *Table) Stations() []string {
	return append([]string(nil), t.stations...)
}

// Years lists the years seen for station, in first-seen order.
func (t *Table) Years(station string) []string {
	sy, ok := t.byStation[station]
	if !ok {
		return nil
	}
	return append([]string(nil), sy.years...)
}

// Records returns the partition for (station, year), or nil.
func (t *Table) Records(station, year string) []table.Record {
	sy, ok := t.byStation[station]
	if !ok {
		return nil
	}
	return sy.byYear[year]
}

// Partitions flattens the table in station then year order.
func (t *Table) Partitions() []Partition {
	var out []Partition
	for _, s := range t.stations {
		sy := t.byStation[s]
		for _, y := range sy.years {
			out = append(out, Partition{Key: Key{Station: s, Year: y}, Records: sy.byYear[y]})
		}
	}
	return out
}

// Len is the total number of records across all partitions.
func (t *Table) Len() int { return t.n }

// Count is the number of partitions.
func (t *Table) Count() int {
	n := 0
	for _, sy := range t.byStation {
		n += len(sy.years)
	}
	return n
}
