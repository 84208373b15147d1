// Package stations loads the static station inventory and indexes it by Climate ID.
package stations

import (
	"errors"
	"fmt"
	"os"

	"github.com/brensch/climatepart/internal/table"
)

// ErrMissingColumn means the station file lacks a column the join projects.
var ErrMissingColumn = errors.New("station data missing column")

// Load reads the whole station file. Any failure is fatal to the run, so there is no partial result.
// required lists the columns the header must contain in addition to Climate ID.
func Load(path string, required []string) (*table.Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open station data: %w", err)
	}
	defer f.Close()

	tbl, err := table.ReadCSV(f)
	if err != nil {
		return nil, fmt.Errorf("read station data %s: %w", path, err)
	}
	want := append([]string{table.ColClimateID}, required...)
	if missing := table.HasColumns(tbl.Header, want); missing != "" {
		return nil, fmt.Errorf("%w %q in %s", ErrMissingColumn, missing, path)
	}
	return tbl, nil
}

// Index maps Climate ID to the first station record carrying it.
type Index struct {
	byID       map[string]table.Record
	order      []string
	duplicates int
}

// NewIndex indexes records in order. Later records with an already-seen Climate ID are ignored.
func NewIndex(records []table.Record) *Index {
	idx := &Index{byID: make(map[string]table.Record, len(records))}
	for _, rec := range records {
		id := rec[table.ColClimateID]
		if _, seen := idx.byID[id]; seen {
			idx.duplicates++
			continue
		}
		idx.byID[id] = rec
		idx.order = append(idx.order, id)
	}
	return idx
}

// Lookup returns the first station record with the given Climate ID.
func (idx *Index) Lookup(climateID string) (table.Record, bool) {
	rec, ok := idx.byID[climateID]
	return rec, ok
}

// Len is the number of distinct Climate IDs.
func (idx *Index) Len() int { return len(idx.order) }

// Duplicates is the number of records shadowed by an earlier record with the same Climate ID.
func (idx *Index) Duplicates() int { return idx.duplicates }

// IDs returns the distinct Climate IDs in first-seen order.
func (idx *Index) IDs() []string {
	return append([]string(nil), idx.order...)
}
