// Package join enriches weather observations with station attributes.
package join

import (
	"github.com/brensch/climatepart/internal/stations"
	"github.com/brensch/climatepart/internal/table"
)

// Stats counts the outcome of a join.
type Stats struct {
	Input     int
	Joined    int
	Unmatched int
	// UnmatchedIDs lists distinct Climate IDs with no station row, in first-seen order.
	UnmatchedIDs []string
}

// Join pairs every weather record with the first station sharing its Climate ID and projects
// WeatherColumns and StationColumns into a new record. Weather records without a station are
// dropped. Output order follows input order.
func Join(weather []table.Record, idx *stations.Index) ([]table.Record, Stats) {
	stats := Stats{Input: len(weather)}
	seenUnmatched := make(map[string]bool)
	out := make([]table.Record, 0, len(weather))

	for _, w := range weather {
		id := w[table.ColClimateID]
		st, ok := idx.Lookup(id)
		if !ok {
			stats.Unmatched++
			if !seenUnmatched[id] {
				seenUnmatched[id] = true
				stats.UnmatchedIDs = append(stats.UnmatchedIDs, id)
			}
			continue
		}
		joined := make(table.Record, len(WeatherColumns)+len(StationColumns))
		w.Project(joined, WeatherColumns)
		st.Project(joined, StationColumns)
		out = append(out, joined)
	}
	stats.Joined = len(out)
	return out, stats
}
