package join

import "github.com/brensch/climatepart/internal/table"

// WeatherColumns is the projection taken from each weather observation.
var WeatherColumns = []string{
	"Longitude (x)", "Latitude (y)", table.ColStationName, table.ColClimateID, "Date/Time",
	table.ColYear, "Month", "Day", "Data Quality", table.ColMaxTemp, "Max Temp Flag",
	"Min Temp (°C)", "Min Temp Flag", "Mean Temp (°C)", "Mean Temp Flag",
	"Heat Deg Days (°C)", "Heat Deg Days Flag", "Cool Deg Days (°C)",
	"Cool Deg Days Flag", "Total Rain (mm)", "Total Rain Flag",
	"Total Snow (cm)", "Total Snow Flag", "Total Precip (mm)",
}

// StationColumns is the projection taken from the matching station row.
var StationColumns = []string{
	"Province", "Station ID", "WMO ID", "Elevation (m)",
	"First Year", "Last Year", "HLY First Year", "HLY Last Year",
	"DLY First Year", "DLY Last Year", "MLY First Year", "MLY Last Year",
}

// Fieldnames is the column order of every joined record: weather columns then station columns.
func Fieldnames() []string {
	out := make([]string, 0, len(WeatherColumns)+len(StationColumns))
	out = append(out, WeatherColumns...)
	return append(out, StationColumns...)
}
