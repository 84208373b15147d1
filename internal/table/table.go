// Package table holds the field-keyed record types passed between pipeline stages.
package table

import (
	"encoding/csv"
	"fmt"
	"io"
	"slices"

	"github.com/brensch/climatepart/internal/util"
)

// Column names shared across stages.
const (
	ColClimateID   = "Climate ID"
	ColYear        = "Year"
	ColStationName = "Station Name"
	ColMaxTemp     = "Max Temp (°C)"
)

// Record maps a column name to its string value.
type Record map[string]string

// Values returns the record's values in the given column order. Absent columns yield "".
func (r Record) Values(columns []string) []string {
	out := make([]string, len(columns))
	for i, c := range columns {
		out[i] = r[c]
	}
	return out
}

// Project copies the named columns into dst.
func (r Record) Project(dst Record, columns []string) {
	for _, c := range columns {
		dst[c] = r[c]
	}
}

// Table is a header plus rows keyed by that header.
type Table struct {
	Header  []string
	Records []Record
}

// Len is the number of records.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Records)
}

// HasColumns returns the first column in want that the header lacks, or "" if all are present.
func HasColumns(header, want []string) string {
	for _, c := range want {
		if !slices.Contains(header, c) {
			return c
		}
	}
	return ""
}

// FromRows keys each row by header. Short rows are padded with "", long rows are an error.
func FromRows(header []string, rows [][]string) ([]Record, error) {
	out := make([]Record, 0, len(rows))
	for i, row := range rows {
		if len(row) > len(header) {
			return nil, fmt.Errorf("row %d has %d fields, header has %d", i+1, len(row), len(header))
		}
		rec := make(Record, len(header))
		for j, col := range header {
			if j < len(row) {
				rec[col] = row[j]
			} else {
				rec[col] = ""
			}
		}
		out = append(out, rec)
	}
	return out, nil
}

// ReadCSV reads a whole CSV stream into a Table. A BOM on the first header cell is dropped.
// Fields past the end of the header have no column name and are discarded.
func ReadCSV(r io.Reader) (*Table, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	rows, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse csv: %w", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("parse csv: no header row")
	}
	header := rows[0]
	if len(header) > 0 {
		header[0] = util.StripBOMString(header[0])
	}
	for i, row := range rows[1:] {
		if len(row) > len(header) {
			rows[i+1] = row[:len(header)]
		}
	}
	records, err := FromRows(header, rows[1:])
	if err != nil {
		return nil, err
	}
	return &Table{Header: header, Records: records}, nil
}

// WriteCSV writes header then one row per record in header order. No BOM is written.
func WriteCSV(w io.Writer, header []string, records []Record) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for i, rec := range records {
		if err := cw.Write(rec.Values(header)); err != nil {
			return fmt.Errorf("write row %d: %w", i+1, err)
		}
	}
	cw.Flush()
	return cw.Error()
}
