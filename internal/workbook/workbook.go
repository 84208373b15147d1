// Package workbook writes every partition into one xlsx workbook, one sheet per partition.
package workbook

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"

	"github.com/brensch/climatepart/internal/partition"
	"github.com/brensch/climatepart/internal/table"
)

const (
	defaultSheet = "Sheet1"
	emptySheet   = "empty"
	maxSheetName = 31
)

// SheetResult maps a partition to the sheet that holds it.
type SheetResult struct {
	Key   partition.Key
	Sheet string
	Rows  int
}

// Summary describes a saved workbook.
type Summary struct {
	Path   string
	Sheets []SheetResult
}

var sheetNameReplacer = strings.NewReplacer(":", "_", `\`, "_", "/", "_", "?", "_", "*", "_", "[", "_", "]", "_")

// Namer hands out unique sheet titles of the form "{station}-{year}".
type Namer struct {
	used map[string]bool
}

// NewNamer returns a Namer with no titles taken.
func NewNamer() *Namer {
	return &Namer{used: make(map[string]bool)}
}

// Name returns a title for k that is valid in Excel and unused so far. Titles are compared
// case-insensitively, as Excel does. The year is never truncated.
func (n *Namer) Name(k partition.Key) string {
	station := strings.Trim(sheetNameReplacer.Replace(k.Station), "'")
	year := sheetNameReplacer.Replace(k.Year)
	for i := 1; ; i++ {
		suffix := "-" + year
		if i > 1 {
			suffix += "~" + strconv.Itoa(i)
		}
		name := truncateRunes(station, maxSheetName-utf8.RuneCountInString(suffix)) + suffix
		if !n.used[strings.ToLower(name)] {
			n.used[strings.ToLower(name)] = true
			return name
		}
	}
}

func truncateRunes(s string, max int) string {
	if max <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	return string([]rune(s)[:max])
}

// Write builds the workbook and saves it to path. With no partitions the workbook keeps a single
// "empty" sheet holding the header row.
func Write(path string, fieldnames []string, pt *partition.Table, logger *slog.Logger) (Summary, error) {
	sum := Summary{Path: path}
	f := excelize.NewFile()
	defer f.Close()

	namer := NewNamer()
	for _, part := range pt.Partitions() {
		name := namer.Name(part.Key)
		if _, err := f.NewSheet(name); err != nil {
			return sum, fmt.Errorf("create sheet %q: %w", name, err)
		}
		if err := writeSheet(f, name, fieldnames, part.Records); err != nil {
			return sum, fmt.Errorf("sheet %q: %w", name, err)
		}
		sum.Sheets = append(sum.Sheets, SheetResult{Key: part.Key, Sheet: name, Rows: len(part.Records)})
		logger.Debug("Sheet written.", slog.String("sheet", name), slog.Int("rows", len(part.Records)))
	}

	if len(sum.Sheets) > 0 {
		if err := f.DeleteSheet(defaultSheet); err != nil {
			return sum, fmt.Errorf("remove default sheet: %w", err)
		}
		f.SetActiveSheet(0)
	} else {
		if err := f.SetSheetName(defaultSheet, emptySheet); err != nil {
			return sum, fmt.Errorf("rename default sheet: %w", err)
		}
		if err := writeSheet(f, emptySheet, fieldnames, nil); err != nil {
			return sum, fmt.Errorf("sheet %q: %w", emptySheet, err)
		}
		logger.Warn("No partitions to write, workbook holds only a header row.")
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return sum, fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	if err := f.SaveAs(path); err != nil {
		return sum, fmt.Errorf("save workbook %s: %w", path, err)
	}
	logger.Info("Excel file is generated.", slog.String("path", path), slog.Int("sheets", len(sum.Sheets)))
	return sum, nil
}

// writeSheet streams the header then one row per record, values in fieldname order.
func writeSheet(f *excelize.File, sheet string, fieldnames []string, records []table.Record) error {
	sw, err := f.NewStreamWriter(sheet)
	if err != nil {
		return err
	}
	if err := sw.SetRow("A1", toCells(fieldnames)); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for i, rec := range records {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := sw.SetRow(cell, toCells(rec.Values(fieldnames))); err != nil {
			return fmt.Errorf("write row %d: %w", i+1, err)
		}
	}
	return sw.Flush()
}

func toCells(values []string) []interface{} {
	out := make([]interface{}, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}
