// Package artifact writes the joined dataset to local CSV and parquet files. Both are outputs only;
// nothing downstream reads them back.
package artifact

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"unicode"

	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"

	"github.com/brensch/climatepart/internal/table"
)

// WriteCSV writes records to path as CSV with a header row.
func WriteCSV(path string, fieldnames []string, records []table.Record) error {
	if err := ensureDir(path); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := table.WriteCSV(f, fieldnames, records); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}

type columnType int

const (
	typeString columnType = iota
	typeInt
	typeDouble
)

// Column is one parquet column derived from a CSV field name.
type Column struct {
	Field string
	Name  string
	kind  columnType
}

// Schema maps field names to parquet columns. Measurement fields with a unit suffix and the
// coordinate fields become DOUBLE, year/month/day fields INT64, everything else UTF8. All
// columns are optional so empty cells are stored as nulls.
func Schema(fieldnames []string) []Column {
	cols := make([]Column, len(fieldnames))
	seen := make(map[string]int)
	for i, f := range fieldnames {
		name := ColumnName(f)
		if n := seen[name]; n > 0 {
			seen[name]++
			name = fmt.Sprintf("%s_%d", name, n+1)
		} else {
			seen[name] = 1
		}
		cols[i] = Column{Field: f, Name: name, kind: kindOf(f)}
	}
	return cols
}

// ColumnName turns a field name like "Max Temp (°C)" into "max_temp_c".
func ColumnName(field string) string {
	var b strings.Builder
	sep := false
	for _, r := range strings.ToLower(field) {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			if sep && b.Len() > 0 {
				b.WriteByte('_')
			}
			b.WriteRune(r)
			sep = false
			continue
		}
		sep = true
	}
	if b.Len() == 0 {
		return "column"
	}
	return b.String()
}

func kindOf(field string) columnType {
	switch {
	case strings.HasSuffix(field, "(°C)"), strings.HasSuffix(field, "(mm)"), strings.HasSuffix(field, "(cm)"),
		strings.HasSuffix(field, "(m)"), strings.HasSuffix(field, "(x)"), strings.HasSuffix(field, "(y)"):
		return typeDouble
	case field == table.ColYear, field == "Month", field == "Day", strings.HasSuffix(field, " Year"):
		return typeInt
	default:
		return typeString
	}
}

func (c Column) meta() string {
	switch c.kind {
	case typeDouble:
		return fmt.Sprintf("name=%s, type=DOUBLE, repetitiontype=OPTIONAL", c.Name)
	case typeInt:
		return fmt.Sprintf("name=%s, type=INT64, repetitiontype=OPTIONAL", c.Name)
	default:
		return fmt.Sprintf("name=%s, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=OPTIONAL", c.Name)
	}
}

// value returns nil for empty cells and for numeric cells that do not parse.
func (c Column) value(v string) (*string, bool) {
	if v == "" {
		if c.kind == typeString {
			return &v, true
		}
		return nil, true
	}
	switch c.kind {
	case typeDouble:
		if _, err := strconv.ParseFloat(v, 64); err != nil {
			return nil, false
		}
	case typeInt:
		if _, err := strconv.ParseInt(v, 10, 64); err != nil {
			return nil, false
		}
	}
	return &v, true
}

// WriteParquet writes records to path as a snappy-compressed parquet file and returns the
// number of rows written. Numeric cells that fail to parse are written as nulls and logged.
func WriteParquet(path string, fieldnames []string, records []table.Record, logger *slog.Logger) (rows int, err error) {
	if err := ensureDir(path); err != nil {
		return 0, err
	}
	cols := Schema(fieldnames)
	meta := make([]string, len(cols))
	for i, c := range cols {
		meta[i] = c.meta()
	}
	logger.Debug("Parquet schema.", slog.String("path", path), slog.String("schema", strings.Join(meta, "; ")))

	fw, err := local.NewLocalFileWriter(path)
	if err != nil {
		return 0, fmt.Errorf("create parquet file %s: %w", path, err)
	}
	defer func() {
		if closeErr := fw.Close(); closeErr != nil {
			err = errors.Join(err, fmt.Errorf("close %s: %w", path, closeErr))
		}
	}()

	pw, err := writer.NewCSVWriter(meta, fw, 4)
	if err != nil {
		return 0, fmt.Errorf("create parquet writer %s: %w", path, err)
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	var nulled int
	for i, rec := range records {
		vals := make([]*string, len(cols))
		for j, c := range cols {
			v, ok := c.value(rec[c.Field])
			if !ok {
				nulled++
				logger.Debug("Unparseable numeric value written as null.", slog.Int("row", i+1), slog.String("column", c.Field), slog.String("value", rec[c.Field]))
			}
			vals[j] = v
		}
		if err := pw.WriteString(vals); err != nil {
			pw.WriteStop()
			return rows, fmt.Errorf("write parquet row %d: %w", i+1, err)
		}
		rows++
	}
	if err := pw.WriteStop(); err != nil {
		return rows, fmt.Errorf("finalize parquet %s: %w", path, err)
	}
	if nulled > 0 {
		logger.Warn("Some numeric values could not be parsed and were written as nulls.", slog.String("path", path), slog.Int("count", nulled))
	}
	return rows, nil
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory %s: %w", dir, err)
	}
	return nil
}
