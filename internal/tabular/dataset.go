// Package tabular reads and writes the row files processed by the worker.
// Spreadsheets (.xlsx) and CSV are supported; the format follows the extension.
package tabular

import (
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
)

// ErrUnsupportedFormat is returned for file extensions with no codec
var ErrUnsupportedFormat = errors.New("unsupported file format")

// Row maps column name to a string, int64 or float64 value. Empty cells are absent.
type Row map[string]any

// Dataset is a fully loaded table with ordered columns
type Dataset struct {
	Columns []string
	Rows    []Row
}

// Len returns the number of data rows
func (d *Dataset) Len() int {
	return len(d.Rows)
}

// EnsureColumn appends name to the column list unless it is already present
func (d *Dataset) EnsureColumn(name string) {
	for _, col := range d.Columns {
		if col == name {
			return
		}
	}
	d.Columns = append(d.Columns, name)
}

type codec interface {
	load(path string) (*Dataset, error)
	save(path string, d *Dataset) error
}

func codecFor(path string) (codec, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx", ".xlsm":
		return xlsxCodec{}, nil
	case ".csv":
		return csvCodec{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, filepath.Ext(path))
	}
}

// Load reads the whole file at path
func Load(path string) (*Dataset, error) {
	c, err := codecFor(path)
	if err != nil {
		return nil, err
	}
	return c.load(path)
}

// Save writes d to path, replacing any existing file
func Save(path string, d *Dataset) error {
	c, err := codecFor(path)
	if err != nil {
		return err
	}
	return c.save(path, d)
}

// build turns a header and raw string records into a Dataset
func build(header []string, records [][]string) (*Dataset, error) {
	if len(header) == 0 {
		return nil, errors.New("missing header row")
	}

	columns := make([]string, len(header))
	seen := make(map[string]bool, len(header))
	for i, h := range header {
		name := strings.TrimSpace(h)
		if name == "" {
			name = "column_" + strconv.Itoa(i+1)
		}
		if seen[name] {
			return nil, fmt.Errorf("duplicate column %q", name)
		}
		seen[name] = true
		columns[i] = name
	}

	rows := make([]Row, 0, len(records))
	for _, record := range records {
		row := make(Row, len(columns))
		for i, raw := range record {
			if i >= len(columns) {
				break
			}
			if v, ok := parseCell(raw); ok {
				row[columns[i]] = v
			}
		}
		rows = append(rows, row)
	}

	return &Dataset{Columns: columns, Rows: rows}, nil
}

// parseCell types a raw cell: integers, then floats, else the trimmed string
func parseCell(raw string) (any, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return nil, false
	}
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i, true
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && !isSpecialFloat(s) {
		return f, true
	}
	return s, true
}

// isSpecialFloat rejects spellings ParseFloat accepts but a spreadsheet means as text
func isSpecialFloat(s string) bool {
	switch strings.ToLower(strings.TrimLeft(s, "+-")) {
	case "inf", "infinity", "nan":
		return true
	}
	return false
}

// formatCell renders a value for text based formats
func formatCell(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case int64:
		return strconv.FormatInt(val, 10)
	case int:
		return strconv.Itoa(val)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32)
	case bool:
		return strconv.FormatBool(val)
	default:
		return fmt.Sprint(val)
	}
}
