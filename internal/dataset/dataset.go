// Package dataset loads tabular recipient data and analyzes its
// completeness against the variables a template actually uses.
package dataset

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"
)

// Row maps a column name to its trimmed string value.
type Row map[string]string

// Dataset holds parsed tabular input. Rows are read-only after load;
// row identity is ordinal position.
type Dataset struct {
	Columns []string
	Rows    []Row
}

// Load parses CSV input into a Dataset. Column headers are trimmed of
// whitespace; cell values are trimmed, with missing cells normalized to
// empty strings. A file without a header row or without data rows is a
// validation error.
func Load(r io.Reader) (*Dataset, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse csv: %w", err)
	}

	if len(records) == 0 {
		return nil, fmt.Errorf("file is empty")
	}

	columns := make([]string, len(records[0]))
	for i, col := range records[0] {
		columns[i] = strings.TrimSpace(col)
	}

	if len(records) == 1 {
		return nil, fmt.Errorf("file contains no data rows")
	}

	rows := make([]Row, 0, len(records)-1)
	for _, record := range records[1:] {
		row := make(Row, len(columns))
		for i, col := range columns {
			if i < len(record) {
				row[col] = normalizeValue(record[i])
			} else {
				row[col] = ""
			}
		}
		rows = append(rows, row)
	}

	return &Dataset{Columns: columns, Rows: rows}, nil
}

// LoadFile opens and parses a CSV file.
func LoadFile(path string) (*Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open data file: %w", err)
	}
	defer f.Close()

	ds, err := Load(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return ds, nil
}

// RowData returns a copy of row i suitable for template rendering.
func (d *Dataset) RowData(i int) map[string]string {
	data := make(map[string]string, len(d.Columns))
	for _, col := range d.Columns {
		data[col] = d.Rows[i][col]
	}
	return data
}

// HasColumn reports whether the dataset contains the named column.
func (d *Dataset) HasColumn(name string) bool {
	for _, col := range d.Columns {
		if col == name {
			return true
		}
	}
	return false
}

// normalizeValue trims a cell and maps upstream NaN coercion artifacts
// to the empty string.
func normalizeValue(v string) string {
	v = strings.TrimSpace(v)
	if v == "nan" {
		return ""
	}
	return v
}

// EmailValue returns the row's email cell after normalization. The
// literal string "nan" produced by numeric-to-string coercion upstream
// counts as empty.
func EmailValue(row Row, emailColumn string) string {
	email := strings.TrimSpace(row[emailColumn])
	if email == "nan" {
		return ""
	}
	return email
}
