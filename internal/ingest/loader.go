package ingest

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
)

// RawTable is a loaded CSV file before any interpretation.
type RawTable struct {
	Path    string
	Headers []string
	Rows    [][]string
}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// loadCSV reads a CSV file into a RawTable. Files that are not valid
// UTF-8 are re-decoded as Windows-1252, which covers the Latin-1
// exports common in administrative data dumps. Malformed rows are
// skipped rather than failing the whole load.
func loadCSV(path string) (*RawTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read dataset %q: %w", path, err)
	}

	data = bytes.TrimPrefix(data, utf8BOM)
	if !utf8.Valid(data) {
		decoded, err := charmap.Windows1252.NewDecoder().Bytes(data)
		if err != nil {
			return nil, fmt.Errorf("decode dataset %q: %w", path, err)
		}
		data = decoded
	}

	reader := csv.NewReader(bytes.NewReader(data))
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	headers, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read CSV headers from %q: %w", path, err)
	}
	for i, h := range headers {
		headers[i] = strings.TrimSpace(h)
	}

	table := &RawTable{Path: path, Headers: headers}
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			continue // skip malformed rows
		}
		table.Rows = append(table.Rows, row)
	}

	if len(table.Rows) == 0 {
		return nil, fmt.Errorf("dataset %q has no data rows", path)
	}
	return table, nil
}

// cell returns the trimmed value at a column index, or "" when the row
// is too short.
func cell(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}
