package importer

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

// Table is the normalised form of an uploaded tabular file: a header
// row plus string cells. Empty trailing columns are preserved so row
// indexes line up with the source file.
type Table struct {
	Columns []string
	Rows    [][]string
}

// Row returns row i as a source-column map.
func (t *Table) Row(i int) map[string]string {
	out := make(map[string]string, len(t.Columns))
	for j, col := range t.Columns {
		if j < len(t.Rows[i]) {
			out[col] = strings.TrimSpace(t.Rows[i][j])
		} else {
			out[col] = ""
		}
	}
	return out
}

// Sample returns up to n rows as source-column maps.
func (t *Table) Sample(n int) []map[string]string {
	if n > len(t.Rows) {
		n = len(t.Rows)
	}
	out := make([]map[string]string, n)
	for i := 0; i < n; i++ {
		out[i] = t.Row(i)
	}
	return out
}

// ReadFile dispatches on the file extension. CSV and XLSX are the
// supported upload formats.
func ReadFile(path string) (*Table, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", path, err)
		}
		defer f.Close()
		return ReadCSV(f)
	case ".xlsx":
		return ReadXLSX(path)
	default:
		return nil, fmt.Errorf("unsupported file type %q", filepath.Ext(path))
	}
}

// ReadCSV parses an RFC 4180 stream. The first record is the header;
// headers are trimmed but otherwise kept verbatim for mapping.
func ReadCSV(r io.Reader) (*Table, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse csv: %w", err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("file has no header row")
	}
	t := &Table{Columns: make([]string, len(records[0]))}
	for i, h := range records[0] {
		t.Columns[i] = strings.TrimSpace(h)
	}
	for _, rec := range records[1:] {
		if isBlank(rec) {
			continue
		}
		t.Rows = append(t.Rows, rec)
	}
	return t, nil
}

// ReadXLSX reads the first sheet of a workbook.
func ReadXLSX(path string) (*Table, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open xlsx %s: %w", path, err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("workbook has no sheets")
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read sheet %s: %w", sheets[0], err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("sheet %s has no header row", sheets[0])
	}
	t := &Table{Columns: make([]string, len(rows[0]))}
	for i, h := range rows[0] {
		t.Columns[i] = strings.TrimSpace(h)
	}
	for _, rec := range rows[1:] {
		if isBlank(rec) {
			continue
		}
		t.Rows = append(t.Rows, rec)
	}
	return t, nil
}

func isBlank(rec []string) bool {
	for _, c := range rec {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
