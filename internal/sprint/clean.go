package sprint

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ErrEmptyTable is returned for an export without any data rows.
var ErrEmptyTable = errors.New("table has no data rows")

// ExportSeparator is the field separator of the tracker's CSV exports.
const ExportSeparator = ';'

// CleanStats describes what CleanCSV did to a table.
type CleanStats struct {
	RowsIn     int `json:"rowsIn"`
	RowsOut    int `json:"rowsOut"`
	Duplicates int `json:"duplicates"`
	EmptyRows  int `json:"emptyRows"`
}

// Table is a parsed export: a header and rows padded to the header width.
type Table struct {
	Header []string
	Rows   [][]string
}

// Column returns the index of name in the header, or -1.
func (t *Table) Column(name string) int {
	for i, h := range t.Header {
		if h == name {
			return i
		}
	}
	return -1
}

// ReadExport parses a tracker export: one banner line, then a ';'-separated
// table with a header row. Rows shorter than the header are padded with
// empty fields; longer rows are an error.
func ReadExport(r io.Reader) (*Table, error) {
	br := bufio.NewReader(r)
	if _, err := br.ReadString('\n'); err != nil {
		if err == io.EOF {
			return nil, ErrEmptyTable
		}
		return nil, fmt.Errorf("failed to read banner line: %w", err)
	}

	cr := csv.NewReader(br)
	cr.Comma = ExportSeparator
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	header, err := cr.Read()
	if err == io.EOF {
		return nil, ErrEmptyTable
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(strings.TrimPrefix(header[i], "\ufeff"))
	}

	table := &Table{Header: header}
	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read row: %w", err)
		}
		if len(record) > len(header) {
			line, _ := cr.FieldPos(0)
			return nil, fmt.Errorf("row at line %d has %d fields, header has %d", line+1, len(record), len(header))
		}
		for len(record) < len(header) {
			record = append(record, "")
		}
		table.Rows = append(table.Rows, record)
	}
	return table, nil
}

func isEmptyRow(record []string) bool {
	for _, f := range record {
		if !IsNull(f) {
			return false
		}
	}
	return true
}

// Clean drops rows where every field is null, then full duplicates, keeping
// the first occurrence of each row.
func (t *Table) Clean() CleanStats {
	stats := CleanStats{RowsIn: len(t.Rows)}
	seen := make(map[string]struct{}, len(t.Rows))
	kept := t.Rows[:0]
	for _, row := range t.Rows {
		if isEmptyRow(row) {
			stats.EmptyRows++
			continue
		}
		key := strings.Join(row, "\x1f")
		if _, dup := seen[key]; dup {
			stats.Duplicates++
			continue
		}
		seen[key] = struct{}{}
		kept = append(kept, row)
	}
	t.Rows = kept
	stats.RowsOut = len(kept)
	return stats
}

// WriteCSV writes the table comma-separated with its header.
func (t *Table) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(t.Header); err != nil {
		return err
	}
	if err := cw.WriteAll(t.Rows); err != nil {
		return err
	}
	return cw.Error()
}

// CleanCSV converts one tracker export into a plain comma-separated table
// without empty or duplicate rows.
func CleanCSV(r io.Reader, w io.Writer) (CleanStats, error) {
	table, err := ReadExport(r)
	if err != nil {
		return CleanStats{}, err
	}
	if len(table.Rows) == 0 {
		return CleanStats{}, ErrEmptyTable
	}

	stats := table.Clean()
	if stats.RowsOut == 0 {
		return stats, ErrEmptyTable
	}
	if err := table.WriteCSV(w); err != nil {
		return stats, fmt.Errorf("failed to write cleaned table: %w", err)
	}
	return stats, nil
}
