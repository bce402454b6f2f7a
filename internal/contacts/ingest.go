package contacts

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

// ErrUnsupportedFormat is returned for uploads whose extension is not
// a recognized contact file format. The message is user-facing.
var ErrUnsupportedFormat = errors.New("only CSV and XLSX files are supported")

// Record is one parsed contact row, header-normalized and
// synonym-resolved. Both the CSV and the XLSX paths produce this shape
// so downstream logic is format-agnostic.
type Record struct {
	FirstName string
	LastName  string
	Phone     string
	Email     string
	Company   string
}

// fieldSynonyms maps each canonical field to its accepted column
// headers, in lookup priority order. Headers are matched after
// trimming and lowercasing; both Russian labels and machine names are
// supported.
var fieldSynonyms = []struct {
	set   func(*Record, string)
	names []string
}{
	{func(r *Record, v string) { r.FirstName = v }, []string{"имя", "first_name"}},
	{func(r *Record, v string) { r.LastName = v }, []string{"фамилия", "last_name"}},
	{func(r *Record, v string) { r.Phone = v }, []string{"номер телефона", "телефон", "phone"}},
	{func(r *Record, v string) { r.Email = v }, []string{"почта", "email"}},
	{func(r *Record, v string) { r.Company = v }, []string{"компания", "company"}},
}

// ParseUpload parses an uploaded contact file by extension.
// Unrecognized extensions fail with ErrUnsupportedFormat and no bytes
// are read.
func ParseUpload(filename string, r io.Reader) ([]Record, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".csv":
		return parseCSV(r)
	case ".xlsx", ".xlsm":
		return parseXLSX(r)
	default:
		return nil, ErrUnsupportedFormat
	}
}

// parseCSV reads a comma-separated UTF-8 file, tolerating a leading
// byte-order mark. The first line is the header row; an all-whitespace
// input yields an empty sequence, not an error.
func parseCSV(r io.Reader) ([]Record, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}

	text := strings.TrimPrefix(string(data), "\ufeff")
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}

	cr := csv.NewReader(strings.NewReader(text))
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	rows, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse csv: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	headers := cleanHeaders(rows[0])

	var records []Record
	for _, row := range rows[1:] {
		cells := make(map[string]string, len(headers))
		for i, h := range headers {
			if h == "" || i >= len(row) {
				continue
			}
			cells[h] = strings.TrimSpace(row[i])
		}
		records = append(records, resolveRecord(cells))
	}
	return records, nil
}

// parseXLSX reads the first worksheet of a spreadsheet. The first row
// is the header row; fully blank data rows are dropped; absent cells
// become empty strings.
func parseXLSX(r io.Reader) ([]Record, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open xlsx: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, nil
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read xlsx: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	headers := cleanHeaders(rows[0])

	var records []Record
	for _, row := range rows[1:] {
		if blankRow(row) {
			continue
		}
		cells := make(map[string]string, len(headers))
		for i, h := range headers {
			if h == "" {
				continue
			}
			if i < len(row) {
				cells[h] = row[i]
			} else {
				cells[h] = ""
			}
		}
		records = append(records, resolveRecord(cells))
	}
	return records, nil
}

// cleanHeaders trims and lowercases a header row.
func cleanHeaders(raw []string) []string {
	headers := make([]string, len(raw))
	for i, h := range raw {
		headers[i] = strings.ToLower(strings.TrimSpace(h))
	}
	return headers
}

// blankRow reports whether every cell is whitespace.
func blankRow(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

// resolveRecord maps cleaned header cells onto the five canonical
// fields. For each field the first synonym with a non-empty value
// wins; unmatched columns are ignored and missing fields stay empty.
func resolveRecord(cells map[string]string) Record {
	var rec Record
	for _, fs := range fieldSynonyms {
		for _, name := range fs.names {
			if v := strings.TrimSpace(cells[name]); v != "" {
				fs.set(&rec, v)
				break
			}
		}
	}
	return rec
}
