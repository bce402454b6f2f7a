package contacts

import (
	"context"
	"fmt"
	"io"
	"strings"

	"encoding/csv"

	"github.com/xuri/excelize/v2"

	"b24portal/internal/bitrix"
)

// exportHeader is the fixed header row shared by both export formats.
// Columns match the canonical fields in document language, so an
// exported file can be re-imported as-is.
var exportHeader = []string{"имя", "фамилия", "номер телефона", "почта", "компания"}

// exportSheet is the worksheet name of XLSX exports.
const exportSheet = "Contacts"

// ExportFilter narrows the contact selection. Dates are inclusive
// YYYY-MM-DD days; Company keeps only rows whose resolved company
// title contains it case-insensitively.
type ExportFilter struct {
	DateFrom string
	DateTo   string
	Company  string
}

// Exporter fetches contacts from the CRM and serializes them. Each
// Collect call builds its own company index; nothing is cached.
type Exporter struct {
	api API
}

// NewExporter creates an exporter over the given CRM handle.
func NewExporter(api API) *Exporter {
	return &Exporter{api: api}
}

// Collect fetches contacts matching the filter and joins them against
// the company index. Only the first phone and the first email of each
// contact are kept; rows stay in remote-returned order.
func (ex *Exporter) Collect(ctx context.Context, f ExportFilter) ([]Record, error) {
	filter := bitrix.Params{}
	if f.DateFrom != "" {
		filter[">=DATE_CREATE"] = f.DateFrom + " 00:00:00"
	}
	if f.DateTo != "" {
		filter["<=DATE_CREATE"] = f.DateTo + " 23:59:59"
	}

	items, err := ex.api.CallList(ctx, "crm.contact.list", bitrix.Params{
		"select": []string{"ID", "NAME", "LAST_NAME", "PHONE", "EMAIL", "COMPANY_ID", "COMPANY_TITLE"},
		"filter": filter,
	})
	if err != nil {
		return nil, fmt.Errorf("fetch contacts: %w", err)
	}
	found, err := bitrix.DecodeEach[bitrix.Contact](items)
	if err != nil {
		return nil, fmt.Errorf("decode contacts: %w", err)
	}

	companies, err := companyIndex(ctx, ex.api)
	if err != nil {
		return nil, err
	}
	byID := titlesByID(companies)

	companyFilter := strings.ToLower(strings.TrimSpace(f.Company))

	var rows []Record
	for _, c := range found {
		var phone, email string
		if len(c.Phone) > 0 {
			phone = c.Phone[0].Value
		}
		if len(c.Email) > 0 {
			email = c.Email[0].Value
		}

		title := string(c.CompanyTitle)
		if title == "" && c.CompanyID != 0 {
			title = byID[int64(c.CompanyID)]
		}

		// Under an active filter, rows with no resolved title are dropped.
		if companyFilter != "" {
			if title == "" || !strings.Contains(strings.ToLower(title), companyFilter) {
				continue
			}
		}

		rows = append(rows, Record{
			FirstName: string(c.Name),
			LastName:  string(c.LastName),
			Phone:     phone,
			Email:     email,
			Company:   title,
		})
	}
	return rows, nil
}

// WriteCSV serializes rows as comma-separated text with the fixed
// header row.
func WriteCSV(w io.Writer, rows []Record) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(exportHeader); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, r := range rows {
		if err := cw.Write([]string{r.FirstName, r.LastName, r.Phone, r.Email, r.Company}); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteXLSX serializes rows as a single-sheet workbook with the fixed
// header row.
func WriteXLSX(rows []Record) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), exportSheet); err != nil {
		return nil, fmt.Errorf("name sheet: %w", err)
	}

	header := make([]any, len(exportHeader))
	for i, h := range exportHeader {
		header[i] = h
	}
	if err := f.SetSheetRow(exportSheet, "A1", &header); err != nil {
		return nil, fmt.Errorf("write xlsx header: %w", err)
	}

	for i, r := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, err
		}
		row := []any{r.FirstName, r.LastName, r.Phone, r.Email, r.Company}
		if err := f.SetSheetRow(exportSheet, cell, &row); err != nil {
			return nil, fmt.Errorf("write xlsx row %d: %w", i+2, err)
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("serialize xlsx: %w", err)
	}
	return buf.Bytes(), nil
}
