package web

import (
	"errors"
	"fmt"
	"net/http"

	"b24portal/internal/contacts"
	"b24portal/internal/logging"
)

const (
	csvMIME  = "text/csv; charset=utf-8"
	xlsxMIME = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// importResponse is the JSON summary of one upload.
type importResponse struct {
	contacts.Stats
	Message string `json:"message"`
}

// handleContactImport accepts a multipart contact file and runs the
// import pipeline. Bad uploads are rejected before any portal call.
func (s *Server) handleContactImport(w http.ResponseWriter, r *http.Request) {
	maxSize := s.cfg.Upload.MaxFileSize
	r.Body = http.MaxBytesReader(w, r.Body, maxSize)

	if err := r.ParseMultipartForm(maxSize); err != nil {
		writeError(w, r, http.StatusBadRequest, "file too large or invalid form")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "no file provided")
		return
	}
	defer file.Close()

	rows, err := contacts.ParseUpload(header.Filename, file)
	if err != nil {
		if errors.Is(err, contacts.ErrUnsupportedFormat) {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		writeError(w, r, http.StatusBadRequest, "could not parse the uploaded file")
		return
	}

	stats, err := s.services.Importer.Import(r.Context(), rows)
	if err != nil {
		writeError(w, r, http.StatusBadGateway, "import failed: "+err.Error())
		return
	}

	writeJSON(w, importResponse{
		Stats: stats,
		Message: fmt.Sprintf("Импорт завершён: создано %d, пропущено дубликатов %d, пропущено пустых %d",
			stats.Created, stats.SkippedDuplicates, stats.SkippedEmpty),
	})
}

// handleContactExport streams the filtered contact list as an
// attachment, CSV by default or XLSX on request.
func (s *Server) handleContactExport(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodPost {
		if err := r.ParseForm(); err != nil {
			writeError(w, r, http.StatusBadRequest, "invalid form")
			return
		}
	}

	format := r.FormValue("format")
	if format == "" {
		format = "csv"
	}
	if format != "csv" && format != "xlsx" {
		writeError(w, r, http.StatusBadRequest, "unsupported export format")
		return
	}

	rows, err := s.services.Exporter.Collect(r.Context(), contacts.ExportFilter{
		DateFrom: r.FormValue("date_from"),
		DateTo:   r.FormValue("date_to"),
		Company:  r.FormValue("company"),
	})
	if err != nil {
		writeError(w, r, http.StatusBadGateway, "export failed: "+err.Error())
		return
	}

	if format == "xlsx" {
		data, err := contacts.WriteXLSX(rows)
		if err != nil {
			writeError(w, r, http.StatusInternalServerError, "could not build the workbook")
			return
		}
		w.Header().Set("Content-Type", xlsxMIME)
		w.Header().Set("Content-Disposition", `attachment; filename="contacts.xlsx"`)
		w.Write(data)
		return
	}

	w.Header().Set("Content-Type", csvMIME)
	w.Header().Set("Content-Disposition", `attachment; filename="contacts.csv"`)
	if err := contacts.WriteCSV(w, rows); err != nil {
		// Headers are already sent; nothing left but to log.
		logging.FromContext(r.Context()).Error("write csv export", "error", err)
	}
}
