package web

import (
	"embed"
	"encoding/json"
	"errors"
	"html/template"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"b24portal/internal/logging"
	"b24portal/internal/qr"
)

//go:embed templates
var templateFiles embed.FS

var pageTemplates = template.Must(template.ParseFS(templateFiles, "templates/*.html"))

// renderPage executes one embedded page template.
func renderPage(w http.ResponseWriter, r *http.Request, name string, data any) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := pageTemplates.ExecuteTemplate(w, name, data); err != nil {
		logging.FromContext(r.Context()).Error("render page", "template", name, "error", err)
	}
}

// handleIndex serves the landing page with module cards.
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	renderPage(w, r, "index.html", nil)
}

// handleEmployeesPage serves the roster page; the table loads itself
// from the JSON endpoint.
func (s *Server) handleEmployeesPage(w http.ResponseWriter, r *http.Request) {
	renderPage(w, r, "employees.html", nil)
}

// handleDealsPage serves the deals page.
func (s *Server) handleDealsPage(w http.ResponseWriter, r *http.Request) {
	renderPage(w, r, "deals.html", nil)
}

// handleQRPage serves the product link form.
func (s *Server) handleQRPage(w http.ResponseWriter, r *http.Request) {
	renderPage(w, r, "qr_form.html", nil)
}

// handleMapPage serves the company map with the pins inlined, so the
// page needs no second round trip before geocoding.
func (s *Server) handleMapPage(w http.ResponseWriter, r *http.Request) {
	companies, err := s.services.Map.Companies(r.Context())
	if err != nil {
		writeError(w, r, http.StatusBadGateway, "could not load companies: "+err.Error())
		return
	}

	payload, err := json.Marshal(companies)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "could not encode companies")
		return
	}

	renderPage(w, r, "map.html", map[string]any{
		"CompaniesJSON": template.JS(payload),
		"APIKey":        s.cfg.Portal.MapAPIKey,
		"HasCompanies":  len(companies) > 0,
	})
}

// handlePublicProduct serves the shareable product page for a token.
func (s *Server) handlePublicProduct(w http.ResponseWriter, r *http.Request) {
	token, err := uuid.Parse(chi.URLParam(r, "token"))
	if err != nil {
		http.NotFound(w, r)
		return
	}

	_, view, err := s.services.Links.Resolve(r.Context(), token)
	if err != nil {
		if errors.Is(err, qr.ErrNotFound) {
			http.NotFound(w, r)
			return
		}
		writeError(w, r, http.StatusInternalServerError, "could not load the product")
		return
	}

	renderPage(w, r, "product.html", view)
}
