package web

import "net/http"

// handleMapCompanies returns the map pins as JSON.
func (s *Server) handleMapCompanies(w http.ResponseWriter, r *http.Request) {
	companies, err := s.services.Map.Companies(r.Context())
	if err != nil {
		writeError(w, r, http.StatusBadGateway, "could not load companies: "+err.Error())
		return
	}
	writeJSON(w, map[string]any{"companies": companies})
}
