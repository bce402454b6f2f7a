package web

import (
	"errors"
	"net/http"
	"strconv"

	"b24portal/internal/deals"
)

// handleDealsData returns the latest open deals and the priority
// field's caption as JSON.
func (s *Server) handleDealsData(w http.ResponseWriter, r *http.Request) {
	manuals, err := s.services.Deals.LoadManuals(r.Context())
	if err != nil {
		writeError(w, r, http.StatusBadGateway, "could not load dictionaries: "+err.Error())
		return
	}

	rows, err := s.services.Deals.TopDeals(r.Context(), manuals)
	if err != nil {
		writeError(w, r, http.StatusBadGateway, "could not load deals: "+err.Error())
		return
	}

	writeJSON(w, map[string]any{
		"rows":           rows,
		"priority_label": manuals.PriorityLabel(),
	})
}

// handleCreateDeal creates a deal from the posted form and returns the
// portal's view of it.
func (s *Server) handleCreateDeal(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid form")
		return
	}

	d := deals.NewDeal{
		Title:       r.FormValue("title"),
		Opportunity: r.FormValue("opportunity"),
		CurrencyID:  r.FormValue("currency_id"),
		TypeID:      r.FormValue("type_id"),
		BeginDate:   r.FormValue("begindate"),
		CloseDate:   r.FormValue("closedate"),
		Priority:    r.FormValue("priority"),
	}
	if raw := r.FormValue("contact_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id < 0 {
			writeError(w, r, http.StatusBadRequest, "contact_id must be a number")
			return
		}
		d.ContactID = id
	}

	deal, err := s.services.Deals.Create(r.Context(), d)
	if err != nil {
		if errors.Is(err, deals.ErrTitleRequired) {
			writeError(w, r, http.StatusBadRequest, "Название сделки обязательно")
			return
		}
		writeError(w, r, http.StatusBadGateway, "could not create the deal: "+err.Error())
		return
	}

	writeJSON(w, map[string]any{
		"id":    int64(deal.ID),
		"title": string(deal.Title),
	})
}
