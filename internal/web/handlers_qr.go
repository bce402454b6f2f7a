package web

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"b24portal/internal/qr"
)

// linkResponse describes an issued product link to the operator.
type linkResponse struct {
	Token     string `json:"token"`
	ProductID int64  `json:"product_id"`
	Title     string `json:"title"`
	PublicURL string `json:"public_url"`
	QRDataURI string `json:"qr_data_uri"`
}

// handleCreateLink issues a product link for the posted product id.
func (s *Server) handleCreateLink(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid form")
		return
	}

	productID, err := strconv.ParseInt(r.FormValue("product_id"), 10, 64)
	if err != nil || productID <= 0 {
		writeError(w, r, http.StatusBadRequest, "product_id must be a positive number")
		return
	}

	issued, err := s.services.Links.Issue(r.Context(), productID, r.FormValue("created_by"))
	if err != nil {
		if errors.Is(err, qr.ErrProductNotFound) {
			writeError(w, r, http.StatusBadRequest, "Товар не найден в Битрикс24")
			return
		}
		writeError(w, r, http.StatusBadGateway, "could not issue the link: "+err.Error())
		return
	}

	writeJSON(w, linkResponse{
		Token:     issued.Link.ID.String(),
		ProductID: issued.Link.ProductID,
		Title:     issued.Link.Title,
		PublicURL: issued.PublicURL,
		QRDataURI: issued.QRDataURI,
	})
}

// handleLinkDetail shows an issued link to the operator, QR included.
func (s *Server) handleLinkDetail(w http.ResponseWriter, r *http.Request) {
	token, err := uuid.Parse(chi.URLParam(r, "token"))
	if err != nil {
		writeError(w, r, http.StatusNotFound, "link not found")
		return
	}

	link, _, err := s.services.Links.Resolve(r.Context(), token)
	if err != nil {
		if errors.Is(err, qr.ErrNotFound) {
			writeError(w, r, http.StatusNotFound, "link not found")
			return
		}
		writeError(w, r, http.StatusInternalServerError, "could not load the link")
		return
	}

	dataURI, err := s.services.Links.QRFor(token)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "could not render the QR code")
		return
	}

	writeJSON(w, linkResponse{
		Token:     link.ID.String(),
		ProductID: link.ProductID,
		Title:     link.Title,
		PublicURL: s.services.Links.PublicURL(token),
		QRDataURI: dataURI,
	})
}

// handleProductSearch backs the product autocomplete.
func (s *Server) handleProductSearch(w http.ResponseWriter, r *http.Request) {
	results, err := s.services.Products.Search(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		writeError(w, r, http.StatusBadGateway, "search failed: "+err.Error())
		return
	}
	if results == nil {
		results = []qr.ProductInfo{}
	}
	writeJSON(w, map[string]any{"results": results})
}
