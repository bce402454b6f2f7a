package qr

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/google/uuid"
	qrcode "github.com/skip2/go-qrcode"

	"b24portal/internal/logging"
)

// qrSize is the pixel edge of generated QR images.
const qrSize = 256

// ErrProductNotFound is returned when a link is requested for a
// product id the catalog does not know.
var ErrProductNotFound = errors.New("product not found")

// LinkStore is the persistence the service needs. *Store satisfies it.
type LinkStore interface {
	Create(ctx context.Context, info ProductInfo, createdBy string) (*Link, error)
	Get(ctx context.Context, token uuid.UUID) (*Link, error)
	Recent(ctx context.Context, limit int) ([]Link, error)
}

// ProductSource is the catalog lookup the service needs. *Catalog
// satisfies it.
type ProductSource interface {
	ProductByID(ctx context.Context, productID int64) (*ProductInfo, error)
	Search(ctx context.Context, query string) ([]ProductInfo, error)
}

// IssuedLink is a freshly created link with everything the operator
// needs to hand out: the public URL and its QR code.
type IssuedLink struct {
	Link      *Link
	PublicURL string
	QRDataURI string
}

// Service issues product links and resolves them for the public page.
type Service struct {
	catalog ProductSource
	store   LinkStore
	baseURL string
}

// NewService creates a link service. baseURL is the public origin the
// portal is reachable on; issued links point under its /p/ path.
func NewService(catalog ProductSource, store LinkStore, baseURL string) *Service {
	return &Service{
		catalog: catalog,
		store:   store,
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

// PublicURL returns the shareable page address for a token.
func (s *Service) PublicURL(token uuid.UUID) string {
	return s.baseURL + "/p/" + url.PathEscape(token.String())
}

// QRFor renders the QR code for a token's public URL.
func (s *Service) QRFor(token uuid.UUID) (string, error) {
	return qrDataURI(s.PublicURL(token))
}

// Issue fetches the product live, snapshots it under a new token and
// returns the link together with its QR code. Unknown products fail
// with ErrProductNotFound before anything is stored.
func (s *Service) Issue(ctx context.Context, productID int64, createdBy string) (*IssuedLink, error) {
	info, err := s.catalog.ProductByID(ctx, productID)
	if err != nil {
		return nil, err
	}
	if info == nil {
		return nil, ErrProductNotFound
	}

	link, err := s.store.Create(ctx, *info, createdBy)
	if err != nil {
		return nil, err
	}

	publicURL := s.PublicURL(link.ID)
	dataURI, err := qrDataURI(publicURL)
	if err != nil {
		return nil, fmt.Errorf("encode qr: %w", err)
	}

	logging.WithFields(ctx, "token", link.ID, "product_id", productID).
		Info("product link issued")

	return &IssuedLink{Link: link, PublicURL: publicURL, QRDataURI: dataURI}, nil
}

// Resolve loads a link by token and merges a live product fetch over
// the cached snapshot. Live fields win when non-empty; when the fetch
// fails entirely the snapshot is served as-is.
func (s *Service) Resolve(ctx context.Context, token uuid.UUID) (*Link, ProductInfo, error) {
	link, err := s.store.Get(ctx, token)
	if err != nil {
		return nil, ProductInfo{}, err
	}

	view := ProductInfo{
		ID:          link.ProductID,
		Name:        link.Title,
		Image:       link.ImageURL,
		Price:       link.Price,
		Currency:    link.Currency,
		Description: link.Description,
	}
	if view.Name == "" {
		view.Name = fmt.Sprintf("Товар %d", link.ProductID)
	}

	live, err := s.catalog.ProductByID(ctx, link.ProductID)
	if err != nil || live == nil {
		if err != nil {
			logging.FromContext(ctx).Warn("live product fetch failed, serving cached snapshot",
				"token", token, "product_id", link.ProductID, "error", err)
		}
		return link, view, nil
	}

	if live.Name != "" {
		view.Name = live.Name
	}
	if live.Image != "" {
		view.Image = live.Image
	}
	// Price and currency always track the live product once it is
	// reachable, even when empty.
	view.Price = live.Price
	view.Currency = live.Currency
	if live.Description != "" {
		view.Description = live.Description
	}
	return link, view, nil
}

// qrDataURI renders a URL as an inline PNG image source.
func qrDataURI(link string) (string, error) {
	png, err := qrcode.Encode(link, qrcode.Medium, qrSize)
	if err != nil {
		return "", err
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png), nil
}
