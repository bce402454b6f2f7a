// Package qr issues shareable product links: a product snapshot is
// cached in Postgres under a uuid token and served on a public page
// reachable through a QR code.
package qr

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"b24portal/internal/bitrix"
)

// searchLimit caps autocomplete results.
const searchLimit = 10

// API is the portal capability the product lookups need.
// *bitrix.Client satisfies it.
type API interface {
	CallMethod(ctx context.Context, method string, params bitrix.Params) (json.RawMessage, error)
	CallList(ctx context.Context, method string, params bitrix.Params) ([]json.RawMessage, error)
}

// ProductInfo is a catalog product shaped for display.
type ProductInfo struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Price       string `json:"price"`
	Currency    string `json:"currency"`
	Description string `json:"description"`
	Image       string `json:"image"`
}

// Catalog fetches and searches products.
type Catalog struct {
	api API
}

// NewCatalog creates a catalog over the given portal handle.
func NewCatalog(api API) *Catalog {
	return &Catalog{api: api}
}

// ProductByID fetches one product with its first image. A missing or
// empty product yields (nil, nil); a blank name falls back to a
// placeholder derived from the id.
func (c *Catalog) ProductByID(ctx context.Context, productID int64) (*ProductInfo, error) {
	raw, err := c.api.CallMethod(ctx, "crm.product.get", bitrix.Params{"ID": productID})
	if err != nil {
		return nil, fmt.Errorf("fetch product %d: %w", productID, err)
	}

	var p bitrix.Product
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("decode product %d: %w", productID, err)
	}
	if p.ID == 0 && p.Name == "" {
		return nil, nil
	}

	info := &ProductInfo{
		ID:          productID,
		Name:        string(p.Name),
		Price:       string(p.Price),
		Currency:    string(p.CurrencyID),
		Description: string(p.Description),
		Image:       c.firstImage(ctx, productID),
	}
	if info.Name == "" {
		info.Name = fmt.Sprintf("Товар %d", productID)
	}
	return info, nil
}

// firstImage returns the first image URL of a product, preferring the
// detail URL. Image fetch failures leave the product imageless rather
// than failing the lookup.
func (c *Catalog) firstImage(ctx context.Context, productID int64) string {
	raw, err := c.api.CallMethod(ctx, "catalog.productImage.list", bitrix.Params{
		"productId": productID,
		"select":    []string{"id", "name", "productId", "type", "createTime", "downloadUrl", "detailUrl"},
	})
	if err != nil {
		return ""
	}

	var res struct {
		ProductImages []bitrix.ProductImage `json:"productImages"`
	}
	if err := json.Unmarshal(raw, &res); err != nil || len(res.ProductImages) == 0 {
		return ""
	}

	img := res.ProductImages[0]
	if img.DetailURL != "" {
		return string(img.DetailURL)
	}
	return string(img.DownloadURL)
}

// Search runs the %NAME autocomplete query, newest products first.
// A blank query lists the latest products. Results carry no image or
// description.
func (c *Catalog) Search(ctx context.Context, query string) ([]ProductInfo, error) {
	filter := bitrix.Params{}
	if q := strings.TrimSpace(query); q != "" {
		filter["%NAME"] = q
	}

	items, err := c.api.CallList(ctx, "crm.product.list", bitrix.Params{
		"filter": filter,
		"select": []string{"ID", "NAME", "PRICE", "CURRENCY_ID"},
		"order":  bitrix.Params{"ID": "DESC"},
		"start":  -1,
	})
	if err != nil {
		return nil, fmt.Errorf("search products: %w", err)
	}

	products, err := bitrix.DecodeEach[bitrix.Product](items)
	if err != nil {
		return nil, fmt.Errorf("decode products: %w", err)
	}

	if len(products) > searchLimit {
		products = products[:searchLimit]
	}

	out := make([]ProductInfo, 0, len(products))
	for _, p := range products {
		name := string(p.Name)
		if name == "" {
			name = fmt.Sprintf("Товар %d", int64(p.ID))
		}
		out = append(out, ProductInfo{
			ID:       int64(p.ID),
			Name:     name,
			Price:    string(p.Price),
			Currency: string(p.CurrencyID),
		})
	}
	return out, nil
}
