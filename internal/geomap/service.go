// Package geomap joins active companies against their CRM addresses
// for rendering on a map.
package geomap

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"b24portal/internal/bitrix"
)

// API is the portal capability the map needs. *bitrix.Client
// satisfies it.
type API interface {
	CallList(ctx context.Context, method string, params bitrix.Params) ([]json.RawMessage, error)
}

// Company is one map pin: a titled company with a geocodable address.
type Company struct {
	ID      int64  `json:"id"`
	Title   string `json:"title"`
	Address string `json:"address"`
}

// Service assembles map data from the portal.
type Service struct {
	api API
}

// NewService creates a map service over the given portal handle.
func NewService(api API) *Service {
	return &Service{api: api}
}

// Companies lists active companies that have an address, in id order.
// Companies without any address component are dropped; a company with
// a blank title gets a placeholder derived from its id.
func (s *Service) Companies(ctx context.Context) ([]Company, error) {
	items, err := s.api.CallList(ctx, "crm.company.list", bitrix.Params{
		"filter": bitrix.Params{"ACTIVE": "Y"},
		"select": []string{"ID", "TITLE"},
		"order":  bitrix.Params{"ID": "ASC"},
	})
	if err != nil {
		return nil, fmt.Errorf("fetch companies: %w", err)
	}
	companies, err := bitrix.DecodeEach[bitrix.Company](items)
	if err != nil {
		return nil, fmt.Errorf("decode companies: %w", err)
	}

	addresses, err := s.addressIndex(ctx)
	if err != nil {
		return nil, err
	}

	var out []Company
	for _, c := range companies {
		id := int64(c.ID)
		if id == 0 {
			continue
		}
		addr, ok := addresses[id]
		if !ok {
			continue
		}

		title := strings.TrimSpace(string(c.Title))
		if title == "" {
			title = fmt.Sprintf("Компания #%d", id)
		}
		out = append(out, Company{ID: id, Title: title, Address: addr})
	}
	return out, nil
}

// addressIndex maps entity id to a display address built from the
// non-empty components, broadest first. Later addresses for the same
// entity overwrite earlier ones.
func (s *Service) addressIndex(ctx context.Context) (map[int64]string, error) {
	items, err := s.api.CallList(ctx, "crm.address.list", bitrix.Params{
		"select": []string{"ENTITY_ID", "ADDRESS_1", "CITY", "REGION", "COUNTRY"},
	})
	if err != nil {
		return nil, fmt.Errorf("fetch addresses: %w", err)
	}
	addresses, err := bitrix.DecodeEach[bitrix.Address](items)
	if err != nil {
		return nil, fmt.Errorf("decode addresses: %w", err)
	}

	index := make(map[int64]string, len(addresses))
	for _, a := range addresses {
		if a.EntityID == 0 {
			continue
		}
		var parts []string
		for _, p := range []string{string(a.Country), string(a.Region), string(a.City), string(a.Address1)} {
			if p != "" {
				parts = append(parts, p)
			}
		}
		if len(parts) == 0 {
			continue
		}
		index[int64(a.EntityID)] = strings.Join(parts, ", ")
	}
	return index, nil
}
