// Package deals lists recent active deals with humanized dictionary
// codes and creates new ones.
package deals

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"strings"

	"b24portal/internal/bitrix"
)

// PriorityFieldCode is the portal's priority user field on deals.
const PriorityFieldCode = "UF_CRM_1760383363428"

// topLimit caps the recent-deals listing.
const topLimit = 10

// ErrTitleRequired rejects deal creation without a title.
var ErrTitleRequired = errors.New("deal title is required")

// API is the portal capability the deals module needs. *bitrix.Client
// satisfies it.
type API interface {
	CallMethod(ctx context.Context, method string, params bitrix.Params) (json.RawMessage, error)
	CallList(ctx context.Context, method string, params bitrix.Params) ([]json.RawMessage, error)
}

// Manuals are the portal dictionaries used to humanize deal codes.
type Manuals struct {
	Stages     map[string]string
	Types      map[string]string
	Currencies map[string]string

	// UserFields maps each enumerated UF_CRM_* field to its
	// item-id-to-label dictionary; UserFieldLabels carries the field's
	// display name.
	UserFields      map[string]map[string]string
	UserFieldLabels map[string]string
}

// PriorityLabel returns the display name of the priority field,
// falling back to a generic caption.
func (m *Manuals) PriorityLabel() string {
	if label, ok := m.UserFieldLabels[PriorityFieldCode]; ok {
		return label
	}
	return "Приоритет"
}

// Row is one listed deal with dictionary codes already resolved to
// their display names.
type Row struct {
	ID          int64  `json:"id"`
	Title       string `json:"title"`
	Opportunity string `json:"opportunity"`
	Currency    string `json:"currency"`
	Stage       string `json:"stage"`
	Type        string `json:"type"`
	BeginDate   string `json:"begin_date"`
	CloseDate   string `json:"close_date"`
	DateCreate  string `json:"date_create"`
	Priority    string `json:"priority"`
}

// NewDeal carries the creation form. Title is the only required
// field; empty optional fields are not sent to the portal.
type NewDeal struct {
	Title       string
	Opportunity string
	CurrencyID  string
	TypeID      string
	BeginDate   string
	CloseDate   string
	Priority    string
	ContactID   int64
}

// Service reads and writes deals through the portal.
type Service struct {
	api API
}

// NewService creates a deals service over the given portal handle.
func NewService(api API) *Service {
	return &Service{api: api}
}

// ufFieldMeta is the slice of crm.deal.fields metadata the manuals
// need.
type ufFieldMeta struct {
	FormLabel string `json:"formLabel"`
	Title     string `json:"title"`
	Items     []struct {
		ID    bitrix.Text `json:"ID"`
		Value bitrix.Text `json:"VALUE"`
	} `json:"items"`
}

// LoadManuals fetches the stage, type, currency and user-field
// dictionaries in one pass.
func (s *Service) LoadManuals(ctx context.Context) (*Manuals, error) {
	m := &Manuals{
		Stages:          make(map[string]string),
		Types:           make(map[string]string),
		Currencies:      make(map[string]string),
		UserFields:      make(map[string]map[string]string),
		UserFieldLabels: make(map[string]string),
	}

	stages, err := s.statusItems(ctx, "DEAL_STAGE")
	if err != nil {
		return nil, err
	}
	m.Stages = stages

	types, err := s.statusItems(ctx, "DEAL_TYPE")
	if err != nil {
		return nil, err
	}
	m.Types = types

	currencies, err := s.api.CallList(ctx, "crm.currency.list", bitrix.Params{})
	if err != nil {
		return nil, fmt.Errorf("fetch currencies: %w", err)
	}
	decoded, err := bitrix.DecodeEach[bitrix.Currency](currencies)
	if err != nil {
		return nil, fmt.Errorf("decode currencies: %w", err)
	}
	for _, c := range decoded {
		m.Currencies[string(c.Currency)] = html.UnescapeString(string(c.FullName))
	}

	raw, err := s.api.CallMethod(ctx, "crm.deal.fields", bitrix.Params{})
	if err != nil {
		return nil, fmt.Errorf("fetch deal fields: %w", err)
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("decode deal fields: %w", err)
	}
	for code, rawMeta := range fields {
		if !strings.HasPrefix(code, "UF_CRM_") {
			continue
		}
		var meta ufFieldMeta
		if err := json.Unmarshal(rawMeta, &meta); err != nil || len(meta.Items) == 0 {
			continue
		}

		items := make(map[string]string, len(meta.Items))
		for _, it := range meta.Items {
			items[string(it.ID)] = string(it.Value)
		}
		m.UserFields[code] = items

		label := meta.FormLabel
		if label == "" {
			label = meta.Title
		}
		if label == "" {
			label = code
		}
		m.UserFieldLabels[code] = label
	}

	return m, nil
}

// statusItems fetches one crm.status dictionary keyed by status id.
func (s *Service) statusItems(ctx context.Context, entityID string) (map[string]string, error) {
	items, err := s.api.CallList(ctx, "crm.status.entity.items", bitrix.Params{"entityId": entityID})
	if err != nil {
		return nil, fmt.Errorf("fetch %s items: %w", entityID, err)
	}
	decoded, err := bitrix.DecodeEach[bitrix.StatusItem](items)
	if err != nil {
		return nil, fmt.Errorf("decode %s items: %w", entityID, err)
	}

	out := make(map[string]string, len(decoded))
	for _, it := range decoded {
		out[string(it.StatusID)] = string(it.Name)
	}
	return out, nil
}

// TopDeals lists the latest open deals, newest first, humanized
// through the manuals.
func (s *Service) TopDeals(ctx context.Context, m *Manuals) ([]Row, error) {
	items, err := s.api.CallList(ctx, "crm.deal.list", bitrix.Params{
		"select": []string{
			"ID", "TITLE", "OPPORTUNITY", "CURRENCY_ID",
			"STAGE_ID", "TYPE_ID", "BEGINDATE", "CLOSEDATE",
			"DATE_CREATE", PriorityFieldCode,
		},
		"filter": bitrix.Params{"CLOSED": "N"},
		"order":  bitrix.Params{"DATE_CREATE": "DESC"},
	})
	if err != nil {
		return nil, fmt.Errorf("fetch deals: %w", err)
	}
	if len(items) > topLimit {
		items = items[:topLimit]
	}

	decoded, err := bitrix.DecodeEach[bitrix.Deal](items)
	if err != nil {
		return nil, fmt.Errorf("decode deals: %w", err)
	}

	rows := make([]Row, 0, len(decoded))
	for _, d := range decoded {
		rows = append(rows, Row{
			ID:          int64(d.ID),
			Title:       string(d.Title),
			Opportunity: string(d.Opportunity),
			Currency:    lookup(m.Currencies, string(d.CurrencyID)),
			Stage:       lookup(m.Stages, string(d.StageID)),
			Type:        lookup(m.Types, string(d.TypeID)),
			BeginDate:   string(d.BeginDate),
			CloseDate:   string(d.CloseDate),
			DateCreate:  string(d.DateCreate),
			Priority:    m.UserFields[PriorityFieldCode][string(d.UF[PriorityFieldCode])],
		})
	}
	return rows, nil
}

// lookup resolves a dictionary code, keeping the raw code when the
// dictionary does not know it.
func lookup(dict map[string]string, code string) string {
	if name, ok := dict[code]; ok && name != "" {
		return name
	}
	return code
}

// Create adds a deal and reads it back. Optional fields are sent only
// when set.
func (s *Service) Create(ctx context.Context, d NewDeal) (*bitrix.Deal, error) {
	if strings.TrimSpace(d.Title) == "" {
		return nil, ErrTitleRequired
	}

	fields := bitrix.Params{"TITLE": strings.TrimSpace(d.Title)}
	for code, v := range map[string]string{
		"OPPORTUNITY":     d.Opportunity,
		"CURRENCY_ID":     d.CurrencyID,
		"TYPE_ID":         d.TypeID,
		"BEGINDATE":       d.BeginDate,
		"CLOSEDATE":       d.CloseDate,
		PriorityFieldCode: d.Priority,
	} {
		if v != "" {
			fields[code] = v
		}
	}
	if d.ContactID != 0 {
		fields["CONTACT_ID"] = d.ContactID
	}

	raw, err := s.api.CallMethod(ctx, "crm.deal.add", bitrix.Params{"fields": fields})
	if err != nil {
		return nil, fmt.Errorf("create deal: %w", err)
	}
	var id bitrix.Int
	if err := json.Unmarshal(raw, &id); err != nil {
		return nil, fmt.Errorf("decode created deal id: %w", err)
	}

	got, err := s.api.CallMethod(ctx, "crm.deal.get", bitrix.Params{"id": int64(id)})
	if err != nil {
		return nil, fmt.Errorf("read back deal %d: %w", int64(id), err)
	}
	var deal bitrix.Deal
	if err := json.Unmarshal(got, &deal); err != nil {
		return nil, fmt.Errorf("decode deal %d: %w", int64(id), err)
	}
	return &deal, nil
}
