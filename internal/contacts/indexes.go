package contacts

import (
	"context"
	"encoding/json"
	"fmt"

	"b24portal/internal/bitrix"
)

// API is the narrow CRM capability the pipeline needs. *bitrix.Client
// satisfies it.
type API interface {
	CallList(ctx context.Context, method string, params bitrix.Params) ([]json.RawMessage, error)
	CallBatch(ctx context.Context, b *bitrix.Batch) (*bitrix.BatchResult, error)
}

// companyIndex fetches all companies once and maps normalized title to
// id. Companies with a blank title or id are skipped.
func companyIndex(ctx context.Context, api API) (map[string]int64, error) {
	items, err := api.CallList(ctx, "crm.company.list", bitrix.Params{
		"select": []string{"ID", "TITLE"},
	})
	if err != nil {
		return nil, fmt.Errorf("fetch companies: %w", err)
	}

	companies, err := bitrix.DecodeEach[bitrix.Company](items)
	if err != nil {
		return nil, fmt.Errorf("decode companies: %w", err)
	}

	index := make(map[string]int64, len(companies))
	for _, c := range companies {
		title := normTitle(string(c.Title))
		if title == "" || c.ID == 0 {
			continue
		}
		index[title] = int64(c.ID)
	}
	return index, nil
}

// titlesByID derives the reverse id-to-title map from a company index.
// Titles stay normalized, matching the index they came from.
func titlesByID(index map[string]int64) map[int64]string {
	out := make(map[int64]string, len(index))
	for title, id := range index {
		out[id] = title
	}
	return out
}

// existingContactIndex fetches all contacts once and builds the set of
// normalized phone/email keys used to reject duplicates. This fetch is
// the snapshot boundary: contacts created elsewhere after it are not
// seen by the current run.
func existingContactIndex(ctx context.Context, api API) (map[Key]struct{}, error) {
	items, err := api.CallList(ctx, "crm.contact.list", bitrix.Params{
		"select": []string{"ID", "PHONE", "EMAIL"},
	})
	if err != nil {
		return nil, fmt.Errorf("fetch contacts: %w", err)
	}

	existing, err := bitrix.DecodeEach[bitrix.Contact](items)
	if err != nil {
		return nil, fmt.Errorf("decode contacts: %w", err)
	}

	index := make(map[Key]struct{})
	for _, c := range existing {
		for _, p := range c.Phone {
			if np := NormalizePhone(p.Value); np != "" {
				index[Key{Kind: KindPhone, Value: np}] = struct{}{}
			}
		}
		for _, e := range c.Email {
			if ne := NormalizeEmail(e.Value); ne != "" {
				index[Key{Kind: KindEmail, Value: ne}] = struct{}{}
			}
		}
	}
	return index, nil
}
