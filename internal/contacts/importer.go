package contacts

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"b24portal/internal/bitrix"
	"b24portal/internal/logging"
)

// DefaultBatchSize is the Bitrix cap on commands per batch call.
const DefaultBatchSize = 50

// Stats summarizes one import run. Created counts records at enqueue
// time: a command the portal rejects inside a tolerant batch is still
// counted here (accepted accuracy tradeoff, see DESIGN.md).
type Stats struct {
	Created           int `json:"created"`
	SkippedDuplicates int `json:"skipped_duplicates"`
	SkippedEmpty      int `json:"skipped_empty"`
}

// Importer deduplicates parsed contact records against a snapshot of
// the CRM and creates the survivors in fixed-size tolerant batches.
// Each Import call is self-contained; nothing is cached across calls.
type Importer struct {
	api       API
	batchSize int
}

// NewImporter creates an importer flushing every batchSize records.
// Sizes outside 1..50 fall back to the Bitrix cap.
func NewImporter(api API, batchSize int) *Importer {
	if batchSize <= 0 || batchSize > DefaultBatchSize {
		batchSize = DefaultBatchSize
	}
	return &Importer{api: api, batchSize: batchSize}
}

// Import cross-references rows against the existing-contact and
// company snapshots, skips empties and duplicates, and issues
// crm.contact.add commands in batches with continue-on-error
// semantics. Rows are processed in input order; within the file the
// first occurrence of a key wins.
func (im *Importer) Import(ctx context.Context, rows []Record) (Stats, error) {
	var stats Stats

	companies, err := companyIndex(ctx, im.api)
	if err != nil {
		return stats, err
	}
	existing, err := existingContactIndex(ctx, im.api)
	if err != nil {
		return stats, err
	}

	log := logging.WithFields(ctx, "rows", len(rows))
	seen := make(map[Key]struct{})
	batch := bitrix.NewBatch(false)

	flush := func() error {
		if batch.Len() == 0 {
			return nil
		}
		res, err := im.api.CallBatch(ctx, batch)
		if err != nil {
			return fmt.Errorf("flush batch of %d: %w", batch.Len(), err)
		}
		if len(res.Errors) > 0 {
			// Tolerant batch: failed commands are logged, not retried,
			// and stay counted as created.
			log.Warn("batch commands rejected", "failed", len(res.Errors))
		}
		batch = bitrix.NewBatch(false)
		return nil
	}

	for _, row := range rows {
		row = row.trimmed()
		if row.FirstName == "" && row.LastName == "" {
			stats.SkippedEmpty++
			continue
		}

		keys := row.Keys()
		if anyKnown(keys, existing, seen) {
			stats.SkippedDuplicates++
			continue
		}
		for _, k := range keys {
			seen[k] = struct{}{}
		}

		batch.Add("crm.contact.add", addFields(row, companies))
		stats.Created++

		if batch.Len() >= im.batchSize {
			if err := flush(); err != nil {
				return stats, err
			}
		}
	}

	if err := flush(); err != nil {
		return stats, err
	}

	log.Info("import finished",
		"created", stats.Created,
		"duplicates", stats.SkippedDuplicates,
		"empty", stats.SkippedEmpty,
	)
	return stats, nil
}

// anyKnown reports whether any key is already in the CRM snapshot or
// was claimed earlier in this run.
func anyKnown(keys []Key, existing, seen map[Key]struct{}) bool {
	for _, k := range keys {
		if _, ok := existing[k]; ok {
			return true
		}
		if _, ok := seen[k]; ok {
			return true
		}
	}
	return false
}

// addFields builds the crm.contact.add form fields for one record.
// Phone and email keep their raw values and are tagged as WORK; the
// company id is attached only on an exact normalized-title match.
func addFields(row Record, companies map[string]int64) url.Values {
	v := url.Values{}
	v.Set("fields[NAME]", row.FirstName)
	v.Set("fields[LAST_NAME]", row.LastName)

	if NormalizePhone(row.Phone) != "" {
		v.Set("fields[PHONE][0][VALUE]", row.Phone)
		v.Set("fields[PHONE][0][VALUE_TYPE]", "WORK")
	}
	if NormalizeEmail(row.Email) != "" {
		v.Set("fields[EMAIL][0][VALUE]", row.Email)
		v.Set("fields[EMAIL][0][VALUE_TYPE]", "WORK")
	}

	if row.Company != "" {
		if id, ok := companies[normTitle(row.Company)]; ok {
			v.Set("fields[COMPANY_ID]", strconv.FormatInt(id, 10))
		}
	}
	return v
}
