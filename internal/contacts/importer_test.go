package contacts

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"b24portal/internal/bitrix"
)

// fakeAPI serves canned list pages per method and records every batch
// it receives. Shared by the importer and exporter tests.
type fakeAPI struct {
	lists   map[string][]json.RawMessage
	params  map[string]bitrix.Params
	batches []*bitrix.Batch
	result  *bitrix.BatchResult
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		lists:  make(map[string][]json.RawMessage),
		params: make(map[string]bitrix.Params),
	}
}

func (f *fakeAPI) CallList(_ context.Context, method string, params bitrix.Params) ([]json.RawMessage, error) {
	f.params[method] = params
	return f.lists[method], nil
}

func (f *fakeAPI) CallBatch(_ context.Context, b *bitrix.Batch) (*bitrix.BatchResult, error) {
	f.batches = append(f.batches, b)
	if f.result != nil {
		return f.result, nil
	}
	return &bitrix.BatchResult{}, nil
}

func rawList(items ...string) []json.RawMessage {
	out := make([]json.RawMessage, len(items))
	for i, s := range items {
		out[i] = json.RawMessage(s)
	}
	return out
}

// commandFields decodes the c-th queued command of a batch back into
// its method and form fields.
func commandFields(t *testing.T, b *bitrix.Batch, key string) (string, url.Values) {
	t.Helper()
	cmd := b.Command(key)
	method, query, ok := strings.Cut(cmd, "?")
	require.True(t, ok, "command %q has no query part", cmd)
	fields, err := url.ParseQuery(query)
	require.NoError(t, err)
	return method, fields
}

func TestImport_CreatesAndResolvesCompany(t *testing.T) {
	api := newFakeAPI()
	api.lists["crm.company.list"] = rawList(
		`{"ID":"7","TITLE":"Ромашка"}`,
		`{"ID":"9","TITLE":"Acme Corp"}`,
	)

	imp := NewImporter(api, DefaultBatchSize)
	stats, err := imp.Import(context.Background(), []Record{
		{FirstName: "Анна", LastName: "Иванова", Phone: "+7 (999) 123-45-67", Email: "Anna@Example.com", Company: "  acme corp "},
		{FirstName: "Борис", Company: "Неизвестная"},
	})
	require.NoError(t, err)

	assert.Equal(t, Stats{Created: 2}, stats)
	require.Len(t, api.batches, 1)
	require.Equal(t, []string{"c0", "c1"}, api.batches[0].Keys())

	method, fields := commandFields(t, api.batches[0], "c0")
	assert.Equal(t, "crm.contact.add", method)
	assert.Equal(t, "Анна", fields.Get("fields[NAME]"))
	assert.Equal(t, "Иванова", fields.Get("fields[LAST_NAME]"))
	assert.Equal(t, "+7 (999) 123-45-67", fields.Get("fields[PHONE][0][VALUE]"), "raw phone value is preserved")
	assert.Equal(t, "WORK", fields.Get("fields[PHONE][0][VALUE_TYPE]"))
	assert.Equal(t, "Anna@Example.com", fields.Get("fields[EMAIL][0][VALUE]"))
	assert.Equal(t, "9", fields.Get("fields[COMPANY_ID]"), "title match is case- and space-insensitive")

	_, fields = commandFields(t, api.batches[0], "c1")
	assert.Empty(t, fields.Get("fields[COMPANY_ID]"), "unknown company attaches nothing")
	assert.Empty(t, fields.Get("fields[PHONE][0][VALUE]"))
	assert.Empty(t, fields.Get("fields[EMAIL][0][VALUE]"))
}

func TestImport_SkipsRowsWithoutNames(t *testing.T) {
	api := newFakeAPI()

	imp := NewImporter(api, DefaultBatchSize)
	stats, err := imp.Import(context.Background(), []Record{
		{Phone: "89991234567", Email: "ghost@example.com"},
		{FirstName: "  ", LastName: "\t"},
		{FirstName: "Анна", Phone: "89991234567"},
	})
	require.NoError(t, err)

	assert.Equal(t, Stats{Created: 1, SkippedEmpty: 2}, stats)
	require.Len(t, api.batches, 1)
	assert.Equal(t, 1, api.batches[0].Len(), "empty rows claim no keys, so Анна's phone is still free")
}

func TestImport_DuplicatesAgainstSnapshot(t *testing.T) {
	api := newFakeAPI()
	api.lists["crm.contact.list"] = rawList(
		`{"ID":"1","PHONE":[{"VALUE":"8 (999) 123-45-67","VALUE_TYPE":"WORK"}],"EMAIL":[]}`,
		`{"ID":"2","PHONE":[],"EMAIL":[{"VALUE":"Taken@Example.com","VALUE_TYPE":"WORK"}]}`,
	)

	imp := NewImporter(api, DefaultBatchSize)
	stats, err := imp.Import(context.Background(), []Record{
		{FirstName: "Анна", Phone: "+79991234567"},
		{FirstName: "Борис", Email: "taken@example.com"},
		{FirstName: "Вера", Phone: "70000000001"},
	})
	require.NoError(t, err)

	assert.Equal(t, Stats{Created: 1, SkippedDuplicates: 2}, stats)
}

func TestImport_SameKindCollisionsOnly(t *testing.T) {
	api := newFakeAPI()
	// An email whose normalized value equals a phone key's digits must
	// not collide with that phone.
	api.lists["crm.contact.list"] = rawList(
		`{"ID":"1","PHONE":[],"EMAIL":[{"VALUE":"79991234567","VALUE_TYPE":"WORK"}]}`,
	)

	imp := NewImporter(api, DefaultBatchSize)
	stats, err := imp.Import(context.Background(), []Record{
		{FirstName: "Анна", Phone: "+7 999 123-45-67"},
	})
	require.NoError(t, err)

	assert.Equal(t, Stats{Created: 1}, stats)
}

func TestImport_FirstOccurrenceWins(t *testing.T) {
	api := newFakeAPI()

	imp := NewImporter(api, DefaultBatchSize)
	stats, err := imp.Import(context.Background(), []Record{
		{FirstName: "Анна", Phone: "+7 (999) 123-45-67"},
		{FirstName: "Аня", Phone: "89991234567"},
		{FirstName: "Борис", Email: "b@example.com"},
		{FirstName: "Боб", Email: " B@Example.com "},
	})
	require.NoError(t, err)

	assert.Equal(t, Stats{Created: 2, SkippedDuplicates: 2}, stats)

	require.Len(t, api.batches, 1)
	_, fields := commandFields(t, api.batches[0], "c0")
	assert.Equal(t, "Анна", fields.Get("fields[NAME]"))
	_, fields = commandFields(t, api.batches[0], "c1")
	assert.Equal(t, "Борис", fields.Get("fields[NAME]"))
}

func TestImport_FlushesInBatchesOfFifty(t *testing.T) {
	api := newFakeAPI()

	rows := make([]Record, 101)
	for i := range rows {
		rows[i] = Record{
			FirstName: fmt.Sprintf("Имя%d", i),
			Phone:     fmt.Sprintf("7%010d", i),
		}
	}

	imp := NewImporter(api, DefaultBatchSize)
	stats, err := imp.Import(context.Background(), rows)
	require.NoError(t, err)

	assert.Equal(t, Stats{Created: 101}, stats)
	require.Len(t, api.batches, 3)
	assert.Equal(t, 50, api.batches[0].Len())
	assert.Equal(t, 50, api.batches[1].Len())
	assert.Equal(t, 1, api.batches[2].Len())
}

func TestImport_CountsRejectedCommandsAsCreated(t *testing.T) {
	api := newFakeAPI()
	api.result = &bitrix.BatchResult{
		Errors: map[string]bitrix.CallFault{
			"c0": {Code: "ERROR_CORE", Description: "rejected"},
		},
	}

	imp := NewImporter(api, DefaultBatchSize)
	stats, err := imp.Import(context.Background(), []Record{
		{FirstName: "Анна", Phone: "70000000001"},
		{FirstName: "Борис", Phone: "70000000002"},
	})
	require.NoError(t, err)

	assert.Equal(t, 2, stats.Created, "per-command faults do not reduce the created count")
}
