package bitrix

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, 1000, 5*time.Second)
}

func TestCallMethod_DecodesResult(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/crm.product.get", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)

		var params map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&params))
		assert.EqualValues(t, 7, params["ID"])

		w.Write([]byte(`{"result":{"ID":"7","NAME":"Widget"}}`))
	})

	raw, err := c.CallMethod(context.Background(), "crm.product.get", Params{"ID": 7})
	require.NoError(t, err)

	var p Product
	require.NoError(t, json.Unmarshal(raw, &p))
	assert.EqualValues(t, 7, p.ID)
	assert.Equal(t, "Widget", string(p.Name))
}

func TestCallMethod_APIError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":"QUERY_LIMIT_EXCEEDED","error_description":"Too many requests"}`))
	})

	_, err := c.CallMethod(context.Background(), "crm.contact.list", nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrCall), "error should wrap ErrCall")

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "QUERY_LIMIT_EXCEEDED", apiErr.Code)
	assert.Equal(t, "crm.contact.list", apiErr.Method)
}

func TestCallMethod_RetriesServerErrors(t *testing.T) {
	var calls int
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(`{"result":true}`))
	})

	raw, err := c.CallMethod(context.Background(), "telephony.externalCall.finish", nil)
	require.NoError(t, err)
	assert.Equal(t, "true", string(raw))
	assert.Equal(t, 3, calls)
}

func TestCallList_FollowsNextCursor(t *testing.T) {
	var starts []float64
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var params map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&params))
		start := params["start"].(float64)
		starts = append(starts, start)

		switch start {
		case 0:
			w.Write([]byte(`{"result":[{"ID":"1"},{"ID":"2"}],"next":50,"total":101}`))
		case 50:
			w.Write([]byte(`{"result":[{"ID":"3"}],"next":100,"total":101}`))
		default:
			w.Write([]byte(`{"result":[{"ID":"4"}],"total":101}`))
		}
	})

	items, err := c.CallList(context.Background(), "crm.contact.list", Params{"select": []string{"ID"}})
	require.NoError(t, err)
	assert.Len(t, items, 4)
	assert.Equal(t, []float64{0, 50, 100}, starts)

	contacts, err := DecodeEach[Contact](items)
	require.NoError(t, err)
	assert.EqualValues(t, 1, contacts[0].ID)
	assert.EqualValues(t, 4, contacts[3].ID)
}

func TestCallList_PinnedStartSinglePage(t *testing.T) {
	var calls int
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		var params map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&params))
		assert.EqualValues(t, -1, params["start"])

		// next must be ignored when the caller pinned start
		w.Write([]byte(`{"result":[{"ID":"9"}],"next":50}`))
	})

	items, err := c.CallList(context.Background(), "crm.product.list", Params{"start": -1})
	require.NoError(t, err)
	assert.Len(t, items, 1)
	assert.Equal(t, 1, calls)
}

func TestCallBatch_EncodesHaltAndCommands(t *testing.T) {
	var got struct {
		Halt int               `json:"halt"`
		Cmd  map[string]string `json:"cmd"`
	}
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/batch", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Write([]byte(`{"result":{"result":{"c0":15,"c1":16},"result_error":[]}}`))
	})

	b := NewBatch(false)
	b.Add("crm.contact.add", url.Values{"fields[NAME]": {"Anna"}})
	b.Add("crm.contact.add", url.Values{"fields[NAME]": {"Boris"}})

	res, err := c.CallBatch(context.Background(), b)
	require.NoError(t, err)

	assert.Equal(t, 0, got.Halt)
	assert.Equal(t, "crm.contact.add?fields%5BNAME%5D=Anna", got.Cmd["c0"])
	assert.Equal(t, "crm.contact.add?fields%5BNAME%5D=Boris", got.Cmd["c1"])
	assert.Equal(t, []string{"c0", "c1"}, b.Keys())

	assert.Len(t, res.Results, 2)
	assert.Empty(t, res.Errors)
}

func TestCallBatch_ReportsCommandFaults(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"result":{"result":{"c0":20},"result_error":{"c1":{"error":"","error_description":"Required fields: NAME"}}}}`))
	})

	b := NewBatch(false)
	b.Add("crm.contact.add", url.Values{"fields[NAME]": {"Anna"}})
	b.Add("crm.contact.add", url.Values{})

	res, err := c.CallBatch(context.Background(), b)
	require.NoError(t, err)
	assert.Contains(t, res.Results, "c0")
	assert.Equal(t, "Required fields: NAME", res.Errors["c1"].Description)
}

func TestCallBatch_EmptyBatchSkipsCall(t *testing.T) {
	var calls int
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
	})

	res, err := c.CallBatch(context.Background(), NewBatch(false))
	require.NoError(t, err)
	assert.Empty(t, res.Results)
	assert.Equal(t, 0, calls)
}
