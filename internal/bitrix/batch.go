package bitrix

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
)

// Batch accumulates commands for a single REST batch call. Bitrix
// executes up to 50 commands per call; command keys are generated as
// c0, c1, ... in insertion order.
type Batch struct {
	halt bool
	keys []string
	cmds map[string]string
}

// NewBatch creates an empty batch. When halt is false the portal keeps
// executing remaining commands after one of them fails.
func NewBatch(halt bool) *Batch {
	return &Batch{
		halt: halt,
		cmds: make(map[string]string),
	}
}

// Add appends a command encoded as "method?urlencoded-fields" and
// returns its generated key.
func (b *Batch) Add(method string, fields url.Values) string {
	key := fmt.Sprintf("c%d", len(b.keys))
	b.keys = append(b.keys, key)
	b.cmds[key] = method + "?" + fields.Encode()
	return key
}

// Len returns the number of queued commands.
func (b *Batch) Len() int {
	return len(b.keys)
}

// Keys returns the command keys in insertion order.
func (b *Batch) Keys() []string {
	return append([]string(nil), b.keys...)
}

// Command returns the encoded command for a key.
func (b *Batch) Command(key string) string {
	return b.cmds[key]
}

// BatchResult holds per-command outcomes of a batch call.
type BatchResult struct {
	// Results maps command keys to their raw results. Keys whose
	// command failed are absent.
	Results map[string]json.RawMessage

	// Errors maps command keys to their failures, when the batch ran
	// with halt disabled.
	Errors map[string]CallFault
}

// CallFault is a per-command error inside a batch response.
type CallFault struct {
	Code        string `json:"error"`
	Description string `json:"error_description"`
}

// batchResponse mirrors the nested result object of the batch method.
// The PHP side serializes empty maps as [] instead of {}, hence the
// tolerant map types.
type batchResponse struct {
	Result      keyedResults `json:"result"`
	ResultError keyedFaults  `json:"result_error"`
}

type keyedResults map[string]json.RawMessage

func (m *keyedResults) UnmarshalJSON(data []byte) error {
	if isEmptyArray(data) {
		*m = nil
		return nil
	}
	return json.Unmarshal(data, (*map[string]json.RawMessage)(m))
}

type keyedFaults map[string]CallFault

func (m *keyedFaults) UnmarshalJSON(data []byte) error {
	if isEmptyArray(data) {
		*m = nil
		return nil
	}
	return json.Unmarshal(data, (*map[string]CallFault)(m))
}

func isEmptyArray(data []byte) bool {
	s := string(data)
	return s == "[]" || s == "null"
}

// CallBatch executes all queued commands as one REST batch call.
// Sub-command failures do not produce an error here when the batch was
// created with halt disabled; they are reported in BatchResult.Errors.
func (c *Client) CallBatch(ctx context.Context, b *Batch) (*BatchResult, error) {
	if b.Len() == 0 {
		return &BatchResult{}, nil
	}

	halt := 0
	if b.halt {
		halt = 1
	}

	raw, err := c.CallMethod(ctx, "batch", Params{
		"halt": halt,
		"cmd":  b.cmds,
	})
	if err != nil {
		return nil, err
	}

	var resp batchResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("batch: decode response: %w", err)
	}

	return &BatchResult{
		Results: map[string]json.RawMessage(resp.Result),
		Errors:  map[string]CallFault(resp.ResultError),
	}, nil
}
