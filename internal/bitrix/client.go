// Package bitrix implements a thin client for the Bitrix24 REST API,
// reached through an inbound webhook. It exposes the narrow surface the
// rest of the application needs: single method calls, paginated list
// calls and batched writes.
package bitrix

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// maxAttempts bounds retries of a single REST call on transport or
// server-side failures.
const maxAttempts = 3

// Params is the JSON body of a REST call (select/filter/order/fields...).
type Params map[string]any

// Client handles communication with a Bitrix24 portal via an inbound webhook.
type Client struct {
	httpClient *http.Client
	baseURL    string
	limiter    *rate.Limiter
}

// NewClient creates a new Bitrix24 REST client.
// rps throttles outbound calls; Bitrix enforces roughly 2 requests per
// second per webhook and answers QUERY_LIMIT_EXCEEDED beyond that.
func NewClient(webhookURL string, rps float64, timeout time.Duration) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		baseURL: strings.TrimRight(webhookURL, "/"),
		limiter: rate.NewLimiter(rate.Limit(rps), 5),
	}
}

// envelope is the standard Bitrix REST response wrapper.
type envelope struct {
	Result           json.RawMessage `json:"result"`
	Next             *int            `json:"next"`
	Total            int             `json:"total"`
	Error            string          `json:"error"`
	ErrorDescription string          `json:"error_description"`
}

// CallMethod executes a single REST method and returns the raw result.
func (c *Client) CallMethod(ctx context.Context, method string, params Params) (json.RawMessage, error) {
	env, err := c.do(ctx, method, params)
	if err != nil {
		return nil, err
	}
	return env.Result, nil
}

// CallList executes a list-style method, following the "next" cursor
// until the full result set is accumulated. If the caller pre-sets
// "start" in params (e.g. -1 to disable counting), a single page is
// fetched and returned as-is.
func (c *Client) CallList(ctx context.Context, method string, params Params) ([]json.RawMessage, error) {
	p := make(Params, len(params)+1)
	for k, v := range params {
		p[k] = v
	}
	_, pinned := p["start"]

	var items []json.RawMessage
	start := 0
	for {
		if !pinned {
			p["start"] = start
		}

		env, err := c.do(ctx, method, p)
		if err != nil {
			return nil, err
		}

		page, err := decodePage(env.Result)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", method, err)
		}
		items = append(items, page...)

		if pinned || env.Next == nil {
			return items, nil
		}
		start = *env.Next
	}
}

// decodePage extracts the array of records from a list result. A few
// list methods (crm.address.list among them) wrap the array one level
// deeper; a bare object is treated as a single-element page.
func decodePage(result json.RawMessage) ([]json.RawMessage, error) {
	trimmed := bytes.TrimSpace(result)
	if len(trimmed) == 0 || string(trimmed) == "null" {
		return nil, nil
	}

	var page []json.RawMessage
	if trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &page); err != nil {
			return nil, fmt.Errorf("decode list page: %w", err)
		}
		return page, nil
	}
	return []json.RawMessage{trimmed}, nil
}

// do performs one throttled POST to {base}/{method} with retries on
// transport errors and 5xx responses.
func (c *Client) do(ctx context.Context, method string, params Params) (*envelope, error) {
	if params == nil {
		params = Params{}
	}
	body, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("encode %s params: %w", method, err)
	}

	reqURL := c.baseURL + "/" + method

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter: %w", err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("build request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = &APIError{Method: method, Description: err.Error()}
			if !sleepCtx(ctx, time.Duration(attempt)*500*time.Millisecond) {
				return nil, ctx.Err()
			}
			continue
		}

		respBody, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			lastErr = &APIError{Method: method, Description: readErr.Error()}
			continue
		}

		if resp.StatusCode >= 500 {
			lastErr = &APIError{Method: method, Code: fmt.Sprintf("HTTP_%d", resp.StatusCode), Description: string(respBody)}
			if !sleepCtx(ctx, time.Duration(attempt)*500*time.Millisecond) {
				return nil, ctx.Err()
			}
			continue
		}

		var env envelope
		if err := json.Unmarshal(respBody, &env); err != nil {
			return nil, fmt.Errorf("%s: decode response: %w", method, err)
		}
		if env.Error != "" {
			return nil, &APIError{Method: method, Code: env.Error, Description: env.ErrorDescription}
		}
		if resp.StatusCode != http.StatusOK {
			return nil, &APIError{Method: method, Code: fmt.Sprintf("HTTP_%d", resp.StatusCode), Description: string(respBody)}
		}
		return &env, nil
	}

	return nil, lastErr
}

// sleepCtx waits for d or until the context is cancelled.
// Returns false when the context ended first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
