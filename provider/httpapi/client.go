package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/caseflow-dev/caseflow/provider"
)

// Client is a provider.Provider backed by a remote ability server. Per-call
// deadlines come from the caller's context; the embedded client timeout is a
// hard upper bound against servers that never answer.
type Client struct {
	name    string
	baseURL string
	http    *http.Client
}

var _ provider.Provider = (*Client)(nil)

// NewClient builds a client for the provider named name at baseURL.
func NewClient(name, baseURL string) *Client {
	return &Client{
		name:    name,
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

// Name implements provider.Provider.
func (c *Client) Name() string { return c.name }

// Invoke implements provider.Provider. An HTTP 422 carrying the application
// error kind is returned as *provider.ApplicationError; every other failure,
// including unreachable hosts and unexpected statuses, is a transport error.
func (c *Client) Invoke(ctx context.Context, ability string, payload map[string]any, state map[string]any) (map[string]any, error) {
	body, err := json.Marshal(invokeRequest{Payload: payload, State: state})
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	url := c.baseURL + "/abilities/" + ability
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", url, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode == http.StatusOK {
		var out invokeResponse
		if err := json.Unmarshal(raw, &out); err != nil {
			return nil, fmt.Errorf("decode response: %w", err)
		}
		return out.Fields, nil
	}

	var errResp errorResponse
	if err := json.Unmarshal(raw, &errResp); err == nil && errResp.Kind == errorKindApplication {
		return nil, provider.NewApplicationError(ability, "%s", errResp.Error)
	}
	return nil, fmt.Errorf("call %s: status %d: %s", url, resp.StatusCode, strings.TrimSpace(string(raw)))
}

// Health implements provider.Provider.
func (c *Client) Health(ctx context.Context) provider.Status {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/healthz", nil)
	if err != nil {
		return provider.StatusDown
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return provider.StatusDown
	}
	defer resp.Body.Close()

	var health healthResponse
	if err := json.NewDecoder(resp.Body).Decode(&health); err == nil && health.Status != "" {
		return health.Status
	}
	if resp.StatusCode == http.StatusOK {
		return provider.StatusOK
	}
	return provider.StatusDown
}
