package entitlement

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// Client asks the subscription service whether a device holds an
// active premium entitlement. Callers treat any error as "not
// entitled".
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// New creates an entitlement client
func New(baseURL, apiKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		http:    &http.Client{Timeout: timeout},
	}
}

// IsEntitled checks the device's premium entitlement
func (c *Client) IsEntitled(ctx context.Context, deviceID string) (bool, error) {
	u := fmt.Sprintf("%s/entitlements/%s", c.baseURL, url.PathEscape(deviceID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return false, fmt.Errorf("failed to build entitlement request: %w", err)
	}
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return false, fmt.Errorf("entitlement request failed: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return false, nil
	default:
		return false, fmt.Errorf("entitlement service returned status %d", resp.StatusCode)
	}

	var body struct {
		Entitled bool `json:"entitled"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return false, fmt.Errorf("failed to decode entitlement response: %w", err)
	}
	return body.Entitled, nil
}
