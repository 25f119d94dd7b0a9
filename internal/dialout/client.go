package dialout

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// CheckResult is the dial-out validation answer for one number.
type CheckResult struct {
	Allow   bool   `json:"allow"`
	Phone   string `json:"phone"`
	Country string `json:"country,omitempty"`
}

// Client asks the configured dial-out service whether a number may be
// dialed. Without a configured URL every number is assumed dialable and
// echoed back in international form.
type Client struct {
	checkURL   string
	httpClient *http.Client
}

func NewClient(checkURL string) *Client {
	return &Client{
		checkURL:   checkURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// WithHTTPClient swaps the underlying HTTP client, mainly for tests.
func (c *Client) WithHTTPClient(httpClient *http.Client) *Client {
	c.httpClient = httpClient
	return c
}

// CheckNumber submits normalized digits for validation.
func (c *Client) CheckNumber(ctx context.Context, digits string) (CheckResult, error) {
	if c.checkURL == "" {
		return CheckResult{Allow: true, Phone: "+" + digits}, nil
	}

	u, err := url.Parse(c.checkURL)
	if err != nil {
		return CheckResult{}, fmt.Errorf("parse dial-out check url: %w", err)
	}
	q := u.Query()
	q.Set("phone", digits)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return CheckResult{}, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return CheckResult{}, fmt.Errorf("dial-out check request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return CheckResult{}, fmt.Errorf("dial-out check returned status %d", resp.StatusCode)
	}

	var result CheckResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return CheckResult{}, fmt.Errorf("decode dial-out check response: %w", err)
	}
	return result, nil
}
