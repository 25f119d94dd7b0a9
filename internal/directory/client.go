package directory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tariel-x/gomeet/internal/models"
)

// Client queries an external people directory over HTTP. Responses are
// arrays of tagged candidates; entries with types this server does not
// understand are skipped rather than failing the whole lookup, so a newer
// directory can coexist with an older deployment.
type Client struct {
	searchURL  string
	token      string
	httpClient *http.Client
}

func NewClient(searchURL, token string) *Client {
	return &Client{
		searchURL:  searchURL,
		token:      token,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// WithHTTPClient swaps the underlying HTTP client, mainly for tests.
func (c *Client) WithHTTPClient(httpClient *http.Client) *Client {
	c.httpClient = httpClient
	return c
}

// Search looks text up in the directory, restricted to the given candidate
// types.
func (c *Client) Search(ctx context.Context, text string, types []string) (models.CandidateList, error) {
	if c.searchURL == "" {
		return nil, errors.New("directory search url is not configured")
	}

	u, err := url.Parse(c.searchURL)
	if err != nil {
		return nil, fmt.Errorf("parse directory search url: %w", err)
	}
	q := u.Query()
	q.Set("query", text)
	q.Set("types", strings.Join(types, ","))
	if c.token != "" {
		q.Set("jwt", c.token)
	}
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("directory search request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("directory search returned status %d", resp.StatusCode)
	}

	var raw []json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode directory search response: %w", err)
	}

	results := make(models.CandidateList, 0, len(raw))
	for _, entry := range raw {
		candidate, err := models.UnmarshalCandidate(entry)
		if err != nil {
			slog.Default().Debug("skipping directory entry", "error", err)
			continue
		}
		results = append(results, candidate)
	}
	return results, nil
}
