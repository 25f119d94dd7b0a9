package directory

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/tariel-x/gomeet/internal/models"
)

// InviteClient submits invite batches to an external invite service. One
// call covers the whole batch; the service fans out to the individual
// recipients itself.
type InviteClient struct {
	serviceURL string
	token      string
	httpClient *http.Client
}

func NewInviteClient(serviceURL, token string) *InviteClient {
	return &InviteClient{
		serviceURL: serviceURL,
		token:      token,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// WithHTTPClient swaps the underlying HTTP client, mainly for tests.
func (c *InviteClient) WithHTTPClient(httpClient *http.Client) *InviteClient {
	c.httpClient = httpClient
	return c
}

type inviteRequest struct {
	Invited models.CandidateList `json:"invited"`
	URL     string               `json:"url"`
}

// Send posts the batch with the meeting join URL. Any non-2xx answer is an
// error: the service either accepts the whole batch or none of it.
func (c *InviteClient) Send(ctx context.Context, items models.CandidateList, joinURL string) error {
	if c.serviceURL == "" {
		return errors.New("invite service url is not configured")
	}

	u, err := url.Parse(c.serviceURL)
	if err != nil {
		return fmt.Errorf("parse invite service url: %w", err)
	}
	if c.token != "" {
		q := u.Query()
		q.Set("token", c.token)
		u.RawQuery = q.Encode()
	}

	body, err := json.Marshal(inviteRequest{Invited: items, URL: joinURL})
	if err != nil {
		return fmt.Errorf("encode invite request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("invite service request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("invite service returned status %d", resp.StatusCode)
	}
	return nil
}
