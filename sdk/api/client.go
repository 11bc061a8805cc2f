// Package api provides typed clients for the RUNNERS backend REST endpoints:
// user profile, community posts and comments, notifications and device-token
// registration. All calls go through the session's authenticated HTTP client,
// so bearer attachment and expired-token refresh are transparent here.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/tidwall/gjson"

	"github.com/runners-app/runners-go/sdk/session"
)

// Client is the entry point for every RUNNERS API call.
type Client struct {
	httpClient *http.Client
	baseURL    *url.URL
	pageSize   int
}

// New builds an API client on top of an assembled session.
func New(sess *session.Session) *Client {
	return &Client{
		httpClient: sess.Client(),
		baseURL:    sess.BaseURL(),
		pageSize:   sess.Config().PageSize,
	}
}

// do issues one API request and decodes the JSON response into out. Non-2xx
// responses map to a session.StatusError carrying the status code and either
// the backend's error message or a truncated body snippet.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, payload []byte, out any) error {
	endpoint := c.baseURL.JoinPath(path)
	if len(query) > 0 {
		endpoint.RawQuery = query.Encode()
	}

	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint.String(), reader)
	if err != nil {
		return fmt.Errorf("api: create request failed: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("api: %s %s failed: %w", method, path, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("api: read %s response failed: %w", path, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		// Prefer the backend's structured message when the body carries one.
		if message := gjson.GetBytes(body, "message").String(); message != "" {
			return session.NewStatusError(resp.StatusCode, []byte(message))
		}
		return session.NewStatusError(resp.StatusCode, body)
	}

	if out == nil || len(body) == 0 {
		return nil
	}
	if err = json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("api: decode %s response failed: %w", path, err)
	}
	return nil
}

// cursorQuery builds the standard cursor/size query parameters shared by all
// paginated list endpoints.
func (c *Client) cursorQuery(cursor string, size int) url.Values {
	if size <= 0 {
		size = c.pageSize
	}
	query := url.Values{}
	query.Set("size", fmt.Sprintf("%d", size))
	if cursor != "" {
		query.Set("cursor", cursor)
	}
	return query
}
