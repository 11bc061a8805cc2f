package session

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
)

const (
	// AuthPathPrefix marks the unauthenticated bootstrap endpoints. Requests
	// under this prefix never carry a bearer token and never trigger refresh.
	AuthPathPrefix = "/api/auth/"

	refreshPath     = "/api/auth/refresh"
	googleLoginPath = "/api/auth/google"
)

// LoginResult is the typed response of the Google login exchange.
type LoginResult struct {
	// UserID is the RUNNERS account identifier.
	UserID int64 `json:"userId"`
	// Nickname is the display name chosen by the user.
	Nickname string `json:"nickname,omitempty"`
	// ProfileImageURL points at the user's avatar, if any.
	ProfileImageURL string `json:"profileImageUrl,omitempty"`
	// AccessToken is the bearer credential minted for this session.
	AccessToken string `json:"accessToken"`
	// NewUser indicates the account was created by this login.
	NewUser bool `json:"newUser"`
}

// AuthAPI performs the narrow unauthenticated HTTP calls of the session
// bootstrap: the Google login exchange and the cookie-based token refresh.
// Its HTTP client carries the session cookie jar but not the bearer transport,
// so refresh can never recursively trigger refresh.
type AuthAPI struct {
	baseURL    *url.URL
	httpClient *http.Client
}

// NewAuthAPI creates the auth bootstrap client. httpClient must already be
// wired with the session cookie jar.
func NewAuthAPI(baseURL *url.URL, httpClient *http.Client) *AuthAPI {
	return &AuthAPI{baseURL: baseURL, httpClient: httpClient}
}

// RefreshAccessToken exchanges the refresh cookie held by the jar for a new
// access token. One POST with an empty body; any non-2xx response is terminal
// for the caller and carries the status code plus a truncated body snippet.
func (a *AuthAPI) RefreshAccessToken(ctx context.Context) (string, error) {
	body, err := a.post(ctx, refreshPath, nil)
	if err != nil {
		return "", err
	}

	token := gjson.GetBytes(body, "accessToken").String()
	if token == "" {
		return "", fmt.Errorf("session: refresh response missing accessToken")
	}
	log.Debug("refreshed access token")
	return token, nil
}

// GoogleLogin exchanges a Google OAuth idToken for a RUNNERS session. The
// backend sets the refresh cookie on this response; the jar captures it as
// part of normal response handling.
func (a *AuthAPI) GoogleLogin(ctx context.Context, idToken string) (*LoginResult, error) {
	payload, err := json.Marshal(map[string]string{"idToken": idToken})
	if err != nil {
		return nil, fmt.Errorf("session: marshal login payload failed: %w", err)
	}

	body, err := a.post(ctx, googleLoginPath, payload)
	if err != nil {
		return nil, err
	}

	result := &LoginResult{}
	if err = json.Unmarshal(body, result); err != nil {
		return nil, fmt.Errorf("session: decode login response failed: %w", err)
	}
	if result.AccessToken == "" {
		return nil, fmt.Errorf("session: login response missing accessToken")
	}
	return result, nil
}

func (a *AuthAPI) post(ctx context.Context, path string, payload []byte) ([]byte, error) {
	endpoint := a.baseURL.JoinPath(path).String()

	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, reader)
	if err != nil {
		return nil, fmt.Errorf("session: create request failed: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("session: %s request failed: %w", path, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("session: read %s response failed: %w", path, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, NewStatusError(resp.StatusCode, body)
	}
	return body, nil
}
