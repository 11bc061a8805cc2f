// Package session implements the authenticated HTTP session layer for the
// RUNNERS backend: persistent encrypted cookie storage, the process-wide
// token cache, bearer attachment with single-flight 401 refresh, and the
// login/logout lifecycle. One Session exists per process; it is constructed
// once and passed explicitly to everything that issues HTTP calls.
package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/runners-app/runners-go/internal/config"
	"github.com/runners-app/runners-go/internal/util"
)

// Session owns the components of the authenticated session and is the only
// place allowed to transition it as a whole. There are two states,
// unauthenticated and authenticated; token refresh is invisible to callers.
type Session struct {
	cfg     *config.Config
	baseURL *url.URL
	jar     *CookieJar
	tokens  *TokenStore
	auth    *AuthAPI
	client  *http.Client
}

// New assembles a session from the configuration: blob cipher, cookie jar,
// token cache (hydrated before any request can go out), auth bootstrap client
// and the authenticated HTTP client. Store-level initialization failures are
// fatal; corrupt persisted records are skipped during hydration.
func New(cfg *config.Config) (*Session, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	baseURL, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("session: invalid base url %q: %w", cfg.BaseURL, err)
	}

	cipher, err := newBlobCipher(cfg.SessionDir)
	if err != nil {
		return nil, err
	}
	jar, err := NewCookieJar(cfg.SessionDir, cipher)
	if err != nil {
		return nil, err
	}
	tokens, err := NewTokenStore(cfg.SessionDir, cipher)
	if err != nil {
		return nil, err
	}
	if err = tokens.Load(); err != nil {
		return nil, err
	}

	base := util.NewTransport(cfg)

	// The bootstrap client shares the jar (refresh rides on the cookie) but
	// not the bearer transport, so /api/auth calls can never recurse.
	bootstrap := &http.Client{Transport: base, Jar: jar, Timeout: cfg.RequestTimeout()}
	auth := NewAuthAPI(baseURL, bootstrap)

	var rt http.RoundTripper = NewTransport(base, baseURL, tokens, jar, auth)
	if cfg.RequestLog {
		rt = &loggingRoundTripper{next: rt}
	}

	return &Session{
		cfg:     cfg,
		baseURL: baseURL,
		jar:     jar,
		tokens:  tokens,
		auth:    auth,
		client:  &http.Client{Transport: rt, Jar: jar, Timeout: cfg.RequestTimeout()},
	}, nil
}

// Login exchanges a Google OAuth idToken for a RUNNERS session. On success
// the access token enters the token cache and the refresh cookie set by the
// backend lands in the jar via normal response handling.
func (s *Session) Login(ctx context.Context, idToken string) (*LoginResult, error) {
	result, err := s.auth.GoogleLogin(ctx, idToken)
	if err != nil {
		return nil, err
	}
	if err = s.tokens.SetTokens(result.AccessToken, ""); err != nil {
		return nil, err
	}
	log.Debugf("login succeeded for user %d", result.UserID)
	return result, nil
}

// Logout tears the session down locally: cookies and tokens are both cleared
// best-effort, and a failure on one never skips the other. Safe to call on an
// already unauthenticated session.
func (s *Session) Logout() error {
	errCookies := s.jar.Clear()
	errTokens := s.tokens.Clear()
	return errors.Join(errCookies, errTokens)
}

// Client returns the authenticated HTTP client. Requests to the configured
// backend carry a bearer token and transparently survive one expired-token
// 401; requests to any other host pass through untouched.
func (s *Session) Client() *http.Client {
	return s.client
}

// BaseURL returns the configured backend base URL.
func (s *Session) BaseURL() *url.URL {
	return s.baseURL
}

// Tokens exposes the token cache for read access and external reloads.
func (s *Session) Tokens() *TokenStore {
	return s.tokens
}

// Config returns the configuration the session was built from.
func (s *Session) Config() *config.Config {
	return s.cfg
}

// Authenticated reports whether an access token is currently cached.
func (s *Session) Authenticated() bool {
	return s.tokens.PeekAccessToken() != ""
}

// ReloadTokens re-hydrates the token cache from disk, picking up credentials
// written by another process.
func (s *Session) ReloadTokens() error {
	return s.tokens.Load()
}

// loggingRoundTripper logs one line per request when request-log is enabled.
type loggingRoundTripper struct {
	next http.RoundTripper
}

func (l *loggingRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()
	resp, err := l.next.RoundTrip(req)
	entry := log.WithFields(log.Fields{
		"method": req.Method,
		"path":   req.URL.Path,
		"host":   req.URL.Host,
	})
	if err != nil {
		entry.WithField("error", err).Infof("request failed after %s", time.Since(start).Round(time.Millisecond))
		return resp, err
	}
	entry.WithField("status", resp.StatusCode).Infof("request completed in %s", time.Since(start).Round(time.Millisecond))
	return resp, nil
}
