package session

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

// Refresher mints a new access token from whatever credential the transport
// layer already attaches (the refresh cookie). AuthAPI is the production
// implementation; tests substitute fakes.
type Refresher interface {
	RefreshAccessToken(ctx context.Context) (string, error)
}

// Transport is an http.RoundTripper that attaches the freshest known bearer
// token to eligible outgoing requests and, on a 401, performs a single-flight
// token refresh followed by at most one replay of the failing request.
//
// For N concurrent requests failing on one stale token, at most one network
// call reaches the refresh endpoint: late arrivals either reuse the token an
// earlier caller already minted or join the in-flight refresh. An
// irrecoverable refresh failure tears the whole session down (cookies and
// tokens cleared) and surfaces the original 401.
type Transport struct {
	base      http.RoundTripper
	tokens    *TokenStore
	jar       *CookieJar
	refresher Refresher

	host string
	port string

	group singleflight.Group
}

// NewTransport builds the authenticated transport for the given backend URL.
// Only requests whose host and port match backend are ever given a bearer
// token; everything else passes through untouched.
func NewTransport(base http.RoundTripper, backend *url.URL, tokens *TokenStore, jar *CookieJar, refresher Refresher) *Transport {
	if base == nil {
		base = http.DefaultTransport
	}
	return &Transport{
		base:      base,
		tokens:    tokens,
		jar:       jar,
		refresher: refresher,
		host:      strings.ToLower(backend.Hostname()),
		port:      portOrDefault(backend),
	}
}

// RoundTrip implements http.RoundTripper.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	usedToken := ""
	outReq := req
	if t.eligible(req.URL) && req.Header.Get("Authorization") == "" {
		if token := t.tokens.PeekAccessToken(); strings.TrimSpace(token) != "" {
			usedToken = token
			outReq = req.Clone(req.Context())
			outReq.Header.Set("Authorization", "Bearer "+token)
		}
	}

	resp, err := t.base.RoundTrip(outReq)
	if err != nil || resp.StatusCode != http.StatusUnauthorized {
		return resp, err
	}

	// 401 from an auth bootstrap path or a foreign host is final: refreshing
	// there would either recurse or leak credentials.
	if !t.eligible(req.URL) {
		return resp, nil
	}

	token, ok := t.resolveToken(req.Context(), usedToken)
	if !ok {
		return resp, nil
	}

	retry, errClone := cloneForRetry(req)
	if errClone != nil {
		log.Debugf("cannot replay request after refresh: %v", errClone)
		return resp, nil
	}
	drainAndClose(resp)

	retry.Header.Set("Authorization", "Bearer "+token)
	return t.base.RoundTrip(retry)
}

// eligible reports whether a URL may carry the backend bearer token: matching
// host and port, and not under the unauthenticated auth bootstrap prefix.
func (t *Transport) eligible(u *url.URL) bool {
	if !strings.EqualFold(u.Hostname(), t.host) {
		return false
	}
	if portOrDefault(u) != t.port {
		return false
	}
	return !strings.HasPrefix(u.Path, AuthPathPrefix)
}

// resolveToken returns the token to replay a 401-failed request with.
// usedToken is the token the failing request actually carried. If another
// caller refreshed while that request was in flight, the current cached token
// is reused without any network call; otherwise the callers racing on the
// same stale token share one refresh flight.
func (t *Transport) resolveToken(ctx context.Context, usedToken string) (string, bool) {
	if current := t.tokens.PeekAccessToken(); current != "" && current != usedToken {
		return current, true
	}

	v, err, _ := t.group.Do("refresh\x00"+usedToken, func() (any, error) {
		// Re-check under the flight: a refresh may have completed between the
		// peek above and this call joining the group.
		if current := t.tokens.PeekAccessToken(); current != "" && current != usedToken {
			return current, nil
		}
		token, errRefresh := t.refresher.RefreshAccessToken(ctx)
		if errRefresh != nil {
			t.teardown()
			return nil, errRefresh
		}
		if errSet := t.tokens.SetAccessToken(token); errSet != nil {
			log.Errorf("persist refreshed token failed: %v", errSet)
		}
		return token, nil
	})
	if err != nil {
		log.WithField("error", err).Warn("token refresh failed, session torn down")
		return "", false
	}
	token, _ := v.(string)
	if token == "" {
		return "", false
	}
	return token, true
}

// teardown clears cookies and tokens after an irrecoverable refresh failure.
// Both stores are cleared best-effort; failure of one does not skip the other.
func (t *Transport) teardown() {
	if t.jar != nil {
		if err := t.jar.Clear(); err != nil {
			log.Errorf("clear cookies failed: %v", err)
		}
	}
	if err := t.tokens.Clear(); err != nil {
		log.Errorf("clear tokens failed: %v", err)
	}
}

// cloneForRetry produces a replayable copy of req. Requests whose body was
// consumed and cannot be re-materialized are not replayed.
func cloneForRetry(req *http.Request) (*http.Request, error) {
	clone := req.Clone(req.Context())
	if req.Body == nil || req.Body == http.NoBody {
		return clone, nil
	}
	if req.GetBody == nil {
		return nil, fmt.Errorf("request body cannot be replayed")
	}
	body, err := req.GetBody()
	if err != nil {
		return nil, fmt.Errorf("rewind request body failed: %w", err)
	}
	clone.Body = body
	return clone, nil
}

// drainAndClose releases a response that is being replaced by a retry so the
// underlying connection can be reused.
func drainAndClose(resp *http.Response) {
	if resp == nil || resp.Body == nil {
		return
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	_ = resp.Body.Close()
}

func portOrDefault(u *url.URL) string {
	if p := u.Port(); p != "" {
		return p
	}
	if strings.EqualFold(u.Scheme, "https") {
		return "443"
	}
	return "80"
}
