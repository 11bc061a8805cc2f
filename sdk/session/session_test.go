package session

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/runners-app/runners-go/internal/config"
)

// fakeBackend implements the auth bootstrap endpoints and a protected
// resource the way the RUNNERS backend behaves: login mints T1 plus a refresh
// cookie, the resource rejects T1 once rotation happened, and refresh
// exchanges the cookie for T2.
func fakeBackend(t *testing.T, refreshHits *int32) http.Handler {
	t.Helper()
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/auth/google", func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var payload struct {
			IDToken string `json:"idToken"`
		}
		if err := json.Unmarshal(body, &payload); err != nil || payload.IDToken != "abc" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		http.SetCookie(w, &http.Cookie{Name: "refresh_token", Value: "R1", Path: "/", MaxAge: 3600, HttpOnly: true})
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"userId":1,"nickname":"runner","accessToken":"T1","newUser":false}`))
	})

	mux.HandleFunc("POST /api/auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(refreshHits, 1)
		cookie, err := r.Cookie("refresh_token")
		if err != nil || cookie.Value != "R1" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"accessToken":"T2"}`))
	})

	mux.HandleFunc("GET /api/users/me", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer T2" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"userId":1,"nickname":"runner"}`))
	})

	return mux
}

func newTestSession(t *testing.T, serverURL string) *Session {
	t.Helper()
	cfg := config.Default()
	cfg.BaseURL = serverURL
	cfg.SessionDir = t.TempDir()
	sess, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return sess
}

func TestSessionLoginThenExpiredTokenRefresh(t *testing.T) {
	t.Parallel()

	var refreshHits int32
	server := httptest.NewServer(fakeBackend(t, &refreshHits))
	t.Cleanup(server.Close)

	sess := newTestSession(t, server.URL)

	result, err := sess.Login(context.Background(), "abc")
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	if result.UserID != 1 || result.NewUser {
		t.Errorf("Login() result = %+v, want userId 1, existing user", result)
	}
	if got := sess.Tokens().PeekAccessToken(); got != "T1" {
		t.Fatalf("PeekAccessToken() after login = %q, want T1", got)
	}
	if !sess.Authenticated() {
		t.Fatal("Authenticated() = false after login")
	}

	// T1 is already stale server-side: the request must transparently refresh
	// to T2 via the cookie and replay once.
	resp, err := sess.Client().Get(server.URL + "/api/users/me")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200 after transparent refresh", resp.StatusCode)
	}
	if got := atomic.LoadInt32(&refreshHits); got != 1 {
		t.Errorf("refresh endpoint hit %d times, want 1", got)
	}
	if got := sess.Tokens().PeekAccessToken(); got != "T2" {
		t.Errorf("PeekAccessToken() = %q, want T2", got)
	}
}

func TestSessionLogoutIdempotent(t *testing.T) {
	t.Parallel()

	var refreshHits int32
	server := httptest.NewServer(fakeBackend(t, &refreshHits))
	t.Cleanup(server.Close)

	sess := newTestSession(t, server.URL)

	// Logout before ever logging in must be a no-op, not a failure.
	if err := sess.Logout(); err != nil {
		t.Fatalf("Logout() on fresh session error = %v", err)
	}

	if _, err := sess.Login(context.Background(), "abc"); err != nil {
		t.Fatal(err)
	}
	if err := sess.Logout(); err != nil {
		t.Fatalf("Logout() error = %v", err)
	}
	if err := sess.Logout(); err != nil {
		t.Fatalf("second Logout() error = %v", err)
	}
	if sess.Authenticated() {
		t.Error("Authenticated() = true after logout")
	}
	if got := sess.jar.Cookies(sess.BaseURL()); len(got) != 0 {
		t.Errorf("Cookies() after logout = %v, want none", got)
	}
}

func TestSessionSurvivesRestart(t *testing.T) {
	t.Parallel()

	var refreshHits int32
	server := httptest.NewServer(fakeBackend(t, &refreshHits))
	t.Cleanup(server.Close)

	cfg := config.Default()
	cfg.BaseURL = server.URL
	cfg.SessionDir = t.TempDir()

	first, err := New(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if _, err = first.Login(context.Background(), "abc"); err != nil {
		t.Fatal(err)
	}

	// A new session over the same directory hydrates the persisted credential
	// and refresh cookie before the first request goes out.
	second, err := New(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if got := second.Tokens().PeekAccessToken(); got != "T1" {
		t.Fatalf("PeekAccessToken() after restart = %q, want T1", got)
	}

	resp, err := second.Client().Get(server.URL + "/api/users/me")
	if err != nil {
		t.Fatal(err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status after restart = %d, want 200 via cookie-driven refresh", resp.StatusCode)
	}
}
