package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/runners-app/runners-go/internal/config"
	"github.com/runners-app/runners-go/sdk/session"
)

func newTestClient(t *testing.T, handler http.Handler) (*Client, *session.Session) {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	cfg := config.Default()
	cfg.BaseURL = server.URL
	cfg.SessionDir = t.TempDir()
	sess, err := session.New(cfg)
	if err != nil {
		t.Fatalf("session.New() error = %v", err)
	}
	return New(sess), sess
}

func TestClientExtractsBackendErrorMessage(t *testing.T) {
	t.Parallel()

	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"message":"post not found","code":"POST_NOT_FOUND"}`))
	}))

	_, err := client.GetPost(context.Background(), 42)
	var statusErr *session.StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("GetPost() error = %v, want *session.StatusError", err)
	}
	if statusErr.StatusCode() != http.StatusNotFound {
		t.Errorf("StatusCode() = %d, want 404", statusErr.StatusCode())
	}
	if statusErr.Message != "post not found" {
		t.Errorf("Message = %q, want the backend message extracted", statusErr.Message)
	}
}

func TestClientTruncatesLongErrorBodies(t *testing.T) {
	t.Parallel()

	longBody := strings.Repeat("x", 1000)
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(longBody))
	}))

	_, err := client.Me(context.Background())
	var statusErr *session.StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("Me() error = %v, want *session.StatusError", err)
	}
	if len(statusErr.Message) > 300 {
		t.Errorf("Message length = %d, want truncated to at most 300", len(statusErr.Message))
	}
}

func TestClientAttachesBearerOnAuthenticatedCalls(t *testing.T) {
	t.Parallel()

	var sawAuth string
	client, sess := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sawAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"postId":7,"title":"morning run","content":"10k"}`))
	}))
	if err := sess.Tokens().SetTokens("T1", ""); err != nil {
		t.Fatal(err)
	}

	post, err := client.CreatePost(context.Background(), CreatePostRequest{Title: "morning run", Content: "10k"})
	if err != nil {
		t.Fatalf("CreatePost() error = %v", err)
	}
	if sawAuth != "Bearer T1" {
		t.Errorf("Authorization = %q, want Bearer T1", sawAuth)
	}
	if post.ID != 7 {
		t.Errorf("post.ID = %d, want 7", post.ID)
	}
}

func TestClientUpdatePostSendsOnlySetFields(t *testing.T) {
	t.Parallel()

	var sawBody string
	client, sess := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		payload, _ := io.ReadAll(r.Body)
		sawBody = string(payload)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"postId":7,"title":"evening run","content":"10k"}`))
	}))
	if err := sess.Tokens().SetTokens("T1", ""); err != nil {
		t.Fatal(err)
	}

	title := "evening run"
	if _, err := client.UpdatePost(context.Background(), 7, UpdatePostRequest{Title: &title}); err != nil {
		t.Fatalf("UpdatePost() error = %v", err)
	}
	if sawBody != `{"title":"evening run"}` {
		t.Errorf("request body = %q, want only the title field", sawBody)
	}
}
