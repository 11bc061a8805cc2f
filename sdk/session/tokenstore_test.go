package session

import (
	"os"
	"path/filepath"
	"testing"
)

func newTestTokenStore(t *testing.T, dir string) *TokenStore {
	t.Helper()
	store, err := NewTokenStore(dir, newTestCipher(t, dir))
	if err != nil {
		t.Fatalf("NewTokenStore() error = %v", err)
	}
	if err = store.Load(); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	return store
}

func TestTokenStoreRoundTrip(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	store := newTestTokenStore(t, dir)

	if got := store.PeekAccessToken(); got != "" {
		t.Fatalf("PeekAccessToken() on fresh store = %q, want empty", got)
	}

	if err := store.SetTokens("access-1", "refresh-1"); err != nil {
		t.Fatalf("SetTokens() error = %v", err)
	}
	if got := store.PeekAccessToken(); got != "access-1" {
		t.Errorf("PeekAccessToken() = %q, want access-1", got)
	}
	if got := store.PeekRefreshToken(); got != "refresh-1" {
		t.Errorf("PeekRefreshToken() = %q, want refresh-1", got)
	}

	// A second store over the same directory must observe the persisted pair.
	reloaded := newTestTokenStore(t, dir)
	if got := reloaded.PeekAccessToken(); got != "access-1" {
		t.Errorf("reloaded PeekAccessToken() = %q, want access-1", got)
	}
	if got := reloaded.PeekRefreshToken(); got != "refresh-1" {
		t.Errorf("reloaded PeekRefreshToken() = %q, want refresh-1", got)
	}
}

func TestTokenStoreSetAccessTokenKeepsRefreshToken(t *testing.T) {
	t.Parallel()

	store := newTestTokenStore(t, t.TempDir())
	if err := store.SetTokens("access-1", "refresh-1"); err != nil {
		t.Fatal(err)
	}
	if err := store.SetAccessToken("access-2"); err != nil {
		t.Fatal(err)
	}
	if got := store.PeekAccessToken(); got != "access-2" {
		t.Errorf("PeekAccessToken() = %q, want access-2", got)
	}
	if got := store.PeekRefreshToken(); got != "refresh-1" {
		t.Errorf("PeekRefreshToken() = %q, want refresh-1 preserved", got)
	}
}

func TestTokenStoreClearIdempotent(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	store := newTestTokenStore(t, dir)

	if err := store.Clear(); err != nil {
		t.Fatalf("Clear() on empty store error = %v", err)
	}

	if err := store.SetTokens("access-1", "refresh-1"); err != nil {
		t.Fatal(err)
	}
	if err := store.Clear(); err != nil {
		t.Fatalf("Clear() error = %v", err)
	}
	if err := store.Clear(); err != nil {
		t.Fatalf("second Clear() error = %v", err)
	}
	if got := store.PeekAccessToken(); got != "" {
		t.Errorf("PeekAccessToken() after Clear() = %q, want empty", got)
	}
	if _, err := os.Stat(filepath.Join(dir, tokenBlobName)); !os.IsNotExist(err) {
		t.Fatalf("token blob still present after Clear(), stat err = %v", err)
	}

	reloaded := newTestTokenStore(t, dir)
	if got := reloaded.PeekAccessToken(); got != "" {
		t.Errorf("reloaded PeekAccessToken() after Clear() = %q, want empty", got)
	}
}

func TestTokenStoreToleratesCorruptBlob(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	cipher := newTestCipher(t, dir)
	if err := os.WriteFile(filepath.Join(dir, tokenBlobName), []byte("garbage"), 0o600); err != nil {
		t.Fatal(err)
	}

	store, err := NewTokenStore(dir, cipher)
	if err != nil {
		t.Fatalf("NewTokenStore() error = %v", err)
	}
	if err = store.Load(); err != nil {
		t.Fatalf("Load() with corrupt blob error = %v", err)
	}
	if got := store.PeekAccessToken(); got != "" {
		t.Errorf("PeekAccessToken() = %q, want empty after corrupt load", got)
	}
}
