package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"
)

const tokenBlobName = "tokens.blob"

// tokenRecord is the persisted representation of the credential pair.
type tokenRecord struct {
	// AccessToken is the bearer credential attached to authenticated API requests.
	AccessToken string `json:"access_token"`
	// RefreshToken is the longer-lived credential used only to mint new access tokens.
	RefreshToken string `json:"refresh_token,omitempty"`
	// LastRefresh is the RFC3339 timestamp of the last token write.
	LastRefresh string `json:"last_refresh,omitempty"`
	// Type identifies the record format, always "runners".
	Type string `json:"type"`
}

// tokenSnapshot is the immutable value published for lock-free reads.
type tokenSnapshot struct {
	access  string
	refresh string
}

// TokenStore is the process-wide holder of the current access/refresh token
// pair. Reads are non-blocking against an atomically published snapshot;
// writes persist the encrypted blob first and then publish the new snapshot.
type TokenStore struct {
	mu      sync.Mutex
	cipher  *blobCipher
	path    string
	current atomic.Pointer[tokenSnapshot]
}

// NewTokenStore creates a token store persisting under dir. The in-memory
// cache starts empty; call Load before issuing authenticated requests.
func NewTokenStore(dir string, cipher *blobCipher) (*TokenStore, error) {
	if cipher == nil {
		return nil, fmt.Errorf("session: token store requires a cipher")
	}
	s := &TokenStore{
		cipher: cipher,
		path:   filepath.Join(dir, tokenBlobName),
	}
	s.current.Store(&tokenSnapshot{})
	return s, nil
}

// Load hydrates the in-memory cache from durable storage. A missing blob
// leaves the store empty; a corrupt blob is treated the same way.
func (s *TokenStore) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sealed, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			s.current.Store(&tokenSnapshot{})
			return nil
		}
		return fmt.Errorf("session: read token blob failed: %w", err)
	}

	plain, err := s.cipher.open(sealed)
	if err != nil {
		log.Warnf("token blob unreadable, starting unauthenticated: %v", err)
		s.current.Store(&tokenSnapshot{})
		return nil
	}

	var record tokenRecord
	if err = json.Unmarshal(plain, &record); err != nil {
		log.Warnf("token blob malformed, starting unauthenticated: %v", err)
		s.current.Store(&tokenSnapshot{})
		return nil
	}

	s.current.Store(&tokenSnapshot{access: record.AccessToken, refresh: record.RefreshToken})
	return nil
}

// PeekAccessToken returns the last-known access token without blocking.
func (s *TokenStore) PeekAccessToken() string {
	return s.current.Load().access
}

// PeekRefreshToken returns the last-known refresh token without blocking.
func (s *TokenStore) PeekRefreshToken() string {
	return s.current.Load().refresh
}

// SetAccessToken persists a new access token, keeping the current refresh token.
func (s *TokenStore) SetAccessToken(token string) error {
	return s.SetTokens(token, s.current.Load().refresh)
}

// SetTokens persists the credential pair durably, then publishes the
// in-memory snapshot so subsequent peeks on any goroutine observe it.
func (s *TokenStore) SetTokens(access, refresh string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	record := tokenRecord{
		AccessToken:  access,
		RefreshToken: refresh,
		LastRefresh:  time.Now().UTC().Format(time.RFC3339),
		Type:         "runners",
	}
	raw, err := json.Marshal(&record)
	if err != nil {
		return fmt.Errorf("session: marshal tokens failed: %w", err)
	}
	sealed, err := s.cipher.seal(raw)
	if err != nil {
		return err
	}
	if err = os.WriteFile(s.path, sealed, 0o600); err != nil {
		return fmt.Errorf("session: write token blob failed: %w", err)
	}

	s.current.Store(&tokenSnapshot{access: access, refresh: refresh})
	return nil
}

// Clear erases the persisted blob and the in-memory cache together. It is
// safe to call when nothing was ever persisted.
func (s *TokenStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.current.Store(&tokenSnapshot{})
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("session: delete token blob failed: %w", err)
	}
	return nil
}
