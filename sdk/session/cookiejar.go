package session

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

const cookieBlobName = "cookies.blob"

// storedCookie is the persisted representation of a single cookie.
type storedCookie struct {
	Name       string `json:"name"`
	Value      string `json:"value"`
	Domain     string `json:"domain"`
	Path       string `json:"path"`
	ExpiresAt  int64  `json:"expires_at,omitempty"` // epoch millis; 0 means session-only
	Secure     bool   `json:"secure,omitempty"`
	HTTPOnly   bool   `json:"http_only,omitempty"`
	HostOnly   bool   `json:"host_only,omitempty"`
	Persistent bool   `json:"persistent,omitempty"`
}

func (c *storedCookie) expired(now time.Time) bool {
	return c.ExpiresAt != 0 && c.ExpiresAt <= now.UnixMilli()
}

// key identifies a cookie for replacement purposes.
func (c *storedCookie) key() string {
	return c.Name + "\x00" + c.Domain + "\x00" + c.Path
}

// CookieJar is a persistent, encrypted cookie store implementing http.CookieJar.
// Cookies survive process restarts; expired entries are never returned and are
// purged from the backing blob on the next mutation. All access is serialized
// by a single lock.
type CookieJar struct {
	mu      sync.Mutex
	cipher  *blobCipher
	path    string
	cookies []storedCookie

	now func() time.Time
}

// NewCookieJar loads the persisted cookie blob from dir, skipping unreadable
// individual records and dropping already-expired entries. A missing or
// undecryptable blob yields an empty jar; only storage-level failures are fatal.
func NewCookieJar(dir string, cipher *blobCipher) (*CookieJar, error) {
	if cipher == nil {
		return nil, fmt.Errorf("session: cookie jar requires a cipher")
	}
	jar := &CookieJar{
		cipher: cipher,
		path:   filepath.Join(dir, cookieBlobName),
		now:    time.Now,
	}
	if err := jar.load(); err != nil {
		return nil, err
	}
	return jar, nil
}

func (j *CookieJar) load() error {
	sealed, err := os.ReadFile(j.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("session: read cookie blob failed: %w", err)
	}

	plain, err := j.cipher.open(sealed)
	if err != nil {
		log.Warnf("cookie blob unreadable, starting with empty jar: %v", err)
		return nil
	}

	var records []json.RawMessage
	if err = json.Unmarshal(plain, &records); err != nil {
		log.Warnf("cookie blob malformed, starting with empty jar: %v", err)
		return nil
	}

	now := j.now()
	for _, raw := range records {
		var cookie storedCookie
		if err = json.Unmarshal(raw, &cookie); err != nil {
			log.Debugf("skipping malformed cookie record: %v", err)
			continue
		}
		if cookie.Name == "" || cookie.expired(now) {
			continue
		}
		j.cookies = append(j.cookies, cookie)
	}
	return nil
}

// SetCookies stores the cookies received in a response for u. A cookie with
// the same (name, domain, path) as an existing one replaces it; cookies that
// arrive already expired only delete the matching entry.
func (j *CookieJar) SetCookies(u *url.URL, cookies []*http.Cookie) {
	if u == nil || len(cookies) == 0 {
		return
	}
	host := strings.ToLower(u.Hostname())

	j.mu.Lock()
	defer j.mu.Unlock()

	now := j.now()
	changed := false
	for _, c := range cookies {
		if c.Name == "" {
			continue
		}
		stored := storedCookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   host,
			Path:     defaultCookiePath(c.Path, u.Path),
			Secure:   c.Secure,
			HTTPOnly: c.HttpOnly,
			HostOnly: true,
		}
		if d := strings.TrimPrefix(c.Domain, "."); d != "" {
			stored.Domain = strings.ToLower(d)
			stored.HostOnly = false
		}

		switch {
		case c.MaxAge < 0:
			// explicit deletion
		case c.MaxAge > 0:
			stored.ExpiresAt = now.Add(time.Duration(c.MaxAge) * time.Second).UnixMilli()
			stored.Persistent = true
		case !c.Expires.IsZero():
			stored.ExpiresAt = c.Expires.UnixMilli()
			stored.Persistent = true
		}

		changed = j.removeLocked(stored.key()) || changed
		if c.MaxAge < 0 || stored.expired(now) {
			continue
		}
		j.cookies = append(j.cookies, stored)
		changed = true
	}

	if changed {
		if err := j.persistLocked(); err != nil {
			log.Errorf("persist cookies failed: %v", err)
		}
	}
}

// Cookies returns the non-expired cookies matching u per standard cookie
// matching rules. If the purge of expired entries changed the jar, the purge
// is persisted before returning.
func (j *CookieJar) Cookies(u *url.URL) []*http.Cookie {
	if u == nil {
		return nil
	}
	host := strings.ToLower(u.Hostname())
	secure := u.Scheme == "https"
	reqPath := u.Path
	if reqPath == "" {
		reqPath = "/"
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	if j.purgeExpiredLocked() {
		if err := j.persistLocked(); err != nil {
			log.Errorf("persist cookie purge failed: %v", err)
		}
	}

	var matched []*http.Cookie
	for i := range j.cookies {
		c := &j.cookies[i]
		if !domainMatch(host, c.Domain, c.HostOnly) {
			continue
		}
		if !pathMatch(reqPath, c.Path) {
			continue
		}
		if c.Secure && !secure {
			continue
		}
		matched = append(matched, &http.Cookie{Name: c.Name, Value: c.Value})
	}
	return matched
}

// Clear empties the jar and deletes the persisted blob. It is safe to call on
// an empty or never-persisted jar.
func (j *CookieJar) Clear() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.cookies = nil
	if err := os.Remove(j.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("session: delete cookie blob failed: %w", err)
	}
	return nil
}

// removeLocked drops any cookie with the given replacement key and reports
// whether something was removed. Caller must hold mu.
func (j *CookieJar) removeLocked(key string) bool {
	kept := j.cookies[:0]
	removed := false
	for _, c := range j.cookies {
		if c.key() == key {
			removed = true
			continue
		}
		kept = append(kept, c)
	}
	j.cookies = kept
	return removed
}

func (j *CookieJar) purgeExpiredLocked() bool {
	now := j.now()
	kept := j.cookies[:0]
	purged := false
	for _, c := range j.cookies {
		if c.expired(now) {
			purged = true
			continue
		}
		kept = append(kept, c)
	}
	j.cookies = kept
	return purged
}

// persistLocked writes the persistent, non-expired subset of the jar to disk
// as one sealed blob. Caller must hold mu.
func (j *CookieJar) persistLocked() error {
	now := j.now()
	persistent := make([]storedCookie, 0, len(j.cookies))
	for _, c := range j.cookies {
		if c.Persistent && !c.expired(now) {
			persistent = append(persistent, c)
		}
	}

	raw, err := json.Marshal(persistent)
	if err != nil {
		return fmt.Errorf("session: marshal cookies failed: %w", err)
	}
	sealed, err := j.cipher.seal(raw)
	if err != nil {
		return err
	}
	if err = os.WriteFile(j.path, sealed, 0o600); err != nil {
		return fmt.Errorf("session: write cookie blob failed: %w", err)
	}
	return nil
}

// defaultCookiePath resolves the effective cookie path per RFC 6265 §5.1.4.
func defaultCookiePath(cookiePath, requestPath string) string {
	if cookiePath != "" && strings.HasPrefix(cookiePath, "/") {
		return cookiePath
	}
	if !strings.HasPrefix(requestPath, "/") {
		return "/"
	}
	if idx := strings.LastIndex(requestPath, "/"); idx > 0 {
		return requestPath[:idx]
	}
	return "/"
}

func domainMatch(host, domain string, hostOnly bool) bool {
	if host == domain {
		return true
	}
	if hostOnly {
		return false
	}
	return strings.HasSuffix(host, "."+domain)
}

func pathMatch(requestPath, cookiePath string) bool {
	if requestPath == cookiePath {
		return true
	}
	if !strings.HasPrefix(requestPath, cookiePath) {
		return false
	}
	return strings.HasSuffix(cookiePath, "/") || requestPath[len(cookiePath)] == '/'
}
