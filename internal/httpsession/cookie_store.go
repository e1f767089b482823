package httpsession

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// StoredCookie is the persisted form of a cookie.
type StoredCookie struct {
	Name     string    `json:"name"`
	Value    string    `json:"value"`
	Domain   string    `json:"domain"`
	Path     string    `json:"path"`
	Expires  time.Time `json:"expires,omitempty"`
	Secure   bool      `json:"secure"`
	HTTPOnly bool      `json:"http_only"`
	// HostOnly cookies were set without a Domain attribute and only match Domain exactly.
	HostOnly bool `json:"host_only"`
	// Deleted marks a Set-Cookie that removes the cookie (Max-Age < 0 or past Expires).
	Deleted bool `json:"-"`
}

// Expired reports whether c has a finite lifetime that ended before now.
func (c StoredCookie) Expired(now time.Time) bool {
	return !c.Expires.IsZero() && !c.Expires.After(now)
}

// MatchesHost reports whether c should be sent to host: exact domain match or
// host ending in "."+domain.
func (c StoredCookie) MatchesHost(host string) bool {
	return host == c.Domain || (!c.HostOnly && len(host) > len(c.Domain) && host[len(host)-len(c.Domain)-1:] == "."+c.Domain)
}

func (c StoredCookie) key() string {
	return c.Domain + "|" + c.Path + "|" + c.Name
}

// CookieStore persists cookies across process restarts. Implementations must
// be safe for concurrent use.
type CookieStore interface {
	Load() ([]StoredCookie, error)
	Upsert(cookies []StoredCookie) error
	Clear() error
}

// FileCookieStore keeps cookies in a JSON file.
type FileCookieStore struct {
	path string
	now  func() time.Time

	mu sync.Mutex
}

type cookieFile struct {
	Cookies []StoredCookie `json:"cookies"`
}

// NewFileCookieStore creates a store backed by the file at path. The file is
// created on first write.
func NewFileCookieStore(path string) *FileCookieStore {
	return &FileCookieStore{path: path, now: time.Now}
}

// Path returns the file path where cookies are stored.
func (s *FileCookieStore) Path() string {
	return s.path
}

// Load returns every unexpired cookie. A missing file yields no cookies.
func (s *FileCookieStore) Load() ([]StoredCookie, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

// Upsert merges cookies into the store keyed by (domain, path, name). Deleted
// or expired cookies remove any stored cookie with the same key.
func (s *FileCookieStore) Upsert(cookies []StoredCookie) error {
	if len(cookies) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.load()
	if err != nil {
		return err
	}

	byKey := make(map[string]int, len(current))
	for i, c := range current {
		byKey[c.key()] = i
	}

	now := s.now()
	for _, c := range cookies {
		i, exists := byKey[c.key()]
		switch {
		case c.Deleted || c.Expired(now):
			if exists {
				current[i].Deleted = true
			}
		case exists:
			current[i] = c
		default:
			byKey[c.key()] = len(current)
			current = append(current, c)
		}
	}

	kept := current[:0]
	for _, c := range current {
		if !c.Deleted {
			kept = append(kept, c)
		}
	}
	return s.write(kept)
}

// Clear removes every stored cookie. Clearing an empty store is not an error.
func (s *FileCookieStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := os.Remove(s.path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("removing cookie file: %w", err)
	}
	return nil
}

func (s *FileCookieStore) load() ([]StoredCookie, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading cookie file: %w", err)
	}

	var f cookieFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing cookie file: %w", err)
	}

	now := s.now()
	live := f.Cookies[:0]
	for _, c := range f.Cookies {
		if !c.Expired(now) {
			live = append(live, c)
		}
	}
	return live, nil
}

// write replaces the file atomically via a temp file in the same directory.
func (s *FileCookieStore) write(cookies []StoredCookie) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("creating cookie directory: %w", err)
	}

	if cookies == nil {
		cookies = []StoredCookie{}
	}
	data, err := json.MarshalIndent(cookieFile{Cookies: cookies}, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding cookies: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".cookies-*.json")
	if err != nil {
		return fmt.Errorf("creating temp cookie file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("writing cookie file: %w", err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("setting cookie file mode: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("closing cookie file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replacing cookie file: %w", err)
	}
	return nil
}

var _ CookieStore = (*FileCookieStore)(nil)
