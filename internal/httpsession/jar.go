package httpsession

import (
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/net/publicsuffix"
)

// persistentJar is an in-memory cookie jar whose SetCookies also writes
// through to a CookieStore.
type persistentJar struct {
	store  CookieStore
	logger *zap.Logger
	now    func() time.Time

	mu    sync.RWMutex
	inner *cookiejar.Jar
}

func newMemoryJar() *cookiejar.Jar {
	// cookiejar.New always returns a nil error.
	jar, _ := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	return jar
}

func newPersistentJar(store CookieStore, logger *zap.Logger, now func() time.Time) *persistentJar {
	return &persistentJar{
		store:  store,
		logger: logger,
		now:    now,
		inner:  newMemoryJar(),
	}
}

// preload copies stored cookies into the in-memory jar. Cookies that cannot
// be restored are logged and skipped.
func (j *persistentJar) preload(cookies []StoredCookie) {
	j.mu.RLock()
	inner := j.inner
	j.mu.RUnlock()

	now := j.now()
	for _, c := range cookies {
		if c.Name == "" || c.Domain == "" {
			j.logger.Warn("skipping stored cookie with missing name or domain",
				zap.String("name", c.Name), zap.String("domain", c.Domain))
			continue
		}
		if c.Expired(now) {
			continue
		}

		u := cookieURL(c)
		hc := &http.Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Path:     c.Path,
			Expires:  c.Expires,
			Secure:   c.Secure,
			HttpOnly: c.HTTPOnly,
		}
		if !c.HostOnly {
			hc.Domain = c.Domain
		}
		inner.SetCookies(u, []*http.Cookie{hc})

		if !containsCookie(inner.Cookies(u), c.Name) {
			j.logger.Warn("stored cookie rejected by jar",
				zap.String("name", c.Name), zap.String("domain", c.Domain))
		}
	}
}

func (j *persistentJar) SetCookies(u *url.URL, cookies []*http.Cookie) {
	j.mu.RLock()
	inner := j.inner
	j.mu.RUnlock()
	inner.SetCookies(u, cookies)

	now := j.now()
	stored := make([]StoredCookie, 0, len(cookies))
	for _, c := range cookies {
		stored = append(stored, toStored(u, c, now))
	}
	if err := j.store.Upsert(stored); err != nil {
		j.logger.Error("persisting cookies", zap.String("host", u.Hostname()), zap.Error(err))
	}
}

func (j *persistentJar) Cookies(u *url.URL) []*http.Cookie {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.inner.Cookies(u)
}

// reset drops every in-memory cookie.
func (j *persistentJar) reset() {
	j.mu.Lock()
	j.inner = newMemoryJar()
	j.mu.Unlock()
}

// toStored converts a Set-Cookie received from u into its persisted form.
func toStored(u *url.URL, c *http.Cookie, now time.Time) StoredCookie {
	sc := StoredCookie{
		Name:     c.Name,
		Value:    c.Value,
		Domain:   strings.TrimPrefix(strings.ToLower(c.Domain), "."),
		Path:     c.Path,
		Secure:   c.Secure,
		HTTPOnly: c.HttpOnly,
	}
	if sc.Domain == "" {
		sc.Domain = strings.ToLower(u.Hostname())
		sc.HostOnly = true
	}
	if sc.Path == "" || !strings.HasPrefix(sc.Path, "/") {
		sc.Path = "/"
	}

	switch {
	case c.MaxAge < 0:
		sc.Deleted = true
	case c.MaxAge > 0:
		sc.Expires = now.Add(time.Duration(c.MaxAge) * time.Second)
	case !c.Expires.IsZero():
		sc.Expires = c.Expires
		if !c.Expires.After(now) {
			sc.Deleted = true
		}
	}
	return sc
}

func cookieURL(c StoredCookie) *url.URL {
	scheme := "http"
	if c.Secure {
		scheme = "https"
	}
	path := c.Path
	if path == "" {
		path = "/"
	}
	return &url.URL{Scheme: scheme, Host: c.Domain, Path: path}
}

func containsCookie(cookies []*http.Cookie, name string) bool {
	for _, c := range cookies {
		if c.Name == name {
			return true
		}
	}
	return false
}

var _ http.CookieJar = (*persistentJar)(nil)
