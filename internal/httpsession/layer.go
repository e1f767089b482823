// Package httpsession builds the HTTP clients used to talk to the backend:
// a stateless client for public endpoints and a cookie-carrying client whose
// cookies survive process restarts.
package httpsession

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/justestif/go-artsy-companion/internal/logging"
)

const defaultTimeout = 15 * time.Second

// Layer owns the cookie store and every jar built on top of it.
type Layer struct {
	store     CookieStore
	logger    *zap.Logger
	timeout   time.Duration
	transport http.RoundTripper
	now       func() time.Time

	mu   sync.Mutex
	jars []*persistentJar
}

// Option configures a Layer.
type Option func(*Layer)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Layer) {
		s.logger = logging.OrNop(l)
	}
}

// WithTimeout sets the per-request timeout of every client.
func WithTimeout(d time.Duration) Option {
	return func(s *Layer) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithTransport replaces the underlying round tripper.
func WithTransport(rt http.RoundTripper) Option {
	return func(s *Layer) {
		if rt != nil {
			s.transport = rt
		}
	}
}

// WithClock sets the time source used for cookie expiry.
func WithClock(now func() time.Time) Option {
	return func(s *Layer) {
		if now != nil {
			s.now = now
		}
	}
}

// New creates a Layer persisting cookies in store.
func New(store CookieStore, opts ...Option) *Layer {
	s := &Layer{
		store:     store,
		logger:    zap.NewNop(),
		timeout:   defaultTimeout,
		transport: http.DefaultTransport,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.Named("httpsession")
	return s
}

// NewStatelessClient returns a client without a cookie jar. It is safe to
// share between goroutines.
func (s *Layer) NewStatelessClient() *http.Client {
	return &http.Client{Transport: s.transport, Timeout: s.timeout}
}

// NewAuthenticatedClient returns a client whose jar starts with the stored
// cookies and persists every cookie the server sets.
func (s *Layer) NewAuthenticatedClient() (*http.Client, error) {
	stored, err := s.store.Load()
	if err != nil {
		return nil, fmt.Errorf("loading cookies: %w", err)
	}

	jar := newPersistentJar(s.store, s.logger, s.now)
	jar.preload(stored)

	s.mu.Lock()
	s.jars = append(s.jars, jar)
	s.mu.Unlock()

	s.logger.Debug("authenticated client created", zap.Int("stored_cookies", len(stored)))

	return &http.Client{
		Jar: jar,
		Transport: &cookieTransport{
			base:   s.transport,
			store:  s.store,
			logger: s.logger,
			now:    s.now,
		},
		Timeout: s.timeout,
	}, nil
}

// ClearCookies empties every jar built by this layer and the store. Calling
// it again is harmless.
func (s *Layer) ClearCookies() error {
	s.mu.Lock()
	for _, jar := range s.jars {
		jar.reset()
	}
	s.mu.Unlock()

	if err := s.store.Clear(); err != nil {
		return fmt.Errorf("clearing cookie store: %w", err)
	}
	s.logger.Debug("cookies cleared")
	return nil
}

// NewFreshClient clears all cookies and returns a new authenticated client.
func (s *Layer) NewFreshClient() (*http.Client, error) {
	if err := s.ClearCookies(); err != nil {
		return nil, err
	}
	return s.NewAuthenticatedClient()
}

// DumpCookies returns the persisted cookies. Load failures yield nil.
func (s *Layer) DumpCookies() []StoredCookie {
	cookies, err := s.store.Load()
	if err != nil {
		s.logger.Warn("loading cookies", zap.Error(err))
		return nil
	}
	return cookies
}
