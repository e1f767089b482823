// Package session implements the authentication state machine and the local
// session that scopes cached favorites data.
package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/justestif/go-artsy-companion/internal/artsy"
	"github.com/justestif/go-artsy-companion/internal/favorites"
	"github.com/justestif/go-artsy-companion/internal/logging"
	"github.com/justestif/go-artsy-companion/internal/observe"
	"github.com/justestif/go-artsy-companion/internal/task"
)

// ErrInvalidCredentials is returned by Login when the backend rejects the
// email or password.
var ErrInvalidCredentials = errors.New("username or password is incorrect")

// AuthAPI is the subset of the backend client the manager calls.
type AuthAPI interface {
	AuthStatus(ctx context.Context) (*artsy.StatusResponse, error)
	Login(ctx context.Context, email, password string) (*artsy.UserResponse, error)
	Register(ctx context.Context, fullName, email, password string) (*artsy.UserResponse, error)
	Logout(ctx context.Context) (*artsy.MessageResponse, error)
	DeleteAccount(ctx context.Context) (*artsy.MessageResponse, error)
}

// CookieClearer drops every stored cookie.
type CookieClearer interface {
	ClearCookies() error
}

// Manager moves between Loading, Unauthenticated and Authenticated and keeps
// the favorites collection bound to the current session.
type Manager struct {
	api       AuthAPI
	cookies   CookieClearer
	favorites *favorites.Engine
	logger    *zap.Logger
	now       func() time.Time

	// transitionMu makes each read-modify-write of state atomic. It is never
	// held across network calls.
	transitionMu sync.Mutex
	state        *observe.Value[AuthState]
	// epoch counts session starts and teardowns. An auth check whose epoch
	// is stale by the time it answers is dropped.
	epoch uint64

	mintMu   sync.Mutex
	lastMint int64

	checks singleflight.Group
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(m *Manager) {
		m.logger = logging.OrNop(l)
	}
}

// WithClock sets the time source used to mint session ids.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// NewManager creates a Manager in the Loading state.
func NewManager(api AuthAPI, cookies CookieClearer, favs *favorites.Engine, opts ...Option) *Manager {
	m := &Manager{
		api:       api,
		cookies:   cookies,
		favorites: favs,
		logger:    zap.NewNop(),
		now:       time.Now,
		state:     observe.NewValue[AuthState](Loading{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.Named("session")
	return m
}

// Start runs the initial auth check in the background.
func (m *Manager) Start(ctx context.Context) *task.Handle {
	return task.Go(ctx, m.CheckAuthStatus)
}

// State returns the current auth state.
func (m *Manager) State() AuthState {
	return m.state.Get()
}

// Subscribe registers fn for every state change.
func (m *Manager) Subscribe(fn func(AuthState)) (unsubscribe func()) {
	return m.state.Subscribe(fn)
}

// SessionID returns the local session id, or "" when not authenticated.
func (m *Manager) SessionID() string {
	if a, ok := m.state.Get().(Authenticated); ok {
		return a.SessionID
	}
	return ""
}

// UserEmail returns the logged-in email, or "" when not authenticated.
func (m *Manager) UserEmail() string {
	if a, ok := m.state.Get().(Authenticated); ok {
		return a.Email
	}
	return ""
}

// Favorites returns the favorites engine bound to this manager.
func (m *Manager) Favorites() *favorites.Engine {
	return m.favorites
}

// CheckAuthStatus asks the backend whether the cookie session is valid. An
// authenticated answer keeps the current session id, minting one only when
// none exists, and reloads favorites. Anything else tears the session down.
// Concurrent calls share one request, which outlives any single caller's
// cancellation. An answer that arrives after a login or logout is discarded.
func (m *Manager) CheckAuthStatus(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	ch := m.checks.DoChan("status", func() (any, error) {
		return nil, m.checkAuthStatus(context.WithoutCancel(ctx))
	})
	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		m.logger.Debug("auth check abandoned by caller")
		return ctx.Err()
	}
}

func (m *Manager) checkAuthStatus(ctx context.Context) error {
	m.transitionMu.Lock()
	epoch := m.epoch
	m.transitionMu.Unlock()

	resp, err := m.api.AuthStatus(ctx)
	if err != nil {
		m.logger.Error("checking auth status", zap.Error(err))
		m.clearIfCurrent(ctx, epoch)
		return fmt.Errorf("checking auth status: %w", err)
	}

	if !resp.IsAuthenticated || resp.User == nil {
		m.logger.Debug("not authenticated")
		m.clearIfCurrent(ctx, epoch)
		return nil
	}

	m.transitionMu.Lock()
	if m.epoch != epoch {
		m.transitionMu.Unlock()
		m.logger.Debug("dropping auth check superseded by a session change")
		return nil
	}
	sessionID := m.SessionID()
	if sessionID == "" {
		sessionID = m.mintSessionID()
		m.epoch++
		m.favorites.Clear()
		m.logger.Debug("session minted", zap.String("session", sessionID))
	}
	m.state.Set(Authenticated{
		SessionID: sessionID,
		Email:     resp.User.Email,
		AvatarURL: resp.User.ProfileImageURL,
	})
	m.transitionMu.Unlock()

	m.logger.Info("authenticated", zap.String("email", resp.User.Email), zap.String("session", sessionID))
	m.loadFavorites(ctx, sessionID)
	return nil
}

// SetNewUser starts a brand new local session for user, discarding any
// favorites of the previous one.
func (m *Manager) SetNewUser(ctx context.Context, user artsy.UserInfo) {
	m.transitionMu.Lock()
	sessionID := m.mintSessionID()
	m.epoch++
	m.favorites.Clear()
	m.state.Set(Authenticated{
		SessionID: sessionID,
		Email:     user.Email,
		AvatarURL: user.ProfileImageURL,
	})
	m.transitionMu.Unlock()

	m.logger.Info("new user session", zap.String("email", user.Email), zap.String("session", sessionID))
	m.loadFavorites(ctx, sessionID)
}

// Login replaces any current session with one for email. A rejected password
// yields ErrInvalidCredentials.
func (m *Manager) Login(ctx context.Context, email, password string) error {
	m.Logout(ctx)

	resp, err := m.api.Login(ctx, strings.TrimSpace(email), password)
	if err != nil {
		if artsy.StatusCode(err) == http.StatusUnauthorized {
			return ErrInvalidCredentials
		}
		return fmt.Errorf("logging in: %w", err)
	}

	if resp.User != nil {
		m.SetNewUser(ctx, *resp.User)
		return nil
	}
	return m.CheckAuthStatus(ctx)
}

// Register creates an account on a clean cookie session and logs into it.
func (m *Manager) Register(ctx context.Context, fullName, email, password string) error {
	m.Logout(ctx)

	fullName, email = strings.TrimSpace(fullName), strings.TrimSpace(email)
	registered, err := m.api.Register(ctx, fullName, email, password)
	if err != nil {
		return fmt.Errorf("registering: %w", err)
	}

	user := registered.User
	loggedIn, err := m.api.Login(ctx, email, password)
	if err != nil {
		m.logger.Warn("login after registration", zap.Error(err))
	} else if loggedIn.User != nil {
		user = loggedIn.User
	}

	if user != nil {
		m.SetNewUser(ctx, *user)
		return nil
	}
	return m.CheckAuthStatus(ctx)
}

// Logout ends the remote session and always tears down local state, even
// when the backend cannot be reached.
func (m *Manager) Logout(ctx context.Context) {
	if _, err := m.api.Logout(ctx); err != nil {
		m.logger.Warn("remote logout failed", zap.Error(err))
	}
	m.clearCookies()
	m.clearAllUserData(ctx)
}

// DeleteAccount deletes the remote account and always tears down local
// state, even when the backend cannot be reached.
func (m *Manager) DeleteAccount(ctx context.Context) {
	if _, err := m.api.DeleteAccount(ctx); err != nil {
		m.logger.Warn("remote account deletion failed", zap.Error(err))
	}
	m.clearCookies()
	m.clearAllUserData(ctx)
}

// UpdateArtistTimestamp marks a favorite as just viewed. Artists that are not
// favorites are ignored.
func (m *Manager) UpdateArtistTimestamp(ctx context.Context, artistID string) error {
	return m.favorites.Touch(ctx, m.SessionID(), artistID)
}

// IsFavorite reports whether artistID is in the current favorites.
func (m *Manager) IsFavorite(artistID string) bool {
	return m.favorites.Contains(artistID)
}

// AddFavorite favorites artist for the current session.
func (m *Manager) AddFavorite(ctx context.Context, artist artsy.Artist) error {
	return m.favorites.Add(ctx, m.SessionID(), artist)
}

// RemoveFavorite unfavorites artistID for the current session.
func (m *Manager) RemoveFavorite(ctx context.Context, artistID string) error {
	return m.favorites.Remove(ctx, m.SessionID(), artistID)
}

// LoadFavorites reloads favorites for the current session.
func (m *Manager) LoadFavorites(ctx context.Context) error {
	return m.favorites.Load(ctx, m.SessionID())
}

// clearAllUserData is the only path that ends a session: favorites are
// emptied, the session's stored timestamps purged and the state reset.
func (m *Manager) clearAllUserData(ctx context.Context) {
	m.transitionMu.Lock()
	defer m.transitionMu.Unlock()
	m.teardownLocked(ctx)
}

// clearIfCurrent tears down only if no login or logout happened since epoch.
func (m *Manager) clearIfCurrent(ctx context.Context, epoch uint64) {
	m.transitionMu.Lock()
	defer m.transitionMu.Unlock()
	if m.epoch != epoch {
		m.logger.Debug("dropping auth check superseded by a session change")
		return
	}
	m.teardownLocked(ctx)
}

func (m *Manager) teardownLocked(ctx context.Context) {
	m.epoch++
	sessionID := m.SessionID()
	m.favorites.Clear()
	if sessionID != "" {
		if err := m.favorites.Purge(context.WithoutCancel(ctx), sessionID); err != nil {
			m.logger.Warn("purging session timestamps", zap.String("session", sessionID), zap.Error(err))
		}
	}
	m.state.Set(Unauthenticated{})
	m.logger.Debug("user data cleared", zap.String("session", sessionID))
}

func (m *Manager) clearCookies() {
	if m.cookies == nil {
		return
	}
	if err := m.cookies.ClearCookies(); err != nil {
		m.logger.Warn("clearing cookies", zap.Error(err))
	}
}

func (m *Manager) loadFavorites(ctx context.Context, sessionID string) {
	if err := m.favorites.Load(ctx, sessionID); err != nil && ctx.Err() == nil {
		m.logger.Warn("favorites unavailable", zap.String("session", sessionID), zap.Error(err))
	}
}

// mintSessionID returns "session_<millis>", bumped past the previous id so
// two mints in the same millisecond still differ.
func (m *Manager) mintSessionID() string {
	m.mintMu.Lock()
	defer m.mintMu.Unlock()

	millis := m.now().UnixMilli()
	if millis <= m.lastMint {
		millis = m.lastMint + 1
	}
	m.lastMint = millis
	return "session_" + strconv.FormatInt(millis, 10)
}
