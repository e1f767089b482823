// Package favorites keeps the local favorites collection in step with the
// backend and the timestamp store.
package favorites

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/justestif/go-artsy-companion/internal/artsy"
	"github.com/justestif/go-artsy-companion/internal/logging"
	"github.com/justestif/go-artsy-companion/internal/observe"
	"github.com/justestif/go-artsy-companion/internal/timestamps"
)

// TimestampLayout is the format of server-provided favorite timestamps (UTC).
const TimestampLayout = "2006-01-02T15:04:05.000Z"

var (
	// ErrNoSession is returned when a mutation is attempted without a session.
	ErrNoSession = errors.New("user not authenticated")

	// ErrBadTimestamp marks a server timestamp that could not be parsed.
	ErrBadTimestamp = errors.New("unparseable favorite timestamp")
)

// API is the subset of the backend client the engine calls.
type API interface {
	Favorites(ctx context.Context) ([]artsy.Artist, error)
	AddFavorite(ctx context.Context, artistID string) error
	RemoveFavorite(ctx context.Context, artistID string) error
}

// Engine owns the favorites collection. Load, Add, Remove and Touch run one
// at a time; Clear may run at any moment and wins over work in flight.
type Engine struct {
	api    API
	store  timestamps.Store
	logger *zap.Logger
	now    func() time.Time

	opMu  sync.Mutex
	state *observe.Value[Snapshot]
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) {
		e.logger = logging.OrNop(l)
	}
}

// WithClock sets the time source for newly favorited or viewed artists.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// NewEngine creates an Engine with an empty collection.
func NewEngine(api API, store timestamps.Store, opts ...Option) *Engine {
	e := &Engine{
		api:    api,
		store:  store,
		logger: zap.NewNop(),
		now:    time.Now,
		state:  observe.NewValue(newSnapshot(nil, 0)),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.Named("favorites")
	return e
}

// Snapshot returns the current collection.
func (e *Engine) Snapshot() Snapshot {
	return e.state.Get()
}

// Subscribe registers fn for every published snapshot.
func (e *Engine) Subscribe(fn func(Snapshot)) (unsubscribe func()) {
	return e.state.Subscribe(fn)
}

// Contains reports whether artistID is currently a favorite.
func (e *Engine) Contains(artistID string) bool {
	return e.state.Get().Contains(artistID)
}

// SortedByRecent returns the favorites newest first.
func (e *Engine) SortedByRecent() []Entry {
	return e.state.Get().SortedByRecent()
}

// Load replaces the collection with the server's list for sessionID. Server
// timestamps win; artists without one take their time from the store, which
// records now when it has none. Fetch failures leave the collection empty.
func (e *Engine) Load(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return nil
	}

	e.opMu.Lock()
	defer e.opMu.Unlock()

	gen := e.state.Update(func(s Snapshot) Snapshot {
		if s.Len() == 0 {
			return s
		}
		return s.withEntries(nil)
	}).gen

	artists, err := e.api.Favorites(ctx)
	if err != nil {
		if ctx.Err() != nil {
			e.logger.Debug("favorites load cancelled", zap.String("session", sessionID))
			return ctx.Err()
		}
		e.logger.Error("loading favorites", zap.String("session", sessionID), zap.Error(err))
		e.publish(gen, func(s Snapshot) Snapshot {
			if s.Len() == 0 {
				return s
			}
			return s.withEntries(nil)
		})
		return fmt.Errorf("loading favorites: %w", err)
	}

	entries := make([]Entry, 0, len(artists))
	seen := make(map[string]struct{}, len(artists))
	for _, a := range artists {
		if _, dup := seen[a.ID]; dup {
			continue
		}
		seen[a.ID] = struct{}{}
		entries = append(entries, Entry{
			Artist:      a,
			ArtistID:    a.ID,
			FavoritedAt: e.favoritedAt(ctx, sessionID, a),
		})
	}

	if !e.publish(gen, func(s Snapshot) Snapshot { return s.withEntries(entries) }) {
		e.logger.Debug("dropping favorites load superseded by clear", zap.String("session", sessionID))
		return nil
	}
	e.logger.Debug("favorites loaded", zap.String("session", sessionID), zap.Int("count", len(entries)))
	return nil
}

// Add favorites artist remotely and puts it at the front of the collection.
// The store is written before the remote call and is not rolled back if it fails.
func (e *Engine) Add(ctx context.Context, sessionID string, artist artsy.Artist) error {
	if sessionID == "" {
		return ErrNoSession
	}

	e.opMu.Lock()
	defer e.opMu.Unlock()

	gen := e.state.Get().gen
	now := e.now().UnixMilli()
	if err := e.store.Set(ctx, sessionID, artist.ID, now); err != nil {
		e.logger.Warn("persisting favorite timestamp", zap.String("artist", artist.ID), zap.Error(err))
	}

	if err := e.api.AddFavorite(ctx, artist.ID); err != nil {
		e.logger.Error("adding favorite", zap.String("artist", artist.ID), zap.Error(err))
		return fmt.Errorf("adding favorite %s: %w", artist.ID, err)
	}

	e.publish(gen, func(s Snapshot) Snapshot {
		if s.Contains(artist.ID) {
			return s
		}
		entries := make([]Entry, 0, s.Len()+1)
		entries = append(entries, Entry{Artist: artist, ArtistID: artist.ID, FavoritedAt: now})
		entries = append(entries, s.Entries...)
		return s.withEntries(entries)
	})
	e.logger.Debug("favorite added", zap.String("artist", artist.ID))
	return nil
}

// Remove unfavorites artistID remotely, then drops its stored timestamp and
// its entry.
func (e *Engine) Remove(ctx context.Context, sessionID, artistID string) error {
	if sessionID == "" {
		return ErrNoSession
	}

	e.opMu.Lock()
	defer e.opMu.Unlock()

	gen := e.state.Get().gen
	if err := e.api.RemoveFavorite(ctx, artistID); err != nil {
		e.logger.Error("removing favorite", zap.String("artist", artistID), zap.Error(err))
		return fmt.Errorf("removing favorite %s: %w", artistID, err)
	}

	if err := e.store.Delete(ctx, sessionID, artistID); err != nil {
		e.logger.Warn("deleting favorite timestamp", zap.String("artist", artistID), zap.Error(err))
	}

	e.publish(gen, func(s Snapshot) Snapshot {
		if !s.Contains(artistID) {
			return s
		}
		entries := make([]Entry, 0, s.Len())
		for _, entry := range s.Entries {
			if entry.ArtistID != artistID {
				entries = append(entries, entry)
			}
		}
		return s.withEntries(entries)
	})
	e.logger.Debug("favorite removed", zap.String("artist", artistID))
	return nil
}

// Touch moves an existing favorite's timestamp to now and persists it.
// Artists that are not favorites are left alone.
func (e *Engine) Touch(ctx context.Context, sessionID, artistID string) error {
	if sessionID == "" {
		return nil
	}

	e.opMu.Lock()
	defer e.opMu.Unlock()

	snap := e.state.Get()
	if !snap.Contains(artistID) {
		return nil
	}

	now := e.now().UnixMilli()
	if err := e.store.Set(ctx, sessionID, artistID, now); err != nil {
		return fmt.Errorf("updating favorite timestamp: %w", err)
	}

	e.publish(snap.gen, func(s Snapshot) Snapshot {
		entries := make([]Entry, len(s.Entries))
		copy(entries, s.Entries)
		for i := range entries {
			if entries[i].ArtistID == artistID {
				entries[i].FavoritedAt = now
			}
		}
		return s.withEntries(entries)
	})
	return nil
}

// Clear empties the collection. Results of operations already in flight are
// discarded.
func (e *Engine) Clear() {
	e.state.Update(func(s Snapshot) Snapshot {
		return newSnapshot(nil, s.gen+1)
	})
}

// Purge removes every stored timestamp of sessionID.
func (e *Engine) Purge(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return nil
	}
	if err := e.store.ClearSession(ctx, sessionID); err != nil {
		return fmt.Errorf("purging favorite timestamps: %w", err)
	}
	return nil
}

// publish applies fn unless a Clear happened since gen was read.
func (e *Engine) publish(gen uint64, fn func(Snapshot) Snapshot) bool {
	applied := false
	e.state.Update(func(s Snapshot) Snapshot {
		if s.gen != gen {
			return s
		}
		applied = true
		return fn(s)
	})
	return applied
}

func (e *Engine) favoritedAt(ctx context.Context, sessionID string, a artsy.Artist) int64 {
	if a.Timestamp != nil && *a.Timestamp != "" {
		millis, err := parseServerTimestamp(*a.Timestamp)
		if err == nil {
			return millis
		}
		e.logger.Warn("falling back to stored timestamp", zap.String("artist", a.ID), zap.Error(err))
	}

	millis, err := e.store.Get(ctx, sessionID, a.ID)
	if err != nil {
		e.logger.Warn("reading stored timestamp", zap.String("artist", a.ID), zap.Error(err))
		return e.now().UnixMilli()
	}
	return millis
}

func parseServerTimestamp(s string) (int64, error) {
	t, err := time.Parse(TimestampLayout, s)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrBadTimestamp, s)
	}
	return t.UnixMilli(), nil
}
