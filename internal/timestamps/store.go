// Package timestamps records when each artist was favorited, partitioned by
// local session id.
package timestamps

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/pressly/goose/v3"
)

// ErrEmptyKey is returned when a session or artist id is empty.
var ErrEmptyKey = errors.New("empty session or artist id")

//go:embed migrations/*.sql
var migrationFS embed.FS

// Store maps (sessionID, artistID) to a favorited-at time in epoch millis.
// Entries of different sessions never affect each other.
type Store interface {
	// Get returns the stored value, or records now and returns it when absent.
	Get(ctx context.Context, sessionID, artistID string) (int64, error)
	Set(ctx context.Context, sessionID, artistID string, millis int64) error
	Delete(ctx context.Context, sessionID, artistID string) error
	// ClearSession removes every entry of sessionID and nothing else.
	ClearSession(ctx context.Context, sessionID string) error
}

type options struct {
	now func() time.Time
}

// Option configures a store.
type Option func(*options)

// WithClock sets the time source used when Get creates an entry.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func checkKey(sessionID, artistID string) error {
	if sessionID == "" || artistID == "" {
		return ErrEmptyKey
	}
	return nil
}

// migrate applies the embedded schema to db.
func migrate(ctx context.Context, dialect goose.Dialect, db *sql.DB) error {
	fsys, err := fs.Sub(migrationFS, "migrations")
	if err != nil {
		return fmt.Errorf("opening migrations: %w", err)
	}
	provider, err := goose.NewProvider(dialect, db, fsys)
	if err != nil {
		return fmt.Errorf("creating migration provider: %w", err)
	}
	if _, err := provider.Up(ctx); err != nil {
		return fmt.Errorf("applying migrations: %w", err)
	}
	return nil
}
