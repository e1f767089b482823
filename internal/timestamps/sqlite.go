package timestamps

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"
)

const (
	sqliteGetOrCreate = `
		INSERT INTO favorite_timestamps (session_id, artist_id, favorited_at)
		VALUES (?, ?, ?)
		ON CONFLICT (session_id, artist_id) DO UPDATE SET favorited_at = favorite_timestamps.favorited_at
		RETURNING favorited_at`
	sqliteSet = `
		INSERT INTO favorite_timestamps (session_id, artist_id, favorited_at)
		VALUES (?, ?, ?)
		ON CONFLICT (session_id, artist_id) DO UPDATE SET favorited_at = excluded.favorited_at`
	sqliteDelete       = `DELETE FROM favorite_timestamps WHERE session_id = ? AND artist_id = ?`
	sqliteClearSession = `DELETE FROM favorite_timestamps WHERE session_id = ?`
)

// SQLiteStore persists entries in a local SQLite database.
type SQLiteStore struct {
	db   *sql.DB
	opts options
}

// OpenSQLite opens (creating if needed) the database at path and applies the
// schema. Use ":memory:" for a throwaway database.
func OpenSQLite(ctx context.Context, path string, opts ...Option) (*SQLiteStore, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite: %w", err)
	}
	// One connection keeps ":memory:" a single database and serializes writers.
	db.SetMaxOpenConns(1)

	if err := migrate(ctx, goose.DialectSQLite3, db); err != nil {
		db.Close()
		return nil, err
	}
	return &SQLiteStore{db: db, opts: buildOptions(opts)}, nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Get(ctx context.Context, sessionID, artistID string) (int64, error) {
	if err := checkKey(sessionID, artistID); err != nil {
		return 0, err
	}
	var v int64
	err := s.db.QueryRowContext(ctx, sqliteGetOrCreate, sessionID, artistID, s.opts.now().UnixMilli()).Scan(&v)
	if err != nil {
		return 0, fmt.Errorf("reading timestamp: %w", err)
	}
	return v, nil
}

func (s *SQLiteStore) Set(ctx context.Context, sessionID, artistID string, millis int64) error {
	if err := checkKey(sessionID, artistID); err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, sqliteSet, sessionID, artistID, millis); err != nil {
		return fmt.Errorf("writing timestamp: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Delete(ctx context.Context, sessionID, artistID string) error {
	if _, err := s.db.ExecContext(ctx, sqliteDelete, sessionID, artistID); err != nil {
		return fmt.Errorf("deleting timestamp: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ClearSession(ctx context.Context, sessionID string) error {
	if _, err := s.db.ExecContext(ctx, sqliteClearSession, sessionID); err != nil {
		return fmt.Errorf("clearing session timestamps: %w", err)
	}
	return nil
}

var _ Store = (*SQLiteStore)(nil)
