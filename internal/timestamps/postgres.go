package timestamps

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

const (
	pgGetOrCreate = `
		INSERT INTO favorite_timestamps (session_id, artist_id, favorited_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (session_id, artist_id) DO UPDATE SET favorited_at = favorite_timestamps.favorited_at
		RETURNING favorited_at`
	pgSet = `
		INSERT INTO favorite_timestamps (session_id, artist_id, favorited_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (session_id, artist_id) DO UPDATE SET favorited_at = EXCLUDED.favorited_at`
	pgDelete       = `DELETE FROM favorite_timestamps WHERE session_id = $1 AND artist_id = $2`
	pgClearSession = `DELETE FROM favorite_timestamps WHERE session_id = $1`
)

// PgxPool is the subset of *pgxpool.Pool the store uses. pgxmock pools
// satisfy it in tests.
type PgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// PostgresStore keeps entries in a shared PostgreSQL table.
type PostgresStore struct {
	pool PgxPool
	opts options
}

// NewPostgresStore wraps an existing pool. The schema must already exist.
func NewPostgresStore(pool PgxPool, opts ...Option) *PostgresStore {
	return &PostgresStore{pool: pool, opts: buildOptions(opts)}
}

// OpenPostgres migrates the database at dsn and connects a pool to it.
func OpenPostgres(ctx context.Context, dsn string, opts ...Option) (*PostgresStore, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening postgres for migrations: %w", err)
	}
	err = migrate(ctx, goose.DialectPostgres, db)
	db.Close()
	if err != nil {
		return nil, err
	}

	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parsing database URL: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	return NewPostgresStore(pool, opts...), nil
}

// Close closes the pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, sessionID, artistID string) (int64, error) {
	if err := checkKey(sessionID, artistID); err != nil {
		return 0, err
	}
	var v int64
	if err := s.pool.QueryRow(ctx, pgGetOrCreate, sessionID, artistID, s.opts.now().UnixMilli()).Scan(&v); err != nil {
		return 0, fmt.Errorf("reading timestamp: %w", err)
	}
	return v, nil
}

func (s *PostgresStore) Set(ctx context.Context, sessionID, artistID string, millis int64) error {
	if err := checkKey(sessionID, artistID); err != nil {
		return err
	}
	if _, err := s.pool.Exec(ctx, pgSet, sessionID, artistID, millis); err != nil {
		return fmt.Errorf("writing timestamp: %w", err)
	}
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, sessionID, artistID string) error {
	if _, err := s.pool.Exec(ctx, pgDelete, sessionID, artistID); err != nil {
		return fmt.Errorf("deleting timestamp: %w", err)
	}
	return nil
}

func (s *PostgresStore) ClearSession(ctx context.Context, sessionID string) error {
	if _, err := s.pool.Exec(ctx, pgClearSession, sessionID); err != nil {
		return fmt.Errorf("clearing session timestamps: %w", err)
	}
	return nil
}

var _ Store = (*PostgresStore)(nil)
