// Package app wires configuration, storage and the companion's components
// into one running instance.
package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/justestif/go-artsy-companion/internal/artist"
	"github.com/justestif/go-artsy-companion/internal/artsy"
	"github.com/justestif/go-artsy-companion/internal/config"
	"github.com/justestif/go-artsy-companion/internal/favorites"
	"github.com/justestif/go-artsy-companion/internal/httpsession"
	"github.com/justestif/go-artsy-companion/internal/logging"
	"github.com/justestif/go-artsy-companion/internal/search"
	"github.com/justestif/go-artsy-companion/internal/session"
	"github.com/justestif/go-artsy-companion/internal/timestamps"
	"github.com/justestif/go-artsy-companion/internal/web"
)

// MemoryDSN selects the in-memory timestamp store.
const MemoryDSN = "memory"

// ErrUnsupportedDSN is returned for timestamp DSNs with an unknown scheme.
var ErrUnsupportedDSN = errors.New("unsupported timestamp DSN")

// App holds one wired instance of the companion.
type App struct {
	Config  config.Config
	Logger  *zap.Logger
	Cookies *httpsession.Layer
	Store   timestamps.Store
	Session *session.Manager
	Search  *search.Coordinator
	Artists *artist.Loader

	closeStore func() error
}

// New builds the components described by cfg. The auth probe is not started;
// call App.Session.Start when the process wants one.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	logger = logging.OrNop(logger)

	store, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	layer := httpsession.New(
		httpsession.NewFileCookieStore(cfg.CookiePath()),
		httpsession.WithLogger(logger),
		httpsession.WithTimeout(cfg.RequestTimeout),
	)
	authHTTP, err := layer.NewAuthenticatedClient()
	if err != nil {
		_ = closeStore()
		return nil, fmt.Errorf("creating authenticated client: %w", err)
	}

	authed := artsy.NewClient(authHTTP, cfg.BaseURL, artsy.WithLogger(logger))
	stateless := artsy.NewClient(layer.NewStatelessClient(), cfg.BaseURL, artsy.WithLogger(logger))

	engine := favorites.NewEngine(authed, store, favorites.WithLogger(logger))

	return &App{
		Config:  cfg,
		Logger:  logger,
		Cookies: layer,
		Store:   store,
		Session: session.NewManager(authed, layer, engine, session.WithLogger(logger)),
		Search: search.NewCoordinator(stateless,
			search.WithLogger(logger),
			search.WithDebounce(cfg.SearchDebounce),
			search.WithMinLength(cfg.SearchMinLength),
		),
		Artists:    artist.NewLoader(stateless, logger),
		closeStore: closeStore,
	}, nil
}

// Core returns the components the UI bridge drives.
func (a *App) Core() web.Core {
	return web.Core{Session: a.Session, Search: a.Search, Artists: a.Artists}
}

// Close stops the live search and releases the timestamp store.
func (a *App) Close() error {
	a.Search.Close()
	if err := a.closeStore(); err != nil {
		return fmt.Errorf("closing timestamp store: %w", err)
	}
	return nil
}

func openStore(ctx context.Context, cfg config.Config, logger *zap.Logger) (timestamps.Store, func() error, error) {
	dsn := strings.TrimSpace(cfg.TimestampDSN)
	switch {
	case dsn == "":
		path := cfg.TimestampDBPath()
		store, err := timestamps.OpenSQLite(ctx, path)
		if err != nil {
			return nil, nil, fmt.Errorf("opening timestamp store: %w", err)
		}
		logger.Debug("timestamp store", zap.String("backend", "sqlite"), zap.String("path", path))
		return store, store.Close, nil
	case dsn == MemoryDSN:
		logger.Debug("timestamp store", zap.String("backend", "memory"))
		return timestamps.NewMemoryStore(), func() error { return nil }, nil
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		store, err := timestamps.OpenPostgres(ctx, dsn)
		if err != nil {
			return nil, nil, fmt.Errorf("opening timestamp store: %w", err)
		}
		logger.Debug("timestamp store", zap.String("backend", "postgres"))
		return store, store.Close, nil
	default:
		return nil, nil, fmt.Errorf("%w: %q", ErrUnsupportedDSN, dsn)
	}
}
