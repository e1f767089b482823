package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/justestif/go-artsy-companion/internal/artsy"
	"github.com/justestif/go-artsy-companion/internal/artsy/artsytest"
	"github.com/justestif/go-artsy-companion/internal/config"
	"github.com/justestif/go-artsy-companion/internal/session"
	"github.com/justestif/go-artsy-companion/internal/timestamps"
)

func testConfig(t *testing.T, baseURL string) config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.BaseURL = baseURL
	cfg.DataDir = t.TempDir()
	cfg.SearchDebounce = 0
	return cfg
}

func TestNewUsesSQLiteByDefault(t *testing.T) {
	backend := artsytest.New()
	defer backend.Close()
	ctx := context.Background()

	a, err := New(ctx, testConfig(t, backend.URL()), zaptest.NewLogger(t))
	require.NoError(t, err)

	assert.IsType(t, &timestamps.SQLiteStore{}, a.Store)
	_, err = os.Stat(a.Config.TimestampDBPath())
	require.NoError(t, err)

	require.NoError(t, a.Session.Start(ctx).Wait(ctx))
	assert.IsType(t, session.Unauthenticated{}, a.Session.State())
	require.NoError(t, a.Close())
}

func TestSessionSurvivesRestart(t *testing.T) {
	backend := artsytest.New()
	defer backend.Close()
	backend.AddArtist(artsy.Artist{ID: "a1", Name: "Monet"})
	backend.OmitTimestamps(true)
	ctx := context.Background()
	cfg := testConfig(t, backend.URL())

	first, err := New(ctx, cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	require.NoError(t, first.Session.Register(ctx, "Ada", "ada@example.com", "pw"))
	require.NoError(t, first.Session.AddFavorite(ctx, artsy.Artist{ID: "a1", Name: "Monet"}))
	require.NoError(t, first.Close())

	_, err = os.Stat(filepath.Join(cfg.DataDir, "cookies.json"))
	require.NoError(t, err)

	second, err := New(ctx, cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	defer second.Close()

	require.NoError(t, second.Session.Start(ctx).Wait(ctx))
	state, ok := second.Session.State().(session.Authenticated)
	require.True(t, ok, "persisted cookie restores the session")
	assert.Equal(t, "ada@example.com", state.Email)
	assert.True(t, second.Session.IsFavorite("a1"))
}

func TestNewMemoryStore(t *testing.T) {
	cfg := testConfig(t, "http://127.0.0.1:1")
	cfg.TimestampDSN = MemoryDSN

	a, err := New(context.Background(), cfg, nil)
	require.NoError(t, err)
	defer a.Close()

	assert.IsType(t, &timestamps.MemoryStore{}, a.Store)
	assert.Equal(t, a.Session, a.Core().Session)
}

func TestNewRejectsUnknownDSN(t *testing.T) {
	cfg := testConfig(t, "http://127.0.0.1:1")
	cfg.TimestampDSN = "mysql://localhost/db"

	_, err := New(context.Background(), cfg, nil)
	assert.ErrorIs(t, err, ErrUnsupportedDSN)
}
