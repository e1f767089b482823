package web_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/justestif/go-artsy-companion/internal/artist"
	"github.com/justestif/go-artsy-companion/internal/artsy"
	"github.com/justestif/go-artsy-companion/internal/artsy/artsytest"
	"github.com/justestif/go-artsy-companion/internal/favorites"
	"github.com/justestif/go-artsy-companion/internal/httpsession"
	"github.com/justestif/go-artsy-companion/internal/search"
	"github.com/justestif/go-artsy-companion/internal/session"
	"github.com/justestif/go-artsy-companion/internal/timestamps"
	"github.com/justestif/go-artsy-companion/internal/web"
)

type bridge struct {
	backend *artsytest.Backend
	handler http.Handler
}

func newBridge(t *testing.T) *bridge {
	t.Helper()
	backend := artsytest.New()
	t.Cleanup(backend.Close)

	logger := zaptest.NewLogger(t)
	layer := httpsession.New(
		httpsession.NewFileCookieStore(filepath.Join(t.TempDir(), "cookies.json")),
		httpsession.WithLogger(logger),
	)
	hc, err := layer.NewAuthenticatedClient()
	require.NoError(t, err)
	authed := artsy.NewClient(hc, backend.URL(), artsy.WithLogger(logger))
	stateless := artsy.NewClient(layer.NewStatelessClient(), backend.URL(), artsy.WithLogger(logger))

	engine := favorites.NewEngine(authed, timestamps.NewMemoryStore(), favorites.WithLogger(logger))
	manager := session.NewManager(authed, layer, engine, session.WithLogger(logger))
	coordinator := search.NewCoordinator(stateless, search.WithDebounce(0), search.WithLogger(logger))
	t.Cleanup(coordinator.Close)

	srv := web.NewServer(web.ServerConfig{Logger: logger}, web.Core{
		Session: manager,
		Search:  coordinator,
		Artists: artist.NewLoader(stateless, logger),
	})
	return &bridge{backend: backend, handler: srv.Handler()}
}

func (b *bridge) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	b.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&v), rec.Body.String())
	return v
}

func TestStateBeforeAuthCheck(t *testing.T) {
	b := newBridge(t)

	rec := b.do(t, http.MethodGet, "/state", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	state := decode[web.StateView](t, rec)
	assert.Equal(t, "loading", state.Auth.State)
	assert.Empty(t, state.Auth.SessionID)
	assert.NotNil(t, state.Favorites.Entries)
	assert.False(t, state.Search.ShowNoResults)
}

func TestCheckAuthWithoutSession(t *testing.T) {
	b := newBridge(t)

	rec := b.do(t, http.MethodPost, "/intents/check-auth", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "unauthenticated", decode[web.AuthView](t, rec).State)
}

func TestFavoritesFlow(t *testing.T) {
	b := newBridge(t)
	b.backend.AddArtist(artsy.Artist{ID: "a1", Name: "Monet"})

	rec := b.do(t, http.MethodPost, "/intents/register", map[string]string{
		"fullname": "Ada", "email": "ada@example.com", "password": "pw",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	auth := decode[web.AuthView](t, rec)
	assert.Equal(t, "authenticated", auth.State)
	assert.NotEmpty(t, auth.SessionID)
	assert.Equal(t, "ada@example.com", auth.Email)

	rec = b.do(t, http.MethodPost, "/intents/favorites", map[string]any{
		"artist": artsy.Artist{ID: "a1", Name: "Monet"},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	favs := decode[web.FavoritesView](t, rec)
	require.Len(t, favs.Entries, 1)
	assert.Equal(t, "a1", favs.Entries[0].ArtistID)

	rec = b.do(t, http.MethodPost, "/intents/artists/a1/viewed", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = b.do(t, http.MethodPost, "/intents/favorites/load", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[web.FavoritesView](t, rec).Entries, 1)

	rec = b.do(t, http.MethodDelete, "/intents/favorites/a1", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, b.backend.FavoriteIDs("ada@example.com"))

	rec = b.do(t, http.MethodPost, "/intents/logout", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "unauthenticated", decode[web.AuthView](t, rec).State)

	state := decode[web.StateView](t, b.do(t, http.MethodGet, "/state", nil))
	assert.Empty(t, state.Auth.SessionID)
	assert.Empty(t, state.Favorites.Entries)
}

func TestIntentErrors(t *testing.T) {
	b := newBridge(t)
	b.backend.AddAccount(artsy.UserInfo{FullName: "Ada", Email: "ada@example.com"}, "secret")

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		want   int
	}{
		{"bad password", http.MethodPost, "/intents/login", map[string]string{"email": "ada@example.com", "password": "nope"}, http.StatusUnauthorized},
		{"missing password", http.MethodPost, "/intents/login", map[string]string{"email": "ada@example.com"}, http.StatusBadRequest},
		{"duplicate email", http.MethodPost, "/intents/register", map[string]string{"fullname": "Ada", "email": "ada@example.com", "password": "pw"}, http.StatusConflict},
		{"favorite without session", http.MethodPost, "/intents/favorites", map[string]any{"artist": map[string]string{"artistId": "a1"}}, http.StatusUnauthorized},
		{"favorite without id", http.MethodPost, "/intents/favorites", map[string]any{"artist": map[string]string{}}, http.StatusBadRequest},
		{"remove without session", http.MethodDelete, "/intents/favorites/a1", nil, http.StatusUnauthorized},
		{"unknown artist", http.MethodGet, "/artists/missing", nil, http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := b.do(t, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
			if rec.Code != http.StatusNoContent {
				assert.Contains(t, rec.Body.String(), `"error"`)
			}
		})
	}
}

func TestMalformedBody(t *testing.T) {
	b := newBridge(t)

	req := httptest.NewRequest(http.MethodPost, "/intents/search", bytes.NewBufferString("{"))
	rec := httptest.NewRecorder()
	b.handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSearchIntent(t *testing.T) {
	b := newBridge(t)
	b.backend.AddArtist(artsy.Artist{ID: "a1", Name: "Claude Monet"})

	rec := b.do(t, http.MethodPost, "/intents/search", map[string]string{"query": "monet"})
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, "monet", decode[web.SearchView](t, rec).Query)

	require.Eventually(t, func() bool {
		state := decode[web.StateView](t, b.do(t, http.MethodGet, "/state", nil))
		return len(state.Search.Results) == 1
	}, 5*time.Second, 10*time.Millisecond)

	rec = b.do(t, http.MethodPost, "/intents/search", map[string]string{"query": "zzzz"})
	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Eventually(t, func() bool {
		return decode[web.StateView](t, b.do(t, http.MethodGet, "/state", nil)).Search.ShowNoResults
	}, 5*time.Second, 10*time.Millisecond)
}

func TestQueryIntentDoesNotSearch(t *testing.T) {
	b := newBridge(t)

	rec := b.do(t, http.MethodPost, "/intents/query", map[string]string{"text": "mon"})
	require.Equal(t, http.StatusNoContent, rec.Code)

	state := decode[web.StateView](t, b.do(t, http.MethodGet, "/state", nil))
	assert.Equal(t, "mon", state.Search.Query)
	assert.Empty(t, b.backend.SearchTerms())
}

func TestArtistRoutes(t *testing.T) {
	b := newBridge(t)
	b.backend.AddArtist(artsy.Artist{ID: "a1", Name: "Frida Kahlo"})
	b.backend.SetArtworks("a1", []artsy.Artwork{{ID: "w1", Title: "The Two Fridas"}})
	b.backend.SetSimilar("a1", []artsy.Artist{{ID: "a2", Name: "Diego Rivera"}})
	b.backend.SetCategories("w1", []artsy.Category{{Name: "Surrealism"}})

	rec := b.do(t, http.MethodGet, "/artists/a1", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	detail := decode[artist.Detail](t, rec)
	assert.Equal(t, "Frida Kahlo", detail.Artist.Name)
	require.Len(t, detail.Artworks, 1)

	rec = b.do(t, http.MethodGet, "/artists/a1/similar", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]artsy.Artist](t, rec), 1)

	rec = b.do(t, http.MethodGet, "/artworks/w1/categories", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	cats := decode[web.CategoriesView](t, rec)
	assert.Equal(t, "success", cats.Status)
	assert.Equal(t, []artsy.Category{{Name: "Surrealism"}}, cats.Categories)

	b.backend.Fail("GET /artwork/genes/{id}", http.StatusInternalServerError)
	rec = b.do(t, http.MethodGet, "/artworks/w1/categories", nil)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, "error", decode[web.CategoriesView](t, rec).Status)
}
