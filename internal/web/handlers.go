package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/justestif/go-artsy-companion/internal/artsy"
	"github.com/justestif/go-artsy-companion/internal/favorites"
	"github.com/justestif/go-artsy-companion/internal/session"
)

const maxBodyBytes = 1 << 20

// Handlers contains the bridge's HTTP handlers.
type Handlers struct {
	core   Core
	logger *zap.Logger
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(core Core, logger *zap.Logger) *Handlers {
	return &Handlers{core: core, logger: logger}
}

type searchRequest struct {
	Query string `json:"query"`
}

type queryRequest struct {
	Text string `json:"text"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type registerRequest struct {
	FullName string `json:"fullname"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type favoriteRequest struct {
	Artist artsy.Artist `json:"artist"`
}

// State serves the current auth, favorites and search snapshots (GET /state).
func (h *Handlers) State(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.snapshot())
}

// Search supersedes the live search with a new query (POST /intents/search).
func (h *Handlers) Search(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if !h.decode(w, r, &req) {
		return
	}
	h.core.Search.UpdateQuery(req.Query)
	h.core.Search.Search(req.Query)
	writeJSON(w, http.StatusAccepted, searchView(h.core.Search.State()))
}

// Query records the displayed search text (POST /intents/query).
func (h *Handlers) Query(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if !h.decode(w, r, &req) {
		return
	}
	h.core.Search.UpdateQuery(req.Text)
	w.WriteHeader(http.StatusNoContent)
}

// Login handles POST /intents/login.
func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !h.decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "email and password are required")
		return
	}
	if err := h.core.Session.Login(r.Context(), req.Email, req.Password); err != nil {
		h.fail(w, "logging in", err)
		return
	}
	writeJSON(w, http.StatusOK, authView(h.core.Session.State()))
}

// Register handles POST /intents/register.
func (h *Handlers) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !h.decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.FullName) == "" || strings.TrimSpace(req.Email) == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "fullname, email and password are required")
		return
	}
	if err := h.core.Session.Register(r.Context(), req.FullName, req.Email, req.Password); err != nil {
		h.fail(w, "registering", err)
		return
	}
	writeJSON(w, http.StatusCreated, authView(h.core.Session.State()))
}

// Logout handles POST /intents/logout. Local state is always torn down.
func (h *Handlers) Logout(w http.ResponseWriter, r *http.Request) {
	h.core.Session.Logout(r.Context())
	writeJSON(w, http.StatusOK, authView(h.core.Session.State()))
}

// DeleteAccount handles POST /intents/delete-account.
func (h *Handlers) DeleteAccount(w http.ResponseWriter, r *http.Request) {
	h.core.Session.DeleteAccount(r.Context())
	writeJSON(w, http.StatusOK, authView(h.core.Session.State()))
}

// CheckAuth re-validates the session with the backend (POST /intents/check-auth).
// A failed check still answers with the resulting state, which is unauthenticated.
func (h *Handlers) CheckAuth(w http.ResponseWriter, r *http.Request) {
	if err := h.core.Session.CheckAuthStatus(r.Context()); err != nil {
		if errors.Is(err, context.Canceled) {
			h.fail(w, "checking auth status", err)
			return
		}
		h.logger.Warn("auth check failed", zap.Error(err))
	}
	writeJSON(w, http.StatusOK, authView(h.core.Session.State()))
}

// LoadFavorites refetches favorites (POST /intents/favorites/load).
func (h *Handlers) LoadFavorites(w http.ResponseWriter, r *http.Request) {
	if err := h.core.Session.LoadFavorites(r.Context()); err != nil {
		h.fail(w, "loading favorites", err)
		return
	}
	writeJSON(w, http.StatusOK, favoritesView(h.core.Session.Favorites().Snapshot()))
}

// AddFavorite handles POST /intents/favorites.
func (h *Handlers) AddFavorite(w http.ResponseWriter, r *http.Request) {
	var req favoriteRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.Artist.ID == "" {
		writeError(w, http.StatusBadRequest, "artist.artistId is required")
		return
	}
	if err := h.core.Session.AddFavorite(r.Context(), req.Artist); err != nil {
		h.fail(w, "adding favorite", err)
		return
	}
	writeJSON(w, http.StatusCreated, favoritesView(h.core.Session.Favorites().Snapshot()))
}

// RemoveFavorite handles DELETE /intents/favorites/{id}.
func (h *Handlers) RemoveFavorite(w http.ResponseWriter, r *http.Request) {
	if err := h.core.Session.RemoveFavorite(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.fail(w, "removing favorite", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ArtistViewed refreshes a favorite's timestamp (POST /intents/artists/{id}/viewed).
func (h *Handlers) ArtistViewed(w http.ResponseWriter, r *http.Request) {
	if err := h.core.Session.UpdateArtistTimestamp(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.fail(w, "updating artist timestamp", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Artist serves an artist with their artworks (GET /artists/{id}).
func (h *Handlers) Artist(w http.ResponseWriter, r *http.Request) {
	detail, err := h.core.Artists.Load(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, "loading artist", err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

// SimilarArtists handles GET /artists/{id}/similar.
func (h *Handlers) SimilarArtists(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.core.Artists.Similar(r.Context(), chi.URLParam(r, "id")))
}

// Categories waits for the categories load to settle (GET /artworks/{id}/categories).
func (h *Handlers) Categories(w http.ResponseWriter, r *http.Request) {
	var last CategoriesView
	for res := range h.core.Artists.Categories(r.Context(), chi.URLParam(r, "id")) {
		last = categoriesView(res)
	}
	status := http.StatusOK
	if last.Status == "error" {
		status = http.StatusBadGateway
	}
	writeJSON(w, status, last)
}

func (h *Handlers) snapshot() StateView {
	return StateView{
		Auth:      authView(h.core.Session.State()),
		Favorites: favoritesView(h.core.Session.Favorites().Snapshot()),
		Search:    searchView(h.core.Search.State()),
	}
}

func (h *Handlers) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return false
	}
	return true
}

// fail maps err to a status and writes it. Cancellation is logged at debug.
func (h *Handlers) fail(w http.ResponseWriter, action string, err error) {
	status := statusFor(err)
	if errors.Is(err, context.Canceled) {
		h.logger.Debug(action+" cancelled", zap.Error(err))
	} else {
		h.logger.Warn(action, zap.Int("status", status), zap.Error(err))
	}
	writeError(w, status, err.Error())
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, session.ErrInvalidCredentials), errors.Is(err, favorites.ErrNoSession):
		return http.StatusUnauthorized
	case errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	if code := artsy.StatusCode(err); code >= 400 && code < 500 {
		return code
	}
	return http.StatusBadGateway
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorView{Error: msg})
}
