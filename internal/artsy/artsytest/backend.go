// Package artsytest provides an in-memory fake of the art-discovery backend for tests.
package artsytest

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/justestif/go-artsy-companion/internal/artsy"
)

// CookieName is the session cookie the fake backend issues.
const CookieName = "artsy.sid"

// TimestampLayout is the format the backend uses for favorite timestamps.
const TimestampLayout = "2006-01-02T15:04:05.000Z"

type account struct {
	info     artsy.UserInfo
	password string
}

type favorite struct {
	artistID string
	at       time.Time
}

// Backend is a fake backend. Zero values are not usable; build with New.
type Backend struct {
	Server *httptest.Server

	mu        sync.Mutex
	catalog   map[string]artsy.Artist
	details   map[string]artsy.ArtistDetail
	artworks  map[string][]artsy.Artwork
	genes     map[string][]artsy.Category
	similar   map[string][]artsy.Artist
	accounts  map[string]*account
	sessions  map[string]string
	favorites map[string][]favorite

	omitTimestamps bool
	// failures maps "METHOD /route" to a forced status code.
	failures    map[string]int
	searchDelay time.Duration
	calls       map[string]int
	searchTerms []string
	cookieSeen  map[string]bool
}

// New starts a fake backend. Call Close when done.
func New() *Backend {
	b := &Backend{
		catalog:    make(map[string]artsy.Artist),
		details:    make(map[string]artsy.ArtistDetail),
		artworks:   make(map[string][]artsy.Artwork),
		genes:      make(map[string][]artsy.Category),
		similar:    make(map[string][]artsy.Artist),
		accounts:   make(map[string]*account),
		sessions:   make(map[string]string),
		favorites:  make(map[string][]favorite),
		failures:   make(map[string]int),
		calls:      make(map[string]int),
		cookieSeen: make(map[string]bool),
	}
	b.Server = httptest.NewServer(b.routes())
	return b
}

// URL returns the backend root URL.
func (b *Backend) URL() string { return b.Server.URL }

// Close shuts the server down.
func (b *Backend) Close() { b.Server.Close() }

// AddArtist registers an artist in the searchable catalog.
func (b *Backend) AddArtist(a artsy.Artist) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.catalog[a.ID] = a
	b.details[a.ID] = artsy.ArtistDetail{ArtistID: a.ID, Name: a.Name, Birthday: a.Birthday, Nationality: a.Nationality, ImageURL: a.ImageURL}
}

// SetArtworks sets the artworks returned for artistID.
func (b *Backend) SetArtworks(artistID string, works []artsy.Artwork) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.artworks[artistID] = works
}

// SetCategories sets the genes returned for artworkID.
func (b *Backend) SetCategories(artworkID string, cats []artsy.Category) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.genes[artworkID] = cats
}

// SetSimilar sets the similar artists returned for artistID.
func (b *Backend) SetSimilar(artistID string, artists []artsy.Artist) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.similar[artistID] = artists
}

// AddAccount registers an account that can log in.
func (b *Backend) AddAccount(info artsy.UserInfo, password string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.accounts[info.Email] = &account{info: info, password: password}
}

// SeedFavorite records a favorite for email at the given time.
func (b *Backend) SeedFavorite(email, artistID string, at time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.favorites[email] = append(b.favorites[email], favorite{artistID: artistID, at: at})
}

// OmitTimestamps controls whether favorites responses carry timestamps.
func (b *Backend) OmitTimestamps(omit bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.omitTimestamps = omit
}

// Fail forces route ("GET /favorites", "POST /auth/logout", ...) to answer
// with status. A zero status clears the failure.
func (b *Backend) Fail(route string, status int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if status == 0 {
		delete(b.failures, route)
		return
	}
	b.failures[route] = status
}

// SetSearchDelay delays search responses.
func (b *Backend) SetSearchDelay(d time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.searchDelay = d
}

// Calls returns how many times route was hit.
func (b *Backend) Calls(route string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls[route]
}

// SearchTerms returns every search term received, in order.
func (b *Backend) SearchTerms() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.searchTerms...)
}

// SawCookie reports whether route ever received a session cookie.
func (b *Backend) SawCookie(route string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.cookieSeen[route]
}

// FavoriteIDs returns the server-side favorites of email in order.
func (b *Backend) FavoriteIDs(email string) []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	ids := make([]string, 0, len(b.favorites[email]))
	for _, f := range b.favorites[email] {
		ids = append(ids, f.artistID)
	}
	return ids
}

func (b *Backend) routes() http.Handler {
	r := chi.NewRouter()
	r.Route("/api", func(r chi.Router) {
		r.Use(b.track)
		r.Get("/search", b.handleSearch)
		r.Get("/artist/similar/{id}", b.handleSimilar)
		r.Get("/artist/artworks/{id}", b.handleArtworks)
		r.Get("/artist/{id}", b.handleDetail)
		r.Get("/artwork/genes/{id}", b.handleGenes)
		r.Post("/auth/register", b.handleRegister)
		r.Post("/auth/login", b.handleLogin)
		r.Post("/auth/logout", b.handleLogout)
		r.Get("/auth/status", b.handleStatus)
		r.Delete("/auth/delete", b.handleDelete)
		r.Get("/favorites", b.handleFavorites)
		r.Post("/favorites", b.handleAddFavorite)
		r.Delete("/favorites/{id}", b.handleRemoveFavorite)
	})
	return r
}

// track counts calls, records cookie presence and applies forced failures.
func (b *Backend) track(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		route := routeKey(r)
		b.mu.Lock()
		b.calls[route]++
		if _, err := r.Cookie(CookieName); err == nil {
			b.cookieSeen[route] = true
		}
		status := b.failures[route]
		b.mu.Unlock()

		if status != 0 {
			writeJSON(w, status, map[string]string{"message": "forced failure"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// routeKey collapses path parameters so "/api/favorites/abc" becomes "DELETE /favorites/{id}".
func routeKey(r *http.Request) string {
	path := strings.TrimPrefix(r.URL.Path, "/api")
	parts := strings.Split(strings.Trim(path, "/"), "/")
	switch {
	case len(parts) == 2 && parts[0] == "favorites":
		path = "/favorites/{id}"
	case len(parts) == 2 && parts[0] == "artist":
		path = "/artist/{id}"
	case len(parts) == 3 && parts[0] == "artist":
		path = "/artist/" + parts[1] + "/{id}"
	case len(parts) == 3 && parts[0] == "artwork":
		path = "/artwork/genes/{id}"
	}
	return r.Method + " " + path
}

func (b *Backend) handleSearch(w http.ResponseWriter, r *http.Request) {
	term := r.URL.Query().Get("term")

	b.mu.Lock()
	b.searchTerms = append(b.searchTerms, term)
	delay := b.searchDelay
	var matches []artsy.Artist
	for _, a := range b.catalog {
		if strings.Contains(strings.ToLower(a.Name), strings.ToLower(term)) {
			matches = append(matches, a)
		}
	}
	b.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-r.Context().Done():
			return
		}
	}

	if len(matches) == 0 {
		writeJSON(w, http.StatusOK, map[string]any{"artists": nil})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"artists": matches})
}

func (b *Backend) handleDetail(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	d, ok := b.details[chi.URLParam(r, "id")]
	b.mu.Unlock()
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"message": "artist not found"})
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (b *Backend) handleArtworks(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	works := b.artworks[chi.URLParam(r, "id")]
	b.mu.Unlock()
	if works == nil {
		works = []artsy.Artwork{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"artworks": works})
}

func (b *Backend) handleGenes(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	cats := b.genes[chi.URLParam(r, "id")]
	b.mu.Unlock()
	if cats == nil {
		cats = []artsy.Category{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"genes": cats})
}

func (b *Backend) handleSimilar(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	artists := b.similar[chi.URLParam(r, "id")]
	b.mu.Unlock()
	if artists == nil {
		artists = []artsy.Artist{}
	}
	writeJSON(w, http.StatusOK, artists)
}

func (b *Backend) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req struct {
		FullName string `json:"fullname"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Email == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "invalid request"})
		return
	}

	b.mu.Lock()
	if _, exists := b.accounts[req.Email]; exists {
		b.mu.Unlock()
		writeJSON(w, http.StatusConflict, map[string]string{"message": "Email already exists"})
		return
	}
	info := artsy.UserInfo{FullName: req.FullName, Email: req.Email, ProfileImageURL: "https://gravatar.test/" + req.Email}
	b.accounts[req.Email] = &account{info: info, password: req.Password}
	b.mu.Unlock()

	b.startSession(w, req.Email)
	writeJSON(w, http.StatusCreated, artsy.UserResponse{Message: "registered", User: &info})
}

func (b *Backend) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "invalid request"})
		return
	}

	b.mu.Lock()
	acct, ok := b.accounts[req.Email]
	b.mu.Unlock()
	if !ok || acct.password != req.Password {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "Username or password is incorrect"})
		return
	}

	b.startSession(w, req.Email)
	info := acct.info
	writeJSON(w, http.StatusOK, artsy.UserResponse{Message: "logged in", User: &info})
}

func (b *Backend) handleLogout(w http.ResponseWriter, r *http.Request) {
	if c, err := r.Cookie(CookieName); err == nil {
		b.mu.Lock()
		delete(b.sessions, c.Value)
		b.mu.Unlock()
	}
	http.SetCookie(w, &http.Cookie{Name: CookieName, Value: "", Path: "/", MaxAge: -1})
	writeJSON(w, http.StatusOK, artsy.MessageResponse{Message: "logged out"})
}

func (b *Backend) handleStatus(w http.ResponseWriter, r *http.Request) {
	email, ok := b.sessionEmail(r)
	if !ok {
		writeJSON(w, http.StatusOK, artsy.StatusResponse{IsAuthenticated: false})
		return
	}
	b.mu.Lock()
	info := b.accounts[email].info
	b.mu.Unlock()
	writeJSON(w, http.StatusOK, artsy.StatusResponse{IsAuthenticated: true, User: &info})
}

func (b *Backend) handleDelete(w http.ResponseWriter, r *http.Request) {
	email, ok := b.sessionEmail(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "not authenticated"})
		return
	}
	b.mu.Lock()
	delete(b.accounts, email)
	delete(b.favorites, email)
	for token, e := range b.sessions {
		if e == email {
			delete(b.sessions, token)
		}
	}
	b.mu.Unlock()
	http.SetCookie(w, &http.Cookie{Name: CookieName, Value: "", Path: "/", MaxAge: -1})
	writeJSON(w, http.StatusOK, artsy.MessageResponse{Message: "account deleted"})
}

func (b *Backend) handleFavorites(w http.ResponseWriter, r *http.Request) {
	email, ok := b.sessionEmail(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "not authenticated"})
		return
	}

	b.mu.Lock()
	out := make([]artsy.Artist, 0, len(b.favorites[email]))
	for _, f := range b.favorites[email] {
		a, known := b.catalog[f.artistID]
		if !known {
			a = artsy.Artist{ID: f.artistID, Name: f.artistID}
		}
		if !b.omitTimestamps {
			ts := f.at.UTC().Format(TimestampLayout)
			a.Timestamp = &ts
		}
		out = append(out, a)
	}
	b.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{"favorites": out})
}

func (b *Backend) handleAddFavorite(w http.ResponseWriter, r *http.Request) {
	email, ok := b.sessionEmail(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "not authenticated"})
		return
	}
	var req struct {
		ArtistID string `json:"artistId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ArtistID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "artistId required"})
		return
	}

	b.mu.Lock()
	exists := false
	for _, f := range b.favorites[email] {
		if f.artistID == req.ArtistID {
			exists = true
			break
		}
	}
	if !exists {
		b.favorites[email] = append([]favorite{{artistID: req.ArtistID, at: time.Now()}}, b.favorites[email]...)
	}
	b.mu.Unlock()

	w.WriteHeader(http.StatusCreated)
}

func (b *Backend) handleRemoveFavorite(w http.ResponseWriter, r *http.Request) {
	email, ok := b.sessionEmail(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "not authenticated"})
		return
	}
	id := chi.URLParam(r, "id")

	b.mu.Lock()
	kept := b.favorites[email][:0]
	for _, f := range b.favorites[email] {
		if f.artistID != id {
			kept = append(kept, f)
		}
	}
	b.favorites[email] = kept
	b.mu.Unlock()

	w.WriteHeader(http.StatusNoContent)
}

func (b *Backend) startSession(w http.ResponseWriter, email string) {
	token := newToken()
	b.mu.Lock()
	b.sessions[token] = email
	b.mu.Unlock()
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Expires:  time.Now().Add(24 * time.Hour),
	})
}

func (b *Backend) sessionEmail(r *http.Request) (string, bool) {
	c, err := r.Cookie(CookieName)
	if err != nil {
		return "", false
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	email, ok := b.sessions[c.Value]
	if !ok {
		return "", false
	}
	if _, exists := b.accounts[email]; !exists {
		return "", false
	}
	return email, true
}

func newToken() string {
	buf := make([]byte, 16)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
