package web

import (
	"github.com/justestif/go-artsy-companion/internal/artist"
	"github.com/justestif/go-artsy-companion/internal/artsy"
	"github.com/justestif/go-artsy-companion/internal/favorites"
	"github.com/justestif/go-artsy-companion/internal/search"
	"github.com/justestif/go-artsy-companion/internal/session"
)

// AuthView is the wire form of a session.AuthState.
type AuthView struct {
	State     string `json:"state"`
	SessionID string `json:"sessionId,omitempty"`
	Email     string `json:"email,omitempty"`
	AvatarURL string `json:"avatarUrl,omitempty"`
}

// FavoritesView lists favorites in server order and most recent first.
type FavoritesView struct {
	Entries []favorites.Entry `json:"entries"`
	Recent  []favorites.Entry `json:"recent"`
}

// SearchView is search.State plus the derived no-results flag.
type SearchView struct {
	search.State
	ShowNoResults bool `json:"showNoResults"`
}

// StateView is the full snapshot served by GET /state.
type StateView struct {
	Auth      AuthView      `json:"auth"`
	Favorites FavoritesView `json:"favorites"`
	Search    SearchView    `json:"search"`
}

// CategoriesView is the settled result of a categories load.
type CategoriesView struct {
	Status     string           `json:"status"`
	Categories []artsy.Category `json:"categories,omitempty"`
	Message    string           `json:"message,omitempty"`
}

type errorView struct {
	Error string `json:"error"`
}

func authView(s session.AuthState) AuthView {
	v := AuthView{State: session.StateName(s)}
	if a, ok := s.(session.Authenticated); ok {
		v.SessionID = a.SessionID
		v.Email = a.Email
		v.AvatarURL = a.AvatarURL
	}
	return v
}

func favoritesView(s favorites.Snapshot) FavoritesView {
	entries := s.Entries
	if entries == nil {
		entries = []favorites.Entry{}
	}
	return FavoritesView{Entries: entries, Recent: s.SortedByRecent()}
}

func searchView(s search.State) SearchView {
	return SearchView{State: s, ShowNoResults: s.ShowNoResults()}
}

func categoriesView(r artist.Result) CategoriesView {
	switch r := r.(type) {
	case artist.Success:
		cats := r.Categories
		if cats == nil {
			cats = []artsy.Category{}
		}
		return CategoriesView{Status: "success", Categories: cats}
	case artist.Failure:
		return CategoriesView{Status: "error", Message: r.Message}
	default:
		return CategoriesView{Status: "loading"}
	}
}
