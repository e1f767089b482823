package favorites

import (
	"sort"

	"github.com/justestif/go-artsy-companion/internal/artsy"
)

// Entry is one favorite artist and when it was favorited, in epoch millis.
type Entry struct {
	Artist      artsy.Artist `json:"artist"`
	ArtistID    string       `json:"artistId"`
	FavoritedAt int64        `json:"favoritedAt"`
}

// Snapshot is an immutable view of the favorites collection. The entry list
// and the id set always hold the same artists.
type Snapshot struct {
	Entries []Entry `json:"entries"`

	ids map[string]struct{}
	// gen changes on every Clear so stale results can be recognized.
	gen uint64
}

func newSnapshot(entries []Entry, gen uint64) Snapshot {
	ids := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		ids[e.ArtistID] = struct{}{}
	}
	if entries == nil {
		entries = []Entry{}
	}
	return Snapshot{Entries: entries, ids: ids, gen: gen}
}

// Contains reports whether artistID is a favorite.
func (s Snapshot) Contains(artistID string) bool {
	_, ok := s.ids[artistID]
	return ok
}

// Len returns the number of favorites.
func (s Snapshot) Len() int {
	return len(s.Entries)
}

// Artists returns the favorite artists in collection order.
func (s Snapshot) Artists() []artsy.Artist {
	out := make([]artsy.Artist, len(s.Entries))
	for i, e := range s.Entries {
		out[i] = e.Artist
	}
	return out
}

// SortedByRecent returns the entries ordered by FavoritedAt, newest first.
// Ties keep collection order.
func (s Snapshot) SortedByRecent() []Entry {
	out := make([]Entry, len(s.Entries))
	copy(out, s.Entries)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].FavoritedAt > out[j].FavoritedAt
	})
	return out
}

func (s Snapshot) withEntries(entries []Entry) Snapshot {
	return newSnapshot(entries, s.gen)
}
