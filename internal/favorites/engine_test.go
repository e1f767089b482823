package favorites

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/justestif/go-artsy-companion/internal/artsy"
	"github.com/justestif/go-artsy-companion/internal/timestamps"
)

type fakeAPI struct {
	mu        sync.Mutex
	favorites []artsy.Artist
	loadErr   error
	addErr    error
	removeErr error
	loads     int
	added     []string
	removed   []string

	// When set, Favorites signals started and waits for release.
	started chan struct{}
	release chan struct{}
}

func (f *fakeAPI) Favorites(ctx context.Context) ([]artsy.Artist, error) {
	f.mu.Lock()
	f.loads++
	started, release := f.started, f.release
	f.mu.Unlock()

	if started != nil {
		close(started)
		select {
		case <-release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.loadErr != nil {
		return nil, f.loadErr
	}
	return append([]artsy.Artist(nil), f.favorites...), nil
}

func (f *fakeAPI) AddFavorite(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.addErr != nil {
		return f.addErr
	}
	f.added = append(f.added, id)
	return nil
}

func (f *fakeAPI) RemoveFavorite(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.removeErr != nil {
		return f.removeErr
	}
	f.removed = append(f.removed, id)
	return nil
}

func strPtr(s string) *string { return &s }

func fixedClock(millis int64) func() time.Time {
	return func() time.Time { return time.UnixMilli(millis) }
}

func newTestEngine(api API, store timestamps.Store, nowMillis int64) *Engine {
	return NewEngine(api, store, WithClock(fixedClock(nowMillis)))
}

func assertConsistent(t *testing.T, s Snapshot) {
	t.Helper()
	assert.Len(t, s.ids, len(s.Entries))
	for _, e := range s.Entries {
		assert.True(t, s.Contains(e.ArtistID))
	}
}

func TestLoadUsesServerTimestamp(t *testing.T) {
	api := &fakeAPI{favorites: []artsy.Artist{
		{ID: "a1", Name: "Picasso", Timestamp: strPtr("2025-05-05T05:43:17.177Z")},
	}}
	store := timestamps.NewMemoryStore()
	engine := newTestEngine(api, store, 1)

	require.NoError(t, engine.Load(context.Background(), "session_1"))

	snap := engine.Snapshot()
	require.Len(t, snap.Entries, 1)
	assert.Equal(t, int64(1746423797177), snap.Entries[0].FavoritedAt)
	assert.Equal(t, 0, store.Len(), "server timestamps are not persisted locally")
	assertConsistent(t, snap)
}

func TestLoadFallsBackToStore(t *testing.T) {
	api := &fakeAPI{favorites: []artsy.Artist{
		{ID: "a1", Name: "Stored"},
		{ID: "a2", Name: "Fresh"},
		{ID: "a3", Name: "Garbled", Timestamp: strPtr("yesterday")},
	}}
	store := timestamps.NewMemoryStore(timestamps.WithClock(fixedClock(9_000)))
	require.NoError(t, store.Set(context.Background(), "session_1", "a1", 1_234))
	engine := newTestEngine(api, store, 9_000)

	require.NoError(t, engine.Load(context.Background(), "session_1"))

	snap := engine.Snapshot()
	require.Len(t, snap.Entries, 3)
	assert.Equal(t, int64(1_234), snap.Entries[0].FavoritedAt)
	assert.Equal(t, int64(9_000), snap.Entries[1].FavoritedAt)
	assert.Equal(t, int64(9_000), snap.Entries[2].FavoritedAt)

	got, err := store.Get(context.Background(), "session_1", "a2")
	require.NoError(t, err)
	assert.Equal(t, int64(9_000), got, "fallback value is persisted")
}

func TestLoadKeepsServerOrderAndDedupes(t *testing.T) {
	api := &fakeAPI{favorites: []artsy.Artist{
		{ID: "b", Name: "first b"},
		{ID: "a", Name: "a"},
		{ID: "b", Name: "second b"},
	}}
	engine := newTestEngine(api, timestamps.NewMemoryStore(), 1)

	require.NoError(t, engine.Load(context.Background(), "s"))

	snap := engine.Snapshot()
	require.Len(t, snap.Entries, 2)
	assert.Equal(t, "first b", snap.Entries[0].Artist.Name)
	assert.Equal(t, "a", snap.Entries[1].ArtistID)
	assertConsistent(t, snap)
}

func TestLoadWithoutSessionIsNoop(t *testing.T) {
	api := &fakeAPI{}
	engine := newTestEngine(api, timestamps.NewMemoryStore(), 1)

	require.NoError(t, engine.Load(context.Background(), ""))
	assert.Zero(t, api.loads)
}

func TestLoadFailureLeavesCollectionEmpty(t *testing.T) {
	api := &fakeAPI{favorites: []artsy.Artist{{ID: "a1"}}}
	engine := newTestEngine(api, timestamps.NewMemoryStore(), 1)
	require.NoError(t, engine.Load(context.Background(), "s"))
	require.Equal(t, 1, engine.Snapshot().Len())

	api.loadErr = errors.New("network down")
	err := engine.Load(context.Background(), "s")
	require.Error(t, err)
	assert.Equal(t, 0, engine.Snapshot().Len())
}

func TestLoadDroppedWhenClearedMeanwhile(t *testing.T) {
	api := &fakeAPI{
		favorites: []artsy.Artist{{ID: "a1"}},
		started:   make(chan struct{}),
		release:   make(chan struct{}),
	}
	engine := newTestEngine(api, timestamps.NewMemoryStore(), 1)

	done := make(chan error, 1)
	go func() { done <- engine.Load(context.Background(), "s") }()

	<-api.started
	engine.Clear()
	close(api.release)

	require.NoError(t, <-done)
	assert.Equal(t, 0, engine.Snapshot().Len())
}

func TestAddRemoveRoundTrip(t *testing.T) {
	api := &fakeAPI{}
	store := timestamps.NewMemoryStore()
	engine := newTestEngine(api, store, 5_000)
	ctx := context.Background()
	picasso := artsy.Artist{ID: "a1", Name: "Picasso"}
	kahlo := artsy.Artist{ID: "a2", Name: "Kahlo"}

	require.NoError(t, engine.Add(ctx, "s", picasso))
	require.NoError(t, engine.Add(ctx, "s", kahlo))
	require.NoError(t, engine.Add(ctx, "s", picasso))

	snap := engine.Snapshot()
	require.Len(t, snap.Entries, 2)
	assert.Equal(t, "a2", snap.Entries[0].ArtistID, "new favorites go first")
	assert.Equal(t, int64(5_000), snap.Entries[0].FavoritedAt)
	assert.True(t, engine.Contains("a1"))
	assertConsistent(t, snap)

	got, err := store.Get(ctx, "s", "a1")
	require.NoError(t, err)
	assert.Equal(t, int64(5_000), got)

	require.NoError(t, engine.Remove(ctx, "s", "a1"))
	assert.False(t, engine.Contains("a1"))
	assert.Equal(t, 1, store.Len(), "removed artist's timestamp is deleted")
	assert.Equal(t, []string{"a1"}, api.removed)
	assertConsistent(t, engine.Snapshot())
}

func TestMutationsRequireSession(t *testing.T) {
	api := &fakeAPI{}
	engine := newTestEngine(api, timestamps.NewMemoryStore(), 1)

	assert.ErrorIs(t, engine.Add(context.Background(), "", artsy.Artist{ID: "a1"}), ErrNoSession)
	assert.ErrorIs(t, engine.Remove(context.Background(), "", "a1"), ErrNoSession)
	assert.Empty(t, api.added)
	assert.Empty(t, api.removed)
}

func TestAddFailureKeepsCollection(t *testing.T) {
	remoteErr := &artsy.HTTPError{StatusCode: 500}
	api := &fakeAPI{addErr: remoteErr}
	store := timestamps.NewMemoryStore()
	engine := newTestEngine(api, store, 1)

	err := engine.Add(context.Background(), "s", artsy.Artist{ID: "a1"})
	require.ErrorAs(t, err, &remoteErr)
	assert.Equal(t, 0, engine.Snapshot().Len())
	assert.Equal(t, 1, store.Len(), "timestamp written before the remote call stays")
}

func TestRemoveFailureKeepsEntry(t *testing.T) {
	api := &fakeAPI{}
	engine := newTestEngine(api, timestamps.NewMemoryStore(), 1)
	require.NoError(t, engine.Add(context.Background(), "s", artsy.Artist{ID: "a1"}))

	api.removeErr = errors.New("boom")
	require.Error(t, engine.Remove(context.Background(), "s", "a1"))
	assert.True(t, engine.Contains("a1"))
}

func TestTouch(t *testing.T) {
	api := &fakeAPI{}
	store := timestamps.NewMemoryStore()
	now := int64(1_000)
	engine := NewEngine(api, store, WithClock(func() time.Time { return time.UnixMilli(now) }))
	ctx := context.Background()

	require.NoError(t, engine.Add(ctx, "s", artsy.Artist{ID: "a1"}))
	require.NoError(t, engine.Add(ctx, "s", artsy.Artist{ID: "a2"}))

	now = 2_000
	require.NoError(t, engine.Touch(ctx, "s", "a1"))
	require.NoError(t, engine.Touch(ctx, "s", "not-a-favorite"))

	sorted := engine.SortedByRecent()
	require.Len(t, sorted, 2)
	assert.Equal(t, "a1", sorted[0].ArtistID)
	assert.Equal(t, int64(2_000), sorted[0].FavoritedAt)

	got, err := store.Get(ctx, "s", "a1")
	require.NoError(t, err)
	assert.Equal(t, int64(2_000), got)
	assert.Equal(t, 2, store.Len(), "touching a non-favorite writes nothing")
}

func TestClearAndPurge(t *testing.T) {
	api := &fakeAPI{}
	store := timestamps.NewMemoryStore()
	engine := newTestEngine(api, store, 1)
	ctx := context.Background()

	require.NoError(t, engine.Add(ctx, "s1", artsy.Artist{ID: "a1"}))
	require.NoError(t, store.Set(ctx, "s2", "a1", 7))

	engine.Clear()
	require.NoError(t, engine.Purge(ctx, "s1"))

	assert.Equal(t, 0, engine.Snapshot().Len())
	assert.Equal(t, 1, store.Len(), "other sessions are untouched")
}

func TestSubscribeSeesChanges(t *testing.T) {
	engine := newTestEngine(&fakeAPI{}, timestamps.NewMemoryStore(), 1)

	var mu sync.Mutex
	var lens []int
	unsubscribe := engine.Subscribe(func(s Snapshot) {
		mu.Lock()
		lens = append(lens, s.Len())
		mu.Unlock()
	})
	defer unsubscribe()

	require.NoError(t, engine.Add(context.Background(), "s", artsy.Artist{ID: "a1"}))
	engine.Clear()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int{1, 0}, lens)
}

func TestParseServerTimestamp(t *testing.T) {
	tests := []struct {
		in      string
		want    int64
		wantErr bool
	}{
		{in: "2025-05-05T05:43:17.177Z", want: 1746423797177},
		{in: "1970-01-01T00:00:00.000Z", want: 0},
		{in: "2025-05-05", wantErr: true},
		{in: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseServerTimestamp(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrBadTimestamp)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
