package timestamps

import (
	"context"
	"sync"
)

type key struct {
	session string
	artist  string
}

// MemoryStore keeps entries in a map. Nothing survives a restart.
type MemoryStore struct {
	opts options

	mu      sync.Mutex
	entries map[key]int64
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore(opts ...Option) *MemoryStore {
	return &MemoryStore{
		opts:    buildOptions(opts),
		entries: make(map[key]int64),
	}
}

func (s *MemoryStore) Get(_ context.Context, sessionID, artistID string) (int64, error) {
	if err := checkKey(sessionID, artistID); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	k := key{sessionID, artistID}
	if v, ok := s.entries[k]; ok {
		return v, nil
	}
	v := s.opts.now().UnixMilli()
	s.entries[k] = v
	return v, nil
}

func (s *MemoryStore) Set(_ context.Context, sessionID, artistID string, millis int64) error {
	if err := checkKey(sessionID, artistID); err != nil {
		return err
	}
	s.mu.Lock()
	s.entries[key{sessionID, artistID}] = millis
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, sessionID, artistID string) error {
	s.mu.Lock()
	delete(s.entries, key{sessionID, artistID})
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) ClearSession(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k := range s.entries {
		if k.session == sessionID {
			delete(s.entries, k)
		}
	}
	return nil
}

// Len returns the number of entries across all sessions.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

var _ Store = (*MemoryStore)(nil)
