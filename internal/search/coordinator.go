// Package search runs debounced, single-flight artist searches and publishes
// their state.
package search

import (
	"context"
	"strings"
	"sync"
	"time"
	"unicode/utf16"

	"go.uber.org/zap"

	"github.com/justestif/go-artsy-companion/internal/artsy"
	"github.com/justestif/go-artsy-companion/internal/logging"
	"github.com/justestif/go-artsy-companion/internal/observe"
	"github.com/justestif/go-artsy-companion/internal/task"
)

// Defaults applied when no option overrides them.
const (
	DefaultDebounce  = 500 * time.Millisecond
	DefaultMinLength = 3
)

// Searcher runs one search request.
type Searcher interface {
	Search(ctx context.Context, term string) ([]artsy.Artist, error)
}

// State is what the UI renders for search.
type State struct {
	// Query is the text as typed, untrimmed.
	Query   string         `json:"query"`
	Results []artsy.Artist `json:"results"`
	Loading bool           `json:"loading"`
	Error   string         `json:"error,omitempty"`
	// Pending is true while a debounce wait is outstanding.
	Pending bool `json:"pending"`
	// Searched is the trimmed query the current results belong to.
	Searched   string `json:"searched,omitempty"`
	Generation uint64 `json:"generation"`
}

// ShowNoResults reports whether a search finished for a real query without
// error and found nothing.
func (s State) ShowNoResults() bool {
	return s.Searched != "" && !s.Pending && !s.Loading && s.Error == "" && len(s.Results) == 0
}

// Coordinator owns the search state. At most one search task is live.
type Coordinator struct {
	api       Searcher
	logger    *zap.Logger
	debounce  time.Duration
	minLength int

	mu      sync.Mutex
	current *task.Handle
	gen     uint64
	closed  bool

	state *observe.Value[State]
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Coordinator) {
		c.logger = logging.OrNop(l)
	}
}

// WithDebounce sets how long a query must stay unchanged before it is sent.
func WithDebounce(d time.Duration) Option {
	return func(c *Coordinator) {
		if d >= 0 {
			c.debounce = d
		}
	}
}

// WithMinLength sets the shortest trimmed query that is sent, counted in
// UTF-16 code units so a character outside the BMP counts twice.
func WithMinLength(n int) Option {
	return func(c *Coordinator) {
		if n > 0 {
			c.minLength = n
		}
	}
}

// NewCoordinator creates a Coordinator with empty state.
func NewCoordinator(api Searcher, opts ...Option) *Coordinator {
	c := &Coordinator{
		api:       api,
		logger:    zap.NewNop(),
		debounce:  DefaultDebounce,
		minLength: DefaultMinLength,
		state:     observe.NewValue(State{Results: []artsy.Artist{}}),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.Named("search")
	return c
}

// State returns the current search state.
func (c *Coordinator) State() State {
	return c.state.Get()
}

// Subscribe registers fn for every state change. fn must not call Search.
func (c *Coordinator) Subscribe(fn func(State)) (unsubscribe func()) {
	return c.state.Subscribe(fn)
}

// UpdateQuery records the displayed text without searching.
func (c *Coordinator) UpdateQuery(text string) {
	c.state.Update(func(s State) State {
		s.Query = text
		return s
	})
}

// Search supersedes any previous search with query. Queries shorter than the
// minimum length after trimming clear the results immediately and return a
// nil handle. Otherwise the request is sent after the debounce delay unless
// another Search arrives first.
func (c *Coordinator) Search(query string) *task.Handle {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}

	c.gen++
	gen := c.gen
	prev := c.current
	c.current = nil

	trimmed := strings.TrimSpace(query)
	length := queryLength(trimmed)
	if trimmed == "" || length < c.minLength {
		c.state.Update(func(s State) State {
			s.Results = []artsy.Artist{}
			s.Error = ""
			s.Loading = false
			s.Pending = false
			s.Searched = ""
			s.Generation = gen
			return s
		})
		prev.Cancel()
		c.logger.Debug("query below minimum length", zap.Int("length", length))
		return nil
	}

	c.state.Update(func(s State) State {
		s.Pending = true
		s.Loading = false
		s.Generation = gen
		return s
	})
	prev.Cancel()

	h := task.Go(context.Background(), func(ctx context.Context) error {
		return c.run(ctx, gen, trimmed)
	})
	c.current = h
	return h
}

// Close cancels the live search and waits for it to return.
func (c *Coordinator) Close() {
	c.mu.Lock()
	c.closed = true
	h := c.current
	c.current = nil
	c.mu.Unlock()

	h.Cancel()
	<-h.Done()
}

func (c *Coordinator) run(ctx context.Context, gen uint64, term string) error {
	timer := time.NewTimer(c.debounce)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
	}

	if !c.apply(gen, func(s State) State {
		s.Loading = true
		s.Pending = false
		s.Error = ""
		return s
	}) {
		return nil
	}

	artists, err := c.api.Search(ctx, term)
	if ctx.Err() != nil {
		c.logger.Debug("search cancelled", zap.String("term", term))
		return ctx.Err()
	}
	if err != nil {
		c.logger.Error("searching", zap.String("term", term), zap.Error(err))
		c.apply(gen, func(s State) State {
			s.Results = []artsy.Artist{}
			s.Error = "Failed to search: " + err.Error()
			s.Loading = false
			s.Searched = term
			return s
		})
		return err
	}

	if artists == nil {
		artists = []artsy.Artist{}
	}
	c.apply(gen, func(s State) State {
		s.Results = artists
		s.Error = ""
		s.Loading = false
		s.Searched = term
		return s
	})
	c.logger.Debug("search finished", zap.String("term", term), zap.Int("results", len(artists)))
	return nil
}

// apply runs fn only if gen is still the newest search.
func (c *Coordinator) apply(gen uint64, fn func(State) State) bool {
	applied := false
	c.state.Update(func(s State) State {
		if s.Generation != gen {
			return s
		}
		applied = true
		return fn(s)
	})
	return applied
}

// queryLength counts UTF-16 code units, the unit the search box measures in.
func queryLength(s string) int {
	return len(utf16.Encode([]rune(s)))
}
