// Package artist loads the data shown on an artist's page.
package artist

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/justestif/go-artsy-companion/internal/artsy"
	"github.com/justestif/go-artsy-companion/internal/logging"
)

// API is the subset of the backend client the loader calls.
type API interface {
	ArtistDetail(ctx context.Context, artistID string) (*artsy.ArtistDetail, error)
	ArtistArtworks(ctx context.Context, artistID string) ([]artsy.Artwork, error)
	ArtworkCategories(ctx context.Context, artworkID string) ([]artsy.Category, error)
	SimilarArtists(ctx context.Context, artistID string) ([]artsy.Artist, error)
}

// Detail is an artist with their artworks.
type Detail struct {
	Artist   *artsy.ArtistDetail `json:"artist"`
	Artworks []artsy.Artwork     `json:"artworks"`
}

// Result is one step of a categories load: Loading, Success or Failure.
type Result interface {
	result()
}

// Loading is emitted before the request is sent.
type Loading struct{}

// Success carries the loaded categories.
type Success struct {
	Categories []artsy.Category
}

// Failure carries a user-facing message.
type Failure struct {
	Message string
}

func (Loading) result() {}
func (Success) result() {}
func (Failure) result() {}

// Loader fetches artist pages.
type Loader struct {
	api    API
	logger *zap.Logger
}

// NewLoader creates a Loader. A nil logger disables logging.
func NewLoader(api API, logger *zap.Logger) *Loader {
	return &Loader{api: api, logger: logging.OrNop(logger).Named("artist")}
}

// Load fetches the artist and their artworks in parallel. Failing to load
// artworks yields an empty list; failing to load the artist fails the call.
func (l *Loader) Load(ctx context.Context, artistID string) (*Detail, error) {
	var (
		detail   *artsy.ArtistDetail
		artworks []artsy.Artwork
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		d, err := l.api.ArtistDetail(gctx, artistID)
		if err != nil {
			return fmt.Errorf("loading artist details: %w", err)
		}
		detail = d
		return nil
	})
	g.Go(func() error {
		works, err := l.api.ArtistArtworks(gctx, artistID)
		if err != nil {
			if gctx.Err() == nil {
				l.logger.Warn("artworks unavailable", zap.String("artist", artistID), zap.Error(err))
			}
			works = []artsy.Artwork{}
		}
		artworks = works
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return &Detail{Artist: detail, Artworks: artworks}, nil
}

// Similar returns artists related to artistID, or an empty list when they
// cannot be loaded.
func (l *Loader) Similar(ctx context.Context, artistID string) []artsy.Artist {
	artists, err := l.api.SimilarArtists(ctx, artistID)
	if err != nil {
		if ctx.Err() == nil {
			l.logger.Error("loading similar artists", zap.String("artist", artistID), zap.Error(err))
		}
		return []artsy.Artist{}
	}
	return artists
}

// Categories emits Loading followed by Success or Failure, then closes the
// channel. The channel is buffered so an abandoned receiver leaks nothing.
func (l *Loader) Categories(ctx context.Context, artworkID string) <-chan Result {
	out := make(chan Result, 2)
	out <- Loading{}
	go func() {
		defer close(out)
		cats, err := l.api.ArtworkCategories(ctx, artworkID)
		if err != nil {
			if ctx.Err() == nil {
				l.logger.Error("loading categories", zap.String("artwork", artworkID), zap.Error(err))
			} else {
				l.logger.Debug("categories load cancelled", zap.String("artwork", artworkID))
			}
			out <- Failure{Message: err.Error()}
			return
		}
		out <- Success{Categories: cats}
	}()
	return out
}
