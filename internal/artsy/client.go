// Package artsy is a client for the art-discovery backend's JSON API.
package artsy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/justestif/go-artsy-companion/internal/logging"
)

const (
	apiPrefix    = "/api"
	userAgent    = "artsy-companion/1.0"
	maxErrorBody = 4 << 10
)

// Client calls the backend with the http.Client it was built with. Pass a
// stateless client for public endpoints and a cookie-carrying client for the
// auth and favorites endpoints.
type Client struct {
	httpClient *http.Client
	baseURL    string
	logger     *zap.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the logger used for request tracing.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) {
		c.logger = logging.OrNop(l)
	}
}

// NewClient creates a Client for the backend rooted at baseURL.
func NewClient(httpClient *http.Client, baseURL string, opts ...Option) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	c := &Client{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(baseURL, "/"),
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Search returns artists matching term. A missing artists field yields an empty slice.
func (c *Client) Search(ctx context.Context, term string) ([]Artist, error) {
	var resp searchResponse
	path := "/search?" + url.Values{"term": {term}}.Encode()
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, fmt.Errorf("searching artists: %w", err)
	}
	if resp.Artists == nil {
		return []Artist{}, nil
	}
	return resp.Artists, nil
}

// ArtistDetail fetches the full record for one artist.
func (c *Client) ArtistDetail(ctx context.Context, artistID string) (*ArtistDetail, error) {
	var resp ArtistDetail
	if err := c.do(ctx, http.MethodGet, "/artist/"+url.PathEscape(artistID), nil, &resp); err != nil {
		return nil, fmt.Errorf("fetching artist detail: %w", err)
	}
	return &resp, nil
}

// ArtistArtworks lists an artist's artworks.
func (c *Client) ArtistArtworks(ctx context.Context, artistID string) ([]Artwork, error) {
	var resp artworksResponse
	if err := c.do(ctx, http.MethodGet, "/artist/artworks/"+url.PathEscape(artistID), nil, &resp); err != nil {
		return nil, fmt.Errorf("fetching artworks: %w", err)
	}
	if resp.Artworks == nil {
		return []Artwork{}, nil
	}
	return resp.Artworks, nil
}

// ArtworkCategories lists the genes attached to an artwork.
func (c *Client) ArtworkCategories(ctx context.Context, artworkID string) ([]Category, error) {
	var resp categoriesResponse
	if err := c.do(ctx, http.MethodGet, "/artwork/genes/"+url.PathEscape(artworkID), nil, &resp); err != nil {
		return nil, fmt.Errorf("fetching artwork categories: %w", err)
	}
	if resp.Genes == nil {
		return []Category{}, nil
	}
	return resp.Genes, nil
}

// SimilarArtists lists artists related to artistID.
func (c *Client) SimilarArtists(ctx context.Context, artistID string) ([]Artist, error) {
	var resp []Artist
	if err := c.do(ctx, http.MethodGet, "/artist/similar/"+url.PathEscape(artistID), nil, &resp); err != nil {
		return nil, fmt.Errorf("fetching similar artists: %w", err)
	}
	if resp == nil {
		return []Artist{}, nil
	}
	return resp, nil
}

// Register creates an account and starts a server session.
func (c *Client) Register(ctx context.Context, fullName, email, password string) (*UserResponse, error) {
	var resp UserResponse
	body := registerRequest{FullName: fullName, Email: email, Password: password}
	if err := c.do(ctx, http.MethodPost, "/auth/register", body, &resp); err != nil {
		return nil, fmt.Errorf("registering: %w", err)
	}
	return &resp, nil
}

// Login starts a server session for the given credentials.
func (c *Client) Login(ctx context.Context, email, password string) (*UserResponse, error) {
	var resp UserResponse
	if err := c.do(ctx, http.MethodPost, "/auth/login", loginRequest{Email: email, Password: password}, &resp); err != nil {
		return nil, fmt.Errorf("logging in: %w", err)
	}
	return &resp, nil
}

// Logout ends the server session.
func (c *Client) Logout(ctx context.Context) (*MessageResponse, error) {
	var resp MessageResponse
	if err := c.do(ctx, http.MethodPost, "/auth/logout", nil, &resp); err != nil {
		return nil, fmt.Errorf("logging out: %w", err)
	}
	return &resp, nil
}

// AuthStatus reports whether the cookie session is authenticated.
func (c *Client) AuthStatus(ctx context.Context) (*StatusResponse, error) {
	var resp StatusResponse
	if err := c.do(ctx, http.MethodGet, "/auth/status", nil, &resp); err != nil {
		return nil, fmt.Errorf("checking auth status: %w", err)
	}
	return &resp, nil
}

// DeleteAccount removes the logged-in account.
func (c *Client) DeleteAccount(ctx context.Context) (*MessageResponse, error) {
	var resp MessageResponse
	if err := c.do(ctx, http.MethodDelete, "/auth/delete", nil, &resp); err != nil {
		return nil, fmt.Errorf("deleting account: %w", err)
	}
	return &resp, nil
}

// Favorites lists the account's favorite artists in server order.
func (c *Client) Favorites(ctx context.Context) ([]Artist, error) {
	var resp favoritesResponse
	if err := c.do(ctx, http.MethodGet, "/favorites", nil, &resp); err != nil {
		return nil, fmt.Errorf("fetching favorites: %w", err)
	}
	if resp.Favorites == nil {
		return []Artist{}, nil
	}
	return resp.Favorites, nil
}

// AddFavorite marks artistID as a favorite. Only the status code is inspected.
func (c *Client) AddFavorite(ctx context.Context, artistID string) error {
	if err := c.do(ctx, http.MethodPost, "/favorites", addFavoriteRequest{ArtistID: artistID}, nil); err != nil {
		return fmt.Errorf("adding favorite: %w", err)
	}
	return nil
}

// RemoveFavorite unmarks artistID. Only the status code is inspected.
func (c *Client) RemoveFavorite(ctx context.Context, artistID string) error {
	if err := c.do(ctx, http.MethodDelete, "/favorites/"+url.PathEscape(artistID), nil, nil); err != nil {
		return fmt.Errorf("removing favorite: %w", err)
	}
	return nil
}

// do sends one request and decodes a 2xx body into out (skipped when out is nil).
// Cancellation surfaces as the context's own error so callers can tell it apart
// from network failures.
func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+apiPrefix+path, body)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("%w: %w", ErrNetwork, err)
	}
	defer resp.Body.Close()

	c.logger.Debug("api call",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(start)),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &HTTPError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(snippet))}
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("%w: reading response body: %w", ErrNetwork, err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%w: %w", ErrDecode, err)
	}
	return nil
}
