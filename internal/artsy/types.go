package artsy

// Artist is a search result or favorite as returned by the backend.
type Artist struct {
	ID          string  `json:"artistId"`
	Name        string  `json:"name"`
	ImageURL    *string `json:"imageUrl,omitempty"`
	Birthday    *string `json:"birthday,omitempty"`
	Nationality *string `json:"nationality,omitempty"`
	// Timestamp is only present on favorites: ISO-8601 time the artist was favorited.
	Timestamp *string `json:"timestamp,omitempty"`
}

// ArtistDetail is the full artist record from GET /artist/{id}.
type ArtistDetail struct {
	ArtistID    string  `json:"artistId"`
	Name        string  `json:"name"`
	Birthday    *string `json:"birthday,omitempty"`
	Deathday    *string `json:"deathday,omitempty"`
	Nationality *string `json:"nationality,omitempty"`
	Biography   *string `json:"biography,omitempty"`
	ImageURL    *string `json:"imageUrl,omitempty"`
}

// Artwork is one work by an artist.
type Artwork struct {
	ID       string  `json:"id"`
	Title    string  `json:"title"`
	ImageURL *string `json:"imageUrl,omitempty"`
	Date     *string `json:"date,omitempty"`
}

// Category is an artwork gene.
type Category struct {
	Name     string  `json:"name"`
	ImageURL *string `json:"imageUrl,omitempty"`
}

// UserInfo describes the logged-in account.
type UserInfo struct {
	FullName        string `json:"fullname"`
	Email           string `json:"email"`
	ProfileImageURL string `json:"profileImageUrl"`
}

// UserResponse is returned by login and register.
type UserResponse struct {
	Message string    `json:"message"`
	User    *UserInfo `json:"user,omitempty"`
}

// StatusResponse is returned by GET /auth/status.
type StatusResponse struct {
	IsAuthenticated bool      `json:"isAuthenticated"`
	User            *UserInfo `json:"user,omitempty"`
}

// MessageResponse is returned by logout and account deletion.
type MessageResponse struct {
	Message string `json:"message"`
}

type searchResponse struct {
	Artists []Artist `json:"artists"`
}

type artworksResponse struct {
	Artworks []Artwork `json:"artworks"`
}

type categoriesResponse struct {
	Genes []Category `json:"genes"`
}

type favoritesResponse struct {
	Favorites []Artist `json:"favorites"`
}

type registerRequest struct {
	FullName string `json:"fullname"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type addFavoriteRequest struct {
	ArtistID string `json:"artistId"`
}
