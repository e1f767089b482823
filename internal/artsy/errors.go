package artsy

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors.
var (
	// ErrNetwork wraps transport failures (connection refused, timeouts, resets).
	ErrNetwork = errors.New("network error")

	// ErrDecode is returned when a response body is not the expected JSON.
	ErrDecode = errors.New("malformed response")
)

// HTTPError is returned for non-2xx responses.
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("http %d %s", e.StatusCode, http.StatusText(e.StatusCode))
	}
	return fmt.Sprintf("http %d %s: %s", e.StatusCode, http.StatusText(e.StatusCode), e.Body)
}

// StatusCode returns the HTTP status carried by err, or 0 when err is not an *HTTPError.
func StatusCode(err error) int {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode
	}
	return 0
}
