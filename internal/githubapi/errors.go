package githubapi

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

var ErrNoDownloadURL = errors.New("no download URL found in release information")

type ErrorKind string

const (
	KindTransport       ErrorKind = "transport"
	KindHTTP            ErrorKind = "http"
	KindRateLimited     ErrorKind = "rate_limited"
	KindInvalidResponse ErrorKind = "invalid_response"
)

// Error is returned by all API client operations.
type Error struct {
	Kind       ErrorKind
	StatusCode int
	Message    string
	Body       string
	URL        string
	ResetAt    time.Time
	Err        error
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindRateLimited:
		reset := "unknown"
		if !e.ResetAt.IsZero() {
			reset = e.ResetAt.UTC().Format(time.DateTime)
		}
		return fmt.Sprintf("GitHub API rate limit exceeded. Resets at %s.", reset)
	case KindHTTP:
		return fmt.Sprintf("GitHub API error (HTTP %d): %s", e.StatusCode, e.Message)
	case KindInvalidResponse:
		return "invalid JSON response from GitHub API"
	default:
		return fmt.Sprintf("GitHub API request failed: %v", e.Err)
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// StatusCode returns the HTTP status carried by err, or 0.
func StatusCode(err error) int {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}

func IsNotFound(err error) bool {
	return StatusCode(err) == http.StatusNotFound
}

func IsAccessDenied(err error) bool {
	code := StatusCode(err)
	return code == http.StatusUnauthorized || code == http.StatusForbidden
}

func IsRateLimited(err error) bool {
	var apiErr *Error
	return errors.As(err, &apiErr) && apiErr.Kind == KindRateLimited
}
