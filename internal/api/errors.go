package api

import (
	"errors"
	"fmt"
)

// ErrMalformedResponse is returned when a response body does not have the
// shape an operation expects. Nothing from such a response is applied.
var ErrMalformedResponse = errors.New("malformed response")

// AuthError indicates that the API token was rejected (HTTP 401).
type AuthError struct {
	BaseURL string
	Message string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("authentication failed for %s: %s", e.BaseURL, e.Message)
}

// IsAuthError reports whether err (or any error in its chain) is an AuthError.
func IsAuthError(err error) bool {
	var authErr *AuthError
	return errors.As(err, &authErr)
}

// HTTPError is a non-2xx response other than 401 and exhausted 429s.
type HTTPError struct {
	StatusCode int
	Method     string
	Path       string
	Message    string
}

func (e *HTTPError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("http %d on %s %s", e.StatusCode, e.Method, e.Path)
	}
	return fmt.Sprintf("http %d on %s %s: %s", e.StatusCode, e.Method, e.Path, e.Message)
}

// errorResponse is the error envelope the dashboard API returns.
type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func (r errorResponse) text() string {
	if r.Message != "" {
		return r.Message
	}
	return r.Error
}
