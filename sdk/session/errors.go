package session

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// maxBodySnippet bounds the response-body excerpt carried inside a StatusError.
const maxBodySnippet = 300

// StatusError describes a non-2xx backend response in a transport agnostic format.
type StatusError struct {
	// HTTPStatus records the HTTP status code of the failed response.
	HTTPStatus int `json:"http_status"`
	// Message is a truncated excerpt of the response body kept for diagnostics.
	Message string `json:"message"`
}

// Error implements the error interface.
func (e *StatusError) Error() string {
	if e == nil {
		return ""
	}
	if e.Message == "" {
		return fmt.Sprintf("runners: status %d", e.HTTPStatus)
	}
	return fmt.Sprintf("runners: status %d: %s", e.HTTPStatus, e.Message)
}

// StatusCode returns the HTTP status carried by the error.
func (e *StatusError) StatusCode() int {
	if e == nil {
		return 0
	}
	return e.HTTPStatus
}

// NewStatusError builds a StatusError from a status code and raw response body,
// truncating the body to a bounded snippet.
func NewStatusError(status int, body []byte) *StatusError {
	snippet := strings.TrimSpace(string(body))
	if len(snippet) > maxBodySnippet {
		snippet = snippet[:maxBodySnippet]
	}
	return &StatusError{HTTPStatus: status, Message: snippet}
}

// IsUnauthorized reports whether err is a StatusError carrying a 401.
func IsUnauthorized(err error) bool {
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode() == http.StatusUnauthorized
	}
	return false
}
