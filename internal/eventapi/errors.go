package eventapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// ErrUploadCancelled is returned when a transfer is aborted through its context.
var ErrUploadCancelled = errors.New("upload cancelled")

// ErrInvalidPath is returned before any request is sent when an endpoint has an
// empty, "." or ".." path segment, e.g. from an empty or dot resource ID.
var ErrInvalidPath = errors.New("invalid resource path")

// APIError is returned for every non-2xx response.
type APIError struct {
	StatusCode int
	Message    string
	RequestID  string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("request failed with status %d: %s", e.StatusCode, e.Message)
}

// newAPIError builds an APIError from a failed response. The server sends
// {"error": "..."}; when the body is missing or not JSON the status text is used.
func newAPIError(resp *http.Response) *APIError {
	return &APIError{
		StatusCode: resp.StatusCode,
		Message:    readErrorMessage(resp),
		RequestID:  resp.Header.Get(requestIDHeader),
	}
}

func readErrorMessage(resp *http.Response) string {
	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err == nil {
		var payload struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(body, &payload) == nil && strings.TrimSpace(payload.Error) != "" {
			return payload.Error
		}
	}
	if text := http.StatusText(resp.StatusCode); text != "" {
		return text
	}
	return resp.Status
}

// StatusCode returns the HTTP status carried by an APIError, or 0 when err is
// not an APIError (transport failure, cancellation).
func StatusCode(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}

// IsNotFoundError returns true if the error indicates a 404 Not Found response.
func IsNotFoundError(err error) bool {
	return StatusCode(err) == http.StatusNotFound
}

// IsConflictError returns true for 409 responses, e.g. album generation already running.
func IsConflictError(err error) bool {
	return StatusCode(err) == http.StatusConflict
}
