package strava

import (
	"errors"
	"fmt"
)

// ErrInvalidPayload marks upstream responses that do not match the
// expected shape. It indicates an unreliable upstream, not a local bug,
// and callers treat it like any other upstream request failure.
var ErrInvalidPayload = errors.New("invalid upstream payload")

// HTTPError represents a non-2xx response from the Strava API
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("strava API error (HTTP %d): %s", e.StatusCode, e.Body)
}

// IsAuthError checks if an error is a 401 or 403 from the API
func IsAuthError(err error) bool {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode == 401 || httpErr.StatusCode == 403
	}
	return false
}

// IsNotFound checks if an error is a 404 from the API
func IsNotFound(err error) bool {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode == 404
	}
	return false
}

// IsTooManyRequests checks if an error is a 429 from the API
func IsTooManyRequests(err error) bool {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode == 429
	}
	return false
}

// invalidPayload wraps ErrInvalidPayload with the resource and reason
func invalidPayload(resource, reason string) error {
	return fmt.Errorf("%w: %s: %s", ErrInvalidPayload, resource, reason)
}
