package replicate

import (
	"errors"
	"fmt"
	"net/http"

	replicatego "github.com/replicate/replicate-go"
)

// APIError is the error returned for non-2xx API responses.
type APIError = replicatego.APIError

// PredictionError is returned when a prediction reaches a terminal state
// other than succeeded.
type PredictionError struct {
	ID      string
	Status  Status
	Message string
}

func (e *PredictionError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("replicate: prediction %s %s", e.ID, e.Status)
	}
	return fmt.Sprintf("replicate: prediction %s %s: %s", e.ID, e.Status, e.Message)
}

// IsUnauthorized reports whether err indicates an invalid or missing token (401).
func IsUnauthorized(err error) bool {
	return hasStatus(err, http.StatusUnauthorized)
}

// IsNotFound reports whether err indicates an unknown model or version (404).
func IsNotFound(err error) bool {
	return hasStatus(err, http.StatusNotFound)
}

// IsRateLimited reports whether err indicates the account is being throttled (429).
func IsRateLimited(err error) bool {
	return hasStatus(err, http.StatusTooManyRequests)
}

func hasStatus(err error, code int) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status == code
	}
	return false
}
