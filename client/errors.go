package client

import (
	"errors"
	"fmt"
	"net/http"
)

// APIError is a non-2xx response from the daemon.
type APIError struct {
	StatusCode int
	Message    string
	Type       string
}

func (e *APIError) Error() string {
	if e.Type != "" {
		return fmt.Sprintf("field api: %d %s: %s", e.StatusCode, e.Type, e.Message)
	}
	return fmt.Sprintf("field api: %d: %s", e.StatusCode, e.Message)
}

func statusOf(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}

// IsNotFound reports whether err is a 404 from the daemon.
func IsNotFound(err error) bool { return statusOf(err) == http.StatusNotFound }

// IsEliminated reports whether the player revealed a mine this round.
func IsEliminated(err error) bool { return statusOf(err) == http.StatusForbidden }

// IsRoundOver reports whether the round no longer accepts claims.
func IsRoundOver(err error) bool { return statusOf(err) == http.StatusConflict }

// IsRateLimited reports whether the claim was throttled.
func IsRateLimited(err error) bool { return statusOf(err) == http.StatusTooManyRequests }
