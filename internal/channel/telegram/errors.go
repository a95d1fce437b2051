package telegram

import (
	"fmt"
	"net/http"
	"time"
)

// APIError is a non-OK Bot API answer.
type APIError struct {
	Method      string
	StatusCode  int
	Code        int
	Description string
	RetryAfter  time.Duration
}

func (e *APIError) Error() string {
	if e.Description != "" {
		return fmt.Sprintf("telegram %s: %d %s", e.Method, e.StatusCode, e.Description)
	}
	return fmt.Sprintf("telegram %s: http %d", e.Method, e.StatusCode)
}

// Temporary reports whether retrying may succeed (rate limited or a server
// side failure).
func (e *APIError) Temporary() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}
