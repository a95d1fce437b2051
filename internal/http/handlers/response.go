// Package handlers provides the ops API endpoints.
//
// This file holds the response helpers shared by every endpoint. Operators
// and scripts read these responses, so every failure carries the same
// envelope and a stable code they can match on.
//
// Conventions:
//   - Every error response is an ErrorResponse whose `code` is one of the
//     constants in errors.go. Messages may change; codes may not.
//   - `fail()` is the only place that writes an error. It logs 5xx responses
//     with the request-scoped logger so the request ID ties the log line to
//     what the caller saw.
//   - `Fail()` exposes the same helper to the router for NoRoute and NoMethod.
//   - `ok()` writes success bodies; handlers never call c.JSON directly.
//
// Example error response:
//
//	HTTP/1.1 503 Service Unavailable
//	{
//	  "request_id": "123e4567-e89b-12d3-a456-426614174000",
//	  "code": "not_ready",
//	  "message": "database unavailable"
//	}
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/psemmelhack/fm-agent/internal/http/middleware"
)

// ErrorResponse is the error envelope returned by all endpoints.
//
// Fields:
//   - RequestID: echoed from the X-Request-ID response header so a caller
//     can quote it when reporting a failed trigger.
//   - Code: stable, machine-readable identifier (see errors.go).
//   - Message: short human-readable description. Never carries collaborator
//     error text, which may contain upstream URLs or keys.
//
// Referenced from the Swagger annotations on every endpoint.
type ErrorResponse struct {
	// Correlates server logs and the caller's error
	RequestID string `json:"request_id,omitempty" example:"123e4567-e89b-12d3-a456-426614174000"`
	// Stable error code
	Code string `json:"code" example:"not_ready"`
	// Human-readable message
	Message string `json:"message" example:"database unavailable"`
}

// fail aborts the request with an ErrorResponse. Statuses >= 500 are logged
// at error level with the request-scoped logger.
func fail(c *gin.Context, status int, code, msg string) {
	reqID := c.Writer.Header().Get(middleware.RequestIDHeader)
	resp := ErrorResponse{
		RequestID: reqID,
		Code:      code,
		Message:   msg,
	}

	if status >= http.StatusInternalServerError {
		lg := middleware.LoggerFrom(c)
		lg.Error().
			Int("status", status).
			Str("code", code).
			Str("message", msg).
			Msg("api error")
	}

	c.AbortWithStatusJSON(status, resp)
}

// Fail is fail for the router's NoRoute and NoMethod fallbacks.
func Fail(c *gin.Context, status int, code, msg string) { fail(c, status, code, msg) }

func ok(c *gin.Context, status int, body any) {
	c.JSON(status, body)
}
