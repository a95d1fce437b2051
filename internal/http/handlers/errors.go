// Package handlers defines the error codes returned by the ops API.
//
// Every error response carries an HTTP status and one of these codes so
// scripts can branch on the code instead of parsing the message.
//
// Example response:
//
//	{
//	  "request_id": "e1b9be03-4999-4289-9f03-999b042d65d6",
//	  "code": "not_ready",
//	  "message": "database unavailable"
//	}
package handlers

const (
	ErrCodeBadRequest       = "bad_request"
	ErrCodeNotFound         = "not_found"
	ErrCodeMethodNotAllowed = "method_not_allowed"
	ErrCodeRateLimited      = "too_many_requests"
	ErrCodeInternal         = "internal_error"

	// Concierge-specific:
	ErrCodeNotReady      = "not_ready"
	ErrCodeStateFailed   = "state_failed"
	ErrCodeListFailed    = "list_failed"
	ErrCodeClaimFailed   = "claim_failed"
	ErrCodeTriggerFailed = "trigger_failed"
)
