// Package services defines the concierge's action executors. This file
// centralizes service-level error values so that callers (the dispatch
// loops and the ops API) can tell a retryable failure from a half-finished
// action.
package services

import (
	"errors"
	"fmt"
)

var (
	// ErrTransient marks a collaborator failure (timeout, 5xx, network) that
	// aborted an action before anything was persisted or the phase changed.
	// The triggering message stays unconsumed and is retried.
	ErrTransient = errors.New("transient failure")

	// ErrUnknownAction is returned when a decision names an action this
	// executor does not implement.
	ErrUnknownAction = errors.New("unknown action")
)

// PartialCommitError reports an action that completed one of its two
// externally visible halves (persisting a commitment, sending the
// confirmation) but not the other, even after retries. A follow-up message
// has already been attempted; the message that caused it is considered
// consumed.
type PartialCommitError struct {
	Step         string
	CommitmentID string
	Committed    bool
	Sent         bool
	Err          error
}

func (e *PartialCommitError) Error() string {
	return fmt.Sprintf("partial commit at %s (committed=%t sent=%t): %v", e.Step, e.Committed, e.Sent, e.Err)
}

func (e *PartialCommitError) Unwrap() error { return e.Err }

func transient(op string, err error) error {
	if errors.Is(err, ErrTransient) {
		return err
	}
	return fmt.Errorf("%s: %w: %w", op, ErrTransient, err)
}
