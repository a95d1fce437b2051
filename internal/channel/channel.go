// Package channel defines the message transport seen by the dispatch loops:
// an Inbound side that is polled for replies and an Outbound side that
// delivers text to the principal.
package channel

import (
	"context"

	"github.com/psemmelhack/fm-agent/internal/domain"
)

// Inbound retrieves replies from the principal.
type Inbound interface {
	// Poll returns messages not yet confirmed, ordered by Marker ascending.
	Poll(ctx context.Context) ([]domain.InboundMessage, error)
	// Clear confirms every message with a marker at or below marker so the
	// transport stops returning it.
	Clear(ctx context.Context, marker int64) error
}

// Outbound delivers text to the principal.
type Outbound interface {
	Send(ctx context.Context, text string) error
}
