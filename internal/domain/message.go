package domain

import "time"

// InboundMessage is a single reply from the principal as returned by the
// inbound channel. It is never persisted; only its Marker survives, as the
// checkpoint cursor.
type InboundMessage struct {
	Text       string
	ReceivedAt time.Time
	// Marker is the channel's monotonically increasing sequence value
	// (a Telegram update_id).
	Marker int64
	Sender string
}

// Candidate is one search result that may become a Commitment.
type Candidate struct {
	Title     string    `json:"title"`
	StartTime time.Time `json:"start_time"`
	Details   string    `json:"details,omitempty"`
	Location  string    `json:"location,omitempty"`
	URL       string    `json:"url,omitempty"`
}
