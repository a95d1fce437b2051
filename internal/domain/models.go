// Package domain defines the persistence models for the concierge: the
// singleton conversation state, confirmed commitments, the memory log, and
// the bookkeeping rows (checkpoints, trigger runs) that make the dispatch
// loops idempotent. These types are mapped with GORM and shared across the
// repository, service, and scheduling layers.
package domain

import (
	"strings"
	"time"
)

// StateID is the primary key of the only ConversationState row.
const StateID uint = 1

// Phase is the position of the conversation in its state machine.
type Phase string

const (
	PhaseIdle               Phase = "idle"
	PhaseAwaitingPreference Phase = "awaiting_preference"
	PhaseAwaitingSelection  Phase = "awaiting_selection"
	PhaseConfirmed          Phase = "confirmed"
)

// Valid reports whether p is one of the four known phases.
func (p Phase) Valid() bool {
	switch p {
	case PhaseIdle, PhaseAwaitingPreference, PhaseAwaitingSelection, PhaseConfirmed:
		return true
	}
	return false
}

// ParsePhase normalizes a stored phase value. Unknown values map to
// PhaseIdle so a corrupted or legacy row restarts the flow instead of
// wedging it.
func ParsePhase(s string) Phase {
	p := Phase(strings.ToLower(strings.TrimSpace(s)))
	if p.Valid() {
		return p
	}
	return PhaseIdle
}

// ConversationContext is the opaque payload carried between phases. It is
// stored as a JSON document in the conversation_state row.
type ConversationContext struct {
	// Candidates are the search results last presented to the principal,
	// in the order they were numbered.
	Candidates []Candidate `json:"candidates,omitempty"`
	// LastMessage is the reply that produced Candidates.
	LastMessage string `json:"last_message,omitempty"`
}

// ConversationState is the single row describing where the conversation
// with the principal stands.
//
// Fields:
//   - ID: always StateID; the row is created once at startup.
//   - Phase: current state machine phase.
//   - Context: JSON payload (candidate list) used to resolve selections.
//   - UpdatedAt: time of the last transition.
type ConversationState struct {
	ID        uint                `json:"-"          gorm:"primaryKey;autoIncrement:false"`
	Phase     Phase               `json:"phase"      gorm:"type:varchar(32);not null;default:'idle'"`
	Context   ConversationContext `json:"context"    gorm:"type:text;serializer:json"`
	UpdatedAt time.Time           `json:"updated_at"`
}

// TableName returns the database table name for ConversationState.
func (ConversationState) TableName() string { return "conversation_state" }

// Commitment is an event the principal agreed to attend. It carries the
// reminder obligation swept by the scheduler.
//
// Fields:
//   - ID: UUID primary key (char(36)).
//   - Title / Details / Location: copied from the selected candidate.
//   - StartTime: absolute start instant (stored UTC); indexed with
//     ReminderSent for the sweep query.
//   - ReminderSent: flips false→true exactly once, never back.
//   - RemindedAt: when the flip happened.
//   - CreatedAt: managed by GORM.
type Commitment struct {
	ID           string     `json:"id"            gorm:"type:char(36);primaryKey"`
	Title        string     `json:"title"         gorm:"type:varchar(255);not null"`
	StartTime    time.Time  `json:"start_time"    gorm:"not null;index:idx_commitments_due,priority:2"`
	Details      string     `json:"details"       gorm:"type:text"`
	Location     string     `json:"location"      gorm:"type:varchar(255)"`
	ReminderSent bool       `json:"reminder_sent" gorm:"not null;default:false;index:idx_commitments_due,priority:1"`
	RemindedAt   *time.Time `json:"reminded_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

// TableName returns the database table name for Commitment.
func (Commitment) TableName() string { return "commitments" }

// Memory kinds written by the executors.
const (
	MemoryPreference = "preference"
	MemoryAttended   = "attended"
	MemoryFeedback   = "feedback"
	MemorySkipped    = "skipped"
)

// Memory is one remembered fact about the principal, fed back to the text
// generator as recent-history context.
type Memory struct {
	ID        string    `json:"id"         gorm:"type:char(36);primaryKey"`
	Kind      string    `json:"kind"       gorm:"type:varchar(16);not null;index"`
	Summary   string    `json:"summary"    gorm:"type:text;not null"`
	CreatedAt time.Time `json:"created_at" gorm:"index"`
}

// TableName returns the database table name for Memory.
func (Memory) TableName() string { return "memories" }
