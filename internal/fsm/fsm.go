// Package fsm is the conversation state machine. Decide is a pure function
// of (phase, number of stored candidates, input): it performs no I/O and
// returns which executor to run and the phase that executor should persist
// once its externally visible step has succeeded.
//
// Transition table:
//
//	phase                 input                      action    next
//	any                   daily trigger              Greet     awaiting_preference
//	awaiting_preference   free text                  Search    awaiting_selection*
//	awaiting_selection    selection in 1..N          Confirm   confirmed
//	awaiting_selection    anything else              Reprompt  awaiting_selection
//	confirmed             any reply                  Restart   awaiting_preference
//	idle                  any reply                  Restart   awaiting_preference
//	any                   blank reply or /command    Ignore    unchanged
//
// (*) the search executor stays in awaiting_preference when nothing matched.
package fsm

import (
	"strconv"
	"strings"

	"github.com/psemmelhack/fm-agent/internal/domain"
)

// Action names the executor a Decision selects.
type Action string

const (
	ActionIgnore   Action = "ignore"
	ActionGreet    Action = "greet"
	ActionSearch   Action = "search"
	ActionReprompt Action = "reprompt"
	ActionConfirm  Action = "confirm"
	ActionRestart  Action = "restart"
)

// InputKind distinguishes the two event sources.
type InputKind int

const (
	InputReply InputKind = iota
	InputDailyTrigger
)

// Input is one event fed to the machine.
type Input struct {
	Kind InputKind
	Text string
}

// Reply wraps an inbound message text.
func Reply(text string) Input { return Input{Kind: InputReply, Text: text} }

// DailyTrigger is the scheduled greeting event.
func DailyTrigger() Input { return Input{Kind: InputDailyTrigger} }

// Decision is the output of Decide.
type Decision struct {
	Action Action
	// Next is the phase to persist after the action succeeds. For
	// ActionIgnore and ActionReprompt it equals the current phase.
	Next domain.Phase
	// Query is the trimmed reply for ActionSearch.
	Query string
	// Selection is the 1-based candidate index for ActionConfirm.
	Selection int
}

// Decide maps (phase, candidateCount, input) to a Decision. It is total:
// every combination, including unknown phases, yields a Decision.
func Decide(phase domain.Phase, candidateCount int, in Input) Decision {
	if !phase.Valid() {
		phase = domain.PhaseIdle
	}

	if in.Kind == InputDailyTrigger {
		return Decision{Action: ActionGreet, Next: domain.PhaseAwaitingPreference}
	}

	text := strings.TrimSpace(in.Text)
	if text == "" || IsCommand(text) {
		return Decision{Action: ActionIgnore, Next: phase}
	}

	switch phase {
	case domain.PhaseAwaitingPreference:
		return Decision{Action: ActionSearch, Next: domain.PhaseAwaitingSelection, Query: text}
	case domain.PhaseAwaitingSelection:
		if n, ok := ParseSelection(text, candidateCount); ok {
			return Decision{Action: ActionConfirm, Next: domain.PhaseConfirmed, Selection: n}
		}
		return Decision{Action: ActionReprompt, Next: domain.PhaseAwaitingSelection}
	default: // idle, confirmed
		return Decision{Action: ActionRestart, Next: domain.PhaseAwaitingPreference}
	}
}

// IsCommand reports whether text is a bot command such as "/start".
func IsCommand(text string) bool {
	return strings.HasPrefix(strings.TrimSpace(text), "/")
}

// ParseSelection interprets text as a 1-based choice among n candidates.
// Accepted forms: "2", " 2 ", "#2", "2.", "2)". Zero, negatives, values
// above n and anything non-numeric are rejected.
func ParseSelection(text string, n int) (int, bool) {
	s := strings.TrimSpace(text)
	s = strings.TrimPrefix(s, "#")
	s = strings.TrimRight(s, ".)")
	s = strings.TrimSpace(s)
	if s == "" || s[0] == '+' || s[0] == '-' {
		return 0, false
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 1 || v > n {
		return 0, false
	}
	return v, true
}
