package services

import (
	"fmt"
	"strings"
	"time"

	"github.com/psemmelhack/fm-agent/internal/domain"
)

// ReminderPromise is appended to every confirmation.
const ReminderPromise = "You'll get a reminder about an hour before it starts."

// FormatWhen renders t for the principal, in loc.
func FormatWhen(t time.Time, loc *time.Location) string {
	return t.In(loc).Format("Mon Jan 2, 3:04 PM MST")
}

// RenderCandidates numbers candidates from 1 in the order given.
func RenderCandidates(cands []domain.Candidate, loc *time.Location) string {
	var b strings.Builder
	for i, c := range cands {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "%d. %s, %s", i+1, c.Title, FormatWhen(c.StartTime, loc))
		if c.Location != "" {
			fmt.Fprintf(&b, " at %s", c.Location)
		}
		if c.Details != "" {
			fmt.Fprintf(&b, "\n   %s", c.Details)
		}
	}
	return b.String()
}

func repromptText(cands []domain.Candidate, loc *time.Location) string {
	return fmt.Sprintf("Just reply with the number of the one you'd like (1-%d):\n\n%s",
		len(cands), RenderCandidates(cands, loc))
}

// ReminderText is the reminder sent ahead of a commitment.
func ReminderText(c domain.Commitment, loc *time.Location, signOff string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "A quick reminder: %s starts at %s", c.Title, c.StartTime.In(loc).Format("3:04 PM"))
	if c.Location != "" {
		fmt.Fprintf(&b, " at %s", c.Location)
	}
	b.WriteString(". Enjoy it.")
	if signOff != "" {
		b.WriteString("\n\n")
		b.WriteString(signOff)
	}
	return b.String()
}

const (
	apologyText       = "Sorry, something on my side kept getting in the way of your last message. Could you send it again in a little while?"
	sendFollowUpText  = "Small hiccup: your plan for %s is saved and the reminder is set, even if my confirmation went astray."
	stateFollowUpText = "Small hiccup on my side keeping track of where we left off. Your plan for %s is saved; just tell me what you'd like next."
)
