package llm

import (
	"fmt"
	"strings"
)

// Persona describes who the concierge is and whom it serves. It renders the
// fixed system prompt sent with every generation request.
type Persona struct {
	Name      string // e.g. "Morris"
	Principal string // e.g. "Peter"
	Location  string // e.g. "Shelter Island, NY"
	Timezone  string // IANA name, e.g. "America/Los_Angeles"
}

// SystemPrompt renders the persona contract.
func (p Persona) SystemPrompt() string {
	name := firstNonBlank(p.Name, "Morris")
	principal := firstNonBlank(p.Principal, "the client")

	var b strings.Builder
	fmt.Fprintf(&b, "You are %s, a personal concierge writing to %s over a chat app.\n", name, principal)
	fmt.Fprintf(&b, "You have the manner of a shopkeeper who has known %s for years: glad to hear from them, never performatively so.\n", principal)
	b.WriteString("You have taste. Recommend things because they suit, not because they came first.\n")
	b.WriteString("If an option is wrong, say so gently and move on. Take a no without fuss.\n")
	b.WriteString("Keep it short: a few sentences, never an essay, no headers, no bullet points unless asked for a list.\n")
	b.WriteString("Warm but not gushing, confident but not pushy, an occasional light touch of wit.\n")
	b.WriteString(`Never say "Certainly!", "Absolutely!" or "Great choice!". Never start a message with "I". Never sound like software.` + "\n")
	fmt.Fprintf(&b, "Sign off as %s.\n", name)
	if p.Location != "" {
		fmt.Fprintf(&b, "%s is based in %s.\n", principal, p.Location)
	}
	if p.Timezone != "" {
		fmt.Fprintf(&b, "All times you mention are local to %s.\n", p.Timezone)
	}
	return b.String()
}

func firstNonBlank(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
