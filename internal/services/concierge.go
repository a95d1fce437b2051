// Package services – Concierge
//
// This file implements Concierge, the set of action executors chosen by the
// conversation state machine. Each executor performs its externally visible
// step (sending a message) before it persists the next phase, so a failed
// send never leaves the state ahead of what the principal has seen.
//
// Observability: public methods open OpenTelemetry spans; collaborator calls
// are timed into concierge_collaborator_duration_seconds.
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/psemmelhack/fm-agent/internal/channel"
	"github.com/psemmelhack/fm-agent/internal/clock"
	"github.com/psemmelhack/fm-agent/internal/domain"
	"github.com/psemmelhack/fm-agent/internal/fsm"
	"github.com/psemmelhack/fm-agent/internal/llm"
	"github.com/psemmelhack/fm-agent/internal/metrics"
	"github.com/psemmelhack/fm-agent/internal/search"
	"github.com/psemmelhack/fm-agent/internal/sysutil"
)

// Concierge runs the actions selected by fsm.Decide.
type Concierge struct {
	Store     Store
	Generator llm.Generator
	Searcher  search.Searcher
	Out       channel.Outbound
	Clock     clock.Clock

	// TZ is the principal's timezone for everything rendered.
	TZ *time.Location
	// Principal is the name used in prompts and memories.
	Principal string
	// Persona is the sign-off name.
	Persona string

	MaxCandidates int
	HistoryLimit  int
	Lookahead     time.Duration
	// CallTimeout bounds each collaborator call.
	CallTimeout time.Duration

	StoreRetry RetryPolicy
	SendRetry  RetryPolicy
	// GenerateRetry applies to the daily greeting only. Inbound messages
	// are retried whole by the poller.
	GenerateRetry RetryPolicy

	sweepMu sync.Mutex
}

func (c *Concierge) tz() *time.Location {
	if c.TZ == nil {
		return time.UTC
	}
	return c.TZ
}

func (c *Concierge) now() time.Time {
	if c.Clock == nil {
		return time.Now()
	}
	return c.Clock.Now()
}

func (c *Concierge) principal() string {
	if c.Principal == "" {
		return "the principal"
	}
	return c.Principal
}

func (c *Concierge) maxCandidates() int {
	if c.MaxCandidates <= 0 {
		return 5
	}
	return c.MaxCandidates
}

func (c *Concierge) lookahead() time.Duration {
	if c.Lookahead <= 0 {
		return 65 * time.Minute
	}
	return c.Lookahead
}

func (c *Concierge) callCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.CallTimeout <= 0 {
		return context.WithTimeout(ctx, 45*time.Second)
	}
	return context.WithTimeout(ctx, c.CallTimeout)
}

// HandleReply processes one inbound message against the current state and
// returns the action taken. On error the action did not complete; a
// *PartialCommitError means it half completed and must not be retried.
func (c *Concierge) HandleReply(ctx context.Context, msg domain.InboundMessage) (fsm.Action, error) {
	tr := otel.Tracer("services/Concierge")
	ctx, span := tr.Start(ctx, "HandleReply",
		trace.WithAttributes(attribute.Int64("message.marker", msg.Marker)),
	)
	defer span.End()

	st, err := c.getState(ctx)
	if err != nil {
		recordSpanError(span, err)
		return "", err
	}

	d := fsm.Decide(st.Phase, len(st.Context.Candidates), fsm.Reply(msg.Text))
	span.SetAttributes(
		attribute.String("phase", string(st.Phase)),
		attribute.String("action", string(d.Action)),
	)

	err = c.execute(ctx, st, d)
	recordAction(d.Action, err)
	recordSpanError(span, err)
	return d.Action, err
}

// Greet runs the daily greeting from whatever phase the conversation is in.
func (c *Concierge) Greet(ctx context.Context) error {
	tr := otel.Tracer("services/Concierge")
	ctx, span := tr.Start(ctx, "Greet")
	defer span.End()

	d := fsm.Decide(domain.PhaseIdle, 0, fsm.DailyTrigger())
	err := c.greet(ctx, d)
	recordAction(d.Action, err)
	recordSpanError(span, err)
	return err
}

// Apologize tells the principal that their last message could not be
// handled. Used after the poller gives up on a message.
func (c *Concierge) Apologize(ctx context.Context) error {
	return c.send(ctx, apologyText)
}

func (c *Concierge) execute(ctx context.Context, st *domain.ConversationState, d fsm.Decision) error {
	switch d.Action {
	case fsm.ActionIgnore:
		return nil
	case fsm.ActionGreet:
		return c.greet(ctx, d)
	case fsm.ActionSearch:
		return c.searchAndPresent(ctx, d)
	case fsm.ActionReprompt:
		return c.reprompt(ctx, st)
	case fsm.ActionConfirm:
		return c.confirm(ctx, st, d)
	case fsm.ActionRestart:
		return c.restart(ctx)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownAction, d.Action)
	}
}

func (c *Concierge) greet(ctx context.Context, d fsm.Decision) error {
	facts := []string{"Today is " + c.now().In(c.tz()).Format("Monday, January 2") + "."}

	// History is context, not a prerequisite.
	if mems, err := c.Store.RecentMemories(ctx, c.HistoryLimit); err == nil {
		for _, m := range mems {
			facts = append(facts, fmt.Sprintf("%s (%s): %s", m.CreatedAt.In(c.tz()).Format("Jan 2"), m.Kind, m.Summary))
		}
	}

	prompt := llm.Prompt{
		Task: fmt.Sprintf("Write a warm, brief good-morning message to %s and ask what they would like to do today. "+
			"Two or three sentences at most. If the history shows something they enjoyed, a light nod to it is welcome.", c.principal()),
		Facts: facts,
	}
	// The day is already claimed and nothing is visible yet, so retrying
	// here cannot send twice.
	text, err := Retry(ctx, c.GenerateRetry.orDefault(DefaultGenerateRetry), "generate greeting", func() (string, error) {
		return c.generate(ctx, prompt)
	})
	if err != nil {
		return err
	}
	if err := c.send(ctx, text); err != nil {
		return err
	}
	return c.setState(ctx, d.Next, domain.ConversationContext{})
}

func (c *Concierge) searchAndPresent(ctx context.Context, d fsm.Decision) error {
	cands, err := c.search(ctx, d.Query)
	if err != nil {
		return err
	}
	if len(cands) > c.maxCandidates() {
		cands = cands[:c.maxCandidates()]
	}

	if len(cands) == 0 {
		text, err := c.generate(ctx, llm.Prompt{
			Task: fmt.Sprintf("Nothing matched %s's request. Say so briefly and without drama, and invite them to try something else.", c.principal()),
			Facts: []string{"Request: " + d.Query},
		})
		if err != nil {
			return err
		}
		// Phase stays awaiting_preference; nothing to persist.
		if err := c.send(ctx, text); err != nil {
			return err
		}
		c.remember(ctx, domain.MemoryPreference, c.preferenceSummary(d.Query))
		return nil
	}

	facts := make([]string, 0, len(cands)+1)
	facts = append(facts, "Request: "+d.Query)
	for _, cand := range cands {
		facts = append(facts, cand.Title+", "+FormatWhen(cand.StartTime, c.tz()))
	}
	lead, err := c.generate(ctx, llm.Prompt{
		Task: "Write one short lead-in line introducing a few options you found. " +
			"Do not list the options; the numbered list follows your line.",
		Facts: facts,
	})
	if err != nil {
		return err
	}

	text := lead + "\n\n" + RenderCandidates(cands, c.tz()) + "\n\nReply with a number to choose."
	if err := c.send(ctx, text); err != nil {
		return err
	}
	c.remember(ctx, domain.MemoryPreference, c.preferenceSummary(d.Query))
	return c.setState(ctx, d.Next, domain.ConversationContext{Candidates: cands, LastMessage: d.Query})
}

func (c *Concierge) reprompt(ctx context.Context, st *domain.ConversationState) error {
	cands := st.Context.Candidates
	if len(cands) == 0 {
		// Nothing to choose from; ask for a new preference instead.
		return c.restart(ctx)
	}
	return c.send(ctx, repromptText(cands, c.tz()))
}

func (c *Concierge) confirm(ctx context.Context, st *domain.ConversationState, d fsm.Decision) error {
	cand := st.Context.Candidates[d.Selection-1]
	when := FormatWhen(cand.StartTime, c.tz())

	facts := []string{"Event: " + cand.Title, "When: " + when}
	if cand.Location != "" {
		facts = append(facts, "Where: "+cand.Location)
	}
	if cand.Details != "" {
		facts = append(facts, "Details: "+cand.Details)
	}
	body, err := c.generate(ctx, llm.Prompt{
		Task: fmt.Sprintf("%s picked this event. Confirm it warmly in two sentences, mentioning when and where. "+
			"Do not mention reminders; that is added separately.", c.principal()),
		Facts: facts,
	})
	if err != nil {
		return err
	}

	id, err := Retry(ctx, c.storeRetry(), "save commitment", func() (string, error) {
		return c.Store.SaveCommitment(ctx, cand.Title, cand.StartTime, cand.Details, cand.Location)
	})
	if err != nil {
		// Nothing visible happened yet; the message will be retried.
		return err
	}

	if err := c.send(ctx, body+"\n\n"+ReminderPromise); err != nil {
		_ = c.sendOnce(ctx, fmt.Sprintf(sendFollowUpText, cand.Title))
		// The commitment exists, so the phase follows it even though the
		// confirmation was lost; a repeated "2" must not book it twice.
		_ = c.setState(ctx, domain.PhaseConfirmed, domain.ConversationContext{})
		return &PartialCommitError{Step: "send confirmation", CommitmentID: id, Committed: true, Err: err}
	}

	c.remember(ctx, domain.MemoryAttended, fmt.Sprintf("%s committed to attending '%s' at %s on %s",
		c.principal(), cand.Title, sysutil.FirstNonEmpty(cand.Location, "an unlisted venue"), when))

	if err := c.setState(ctx, d.Next, domain.ConversationContext{}); err != nil {
		_ = c.sendOnce(ctx, fmt.Sprintf(stateFollowUpText, cand.Title))
		// Last try to drop the candidates so a repeated selection cannot
		// book the event a second time.
		if serr := c.setState(ctx, domain.PhaseConfirmed, domain.ConversationContext{}); serr != nil {
			log.Warn().Err(serr).Str("commitment_id", id).Msg("state still stale after confirm")
		}
		return &PartialCommitError{Step: "set state", CommitmentID: id, Committed: true, Sent: true, Err: err}
	}
	return nil
}

func (c *Concierge) restart(ctx context.Context) error {
	text, err := c.generate(ctx, llm.Prompt{
		Task: fmt.Sprintf("Ask %s, in one or two sentences, what they would like to find next: an event, a talk, something to do.", c.principal()),
	})
	if err != nil {
		return err
	}
	if err := c.send(ctx, text); err != nil {
		return err
	}
	return c.setState(ctx, domain.PhaseAwaitingPreference, domain.ConversationContext{})
}

// --- collaborators ---

func (c *Concierge) generate(ctx context.Context, p llm.Prompt) (string, error) {
	ctx, cancel := c.callCtx(ctx)
	defer cancel()
	defer metrics.ObserveSince("llm", time.Now())

	out, err := c.Generator.Generate(ctx, p)
	if err != nil {
		return "", transient("generate", err)
	}
	return strings.TrimSpace(out), nil
}

func (c *Concierge) search(ctx context.Context, q string) ([]domain.Candidate, error) {
	ctx, cancel := c.callCtx(ctx)
	defer cancel()
	defer metrics.ObserveSince("search", time.Now())

	out, err := c.Searcher.Search(ctx, q)
	if err != nil {
		return nil, transient("search", err)
	}
	return out, nil
}

// send delivers text with the send retry policy.
func (c *Concierge) send(ctx context.Context, text string) error {
	err := retryErr(ctx, c.SendRetry.orDefault(DefaultSendRetry), "send", func() error {
		return c.sendOnce(ctx, text)
	})
	if err != nil {
		return transient("send", err)
	}
	return nil
}

func (c *Concierge) sendOnce(ctx context.Context, text string) error {
	ctx, cancel := c.callCtx(ctx)
	defer cancel()
	defer metrics.ObserveSince("channel", time.Now())
	return c.Out.Send(ctx, text)
}

// --- store ---

func (c *Concierge) preferenceSummary(q string) string {
	return fmt.Sprintf("%s asked for: %s", c.principal(), q)
}

// remember writes a memory. Memories are context for later prompts, so a
// failed write is logged and otherwise ignored.
func (c *Concierge) remember(ctx context.Context, kind, summary string) {
	if err := c.Store.WriteMemory(ctx, kind, summary); err != nil {
		log.Warn().Err(err).Str("kind", kind).Msg("memory write failed")
	}
}

func (c *Concierge) storeRetry() RetryPolicy { return c.StoreRetry.orDefault(DefaultStoreRetry) }

func (c *Concierge) getState(ctx context.Context) (*domain.ConversationState, error) {
	return Retry(ctx, c.storeRetry(), "get state", func() (*domain.ConversationState, error) {
		return c.Store.GetState(ctx)
	})
}

func (c *Concierge) setState(ctx context.Context, phase domain.Phase, cc domain.ConversationContext) error {
	return retryErr(ctx, c.storeRetry(), "set state", func() error {
		return c.Store.SetState(ctx, phase, cc)
	})
}

// --- helpers ---

func recordAction(a fsm.Action, err error) {
	outcome := metrics.OutcomeOK
	var pce *PartialCommitError
	switch {
	case err == nil && a == fsm.ActionIgnore:
		outcome = metrics.OutcomeIgnored
	case errors.As(err, &pce):
		outcome = metrics.OutcomePartial
	case err != nil:
		outcome = metrics.OutcomeError
	}
	metrics.Actions.WithLabelValues(string(a), outcome).Inc()
}

func recordSpanError(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}

