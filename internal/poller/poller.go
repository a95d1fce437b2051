// Package poller pulls inbound messages from the channel and feeds them, one
// at a time and in order, to the concierge.
//
// A message is consumed (durable checkpoint saved, channel offset cleared)
// only after it was handled, half-handled, or given up on. A transient
// failure stops the batch so the same message is retried on the next cycle;
// nothing behind it is processed out of order.
package poller

import (
	"context"
	"errors"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/psemmelhack/fm-agent/internal/alert"
	"github.com/psemmelhack/fm-agent/internal/channel"
	"github.com/psemmelhack/fm-agent/internal/clock"
	"github.com/psemmelhack/fm-agent/internal/domain"
	"github.com/psemmelhack/fm-agent/internal/fsm"
	"github.com/psemmelhack/fm-agent/internal/metrics"
	"github.com/psemmelhack/fm-agent/internal/services"
)

// Handler processes one reply. Concierge implements it.
type Handler interface {
	HandleReply(ctx context.Context, msg domain.InboundMessage) (fsm.Action, error)
	Apologize(ctx context.Context) error
}

// Checkpoints persists the highest consumed marker per channel.
type Checkpoints interface {
	GetCheckpoint(ctx context.Context, channel string) (int64, error)
	SaveCheckpoint(ctx context.Context, channel string, marker int64) error
}

// Poller is the inbound dispatch loop. It is not safe to run two Pollers
// against the same channel.
type Poller struct {
	Channel     string
	In          channel.Inbound
	Handler     Handler
	Checkpoints Checkpoints
	Alerts      alert.Alerter
	Clock       clock.Clock

	Interval time.Duration
	// MaxAttempts is how many times one message may fail transiently before
	// it is skipped.
	MaxAttempts int

	attempts map[int64]int
}

// Run polls every Interval until ctx is done.
func (p *Poller) Run(ctx context.Context) {
	clk := p.Clock
	if clk == nil {
		clk = clock.Real()
	}
	interval := p.Interval
	if interval <= 0 {
		interval = 2 * time.Second
	}
	log.Info().Str("component", "poller").Str("channel", p.Channel).Dur("interval", interval).Msg("poller started")

	for {
		if err := p.PollOnce(ctx); err != nil && ctx.Err() == nil {
			log.Warn().Err(err).Str("component", "poller").Msg("poll cycle stopped early")
		}
		if err := clock.Sleep(ctx, clk, interval); err != nil {
			log.Info().Str("component", "poller").Msg("poller stopped")
			return
		}
	}
}

// PollOnce fetches and dispatches one batch. It returns the error that
// stopped the batch, if any.
func (p *Poller) PollOnce(ctx context.Context) error {
	msgs, err := p.In.Poll(ctx)
	if err != nil {
		return err
	}
	if len(msgs) == 0 {
		return nil
	}

	cp, err := p.Checkpoints.GetCheckpoint(ctx, p.Channel)
	if err != nil {
		return err
	}

	for _, msg := range msgs {
		if msg.Marker <= cp {
			// Delivered again after a crash between checkpoint and clear.
			metrics.InboundMessages.WithLabelValues(metrics.OutcomeDuplicate).Inc()
			if err := p.In.Clear(ctx, msg.Marker); err != nil {
				log.Warn().Err(err).Str("component", "poller").Int64("marker", msg.Marker).Msg("clear failed")
			}
			continue
		}
		if err := p.dispatch(ctx, msg); err != nil {
			return err
		}
		cp = msg.Marker
	}
	return nil
}

func (p *Poller) dispatch(ctx context.Context, msg domain.InboundMessage) error {
	tr := otel.Tracer("poller")
	ctx, span := tr.Start(ctx, "Dispatch", trace.WithAttributes(attribute.Int64("message.marker", msg.Marker)))
	defer span.End()

	logger := log.With().Str("component", "poller").Int64("marker", msg.Marker).Str("text", preview(msg.Text, 60)).Logger()

	act, err := p.Handler.HandleReply(ctx, msg)
	if err == nil {
		outcome := metrics.OutcomeOK
		if act == fsm.ActionIgnore {
			outcome = metrics.OutcomeIgnored
		}
		logger.Info().Str("action", string(act)).Msg("message handled")
		return p.consume(ctx, msg, outcome)
	}
	span.RecordError(err)

	var pce *services.PartialCommitError
	if errors.As(err, &pce) {
		logger.Error().Err(err).Str("step", pce.Step).Msg("message partially handled")
		p.alerts().Alert(ctx, alert.KindPartialCommit, "action half completed; follow-up sent to principal", map[string]string{
			"step":          pce.Step,
			"commitment_id": pce.CommitmentID,
			"error":         pce.Err.Error(),
		})
		return p.consume(ctx, msg, metrics.OutcomePartial)
	}

	if p.attempts == nil {
		p.attempts = map[int64]int{}
	}
	p.attempts[msg.Marker]++
	n := p.attempts[msg.Marker]

	if n < p.maxAttempts() {
		metrics.InboundMessages.WithLabelValues(metrics.OutcomeRetry).Inc()
		logger.Warn().Err(err).Int("attempt", n).Msg("message failed; will retry")
		return err
	}

	logger.Error().Err(err).Int("attempt", n).Msg("giving up on message")
	p.alerts().Alert(ctx, alert.KindMessageSkipped, "inbound message skipped after repeated failures", map[string]string{
		"text":  preview(msg.Text, 200),
		"error": err.Error(),
	})
	if aerr := p.Handler.Apologize(ctx); aerr != nil {
		logger.Warn().Err(aerr).Msg("apology not delivered")
	}
	return p.consume(ctx, msg, metrics.OutcomeSkipped)
}

// consume records msg as done: checkpoint first, then the channel offset, so
// a crash between the two is absorbed by the checkpoint filter.
func (p *Poller) consume(ctx context.Context, msg domain.InboundMessage, outcome string) error {
	delete(p.attempts, msg.Marker)
	metrics.InboundMessages.WithLabelValues(outcome).Inc()

	if err := p.Checkpoints.SaveCheckpoint(ctx, p.Channel, msg.Marker); err != nil {
		return err
	}
	if err := p.In.Clear(ctx, msg.Marker); err != nil {
		log.Warn().Err(err).Str("component", "poller").Int64("marker", msg.Marker).Msg("clear failed; checkpoint covers it")
	}
	return nil
}

func (p *Poller) maxAttempts() int {
	if p.MaxAttempts < 1 {
		return 5
	}
	return p.MaxAttempts
}

func (p *Poller) alerts() alert.Alerter {
	if p.Alerts == nil {
		return alert.Log{}
	}
	return p.Alerts
}

func preview(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n]) + "…"
}
