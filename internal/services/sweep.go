package services

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/psemmelhack/fm-agent/internal/domain"
	"github.com/psemmelhack/fm-agent/internal/metrics"
)

// SweepResult summarizes one reminder sweep.
type SweepResult struct {
	Due  int `json:"due"`
	Sent int `json:"sent"`
	// SendFailed counts reminders left unreminded for the next sweep.
	SendFailed int `json:"send_failed"`
	// MarkFailed lists commitments whose reminder went out but could not be
	// marked; they will be reminded again.
	MarkFailed []string `json:"mark_failed,omitempty"`
}

// Sweep sends a reminder for every unreminded commitment starting within the
// lookahead window, in start order, and marks each one after its send
// succeeds. A failed send leaves the commitment for the next sweep. Sweeps
// never overlap.
func (c *Concierge) Sweep(ctx context.Context) (SweepResult, error) {
	c.sweepMu.Lock()
	defer c.sweepMu.Unlock()

	tr := otel.Tracer("services/Concierge")
	ctx, span := tr.Start(ctx, "Sweep")
	defer span.End()

	var res SweepResult
	now := c.now()
	due, err := Retry(ctx, c.storeRetry(), "due commitments", func() ([]domain.Commitment, error) {
		return c.dueRows(ctx, now)
	})
	if err != nil {
		recordSpanError(span, err)
		return res, err
	}
	res.Due = len(due)
	span.SetAttributes(attribute.Int("due", res.Due))

	for _, cm := range due {
		if err := c.send(ctx, ReminderText(cm, c.tz(), c.Persona)); err != nil {
			res.SendFailed++
			log.Warn().Err(err).Str("component", "sweep").Str("commitment_id", cm.ID).Msg("reminder send failed; will retry next sweep")
			continue
		}

		at := c.now()
		changed, err := Retry(ctx, c.storeRetry(), "mark reminded", func() (bool, error) {
			return c.Store.MarkReminded(ctx, cm.ID, at)
		})
		if err != nil {
			res.MarkFailed = append(res.MarkFailed, cm.ID)
			log.Error().Err(err).Str("component", "sweep").Str("commitment_id", cm.ID).Msg("reminder sent but not marked")
			continue
		}
		if changed {
			res.Sent++
			metrics.RemindersSent.Inc()
		}
		log.Info().Str("component", "sweep").Str("commitment_id", cm.ID).
			Time("start_time", cm.StartTime).Bool("changed", changed).Msg("reminder sent")
	}
	return res, nil
}

func (c *Concierge) dueRows(ctx context.Context, now time.Time) ([]domain.Commitment, error) {
	return c.Store.DueUnremindedCommitments(ctx, now, c.lookahead())
}
