// Package scheduler fires the daily greeting and the reminder sweeps.
//
// Both loops wait in bounded slices and re-read the wall clock after each
// one, so a host suspended across a fire time notices on wake instead of
// sleeping out a stale monotonic timer. The two loops run in their own
// goroutines and share nothing but the store.
package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/psemmelhack/fm-agent/internal/alert"
	"github.com/psemmelhack/fm-agent/internal/clock"
	"github.com/psemmelhack/fm-agent/internal/metrics"
	"github.com/psemmelhack/fm-agent/internal/repo"
	"github.com/psemmelhack/fm-agent/internal/services"
)

// TriggerDailyGreeting is the TriggerRun name claimed once per local day.
const TriggerDailyGreeting = "daily_greeting"

// Greeter sends the daily greeting.
type Greeter interface {
	Greet(ctx context.Context) error
}

// Sweeper runs one reminder sweep.
type Sweeper interface {
	Sweep(ctx context.Context) (services.SweepResult, error)
}

// Claimer records that a trigger ran for a period. It returns an error
// matching repo.ErrAlreadyClaimed when the period was already claimed.
type Claimer interface {
	ClaimTriggerRun(ctx context.Context, trigger, periodKey string) error
}

// Config holds the scheduler's timing.
type Config struct {
	Location *time.Location
	// GreetHour and GreetMinute are the local wall-clock greeting time.
	GreetHour   int
	GreetMinute int
	SweepEvery  time.Duration
	// MaxSleepSlice bounds each wait so wall-clock jumps are noticed.
	MaxSleepSlice time.Duration
	// MissedAfter is how late a greeting may fire; later wakes skip to the
	// next day.
	MissedAfter time.Duration
}

// Scheduler owns the daily and sweep loops.
type Scheduler struct {
	cfg     Config
	clk     clock.Clock
	claims  Claimer
	greeter Greeter
	sweeper Sweeper
	alerts  alert.Alerter

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New builds a Scheduler. Zero durations take defaults (5m sweep, 1m slice,
// 1h missed window).
func New(cfg Config, clk clock.Clock, claims Claimer, g Greeter, sw Sweeper, a alert.Alerter) *Scheduler {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.SweepEvery <= 0 {
		cfg.SweepEvery = 5 * time.Minute
	}
	if cfg.MaxSleepSlice <= 0 {
		cfg.MaxSleepSlice = time.Minute
	}
	if cfg.MissedAfter <= 0 {
		cfg.MissedAfter = time.Hour
	}
	if clk == nil {
		clk = clock.Real()
	}
	if a == nil {
		a = alert.Log{}
	}
	return &Scheduler{cfg: cfg, clk: clk, claims: claims, greeter: g, sweeper: sw, alerts: a}
}

// Start launches both loops. It is a no-op if already running.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.running = true

	s.wg.Add(2)
	go func() { defer s.wg.Done(); s.RunDaily(ctx) }()
	go func() { defer s.wg.Done(); s.RunSweeps(ctx) }()

	log.Info().Str("component", "scheduler").
		Str("greeting", time.Date(0, 1, 1, s.cfg.GreetHour, s.cfg.GreetMinute, 0, 0, time.UTC).Format("15:04")).
		Str("tz", s.cfg.Location.String()).
		Dur("sweep_every", s.cfg.SweepEvery).
		Msg("scheduler started")
}

// Stop cancels both loops and waits for them to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.cancel()
	s.mu.Unlock()

	s.wg.Wait()
	log.Info().Str("component", "scheduler").Msg("scheduler stopped")
}

// RunDaily blocks, firing the greeting once per local day, until ctx is done.
func (s *Scheduler) RunDaily(ctx context.Context) {
	for {
		next := NextDaily(s.clk.Now(), s.cfg.GreetHour, s.cfg.GreetMinute, s.cfg.Location)
		log.Debug().Str("component", "scheduler").Time("next_greeting", next).Msg("waiting for greeting")
		if err := s.sleepUntil(ctx, next); err != nil {
			return
		}

		if late := s.clk.Now().Sub(next); late > s.cfg.MissedAfter {
			metrics.Greetings.WithLabelValues(metrics.OutcomeSkipped).Inc()
			log.Warn().Str("component", "scheduler").Time("due", next).Dur("late", late).
				Msg("greeting missed while suspended; skipping until tomorrow")
			continue
		}
		_ = s.FireDaily(ctx, next)
	}
}

// FireDaily claims the greeting for the local day of at and runs it. A day
// already claimed is skipped without error.
func (s *Scheduler) FireDaily(ctx context.Context, at time.Time) error {
	key := PeriodKey(at, s.cfg.Location)

	tr := otel.Tracer("scheduler")
	ctx, span := tr.Start(ctx, "DailyGreeting", trace.WithAttributes(attribute.String("period", key)))
	defer span.End()

	if err := s.claims.ClaimTriggerRun(ctx, TriggerDailyGreeting, key); err != nil {
		if errors.Is(err, repo.ErrAlreadyClaimed) {
			metrics.Greetings.WithLabelValues(metrics.OutcomeDuplicate).Inc()
			log.Info().Str("component", "scheduler").Str("period", key).Msg("greeting already sent for period")
			return nil
		}
		metrics.Greetings.WithLabelValues(metrics.OutcomeError).Inc()
		span.RecordError(err)
		s.alerts.Alert(ctx, alert.KindGreetingFailed, "could not claim daily greeting", map[string]string{"period": key, "error": err.Error()})
		return err
	}

	if err := s.greeter.Greet(ctx); err != nil {
		metrics.Greetings.WithLabelValues(metrics.OutcomeError).Inc()
		span.RecordError(err)
		log.Error().Err(err).Str("component", "scheduler").Str("period", key).Msg("daily greeting failed")
		s.alerts.Alert(ctx, alert.KindGreetingFailed, "daily greeting failed", map[string]string{"period": key, "error": err.Error()})
		return err
	}
	metrics.Greetings.WithLabelValues(metrics.OutcomeOK).Inc()
	log.Info().Str("component", "scheduler").Str("period", key).Msg("daily greeting sent")
	return nil
}

// RunSweeps blocks, sweeping once immediately and then on every wall-clock
// boundary of SweepEvery, until ctx is done.
func (s *Scheduler) RunSweeps(ctx context.Context) {
	for {
		s.SweepOnce(ctx)
		next := NextBoundary(s.clk.Now(), s.cfg.SweepEvery, s.cfg.Location)
		if err := s.sleepUntil(ctx, next); err != nil {
			return
		}
	}
}

// SweepOnce runs one sweep and records its outcome.
func (s *Scheduler) SweepOnce(ctx context.Context) {
	res, err := s.sweeper.Sweep(ctx)
	switch {
	case err != nil:
		metrics.Sweeps.WithLabelValues(metrics.OutcomeError).Inc()
		log.Error().Err(err).Str("component", "scheduler").Msg("reminder sweep failed")
		return
	case res.SendFailed > 0 || len(res.MarkFailed) > 0:
		metrics.Sweeps.WithLabelValues(metrics.OutcomePartial).Inc()
	default:
		metrics.Sweeps.WithLabelValues(metrics.OutcomeOK).Inc()
	}
	for _, id := range res.MarkFailed {
		s.alerts.Alert(ctx, alert.KindMarkFailed, "reminder sent but not marked; it may repeat", map[string]string{"commitment_id": id})
	}
	if res.Due > 0 {
		log.Info().Str("component", "scheduler").Int("due", res.Due).Int("sent", res.Sent).
			Int("send_failed", res.SendFailed).Msg("reminder sweep")
	}
}

func (s *Scheduler) sleepUntil(ctx context.Context, t time.Time) error {
	for {
		d := t.Sub(s.clk.Now())
		if d <= 0 {
			return ctx.Err()
		}
		if d > s.cfg.MaxSleepSlice {
			d = s.cfg.MaxSleepSlice
		}
		if err := clock.Sleep(ctx, s.clk, d); err != nil {
			return err
		}
	}
}
