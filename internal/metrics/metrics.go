// Package metrics holds the Prometheus collectors for the concierge's
// background work: inbound message handling, executor actions, reminder
// sweeps, greetings, collaborator latency and operator alerts.
//
// Labels are drawn from small fixed sets (action names, outcomes,
// collaborator names) to keep cardinality bounded. Collectors register with
// the default registry in init, so /metrics exposes them alongside the HTTP
// middleware's series.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Outcome label values.
const (
	OutcomeOK        = "ok"
	OutcomeIgnored   = "ignored"
	OutcomeRetry     = "retry"
	OutcomeSkipped   = "skipped"
	OutcomePartial   = "partial"
	OutcomeError     = "error"
	OutcomeDuplicate = "duplicate"
)

var (
	// InboundMessages counts inbound messages by final outcome.
	InboundMessages = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "concierge_inbound_messages_total",
			Help: "Inbound messages handled by the poller, by outcome.",
		},
		[]string{"outcome"},
	)

	// Actions counts executor runs by action and outcome.
	Actions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "concierge_actions_total",
			Help: "Executor actions by action name and outcome.",
		},
		[]string{"action", "outcome"},
	)

	// RemindersSent counts reminders delivered and marked.
	RemindersSent = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "concierge_reminders_sent_total",
			Help: "Reminders sent for upcoming commitments.",
		},
	)

	// Sweeps counts reminder sweeps by outcome.
	Sweeps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "concierge_sweeps_total",
			Help: "Reminder sweeps by outcome.",
		},
		[]string{"outcome"},
	)

	// Greetings counts daily greeting evaluations by outcome.
	Greetings = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "concierge_greetings_total",
			Help: "Daily greeting evaluations by outcome.",
		},
		[]string{"outcome"},
	)

	// CollaboratorDuration records latency of calls to external
	// collaborators (llm, search, channel).
	CollaboratorDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "concierge_collaborator_duration_seconds",
			Help:    "Duration of collaborator calls in seconds.",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 20, 45},
		},
		[]string{"collaborator"},
	)

	// OperatorAlerts counts alerts raised to the operator by kind.
	OperatorAlerts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "concierge_operator_alerts_total",
			Help: "Operator alerts raised, by kind.",
		},
		[]string{"kind"},
	)
)

func init() {
	prometheus.MustRegister(InboundMessages, Actions, RemindersSent, Sweeps, Greetings, CollaboratorDuration, OperatorAlerts)
}

// ObserveSince records the time elapsed since start for collaborator.
func ObserveSince(collaborator string, start time.Time) {
	CollaboratorDuration.WithLabelValues(collaborator).Observe(time.Since(start).Seconds())
}
