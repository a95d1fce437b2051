// Package alert raises operator-facing notices when the concierge had to
// give up on something: an inbound message skipped after repeated failures,
// a commitment saved without its confirmation, a reminder that could not be
// marked.
package alert

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/psemmelhack/fm-agent/internal/metrics"
)

// Alert kinds.
const (
	KindMessageSkipped = "message_skipped"
	KindPartialCommit  = "partial_commit"
	KindMarkFailed     = "mark_failed"
	KindGreetingFailed = "greeting_failed"
)

// Alerter notifies the operator. Implementations must not block for long;
// failures are logged, never returned.
type Alerter interface {
	Alert(ctx context.Context, kind, summary string, fields map[string]string)
}

// Log is an Alerter that only writes a structured error log line.
type Log struct{}

// Alert implements Alerter.
func (Log) Alert(_ context.Context, kind, summary string, fields map[string]string) {
	metrics.OperatorAlerts.WithLabelValues(kind).Inc()
	ev := log.Error().Str("component", "alert").Str("kind", kind)
	for k, v := range fields {
		ev = ev.Str(k, v)
	}
	ev.Msg(summary)
}

// WebhookConfig configures a Webhook alerter.
type WebhookConfig struct {
	URL     string
	Timeout time.Duration
}

// Webhook posts alerts as JSON to an operator URL, in addition to logging.
type Webhook struct {
	url    string
	client *http.Client
}

// Payload is the webhook request body.
type Payload struct {
	Event     string            `json:"event"`
	Kind      string            `json:"kind"`
	Summary   string            `json:"summary"`
	Fields    map[string]string `json:"fields,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

// NewWebhook returns a Webhook alerter.
func NewWebhook(cfg WebhookConfig) *Webhook {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Webhook{url: cfg.URL, client: &http.Client{Timeout: cfg.Timeout}}
}

// Alert implements Alerter.
func (w *Webhook) Alert(ctx context.Context, kind, summary string, fields map[string]string) {
	Log{}.Alert(ctx, kind, summary, fields)
	if err := w.post(ctx, Payload{Event: "concierge.alert", Kind: kind, Summary: summary, Fields: fields, Timestamp: time.Now().UTC()}); err != nil {
		log.Warn().Err(err).Str("component", "alert").Str("kind", kind).Msg("operator webhook failed")
	}
}

func (w *Webhook) post(ctx context.Context, p Payload) error {
	body, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal alert: %w", err)
	}
	// Detach from the caller's cancellation so a shutdown still delivers.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), w.client.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create alert request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("alert request failed: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<16))

	if resp.StatusCode >= 400 {
		return fmt.Errorf("alert webhook returned status %d", resp.StatusCode)
	}
	return nil
}

// New picks the Webhook alerter when url is set and Log otherwise.
func New(url string) Alerter {
	if url == "" {
		return Log{}
	}
	return NewWebhook(WebhookConfig{URL: url})
}
