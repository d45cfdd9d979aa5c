// Package notify delivers job lifecycle events to an external webhook.
// Delivery is best effort; the job lifecycle never waits on or fails from
// notification problems.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"server/internal/infra"
	"server/internal/videojob"
)

// Webhook posts job events as JSON to a configured URL.
type Webhook struct {
	url    string
	client *http.Client
	logger infra.Logger
}

// NewWebhook builds a notifier for the given URL. An empty URL yields a
// notifier that drops every event.
func NewWebhook(url string, client *http.Client, logger infra.Logger) *Webhook {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &Webhook{url: url, client: client, logger: logger}
}

// JobEvent delivers the event in the background. Failures are logged and
// dropped.
func (w *Webhook) JobEvent(ctx context.Context, evt videojob.JobEvent) {
	if w.url == "" {
		return
	}
	go w.deliver(evt)
}

func (w *Webhook) deliver(evt videojob.JobEvent) {
	body, err := json.Marshal(evt)
	if err != nil {
		w.logger.Error().Err(err).Str("event", evt.Event).Msg("marshal job event")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		w.logger.Error().Err(err).Str("event", evt.Event).Msg("build webhook request")
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		w.logger.Warn().Err(err).Str("event", evt.Event).Str("job_id", evt.JobID).
			Msg("webhook delivery failed")
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		w.logger.Warn().Int("status", resp.StatusCode).Str("event", evt.Event).
			Str("job_id", evt.JobID).Msg("webhook rejected event")
		return
	}
	w.logger.Debug().Str("event", evt.Event).Str("job_id", evt.JobID).Msg("webhook delivered")
}
