package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/pkg/errors"

	"duetto/internal/models"
)

// Webhook payload formats.
const (
	FormatDiscord = "discord"
	FormatSlack   = "slack"
	FormatJSON    = "json"
)

// Webhook posts alerts to a configured URL as discord embeds, slack
// blocks, or the raw alert JSON. Transient failures (network errors,
// 429, 5xx) retry with exponential backoff, three attempts in total.
type Webhook struct {
	url    string
	format string
	client *http.Client
}

// NewWebhook returns a notifier for url. Unknown formats fall back to
// the raw alert JSON.
func NewWebhook(url, format string) *Webhook {
	return &Webhook{
		url:    url,
		format: format,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

func (w *Webhook) Name() string { return "webhook" }

func (w *Webhook) Send(ctx context.Context, alert models.Alert) error {
	var payload any
	switch w.format {
	case FormatDiscord:
		payload = DiscordPayload(alert)
	case FormatSlack:
		payload = SlackPayload(alert)
	default:
		payload = alert
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return errors.Wrap(err, "marshal webhook payload")
	}

	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(errors.Wrap(err, "build webhook request"))
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := w.client.Do(req)
		if err != nil {
			return errors.Wrap(err, "post webhook")
		}
		defer resp.Body.Close()
		io.Copy(io.Discard, resp.Body)

		switch {
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			return nil
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
			return errors.Errorf("webhook: HTTP %d", resp.StatusCode)
		default:
			return backoff.Permanent(errors.Errorf("webhook: HTTP %d", resp.StatusCode))
		}
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(newWebhookBackOff(), 2), ctx)
	return backoff.Retry(op, policy)
}

func newWebhookBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 200 * time.Millisecond
	b.MaxInterval = 2 * time.Second
	return b
}

func (w *Webhook) Close() error { return nil }
