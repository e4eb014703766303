// Package notify delivers processed alerts to the configured external
// channels: Telegram, email, generic webhooks and Feishu cards.
package notify

import (
	"context"
	"log"
	"maps"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"duetto/internal/metrics"
	"duetto/internal/models"
)

// Notifier delivers one alert to one external channel.
type Notifier interface {
	Name() string
	Send(ctx context.Context, alert models.Alert) error
	Close() error
}

// Enricher adds analyst commentary to an alert before delivery.
// Implementations must return "" when they have nothing to say.
type Enricher interface {
	Analyze(ctx context.Context, alert models.Alert) (string, error)
}

// Fanout dispatches each alert to every notifier in parallel. One
// channel failing is logged and never stops the others.
type Fanout struct {
	notifiers []Notifier
	enricher  Enricher // optional
	min       models.Priority
}

// NewFanout builds a Fanout. Alerts below min are skipped entirely;
// enricher may be nil.
func NewFanout(min models.Priority, enricher Enricher, notifiers ...Notifier) *Fanout {
	return &Fanout{notifiers: notifiers, enricher: enricher, min: min}
}

// Notify enriches the alert at most once, then sends it to every
// channel, waiting for all of them to finish.
func (f *Fanout) Notify(ctx context.Context, alert models.Alert) {
	if len(f.notifiers) == 0 || alert.Priority.Rank() < f.min.Rank() {
		return
	}

	enriched := f.withEnrichment(ctx, alert)

	var sent atomic.Int64
	var g errgroup.Group
	for _, n := range f.notifiers {
		n := n
		g.Go(func() error {
			if err := n.Send(ctx, enriched); err != nil {
				log.Printf("ERROR: %s notifier failed for alert %s: %v", n.Name(), enriched.ID, err)
				metrics.NotifyFailures.WithLabelValues(n.Name()).Inc()
				return nil
			}
			metrics.NotifySent.WithLabelValues(n.Name()).Inc()
			sent.Add(1)
			return nil
		})
	}
	g.Wait()
	log.Printf("Sent alert %s to %d/%d notifiers", enriched.ID, sent.Load(), len(f.notifiers))
}

// withEnrichment returns a copy carrying the AI summary. The broadcast
// alert itself is never mutated.
func (f *Fanout) withEnrichment(ctx context.Context, alert models.Alert) models.Alert {
	if f.enricher == nil {
		return alert
	}
	text, err := f.enricher.Analyze(ctx, alert)
	if err != nil {
		log.Printf("Warning: AI analysis failed for alert %s: %v", alert.ID, err)
		return alert
	}
	if text == "" {
		return alert
	}
	enriched := alert
	enriched.Enrichment = maps.Clone(alert.Enrichment)
	enriched.SetEnrichment("ai_summary", text)
	return enriched
}

// Close releases every notifier's resources.
func (f *Fanout) Close() {
	for _, n := range f.notifiers {
		if err := n.Close(); err != nil {
			log.Printf("Warning: closing %s notifier: %v", n.Name(), err)
		}
	}
}

// Channels returns the notifier names, for the startup banner.
func (f *Fanout) Channels() []string {
	names := make([]string, len(f.notifiers))
	for i, n := range f.notifiers {
		names[i] = n.Name()
	}
	return names
}
