// Package collectors contains the alert producers: the SEC EDGAR feed
// poller, the FDA approvals scraper and the TradingView quote stream.
// Each runs its own goroutine and emits normalized alerts on a bounded
// channel until stopped.
package collectors

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"

	"duetto/internal/metrics"
	"duetto/internal/models"
)

// Collector is a single alert source. Start and Stop are idempotent;
// Alerts returns the output channel, which closes once the collector
// has fully stopped. Transient source failures are logged and skipped,
// never surfaced through the channel.
type Collector interface {
	Name() string
	Start(ctx context.Context) error
	Stop() error
	Alerts() <-chan models.Alert
}

// seenCapacity is the per-collector recency window: at most one alert
// per source identifier within this many distinct identifiers.
const seenCapacity = 10_000

// outBuffer decouples the produce loop from slow consumers.
const outBuffer = 256

// runner carries the lifecycle every collector shares: an idempotent
// start that spawns the produce loop and an idempotent stop that
// cancels it and waits for the output channel to close.
type runner struct {
	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
	out    chan models.Alert
}

// start spawns loop on its own goroutine. Calling start on a running
// collector is a no-op; after stop it starts fresh.
func (r *runner) start(ctx context.Context, loop func(context.Context)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel != nil {
		return nil
	}
	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.done = make(chan struct{})
	r.out = make(chan models.Alert, outBuffer)
	out, done := r.out, r.done
	go func() {
		defer close(out)
		defer close(done)
		loop(ctx)
	}()
	return nil
}

// stop cancels the loop and waits for it to finish. Safe to call
// twice and concurrently with the loop itself.
func (r *runner) stop() error {
	r.mu.Lock()
	cancel, done := r.cancel, r.done
	r.cancel = nil
	r.mu.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()
	<-done
	return nil
}

// Alerts returns the current output channel.
func (r *runner) Alerts() <-chan models.Alert {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.out
}

// emit delivers an alert unless the collector is shutting down.
func (r *runner) emit(ctx context.Context, out chan<- models.Alert, alert models.Alert) bool {
	select {
	case out <- alert:
		metrics.AlertsEmitted.WithLabelValues(alert.Source).Inc()
		return true
	case <-ctx.Done():
		return false
	}
}

// sleep pauses for d, waking early on cancellation. Returns false when
// the context ended first.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// stripHTML reduces markup to its text content and collapses runs of
// whitespace. Input that fails to parse is returned collapsed as-is.
func stripHTML(s string) string {
	if strings.ContainsAny(s, "<&") {
		if doc, err := goquery.NewDocumentFromReader(strings.NewReader(s)); err == nil {
			s = doc.Text()
		}
	}
	return strings.Join(strings.Fields(s), " ")
}

// summaryLimit is the maximum summary length on any alert.
const summaryLimit = 500

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
