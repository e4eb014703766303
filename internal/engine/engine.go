// Package engine supervises the alert pipeline: it drives every
// collector, runs each alert through the processor chain and hands the
// survivors to the broadcast hub and the notifier fanout.
package engine

import (
	"context"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"duetto/internal/collectors"
	"duetto/internal/metrics"
	"duetto/internal/models"
	"duetto/internal/pipeline"
)

// Broadcaster receives every alert that survives the chain. The hub
// implements it.
type Broadcaster interface {
	Broadcast(alert models.Alert)
	ConnectionCount() int
	RecentCount() int
	Close()
}

// Fanout delivers alerts to the external notification channels.
type Fanout interface {
	Notify(ctx context.Context, alert models.Alert)
	Close()
}

// Loader is anything that must be brought up before the collectors,
// in practice the ticker resolver.
type Loader interface {
	Load(ctx context.Context) error
}

// notifyGrace is how long in-flight notifier sends may finish after
// Stop before their context is cancelled.
const notifyGrace = 5 * time.Second

// stopGrace bounds how long Stop waits for the drivers to exit.
const stopGrace = 10 * time.Second

// Status is a point-in-time snapshot for the status endpoint.
type Status struct {
	Running     bool
	Connections int
	RecentCount int
	LastSuccess map[string]time.Time // per collector, zero until first alert
}

// Engine owns the collectors and the data flow between them and the
// sinks. One collector failing never affects the others; a collector
// whose channel closes while the engine runs is restarted with
// exponential backoff.
type Engine struct {
	resolver   Loader
	chain      *pipeline.Chain
	hub        Broadcaster
	fanout     Fanout
	collectors []collectors.Collector

	// restartInitial and restartMax bound the driver restart backoff.
	restartInitial time.Duration
	restartMax     time.Duration

	mu          sync.Mutex
	running     bool
	cancel      context.CancelFunc
	notifyCtx   context.Context
	stopNotify  context.CancelFunc
	lastSuccess map[string]time.Time

	wg sync.WaitGroup
}

// New wires an engine. resolver may be nil when ticker resolution is
// not needed.
func New(resolver Loader, chain *pipeline.Chain, hub Broadcaster, fanout Fanout, cols ...collectors.Collector) *Engine {
	return &Engine{
		resolver:       resolver,
		chain:          chain,
		hub:            hub,
		fanout:         fanout,
		collectors:     cols,
		restartInitial: time.Second,
		restartMax:     30 * time.Second,
		lastSuccess:    make(map[string]time.Time),
	}
}

// Start brings up the resolver and one driver goroutine per collector.
// Idempotent while running.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return nil
	}
	ctx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	e.notifyCtx, e.stopNotify = context.WithCancel(context.Background())
	e.running = true
	e.mu.Unlock()

	if e.resolver != nil {
		if err := e.resolver.Load(ctx); err != nil {
			log.Printf("Warning: ticker resolver load failed, lookups will miss: %v", err)
		}
	}

	names := make([]string, len(e.collectors))
	for i, c := range e.collectors {
		names[i] = c.Name()
		e.wg.Add(1)
		go e.drive(ctx, c)
	}
	log.Printf("Engine started with %d collectors: %s", len(names), strings.Join(names, ", "))
	return nil
}

// drive runs one collector for the engine's lifetime, restarting it
// whenever its channel closes early. The backoff resets once a run
// has delivered at least one alert.
func (e *Engine) drive(ctx context.Context, c collectors.Collector) {
	defer e.wg.Done()

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = e.restartInitial
	bo.MaxInterval = e.restartMax
	bo.MaxElapsedTime = 0
	bo.Reset()

	for {
		if err := c.Start(ctx); err != nil {
			log.Printf("ERROR: collector %s failed to start: %v", c.Name(), err)
		} else {
			if e.consume(ctx, c) > 0 {
				bo.Reset()
			}
			c.Stop()
		}
		if ctx.Err() != nil {
			return
		}

		wait := bo.NextBackOff()
		metrics.CollectorRestarts.WithLabelValues(c.Name()).Inc()
		log.Printf("Warning: collector %s stopped, restarting in %s", c.Name(), wait.Round(time.Millisecond))
		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
	}
}

// consume processes the collector's alerts until its channel closes,
// returning how many alerts it delivered. Each alert is processed to
// completion, fanout included, before the next is read.
func (e *Engine) consume(ctx context.Context, c collectors.Collector) int {
	n := 0
	for alert := range c.Alerts() {
		e.process(alert)
		e.markSuccess(c.Name())
		n++
	}
	return n
}

// process pushes one alert through chain → hub → fanout.
func (e *Engine) process(alert models.Alert) {
	out, ok := e.chain.Run(alert)
	if !ok {
		return
	}
	if out.Priority == models.PriorityHigh {
		log.Printf("🔴 [HIGH] %s", out.Title)
	} else {
		log.Printf("[%s] %s", strings.ToUpper(string(out.Priority)), out.Title)
	}
	e.hub.Broadcast(out)
	e.fanout.Notify(e.notifyCtx, out)
}

func (e *Engine) markSuccess(name string) {
	e.mu.Lock()
	e.lastSuccess[name] = time.Now().UTC()
	e.mu.Unlock()
}

// Stop signals the drivers, stops collectors in reverse start order,
// waits out the grace period and closes the sinks. Idempotent.
func (e *Engine) Stop() {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return
	}
	e.running = false
	cancel, stopNotify := e.cancel, e.stopNotify
	e.mu.Unlock()

	cancel()
	for i := len(e.collectors) - 1; i >= 0; i-- {
		e.collectors[i].Stop()
	}

	// In-flight notifier sends get notifyGrace before their context dies.
	graceTimer := time.AfterFunc(notifyGrace, stopNotify)

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(stopGrace):
		log.Println("Warning: drivers did not stop within grace period")
	}

	graceTimer.Stop()
	stopNotify()
	e.fanout.Close()
	e.hub.Close()
	log.Println("Engine stopped")
}

// Status reports the running flag, subscriber and recent-alert counts
// and each collector's last successful emission.
func (e *Engine) Status() Status {
	e.mu.Lock()
	last := make(map[string]time.Time, len(e.lastSuccess))
	for k, v := range e.lastSuccess {
		last[k] = v
	}
	running := e.running
	e.mu.Unlock()

	return Status{
		Running:     running,
		Connections: e.hub.ConnectionCount(),
		RecentCount: e.hub.RecentCount(),
		LastSuccess: last,
	}
}
