// Package pipeline runs every collected alert through an ordered chain
// of processors before it reaches the broadcast hub.
package pipeline

import (
	"log"

	"duetto/internal/metrics"
	"duetto/internal/models"
)

// Processor is one stage of the alert pipeline. Process returns the
// (possibly modified) alert and whether it should continue; false
// drops it. Stages may raise an alert's priority but never lower it,
// and must not perform I/O.
type Processor interface {
	Name() string
	Process(alert models.Alert) (models.Alert, bool)
}

// Chain applies processors left to right, short-circuiting on the
// first drop.
type Chain struct {
	procs []Processor
}

// NewChain builds a chain from the given stages, applied in order.
func NewChain(procs ...Processor) *Chain {
	return &Chain{procs: procs}
}

// Run pushes alert through every stage. A drop or a recovered panic
// ends the run with ok=false.
func (c *Chain) Run(alert models.Alert) (models.Alert, bool) {
	for _, p := range c.procs {
		var ok bool
		alert, ok = c.apply(p, alert)
		if !ok {
			metrics.AlertsDropped.WithLabelValues(p.Name()).Inc()
			return models.Alert{}, false
		}
	}
	return alert, true
}

// apply isolates a single stage so a panicking processor drops one
// alert instead of killing the driver goroutine.
func (c *Chain) apply(p Processor, alert models.Alert) (out models.Alert, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("ERROR: processor %s panicked on alert %s: %v", p.Name(), alert.ID, r)
			out, ok = models.Alert{}, false
		}
	}()
	return p.Process(alert)
}
