// Package hub fans processed alerts out to live push subscribers and
// keeps the recent-alert ring served on the status endpoints.
package hub

import (
	"encoding/json"
	"log"
	"sync"

	"duetto/internal/metrics"
	"duetto/internal/models"
)

// Subscriber is a live push client attached to the hub. Send must not
// block indefinitely: a slow or dead client surfaces an error and is
// detached rather than stalling the pipeline.
type Subscriber interface {
	ID() string
	Send(payload []byte) error
	Close() error
}

// Hub is the single publish point between the pipeline and everything
// that watches it live.
type Hub struct {
	mu        sync.Mutex
	subs      map[string]Subscriber
	recent    []models.Alert // newest first
	recentCap int
}

// New returns a Hub keeping the last recentCap alerts.
func New(recentCap int) *Hub {
	return &Hub{
		subs:      make(map[string]Subscriber),
		recentCap: recentCap,
	}
}

// Attach registers a subscriber. It only sees alerts broadcast after
// this call.
func (h *Hub) Attach(sub Subscriber) {
	h.mu.Lock()
	h.subs[sub.ID()] = sub
	h.mu.Unlock()
	log.Printf("Subscriber %s attached (%d connected)", sub.ID(), h.ConnectionCount())
}

// Detach removes and closes a subscriber. Safe to call twice.
func (h *Hub) Detach(id string) {
	h.mu.Lock()
	sub, ok := h.subs[id]
	if ok {
		delete(h.subs, id)
	}
	h.mu.Unlock()
	if !ok {
		return
	}
	sub.Close()
	metrics.SubscribersDetached.Inc()
	log.Printf("Subscriber %s detached (%d connected)", id, h.ConnectionCount())
}

// Broadcast serializes the alert once and delivers it to the set of
// subscribers attached at call time. A subscriber whose Send fails is
// detached; its failure never reaches the others.
func (h *Hub) Broadcast(alert models.Alert) {
	payload, err := json.Marshal(alert)
	if err != nil {
		log.Printf("ERROR: could not serialize alert %s: %v", alert.ID, err)
		return
	}

	h.mu.Lock()
	h.recent = append([]models.Alert{alert}, h.recent...)
	if len(h.recent) > h.recentCap {
		h.recent = h.recent[:h.recentCap]
	}
	snapshot := make([]Subscriber, 0, len(h.subs))
	for _, s := range h.subs {
		snapshot = append(snapshot, s)
	}
	h.mu.Unlock()

	metrics.AlertsBroadcast.Inc()

	var failed []string
	for _, s := range snapshot {
		if err := s.Send(payload); err != nil {
			log.Printf("Warning: send to subscriber %s failed, detaching: %v", s.ID(), err)
			failed = append(failed, s.ID())
		}
	}
	for _, id := range failed {
		h.Detach(id)
	}
}

// ConnectionCount returns the number of attached subscribers.
func (h *Hub) ConnectionCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Recent returns up to limit of the newest alerts, newest first.
// limit <= 0 means all retained alerts.
func (h *Hub) Recent(limit int) []models.Alert {
	h.mu.Lock()
	defer h.mu.Unlock()
	if limit <= 0 || limit > len(h.recent) {
		limit = len(h.recent)
	}
	out := make([]models.Alert, limit)
	copy(out, h.recent[:limit])
	return out
}

// RecentCount returns how many alerts the ring currently holds.
func (h *Hub) RecentCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.recent)
}

// Close detaches every subscriber. Used on shutdown.
func (h *Hub) Close() {
	h.mu.Lock()
	subs := make([]Subscriber, 0, len(h.subs))
	for _, s := range h.subs {
		subs = append(subs, s)
	}
	h.subs = make(map[string]Subscriber)
	h.mu.Unlock()

	for _, s := range subs {
		s.Close()
	}
}
