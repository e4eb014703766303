package pipeline

import (
	"duetto/internal/cache"
	"duetto/internal/models"
)

// Dedup drops alerts whose id was already seen inside the recency
// window. It is shared across all collectors, so the same event
// surfacing on two feeds is only delivered once.
type Dedup struct {
	seen *cache.RecencyCache
}

// NewDedup returns a Dedup stage remembering the last capacity ids.
func NewDedup(capacity int) (*Dedup, error) {
	seen, err := cache.New(capacity)
	if err != nil {
		return nil, err
	}
	return &Dedup{seen: seen}, nil
}

func (d *Dedup) Name() string { return "dedup" }

func (d *Dedup) Process(alert models.Alert) (models.Alert, bool) {
	if !d.seen.Add(alert.ID) {
		return models.Alert{}, false
	}
	return alert, true
}
