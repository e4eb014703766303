package pipeline

import (
	"duetto/internal/models"
)

// PriorityFilter drops alerts below the configured minimum priority
// and, when an allow-list is set, alerts without a matching catalyst.
// Pure config decision: the same (alert, config) always drops or
// passes the same way.
type PriorityFilter struct {
	min     models.Priority
	allowed map[string]bool
}

// NewPriorityFilter returns a filter passing alerts at or above min.
// A non-empty catalysts list additionally requires at least one of the
// listed categories on the alert.
func NewPriorityFilter(min models.Priority, catalysts []string) *PriorityFilter {
	f := &PriorityFilter{min: min}
	if len(catalysts) > 0 {
		f.allowed = make(map[string]bool, len(catalysts))
		for _, c := range catalysts {
			f.allowed[c] = true
		}
	}
	return f
}

func (f *PriorityFilter) Name() string { return "priority_filter" }

func (f *PriorityFilter) Process(alert models.Alert) (models.Alert, bool) {
	if alert.Priority.Rank() < f.min.Rank() {
		return models.Alert{}, false
	}
	if f.allowed != nil {
		hit := false
		for _, c := range alert.Catalysts() {
			if f.allowed[c] {
				hit = true
				break
			}
		}
		if !hit {
			return models.Alert{}, false
		}
	}
	return alert, true
}
