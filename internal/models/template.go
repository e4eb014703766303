package models

// NotificationLevel grades a rendered notification so each channel can
// pick its own styling (color, emoji) deterministically.
type NotificationLevel string

const (
	LevelInfo     NotificationLevel = "info"
	LevelSuccess  NotificationLevel = "success"
	LevelWarning  NotificationLevel = "warning"
	LevelError    NotificationLevel = "error"
	LevelCritical NotificationLevel = "critical"
)

// LevelFor maps alert priority onto a notification level.
func LevelFor(p Priority) NotificationLevel {
	switch p {
	case PriorityHigh:
		return LevelCritical
	case PriorityMedium:
		return LevelWarning
	default:
		return LevelInfo
	}
}

// TemplateField is one ordered key/value row in a notification card.
type TemplateField struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// NotificationTemplate is the channel-agnostic form of an alert ready
// for delivery. Every notifier maps it onto its own payload schema.
type NotificationTemplate struct {
	Title    string            `json:"title"`
	Body     string            `json:"body"` // markdown
	Level    NotificationLevel `json:"level"`
	Link     string            `json:"link,omitempty"`
	LinkText string            `json:"link_text,omitempty"` // defaults to "View Details"
	Fields   []TemplateField   `json:"fields,omitempty"`
	Extras   map[string]any    `json:"extras,omitempty"` // channel-specific overrides
}
