package models

import (
	"crypto/md5"
	"encoding/hex"
	"strings"
	"time"
)

// AlertKind identifies the class of market event an alert describes.
// The string values are the wire values used on every outbound payload.
type AlertKind string

const (
	KindFiling8K     AlertKind = "sec_8k"
	KindFilingS3     AlertKind = "sec_s3"
	KindForm4        AlertKind = "sec_form4"
	KindFiling6K     AlertKind = "sec_6k"
	KindFdaApproval  AlertKind = "fda_approval"
	KindFdaPdufa     AlertKind = "fda_pdufa"
	KindFdaTrial     AlertKind = "fda_trial"
	KindPressRelease AlertKind = "pr_news"
	KindPriceMove    AlertKind = "stock_movement"
)

// Catalyst category labels stored in enrichment["catalysts"]. The
// classifier writes them; filters, templates and the rule-based
// analyst read them.
const (
	CatalystMergerAcquisition       = "merger_acquisition"
	CatalystFda                     = "fda_catalyst"
	CatalystOfferingDilution        = "offering_dilution"
	CatalystContractPartnership     = "contract_partnership"
	CatalystInsiderActivity         = "insider_activity"
	CatalystBankruptcyRestructuring = "bankruptcy_restructuring"
)

// Priority ranks how urgent an alert is. Pipeline stages may raise a
// priority but never lower one.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// Rank places p in the low < medium < high order. Unknown values rank
// below low so they never out-rank a real priority.
func (p Priority) Rank() int {
	switch p {
	case PriorityLow:
		return 0
	case PriorityMedium:
		return 1
	case PriorityHigh:
		return 2
	default:
		return -1
	}
}

// ParsePriority maps a config string onto a Priority. Anything
// unrecognized falls back to low.
func ParsePriority(s string) Priority {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "high":
		return PriorityHigh
	case "medium":
		return PriorityMedium
	default:
		return PriorityLow
	}
}

// Alert is the normalized market event every collector produces and
// every downstream stage consumes. Alerts pass through the pipeline by
// value; once broadcast they must not be mutated.
type Alert struct {
	ID         string         `json:"id"`       // 16 hex chars, stable per source item
	Kind       AlertKind      `json:"type"`
	Priority   Priority       `json:"priority"`
	Ticker     string         `json:"ticker,omitempty"` // uppercase symbol, when resolvable
	Company    string         `json:"company"`
	Title      string         `json:"title"`
	Summary    string         `json:"summary"` // HTML stripped, at most 500 chars
	URL        string         `json:"url"`
	Source     string         `json:"source"`
	Timestamp  time.Time      `json:"timestamp"` // UTC
	Enrichment map[string]any `json:"enrichment_data,omitempty"`
	Raw        map[string]any `json:"raw_data,omitempty"`
}

// HashID derives a stable alert ID from source-intrinsic fields: the
// first 16 hex characters of the md5 of the concatenated parts.
func HashID(parts ...string) string {
	sum := md5.Sum([]byte(strings.Join(parts, "")))
	return hex.EncodeToString(sum[:])[:16]
}

// SetEnrichment stores an enrichment value, allocating the map on
// first use so the zero Alert stays usable.
func (a *Alert) SetEnrichment(key string, value any) {
	if a.Enrichment == nil {
		a.Enrichment = make(map[string]any)
	}
	a.Enrichment[key] = value
}

// Catalysts returns the classifier labels attached to the alert.
// Handles both the in-process []string form and the []any form a JSON
// round trip produces.
func (a Alert) Catalysts() []string {
	if a.Enrichment == nil {
		return nil
	}
	switch v := a.Enrichment["catalysts"].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

// AISummary returns the AI enrichment text, or "" when absent.
func (a Alert) AISummary() string {
	if a.Enrichment == nil {
		return ""
	}
	s, _ := a.Enrichment["ai_summary"].(string)
	return s
}
