package pipeline

import (
	"regexp"
	"strings"

	"duetto/internal/models"
)

// category pairs a catalyst label with the patterns that trigger it.
type category struct {
	label    string
	patterns []*regexp.Regexp
}

func compile(exprs ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(exprs))
	for i, e := range exprs {
		out[i] = regexp.MustCompile(`(?i)` + e)
	}
	return out
}

// catalystCategories is evaluated in a fixed order so the label list
// on an alert is deterministic.
var catalystCategories = []category{
	{models.CatalystMergerAcquisition, compile(
		`\bmerger\b`, `\bacquisition\b`, `\bacquire[sd]?\b`, `\bbuyout\b`,
		`\btender offer\b`, `\bdefinitive agreement\b`, `\bgoing private\b`, `\btakeover\b`,
	)},
	{models.CatalystFda, compile(
		`\bfda\b`, `\bpdufa\b`, `\bapproval\b`, `\bclearance\b`, `\bphase [123]\b`,
		`\bclinical trial\b`, `\bnda\b`, `\bbla\b`, `\binda\b`, `\bbreakthrough therapy\b`,
	)},
	{models.CatalystOfferingDilution, compile(
		`\boffering\b`, `\bplacement\b`, `\bdilution\b`, `\bshelf registration\b`,
		`\bs-3\b`, `\bsecurities act\b`, `\bprospectus\b`, `\bwarrant\b`,
	)},
	{models.CatalystContractPartnership, compile(
		`\bcontract\b`, `\bagreement\b`, `\bpartnership\b`, `\blicense\b`,
		`\bcollaboration\b`, `\balliance\b`, `\bdistribution\b`, `\bsupply agreement\b`,
	)},
	{models.CatalystInsiderActivity, compile(
		`\bform 4\b`, `\binsider\b`, `\bdirector\b`, `\bofficer\b`,
		`\bpurchase\b`, `\bacquisition of\b`, `\bopen market\b`,
	)},
	{models.CatalystBankruptcyRestructuring, compile(
		`\bbankruptcy\b`, `\bchapter 11\b`, `\bchapter 7\b`,
		`\brestructuring\b`, `\bdefault\b`, `\binsolvency\b`,
	)},
}

// noisePatterns flag routine disclosures nobody trades on.
var noisePatterns = compile(
	`\broutine\b.*\bfiling\b`, `\bquarterly report\b`, `\bannual report\b`,
	`\b10-k\b`, `\b10-q\b`, `\bproxy statement\b`,
)

var highImpact = map[string]bool{
	models.CatalystMergerAcquisition:       true,
	models.CatalystFda:                     true,
	models.CatalystBankruptcyRestructuring: true,
}

var mediumImpact = map[string]bool{
	models.CatalystContractPartnership: true,
	models.CatalystInsiderActivity:     true,
}

// Classifier tags alerts with catalyst categories and raises the
// priority of market-moving ones. With noise filtering enabled it
// drops routine-filing chatter before any classification is stored.
type Classifier struct {
	filterNoise bool
}

// NewClassifier returns a Classifier. filterNoise enables the noise drop.
func NewClassifier(filterNoise bool) *Classifier {
	return &Classifier{filterNoise: filterNoise}
}

func (c *Classifier) Name() string { return "classifier" }

func (c *Classifier) Process(alert models.Alert) (models.Alert, bool) {
	text := alert.Title + " " + alert.Summary
	if c.filterNoise && matchesAny(noisePatterns, text) {
		return models.Alert{}, false
	}

	lowered := strings.ToLower(text)
	var labels []string
	for _, cat := range catalystCategories {
		if matchesAny(cat.patterns, lowered) {
			labels = append(labels, cat.label)
		}
	}
	if len(labels) == 0 {
		return alert, true
	}

	alert.SetEnrichment("catalysts", labels)
	alert.Priority = upgrade(alert.Priority, labels)
	return alert, true
}

func matchesAny(patterns []*regexp.Regexp, text string) bool {
	for _, p := range patterns {
		if p.MatchString(text) {
			return true
		}
	}
	return false
}

// upgrade raises a priority according to the matched categories and
// never lowers one.
func upgrade(current models.Priority, labels []string) models.Priority {
	for _, l := range labels {
		if highImpact[l] {
			return models.PriorityHigh
		}
	}
	if current == models.PriorityLow {
		for _, l := range labels {
			if mediumImpact[l] {
				return models.PriorityMedium
			}
		}
	}
	return current
}
