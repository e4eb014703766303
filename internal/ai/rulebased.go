package ai

import (
	"context"
	"strings"

	"duetto/internal/models"
)

// RuleBased maps catalyst categories to canned assessments. No
// network, no credentials, fully deterministic; the default provider.
type RuleBased struct{}

// NewRuleBased returns the rule-based provider.
func NewRuleBased() *RuleBased { return &RuleBased{} }

func (r *RuleBased) Name() string { return ProviderRule }

func (r *RuleBased) Analyze(ctx context.Context, alert models.Alert) (string, error) {
	var bullish, bearish, risks []string
	for _, c := range alert.Catalysts() {
		switch c {
		case models.CatalystMergerAcquisition:
			bullish = append(bullish, "📈 M&A typically causes significant upward movement on announcement")
			risks = append(risks, "Watch for deal break risk and regulatory approval")
		case models.CatalystFda:
			bullish = append(bullish, "📈 FDA approval often drives biotech rallies")
			risks = append(risks, "Clinical trial results can be unpredictable")
		case models.CatalystInsiderActivity:
			// Only meaningful on actual insider filings.
			if alert.Kind == models.KindForm4 {
				bullish = append(bullish, "📈 Insider buying can signal management confidence")
				risks = append(risks, "Insider sells are less informative")
			}
		case models.CatalystOfferingDilution:
			bearish = append(bearish, "📉 Offerings dilute existing shareholders")
			risks = append(risks, "Price often drops on offering news")
		case models.CatalystContractPartnership:
			bullish = append(bullish, "📈 Major contracts/partnerships can be revenue catalysts")
			risks = append(risks, "Verify contract materiality vs market cap")
		case models.CatalystBankruptcyRestructuring:
			bearish = append(bearish, "📉 Bankruptcy risk - extreme caution needed")
			risks = append(risks, "Avoid unless experienced in distressed situations")
		}
	}

	if len(bullish) == 0 && len(bearish) == 0 && len(risks) == 0 {
		return "", nil
	}

	var sections []string
	if len(bullish) > 0 {
		sections = append(sections, "Bullish Signals:\n"+indent(bullish))
	}
	if len(bearish) > 0 {
		sections = append(sections, "Bearish Signals:\n"+indent(bearish))
	}
	if len(risks) > 0 {
		marked := make([]string, len(risks))
		for i, r := range risks {
			marked[i] = "⚠️ " + r
		}
		sections = append(sections, "Risks:\n"+indent(marked))
	}
	return strings.Join(sections, "\n\n") + "\n⚠️ This is not financial advice. Do your own research.", nil
}

func indent(lines []string) string {
	out := make([]string, len(lines))
	for i, l := range lines {
		out[i] = "  " + l
	}
	return strings.Join(out, "\n")
}
