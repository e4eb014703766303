// Package ai produces short analyst commentary for alerts before they
// go out to notification channels. All providers share one contract:
// empty text means nothing to add, and transport problems surface as
// errors for the caller to log, never to re-raise.
package ai

import (
	"context"
	"fmt"
	"log"
	"strings"

	"duetto/internal/models"
)

// Provider analyzes an alert and returns commentary, or "" when it has
// nothing to say.
type Provider interface {
	Name() string
	Analyze(ctx context.Context, alert models.Alert) (string, error)
}

// Provider selection values for configuration.
const (
	ProviderRule   = "rule"
	ProviderChatV1 = "chat_v1"
	ProviderChatV2 = "chat_v2"
)

// FromConfig builds the configured provider. Chat providers without an
// API key are disabled (nil); unknown names fall back to rule-based.
func FromConfig(provider, apiKey, baseURL, model string) Provider {
	switch provider {
	case ProviderChatV1:
		if c := NewChatV1(apiKey, baseURL, model); c != nil {
			return c
		}
		log.Println("AI provider chat_v1 disabled: missing API key")
		return nil
	case ProviderChatV2:
		if c := NewChatV2(apiKey, model); c != nil {
			return c
		}
		log.Println("AI provider chat_v2 disabled: missing API key")
		return nil
	case ProviderRule, "":
		return NewRuleBased()
	default:
		log.Printf("Warning: unknown AI provider %q, using rule-based", provider)
		return NewRuleBased()
	}
}

// systemPrompt frames every chat-API request.
const systemPrompt = `You are a trading analyst specializing in news-driven catalyst trading.

Analyze the given market alert and provide:
1. Brief assessment of the catalyst (bullish/bearish/neutral)
2. Expected price action (short-term)
3. Key risks to watch

Keep it under 150 words. Be concise but actionable. Use emojis for clarity.

⚠️ IMPORTANT: This is NOT financial advice. Always do your own research.`

// userPrompt renders the alert facts the analyst sees.
func userPrompt(alert models.Alert) string {
	ticker := alert.Ticker
	if ticker == "" {
		ticker = "Unknown"
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "Analyze this market alert:\n\n")
	fmt.Fprintf(&sb, "Type: %s\n", alert.Kind)
	fmt.Fprintf(&sb, "Priority: %s\n", alert.Priority)
	fmt.Fprintf(&sb, "Ticker: %s\n", ticker)
	fmt.Fprintf(&sb, "Company: %s\n", alert.Company)
	if catalysts := alert.Catalysts(); len(catalysts) > 0 {
		fmt.Fprintf(&sb, "Catalysts: %s\n", strings.Join(catalysts, ", "))
	}
	fmt.Fprintf(&sb, "\nTitle: %s\nSummary: %s\n\nProvide a brief trading analysis.", alert.Title, alert.Summary)
	return sb.String()
}
