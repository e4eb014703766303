package notify

import (
	"fmt"
	"html/template"
	"strings"
	"time"

	"duetto/internal/models"
)

func priorityEmoji(p models.Priority) string {
	switch p {
	case models.PriorityHigh:
		return "🔴"
	case models.PriorityMedium:
		return "🟡"
	case models.PriorityLow:
		return "🔵"
	default:
		return "⚪"
	}
}

func kindEmoji(k models.AlertKind) string {
	switch k {
	case models.KindFiling8K:
		return "📄"
	case models.KindFilingS3:
		return "💰"
	case models.KindForm4:
		return "👤"
	case models.KindFdaApproval:
		return "💊"
	case models.KindFdaPdufa:
		return "📅"
	case models.KindFdaTrial:
		return "🔬"
	case models.KindPressRelease:
		return "📰"
	default:
		return "📋"
	}
}

// catalystTags are the short hashtag labels per catalyst category.
var catalystTags = map[string]string{
	models.CatalystMergerAcquisition:       "M&A",
	models.CatalystFda:                     "FDA",
	models.CatalystOfferingDilution:        "Offering",
	models.CatalystContractPartnership:     "Partnership",
	models.CatalystInsiderActivity:         "Insider",
	models.CatalystBankruptcyRestructuring: "Bankruptcy",
}

// Build creates the channel-agnostic template for an alert. The
// rich-card notifier renders it directly; the body is markdown.
func Build(alert models.Alert) models.NotificationTemplate {
	body := fmt.Sprintf("**%s**\n\n%s", alert.Company, alert.Summary)
	if ai := alert.AISummary(); ai != "" {
		body += "\n\n🤖 Analysis: " + ai
	}
	tpl := models.NotificationTemplate{
		Title:    alert.Title,
		Body:     body,
		Level:    models.LevelFor(alert.Priority),
		Link:     alert.URL,
		LinkText: "View Details",
	}
	if alert.Ticker != "" {
		tpl.Fields = append(tpl.Fields, models.TemplateField{Key: "Ticker", Value: alert.Ticker})
	}
	tpl.Fields = append(tpl.Fields, models.TemplateField{Key: "Source", Value: alert.Source})
	return tpl
}

// RenderTelegram formats the alert as a Telegram markdown message.
func RenderTelegram(alert models.Alert) string {
	lines := []string{
		fmt.Sprintf("%s *%s Priority*", priorityEmoji(alert.Priority), strings.ToUpper(string(alert.Priority))),
		"",
		fmt.Sprintf("%s *%s*", kindEmoji(alert.Kind), alert.Title),
	}
	if alert.Ticker != "" {
		lines = append(lines, fmt.Sprintf("`%s` | %s", alert.Ticker, alert.Company))
	} else {
		lines = append(lines, alert.Company)
	}
	lines = append(lines, "", "📝 *Summary:*", alert.Summary, "")
	if tags := hashtagLine(alert.Catalysts()); tags != "" {
		lines = append(lines, tags, "")
	}
	if ai := alert.AISummary(); ai != "" {
		lines = append(lines, "🤖 *AI Analysis:*", ai, "")
	}
	lines = append(lines,
		"📅 "+formatTimestamp(alert.Timestamp),
		fmt.Sprintf("🔗 [View Source](%s)", alert.URL),
		"",
		fmt.Sprintf("_Source: %s_", alert.Source),
	)
	return strings.Join(lines, "\n")
}

func hashtagLine(catalysts []string) string {
	if len(catalysts) == 0 {
		return ""
	}
	tags := make([]string, 0, len(catalysts))
	for _, c := range catalysts {
		if label, ok := catalystTags[c]; ok {
			tags = append(tags, "#"+label)
		}
	}
	if len(tags) == 0 {
		return ""
	}
	return "🏷 " + strings.Join(tags, " ")
}

func formatTimestamp(ts time.Time) string {
	return ts.UTC().Format("2006-01-02 15:04:05") + " UTC"
}

func priorityColor(p models.Priority) string {
	switch p {
	case models.PriorityHigh:
		return "#dc2626"
	case models.PriorityMedium:
		return "#f59e0b"
	case models.PriorityLow:
		return "#3b82f6"
	default:
		return "#6b7280"
	}
}

// EmailSubject is "[PRIORITY] <title>".
func EmailSubject(alert models.Alert) string {
	return fmt.Sprintf("[%s] %s", strings.ToUpper(string(alert.Priority)), alert.Title)
}

var emailTmpl = template.Must(template.New("email").Parse(`<!DOCTYPE html>
<html>
<head>
<style>
  body { font-family: Arial, sans-serif; margin: 0; padding: 0; background: #f4f4f5; }
  .container { max-width: 600px; margin: 20px auto; background: #ffffff; border-radius: 8px; overflow: hidden; }
  .header { background: {{.Color}}; color: #ffffff; padding: 16px 24px; }
  .priority { font-size: 12px; text-transform: uppercase; letter-spacing: 1px; }
  .title { font-size: 20px; font-weight: bold; margin-top: 4px; }
  .content { padding: 24px; color: #111827; }
  .ticker { display: inline-block; background: #f3f4f6; border-radius: 4px; padding: 2px 8px; font-family: monospace; margin-bottom: 12px; }
  .summary { line-height: 1.5; color: #374151; }
  .ai { background: #f0f9ff; border-left: 4px solid #0ea5e9; padding: 12px 16px; margin-top: 16px; }
  .ai-label { color: #0284c7; font-weight: bold; margin-bottom: 4px; }
  .link { display: inline-block; margin-top: 16px; color: {{.Color}}; }
  .footer { padding: 16px 24px; font-size: 12px; color: #6b7280; border-top: 1px solid #e5e7eb; }
</style>
</head>
<body>
  <div class="container">
    <div class="header">
      <div class="priority">{{.Priority}} Priority</div>
      <div class="title">{{.Title}}</div>
    </div>
    <div class="content">
      {{if .Ticker}}<div class="ticker">{{.Ticker}}</div> {{.Company}}{{else}}<div>{{.Company}}</div>{{end}}
      <p class="summary">{{.Summary}}</p>
      {{if .AI}}<div class="ai"><div class="ai-label">🤖 AI Analysis</div>{{.AI}}</div>{{end}}
      <a class="link" href="{{.URL}}">View Original Filing</a>
    </div>
    <div class="footer">{{.Source}} | {{.Timestamp}}</div>
  </div>
</body>
</html>
`))

type emailData struct {
	Color     string
	Priority  string
	Title     string
	Ticker    string
	Company   string
	Summary   string
	AI        string
	URL       string
	Source    string
	Timestamp string
}

// RenderEmailHTML formats the alert as the HTML alternative body.
func RenderEmailHTML(alert models.Alert) (string, error) {
	var sb strings.Builder
	err := emailTmpl.Execute(&sb, emailData{
		Color:     priorityColor(alert.Priority),
		Priority:  strings.ToUpper(string(alert.Priority)),
		Title:     alert.Title,
		Ticker:    alert.Ticker,
		Company:   alert.Company,
		Summary:   alert.Summary,
		AI:        alert.AISummary(),
		URL:       alert.URL,
		Source:    alert.Source,
		Timestamp: formatTimestamp(alert.Timestamp),
	})
	if err != nil {
		return "", err
	}
	return sb.String(), nil
}

func discordColor(p models.Priority) int {
	switch p {
	case models.PriorityHigh:
		return 16711680
	case models.PriorityMedium:
		return 15105570
	case models.PriorityLow:
		return 3447003
	default:
		return 10181038
	}
}

// DiscordPayload builds the webhook body for Discord's embed schema.
func DiscordPayload(alert models.Alert) map[string]any {
	fields := []map[string]any{
		{"name": "Company", "value": alert.Company, "inline": true},
	}
	if alert.Ticker != "" {
		fields = append(fields, map[string]any{"name": "Ticker", "value": alert.Ticker, "inline": true})
	}
	fields = append(fields, map[string]any{"name": "Source", "value": alert.Source, "inline": true})

	embed := map[string]any{
		"title":       alert.Title,
		"description": truncate(alert.Summary, 4000),
		"url":         alert.URL,
		"color":       discordColor(alert.Priority),
		"fields":      fields,
		"timestamp":   alert.Timestamp.UTC().Format(time.RFC3339),
	}
	if catalysts := alert.Catalysts(); len(catalysts) > 0 {
		embed["footer"] = map[string]any{"text": strings.Join(catalysts, " | ")}
	}
	return map[string]any{"embeds": []any{embed}}
}

// SlackPayload builds the webhook body for Slack's Block Kit schema.
func SlackPayload(alert models.Alert) map[string]any {
	divider := map[string]any{"type": "divider"}

	titleText := fmt.Sprintf("*%s*\n%s", alert.Title, alert.Company)
	if alert.Ticker != "" {
		titleText += fmt.Sprintf(" | `%s`", alert.Ticker)
	}

	blocks := []map[string]any{
		{"type": "header", "text": map[string]any{
			"type": "plain_text",
			"text": fmt.Sprintf("%s %s Priority Alert", priorityEmoji(alert.Priority), strings.ToUpper(string(alert.Priority))),
		}},
		divider,
		{"type": "section", "text": map[string]any{"type": "mrkdwn", "text": titleText}},
		divider,
		{"type": "section", "text": map[string]any{"type": "mrkdwn", "text": "*Summary:*\n" + truncate(alert.Summary, 1000)}},
	}
	if ai := alert.AISummary(); ai != "" {
		blocks = append(blocks, divider,
			map[string]any{"type": "section", "text": map[string]any{"type": "mrkdwn", "text": "🤖 *AI Analysis:*\n" + ai}})
	}
	blocks = append(blocks, divider, map[string]any{
		"type": "context",
		"elements": []map[string]any{
			{"type": "mrkdwn", "text": fmt.Sprintf("%s | %s | <%s|View Source>", alert.Source, formatTimestamp(alert.Timestamp), alert.URL)},
		},
	})
	return map[string]any{"blocks": blocks}
}

// truncate cuts s to at most max runes, never splitting one.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
